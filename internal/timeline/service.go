// Package timeline keeps the moderation audit log and member roster in SQLite.
package timeline

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

type TimelineService struct {
	db *sql.DB
}

func NewTimelineService(dbPath string) (*TimelineService, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open timeline db: %w", err)
	}

	// Apply schema
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	// Best-effort migration for dbs created before the reason column existed.
	_, _ = db.Exec(`ALTER TABLE audit_log ADD COLUMN reason TEXT NOT NULL DEFAULT ''`)

	return &TimelineService{db: db}, nil
}

// DB returns the underlying *sql.DB for shared access (e.g. the SQLite store).
func (s *TimelineService) DB() *sql.DB { return s.db }

func (s *TimelineService) Close() error {
	return s.db.Close()
}

// AddAudit appends a moderation record.
func (s *TimelineService) AddAudit(rec *AuditRecord) error {
	targets, _ := json.Marshal(nonNil(rec.Targets))
	changed, _ := json.Marshal(nonNil(rec.Changed))
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	res, err := s.db.Exec(`
	INSERT INTO audit_log (trace_id, channel, chat_id, group_id, requester, action, outcome, reason, targets, changed, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.TraceID,
		rec.Channel,
		rec.ChatID,
		rec.GroupID,
		rec.Requester,
		rec.Action,
		rec.Outcome,
		rec.Reason,
		string(targets),
		string(changed),
		createdAt,
	)
	if err != nil {
		return err
	}
	rec.ID, _ = res.LastInsertId()
	rec.CreatedAt = createdAt
	return nil
}

type AuditFilter struct {
	GroupID   string
	Requester string
	TraceID   string
	Limit     int
	Offset    int
}

// ListAudit returns audit records, newest first.
func (s *TimelineService) ListAudit(filter AuditFilter) ([]AuditRecord, error) {
	query := `SELECT id, trace_id, channel, chat_id, group_id, requester, action, outcome, reason, targets, changed, created_at FROM audit_log WHERE 1=1`
	args := []interface{}{}

	if filter.GroupID != "" {
		query += " AND group_id = ?"
		args = append(args, filter.GroupID)
	}
	if filter.Requester != "" {
		query += " AND requester = ?"
		args = append(args, filter.Requester)
	}
	if filter.TraceID != "" {
		query += " AND trace_id = ?"
		args = append(args, filter.TraceID)
	}

	query += " ORDER BY created_at DESC, id DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		if filter.Limit <= 0 {
			query += " LIMIT -1"
		}
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditRecord
	for rows.Next() {
		var r AuditRecord
		var targets, changed string
		if err := rows.Scan(
			&r.ID,
			&r.TraceID,
			&r.Channel,
			&r.ChatID,
			&r.GroupID,
			&r.Requester,
			&r.Action,
			&r.Outcome,
			&r.Reason,
			&targets,
			&changed,
			&r.CreatedAt,
		); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(targets), &r.Targets)
		_ = json.Unmarshal([]byte(changed), &r.Changed)
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecordJoin marks a user as present in a group.
func (s *TimelineService) RecordJoin(channel, groupID, userID, displayName string, at time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO members (channel, group_id, user_id, display_name, joined_at, left_at)
		VALUES (?, ?, ?, ?, ?, NULL)
		ON CONFLICT(channel, group_id, user_id) DO UPDATE SET
			display_name = CASE WHEN excluded.display_name != '' THEN excluded.display_name ELSE members.display_name END,
			joined_at = excluded.joined_at,
			left_at = NULL
	`, channel, groupID, userID, displayName, at.UTC())
	return err
}

// RecordLeave marks a user as gone. Unknown users get a row with only left_at.
func (s *TimelineService) RecordLeave(channel, groupID, userID string, at time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO members (channel, group_id, user_id, left_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(channel, group_id, user_id) DO UPDATE SET left_at = excluded.left_at
	`, channel, groupID, userID, at.UTC())
	return err
}

// ListMembers returns the roster of a group. activeOnly skips users that left.
func (s *TimelineService) ListMembers(channel, groupID string, activeOnly bool) ([]Member, error) {
	query := `SELECT channel, group_id, user_id, display_name, joined_at, left_at FROM members WHERE channel = ? AND group_id = ?`
	if activeOnly {
		query += " AND left_at IS NULL"
	}
	query += " ORDER BY user_id"
	rows, err := s.db.Query(query, channel, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Member
	for rows.Next() {
		var m Member
		var joined, left sql.NullTime
		if err := rows.Scan(&m.Channel, &m.GroupID, &m.UserID, &m.DisplayName, &joined, &left); err != nil {
			return nil, err
		}
		if joined.Valid {
			t := joined.Time
			m.JoinedAt = &t
		}
		if left.Valid {
			t := left.Time
			m.LeftAt = &t
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetSetting returns a setting value by key.
func (s *TimelineService) GetSetting(key string) (string, error) {
	var val string
	err := s.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&val)
	if err != nil {
		return "", err
	}
	return val, nil
}

// SetSetting persists a setting value.
func (s *TimelineService) SetSetting(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, datetime('now'))
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value)
	return err
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
