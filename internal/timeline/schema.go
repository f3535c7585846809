package timeline

import (
	"time"
)

// Schema is applied on every open; all statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	trace_id TEXT NOT NULL DEFAULT '',
	channel TEXT NOT NULL DEFAULT '',
	chat_id TEXT NOT NULL DEFAULT '',
	group_id TEXT NOT NULL DEFAULT '',
	requester TEXT NOT NULL DEFAULT '',
	action TEXT NOT NULL,
	outcome TEXT NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	targets TEXT NOT NULL DEFAULT '[]',
	changed TEXT NOT NULL DEFAULT '[]',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_audit_trace ON audit_log(trace_id);
CREATE INDEX IF NOT EXISTS idx_audit_group ON audit_log(group_id, created_at);

CREATE TABLE IF NOT EXISTS members (
	channel TEXT NOT NULL,
	group_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	display_name TEXT NOT NULL DEFAULT '',
	joined_at DATETIME,
	left_at DATETIME,
	PRIMARY KEY (channel, group_id, user_id)
);

CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// AuditRecord is one moderation command as stored in audit_log.
type AuditRecord struct {
	ID        int64     `json:"id"`
	TraceID   string    `json:"trace_id,omitempty"`
	Channel   string    `json:"channel,omitempty"`
	ChatID    string    `json:"chat_id,omitempty"`
	GroupID   string    `json:"group_id,omitempty"`
	Requester string    `json:"requester"`
	Action    string    `json:"action"`
	Outcome   string    `json:"outcome"`
	Reason    string    `json:"reason,omitempty"`
	Targets   []string  `json:"targets"`
	Changed   []string  `json:"changed"`
	CreatedAt time.Time `json:"created_at"`
}

// Member is a roster row. LeftAt is nil while the user is in the group.
type Member struct {
	Channel     string     `json:"channel"`
	GroupID     string     `json:"group_id"`
	UserID      string     `json:"user_id"`
	DisplayName string     `json:"display_name,omitempty"`
	JoinedAt    *time.Time `json:"joined_at,omitempty"`
	LeftAt      *time.Time `json:"left_at,omitempty"`
}
