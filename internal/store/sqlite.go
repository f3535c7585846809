package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS moderation_state (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	document TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// SQLiteStore keeps the record as a single JSON row. It is meant to share
// the timeline database handle.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore prepares the moderation_state table on db.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("apply moderation_state schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Load reads the record. A missing row yields an empty record.
func (s *SQLiteStore) Load(ctx context.Context) (*Record, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM moderation_state WHERE id = 1`).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return NewRecord(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: query moderation_state: %w", ErrConfigUnavailable, err)
	}
	return Decode([]byte(doc))
}

// Save upserts the full document.
func (s *SQLiteStore) Save(ctx context.Context, rec *Record) error {
	data, err := Encode(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO moderation_state (id, document, updated_at) VALUES (1, ?, datetime('now'))
		ON CONFLICT(id) DO UPDATE SET document = excluded.document, updated_at = excluded.updated_at
	`, string(data))
	return err
}
