// Package history persists check records. The engine only ever writes
// through the narrow plugin.HistorySink interface; reads are for operators
// poking at the database directly.
package history

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ramkansal/stockwatch/pkg/plugin"
)

// SQLiteSink implements plugin.HistorySink on a local SQLite file.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink opens (or creates) the database and ensures the schema.
func NewSQLiteSink(ctx context.Context, dataSourceName string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("%s?_journal_mode=WAL", dataSourceName))
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	sink := &SQLiteSink{db: db}
	if err := sink.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return sink, nil
}

// Close closes the database connection.
func (s *SQLiteSink) Close() error { return s.db.Close() }

func (s *SQLiteSink) migrate(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS stock_checks (
	id             TEXT PRIMARY KEY,
	target_id      TEXT NOT NULL,
	url            TEXT NOT NULL,
	checked_at     TEXT NOT NULL,
	status         TEXT NOT NULL,
	confidence     REAL NOT NULL,
	method         TEXT NOT NULL,
	response_ms    INTEGER NOT NULL,
	http_status    INTEGER,
	content_length INTEGER,
	error          TEXT
);
CREATE INDEX IF NOT EXISTS idx_stock_checks_target_checked ON stock_checks (target_id, checked_at DESC);
`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// RecordCheck inserts one check record.
func (s *SQLiteSink) RecordCheck(ctx context.Context, rec plugin.CheckRecord) error {
	const query = `
INSERT INTO stock_checks
	(id, target_id, url, checked_at, status, confidence, method, response_ms, http_status, content_length, error)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		uuid.NewString(),
		rec.TargetID,
		rec.URL,
		rec.CheckedAt.UTC().Format("2006-01-02T15:04:05.000Z"),
		string(rec.Status),
		rec.Confidence,
		rec.Method,
		rec.ResponseTime.Milliseconds(),
		rec.HTTPStatus,
		rec.ContentLength,
		rec.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("insert check record: %w", err)
	}
	return nil
}
