package report

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// SQLiteSink stores events in a local SQLite database. It is the durable
// default for single-node deployments and the store read by
// "bucketdesk-ctl reports".
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink opens (or creates) the database at path and initializes the
// schema.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	if path == "" {
		return nil, errors.New("reporting.sqlite.path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening SQLite database: %w", err)
	}

	s := &SQLiteSink{db: db}
	if err := s.initDB(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing SQLite database: %w", err)
	}
	return s, nil
}

// initDB applies PRAGMAs and creates the reports table. Safe to call more
// than once.
func (s *SQLiteSink) initDB() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("executing %q: %w", p, err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS error_reports (
			id          TEXT PRIMARY KEY,
			occurred_at TEXT NOT NULL,
			operation   TEXT NOT NULL,
			bucket      TEXT NOT NULL DEFAULT '',
			object      TEXT NOT NULL DEFAULT '',
			message     TEXT NOT NULL,
			request_id  TEXT NOT NULL DEFAULT ''
		);

		CREATE INDEX IF NOT EXISTS idx_error_reports_time ON error_reports(occurred_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

func (s *SQLiteSink) Name() string { return "sqlite" }

func (s *SQLiteSink) Write(ctx context.Context, ev Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO error_reports (id, occurred_at, operation, bucket, object, message, request_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.Time.UTC().Format(timeFormat), ev.Operation, ev.Bucket, ev.Object, ev.Message(), ev.RequestID,
	)
	if err != nil {
		return fmt.Errorf("inserting error report: %w", err)
	}
	return nil
}

// Record is a stored report as read back by Recent.
type Record struct {
	ID        string
	Time      time.Time
	Operation string
	Bucket    string
	Object    string
	Message   string
	RequestID string
}

// Recent returns up to limit reports, newest first.
func (s *SQLiteSink) Recent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, occurred_at, operation, bucket, object, message, request_id
		 FROM error_reports ORDER BY occurred_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying error reports: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var occurred string
		if err := rows.Scan(&rec.ID, &occurred, &rec.Operation, &rec.Bucket, &rec.Object, &rec.Message, &rec.RequestID); err != nil {
			return nil, fmt.Errorf("scanning error report: %w", err)
		}
		rec.Time, _ = time.Parse(timeFormat, occurred)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
