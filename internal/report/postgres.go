package report

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgExecer is the subset of pgxpool.Pool the sink uses.
type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const pgSchema = `
	CREATE TABLE IF NOT EXISTS error_reports (
		id          TEXT PRIMARY KEY,
		occurred_at TIMESTAMPTZ NOT NULL,
		operation   TEXT NOT NULL,
		bucket      TEXT NOT NULL DEFAULT '',
		object      TEXT NOT NULL DEFAULT '',
		message     TEXT NOT NULL,
		request_id  TEXT NOT NULL DEFAULT ''
	)`

const pgInsert = `
	INSERT INTO error_reports (id, occurred_at, operation, bucket, object, message, request_id)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (id) DO NOTHING`

// PostgresSink stores events in a shared Postgres table, for deployments
// running several BucketDesk instances.
type PostgresSink struct {
	db    pgExecer
	close func()
}

// NewPostgresSink connects a pgx pool to dsn and creates the table.
func NewPostgresSink(ctx context.Context, dsn string) (*PostgresSink, error) {
	if dsn == "" {
		return nil, errors.New("reporting.postgres.dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	s, err := newPostgresSink(ctx, pool, pool.Close)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func newPostgresSink(ctx context.Context, db pgExecer, closeFn func()) (*PostgresSink, error) {
	if _, err := db.Exec(ctx, pgSchema); err != nil {
		return nil, fmt.Errorf("creating error_reports table: %w", err)
	}
	return &PostgresSink{db: db, close: closeFn}, nil
}

func (s *PostgresSink) Name() string { return "postgres" }

func (s *PostgresSink) Write(ctx context.Context, ev Event) error {
	_, err := s.db.Exec(ctx, pgInsert,
		ev.ID, ev.Time.UTC(), ev.Operation, ev.Bucket, ev.Object, ev.Message(), ev.RequestID)
	if err != nil {
		return fmt.Errorf("inserting error report: %w", err)
	}
	return nil
}

func (s *PostgresSink) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}
