// Package report records internal failures. Every failure that surfaces as
// a 500 is handed to a Reporter before the operation returns; the Reporter
// stamps it and fans it out to the configured sinks (the log, a SQLite or
// Postgres table, DynamoDB, Firestore or Cosmos DB).
package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bucketdesk/bucketdesk/internal/config"
	"github.com/bucketdesk/bucketdesk/internal/logging"
	"github.com/bucketdesk/bucketdesk/internal/metrics"
)

// timeFormat is the ISO 8601 format used for stored timestamps.
const timeFormat = "2006-01-02T15:04:05.000Z"

// Event is one reported failure.
type Event struct {
	ID        string
	Time      time.Time
	Operation string
	Bucket    string
	Object    string
	Err       error
	RequestID string
}

// Message returns the failure text, or "" when Err is nil.
func (e Event) Message() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// Recorder is what the resolvers and operations report failures to.
type Recorder interface {
	Report(ctx context.Context, ev Event)
}

// Sink persists events.
type Sink interface {
	Name() string
	Write(ctx context.Context, ev Event) error
	Close() error
}

// Reporter fans events out to its sinks. A sink that fails to write is
// logged and skipped; reporting never changes an operation's outcome.
type Reporter struct {
	sinks  []Sink
	logger *slog.Logger
}

// New creates a Reporter over sinks.
func New(logger *slog.Logger, sinks ...Sink) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{sinks: sinks, logger: logger.With("component", "report")}
}

// Report stamps ev with an ID, time and the request ID from ctx, then writes
// it to every sink.
func (r *Reporter) Report(ctx context.Context, ev Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	if ev.RequestID == "" {
		ev.RequestID = logging.RequestID(ctx)
	}
	metrics.ErrorsReportedTotal.WithLabelValues(ev.Operation).Inc()

	// Failures caused by cancellation are still written.
	ctx = context.WithoutCancel(ctx)
	for _, s := range r.sinks {
		if err := s.Write(ctx, ev); err != nil {
			r.logger.Warn("Failed to record error report",
				"sink", s.Name(), "operation", ev.Operation, "error", err)
		}
	}
}

// Close closes every sink and returns the first error.
func (r *Reporter) Close() error {
	var first error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil && first == nil {
			first = fmt.Errorf("closing %s sink: %w", s.Name(), err)
		}
	}
	return first
}

// Sinks returns the configured sinks.
func (r *Reporter) Sinks() []Sink { return r.sinks }

// Open builds a Reporter with the sinks named in cfg.Sinks. An empty list
// falls back to the log sink.
func Open(ctx context.Context, cfg config.ReportingConfig, logger *slog.Logger) (*Reporter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	names := cfg.Sinks
	if len(names) == 0 {
		names = []string{"log"}
	}

	var sinks []Sink
	closeAll := func() {
		for _, s := range sinks {
			s.Close()
		}
	}
	for _, name := range names {
		s, err := openSink(ctx, name, cfg, logger)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("opening %s report sink: %w", name, err)
		}
		logger.Info("Configured error report sink", "sink", name)
		sinks = append(sinks, s)
	}
	return New(logger, sinks...), nil
}

func openSink(ctx context.Context, name string, cfg config.ReportingConfig, logger *slog.Logger) (Sink, error) {
	switch name {
	case "log":
		return NewLogSink(logger), nil
	case "sqlite":
		return NewSQLiteSink(cfg.SQLite.Path)
	case "postgres":
		return NewPostgresSink(ctx, cfg.Postgres.DSN)
	case "dynamodb":
		return NewDynamoDBSink(ctx, cfg.DynamoDB)
	case "firestore":
		return NewFirestoreSink(ctx, cfg.Firestore)
	case "cosmos":
		return NewCosmosSink(cfg.Cosmos)
	default:
		return nil, fmt.Errorf("unknown sink %q", name)
	}
}
