package report

import (
	"context"
	"log/slog"
)

// LogSink writes events to a slog logger at error level.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Write(ctx context.Context, ev Event) error {
	s.logger.LogAttrs(ctx, slog.LevelError, "Operation failed",
		slog.String("report_id", ev.ID),
		slog.String("operation", ev.Operation),
		slog.String("bucket", ev.Bucket),
		slog.String("object", ev.Object),
		slog.String("request_id", ev.RequestID),
		slog.String("error", ev.Message()),
	)
	return nil
}

func (s *LogSink) Close() error { return nil }
