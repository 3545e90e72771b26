package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// RequestLog is an append-only, line-oriented log of requests, one file per
// process run. It is safe for concurrent use.
type RequestLog struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	logger *slog.Logger
	path   string
}

// OpenRequestLog creates dir if needed and opens a new request log file in
// it named "[Server]<timestamp>.txt". The file starts with a header line
// naming the application.
func OpenRequestLog(dir, appName string) (*RequestLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory %q: %w", dir, err)
	}
	path := filepath.Join(dir, "[Server]"+logFileStamp(time.Now())+".txt")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening request log: %w", err)
	}
	rl := NewRequestLog(f, appName)
	rl.closer = f
	rl.path = path
	return rl, nil
}

// NewRequestLog writes a request log to w. The caller owns w.
func NewRequestLog(w io.Writer, appName string) *RequestLog {
	rl := &RequestLog{w: w}
	fmt.Fprintf(w, "Logs for Server-Side Application: '%s'\n", appName)
	rl.logger = slog.New(slog.NewTextHandler(lockedWriter{rl}, &slog.HandlerOptions{
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	}))
	rl.Printf("Initialised Logging: request log setup.")
	return rl
}

// Path returns the file path, or "" when the log was not opened from a file.
func (l *RequestLog) Path() string { return l.path }

// Printf writes one free-text line.
func (l *RequestLog) Printf(format string, args ...any) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

// Logger exposes the structured logger behind the file, for lines that
// carry attributes.
func (l *RequestLog) Logger() *slog.Logger { return l.logger }

// Close closes the underlying file, if the log owns one.
func (l *RequestLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closer == nil {
		return nil
	}
	err := l.closer.Close()
	l.closer = nil
	return err
}

type lockedWriter struct{ l *RequestLog }

func (lw lockedWriter) Write(p []byte) (int, error) {
	lw.l.mu.Lock()
	defer lw.l.mu.Unlock()
	return lw.l.w.Write(p)
}

// logFileStamp renders t like "Mon_02_Jan_2006_15-04-05_UTC", with the
// colons of RFC 1123 swapped for dashes so the name is portable.
func logFileStamp(t time.Time) string {
	s := t.UTC().Format(time.RFC1123)
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, ":", "-")
	return strings.ReplaceAll(s, " ", "_")
}
