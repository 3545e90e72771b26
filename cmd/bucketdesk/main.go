// Package main is the entry point for the BucketDesk HTTP server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bucketdesk/bucketdesk/internal/config"
	"github.com/bucketdesk/bucketdesk/internal/logging"
	"github.com/bucketdesk/bucketdesk/internal/metrics"
	"github.com/bucketdesk/bucketdesk/internal/operations"
	"github.com/bucketdesk/bucketdesk/internal/report"
	"github.com/bucketdesk/bucketdesk/internal/server"
	"github.com/bucketdesk/bucketdesk/internal/storage"
)

func main() {
	configPath := flag.String("config", "bucketdesk.yaml", "path to configuration file (.yaml or .toml)")
	port := flag.Int("port", 0, "override listening port (default: from config or 3000)")
	host := flag.String("host", "", "override listening host (default: from config or 127.0.0.1)")
	backend := flag.String("backend", "", "override storage backend: aws, gcp, azure, minio, local, memory")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error (default: from config or info)")
	logFormat := flag.String("log-format", "", "log format: text, json (default: from config or text)")
	shutdownTimeout := flag.Int("shutdown-timeout", 0, "graceful shutdown timeout in seconds (default: from config or 30)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "no usable config file (%v), using defaults\n", err)
		cfg = config.Default()
	}

	// Command-line flags override config file values.
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *backend != "" {
		cfg.Storage.Backend = *backend
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Logging.Format = *logFormat
	}
	if *shutdownTimeout != 0 {
		cfg.Server.ShutdownTimeout = *shutdownTimeout
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)

	var requestLog *logging.RequestLog
	if cfg.Logging.RequestLog {
		requestLog, err = logging.OpenRequestLog(cfg.Logging.Dir, cfg.AppName)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open request log: %v\n", err)
			os.Exit(1)
		}
		defer requestLog.Close()
		requestLog.Printf("-APPLICATION STARTING-")
	}
	startupLine := func(msg string, args ...any) {
		slog.Info(msg, args...)
		if requestLog != nil {
			requestLog.Logger().Info(msg, args...)
		}
	}

	if cfg.Observability.Metrics {
		metrics.Register()
	}

	ctx := context.Background()

	reporter, err := report.Open(ctx, cfg.Reporting, slog.Default())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize error reporting: %v\n", err)
		os.Exit(1)
	}
	defer reporter.Close()

	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize storage backend: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("Storage backend initialized", "backend", cfg.Storage.Backend, "region", cfg.Storage.Region)

	svc := operations.New(store, reporter, operations.Options{
		Region:        cfg.Storage.Region,
		Encryption:    cfg.Storage.Encryption,
		DownloadsDir:  cfg.Storage.DownloadsDir,
		DefaultBucket: cfg.Storage.DefaultBucket,
	}, slog.Default())

	srv, err := server.New(cfg, server.WithService(svc), server.WithRequestLog(requestLog))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create server: %v\n", err)
		os.Exit(1)
	}
	startupLine("Configured Server.")

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	// Start the server in a goroutine so we can handle shutdown signals.
	errCh := make(chan error, 1)
	go func() {
		startupLine(fmt.Sprintf("Started HTTP Server: http://%s", addr))
		if err := srv.ListenAndServe(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		startupLine("Application Shutting Down.", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("Shutdown error", "error", err)
		}
		slog.Info("Server stopped")

	case err := <-errCh:
		if err != nil {
			slog.Error("Server error", "error", err)
			if requestLog != nil {
				requestLog.Close()
			}
			reporter.Close()
			store.Close()
			os.Exit(1)
		}
	}
}
