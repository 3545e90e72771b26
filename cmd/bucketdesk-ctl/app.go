package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/bucketdesk/bucketdesk/internal/config"
	"github.com/bucketdesk/bucketdesk/internal/logging"
	"github.com/bucketdesk/bucketdesk/internal/operations"
	"github.com/bucketdesk/bucketdesk/internal/report"
	"github.com/bucketdesk/bucketdesk/internal/storage"
)

// appContainer holds the dependencies shared by the subcommands.
type appContainer struct {
	Config   *config.Config
	Store    storage.ObjectStore
	Reporter *report.Reporter
	Service  *operations.Service
	Logger   *slog.Logger
}

// newApp loads the config at path, falling back to the defaults, and opens
// the store and error reporter it names.
func newApp(ctx context.Context, path, backend string, verbose bool) (*appContainer, error) {
	cfg, err := config.Load(path)
	if err != nil {
		cfg = config.Default()
	}
	if backend != "" {
		cfg.Storage.Backend = backend
	}

	level := "warn"
	if verbose {
		level = "debug"
	}
	logging.Setup(level, "text", os.Stderr)
	logger := slog.Default()

	reporter, err := report.Open(ctx, cfg.Reporting, logger)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		reporter.Close()
		return nil, fmt.Errorf("opening %s store: %w", cfg.Storage.Backend, err)
	}

	svc := operations.New(store, reporter, operations.Options{
		Region:        cfg.Storage.Region,
		Encryption:    cfg.Storage.Encryption,
		DownloadsDir:  cfg.Storage.DownloadsDir,
		DefaultBucket: cfg.Storage.DefaultBucket,
	}, logger)

	return &appContainer{
		Config:   cfg,
		Store:    store,
		Reporter: reporter,
		Service:  svc,
		Logger:   logger,
	}, nil
}

// Close releases the store and reporter.
func (a *appContainer) Close() {
	if err := a.Store.Close(); err != nil {
		a.Logger.Warn("Failed to close store", "error", err)
	}
	if err := a.Reporter.Close(); err != nil {
		a.Logger.Warn("Failed to close reporter", "error", err)
	}
}
