// Package operations implements the bucket operations BucketDesk exposes:
// listing and finding, bucket create/delete/empty, and file upload and
// download. Each operation normalizes its raw input once, asks the resolver
// whether the state allows it, and only then calls the object store.
//
// Operations return nil or an *errors.Error whose Kind decides the HTTP
// status. Every internal failure is reported before the operation returns.
package operations

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bucketdesk/bucketdesk/internal/errors"
	"github.com/bucketdesk/bucketdesk/internal/logging"
	"github.com/bucketdesk/bucketdesk/internal/metrics"
	"github.com/bucketdesk/bucketdesk/internal/naming"
	"github.com/bucketdesk/bucketdesk/internal/report"
	"github.com/bucketdesk/bucketdesk/internal/resolver"
	"github.com/bucketdesk/bucketdesk/internal/storage"
)

// Options configures a Service.
type Options struct {
	// Region is passed as the location constraint of new buckets.
	Region string
	// Encryption is the server-side encryption applied to uploads ("" for none).
	Encryption string
	// DownloadsDir receives downloaded files.
	DownloadsDir string
	// DefaultBucket is used by uploads that name no bucket.
	DefaultBucket string
}

// Service runs bucket operations against an ObjectStore.
type Service struct {
	store    storage.ObjectStore
	resolver *resolver.Resolver
	reporter report.Recorder
	opts     Options
	logger   *slog.Logger
}

// New creates a Service. The resolver shares store and reporter.
func New(store storage.ObjectStore, reporter report.Recorder, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.DownloadsDir == "" {
		opts.DownloadsDir = "downloads"
	}
	return &Service{
		store:    store,
		resolver: resolver.New(store, reporter, logger),
		reporter: reporter,
		opts:     opts,
		logger:   logger.With("component", "operations"),
	}
}

// Options returns the service's options.
func (s *Service) Options() Options { return s.opts }

// ListBuckets lists every bucket.
func (s *Service) ListBuckets(ctx context.Context) (resolver.Resolution, error) {
	res, err := s.resolver.Buckets(ctx, "")
	observe("ListBuckets", err)
	return res, err
}

// FindBucket reports whether the bucket raw normalizes to exists.
func (s *Service) FindBucket(ctx context.Context, raw string) (resolver.Resolution, error) {
	name, err := bucketName(raw)
	if err != nil {
		return resolver.Resolution{}, err
	}
	res, err := s.resolver.Buckets(ctx, name)
	observe("FindBucket", err)
	return res, err
}

// ListObjects lists the keys in a bucket.
func (s *Service) ListObjects(ctx context.Context, rawBucket string) (resolver.Resolution, error) {
	name, err := bucketName(rawBucket)
	if err != nil {
		return resolver.Resolution{}, err
	}
	res, err := s.resolver.Objects(ctx, name, "")
	observe("ListObjects", err)
	return res, err
}

// FindObject finds an object by name, ignoring case and extension.
func (s *Service) FindObject(ctx context.Context, rawBucket, object string) (resolver.Resolution, error) {
	name, err := bucketName(rawBucket)
	if err != nil {
		return resolver.Resolution{}, err
	}
	if strings.TrimSpace(object) == "" {
		return resolver.Resolution{}, errors.ErrInvalidArgument.WithMessage("object name is required")
	}
	res, err := s.resolver.Objects(ctx, name, object)
	observe("FindObject", err)
	return res, err
}

// bucketName normalizes raw and rejects names that normalize to nothing.
func bucketName(raw string) (naming.Bucket, error) {
	name := naming.NormalizeBucket(raw)
	if name == "" {
		return "", errors.ErrInvalidArgument.WithMessage("bucket name is required")
	}
	return name, nil
}

// fail reports a failure of op and returns it as an internal error.
func (s *Service) fail(ctx context.Context, op, bucket, object string, err error) error {
	err = fmt.Errorf("%s: %w", op, err)
	s.reporter.Report(ctx, report.Event{Operation: op, Bucket: bucket, Object: object, Err: err})
	return errors.Internal(err)
}

func (s *Service) log(ctx context.Context) *slog.Logger {
	if id := logging.RequestID(ctx); id != "" {
		return s.logger.With("request_id", id)
	}
	return s.logger
}

// observe counts an operation outcome.
func observe(op string, err error) {
	status := "success"
	if err != nil {
		status = errors.KindOf(err).String()
	}
	metrics.OperationsTotal.WithLabelValues(op, status).Inc()
}
