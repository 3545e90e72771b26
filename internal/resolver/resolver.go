// Package resolver answers the existence questions every bucket operation
// starts with: does this bucket exist, which object does this name refer
// to, and which keys would emptying a bucket remove.
//
// A Resolver holds no per-request state. The key an object lookup matched
// is returned in the Resolution, so one Resolver is shared by every request.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/bucketdesk/bucketdesk/internal/errors"
	"github.com/bucketdesk/bucketdesk/internal/logging"
	"github.com/bucketdesk/bucketdesk/internal/naming"
	"github.com/bucketdesk/bucketdesk/internal/report"
	"github.com/bucketdesk/bucketdesk/internal/storage"
)

// Outcome is the result of a lookup that did not fail.
type Outcome int

const (
	// NotFound means the target (or, with no target, anything) is absent.
	NotFound Outcome = iota
	// Found means the target exists.
	Found
	// Listing means no target was given and Names holds everything found.
	Listing
)

func (o Outcome) String() string {
	switch o {
	case Found:
		return "found"
	case Listing:
		return "listing"
	default:
		return "not_found"
	}
}

// Resolution is a lookup result.
type Resolution struct {
	Outcome Outcome
	// Names is set for Listing, in the store's order.
	Names []string
	// Key is the exact remote key an object lookup matched.
	Key string
}

// Status returns the HTTP status for the resolution.
func (r Resolution) Status() int {
	if r.Outcome == NotFound {
		return http.StatusNotFound
	}
	return http.StatusOK
}

// Resolver resolves buckets and objects against an ObjectStore.
type Resolver struct {
	store    storage.ObjectStore
	reporter report.Recorder
	logger   *slog.Logger
}

// New creates a Resolver.
func New(store storage.ObjectStore, reporter report.Recorder, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: store, reporter: reporter, logger: logger.With("component", "resolver")}
}

// Buckets lists every bucket when target is empty. Otherwise it reports
// whether a bucket named exactly target exists.
func (r *Resolver) Buckets(ctx context.Context, target naming.Bucket) (Resolution, error) {
	log := r.log(ctx)
	if target == "" {
		log.Info("List all buckets")
	} else {
		log.Info("Find bucket", "bucket", target)
	}

	names, err := r.store.ListBuckets(ctx)
	if err != nil {
		return Resolution{}, r.fail(ctx, "ListBuckets", target.String(), "", err)
	}

	if target == "" {
		if len(names) == 0 {
			log.Info("No buckets to list")
			return Resolution{Outcome: NotFound}, nil
		}
		log.Info("All buckets", "count", len(names), "buckets", names)
		return Resolution{Outcome: Listing, Names: names}, nil
	}

	for _, name := range names {
		if name == target.String() {
			log.Info("Found bucket", "bucket", target)
			return Resolution{Outcome: Found}, nil
		}
	}
	log.Info("Could not find bucket", "bucket", target)
	return Resolution{Outcome: NotFound}, nil
}

// Objects lists every key in bucket when target is empty. Otherwise it finds
// the first key, in listing order, whose search term equals target's, so
// "report" and "Report.PDF" both find "report.pdf".
//
// A bucket that does not exist is a bad request (ErrNoSuchBucket).
func (r *Resolver) Objects(ctx context.Context, bucket naming.Bucket, target string) (Resolution, error) {
	log := r.log(ctx)
	if target == "" {
		log.Info("List all objects", "bucket", bucket)
	} else {
		log.Info("Find object", "bucket", bucket, "object", target)
	}

	keys, err := r.listObjects(ctx, bucket)
	if err != nil {
		return Resolution{}, err
	}

	if target == "" {
		if len(keys) == 0 {
			log.Info("No objects in bucket", "bucket", bucket)
			return Resolution{Outcome: NotFound}, nil
		}
		log.Info("All objects in bucket", "bucket", bucket, "count", len(keys))
		return Resolution{Outcome: Listing, Names: keys}, nil
	}

	term := naming.SearchTerm(target)
	for _, key := range keys {
		if naming.SearchTerm(key) == term {
			log.Info("Found object", "bucket", bucket, "object", target, "key", key)
			return Resolution{Outcome: Found, Key: key}, nil
		}
	}
	log.Info("Could not find object", "bucket", bucket, "object", target)
	return Resolution{Outcome: NotFound}, nil
}

// EmptyBatch returns a batch naming every key in bucket. The batch is empty
// when the bucket holds nothing.
func (r *Resolver) EmptyBatch(ctx context.Context, bucket naming.Bucket) (storage.BatchDelete, error) {
	keys, err := r.listObjects(ctx, bucket)
	if err != nil {
		return storage.BatchDelete{}, err
	}
	return storage.BatchDelete{Bucket: bucket.String(), Keys: keys}, nil
}

// listObjects checks that bucket exists, then lists it.
func (r *Resolver) listObjects(ctx context.Context, bucket naming.Bucket) ([]string, error) {
	res, err := r.Buckets(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if bucket == "" || res.Outcome != Found {
		r.log(ctx).Info("Could not find bucket, failed to list objects", "bucket", bucket)
		return nil, errors.ErrNoSuchBucket.WithMessage("bucket %q does not exist", bucket)
	}

	keys, err := r.store.ListObjects(ctx, bucket.String())
	if err != nil {
		return nil, r.fail(ctx, "ListObjects", bucket.String(), "", err)
	}
	return keys, nil
}

// fail reports a storage failure and returns it as an internal error.
func (r *Resolver) fail(ctx context.Context, op, bucket, object string, err error) error {
	err = fmt.Errorf("%s: %w", op, err)
	r.reporter.Report(ctx, report.Event{Operation: op, Bucket: bucket, Object: object, Err: err})
	return errors.Internal(err)
}

func (r *Resolver) log(ctx context.Context) *slog.Logger {
	if id := logging.RequestID(ctx); id != "" {
		return r.logger.With("request_id", id)
	}
	return r.logger
}
