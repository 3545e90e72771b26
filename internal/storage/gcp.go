// The GCS store talks to Google Cloud Storage through the official client
// library. Credentials are resolved via Application Default Credentials
// unless a credentials file is configured. Listing and creating buckets need
// a project ID.

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	gcs "cloud.google.com/go/storage"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSAPI defines the subset of the GCS client the store uses. This allows
// mocking in tests.
type GCSAPI interface {
	// ListBuckets returns the bucket names in project.
	ListBuckets(ctx context.Context, project string) ([]string, error)
	// CreateBucket creates bucket in project at location.
	CreateBucket(ctx context.Context, project, bucket, location string) error
	// DeleteBucket deletes an empty bucket.
	DeleteBucket(ctx context.Context, bucket string) error
	// ListObjects returns the object names in bucket.
	ListObjects(ctx context.Context, bucket string) ([]string, error)
	// NewWriter returns a writer for the given object.
	NewWriter(ctx context.Context, bucket, object string) io.WriteCloser
	// NewReader returns a reader for the given object.
	NewReader(ctx context.Context, bucket, object string) (io.ReadCloser, error)
	// Delete deletes the given object.
	Delete(ctx context.Context, bucket, object string) error
	// Close releases the client.
	Close() error
}

// realGCSClient wraps the official GCS client to satisfy GCSAPI.
type realGCSClient struct {
	client *gcs.Client
}

func (c *realGCSClient) ListBuckets(ctx context.Context, project string) ([]string, error) {
	it := c.client.Buckets(ctx, project)
	var names []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		names = append(names, attrs.Name)
	}
	return names, nil
}

func (c *realGCSClient) CreateBucket(ctx context.Context, project, bucket, location string) error {
	var attrs *gcs.BucketAttrs
	if location != "" {
		attrs = &gcs.BucketAttrs{Location: location}
	}
	return c.client.Bucket(bucket).Create(ctx, project, attrs)
}

func (c *realGCSClient) DeleteBucket(ctx context.Context, bucket string) error {
	return c.client.Bucket(bucket).Delete(ctx)
}

func (c *realGCSClient) ListObjects(ctx context.Context, bucket string) ([]string, error) {
	it := c.client.Bucket(bucket).Objects(ctx, nil)
	var names []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		names = append(names, attrs.Name)
	}
	return names, nil
}

func (c *realGCSClient) NewWriter(ctx context.Context, bucket, object string) io.WriteCloser {
	return c.client.Bucket(bucket).Object(object).NewWriter(ctx)
}

func (c *realGCSClient) NewReader(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	return c.client.Bucket(bucket).Object(object).NewReader(ctx)
}

func (c *realGCSClient) Delete(ctx context.Context, bucket, object string) error {
	return c.client.Bucket(bucket).Object(object).Delete(ctx)
}

func (c *realGCSClient) Close() error {
	return c.client.Close()
}

// GCSStore implements ObjectStore against Google Cloud Storage. GCS always
// encrypts at rest, so PutOptions.ServerSideEncryption is ignored.
type GCSStore struct {
	// Project is the GCP project that owns the buckets.
	Project string
	client  GCSAPI
}

// NewGCSStore creates a GCS client using Application Default Credentials or
// credentialsFile when set.
func NewGCSStore(ctx context.Context, project, credentialsFile string) (*GCSStore, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating GCS client: %w", err)
	}
	slog.Info("Configured GCS", "project", project)
	return NewGCSStoreWithClient(project, &realGCSClient{client: client}), nil
}

// NewGCSStoreWithClient creates a GCSStore with a pre-configured client. This
// is primarily used for testing with mock clients.
func NewGCSStoreWithClient(project string, client GCSAPI) *GCSStore {
	return &GCSStore{Project: project, client: client}
}

func (s *GCSStore) ListBuckets(ctx context.Context) ([]string, error) {
	names, err := s.client.ListBuckets(ctx, s.Project)
	if err != nil {
		return nil, fmt.Errorf("listing GCS buckets: %w", err)
	}
	return names, nil
}

func (s *GCSStore) ListObjects(ctx context.Context, bucket string) ([]string, error) {
	names, err := s.client.ListObjects(ctx, bucket)
	if err != nil {
		if errors.Is(err, gcs.ErrBucketNotExist) {
			return nil, fmt.Errorf("listing %q: %w", bucket, ErrBucketNotFound)
		}
		return nil, fmt.Errorf("listing GCS objects in %q: %w", bucket, err)
	}
	return names, nil
}

func (s *GCSStore) CreateBucket(ctx context.Context, bucket, region string) error {
	if err := s.client.CreateBucket(ctx, s.Project, bucket, region); err != nil {
		return fmt.Errorf("creating GCS bucket %q: %w", bucket, err)
	}
	return nil
}

func (s *GCSStore) DeleteBucket(ctx context.Context, bucket string) error {
	if err := s.client.DeleteBucket(ctx, bucket); err != nil {
		if errors.Is(err, gcs.ErrBucketNotExist) {
			return fmt.Errorf("deleting %q: %w", bucket, ErrBucketNotFound)
		}
		return fmt.Errorf("deleting GCS bucket %q: %w", bucket, err)
	}
	return nil
}

// DeleteObjects deletes the batch with bounded parallel calls, since GCS has
// no multi-object delete. Objects already gone count as deleted.
func (s *GCSStore) DeleteObjects(ctx context.Context, batch BatchDelete) (int, error) {
	var deleted atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(deleteConcurrency)
	for _, key := range batch.Keys {
		key := key
		g.Go(func() error {
			err := s.client.Delete(ctx, batch.Bucket, key)
			if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
				return fmt.Errorf("deleting GCS object %s/%s: %w", batch.Bucket, key, err)
			}
			deleted.Add(1)
			return nil
		})
	}
	err := g.Wait()
	return int(deleted.Load()), err
}

// PutObject streams r into a GCS writer. On a copy failure the writer's
// context is cancelled before Close so the partial upload is discarded.
func (s *GCSStore) PutObject(ctx context.Context, bucket, key string, r io.Reader, opts PutOptions) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := s.client.NewWriter(ctx, bucket, key)
	if gw, ok := w.(*gcs.Writer); ok && opts.ContentType != "" {
		gw.ContentType = opts.ContentType
	}
	if _, err := Copy(ctx, w, r); err != nil {
		cancel()
		_ = w.Close()
		return fmt.Errorf("uploading to GCS %s/%s: %w", bucket, key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing GCS upload %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *GCSStore) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	rc, err := s.client.NewReader(ctx, bucket, key)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, fmt.Errorf("getting %s/%s: %w", bucket, key, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("getting object from GCS: %w", err)
	}
	return rc, nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}

var _ ObjectStore = (*GCSStore)(nil)
