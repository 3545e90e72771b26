// The MinIO store covers MinIO and other S3-compatible servers through
// minio-go, using static V4 credentials.

package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/minio/minio-go/v7"
	miniocreds "github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/encrypt"
)

// MinioAPI defines the subset of the minio-go client the store uses. This
// allows mocking in tests.
type MinioAPI interface {
	ListBuckets(ctx context.Context) ([]string, error)
	MakeBucket(ctx context.Context, bucket, region string) error
	RemoveBucket(ctx context.Context, bucket string) error
	ListObjects(ctx context.Context, bucket string) ([]string, error)
	// RemoveObjects deletes keys and returns the per-key failures.
	RemoveObjects(ctx context.Context, bucket string, keys []string) (map[string]error, error)
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) error
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// realMinioClient wraps minio.Client to satisfy MinioAPI.
type realMinioClient struct {
	client *minio.Client
}

func (c *realMinioClient) ListBuckets(ctx context.Context) ([]string, error) {
	infos, err := c.client.ListBuckets(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(infos))
	for _, b := range infos {
		names = append(names, b.Name)
	}
	return names, nil
}

func (c *realMinioClient) MakeBucket(ctx context.Context, bucket, region string) error {
	return c.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region})
}

func (c *realMinioClient) RemoveBucket(ctx context.Context, bucket string) error {
	return c.client.RemoveBucket(ctx, bucket)
}

func (c *realMinioClient) ListObjects(ctx context.Context, bucket string) ([]string, error) {
	var keys []string
	for obj := range c.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Recursive: true}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

func (c *realMinioClient) RemoveObjects(ctx context.Context, bucket string, keys []string) (map[string]error, error) {
	objectsCh := make(chan minio.ObjectInfo)
	go func() {
		defer close(objectsCh)
		for _, k := range keys {
			select {
			case objectsCh <- minio.ObjectInfo{Key: k}:
			case <-ctx.Done():
				return
			}
		}
	}()

	failed := make(map[string]error)
	for rErr := range c.client.RemoveObjects(ctx, bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		failed[rErr.ObjectName] = rErr.Err
	}
	return failed, ctx.Err()
}

func (c *realMinioClient) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) error {
	_, err := c.client.PutObject(ctx, bucket, key, r, size, opts)
	return err
}

// GetObject stats the object first, because minio.Object defers errors to
// the first read.
func (c *realMinioClient) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	obj, err := c.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, err
	}
	return obj, nil
}

// MinioStore implements ObjectStore against MinIO or another S3-compatible
// endpoint.
type MinioStore struct {
	Endpoint string
	client   MinioAPI
}

// NewMinioStore creates a minio-go client for endpoint.
func NewMinioStore(endpoint, accessKey, secretKey, region string, useSSL bool) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  miniocreds.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating MinIO client: %w", err)
	}
	slog.Info("Configured MinIO", "endpoint", endpoint, "ssl", useSSL)
	return NewMinioStoreWithClient(endpoint, &realMinioClient{client: client}), nil
}

// NewMinioStoreWithClient creates a MinioStore with a pre-configured client.
// This is primarily used for testing with mock clients.
func NewMinioStoreWithClient(endpoint string, client MinioAPI) *MinioStore {
	return &MinioStore{Endpoint: endpoint, client: client}
}

func (s *MinioStore) ListBuckets(ctx context.Context) ([]string, error) {
	names, err := s.client.ListBuckets(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing MinIO buckets: %w", err)
	}
	return names, nil
}

func (s *MinioStore) ListObjects(ctx context.Context, bucket string) ([]string, error) {
	keys, err := s.client.ListObjects(ctx, bucket)
	if err != nil {
		if minioCode(err) == "NoSuchBucket" {
			return nil, fmt.Errorf("listing %q: %w", bucket, ErrBucketNotFound)
		}
		return nil, fmt.Errorf("listing MinIO objects in %q: %w", bucket, err)
	}
	return keys, nil
}

func (s *MinioStore) CreateBucket(ctx context.Context, bucket, region string) error {
	if err := s.client.MakeBucket(ctx, bucket, region); err != nil {
		switch minioCode(err) {
		case "BucketAlreadyOwnedByYou", "BucketAlreadyExists":
			return fmt.Errorf("creating %q: %w", bucket, ErrBucketExists)
		}
		return fmt.Errorf("creating MinIO bucket %q: %w", bucket, err)
	}
	return nil
}

func (s *MinioStore) DeleteBucket(ctx context.Context, bucket string) error {
	if err := s.client.RemoveBucket(ctx, bucket); err != nil {
		switch minioCode(err) {
		case "BucketNotEmpty":
			return fmt.Errorf("deleting %q: %w", bucket, ErrBucketNotEmpty)
		case "NoSuchBucket":
			return fmt.Errorf("deleting %q: %w", bucket, ErrBucketNotFound)
		}
		return fmt.Errorf("deleting MinIO bucket %q: %w", bucket, err)
	}
	return nil
}

func (s *MinioStore) DeleteObjects(ctx context.Context, batch BatchDelete) (int, error) {
	failed, err := s.client.RemoveObjects(ctx, batch.Bucket, batch.Keys)
	deleted := batch.Len() - len(failed)
	if err != nil {
		return deleted, fmt.Errorf("batch deleting from MinIO bucket %q: %w", batch.Bucket, err)
	}
	for key, kErr := range failed {
		return deleted, fmt.Errorf("batch delete from %q failed for %d keys, one was %q: %w",
			batch.Bucket, len(failed), key, kErr)
	}
	return deleted, nil
}

func (s *MinioStore) PutObject(ctx context.Context, bucket, key string, r io.Reader, opts PutOptions) error {
	putOpts := minio.PutObjectOptions{ContentType: opts.ContentType}
	if opts.ServerSideEncryption != "" {
		sse, err := minioSSE(opts.ServerSideEncryption)
		if err != nil {
			return err
		}
		putOpts.ServerSideEncryption = sse
	}
	if err := s.client.PutObject(ctx, bucket, key, r, opts.Size, putOpts); err != nil {
		return fmt.Errorf("uploading to MinIO %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *MinioStore) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	rc, err := s.client.GetObject(ctx, bucket, key)
	if err != nil {
		if minioCode(err) == "NoSuchKey" {
			return nil, fmt.Errorf("getting %s/%s: %w", bucket, key, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("getting object from MinIO: %w", err)
	}
	return rc, nil
}

func (s *MinioStore) Close() error { return nil }

// minioSSE maps an S3 encryption algorithm name to a minio-go server-side
// encryption setting.
func minioSSE(algorithm string) (encrypt.ServerSide, error) {
	switch algorithm {
	case "AES256":
		return encrypt.NewSSE(), nil
	case "aws:kms":
		sse, err := encrypt.NewSSEKMS("", nil)
		if err != nil {
			return nil, fmt.Errorf("configuring SSE-KMS: %w", err)
		}
		return sse, nil
	default:
		return nil, fmt.Errorf("unsupported server-side encryption %q", algorithm)
	}
}

func minioCode(err error) string {
	return minio.ToErrorResponse(err).Code
}

var _ ObjectStore = (*MinioStore)(nil)
