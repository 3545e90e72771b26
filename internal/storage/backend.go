// Package storage defines the capability interface BucketDesk uses to reach
// a remote bucket-based object store, and its implementations.
package storage

import (
	"context"
	"errors"
	"io"
)

// Sentinel errors returned (wrapped) by every ObjectStore implementation so
// callers can tell conditions apart with errors.Is.
var (
	// ErrBucketNotFound is returned when the named bucket does not exist.
	ErrBucketNotFound = errors.New("bucket not found")
	// ErrObjectNotFound is returned when the named object does not exist.
	ErrObjectNotFound = errors.New("object not found")
	// ErrBucketExists is returned when creating a bucket that exists.
	ErrBucketExists = errors.New("bucket already exists")
	// ErrBucketNotEmpty is returned when deleting a bucket that holds objects.
	ErrBucketNotEmpty = errors.New("bucket not empty")
)

// BatchDelete names a bucket and the keys to remove from it in one call.
type BatchDelete struct {
	Bucket string
	Keys   []string
}

// Len returns the number of keys in the batch.
func (b BatchDelete) Len() int { return len(b.Keys) }

// PutOptions controls how an object is written.
type PutOptions struct {
	// Size is the content length, or -1 when unknown.
	Size int64
	// ContentType is sent to stores that record it.
	ContentType string
	// ServerSideEncryption names the encryption algorithm the store should
	// apply (e.g., "AES256"). Empty means none. Stores that always encrypt
	// at rest ignore it.
	ServerSideEncryption string
}

// ObjectStore is the remote object store as seen by the resolvers and the
// bucket operations. Listings are returned in the store's order. All methods
// must be safe for concurrent use.
type ObjectStore interface {
	// ListBuckets returns the names of all buckets visible to the client.
	ListBuckets(ctx context.Context) ([]string, error)

	// ListObjects returns the keys of all objects in bucket. Listings are
	// limited to what the store returns in a single page.
	ListObjects(ctx context.Context, bucket string) ([]string, error)

	// CreateBucket creates bucket. region is passed as the location
	// constraint where the store supports one.
	CreateBucket(ctx context.Context, bucket, region string) error

	// DeleteBucket removes an empty bucket.
	DeleteBucket(ctx context.Context, bucket string) error

	// DeleteObjects removes every key in batch and returns how many were
	// deleted.
	DeleteObjects(ctx context.Context, batch BatchDelete) (int, error)

	// PutObject streams r into bucket/key.
	PutObject(ctx context.Context, bucket, key string, r io.Reader, opts PutOptions) error

	// GetObject opens a stream over bucket/key. The caller closes it.
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)

	// Close releases client resources.
	Close() error
}
