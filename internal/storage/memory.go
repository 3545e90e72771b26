package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
)

// memBucket holds the objects of one in-memory bucket.
type memBucket struct {
	region  string
	objects map[string][]byte
}

// MemoryStore implements ObjectStore with in-memory maps. Listings are
// sorted, like S3's lexicographic order. It backs the "memory" backend and
// the tests.
type MemoryStore struct {
	mu      sync.RWMutex
	buckets map[string]*memBucket
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[string]*memBucket)}
}

func (s *MemoryStore) ListBuckets(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.buckets))
	for name := range s.buckets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *MemoryStore) ListObjects(ctx context.Context, bucket string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.buckets[bucket]
	if !ok {
		return nil, fmt.Errorf("listing %q: %w", bucket, ErrBucketNotFound)
	}
	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *MemoryStore) CreateBucket(ctx context.Context, bucket, region string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.buckets[bucket]; ok {
		return fmt.Errorf("creating %q: %w", bucket, ErrBucketExists)
	}
	s.buckets[bucket] = &memBucket{region: region, objects: make(map[string][]byte)}
	return nil
}

func (s *MemoryStore) DeleteBucket(ctx context.Context, bucket string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[bucket]
	if !ok {
		return fmt.Errorf("deleting %q: %w", bucket, ErrBucketNotFound)
	}
	if len(b.objects) > 0 {
		return fmt.Errorf("deleting %q: %w", bucket, ErrBucketNotEmpty)
	}
	delete(s.buckets, bucket)
	return nil
}

func (s *MemoryStore) DeleteObjects(ctx context.Context, batch BatchDelete) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[batch.Bucket]
	if !ok {
		return 0, fmt.Errorf("deleting objects from %q: %w", batch.Bucket, ErrBucketNotFound)
	}
	n := 0
	for _, k := range batch.Keys {
		if _, ok := b.objects[k]; ok {
			delete(b.objects, k)
			n++
		}
	}
	return n, nil
}

// PutObject buffers the whole stream before storing it, so a failed or
// cancelled copy leaves no object behind.
func (s *MemoryStore) PutObject(ctx context.Context, bucket, key string, r io.Reader, opts PutOptions) error {
	var buf bytes.Buffer
	if _, err := Copy(ctx, &buf, r); err != nil {
		return fmt.Errorf("reading object data: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[bucket]
	if !ok {
		return fmt.Errorf("putting %s/%s: %w", bucket, key, ErrBucketNotFound)
	}
	b.objects[key] = buf.Bytes()
	return nil
}

func (s *MemoryStore) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.buckets[bucket]
	if !ok {
		return nil, fmt.Errorf("getting %s/%s: %w", bucket, key, ErrBucketNotFound)
	}
	data, ok := b.objects[key]
	if !ok {
		return nil, fmt.Errorf("getting %s/%s: %w", bucket, key, ErrObjectNotFound)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *MemoryStore) Close() error { return nil }

// Region returns the region bucket was created with.
func (s *MemoryStore) Region(bucket string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.buckets[bucket]
	if !ok {
		return "", false
	}
	return b.region, true
}

var _ ObjectStore = (*MemoryStore)(nil)
