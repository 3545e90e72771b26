package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// tmpDirName is the directory under RootDir used for in-flight writes. It is
// never listed as a bucket.
const tmpDirName = ".tmp"

// deleteConcurrency bounds parallel deletes in a batch.
const deleteConcurrency = 8

// LocalStore implements ObjectStore on the local filesystem. Each bucket is
// a directory under RootDir and each object a file below it, with "/" in
// keys mapped to subdirectories.
type LocalStore struct {
	// RootDir is the base directory holding one directory per bucket.
	RootDir string
}

// NewLocalStore creates a LocalStore rooted at rootDir, creating the root
// and temp directories if they do not exist.
func NewLocalStore(rootDir string) (*LocalStore, error) {
	if err := os.MkdirAll(filepath.Join(rootDir, tmpDirName), 0o755); err != nil {
		return nil, fmt.Errorf("creating storage root directory %q: %w", rootDir, err)
	}
	return &LocalStore{RootDir: rootDir}, nil
}

// CleanTempFiles removes files left in the temp directory by writes that
// never completed. It is called on startup.
func (s *LocalStore) CleanTempFiles() error {
	tmpDir := filepath.Join(s.RootDir, tmpDirName)
	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading temp directory: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			os.Remove(filepath.Join(tmpDir, entry.Name()))
		}
	}
	return nil
}

func (s *LocalStore) bucketPath(bucket string) (string, error) {
	if bucket == "" || bucket == tmpDirName || !filepath.IsLocal(bucket) || filepath.Base(bucket) != bucket {
		return "", fmt.Errorf("invalid bucket name %q", bucket)
	}
	return filepath.Join(s.RootDir, bucket), nil
}

func (s *LocalStore) objectPath(bucket, key string) (string, error) {
	dir, err := s.bucketPath(bucket)
	if err != nil {
		return "", err
	}
	rel := filepath.FromSlash(key)
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(dir, rel), nil
}

func (s *LocalStore) requireBucket(bucket string) (string, error) {
	dir, err := s.bucketPath(bucket)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("bucket %q: %w", bucket, ErrBucketNotFound)
	}
	return dir, nil
}

func (s *LocalStore) ListBuckets(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.RootDir)
	if err != nil {
		return nil, fmt.Errorf("reading storage root: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && e.Name() != tmpDirName {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

func (s *LocalStore) ListObjects(ctx context.Context, bucket string) ([]string, error) {
	dir, err := s.requireBucket(bucket)
	if err != nil {
		return nil, err
	}
	var keys []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing %q: %w", bucket, err)
	}
	sort.Strings(keys)
	return keys, nil
}

// CreateBucket creates the bucket directory. region is ignored.
func (s *LocalStore) CreateBucket(ctx context.Context, bucket, region string) error {
	dir, err := s.bucketPath(bucket)
	if err != nil {
		return err
	}
	if err := os.Mkdir(dir, 0o755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("creating %q: %w", bucket, ErrBucketExists)
		}
		return fmt.Errorf("creating bucket directory: %w", err)
	}
	return nil
}

// DeleteBucket removes the bucket directory. Empty subdirectories left by
// deleted keys do not count as content.
func (s *LocalStore) DeleteBucket(ctx context.Context, bucket string) error {
	keys, err := s.ListObjects(ctx, bucket)
	if err != nil {
		return err
	}
	if len(keys) > 0 {
		return fmt.Errorf("deleting %q: %w", bucket, ErrBucketNotEmpty)
	}
	dir, _ := s.bucketPath(bucket)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("removing bucket directory: %w", err)
	}
	return nil
}

func (s *LocalStore) DeleteObjects(ctx context.Context, batch BatchDelete) (int, error) {
	if _, err := s.requireBucket(batch.Bucket); err != nil {
		return 0, err
	}
	var deleted atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(deleteConcurrency)
	for _, key := range batch.Keys {
		key := key
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			path, err := s.objectPath(batch.Bucket, key)
			if err != nil {
				return err
			}
			if err := os.Remove(path); err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return fmt.Errorf("deleting %s/%s: %w", batch.Bucket, key, err)
			}
			deleted.Add(1)
			return nil
		})
	}
	err := g.Wait()
	return int(deleted.Load()), err
}

// PutObject writes the object with the atomic write pattern: write to a
// temp file, fsync, rename. A failed copy leaves no object behind.
func (s *LocalStore) PutObject(ctx context.Context, bucket, key string, r io.Reader, opts PutOptions) error {
	if _, err := s.requireBucket(bucket); err != nil {
		return err
	}
	objPath, err := s.objectPath(bucket, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(objPath), 0o755); err != nil {
		return fmt.Errorf("creating parent directories for %s/%s: %w", bucket, key, err)
	}

	tmpPath := filepath.Join(s.RootDir, tmpDirName, "tmp-"+uuid.NewString())
	tmpFile, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	if _, err := Copy(ctx, tmpFile, r); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing object data: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, objPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file to final path: %w", err)
	}
	return nil
}

func (s *LocalStore) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if _, err := s.requireBucket(bucket); err != nil {
		return nil, err
	}
	path, err := s.objectPath(bucket, key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("getting %s/%s: %w", bucket, key, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("opening object file: %w", err)
	}
	return f, nil
}

func (s *LocalStore) Close() error { return nil }

var _ ObjectStore = (*LocalStore)(nil)
