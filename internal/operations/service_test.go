package operations

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bucketdesk/bucketdesk/internal/errors"
	"github.com/bucketdesk/bucketdesk/internal/report"
	"github.com/bucketdesk/bucketdesk/internal/resolver"
	"github.com/bucketdesk/bucketdesk/internal/storage"
)

// recorder collects reported events.
type recorder struct {
	mu     sync.Mutex
	events []report.Event
}

func (r *recorder) Report(ctx context.Context, ev report.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// countingStore wraps a MemoryStore, counts mutating and data calls and can
// inject failures.
type countingStore struct {
	*storage.MemoryStore
	mu sync.Mutex

	createCalls       int
	deleteBucketCalls int
	deleteObjectCalls int
	putCalls          int
	getCalls          int

	lastRegion string
	lastPut    storage.PutOptions

	createErr       error
	deleteBucketErr error
	deleteObjErr    error
	putErr          error
	getBody         io.ReadCloser
}

func (s *countingStore) CreateBucket(ctx context.Context, bucket, region string) error {
	s.mu.Lock()
	s.createCalls++
	s.lastRegion = region
	s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	return s.MemoryStore.CreateBucket(ctx, bucket, region)
}

func (s *countingStore) DeleteBucket(ctx context.Context, bucket string) error {
	s.mu.Lock()
	s.deleteBucketCalls++
	s.mu.Unlock()
	if s.deleteBucketErr != nil {
		return s.deleteBucketErr
	}
	return s.MemoryStore.DeleteBucket(ctx, bucket)
}

func (s *countingStore) DeleteObjects(ctx context.Context, batch storage.BatchDelete) (int, error) {
	s.mu.Lock()
	s.deleteObjectCalls++
	s.mu.Unlock()
	if s.deleteObjErr != nil {
		return 0, s.deleteObjErr
	}
	return s.MemoryStore.DeleteObjects(ctx, batch)
}

func (s *countingStore) PutObject(ctx context.Context, bucket, key string, r io.Reader, opts storage.PutOptions) error {
	s.mu.Lock()
	s.putCalls++
	s.lastPut = opts
	s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	return s.MemoryStore.PutObject(ctx, bucket, key, r, opts)
}

func (s *countingStore) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	s.getCalls++
	s.mu.Unlock()
	if s.getBody != nil {
		return s.getBody, nil
	}
	return s.MemoryStore.GetObject(ctx, bucket, key)
}

type fixture struct {
	svc       *Service
	store     *countingStore
	rec       *recorder
	downloads string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := &countingStore{MemoryStore: storage.NewMemoryStore()}
	rec := &recorder{}
	downloads := filepath.Join(t.TempDir(), "downloads")
	svc := New(store, rec, Options{
		Region:       "eu-central-1",
		Encryption:   "AES256",
		DownloadsDir: downloads,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return &fixture{svc: svc, store: store, rec: rec, downloads: downloads}
}

// put seeds an object directly in the store.
func (f *fixture) put(t *testing.T, bucket, key, body string) {
	t.Helper()
	require.NoError(t, f.store.MemoryStore.PutObject(context.Background(), bucket, key, strings.NewReader(body), storage.PutOptions{Size: -1}))
}

// localFile writes a file to upload and returns its path.
func localFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func status(err error) int { return errors.HTTPStatus(err) }

func TestCreateBucketTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.CreateBucket(ctx, "Reports_2024"))
	region, ok := f.store.Region("reports-2024")
	require.True(t, ok, "bucket should be created under its normalized name")
	assert.Equal(t, "eu-central-1", region)

	err := f.svc.CreateBucket(ctx, "reports 2024")
	assert.Equal(t, http.StatusBadRequest, status(err))
	assert.True(t, errors.Is(err, errors.ErrBucketExists))
	assert.Equal(t, 1, f.store.createCalls, "the duplicate must not reach the store")
}

func TestCreateBucketStoreFailure(t *testing.T) {
	f := newFixture(t)
	f.store.createErr = stderrors.New("AccessDenied")

	err := f.svc.CreateBucket(context.Background(), "new")
	assert.Equal(t, http.StatusInternalServerError, status(err))
	require.Len(t, f.rec.events, 1)
	assert.Equal(t, "CreateBucket", f.rec.events[0].Operation)
	assert.Equal(t, "new", f.rec.events[0].Bucket)
}

func TestCreateBucketBlankName(t *testing.T) {
	f := newFixture(t)
	err := f.svc.CreateBucket(context.Background(), "   ")
	assert.Equal(t, http.StatusBadRequest, status(err))
	assert.Zero(t, f.store.createCalls)
}

func TestMyBucketScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.CreateBucket(ctx, "My Bucket"))

	res, err := f.svc.FindBucket(ctx, "my-bucket")
	require.NoError(t, err)
	assert.Equal(t, resolver.Found, res.Outcome)

	res, err = f.svc.ListBuckets(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"my-bucket"}, res.Names)

	require.NoError(t, f.svc.DeleteBucket(ctx, "MY_BUCKET"))
	res, err = f.svc.FindBucket(ctx, "My Bucket")
	require.NoError(t, err)
	assert.Equal(t, resolver.NotFound, res.Outcome)
	assert.Equal(t, http.StatusNotFound, res.Status())
}

func TestDeleteBucketNotEmpty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.CreateBucket(ctx, "full"))
	f.put(t, "full", "a.txt", "a")

	err := f.svc.DeleteBucket(ctx, "full")
	assert.Equal(t, http.StatusBadRequest, status(err))
	assert.True(t, errors.Is(err, errors.ErrBucketNotEmpty))
	assert.Zero(t, f.store.deleteBucketCalls, "no remote delete for a non-empty bucket")
}

func TestDeleteBucketMissing(t *testing.T) {
	f := newFixture(t)
	err := f.svc.DeleteBucket(context.Background(), "ghost")
	assert.Equal(t, http.StatusBadRequest, status(err))
	assert.True(t, errors.Is(err, errors.ErrNoSuchBucket))
	assert.Zero(t, f.store.deleteBucketCalls)
}

func TestDeleteBucketStoreFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.CreateBucket(ctx, "b"))
	f.store.deleteBucketErr = stderrors.New("InternalError")

	err := f.svc.DeleteBucket(ctx, "b")
	assert.Equal(t, http.StatusInternalServerError, status(err))
	assert.Len(t, f.rec.events, 1)
}

func TestEmptyBucket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.CreateBucket(ctx, "b"))

	_, err := f.svc.EmptyBucket(ctx, "b")
	assert.Equal(t, http.StatusBadRequest, status(err))
	assert.True(t, errors.Is(err, errors.ErrBucketAlreadyEmpty))
	assert.Zero(t, f.store.deleteObjectCalls)

	for _, k := range []string{"1.txt", "2.txt", "3.txt", "4.txt"} {
		f.put(t, "b", k, k)
	}
	n, err := f.svc.EmptyBucket(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, 1, f.store.deleteObjectCalls, "one batch for all keys")

	res, err := f.svc.ListObjects(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, resolver.NotFound, res.Outcome)
}

func TestEmptyBucketMissingAndFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.EmptyBucket(ctx, "ghost")
	assert.Equal(t, http.StatusBadRequest, status(err))

	require.NoError(t, f.svc.CreateBucket(ctx, "b"))
	f.put(t, "b", "k", "v")
	f.store.deleteObjErr = stderrors.New("SlowDown")
	_, err = f.svc.EmptyBucket(ctx, "b")
	assert.Equal(t, http.StatusInternalServerError, status(err))
	require.Len(t, f.rec.events, 1)
	assert.Equal(t, "EmptyBucket", f.rec.events[0].Operation)
}

func TestUploadRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.CreateBucket(ctx, "docs"))
	path := localFile(t, "report.pdf", "%PDF-1.7")

	key, err := f.svc.UploadFile(ctx, path, "Docs")
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", key)
	assert.Equal(t, "AES256", f.store.lastPut.ServerSideEncryption)
	assert.Equal(t, int64(8), f.store.lastPut.Size)
	assert.Equal(t, "application/pdf", f.store.lastPut.ContentType)

	res, err := f.svc.FindObject(ctx, "docs", "report.pdf")
	require.NoError(t, err)
	assert.Equal(t, resolver.Found, res.Outcome)

	_, err = f.svc.UploadFile(ctx, path, "docs")
	assert.Equal(t, http.StatusBadRequest, status(err))
	assert.True(t, errors.Is(err, errors.ErrObjectExists))
	assert.Equal(t, 1, f.store.putCalls)
}

func TestUploadDefaultBucket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.svc.opts.DefaultBucket = "inbox"
	require.NoError(t, f.svc.CreateBucket(ctx, "inbox"))

	_, err := f.svc.UploadFile(ctx, localFile(t, "a.txt", "a"), "")
	require.NoError(t, err)
	res, err := f.svc.ListObjects(ctx, "inbox")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, res.Names)
}

func TestUploadErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.UploadFile(ctx, "", "b")
	assert.Equal(t, http.StatusBadRequest, status(err))

	_, err = f.svc.UploadFile(ctx, localFile(t, "x.txt", "x"), "ghost")
	assert.True(t, errors.Is(err, errors.ErrNoSuchBucket))

	require.NoError(t, f.svc.CreateBucket(ctx, "b"))
	_, err = f.svc.UploadFile(ctx, filepath.Join(t.TempDir(), "missing.txt"), "b")
	assert.Equal(t, http.StatusInternalServerError, status(err), "an unreadable local file is an internal failure")
	require.Len(t, f.rec.events, 1)
	assert.Equal(t, "UploadFile", f.rec.events[0].Operation)

	f.store.putErr = stderrors.New("EntityTooLarge")
	_, err = f.svc.UploadFile(ctx, localFile(t, "big.bin", "data"), "b")
	assert.Equal(t, http.StatusInternalServerError, status(err))
	assert.Len(t, f.rec.events, 2)
}

func TestReportPDFScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.CreateBucket(ctx, "docs"))
	f.put(t, "docs", "report.pdf", "pdf bytes")

	res, err := f.svc.FindObject(ctx, "docs", "Report.PDF")
	require.NoError(t, err)
	assert.Equal(t, resolver.Found, res.Outcome)
	assert.Equal(t, "report.pdf", res.Key)

	path, err := f.svc.DownloadFile(ctx, "REPORT", "docs")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.downloads, "report.pdf"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "pdf bytes", string(data))
}

func TestDownloadBadRequests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.DownloadFile(ctx, "a.txt", "ghost")
	assert.Equal(t, http.StatusBadRequest, status(err))
	assert.True(t, errors.Is(err, errors.ErrNoSuchBucket))

	require.NoError(t, f.svc.CreateBucket(ctx, "b"))
	_, err = f.svc.DownloadFile(ctx, "a.txt", "b")
	assert.Equal(t, http.StatusBadRequest, status(err))
	assert.True(t, errors.Is(err, errors.ErrNoSuchObject))

	_, err = f.svc.DownloadFile(ctx, " ", "b")
	assert.Equal(t, http.StatusBadRequest, status(err))
	assert.Zero(t, f.store.getCalls)
}

func TestDownloadAlreadyPresentLocally(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.CreateBucket(ctx, "b"))
	f.put(t, "b", "photo.jpg", "remote")

	require.NoError(t, os.MkdirAll(f.downloads, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(f.downloads, "photo.jpg"), []byte("local"), 0o644))

	_, err := f.svc.DownloadFile(ctx, "photo.jpg", "b")
	assert.Equal(t, http.StatusBadRequest, status(err))
	assert.True(t, errors.Is(err, errors.ErrAlreadyDownloaded))
	assert.Zero(t, f.store.getCalls, "the store must not be read")

	data, _ := os.ReadFile(filepath.Join(f.downloads, "photo.jpg"))
	assert.Equal(t, "local", string(data))
}

func TestDownloadNestedKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.CreateBucket(ctx, "b"))
	f.put(t, "b", "2024/march.csv", "a,b")

	path, err := f.svc.DownloadFile(ctx, "2024/march.csv", "b")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.downloads, "2024", "march.csv"), path)
}

func TestDownloadEscapingKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.CreateBucket(ctx, "b"))
	f.put(t, "b", "../escape.txt", "x")

	_, err := f.svc.DownloadFile(ctx, "../escape.txt", "b")
	assert.Equal(t, http.StatusBadRequest, status(err))
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument))
	assert.Zero(t, f.store.getCalls)
}

// brokenBody fails after the first read.
type brokenBody struct {
	sent bool
}

func (b *brokenBody) Read(p []byte) (int, error) {
	if b.sent {
		return 0, stderrors.New("connection reset by peer")
	}
	b.sent = true
	return copy(p, "part"), nil
}

func (b *brokenBody) Close() error { return nil }

func TestDownloadStreamFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.CreateBucket(ctx, "b"))
	f.put(t, "b", "big.iso", "irrelevant")
	f.store.getBody = &brokenBody{}

	_, err := f.svc.DownloadFile(ctx, "big.iso", "b")
	assert.Equal(t, http.StatusInternalServerError, status(err))
	require.Len(t, f.rec.events, 1)
	assert.Equal(t, "DownloadFile", f.rec.events[0].Operation)
	assert.Equal(t, "big.iso", f.rec.events[0].Object)
}

func TestDownloadCancelled(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.CreateBucket(context.Background(), "b"))
	f.put(t, "b", "k.txt", "v")

	ctx, cancel := context.WithCancel(context.Background())
	f.store.getBody = io.NopCloser(&cancelOnRead{cancel: cancel})

	_, err := f.svc.DownloadFile(ctx, "k.txt", "b")
	assert.Equal(t, http.StatusInternalServerError, status(err))
	assert.True(t, stderrors.Is(err, context.Canceled))
	assert.Len(t, f.rec.events, 1)
}

// cancelOnRead yields data and cancels its context on the first read.
type cancelOnRead struct {
	cancel context.CancelFunc
}

func (c *cancelOnRead) Read(p []byte) (int, error) {
	c.cancel()
	return copy(p, "x"), nil
}

func TestFindAndListValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.FindBucket(ctx, "")
	assert.Equal(t, http.StatusBadRequest, status(err))
	_, err = f.svc.ListObjects(ctx, "  ")
	assert.Equal(t, http.StatusBadRequest, status(err))
	_, err = f.svc.FindObject(ctx, "b", "")
	assert.Equal(t, http.StatusBadRequest, status(err))
}
