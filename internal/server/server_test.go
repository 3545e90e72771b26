package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bucketdesk/bucketdesk/internal/config"
	"github.com/bucketdesk/bucketdesk/internal/logging"
	"github.com/bucketdesk/bucketdesk/internal/metrics"
	"github.com/bucketdesk/bucketdesk/internal/operations"
	"github.com/bucketdesk/bucketdesk/internal/report"
	"github.com/bucketdesk/bucketdesk/internal/storage"
)

func init() {
	// Register metrics once for the entire test binary so that tests
	// checking /metrics output see the expected collectors.
	metrics.Register()
}

// testEnv bundles a server with the store and directories behind it.
type testEnv struct {
	srv       *Server
	store     *storage.MemoryStore
	downloads string
	logBuf    *bytes.Buffer
}

// newTestServer creates a Server backed by an in-memory store. Metrics are
// enabled and the request log writes to a buffer.
func newTestServer(t *testing.T) *testEnv {
	t.Helper()
	return newTestServerWithConfig(t, &config.Config{
		Server:        config.ServerConfig{Host: "127.0.0.1", Port: 3000},
		Observability: config.ObservabilityConfig{Metrics: true},
	})
}

// newTestServerWithConfig creates a Server for testing with a custom config.
func newTestServerWithConfig(t *testing.T, cfg *config.Config) *testEnv {
	t.Helper()
	store := storage.NewMemoryStore()
	downloads := filepath.Join(t.TempDir(), "downloads")
	svc := operations.New(store, report.New(nil), operations.Options{
		Region:        "us-east-1",
		DownloadsDir:  downloads,
		DefaultBucket: "inbox",
	}, nil)

	logBuf := &bytes.Buffer{}
	srv, err := New(cfg, WithService(svc), WithRequestLog(logging.NewRequestLog(logBuf, "bucketdesk")))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return &testEnv{srv: srv, store: store, downloads: downloads, logBuf: logBuf}
}

// testRequest sends a request through the full middleware chain.
func testRequest(t *testing.T, env *testEnv, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)
	return rec
}

// jsonRequest sends v as a JSON body.
func jsonRequest(t *testing.T, env *testEnv, method, path string, v any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	return testRequest(t, env, method, path, bytes.NewReader(data), "application/json")
}

func (env *testEnv) putObject(t *testing.T, bucket, key, data string) {
	t.Helper()
	ctx := context.Background()
	if err := env.store.CreateBucket(ctx, bucket, ""); err != nil && !errors.Is(err, storage.ErrBucketExists) {
		t.Fatalf("CreateBucket failed: %v", err)
	}
	if err := env.store.PutObject(ctx, bucket, key, strings.NewReader(data), storage.PutOptions{Size: int64(len(data))}); err != nil {
		t.Fatalf("PutObject failed: %v", err)
	}
}

func TestNewRequiresService(t *testing.T) {
	if _, err := New(&config.Config{}); err == nil {
		t.Fatal("New() without a service should fail")
	}
}

func TestRootEndpoint(t *testing.T) {
	env := newTestServer(t)
	rec := testRequest(t, env, http.MethodGet, "/", nil, "")

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("Expected empty body, got %q", rec.Body.String())
	}
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestServer(t)
	rec := testRequest(t, env, http.MethodGet, "/health", nil, "")

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	var body HealthBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to parse health response: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("Expected status 'ok', got %q", body.Status)
	}
}

func TestOpenAPIEndpoint(t *testing.T) {
	env := newTestServer(t)
	rec := testRequest(t, env, http.MethodGet, "/openapi.json", nil, "")

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "BucketDesk API") {
		t.Error("OpenAPI document should carry the API title")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestServer(t)
	testRequest(t, env, http.MethodGet, "/listBuckets", nil, "")

	rec := testRequest(t, env, http.MethodGet, "/metrics", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, name := range []string{"bucketdesk_http_requests_total", "bucketdesk_operations_total"} {
		if !strings.Contains(body, name) {
			t.Errorf("Expected %s in metrics output", name)
		}
	}
}

func TestMetricsDisabled(t *testing.T) {
	env := newTestServerWithConfig(t, &config.Config{})
	rec := testRequest(t, env, http.MethodGet, "/metrics", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 with metrics disabled, got %d", rec.Code)
	}
}

func TestRequestIDHeader(t *testing.T) {
	env := newTestServer(t)

	rec := testRequest(t, env, http.MethodGet, "/", nil, "")
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("Expected a generated X-Request-Id")
	}
	if got := rec.Header().Get("Server"); got != "BucketDesk" {
		t.Errorf("Server header = %q, want BucketDesk", got)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "caller-chosen")
	rec = httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-Id"); got != "caller-chosen" {
		t.Errorf("X-Request-Id = %q, want caller-chosen", got)
	}
}

func TestRequestLogLines(t *testing.T) {
	env := newTestServer(t)
	testRequest(t, env, http.MethodGet, "/findBucket?bucket=ghost", nil, "")

	out := env.logBuf.String()
	if !strings.HasPrefix(out, "Logs for Server-Side Application: 'bucketdesk'") {
		t.Errorf("request log should start with the header line, got %q", out)
	}
	for _, want := range []string{
		"Request Made: GET /findBucket",
		"Request Completed:",
		"method=GET",
		"url=\"/findBucket?bucket=ghost\"",
		"type=HTTP",
		"status=404",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("request log missing %q:\n%s", want, out)
		}
	}
}

func TestListBuckets(t *testing.T) {
	env := newTestServer(t)

	rec := testRequest(t, env, http.MethodGet, "/listBuckets", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("empty store: status = %d, want 404", rec.Code)
	}

	env.putObject(t, "beta", "x", "1")
	env.putObject(t, "alpha", "y", "2")

	rec = testRequest(t, env, http.MethodGet, "/listBuckets", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var names []string
	if err := json.Unmarshal(rec.Body.Bytes(), &names); err != nil {
		t.Fatalf("listing is not a JSON array: %v", err)
	}
	if len(names) != 2 {
		t.Errorf("names = %v, want two buckets", names)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestFindBucket(t *testing.T) {
	env := newTestServer(t)
	env.putObject(t, "photos", "cat.jpg", "meow")

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"found", "?bucket=photos", http.StatusOK},
		{"missing", "?bucket=videos", http.StatusNotFound},
		{"no bucket parameter", "", http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := testRequest(t, env, http.MethodGet, "/findBucket"+tc.query, nil, "")
			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestListObjects(t *testing.T) {
	env := newTestServer(t)
	env.putObject(t, "docs", "a.txt", "a")
	env.putObject(t, "docs", "b.txt", "b")

	rec := testRequest(t, env, http.MethodGet, "/listObjects?bucket=docs", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var keys []string
	if err := json.Unmarshal(rec.Body.Bytes(), &keys); err != nil {
		t.Fatalf("listing is not a JSON array: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("keys = %v, want two keys", keys)
	}

	rec = testRequest(t, env, http.MethodGet, "/listObjects?bucket=nowhere", nil, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing bucket: status = %d, want 400", rec.Code)
	}
}

func TestFindObject(t *testing.T) {
	env := newTestServer(t)
	env.putObject(t, "docs", "report.pdf", "pdf")

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"exact", "?bucket=docs&object=report.pdf", http.StatusOK},
		{"case and extension insensitive", "?bucket=docs&object=" + url.QueryEscape(" REPORT.docx "), http.StatusOK},
		{"missing object", "?bucket=docs&object=summary", http.StatusNotFound},
		{"missing bucket", "?bucket=nowhere&object=report", http.StatusBadRequest},
		{"no object parameter", "?bucket=docs", http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := testRequest(t, env, http.MethodGet, "/findObject"+tc.query, nil, "")
			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestCreateBucket(t *testing.T) {
	env := newTestServer(t)

	rec := jsonRequest(t, env, http.MethodPost, "/createBucket", map[string]string{"bucket": "My Bucket"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	names, _ := env.store.ListBuckets(context.Background())
	if len(names) != 1 || names[0] != "my-bucket" {
		t.Errorf("buckets = %v, want [my-bucket]", names)
	}

	rec = jsonRequest(t, env, http.MethodPost, "/createBucket", map[string]string{"bucket": "my-bucket"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("duplicate: status = %d, want 400", rec.Code)
	}
}

func TestCreateBucketFormBody(t *testing.T) {
	env := newTestServer(t)

	form := url.Values{"bucket": {"invoices"}}
	rec := testRequest(t, env, http.MethodPost, "/createBucket", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	names, _ := env.store.ListBuckets(context.Background())
	if len(names) != 1 || names[0] != "invoices" {
		t.Errorf("buckets = %v, want [invoices]", names)
	}
}

func TestBodyValidation(t *testing.T) {
	env := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"create without bucket", http.MethodPost, "/createBucket", `{}`},
		{"create with broken JSON", http.MethodPost, "/createBucket", `{"bucket":`},
		{"delete without bucket", http.MethodDelete, "/deleteBucket", `{"bucket":""}`},
		{"empty without bucket", http.MethodDelete, "/emptyBucket", `{}`},
		{"upload without path", http.MethodPost, "/uploadFile", `{"bucket":"b"}`},
		{"download without file", http.MethodPost, "/downloadFile", `{"bucket":"b"}`},
		{"download without bucket", http.MethodPost, "/downloadFile", `{"file":"f"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := testRequest(t, env, tc.method, tc.path, strings.NewReader(tc.body), "application/json")
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestWrongMethod(t *testing.T) {
	env := newTestServer(t)
	rec := testRequest(t, env, http.MethodGet, "/createBucket", nil, "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestDeleteBucket(t *testing.T) {
	env := newTestServer(t)
	env.putObject(t, "full", "a.txt", "a")
	if err := env.store.CreateBucket(context.Background(), "empty", ""); err != nil {
		t.Fatalf("CreateBucket failed: %v", err)
	}

	rec := jsonRequest(t, env, http.MethodDelete, "/deleteBucket", map[string]string{"bucket": "full"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("non-empty: status = %d, want 400", rec.Code)
	}
	rec = jsonRequest(t, env, http.MethodDelete, "/deleteBucket", map[string]string{"bucket": "empty"})
	if rec.Code != http.StatusOK {
		t.Errorf("empty: status = %d, want 200", rec.Code)
	}
	rec = jsonRequest(t, env, http.MethodDelete, "/deleteBucket", map[string]string{"bucket": "empty"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("gone: status = %d, want 400", rec.Code)
	}
}

func TestEmptyBucket(t *testing.T) {
	env := newTestServer(t)
	env.putObject(t, "b", "1.txt", "1")
	env.putObject(t, "b", "2.txt", "2")

	rec := jsonRequest(t, env, http.MethodDelete, "/emptyBucket", map[string]string{"bucket": "b"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	keys, _ := env.store.ListObjects(context.Background(), "b")
	if len(keys) != 0 {
		t.Errorf("bucket still holds %v", keys)
	}

	rec = jsonRequest(t, env, http.MethodDelete, "/emptyBucket", map[string]string{"bucket": "b"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("already empty: status = %d, want 400", rec.Code)
	}
}

func TestUploadAndDownloadFile(t *testing.T) {
	env := newTestServer(t)
	if err := env.store.CreateBucket(context.Background(), "docs", ""); err != nil {
		t.Fatalf("CreateBucket failed: %v", err)
	}

	local := filepath.Join(t.TempDir(), "Notes.txt")
	if err := os.WriteFile(local, []byte("remember the milk"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	rec := jsonRequest(t, env, http.MethodPost, "/uploadFile", map[string]string{"filePath": local, "bucket": "docs"})
	if rec.Code != http.StatusOK {
		t.Fatalf("upload: status = %d, want 200", rec.Code)
	}
	rec = jsonRequest(t, env, http.MethodPost, "/uploadFile", map[string]string{"filePath": local, "bucket": "docs"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("second upload: status = %d, want 400", rec.Code)
	}

	rec = jsonRequest(t, env, http.MethodPost, "/downloadFile", map[string]string{"file": "notes", "bucket": "docs"})
	if rec.Code != http.StatusOK {
		t.Fatalf("download: status = %d, want 200", rec.Code)
	}
	data, err := os.ReadFile(filepath.Join(env.downloads, "Notes.txt"))
	if err != nil {
		t.Fatalf("downloaded file missing: %v", err)
	}
	if string(data) != "remember the milk" {
		t.Errorf("downloaded = %q", data)
	}

	rec = jsonRequest(t, env, http.MethodPost, "/downloadFile", map[string]string{"file": "notes", "bucket": "docs"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("second download: status = %d, want 400", rec.Code)
	}
}

func TestUploadFileDefaultBucket(t *testing.T) {
	env := newTestServer(t)
	if err := env.store.CreateBucket(context.Background(), "inbox", ""); err != nil {
		t.Fatalf("CreateBucket failed: %v", err)
	}
	local := filepath.Join(t.TempDir(), "scan.png")
	if err := os.WriteFile(local, []byte("png"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	rec := jsonRequest(t, env, http.MethodPost, "/uploadFile", map[string]string{"filePath": local})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	keys, _ := env.store.ListObjects(context.Background(), "inbox")
	if len(keys) != 1 || keys[0] != "scan.png" {
		t.Errorf("inbox = %v, want [scan.png]", keys)
	}
}

func TestUploadMissingLocalFile(t *testing.T) {
	env := newTestServer(t)
	if err := env.store.CreateBucket(context.Background(), "docs", ""); err != nil {
		t.Fatalf("CreateBucket failed: %v", err)
	}
	rec := jsonRequest(t, env, http.MethodPost, "/uploadFile", map[string]string{
		"filePath": filepath.Join(t.TempDir(), "absent.txt"),
		"bucket":   "docs",
	})
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}
