package server

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"net/url"

	"github.com/bucketdesk/bucketdesk/internal/errors"
	"github.com/bucketdesk/bucketdesk/internal/logging"
	"github.com/bucketdesk/bucketdesk/internal/resolver"
)

// maxBodyBytes caps request bodies; every body is a few short fields.
const maxBodyBytes = 1 << 20

// bucketRequest is the body of createBucket, deleteBucket and emptyBucket.
type bucketRequest struct {
	Bucket string `json:"bucket" validate:"required"`
}

func (b *bucketRequest) decodeForm(v url.Values) { b.Bucket = v.Get("bucket") }

// uploadRequest is the body of uploadFile. Bucket may be empty to select
// the default bucket.
type uploadRequest struct {
	FilePath string `json:"filePath" validate:"required"`
	Bucket   string `json:"bucket"`
}

func (u *uploadRequest) decodeForm(v url.Values) {
	u.FilePath = v.Get("filePath")
	u.Bucket = v.Get("bucket")
}

// downloadRequest is the body of downloadFile.
type downloadRequest struct {
	File   string `json:"file" validate:"required"`
	Bucket string `json:"bucket" validate:"required"`
}

func (d *downloadRequest) decodeForm(v url.Values) {
	d.File = v.Get("file")
	d.Bucket = v.Get("bucket")
}

// bucketQuery is the query of findBucket and listObjects.
type bucketQuery struct {
	Bucket string `validate:"required"`
}

// objectQuery is the query of findObject.
type objectQuery struct {
	Bucket string `validate:"required"`
	Object string `validate:"required"`
}

// formDecoder is implemented by bodies that can be read from a
// url-encoded form.
type formDecoder interface {
	decodeForm(url.Values)
}

// decodeBody reads a JSON or url-encoded body into dst and validates it.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst formDecoder) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return fmt.Errorf("parsing form: %w", err)
		}
		dst.decodeForm(r.PostForm)
	default:
		if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
			return fmt.Errorf("decoding JSON body: %w", err)
		}
	}
	return s.validate.Struct(dst)
}

// badRequest answers 400 for a body or query that failed to decode or
// validate.
func badRequest(w http.ResponseWriter, r *http.Request, err error) {
	logging.FromContext(r.Context()).Debug("Rejected request", "path", r.URL.Path, "error", err)
	w.WriteHeader(http.StatusBadRequest)
}

// writeError answers with the status err maps to and an empty body.
func writeError(w http.ResponseWriter, err error) {
	w.WriteHeader(errors.HTTPStatus(err))
}

// writeListing answers 200 with the names as a JSON array.
func writeListing(w http.ResponseWriter, names []string) {
	if names == nil {
		names = []string{}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(names)
}

// writeResolution answers a list endpoint: the listing, or the bare status.
func writeResolution(w http.ResponseWriter, res resolver.Resolution) {
	if res.Outcome == resolver.Listing {
		writeListing(w, res.Names)
		return
	}
	w.WriteHeader(res.Status())
}

func (s *Server) listBuckets(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.ListBuckets(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeResolution(w, res)
}

func (s *Server) findBucket(w http.ResponseWriter, r *http.Request) {
	q := bucketQuery{Bucket: r.URL.Query().Get("bucket")}
	if err := s.validate.Struct(q); err != nil {
		badRequest(w, r, err)
		return
	}
	res, err := s.svc.FindBucket(r.Context(), q.Bucket)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(res.Status())
}

func (s *Server) listObjects(w http.ResponseWriter, r *http.Request) {
	q := bucketQuery{Bucket: r.URL.Query().Get("bucket")}
	if err := s.validate.Struct(q); err != nil {
		badRequest(w, r, err)
		return
	}
	res, err := s.svc.ListObjects(r.Context(), q.Bucket)
	if err != nil {
		writeError(w, err)
		return
	}
	writeResolution(w, res)
}

func (s *Server) findObject(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	q := objectQuery{Bucket: query.Get("bucket"), Object: query.Get("object")}
	if err := s.validate.Struct(q); err != nil {
		badRequest(w, r, err)
		return
	}
	res, err := s.svc.FindObject(r.Context(), q.Bucket, q.Object)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(res.Status())
}

func (s *Server) createBucket(w http.ResponseWriter, r *http.Request) {
	var req bucketRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	if err := s.svc.CreateBucket(r.Context(), req.Bucket); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) deleteBucket(w http.ResponseWriter, r *http.Request) {
	var req bucketRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	if err := s.svc.DeleteBucket(r.Context(), req.Bucket); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) emptyBucket(w http.ResponseWriter, r *http.Request) {
	var req bucketRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	if _, err := s.svc.EmptyBucket(r.Context(), req.Bucket); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) uploadFile(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	if _, err := s.svc.UploadFile(r.Context(), req.FilePath, req.Bucket); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) downloadFile(w http.ResponseWriter, r *http.Request) {
	var req downloadRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	if _, err := s.svc.DownloadFile(r.Context(), req.File, req.Bucket); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
