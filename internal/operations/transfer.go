package operations

import (
	"context"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/bucketdesk/bucketdesk/internal/errors"
	"github.com/bucketdesk/bucketdesk/internal/metrics"
	"github.com/bucketdesk/bucketdesk/internal/naming"
	"github.com/bucketdesk/bucketdesk/internal/resolver"
	"github.com/bucketdesk/bucketdesk/internal/storage"
)

// UploadFile uploads the local file at localPath into a bucket, keyed by
// the file's base name, and returns the key. An empty rawBucket selects the
// default bucket. A bucket already holding an object with the same search
// term is a conflict.
func (s *Service) UploadFile(ctx context.Context, localPath, rawBucket string) (key string, err error) {
	defer func() { observe("UploadFile", err) }()

	if strings.TrimSpace(localPath) == "" {
		return "", errors.ErrInvalidArgument.WithMessage("file path is required")
	}
	if strings.TrimSpace(rawBucket) == "" {
		rawBucket = s.opts.DefaultBucket
	}
	name, err := bucketName(rawBucket)
	if err != nil {
		return "", err
	}
	key = filepath.Base(localPath)
	log := s.log(ctx).With("bucket", name, "file", localPath)
	log.Info("Upload file")

	res, err := s.resolver.Objects(ctx, name, key)
	if err != nil {
		if errors.Is(err, errors.ErrNoSuchBucket) {
			log.Info("Bucket does not exist, failed to upload")
		}
		return "", err
	}
	if res.Outcome == resolver.Found {
		log.Info("File already in bucket, failed to upload", "key", res.Key)
		return "", errors.ErrObjectExists.WithMessage("bucket %q already holds %q", name, res.Key)
	}

	f, err := os.Open(localPath)
	if err != nil {
		return "", s.fail(ctx, "UploadFile", name.String(), key, err)
	}
	defer f.Close()

	size := int64(-1)
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}

	// f goes to the store unwrapped; S3 needs a seekable body.
	err = s.store.PutObject(ctx, name.String(), key, f, storage.PutOptions{
		Size:                 size,
		ContentType:          mime.TypeByExtension(filepath.Ext(key)),
		ServerSideEncryption: s.opts.Encryption,
	})
	if err != nil {
		return "", s.fail(ctx, "UploadFile", name.String(), key, err)
	}
	if size > 0 {
		metrics.TransferBytesTotal.WithLabelValues(metrics.DirectionUpload).Add(float64(size))
	}
	log.Info("Successfully uploaded file", "key", key, "size", size)
	return key, nil
}

// DownloadFile finds remoteName in a bucket (ignoring case and extension),
// streams the matched object into the downloads directory and returns the
// local path. A file already present locally is a conflict and the store is
// not read. A failed stream leaves whatever bytes arrived.
func (s *Service) DownloadFile(ctx context.Context, remoteName, rawBucket string) (path string, err error) {
	defer func() { observe("DownloadFile", err) }()

	if strings.TrimSpace(remoteName) == "" {
		return "", errors.ErrInvalidArgument.WithMessage("file name is required")
	}
	name, err := bucketName(rawBucket)
	if err != nil {
		return "", err
	}
	log := s.log(ctx).With("bucket", name, "file", remoteName)

	res, err := s.resolver.Objects(ctx, name, remoteName)
	if err != nil {
		if errors.Is(err, errors.ErrNoSuchBucket) {
			log.Info("Bucket does not exist, failed to download")
		}
		return "", err
	}
	if res.Outcome != resolver.Found {
		log.Info("Bucket does not contain file, failed to download")
		return "", errors.ErrNoSuchObject.WithMessage("bucket %q does not contain %q", name, naming.SearchTerm(remoteName))
	}
	key := res.Key
	log = log.With("key", key)
	log.Info("Download file")

	rel := filepath.FromSlash(key)
	if !filepath.IsLocal(rel) {
		return "", errors.ErrInvalidArgument.WithMessage("key %q does not name a local path", key)
	}
	path = filepath.Join(s.opts.DownloadsDir, rel)

	if _, err := os.Lstat(path); err == nil {
		log.Info("File already exists locally, failed to download", "path", path)
		return "", errors.ErrAlreadyDownloaded.WithMessage("%q already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", s.fail(ctx, "DownloadFile", name.String(), key, err)
	}

	rc, err := s.store.GetObject(ctx, name.String(), key)
	if err != nil {
		return "", s.fail(ctx, "DownloadFile", name.String(), key, err)
	}
	defer rc.Close()

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return "", errors.ErrAlreadyDownloaded.WithMessage("%q already exists", path)
		}
		return "", s.fail(ctx, "DownloadFile", name.String(), key, err)
	}

	n, err := storage.Copy(ctx, f, rc)
	metrics.TransferBytesTotal.WithLabelValues(metrics.DirectionDownload).Add(float64(n))
	if err != nil {
		f.Close()
		return "", s.fail(ctx, "DownloadFile", name.String(), key, err)
	}
	if err := f.Close(); err != nil {
		return "", s.fail(ctx, "DownloadFile", name.String(), key, err)
	}
	log.Info("Successfully downloaded file", "path", path, "size", n)
	return path, nil
}
