package operations

import (
	"context"

	"github.com/bucketdesk/bucketdesk/internal/errors"
	"github.com/bucketdesk/bucketdesk/internal/resolver"
)

// CreateBucket creates the bucket raw normalizes to, in the configured
// region. An existing bucket is a conflict.
func (s *Service) CreateBucket(ctx context.Context, raw string) (err error) {
	defer func() { observe("CreateBucket", err) }()

	name, err := bucketName(raw)
	if err != nil {
		return err
	}
	log := s.log(ctx).With("bucket", name)
	log.Info("Create bucket")

	res, err := s.resolver.Buckets(ctx, name)
	if err != nil {
		return err
	}
	if res.Outcome == resolver.Found {
		log.Info("Bucket already exists, failed to create a new bucket")
		return errors.ErrBucketExists.WithMessage("bucket %q already exists", name)
	}

	if err := s.store.CreateBucket(ctx, name.String(), s.opts.Region); err != nil {
		return s.fail(ctx, "CreateBucket", name.String(), "", err)
	}
	log.Info("Successfully created bucket", "region", s.opts.Region)
	return nil
}

// DeleteBucket deletes an empty bucket. A bucket holding objects is a
// conflict and no delete is sent to the store.
func (s *Service) DeleteBucket(ctx context.Context, raw string) (err error) {
	defer func() { observe("DeleteBucket", err) }()

	name, err := bucketName(raw)
	if err != nil {
		return err
	}
	log := s.log(ctx).With("bucket", name)
	log.Info("Delete bucket")

	res, err := s.resolver.Objects(ctx, name, "")
	if err != nil {
		return err
	}
	if res.Outcome != resolver.NotFound {
		log.Info("Bucket is not empty, failed to delete")
		return errors.ErrBucketNotEmpty.WithMessage("bucket %q holds %d objects", name, len(res.Names))
	}

	if err := s.store.DeleteBucket(ctx, name.String()); err != nil {
		return s.fail(ctx, "DeleteBucket", name.String(), "", err)
	}
	log.Info("Successfully deleted bucket")
	return nil
}

// EmptyBucket deletes every object in a bucket with one batch delete and
// returns how many were removed. Emptying an empty bucket is a conflict.
func (s *Service) EmptyBucket(ctx context.Context, raw string) (n int, err error) {
	defer func() { observe("EmptyBucket", err) }()

	name, err := bucketName(raw)
	if err != nil {
		return 0, err
	}
	log := s.log(ctx).With("bucket", name)
	log.Info("Empty bucket")

	batch, err := s.resolver.EmptyBatch(ctx, name)
	if err != nil {
		return 0, err
	}
	if batch.Len() == 0 {
		log.Info("Bucket already empty, failed to empty bucket")
		return 0, errors.ErrBucketAlreadyEmpty.WithMessage("bucket %q is already empty", name)
	}

	log.Info("Emptying bucket", "objects", batch.Len())
	n, err = s.store.DeleteObjects(ctx, batch)
	if err != nil {
		return n, s.fail(ctx, "EmptyBucket", name.String(), "", err)
	}
	log.Info("Successfully emptied bucket", "deleted", n)
	return n, nil
}
