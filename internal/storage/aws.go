// The S3 store talks to Amazon S3 (or any endpoint speaking the S3 API)
// through the AWS SDK for Go v2. Credentials come from the config when both
// keys are set, otherwise from the standard AWS credential chain (env vars,
// ~/.aws/credentials, IAM role, etc.).

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3API defines the subset of the AWS S3 client the store uses. This allows
// mocking in tests.
type S3API interface {
	ListBuckets(ctx context.Context, params *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	DeleteBucket(ctx context.Context, params *s3.DeleteBucketInput, optFns ...func(*s3.Options)) (*s3.DeleteBucketOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Options configures NewS3Store.
type S3Options struct {
	Region          string
	EndpointURL     string
	UsePathStyle    bool
	AccessKeyID     string
	SecretAccessKey string
}

// S3Store implements ObjectStore against Amazon S3.
type S3Store struct {
	// Region is the client region. Buckets created in us-east-1 carry no
	// location constraint, as S3 requires.
	Region string
	client S3API
}

// NewS3Store loads AWS configuration and builds an S3 client, with optional
// overrides for custom endpoint, path-style addressing and static
// credentials.
func NewS3Store(ctx context.Context, opts S3Options) (*S3Store, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))

	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if opts.EndpointURL != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(opts.EndpointURL)
		})
	}
	if opts.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	slog.Info("Configured AWS S3", "region", opts.Region, "endpoint", opts.EndpointURL)
	return NewS3StoreWithClient(opts.Region, s3.NewFromConfig(cfg, s3Opts...)), nil
}

// NewS3StoreWithClient creates an S3Store with a pre-configured client. This
// is primarily used for testing with mock clients.
func NewS3StoreWithClient(region string, client S3API) *S3Store {
	return &S3Store{Region: region, client: client}
}

func (s *S3Store) ListBuckets(ctx context.Context) ([]string, error) {
	out, err := s.client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, fmt.Errorf("listing S3 buckets: %w", err)
	}
	names := make([]string, 0, len(out.Buckets))
	for _, b := range out.Buckets {
		if b.Name == nil {
			continue
		}
		names = append(names, *b.Name)
	}
	return names, nil
}

func (s *S3Store) ListObjects(ctx context.Context, bucket string) ([]string, error) {
	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		if isAWSNotFound(err) {
			return nil, fmt.Errorf("listing %q: %w", bucket, ErrBucketNotFound)
		}
		return nil, fmt.Errorf("listing S3 objects in %q: %w", bucket, err)
	}
	keys := make([]string, 0, len(out.Contents))
	for _, obj := range out.Contents {
		if obj.Key == nil {
			continue
		}
		keys = append(keys, *obj.Key)
	}
	return keys, nil
}

func (s *S3Store) CreateBucket(ctx context.Context, bucket, region string) error {
	input := &s3.CreateBucketInput{Bucket: aws.String(bucket)}
	if region != "" && region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(region),
		}
	}
	if _, err := s.client.CreateBucket(ctx, input); err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		var exists *types.BucketAlreadyExists
		if errors.As(err, &owned) || errors.As(err, &exists) {
			return fmt.Errorf("creating %q: %w", bucket, ErrBucketExists)
		}
		return fmt.Errorf("creating S3 bucket %q: %w", bucket, err)
	}
	return nil
}

func (s *S3Store) DeleteBucket(ctx context.Context, bucket string) error {
	if _, err := s.client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(bucket)}); err != nil {
		if apiErrorCode(err) == "BucketNotEmpty" {
			return fmt.Errorf("deleting %q: %w", bucket, ErrBucketNotEmpty)
		}
		if isAWSNotFound(err) {
			return fmt.Errorf("deleting %q: %w", bucket, ErrBucketNotFound)
		}
		return fmt.Errorf("deleting S3 bucket %q: %w", bucket, err)
	}
	return nil
}

// DeleteObjects issues a single DeleteObjects call. Per-key failures in the
// response are reported as one error.
func (s *S3Store) DeleteObjects(ctx context.Context, batch BatchDelete) (int, error) {
	if batch.Len() == 0 {
		return 0, nil
	}
	ids := make([]types.ObjectIdentifier, 0, batch.Len())
	for _, k := range batch.Keys {
		ids = append(ids, types.ObjectIdentifier{Key: aws.String(k)})
	}
	out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(batch.Bucket),
		Delete: &types.Delete{Objects: ids},
	})
	if err != nil {
		return 0, fmt.Errorf("batch deleting from S3 bucket %q: %w", batch.Bucket, err)
	}
	for _, d := range out.Deleted {
		slog.Debug("Deleted object", "bucket", batch.Bucket, "key", aws.ToString(d.Key))
	}
	if len(out.Errors) > 0 {
		first := out.Errors[0]
		return len(out.Deleted), fmt.Errorf("batch delete from %q failed for %d keys, first %q: %s",
			batch.Bucket, len(out.Errors), aws.ToString(first.Key), aws.ToString(first.Message))
	}
	return len(out.Deleted), nil
}

func (s *S3Store) PutObject(ctx context.Context, bucket, key string, r io.Reader, opts PutOptions) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   r,
	}
	if opts.Size >= 0 {
		input.ContentLength = aws.Int64(opts.Size)
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	if opts.ServerSideEncryption != "" {
		input.ServerSideEncryption = types.ServerSideEncryption(opts.ServerSideEncryption)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("uploading to S3 %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *S3Store) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isAWSNotFound(err) {
			return nil, fmt.Errorf("getting %s/%s: %w", bucket, key, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("getting object from S3: %w", err)
	}
	return out.Body, nil
}

func (s *S3Store) Close() error { return nil }

// apiErrorCode returns the smithy error code of err, or "".
func apiErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// isAWSNotFound checks if an AWS error is a 404/NoSuchKey/NoSuchBucket error.
func isAWSNotFound(err error) bool {
	switch apiErrorCode(err) {
	case "NoSuchKey", "NotFound", "404", "NoSuchBucket":
		return true
	}
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &noSuchBucket) {
		return true
	}
	var respErr interface{ HTTPStatusCode() int }
	if errors.As(err, &respErr) {
		if respErr.HTTPStatusCode() == 404 {
			return true
		}
	}
	return false
}

var _ ObjectStore = (*S3Store)(nil)
