// The Azure store maps buckets to Blob Storage containers and objects to
// blobs. Credentials come from a connection string, managed identity, or
// DefaultAzureCredential (env vars, Azure CLI, etc.).

package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"golang.org/x/sync/errgroup"
)

// AzureBlobAPI defines the subset of the Azure Blob Storage client the store
// uses. This allows mocking in tests.
type AzureBlobAPI interface {
	// ListContainers returns all container names in the account.
	ListContainers(ctx context.Context) ([]string, error)
	// CreateContainer creates a container.
	CreateContainer(ctx context.Context, containerName string) error
	// DeleteContainer deletes a container.
	DeleteContainer(ctx context.Context, containerName string) error
	// ListBlobs returns the blob names in a container.
	ListBlobs(ctx context.Context, containerName string) ([]string, error)
	// UploadStream uploads body to a blob, overwriting if it already exists.
	UploadStream(ctx context.Context, containerName, blobName string, body io.Reader) error
	// DownloadStream opens a blob for reading.
	DownloadStream(ctx context.Context, containerName, blobName string) (io.ReadCloser, error)
	// DeleteBlob deletes a blob.
	DeleteBlob(ctx context.Context, containerName, blobName string) error
}

// AzureStore implements ObjectStore against Azure Blob Storage. Azure
// encrypts at rest and has no regions per container, so the region and
// encryption settings are ignored.
type AzureStore struct {
	// AccountURL is the storage account URL (e.g. https://account.blob.core.windows.net).
	AccountURL string
	client     AzureBlobAPI
}

// NewAzureStore creates an Azure Blob client for the account.
func NewAzureStore(accountURL, connectionString string, useManagedIdentity bool) (*AzureStore, error) {
	client, err := newRealAzureClient(accountURL, connectionString, useManagedIdentity)
	if err != nil {
		return nil, fmt.Errorf("creating Azure client: %w", err)
	}
	slog.Info("Configured Azure Blob Storage", "account", accountURL)
	return NewAzureStoreWithClient(accountURL, client), nil
}

// NewAzureStoreWithClient creates an AzureStore with a pre-configured client.
// This is primarily used for testing with mock clients.
func NewAzureStoreWithClient(accountURL string, client AzureBlobAPI) *AzureStore {
	return &AzureStore{AccountURL: accountURL, client: client}
}

func (s *AzureStore) ListBuckets(ctx context.Context) ([]string, error) {
	names, err := s.client.ListContainers(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing Azure containers: %w", err)
	}
	return names, nil
}

func (s *AzureStore) ListObjects(ctx context.Context, bucket string) ([]string, error) {
	names, err := s.client.ListBlobs(ctx, bucket)
	if err != nil {
		if bloberror.HasCode(err, bloberror.ContainerNotFound) {
			return nil, fmt.Errorf("listing %q: %w", bucket, ErrBucketNotFound)
		}
		return nil, fmt.Errorf("listing Azure blobs in %q: %w", bucket, err)
	}
	return names, nil
}

func (s *AzureStore) CreateBucket(ctx context.Context, bucket, region string) error {
	if err := s.client.CreateContainer(ctx, bucket); err != nil {
		if bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
			return fmt.Errorf("creating %q: %w", bucket, ErrBucketExists)
		}
		return fmt.Errorf("creating Azure container %q: %w", bucket, err)
	}
	return nil
}

func (s *AzureStore) DeleteBucket(ctx context.Context, bucket string) error {
	if err := s.client.DeleteContainer(ctx, bucket); err != nil {
		if bloberror.HasCode(err, bloberror.ContainerNotFound) {
			return fmt.Errorf("deleting %q: %w", bucket, ErrBucketNotFound)
		}
		return fmt.Errorf("deleting Azure container %q: %w", bucket, err)
	}
	return nil
}

// DeleteObjects deletes the batch with bounded parallel calls. Blobs already
// gone count as deleted.
func (s *AzureStore) DeleteObjects(ctx context.Context, batch BatchDelete) (int, error) {
	var deleted atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(deleteConcurrency)
	for _, key := range batch.Keys {
		key := key
		g.Go(func() error {
			err := s.client.DeleteBlob(ctx, batch.Bucket, key)
			if err != nil && !bloberror.HasCode(err, bloberror.BlobNotFound) {
				return fmt.Errorf("deleting Azure blob %s/%s: %w", batch.Bucket, key, err)
			}
			deleted.Add(1)
			return nil
		})
	}
	err := g.Wait()
	return int(deleted.Load()), err
}

func (s *AzureStore) PutObject(ctx context.Context, bucket, key string, r io.Reader, opts PutOptions) error {
	if err := s.client.UploadStream(ctx, bucket, key, r); err != nil {
		return fmt.Errorf("uploading to Azure Blob %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *AzureStore) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	rc, err := s.client.DownloadStream(ctx, bucket, key)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, fmt.Errorf("getting %s/%s: %w", bucket, key, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("getting object from Azure Blob: %w", err)
	}
	return rc, nil
}

func (s *AzureStore) Close() error { return nil }

var _ ObjectStore = (*AzureStore)(nil)
