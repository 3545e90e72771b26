package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bucketdesk/bucketdesk/internal/config"
)

// Open builds the ObjectStore selected by cfg.Backend.
func Open(ctx context.Context, cfg config.StorageConfig) (ObjectStore, error) {
	switch cfg.Backend {
	case "aws":
		return NewS3Store(ctx, S3Options{
			Region:          cfg.Region,
			EndpointURL:     cfg.AWS.EndpointURL,
			UsePathStyle:    cfg.AWS.UsePathStyle,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
		})
	case "gcp":
		if cfg.GCP.Project == "" {
			return nil, fmt.Errorf("storage.gcp.project is required when backend is 'gcp'")
		}
		return NewGCSStore(ctx, cfg.GCP.Project, cfg.GCP.CredentialsFile)
	case "azure":
		if cfg.Azure.AccountURL == "" && cfg.Azure.ConnectionString == "" {
			return nil, fmt.Errorf("storage.azure.account_url or storage.azure.connection_string is required when backend is 'azure'")
		}
		return NewAzureStore(cfg.Azure.AccountURL, cfg.Azure.ConnectionString, cfg.Azure.UseManagedIdentity)
	case "minio":
		if cfg.Minio.Endpoint == "" {
			return nil, fmt.Errorf("storage.minio.endpoint is required when backend is 'minio'")
		}
		return NewMinioStore(cfg.Minio.Endpoint, cfg.Minio.AccessKey, cfg.Minio.SecretKey, cfg.Region, cfg.Minio.UseSSL)
	case "local":
		store, err := NewLocalStore(cfg.Local.RootDir)
		if err != nil {
			return nil, err
		}
		if err := store.CleanTempFiles(); err != nil {
			slog.Warn("Failed to clean temp files", "error", err)
		}
		return store, nil
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
