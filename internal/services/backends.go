package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/productprogress/internal/gcp"
	"github.com/Lllllllleong/productprogress/internal/s3compat"
	"github.com/Lllllllleong/productprogress/internal/store"
)

// BackendConfig selects and configures the document and object stores.
type BackendConfig struct {
	ProjectID      string
	Bucket         string
	StorageBackend string
	S3             s3compat.Config
}

func loadBackendConfig() (*BackendConfig, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	bucket := gcp.GetEnv("STORAGE_BUCKET", "")
	if bucket == "" {
		return nil, fmt.Errorf("STORAGE_BUCKET environment variable must be set")
	}

	config := &BackendConfig{
		ProjectID:      projectID,
		Bucket:         bucket,
		StorageBackend: gcp.GetEnv("STORAGE_BACKEND", "gcs"),
	}
	switch config.StorageBackend {
	case "gcs":
	case "s3":
		config.S3 = s3compat.Config{
			Endpoint:   gcp.GetEnv("S3_ENDPOINT", ""),
			AccessKey:  gcp.GetEnv("S3_ACCESS_KEY", ""),
			SecretKey:  gcp.GetEnv("S3_SECRET_KEY", ""),
			Bucket:     bucket,
			PublicBase: gcp.GetEnv("S3_PUBLIC_BASE", ""),
			UseSSL:     gcp.GetEnvBool("S3_USE_SSL", true),
		}
		if config.S3.Endpoint == "" || config.S3.PublicBase == "" {
			return nil, fmt.Errorf("S3_ENDPOINT and S3_PUBLIC_BASE must be set when STORAGE_BACKEND is s3")
		}
	default:
		return nil, fmt.Errorf("STORAGE_BACKEND must be gcs or s3, got %q", config.StorageBackend)
	}
	return config, nil
}

// Backends are the store clients shared by every function in a process.
type Backends struct {
	Docs    store.DocumentStore
	Objects store.ObjectStore
	Config  BackendConfig
	closers []func() error
}

// NewBackends connects to Firestore and to the configured object store.
func NewBackends(ctx context.Context) (*Backends, error) {
	config, err := loadBackendConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	firestoreClient, err := gcp.NewFirestoreClient(ctx, config.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	b := &Backends{
		Docs:    gcp.NewFirestoreStore(firestoreClient),
		Config:  *config,
		closers: []func() error{firestoreClient.Close},
	}

	switch config.StorageBackend {
	case "s3":
		objects, err := s3compat.New(ctx, config.S3)
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("failed to create s3 object store: %w", err)
		}
		b.Objects = objects
	default:
		storageClient, err := storage.NewClient(ctx)
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("failed to create Storage client: %w", err)
		}
		b.Objects = gcp.NewGCSStore(storageClient, config.Bucket)
		b.closers = append(b.closers, storageClient.Close)
	}

	slog.Info("Store backends initialized.", "projectId", config.ProjectID, "bucket", config.Bucket, "objectBackend", config.StorageBackend)
	return b, nil
}

// Close releases the underlying clients.
func (b *Backends) Close() error {
	var errs []error
	for _, c := range b.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
