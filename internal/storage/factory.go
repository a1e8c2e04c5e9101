package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"reframe/internal/config"
)

// New builds the storage backend selected by STORAGE_BACKEND. Offline mode
// refuses every non-local backend.
func New(ctx context.Context) (Backend, error) {
	switch config.StorageBackend {
	case "", "local":
		return NewLocalBackend(config.MediaRoot)
	case "s3", "r2":
		if config.OfflineMode() {
			return nil, fmt.Errorf("offline mode forbids the %q storage backend", config.StorageBackend)
		}
		if config.S3Bucket == "" {
			return nil, fmt.Errorf("S3_BUCKET is required for the %q storage backend", config.StorageBackend)
		}
		backend, err := NewS3Backend(ctx, S3Config{
			Kind:            config.StorageBackend,
			Region:          config.S3Region,
			Bucket:          config.S3Bucket,
			Prefix:          config.S3Prefix,
			AccessKeyID:     config.S3AccessKeyID,
			SecretAccessKey: config.S3SecretAccessKey,
			SessionToken:    config.S3SessionToken,
			EndpointURL:     config.S3EndpointURL,
			PublicBaseURL:   config.S3PublicBaseURL,
			PresignExpiry:   time.Duration(config.S3PresignExpiresSeconds) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		return backend, nil
	}
	slog.Warn("Unknown storage backend, using local", "backend", config.StorageBackend)
	return NewLocalBackend(config.MediaRoot)
}
