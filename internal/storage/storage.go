package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/lgfreitas/eproc-monitor/internal/config"
	"github.com/lgfreitas/eproc-monitor/pkg/logger"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// BlobStore persists document bytes and issues signed retrieval URLs
type BlobStore struct {
	client *minio.Client
	bucket string
	logger *logger.Logger
}

// NewBlobStore connects to the object store and ensures the bucket exists
func NewBlobStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (*BlobStore, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.MinioBucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.MinioBucket, err)
		}
		log.Info("Created storage bucket", "bucket", cfg.MinioBucket)
	}

	return &BlobStore{client: client, bucket: cfg.MinioBucket, logger: log}, nil
}

// Upload writes the given bytes to the deterministic storage path.
// Overwrites are allowed; the record store is the de-duplication authority.
func (b *BlobStore) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	_, err := b.client.PutObject(ctx, b.bucket, path, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", path, err)
	}
	b.logger.Debug("Uploaded blob", "path", path, "size", len(data), "contentType", contentType)
	return nil
}

// SignedURL issues a time-limited retrieval URL for a stored object
func (b *BlobStore) SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	u, err := b.client.PresignedGetObject(ctx, b.bucket, path, ttl, nil)
	if err != nil {
		return "", fmt.Errorf("failed to sign URL for %s: %w", path, err)
	}
	return u.String(), nil
}

// Exists reports whether an object is present at the given path
func (b *BlobStore) Exists(ctx context.Context, path string) (bool, error) {
	_, err := b.client.StatObject(ctx, b.bucket, path, minio.StatObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return true, nil
}

// List returns the paths of all objects under a prefix
func (b *BlobStore) List(ctx context.Context, prefix string) ([]string, error) {
	var paths []string
	for obj := range b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", prefix, obj.Err)
		}
		paths = append(paths, obj.Key)
	}
	return paths, nil
}

// Delete removes a stored object
func (b *BlobStore) Delete(ctx context.Context, path string) error {
	if err := b.client.RemoveObject(ctx, b.bucket, path, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	return nil
}
