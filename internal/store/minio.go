package store

import (
	"bytes"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"
)

// ArchivePrefix is the key prefix of deleted-user archives.
const ArchivePrefix = "users/"

// MinioStore wraps a MinIO client for archived user data.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore connects to MinIO and prepares the archive bucket. With
// retentionDays > 0 archives expire after that many days; otherwise they are
// kept and any expiry rule on the bucket is removed.
func NewMinioStore(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool, retentionDays int) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("minio bucket check %s: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("minio make bucket %s: %w", bucket, err)
		}
	}

	if err := client.SetBucketLifecycle(ctx, bucket, archiveLifecycle(retentionDays)); err != nil {
		return nil, fmt.Errorf("minio lifecycle %s: %w", bucket, err)
	}

	return &MinioStore{client: client, bucket: bucket}, nil
}

// archiveLifecycle returns the bucket lifecycle for user archives. An empty
// configuration clears existing rules.
func archiveLifecycle(retentionDays int) *lifecycle.Configuration {
	cfg := lifecycle.NewConfiguration()
	if retentionDays <= 0 {
		return cfg
	}
	cfg.Rules = []lifecycle.Rule{{
		ID:         "expire-user-archives",
		Status:     "Enabled",
		RuleFilter: lifecycle.Filter{Prefix: ArchivePrefix},
		Expiration: lifecycle.Expiration{Days: lifecycle.ExpirationDays(retentionDays)},
	}}
	return cfg
}

// Upload stores an archive object under key.
func (s *MinioStore) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("minio upload %s: %w", key, err)
	}
	return nil
}
