// Package snapshot archives submitted frames to object storage for audit.
// Archiving is best-effort: the capture flow never waits on it and never
// fails because of it.
package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/your-org/hostelpass/internal/config"
)

type Store struct {
	client *minio.Client
	bucket string
}

func NewStore(cfg config.SnapshotConfig) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &Store{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
	}
	return nil
}

// Archive stores one submitted frame under flow/date/uuid.jpg.
func (s *Store) Archive(ctx context.Context, flow string, image []byte) error {
	key := fmt.Sprintf("%s/%s/%s.jpg", flow, time.Now().UTC().Format("2006/01/02"), uuid.New())
	reader := bytes.NewReader(image)
	_, err := s.client.PutObject(ctx, s.bucket, key, reader, int64(len(image)), minio.PutObjectOptions{
		ContentType: "image/jpeg",
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// Ping checks object storage connectivity.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}
