package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/jonesrussell/north-cloud/progress-scraper/internal/config"
	"github.com/jonesrussell/north-cloud/progress-scraper/internal/logger"
	"github.com/jonesrussell/north-cloud/progress-scraper/internal/retry"
)

// MinioStore keeps files as objects in a single bucket.
type MinioStore struct {
	client *miniogo.Client
	cfg    config.MinioConfig
	log    logger.Logger
}

// NewMinioStore connects to MinIO and creates the bucket if it is missing.
func NewMinioStore(ctx context.Context, cfg config.MinioConfig, log logger.Logger) (*MinioStore, error) {
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err = client.MakeBucket(ctx, cfg.Bucket, miniogo.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.Bucket, err)
		}
		log.Info("Created bucket", logger.String("bucket", cfg.Bucket))
	}

	log.Info("MinIO store initialized",
		logger.String("endpoint", cfg.Endpoint),
		logger.String("bucket", cfg.Bucket),
	)
	return &MinioStore{client: client, cfg: cfg, log: log}, nil
}

// Exists implements Store.
func (s *MinioStore) Exists(ctx context.Context, name string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.cfg.Bucket, name, miniogo.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat object %s: %w", name, err)
}

func isNotFound(err error) bool {
	resp := miniogo.ToErrorResponse(err)
	return resp.StatusCode == http.StatusNotFound || resp.Code == "NoSuchKey"
}

// Put uploads r. Seekable readers are rewound and retried on transient
// failures; anything else gets a single attempt.
func (s *MinioStore) Put(ctx context.Context, name string, r io.Reader, size int64, contentType string) error {
	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = max(1, s.cfg.MaxRetries)
	seeker, seekable := r.(io.Seeker)
	if !seekable {
		cfg.MaxAttempts = 1
	}

	attempt := 0
	err := retry.Do(ctx, cfg, func() error {
		attempt++
		if attempt > 1 {
			if _, err := seeker.Seek(0, io.SeekStart); err != nil {
				return fmt.Errorf("failed to rewind %s: %w", name, err)
			}
		}

		uploadCtx, cancel := s.uploadContext(ctx)
		defer cancel()

		_, err := s.client.PutObject(uploadCtx, s.cfg.Bucket, name, r, size,
			miniogo.PutObjectOptions{ContentType: contentType})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", name, err)
	}

	s.log.Debug("Uploaded object",
		logger.String("bucket", s.cfg.Bucket),
		logger.String("name", name),
		logger.Int64("size", size),
	)
	return nil
}

func (s *MinioStore) uploadContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.UploadTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.UploadTimeout)
}

// Close implements Store.
func (s *MinioStore) Close() error {
	return nil
}
