// Package storage persists content files to the local disk, MinIO or SFTP.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/jonesrussell/north-cloud/progress-scraper/internal/config"
	"github.com/jonesrussell/north-cloud/progress-scraper/internal/domain"
	"github.com/jonesrussell/north-cloud/progress-scraper/internal/logger"
)

// ErrUnknownBackend is returned for an unrecognised storage backend.
var ErrUnknownBackend = errors.New("unknown storage backend")

//go:generate mockgen -destination=../../testutils/mocks/storage/mock_store.go -package=storage github.com/jonesrussell/north-cloud/progress-scraper/internal/storage Store

// Store writes named files and reports whether a name is already present.
type Store interface {
	Exists(ctx context.Context, name string) (bool, error)
	// Put stores r under name. size may be -1 when unknown.
	Put(ctx context.Context, name string, r io.Reader, size int64, contentType string) error
	Close() error
}

// Source enumerates and opens stored files.
type Source interface {
	List(ctx context.Context) ([]string, error)
	Open(ctx context.Context, name string) (io.ReadCloser, int64, error)
}

// New returns the store selected by cfg.Backend.
func New(ctx context.Context, cfg config.StorageConfig, log logger.Logger) (Store, error) {
	switch cfg.Backend {
	case config.StorageLocal, "":
		return NewLocalStore(cfg.LocalDir)
	case config.StorageMinio:
		return NewMinioStore(ctx, cfg.Minio, log)
	case config.StorageSFTP:
		return NewSFTPStore(ctx, cfg.SFTP, log)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// ContentTypeFor guesses the MIME type of a stored file from its extension.
func ContentTypeFor(name string) string {
	ext := strings.ToLower(path.Ext(name))
	for _, t := range []domain.ContentType{domain.ContentTypeText, domain.ContentTypeDocument, domain.ContentTypeVideo} {
		if t.Extension() == ext {
			return t.MIMEType()
		}
	}
	return "application/octet-stream"
}
