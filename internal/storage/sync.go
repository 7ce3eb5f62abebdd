package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonesrussell/north-cloud/progress-scraper/internal/logger"
)

// SyncResult summarises a Sync run.
type SyncResult struct {
	Uploaded int
	Skipped  int
	Failed   []string
}

// Sync copies every file of src that dst does not already hold. A failing
// file is recorded and the remaining files are still copied.
func Sync(ctx context.Context, src Source, dst Store, log logger.Logger) (SyncResult, error) {
	var result SyncResult

	names, err := src.List(ctx)
	if err != nil {
		return result, err
	}

	var errs []error
	for _, name := range names {
		if err = ctx.Err(); err != nil {
			return result, err
		}

		exists, existsErr := dst.Exists(ctx, name)
		if existsErr != nil {
			result.Failed = append(result.Failed, name)
			errs = append(errs, existsErr)
			continue
		}
		if exists {
			result.Skipped++
			continue
		}

		if copyErr := copyFile(ctx, src, dst, name); copyErr != nil {
			log.Warn("Failed to sync file", logger.String("name", name), logger.Error(copyErr))
			result.Failed = append(result.Failed, name)
			errs = append(errs, copyErr)
			continue
		}
		result.Uploaded++
		log.Debug("Synced file", logger.String("name", name))
	}

	log.Info("Sync finished",
		logger.Int("uploaded", result.Uploaded),
		logger.Int("skipped", result.Skipped),
		logger.Int("failed", len(result.Failed)),
	)
	return result, errors.Join(errs...)
}

func copyFile(ctx context.Context, src Source, dst Store, name string) error {
	r, size, err := src.Open(ctx, name)
	if err != nil {
		return err
	}
	defer r.Close()

	if err = dst.Put(ctx, name, r, size, ContentTypeFor(name)); err != nil {
		return fmt.Errorf("failed to put %s: %w", name, err)
	}
	return nil
}
