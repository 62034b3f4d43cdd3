package cleanup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/italolelis/fetchbox/internal/logctx"
	"github.com/italolelis/fetchbox/internal/storage"
)

// Files is the part of the storage root the sweeper needs.
type Files interface {
	Delete(name string) error
}

// Store is the part of the history store the sweeper needs.
type Store interface {
	ListCompletedBefore(ctx context.Context, cutoff time.Time) ([]storage.TransferRecord, error)
	MarkExpired(ctx context.Context, id string) error
}

// DeleteExpiredFiles removes the files of the given records and marks them
// expired. Files already gone are treated as deleted. It returns the number of
// records expired.
func DeleteExpiredFiles(ctx context.Context, records []storage.TransferRecord, files Files, store Store) (int, error) {
	logger := logctx.LoggerFromContext(ctx)
	expired := 0

	for _, rec := range records {
		if rec.Filename == "" {
			continue
		}

		err := files.Delete(rec.Filename)

		switch {
		case err == nil:
			logger.InfoContext(ctx, "deleted expired file", "file", rec.Filename, "transfer_id", rec.ID)
		case errors.Is(err, storage.ErrNotFound):
			logger.DebugContext(ctx, "expired file already gone", "file", rec.Filename)
		case errors.Is(err, storage.ErrInvalidName):
			logger.WarnContext(ctx, "skipping record with invalid file name", "file", rec.Filename, "transfer_id", rec.ID)

			continue
		default:
			return expired, fmt.Errorf("failed to delete expired file %s: %w", rec.Filename, err)
		}

		if err := store.MarkExpired(ctx, rec.ID); err != nil {
			return expired, fmt.Errorf("failed to mark transfer %s expired: %w", rec.ID, err)
		}

		expired++
	}

	return expired, nil
}

// Sweep expires every completed transfer older than keep.
func Sweep(ctx context.Context, store Store, files Files, keep time.Duration) (int, error) {
	records, err := store.ListCompletedBefore(ctx, time.Now().Add(-keep))
	if err != nil {
		return 0, fmt.Errorf("failed to list completed transfers: %w", err)
	}

	return DeleteExpiredFiles(ctx, records, files, store)
}

// Run sweeps every interval until ctx is done. A zero keep disables retention.
func Run(ctx context.Context, store Store, files Files, keep, interval time.Duration) error {
	if keep <= 0 || interval <= 0 {
		return nil
	}

	logger := logctx.LoggerFromContext(ctx).With("component", "cleanup")
	ticker := time.NewTicker(interval)

	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := Sweep(ctx, store, files, keep)
			if err != nil {
				logger.ErrorContext(ctx, "cleanup sweep failed", "err", err)

				continue
			}

			if n > 0 {
				logger.InfoContext(ctx, "cleanup sweep finished", "expired", n)
			}
		}
	}
}
