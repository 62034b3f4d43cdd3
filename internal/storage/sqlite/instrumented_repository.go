package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/italolelis/fetchbox/internal/storage"
	"github.com/italolelis/fetchbox/internal/telemetry"
)

var _ storage.HistoryRepository = (*InstrumentedHistoryRepository)(nil)

// InstrumentedHistoryRepository wraps HistoryRepository with telemetry.
type InstrumentedHistoryRepository struct {
	repo      *HistoryRepository
	telemetry *telemetry.Telemetry
}

// NewInstrumentedHistoryRepository creates a new instrumented history repository.
func NewInstrumentedHistoryRepository(dbConn *sql.DB, tel *telemetry.Telemetry) *InstrumentedHistoryRepository {
	return &InstrumentedHistoryRepository{
		repo:      NewHistoryRepository(dbConn),
		telemetry: tel,
	}
}

func (r *InstrumentedHistoryRepository) RecordStart(ctx context.Context, rec storage.TransferRecord) error {
	return r.telemetry.InstrumentDBOperation(ctx, "record_start", func(ctx context.Context) error {
		return r.repo.RecordStart(ctx, rec)
	})
}

func (r *InstrumentedHistoryRepository) RecordFinish(ctx context.Context, rec storage.TransferRecord) error {
	return r.telemetry.InstrumentDBOperation(ctx, "record_finish", func(ctx context.Context) error {
		return r.repo.RecordFinish(ctx, rec)
	})
}

func (r *InstrumentedHistoryRepository) MarkExpired(ctx context.Context, id string) error {
	return r.telemetry.InstrumentDBOperation(ctx, "mark_expired", func(ctx context.Context) error {
		return r.repo.MarkExpired(ctx, id)
	})
}

func (r *InstrumentedHistoryRepository) ListTransfers(ctx context.Context, limit int) ([]storage.TransferRecord, error) {
	var result []storage.TransferRecord

	err := r.telemetry.InstrumentDBOperation(ctx, "list_transfers", func(ctx context.Context) error {
		var err error
		result, err = r.repo.ListTransfers(ctx, limit)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

func (r *InstrumentedHistoryRepository) ListCompletedBefore(ctx context.Context, cutoff time.Time) ([]storage.TransferRecord, error) {
	var result []storage.TransferRecord

	err := r.telemetry.InstrumentDBOperation(ctx, "list_completed_before", func(ctx context.Context) error {
		var err error
		result, err = r.repo.ListCompletedBefore(ctx, cutoff)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}
