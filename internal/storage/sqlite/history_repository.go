package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/italolelis/fetchbox/internal/storage"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000

	statusCompleted = "completed"
	statusExpired   = "expired"
)

var _ storage.HistoryRepository = (*HistoryRepository)(nil)

type HistoryRepository struct {
	db *sql.DB
}

func NewHistoryRepository(dbConn *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: dbConn}
}

// RecordStart inserts a new transfer row.
func (r *HistoryRepository) RecordStart(ctx context.Context, rec storage.TransferRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO transfers (id, session_id, url, filename, status, total_bytes, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SessionID, rec.URL, rec.Filename, rec.Status, rec.TotalBytes, rec.StartedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert transfer %s: %w", rec.ID, err)
	}

	return nil
}

// RecordFinish stores the terminal state of a transfer.
func (r *HistoryRepository) RecordFinish(ctx context.Context, rec storage.TransferRecord) error {
	finishedAt := time.Now().UTC()
	if rec.FinishedAt != nil {
		finishedAt = rec.FinishedAt.UTC()
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE transfers SET filename = ?, status = ?, downloaded_bytes = ?, total_bytes = ?, error = ?, finished_at = ?
		WHERE id = ?`,
		rec.Filename, rec.Status, rec.DownloadedBytes, rec.TotalBytes, nullString(rec.Error), finishedAt, rec.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update transfer %s: %w", rec.ID, err)
	}

	if affected, _ := res.RowsAffected(); affected == 0 {
		return storage.ErrNotFound
	}

	return nil
}

// MarkExpired flags a completed transfer whose file was removed by retention.
func (r *HistoryRepository) MarkExpired(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE transfers SET status = ? WHERE id = ? AND status = ?`, statusExpired, id, statusCompleted)

	return err
}

// ListTransfers returns the most recent transfers first.
func (r *HistoryRepository) ListTransfers(ctx context.Context, limit int) ([]storage.TransferRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	if limit > maxListLimit {
		limit = maxListLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, session_id, url, filename, status, downloaded_bytes, total_bytes, error, started_at, finished_at
		FROM transfers ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRecords(rows)
}

// ListCompletedBefore returns completed transfers that finished before cutoff.
func (r *HistoryRepository) ListCompletedBefore(ctx context.Context, cutoff time.Time) ([]storage.TransferRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, session_id, url, filename, status, downloaded_bytes, total_bytes, error, started_at, finished_at
		FROM transfers WHERE status = ? AND finished_at < ? ORDER BY finished_at`, statusCompleted, cutoff.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]storage.TransferRecord, error) {
	records := make([]storage.TransferRecord, 0)

	for rows.Next() {
		var (
			record     storage.TransferRecord
			filename   sql.NullString
			errMsg     sql.NullString
			finishedAt sql.NullTime
		)

		err := rows.Scan(&record.ID, &record.SessionID, &record.URL, &filename, &record.Status,
			&record.DownloadedBytes, &record.TotalBytes, &errMsg, &record.StartedAt, &finishedAt)
		if err != nil {
			return nil, err
		}

		record.Filename = filename.String
		record.Error = errMsg.String

		if finishedAt.Valid {
			t := finishedAt.Time
			record.FinishedAt = &t
		}

		records = append(records, record)
	}

	return records, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
