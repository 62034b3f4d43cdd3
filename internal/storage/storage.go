package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a stored file or record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidName is returned for names that could not have been written by a transfer.
	ErrInvalidName = errors.New("invalid file name")
)

// StoredFile describes one file in the storage root.
type StoredFile struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// TransferRecord is the persisted history of one transfer.
type TransferRecord struct {
	ID              string     `json:"id"`
	SessionID       string     `json:"sessionId"`
	URL             string     `json:"url"`
	Filename        string     `json:"filename,omitempty"`
	Status          string     `json:"status"`
	DownloadedBytes int64      `json:"downloadedBytes"`
	TotalBytes      int64      `json:"totalBytes"`
	Error           string     `json:"error,omitempty"`
	StartedAt       time.Time  `json:"startedAt"`
	FinishedAt      *time.Time `json:"finishedAt,omitempty"`
}

// HistoryReadRepository lists transfer history.
type HistoryReadRepository interface {
	ListTransfers(ctx context.Context, limit int) ([]TransferRecord, error)
	ListCompletedBefore(ctx context.Context, cutoff time.Time) ([]TransferRecord, error)
}

// HistoryWriteRepository records transfer lifecycle changes.
type HistoryWriteRepository interface {
	RecordStart(ctx context.Context, rec TransferRecord) error
	RecordFinish(ctx context.Context, rec TransferRecord) error
	MarkExpired(ctx context.Context, id string) error
}

// HistoryRepository is the full history store.
type HistoryRepository interface {
	HistoryReadRepository
	HistoryWriteRepository
}
