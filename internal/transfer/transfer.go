package transfer

import (
	"sync"
	"time"
)

// Status is the lifecycle status of a Transfer.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transitions are possible from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusFailed
}

// Transfer is one fetch-to-disk operation.
type Transfer struct {
	ID        string
	SessionID string
	SourceURL string
	StartedAt time.Time

	mu              sync.Mutex
	status          Status
	destinationPath string
	totalBytes      int64
	cancelRequested bool
	committing      bool
	finishedAt      time.Time
}

func New(id, sessionID, sourceURL string) *Transfer {
	return &Transfer{
		ID:        id,
		SessionID: sessionID,
		SourceURL: sourceURL,
		StartedAt: time.Now(),
		status:    StatusPending,
	}
}

// Begin records the resolved destination and announced size and moves the transfer in progress.
func (t *Transfer) Begin(destinationPath string, totalBytes int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status != StatusPending {
		return ErrInvalidTransition
	}

	t.destinationPath = destinationPath
	t.totalBytes = totalBytes
	t.status = StatusInProgress

	return nil
}

// RequestCancel sets the cancel flag. It reports false when the flag was
// already set, the transfer is committing its file, or it has terminated.
func (t *Transfer) RequestCancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancelRequested || t.committing || t.status.Terminal() {
		return false
	}

	t.cancelRequested = true

	return true
}

// CancelRequested reports whether RequestCancel succeeded.
func (t *Transfer) CancelRequested() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.cancelRequested
}

// BeginCommit marks the point after which cancellation is refused.
// It reports false if cancellation was requested first.
func (t *Transfer) BeginCommit() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancelRequested || t.status != StatusInProgress {
		return false
	}

	t.committing = true

	return true
}

// Finish moves the transfer into a terminal status.
func (t *Transfer) Finish(status Status) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status.Terminal() || !status.Terminal() {
		return ErrInvalidTransition
	}

	if status == StatusCompleted && t.status != StatusInProgress {
		return ErrInvalidTransition
	}

	t.status = status
	t.finishedAt = time.Now()

	return nil
}

func (t *Transfer) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.status
}

func (t *Transfer) DestinationPath() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.destinationPath
}

func (t *Transfer) TotalBytes() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.totalBytes
}

// Duration is the elapsed time until termination, or until now if still running.
func (t *Transfer) Duration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.finishedAt.IsZero() {
		return time.Since(t.StartedAt)
	}

	return t.finishedAt.Sub(t.StartedAt)
}
