package transfer

// Progress is a snapshot of a transfer's byte accounting.
type Progress struct {
	Percent         int
	DownloadedBytes int64
	TotalBytes      int64
}

// Tracker accumulates received bytes and decides when progress is reportable.
// It is not safe for concurrent use; one transfer goroutine owns it.
type Tracker struct {
	total      int64
	max        int64
	downloaded int64
}

// NewTracker returns a tracker for a body of total bytes (0 when unknown).
// max caps the accepted bytes; 0 disables the cap.
func NewTracker(total, max int64) *Tracker {
	if total < 0 {
		total = 0
	}

	return &Tracker{total: total, max: max}
}

// Add records n received bytes. The returned bool reports whether a progress
// event should be emitted, which only happens when the total size is known.
func (t *Tracker) Add(n int) (Progress, bool, error) {
	t.downloaded += int64(n)

	if t.max > 0 && t.downloaded > t.max {
		return t.snapshot(), false, ErrSizeExceeded
	}

	if t.total > 0 && t.downloaded > t.total {
		return t.snapshot(), false, ErrSizeMismatch
	}

	return t.snapshot(), t.total > 0, nil
}

// Finish validates the final byte count against the announced size.
func (t *Tracker) Finish() error {
	if t.total > 0 && t.downloaded != t.total {
		return ErrSizeMismatch
	}

	return nil
}

func (t *Tracker) Downloaded() int64 {
	return t.downloaded
}

func (t *Tracker) Total() int64 {
	return t.total
}

func (t *Tracker) snapshot() Progress {
	p := Progress{DownloadedBytes: t.downloaded, TotalBytes: t.total}
	if t.total > 0 {
		p.Percent = int(t.downloaded * 100 / t.total)
	}

	return p
}
