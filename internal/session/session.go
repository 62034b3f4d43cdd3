package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/italolelis/fetchbox/internal/fetch"
	"github.com/italolelis/fetchbox/internal/filename"
	"github.com/italolelis/fetchbox/internal/logctx"
	"github.com/italolelis/fetchbox/internal/notifier"
	"github.com/italolelis/fetchbox/internal/notify"
	"github.com/italolelis/fetchbox/internal/storage"
	"github.com/italolelis/fetchbox/internal/telemetry"
	"github.com/italolelis/fetchbox/internal/transfer"
)

// ErrClosed is returned by Start after the session was closed.
var ErrClosed = errors.New("session closed")

const notifyTimeout = 10 * time.Second

// State is the externally visible state of a session.
type State string

const (
	StateIdle     State = "idle"
	StateStarting State = "starting"
	StateActive   State = "active"
)

// Options configures a session. Every collaborator is optional except Storage.
type Options struct {
	Storage     *storage.Dir
	MaxFileSize int64
	History     storage.HistoryWriteRepository
	Notifier    notifier.Notifier
	Telemetry   *telemetry.Telemetry
}

// Session owns at most one live transfer for one connected client.
type Session struct {
	id      string
	sink    notify.Sink
	fetcher fetch.Fetcher
	opts    Options

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	state     State
	active    *run
	delivered <-chan struct{}
	closed    bool
}

// run is the bookkeeping for the live transfer. after is closed once the
// previous transfer's terminal event went out; delivered closes this one's.
type run struct {
	transfer  *transfer.Transfer
	cancel    context.CancelFunc
	after     <-chan struct{}
	delivered chan struct{}
}

type outcome struct {
	status   transfer.Status
	filename string
	bytes    int64
	err      error
}

// New creates an idle session. Transfers run under ctx and are cancelled when it is done.
func New(ctx context.Context, id string, sink notify.Sink, fetcher fetch.Fetcher, opts Options) *Session {
	ctx, cancel := context.WithCancel(ctx)

	return &Session{
		id:      id,
		sink:    sink,
		fetcher: fetcher,
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
		state:   StateIdle,
	}
}

func (s *Session) ID() string {
	return s.id
}

// Sink returns the channel events are delivered to.
func (s *Session) Sink() notify.Sink {
	return s.sink
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// Start validates rawURL and launches a transfer in the background. It fails
// with *transfer.InvalidURLError before any network call, and with
// transfer.ErrTransferInProgress while another transfer is live. The session
// is idle again before the terminal event of a transfer is sent, but the next
// transfer emits nothing until that event was delivered.
func (s *Session) Start(rawURL string) error {
	u, err := transfer.ParseSourceURL(rawURL)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	if s.state != StateIdle {
		return transfer.ErrTransferInProgress
	}

	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("failed to generate transfer id: %w", err)
	}

	ctx, cancel := context.WithCancel(s.ctx)
	r := &run{
		transfer:  transfer.New(id.String(), s.id, u.String()),
		cancel:    cancel,
		after:     s.delivered,
		delivered: make(chan struct{}),
	}

	s.state = StateStarting
	s.active = r
	s.delivered = r.delivered

	s.wg.Add(1)

	go s.run(ctx, r)

	return nil
}

// Cancel requests cancellation of the live transfer. The transfer goroutine
// acknowledges it with a download_cancelled event once it has stopped. A
// transfer that is already committing its file cannot be cancelled.
func (s *Session) Cancel() error {
	s.mu.Lock()
	r := s.active
	s.mu.Unlock()

	if r == nil {
		return transfer.ErrNoActiveTransfer
	}

	if r.transfer.RequestCancel() {
		r.cancel()
	}

	return nil
}

// Close cancels any live transfer and waits for it to finish. It is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	r := s.active
	s.mu.Unlock()

	if r != nil {
		r.transfer.RequestCancel()
	}

	s.cancel()
	s.wg.Wait()
}

func (s *Session) run(ctx context.Context, r *run) {
	defer s.wg.Done()
	defer r.cancel()

	t := r.transfer
	ctx, logger := logctx.With(ctx, "session_id", s.id, "transfer_id", t.ID, "url", t.SourceURL)

	if r.after != nil {
		select {
		case <-r.after:
		case <-ctx.Done():
		}
	}

	s.recordStart(ctx, t)

	var res outcome

	_ = s.opts.Telemetry.InstrumentDownload(ctx, func(ctx context.Context) (string, int64, error) {
		res = s.execute(ctx, r)

		return string(res.status), res.bytes, res.err
	})

	if err := t.Finish(res.status); err != nil {
		logger.ErrorContext(ctx, "invalid terminal transition", "status", res.status, "err", err)
	}

	s.mu.Lock()
	s.active = nil
	s.state = StateIdle
	s.mu.Unlock()

	var message string

	switch res.status {
	case transfer.StatusCompleted:
		logger.InfoContext(ctx, "download completed",
			"file", res.filename,
			"size", humanize.Bytes(uint64(res.bytes)),
			"duration", t.Duration().String(),
		)
		s.send(ctx, notify.Complete{})
		message = fmt.Sprintf("Download completed: %s (%s)", res.filename, humanize.Bytes(uint64(res.bytes)))
	case transfer.StatusCancelled:
		logger.InfoContext(ctx, "download cancelled", "downloaded", res.bytes)
		s.send(ctx, notify.Cancelled{})
	default:
		logger.ErrorContext(ctx, "download failed", "err", res.err)
		s.send(ctx, notify.Error{Message: transfer.UserMessage(res.err)})
		message = fmt.Sprintf("Download failed: %s (%s)", t.SourceURL, transfer.UserMessage(res.err))
	}

	close(r.delivered)

	if message != "" {
		s.notify(ctx, message)
	}

	s.recordFinish(ctx, t, res)
}

// execute streams the body into a temporary file and renames it over the
// reserved destination. Any failure removes both.
func (s *Session) execute(ctx context.Context, r *run) (res outcome) {
	t := r.transfer

	defer func() {
		if p := recover(); p != nil {
			logctx.LoggerFromContext(ctx).ErrorContext(ctx, "transfer panicked", "panic", p, "stack", string(debug.Stack()))
			s.opts.Telemetry.RecordSystemError("session", "panic")
			res = outcome{status: transfer.StatusFailed, bytes: res.bytes, err: fmt.Errorf("transfer panicked: %v", p)}
		}
	}()

	stream, err := s.fetcher.Stream(ctx, t.SourceURL)
	if err != nil {
		if ctx.Err() != nil {
			return outcome{status: transfer.StatusCancelled}
		}

		return outcome{status: transfer.StatusFailed, err: err}
	}
	defer stream.Close()

	dest, release, err := s.reserve(stream)
	if err != nil {
		return outcome{status: transfer.StatusFailed, err: err}
	}

	part, err := createPart(dest, release)
	if err != nil {
		_ = os.Remove(dest)
		release()

		return outcome{status: transfer.StatusFailed, err: err}
	}
	defer part.Discard()

	if err := t.Begin(dest, stream.TotalSize); err != nil {
		return outcome{status: transfer.StatusFailed, err: err}
	}

	s.mu.Lock()
	if s.active == r {
		s.state = StateActive
	}
	s.mu.Unlock()

	name := filepath.Base(dest)
	s.send(ctx, notify.Info{Filename: name})

	tracker := transfer.NewTracker(stream.TotalSize, s.opts.MaxFileSize)
	res = outcome{filename: name}

	for {
		chunk, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return fail(res, err)
		}

		p, emit, err := tracker.Add(len(chunk))
		if err != nil {
			return fail(res, err)
		}

		if err := part.Write(chunk); err != nil {
			return fail(res, err)
		}

		res.bytes = p.DownloadedBytes

		if emit {
			s.send(ctx, notify.Progress{
				Progress:        p.Percent,
				DownloadedBytes: p.DownloadedBytes,
				TotalBytes:      p.TotalBytes,
			})
		}
	}

	if stream.Cancelled() {
		res.status = transfer.StatusCancelled

		return res
	}

	if err := tracker.Finish(); err != nil {
		return fail(res, err)
	}

	if !t.BeginCommit() {
		res.status = transfer.StatusCancelled

		return res
	}

	if err := part.Commit(); err != nil {
		return fail(res, err)
	}

	res.status = transfer.StatusCompleted

	return res
}

func (s *Session) reserve(stream *fetch.Stream) (string, func(), error) {
	name := filename.Resolve(stream.URL, stream.ContentDisposition)

	dest, release, err := s.opts.Storage.Reserve(name)
	if err != nil {
		return "", nil, &transfer.StorageError{Op: "reserve", Path: filepath.Join(s.opts.Storage.Root(), name), Err: err}
	}

	return dest, release, nil
}

// send delivers an event. Delivery failures never affect the transfer.
func (s *Session) send(ctx context.Context, e notify.Event) {
	if err := s.sink.Send(ctx, e); err != nil {
		logctx.LoggerFromContext(ctx).DebugContext(ctx, "failed to deliver event", "event", e.Kind(), "err", err)
	}
}

func (s *Session) notify(ctx context.Context, content string) {
	if s.opts.Notifier == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	if err := s.opts.Notifier.Notify(ctx, content); err != nil {
		logctx.LoggerFromContext(ctx).WarnContext(ctx, "failed to send notification", "err", err)
	}
}

func (s *Session) recordStart(ctx context.Context, t *transfer.Transfer) {
	if s.opts.History == nil {
		return
	}

	err := s.opts.History.RecordStart(context.WithoutCancel(ctx), storage.TransferRecord{
		ID:        t.ID,
		SessionID: t.SessionID,
		URL:       t.SourceURL,
		Status:    string(transfer.StatusPending),
		StartedAt: t.StartedAt,
	})
	if err != nil {
		logctx.LoggerFromContext(ctx).WarnContext(ctx, "failed to record transfer start", "err", err)
	}
}

func (s *Session) recordFinish(ctx context.Context, t *transfer.Transfer, res outcome) {
	if s.opts.History == nil {
		return
	}

	finishedAt := t.StartedAt.Add(t.Duration())
	rec := storage.TransferRecord{
		ID:              t.ID,
		SessionID:       t.SessionID,
		URL:             t.SourceURL,
		Filename:        res.filename,
		Status:          string(res.status),
		DownloadedBytes: res.bytes,
		TotalBytes:      t.TotalBytes(),
		StartedAt:       t.StartedAt,
		FinishedAt:      &finishedAt,
	}

	if res.err != nil {
		rec.Error = res.err.Error()
	}

	if err := s.opts.History.RecordFinish(context.WithoutCancel(ctx), rec); err != nil {
		logctx.LoggerFromContext(ctx).WarnContext(ctx, "failed to record transfer finish", "err", err)
	}
}

func fail(res outcome, err error) outcome {
	res.status = transfer.StatusFailed
	res.err = err

	return res
}
