package session

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/italolelis/fetchbox/internal/logctx"
	"github.com/italolelis/fetchbox/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

// ShutdownReason is sent to clients when the server stops.
const ShutdownReason = "server shutting down"

// Disconnector is implemented by sinks that can close the client connection.
type Disconnector interface {
	Disconnect(reason string) error
}

// Registry tracks connected sessions so they can be torn down on shutdown.
type Registry struct {
	telemetry *telemetry.Telemetry

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

func NewRegistry(tel *telemetry.Telemetry) *Registry {
	return &Registry{
		telemetry: tel,
		sessions:  make(map[string]*Session),
	}
}

// NewID returns a time-ordered session id.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}

	return id.String()
}

// Add registers s. It fails with ErrClosed once Shutdown has begun.
func (r *Registry) Add(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}

	r.sessions[s.ID()] = s
	r.telemetry.IncrementSessions()

	return nil
}

func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; ok {
		delete(r.sessions, id)
		r.telemetry.DecrementSessions()
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.sessions)
}

// Shutdown refuses new sessions, then cancels every live transfer and closes
// every connection concurrently. It returns early if ctx expires.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true

	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	logger := logctx.LoggerFromContext(ctx)
	logger.InfoContext(ctx, "closing client sessions", "count", len(sessions))

	var g errgroup.Group

	for _, s := range sessions {
		g.Go(func() error {
			s.Close()

			if d, ok := s.Sink().(Disconnector); ok {
				if err := d.Disconnect(ShutdownReason); err != nil {
					logger.DebugContext(ctx, "failed to disconnect client", "session_id", s.ID(), "err", err)
				}
			}

			return nil
		})
	}

	done := make(chan error, 1)

	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
