package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/italolelis/fetchbox/internal/fetch"
	"github.com/italolelis/fetchbox/internal/logctx"
	"github.com/italolelis/fetchbox/internal/notify"
	"github.com/italolelis/fetchbox/internal/session"
	"github.com/italolelis/fetchbox/internal/transfer"
)

// Greeting is the text of the first event on every connection.
const Greeting = "Hello from fetchbox server"

const maxMessageSize = 64 * 1024

// Handler upgrades requests to websocket sessions.
type Handler struct {
	fetcher      fetch.Fetcher
	registry     *session.Registry
	opts         session.Options
	writeTimeout time.Duration
	upgrader     websocket.Upgrader
}

func NewHandler(fetcher fetch.Fetcher, registry *session.Registry, opts session.Options, writeTimeout time.Duration) *Handler {
	return &Handler{
		fetcher:      fetcher,
		registry:     registry,
		opts:         opts,
		writeTimeout: writeTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The browser UI may be served from another origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logctx.LoggerFromContext(r.Context()).WarnContext(r.Context(), "websocket upgrade failed", "err", err)

		return
	}

	wsConn.SetReadLimit(maxMessageSize)

	conn := NewConn(wsConn, h.writeTimeout)
	id := session.NewID()
	ctx, logger := logctx.With(r.Context(), "session_id", id)

	s := session.New(ctx, id, conn, h.fetcher, h.opts)
	if err := h.register(s, conn); err != nil {
		logger.DebugContext(ctx, "session refused", "err", err)

		return
	}

	defer func() {
		s.Close()
		h.registry.Remove(id)
		_ = conn.Close()

		logger.InfoContext(ctx, "client disconnected")
	}()

	logger.InfoContext(ctx, "client connected", "remote_addr", r.RemoteAddr)

	if err := conn.Send(ctx, notify.Greeting{Message: Greeting, ID: id}); err != nil {
		logger.DebugContext(ctx, "failed to send greeting", "err", err)

		return
	}

	for {
		_, data, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.DebugContext(ctx, "websocket read failed", "err", err)
			}

			return
		}

		h.dispatch(ctx, s, conn, data)
	}
}

// register adds s to the registry. A refused session is closed and its
// client disconnected.
func (h *Handler) register(s *session.Session, conn session.Disconnector) error {
	if err := h.registry.Add(s); err != nil {
		s.Close()
		_ = conn.Disconnect(session.ShutdownReason)

		return err
	}

	return nil
}

// dispatch handles one client frame. Rejections are reported as download_error events.
func (h *Handler) dispatch(ctx context.Context, s *session.Session, conn *Conn, data []byte) {
	logger := logctx.LoggerFromContext(ctx)

	req, err := notify.DecodeRequest(data)
	if err != nil {
		reply(ctx, conn, notify.Error{Message: err.Error()})

		return
	}

	switch req.Type {
	case notify.ClientStartDownload:
		if err := s.Start(req.URL); err != nil {
			logger.InfoContext(ctx, "start rejected", "url", req.URL, "err", err)
			reply(ctx, conn, notify.Error{Message: transfer.UserMessage(err)})
		}
	case notify.ClientCancelDownload:
		if err := s.Cancel(); err != nil && !errors.Is(err, transfer.ErrNoActiveTransfer) {
			logger.WarnContext(ctx, "cancel failed", "err", err)
		}
	case notify.ClientMessage:
		reply(ctx, conn, notify.Message{Message: "Echo: " + req.Message})
	default:
		logger.DebugContext(ctx, "ignoring unknown message type", "type", req.Type)
	}
}

func reply(ctx context.Context, conn *Conn, e notify.Event) {
	if err := conn.Send(ctx, e); err != nil {
		logctx.LoggerFromContext(ctx).DebugContext(ctx, "failed to send reply", "event", e.Kind(), "err", err)
	}
}
