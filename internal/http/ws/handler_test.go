package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/italolelis/fetchbox/internal/fetch"
	"github.com/italolelis/fetchbox/internal/notify"
	"github.com/italolelis/fetchbox/internal/session"
	"github.com/italolelis/fetchbox/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frame map[string]any

type harness struct {
	registry *session.Registry
	dir      string
	server   *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{registry: session.NewRegistry(nil), dir: t.TempDir()}

	handler := NewHandler(fetch.NewClient(fetch.Options{ChunkSize: 64}), h.registry, session.Options{Storage: storage.NewDir(h.dir)}, time.Second)
	h.server = httptest.NewServer(handler)
	t.Cleanup(h.server.Close)

	return h
}

func (h *harness) dial(t *testing.T) (*websocket.Conn, frame) {
	t.Helper()

	u := "ws" + strings.TrimPrefix(h.server.URL, "http")

	conn, resp, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })

	return conn, read(t, conn)
}

func read(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var f frame
	require.NoError(t, json.Unmarshal(data, &f))

	return f
}

// readUntil reads frames until one of the given type arrives and returns all of them.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) []frame {
	t.Helper()

	var frames []frame

	for {
		f := read(t, conn)
		frames = append(frames, f)

		if f["type"] == typ {
			return frames
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()

	require.NoError(t, conn.WriteJSON(v))
}

func TestHandler_Greeting(t *testing.T) {
	h := newHarness(t)

	_, greeting := h.dial(t)

	assert.Equal(t, Greeting, greeting["event"])
	assert.NotEmpty(t, greeting["id"])
	assert.Eventually(t, func() bool { return h.registry.Len() == 1 }, time.Second, 10*time.Millisecond)
}

func TestHandler_Echo(t *testing.T) {
	h := newHarness(t)
	conn, _ := h.dial(t)

	send(t, conn, frame{"type": "message", "message": "ping"})

	assert.Equal(t, frame{"type": "message", "message": "Echo: ping"}, read(t, conn))
}

func TestHandler_MalformedJSON(t *testing.T) {
	h := newHarness(t)
	conn, _ := h.dial(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))

	f := read(t, conn)
	assert.Equal(t, "download_error", f["type"])
	assert.Contains(t, f["message"], "invalid")
}

func TestHandler_InvalidURL(t *testing.T) {
	h := newHarness(t)
	conn, _ := h.dial(t)

	send(t, conn, frame{"type": "start_download", "url": "ftp://example.com/a.zip"})

	assert.Equal(t, frame{"type": "download_error", "message": "Invalid URL"}, read(t, conn))
}

func TestHandler_DownloadFlow(t *testing.T) {
	body := strings.Repeat("x", 256)
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="hello.txt"`)
		w.Header().Set("Content-Length", "256")
		_, _ = w.Write([]byte(body))
	}))
	defer origin.Close()

	h := newHarness(t)
	conn, _ := h.dial(t)

	send(t, conn, frame{"type": "start_download", "url": origin.URL + "/ignored"})

	frames := readUntil(t, conn, "download_complete")
	require.GreaterOrEqual(t, len(frames), 3)

	assert.Equal(t, frame{"type": "download_info", "filename": "hello.txt"}, frames[0])
	assert.Equal(t, "download_progress", frames[len(frames)-2]["type"])
	assert.EqualValues(t, 100, frames[len(frames)-2]["progress"])
	assert.Equal(t, frame{"type": "download_complete", "progress": float64(100)}, frames[len(frames)-1])

	got, err := os.ReadFile(filepath.Join(h.dir, "hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, body, string(got))
}

func TestHandler_CancelAndReject(t *testing.T) {
	release := make(chan struct{})
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer func() {
		close(release)
		origin.Close()
	}()

	h := newHarness(t)
	conn, _ := h.dial(t)

	// cancelling with nothing running is silent
	send(t, conn, frame{"type": "cancel_download"})

	send(t, conn, frame{"type": "start_download", "url": origin.URL + "/slow.iso"})
	send(t, conn, frame{"type": "start_download", "url": origin.URL + "/other.iso"})

	assert.Equal(t, frame{"type": "download_error", "message": "A download is already in progress"}, read(t, conn))

	send(t, conn, frame{"type": "cancel_download"})

	assert.Equal(t, frame{"type": "download_cancelled"}, read(t, conn))

	entries, err := os.ReadDir(h.dir)
	if err == nil {
		assert.Empty(t, entries)
	}
}

func TestHandler_ShutdownClosesConnections(t *testing.T) {
	h := newHarness(t)
	conn, _ := h.dial(t)

	require.Eventually(t, func() bool { return h.registry.Len() == 1 }, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, h.registry.Shutdown(ctx))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	_, _, err := conn.ReadMessage()

	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.CloseGoingAway, closeErr.Code)
	assert.Equal(t, session.ShutdownReason, closeErr.Text)

	// new connections are refused once shutdown began
	late, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(h.server.URL, "http"), nil)
	require.NoError(t, err)
	defer late.Close()

	require.NoError(t, late.SetReadDeadline(time.Now().Add(5*time.Second)))

	_, _, err = late.ReadMessage()
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.CloseGoingAway, closeErr.Code)
}

type refusedClient struct {
	reason string
}

func (c *refusedClient) Send(context.Context, notify.Event) error {
	return nil
}

func (c *refusedClient) Disconnect(reason string) error {
	c.reason = reason

	return nil
}

func TestRegisterClosesRefusedSession(t *testing.T) {
	registry := session.NewRegistry(nil)
	require.NoError(t, registry.Shutdown(context.Background()))

	opts := session.Options{Storage: storage.NewDir(t.TempDir())}
	h := NewHandler(fetch.NewClient(fetch.Options{}), registry, opts, time.Second)

	client := &refusedClient{}
	s := session.New(context.Background(), "late", client, fetch.NewClient(fetch.Options{}), opts)

	require.ErrorIs(t, h.register(s, client), session.ErrClosed)
	assert.Equal(t, session.ShutdownReason, client.reason)
	assert.ErrorIs(t, s.Start("http://example.com/file.bin"), session.ErrClosed)
	assert.Zero(t, registry.Len())
}
