package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/italolelis/fetchbox/internal/notify"
)

// ErrConnClosed is returned when sending on a closed connection.
var ErrConnClosed = errors.New("connection closed")

const defaultWriteTimeout = 10 * time.Second

// Conn adapts a websocket connection to notify.Sink. Writes are serialised
// since gorilla allows only one concurrent writer.
type Conn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

func NewConn(ws *websocket.Conn, writeTimeout time.Duration) *Conn {
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}

	return &Conn{ws: ws, writeTimeout: writeTimeout}
}

// Send encodes e and writes it as one text frame.
func (c *Conn) Send(_ context.Context, e notify.Event) error {
	data, err := notify.Encode(e)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnClosed
	}

	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}

	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", e.Kind(), err)
	}

	return nil
}

// Disconnect sends a going-away close frame carrying reason and closes the connection.
func (c *Conn) Disconnect(reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, reason)
	writeErr := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeTimeout))

	return errors.Join(writeErr, c.ws.Close())
}

// Close closes the connection without a close frame.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true

	return c.ws.Close()
}
