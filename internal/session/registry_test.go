package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/italolelis/fetchbox/internal/notify"
	"github.com/italolelis/fetchbox/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type disconnectingSink struct {
	*recorder

	mu     sync.Mutex
	reason string
}

func (d *disconnectingSink) Disconnect(reason string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.reason = reason

	return nil
}

func TestNewID(t *testing.T) {
	a, b := NewID(), NewID()

	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestRegistry_AddRemove(t *testing.T) {
	r := NewRegistry(nil)

	s1 := New(context.Background(), "a", newRecorder(), httpFetcher(), Options{Storage: storage.NewDir(t.TempDir())})
	s2 := New(context.Background(), "b", newRecorder(), httpFetcher(), Options{Storage: storage.NewDir(t.TempDir())})

	require.NoError(t, r.Add(s1))
	require.NoError(t, r.Add(s2))
	assert.Equal(t, 2, r.Len())

	r.Remove("a")
	r.Remove("a")
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_Shutdown(t *testing.T) {
	srv, _ := stallingOrigin(t, 100, 1000)

	r := NewRegistry(nil)
	sink := &disconnectingSink{recorder: newRecorder()}
	s := New(context.Background(), "a", sink, httpFetcher(), Options{Storage: storage.NewDir(t.TempDir())})

	require.NoError(t, r.Add(s))
	require.NoError(t, s.Start(srv.URL+"/big.iso"))
	sink.next(t, notify.KindProgress)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, r.Shutdown(ctx))

	sink.next(t, notify.KindCancelled)

	sink.mu.Lock()
	assert.Equal(t, ShutdownReason, sink.reason)
	sink.mu.Unlock()

	late := New(context.Background(), "late", newRecorder(), httpFetcher(), Options{Storage: storage.NewDir(t.TempDir())})
	require.ErrorIs(t, r.Add(late), ErrClosed)
}
