package filename

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithSuffix(t *testing.T) {
	tests := []struct {
		name string
		n    int
		want string
	}{
		{name: "a.zip", n: 0, want: "a.zip"},
		{name: "a.zip", n: 1, want: "a(1).zip"},
		{name: "a.tar.gz", n: 2, want: "a.tar(2).gz"},
		{name: "noext", n: 3, want: "noext(3)"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, WithSuffix(tt.name, tt.n))
	}
}

func TestWithSuffix_FitsMaxLength(t *testing.T) {
	long := strings.Repeat("x", MaxLength-4) + ".bin"
	require.Len(t, long, MaxLength)

	got := WithSuffix(long, 12)
	assert.Len(t, got, MaxLength)
	assert.True(t, strings.HasSuffix(got, "(12).bin"))
}

func TestReserve_Collisions(t *testing.T) {
	dir := t.TempDir()

	first, err := Reserve(dir, "a.zip")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "a.zip"), first)

	second, err := Reserve(dir, "a.zip")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "a(1).zip"), second)

	third, err := Reserve(dir, "a.zip")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "a(2).zip"), third)

	info, err := os.Stat(first)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestReserve_ReusesFreedName(t *testing.T) {
	dir := t.TempDir()

	p, err := Reserve(dir, "a.zip")
	require.NoError(t, err)
	require.NoError(t, os.Remove(p))

	again, err := Reserve(dir, "a.zip")
	require.NoError(t, err)
	assert.Equal(t, p, again)
}

func TestReserve_Concurrent(t *testing.T) {
	dir := t.TempDir()

	const n = 20

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		paths = make(map[string]struct{}, n)
	)

	for i := 0; i < n; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			p, err := Reserve(dir, "same.bin")
			if !assert.NoError(t, err) {
				return
			}

			mu.Lock()
			paths[p] = struct{}{}
			mu.Unlock()
		}()
	}

	wg.Wait()

	assert.Len(t, paths, n, "every concurrent reservation must get a distinct path")
}

func TestReserve_MissingDir(t *testing.T) {
	_, err := Reserve(filepath.Join(t.TempDir(), "missing"), "a.zip")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrExhausted)
}
