package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/italolelis/fetchbox/internal/filename"
	"github.com/italolelis/fetchbox/internal/logctx"
)

const dirPerm = 0o755

// Dir is the storage root holding downloaded files.
type Dir struct {
	root string

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewDir(root string) *Dir {
	return &Dir{root: root, inflight: make(map[string]struct{})}
}

func (d *Dir) Root() string {
	return d.root
}

// Ensure creates the storage root if it does not exist.
func (d *Dir) Ensure() error {
	if err := os.MkdirAll(d.root, dirPerm); err != nil {
		return fmt.Errorf("failed to create storage root: %w", err)
	}

	return nil
}

// Reserve creates an empty placeholder for name, or for the first free
// "name(n).ext" variant, and returns its path. Until release is called the
// reserved name is hidden from List and refused by Open and Delete.
func (d *Dir) Reserve(name string) (string, func(), error) {
	if err := d.Ensure(); err != nil {
		return "", nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	dest, err := filename.Reserve(d.root, name)
	if err != nil {
		return "", nil, err
	}

	base := filepath.Base(dest)
	if d.inflight == nil {
		d.inflight = make(map[string]struct{})
	}
	d.inflight[base] = struct{}{}

	var once sync.Once

	release := func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.inflight, base)
			d.mu.Unlock()
		})
	}

	return dest, release, nil
}

func (d *Dir) reservedLocked(name string) bool {
	_, ok := d.inflight[name]

	return ok
}

// List returns the regular files in the root, sorted by name. Hidden entries
// and reserved names are skipped. The root is created when missing.
func (d *Dir) List(ctx context.Context) ([]StoredFile, error) {
	logger := logctx.LoggerFromContext(ctx)

	if err := d.Ensure(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read storage root: %w", err)
	}

	// Taken after ReadDir: a placeholder seen above is already reserved.
	d.mu.Lock()
	hidden := make(map[string]struct{}, len(d.inflight))
	for name := range d.inflight {
		hidden[name] = struct{}{}
	}
	d.mu.Unlock()

	files := make([]StoredFile, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		if _, ok := hidden[entry.Name()]; ok {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			// removed between ReadDir and Info
			logger.DebugContext(ctx, "skipping file", "file", entry.Name(), "err", err)

			continue
		}

		files = append(files, StoredFile{Name: entry.Name(), Size: info.Size(), Modified: info.ModTime()})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })

	return files, nil
}

// Open opens name for reading.
func (d *Dir) Open(name string) (*os.File, fs.FileInfo, error) {
	p, err := d.resolve(name)
	if err != nil {
		return nil, nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.reservedLocked(name) {
		return nil, nil, fmt.Errorf("%w: %s is still downloading", ErrNotFound, name)
	}

	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, ErrNotFound
		}

		return nil, nil, fmt.Errorf("failed to open %s: %w", name, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()

		return nil, nil, fmt.Errorf("failed to stat %s: %w", name, err)
	}

	if !info.Mode().IsRegular() {
		f.Close()

		return nil, nil, ErrNotFound
	}

	return f, info, nil
}

// Delete removes name from the root.
func (d *Dir) Delete(name string) error {
	p, err := d.resolve(name)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.reservedLocked(name) {
		return fmt.Errorf("%w: %s is still downloading", ErrNotFound, name)
	}

	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}

		return fmt.Errorf("failed to delete %s: %w", name, err)
	}

	return nil
}

// resolve maps a client-supplied name to a path inside the root. Only names
// a transfer could have produced are accepted.
func (d *Dir) resolve(name string) (string, error) {
	if name == "" || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) {
		return "", ErrInvalidName
	}

	if filename.Sanitize(name) != name {
		return "", ErrInvalidName
	}

	return filepath.Join(d.root, name), nil
}
