package session

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/italolelis/fetchbox/internal/transfer"
)

// partFile receives the body next to the reserved destination. The leading
// dot keeps it out of file listings until it is renamed into place. release
// frees the reservation once the destination is final or gone.
type partFile struct {
	dest      string
	file      *os.File
	release   func()
	committed bool
}

func createPart(dest string, release func()) (*partFile, error) {
	f, err := os.CreateTemp(filepath.Dir(dest), ".fetchbox-*.part")
	if err != nil {
		return nil, &transfer.StorageError{Op: "create", Path: dest, Err: err}
	}

	return &partFile{dest: dest, file: f, release: release}, nil
}

func (p *partFile) Write(b []byte) error {
	if _, err := p.file.Write(b); err != nil {
		return &transfer.StorageError{Op: "write", Path: p.file.Name(), Err: err}
	}

	return nil
}

// Commit flushes the data and atomically replaces the reserved placeholder.
func (p *partFile) Commit() error {
	if err := p.file.Sync(); err != nil {
		return &transfer.StorageError{Op: "sync", Path: p.file.Name(), Err: err}
	}

	if err := p.file.Close(); err != nil {
		return &transfer.StorageError{Op: "close", Path: p.file.Name(), Err: err}
	}

	if err := os.Rename(p.file.Name(), p.dest); err != nil {
		return &transfer.StorageError{Op: "rename", Path: p.dest, Err: fmt.Errorf("from %s: %w", p.file.Name(), err)}
	}

	p.committed = true
	p.release()

	return nil
}

// Discard removes the temporary file and the placeholder unless the commit succeeded.
func (p *partFile) Discard() {
	if p.committed {
		return
	}

	_ = p.file.Close()
	_ = os.Remove(p.file.Name())
	_ = os.Remove(p.dest)
	p.release()
}
