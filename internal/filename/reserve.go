package filename

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	filePerm = 0o644

	// maxAttempts bounds the numeric suffix search in Reserve.
	maxAttempts = 10000
)

// ErrExhausted is returned when every suffixed candidate is taken.
var ErrExhausted = errors.New("filename: no free name found")

// Reserve claims a path for name inside dir by creating an empty file with
// O_EXCL. When the name is taken it retries with "name(1).ext", "name(2).ext", ...
// The returned path exists and belongs to the caller, who must remove it on failure.
func Reserve(dir, name string) (string, error) {
	for i := 0; i < maxAttempts; i++ {
		candidate := filepath.Join(dir, WithSuffix(name, i))

		f, err := os.OpenFile(candidate, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
		if err == nil {
			if err := f.Close(); err != nil {
				_ = os.Remove(candidate)

				return "", fmt.Errorf("failed to close reserved file: %w", err)
			}

			return candidate, nil
		}

		if errors.Is(err, fs.ErrExist) {
			continue
		}

		return "", fmt.Errorf("failed to reserve %s: %w", candidate, err)
	}

	return "", fmt.Errorf("%w for %s in %s", ErrExhausted, name, dir)
}

// WithSuffix inserts "(n)" before the extension of name. n == 0 returns name unchanged.
// The base is shortened so the result still fits MaxLength.
func WithSuffix(name string, n int) string {
	if n == 0 {
		return name
	}

	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	suffix := fmt.Sprintf("(%d)", n)

	if over := len(base) + len(suffix) + len(ext) - MaxLength; over > 0 {
		base = truncate(base, max(len(base)-over, 0))
	}

	return base + suffix + ext
}
