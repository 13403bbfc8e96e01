package blob

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fairyhunter13/ai-convo-evaluator/internal/domain"
)

// Local stores blobs as files under a base directory.
type Local struct {
	base string
}

// NewLocal creates the base directory if needed.
func NewLocal(base string) (*Local, error) {
	if base == "" {
		return nil, fmt.Errorf("op=blob.local: %w: storage path required", domain.ErrInvalidArgument)
	}
	if err := os.MkdirAll(base, 0o750); err != nil {
		return nil, fmt.Errorf("op=blob.local: %w", err)
	}
	return &Local{base: base}, nil
}

// resolve joins the opaque path under base, rejecting traversal.
func (l *Local) resolve(path string) (string, error) {
	clean := filepath.Clean("/" + path)
	if strings.Contains(clean, "..") {
		return "", fmt.Errorf("%w: invalid path %q", domain.ErrInvalidArgument, path)
	}
	return filepath.Join(l.base, clean), nil
}

// Save writes bytes, creating intermediate directories.
func (l *Local) Save(_ domain.Context, path string, data []byte) error {
	full, err := l.resolve(path)
	if err != nil {
		return fmt.Errorf("op=blob.save: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return fmt.Errorf("op=blob.save: %w", err)
	}
	if err := os.WriteFile(full, data, 0o640); err != nil {
		return fmt.Errorf("op=blob.save: %w", err)
	}
	return nil
}

// Read returns the stored bytes; missing files map to ErrNotFound.
func (l *Local) Read(_ domain.Context, path string) ([]byte, error) {
	full, err := l.resolve(path)
	if err != nil {
		return nil, fmt.Errorf("op=blob.read: %w", err)
	}
	b, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("op=blob.read: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("op=blob.read: %w", err)
	}
	return b, nil
}

// Delete removes the file; missing files are not an error.
func (l *Local) Delete(_ domain.Context, path string) error {
	full, err := l.resolve(path)
	if err != nil {
		return fmt.Errorf("op=blob.delete: %w", err)
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("op=blob.delete: %w", err)
	}
	return nil
}
