package scratch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/google/uuid"
)

// Store writes single-use artifacts into a scratch directory.
// Names are UUID-qualified, so concurrent requests never collide
// and no locking is needed.
type Store struct {
	dir string
}

// NewStore creates a scratch store rooted at dir.
// An empty dir falls back to the system temp directory.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		dir = os.TempDir()
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create scratch directory %s: %w", dir, err)
	}

	return &Store{dir: dir}, nil
}

// Dir returns the scratch directory root.
func (s *Store) Dir() string {
	return s.dir
}

// Handle is the ownership token for one scratch artifact.
// The owner must call Release exactly once; extra calls are harmless.
type Handle struct {
	path     string
	released atomic.Bool
}

// Acquire writes data to a uniquely named file and returns its handle.
func (s *Store) Acquire(data []byte) (*Handle, error) {
	path := filepath.Join(s.dir, fmt.Sprintf("ingest-%s.wav", uuid.NewString()))

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write scratch artifact: %w", err)
	}

	return &Handle{path: path}, nil
}

// Path returns the on-disk location of the artifact.
func (h *Handle) Path() string {
	return h.path
}

// Release removes the underlying file. It is idempotent: repeated calls
// and an already-missing file both succeed silently.
func (h *Handle) Release() error {
	if h.released.Swap(true) {
		return nil
	}

	if err := os.Remove(h.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove scratch artifact %s: %w", h.path, err)
	}

	return nil
}
