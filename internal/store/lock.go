package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	semerrors "github.com/Aman-CERP/semindex/internal/errors"
)

// LockFileName is created inside the data directory while a writer holds it.
const LockFileName = "writer.lock"

// DataDirLock is a cross-process exclusive lock on a data directory, so two
// writers never share one index.
type DataDirLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewDataDirLock creates an unlocked lock for dataDir.
func NewDataDirLock(dataDir string) *DataDirLock {
	path := filepath.Join(dataDir, LockFileName)
	return &DataDirLock{path: path, flock: flock.New(path)}
}

// TryLock acquires the lock without blocking. A lock held by another
// process yields an ERR_204_LOCK_HELD error.
func (l *DataDirLock) TryLock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		return semerrors.New(semerrors.ErrCodeLockHeld, "another semindex process is writing to this index", nil).
			WithDetail("lock", l.path).
			WithSuggestion("stop the other 'semindex index' or 'semindex watch' process")
	}
	l.locked = true
	return nil
}

// Unlock releases the lock. Unlocking an unlocked lock is a no-op.
func (l *DataDirLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *DataDirLock) Path() string { return l.path }
