package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	semerrors "github.com/Aman-CERP/semindex/internal/errors"
	"github.com/Aman-CERP/semindex/internal/index"
)

// FSWatcher is an fsnotify Source. Every non-excluded directory under the
// root is watched; directories created later are added as they appear.
type FSWatcher struct {
	fsWatcher *fsnotify.Watcher
	exclude   index.ExcludeFunc
	events    chan FileEvent
	errors    chan error
	stopCh    chan struct{}
	rootPath  string
	mu        sync.RWMutex
	stopped   bool
	dropped   atomic.Uint64
}

var _ Source = (*FSWatcher)(nil)

// NewFSWatcher creates an fsnotify source. It fails where the platform
// offers no notification API; callers fall back to polling.
func NewFSWatcher(bufferSize int, exclude index.ExcludeFunc) (*FSWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, semerrors.WatcherError("create fsnotify watcher", err)
	}
	return &FSWatcher{
		fsWatcher: fsw,
		exclude:   exclude,
		events:    make(chan FileEvent, bufferSize),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
	}, nil
}

// Start adds root and its subdirectories, then forwards events until Stop
// is called or ctx is cancelled.
func (w *FSWatcher) Start(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return semerrors.WatcherError("stat watch root", err).WithDetail("path", absPath)
	}
	if !info.IsDir() {
		return semerrors.WatcherError("watch root is not a directory", nil).WithDetail("path", absPath)
	}
	w.mu.Lock()
	w.rootPath = absPath
	w.mu.Unlock()

	if err := w.addRecursive(absPath, false); err != nil {
		return semerrors.WatcherError("add directories to watcher", err).WithDetail("path", absPath)
	}

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.emitError(semerrors.WatcherError("fsnotify", err))
		}
	}
}

// handle converts one fsnotify event.
func (w *FSWatcher) handle(event fsnotify.Event) {
	relPath, err := filepath.Rel(w.rootPath, event.Name)
	if err != nil || relPath == "." {
		return
	}
	relPath = filepath.ToSlash(relPath)

	isDir := false
	if info, err := os.Lstat(event.Name); err == nil {
		isDir = info.IsDir()
	}
	if isDir && excludedDir(w.exclude, event.Name) {
		return
	}

	var op Operation
	switch {
	case event.Op&fsnotify.Create != 0:
		op = OpCreate
		if isDir {
			// Files created before the watch was added produce no event of
			// their own, so the new tree is announced here.
			if err := w.addRecursive(event.Name, true); err != nil {
				w.emitError(semerrors.WatcherError("watch new directory", err).WithDetail("path", relPath))
			}
		}
	case event.Op&fsnotify.Write != 0:
		op = OpModify
	case event.Op&fsnotify.Remove != 0:
		op = OpDelete
	case event.Op&fsnotify.Rename != 0:
		op = OpRename
	default:
		return
	}

	w.emit(FileEvent{Path: relPath, Operation: op, IsDir: isDir, Timestamp: time.Now()})
}

// addRecursive watches dir and every non-excluded directory below it.
// When announce is set, files found on the way are emitted as OpCreate.
func (w *FSWatcher) addRecursive(dir string, announce bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			slog.Warn("watch_walk_failed", slog.String("path", path), slog.String("error", err.Error()))
			return nil
		}
		if !d.IsDir() {
			if announce && d.Type().IsRegular() {
				rel, relErr := filepath.Rel(w.rootPath, path)
				if relErr == nil {
					w.emit(FileEvent{Path: filepath.ToSlash(rel), Operation: OpCreate, Timestamp: time.Now()})
				}
			}
			return nil
		}
		if path != w.rootPath && excludedDir(w.exclude, path) {
			return filepath.SkipDir
		}
		return w.fsWatcher.Add(path)
	})
}

// emit sends an event, dropping it when the buffer is full.
func (w *FSWatcher) emit(event FileEvent) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return
	}

	select {
	case w.events <- event:
	default:
		count := w.dropped.Add(1)
		slog.Warn("watch_buffer_full",
			slog.String("path", event.Path),
			slog.String("op", event.Operation.String()),
			slog.Uint64("total_dropped", count))
	}
}

func (w *FSWatcher) emitError(err error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return
	}
	select {
	case w.errors <- err:
	default:
	}
}

// Dropped returns the number of events lost to a full buffer.
func (w *FSWatcher) Dropped() uint64 {
	return w.dropped.Load()
}

// Stop closes the fsnotify watcher and the output channels.
func (w *FSWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	err := w.fsWatcher.Close()
	close(w.events)
	close(w.errors)
	return err
}

// Events returns the channel of raw file events.
func (w *FSWatcher) Events() <-chan FileEvent {
	return w.events
}

// Errors returns the channel of errors.
func (w *FSWatcher) Errors() <-chan error {
	return w.errors
}
