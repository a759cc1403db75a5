package watcher

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"github.com/Aman-CERP/semindex/internal/index"
)

// Operation represents a file system operation type.
type Operation int

const (
	// OpCreate indicates a new file or directory was created.
	OpCreate Operation = iota
	// OpModify indicates an existing file was modified.
	OpModify
	// OpDelete indicates a file or directory was deleted.
	OpDelete
	// OpRename indicates a file or directory was renamed away.
	// The new name arrives as a separate OpCreate.
	OpRename
	// OpGitignoreChange indicates a .gitignore file was modified.
	// This reloads exclusion patterns and reconciles the whole tree.
	OpGitignoreChange
	// OpConfigChange indicates the .semindex.yaml config file was modified.
	OpConfigChange
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	case OpGitignoreChange:
		return "GITIGNORE_CHANGE"
	case OpConfigChange:
		return "CONFIG_CHANGE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent represents a file system event.
type FileEvent struct {
	// Path is slash-separated and relative to the watched root.
	Path string

	// Operation is the type of file system operation.
	Operation Operation

	// IsDir indicates if the event is for a directory. fsnotify deletions
	// report false, since the type can no longer be observed.
	IsDir bool

	// Timestamp is when the event was detected.
	Timestamp time.Time
}

// Source produces raw, undebounced file events for a directory tree.
type Source interface {
	// Start begins watching root recursively and blocks until Stop is
	// called or ctx is cancelled.
	Start(ctx context.Context, root string) error

	// Stop stops the source and closes its channels.
	// Safe to call multiple times.
	Stop() error

	// Events returns the channel of raw file events.
	Events() <-chan FileEvent

	// Errors returns non-fatal source errors; the source keeps running.
	Errors() <-chan error
}

// Indexer is the part of index.Writer the watcher drives.
type Indexer interface {
	IndexFile(ctx context.Context, path string) (index.Result, error)
	Remove(ctx context.Context, path string) (index.Result, error)
	RemoveDirectory(ctx context.Context, dir string) (int, error)
	IndexDirectory(ctx context.Context, root string, recursive bool) (index.Stats, error)
}

// Options configures the watcher behavior.
type Options struct {
	// DebounceWindow is the time to wait before emitting coalesced events.
	// Default: 200ms
	DebounceWindow time.Duration

	// PollInterval is the interval for polling mode (fallback).
	// Default: 2s
	PollInterval time.Duration

	// EventBufferSize is the size of a source's raw event channel.
	// Default: 1000
	EventBufferSize int

	// QueueSize bounds the dispatch queue shared by the workers.
	// Default: 256
	QueueSize int

	// Workers is the number of dispatch workers.
	// Default: runtime.NumCPU(), capped at 8
	Workers int

	// ForcePolling skips fsnotify, for network mounts and container volumes.
	ForcePolling bool

	// Exclude filters directories out of the watch set. File events are
	// left to the indexer so that files which become excluded are removed.
	Exclude index.ExcludeFunc

	// OnIgnoreChange runs after a .gitignore edit, before the tree is
	// reconciled. Typically index.Excluder.Reload.
	OnIgnoreChange func() error

	// OnResult observes every dispatched file.
	OnResult func(index.Result, error)

	Logger *slog.Logger
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		DebounceWindow:  200 * time.Millisecond,
		PollInterval:    2 * time.Second,
		EventBufferSize: 1000,
		QueueSize:       256,
		Workers:         min(runtime.NumCPU(), 8),
	}
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = defaults.DebounceWindow
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaults.PollInterval
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = defaults.EventBufferSize
	}
	if o.QueueSize <= 0 {
		o.QueueSize = defaults.QueueSize
	}
	if o.Workers <= 0 {
		o.Workers = defaults.Workers
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// excludedDir applies the directory filter to an absolute path.
func excludedDir(exclude index.ExcludeFunc, abs string) bool {
	return exclude != nil && exclude(abs, true)
}
