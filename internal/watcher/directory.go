package watcher

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/Aman-CERP/semindex/internal/config"
	semerrors "github.com/Aman-CERP/semindex/internal/errors"
	"github.com/Aman-CERP/semindex/internal/index"
)

// Source kinds reported by SourceType.
const (
	SourceFSNotify = "fsnotify"
	SourcePolling  = "polling"
)

// WatchStats counts what a DirectoryWatcher has done across runs.
type WatchStats struct {
	Events  uint64 `json:"events"`
	Indexed uint64 `json:"indexed"`
	Removed uint64 `json:"removed"`
	Skipped uint64 `json:"skipped"`
	Failed  uint64 `json:"failed"`
	Rescans uint64 `json:"rescans"`
}

// DirectoryWatcher dispatches debounced file events to an Indexer.
//
// Run blocks while watching. Stop, or cancelling Run's context, halts new
// dispatch, discards queued events and waits for files already being
// indexed. Run may be called again after it returns; correctness rests on
// the indexer re-classifying files, so a restart loses nothing.
type DirectoryWatcher struct {
	root    string
	indexer Indexer
	opts    Options
	logger  *slog.Logger
	errors  chan error

	mu         sync.Mutex
	cancel     context.CancelFunc
	done       chan struct{}
	sourceType string

	events  atomic.Uint64
	indexed atomic.Uint64
	removed atomic.Uint64
	skipped atomic.Uint64
	failed  atomic.Uint64
	rescans atomic.Uint64
}

// NewDirectoryWatcher creates a watcher for the directory tree at root.
func NewDirectoryWatcher(root string, indexer Indexer, opts Options) (*DirectoryWatcher, error) {
	if indexer == nil {
		return nil, semerrors.ValidationError("watcher requires an indexer", nil)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, semerrors.ValidationError("resolve watch root", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, semerrors.WatcherError("stat watch root", err).WithDetail("path", abs)
	}
	if !info.IsDir() {
		return nil, semerrors.ValidationError("watch root is not a directory", nil).WithDetail("path", abs)
	}

	opts = opts.WithDefaults()
	return &DirectoryWatcher{
		root:    abs,
		indexer: indexer,
		opts:    opts,
		logger:  opts.Logger,
		errors:  make(chan error, 16),
	}, nil
}

// Errors returns watcher faults as WatcherError values. The channel is
// never closed; it outlives individual runs.
func (w *DirectoryWatcher) Errors() <-chan error {
	return w.errors
}

// SourceType returns the source used by the latest run.
func (w *DirectoryWatcher) SourceType() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sourceType
}

// Stats returns cumulative counters.
func (w *DirectoryWatcher) Stats() WatchStats {
	return WatchStats{
		Events:  w.events.Load(),
		Indexed: w.indexed.Load(),
		Removed: w.removed.Load(),
		Skipped: w.skipped.Load(),
		Failed:  w.failed.Load(),
		Rescans: w.rescans.Load(),
	}
}

// Run watches until ctx is cancelled or Stop is called, returning nil in
// both cases. A source fault ends the run with a retryable WatcherError.
func (w *DirectoryWatcher) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return semerrors.ValidationError("watcher is already running", nil)
	}
	done := make(chan struct{})
	w.cancel = cancel
	w.done = done
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.cancel = nil
		w.done = nil
		w.mu.Unlock()
		close(done)
	}()

	src, kind := w.newSource()
	w.mu.Lock()
	w.sourceType = kind
	w.mu.Unlock()

	srcDone := make(chan error, 1)
	go func() { srcDone <- src.Start(runCtx, w.root) }()

	deb := NewDebouncer(w.opts.DebounceWindow)
	queues := make([]chan FileEvent, w.opts.Workers)
	perShard := max(1, w.opts.QueueSize/w.opts.Workers)
	var workers sync.WaitGroup
	for i := range queues {
		queues[i] = make(chan FileEvent, perShard)
		workers.Add(1)
		go func(q <-chan FileEvent) {
			defer workers.Done()
			w.work(runCtx, q)
		}(queues[i])
	}

	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		for batch := range deb.Output() {
			for _, ev := range batch {
				if !enqueue(runCtx, queues, ev) {
					return
				}
			}
		}
	}()

	w.logger.Info("watcher_started",
		slog.String("root", w.root),
		slog.String("source", kind),
		slog.Int("workers", w.opts.Workers),
		slog.Int("queue_size", perShard*len(queues)))

	var runErr error
	srcEvents, srcErrors := src.Events(), src.Errors()
loop:
	for {
		select {
		case <-runCtx.Done():
			break loop
		case err := <-srcDone:
			srcDone = nil
			if runCtx.Err() == nil {
				runErr = sourceFault(err)
			}
			break loop
		case ev, ok := <-srcEvents:
			if !ok {
				srcEvents = nil
				continue
			}
			w.observe(deb, ev)
		case err, ok := <-srcErrors:
			if !ok {
				srcErrors = nil
				continue
			}
			w.emitError(err)
		}
	}

	cancel()
	_ = src.Stop()
	deb.Stop()
	<-dispatched
	for _, q := range queues {
		close(q)
	}
	workers.Wait()
	if srcDone != nil {
		<-srcDone
	}

	if runErr != nil {
		w.emitError(runErr)
	}
	w.logger.Info("watcher_stopped", slog.String("root", w.root), slog.Bool("fault", runErr != nil))
	return runErr
}

// Stop ends the current run and waits for it to return.
func (w *DirectoryWatcher) Stop() error {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func (w *DirectoryWatcher) newSource() (Source, string) {
	if !w.opts.ForcePolling {
		fsw, err := NewFSWatcher(w.opts.EventBufferSize, w.opts.Exclude)
		if err == nil {
			return fsw, SourceFSNotify
		}
		w.logger.Warn("fsnotify_unavailable_polling", slog.String("error", err.Error()))
	}
	return NewPollingWatcher(w.opts.PollInterval, w.opts.EventBufferSize, w.opts.Exclude), SourcePolling
}

func sourceFault(err error) error {
	if err == nil {
		return semerrors.WatcherError("event source stopped unexpectedly", nil)
	}
	if semerrors.HasCode(err, semerrors.ErrCodeWatcherFailed) {
		return err
	}
	return semerrors.WatcherError("event source failed", err)
}

// observe classifies a raw event and hands it to the debouncer.
func (w *DirectoryWatcher) observe(deb *Debouncer, ev FileEvent) {
	w.events.Add(1)
	switch path.Base(ev.Path) {
	case ".gitignore":
		ev.Operation = OpGitignoreChange
	case config.ProjectFileName:
		ev.Operation = OpConfigChange
	default:
		// New and touched directories carry no content of their own; the
		// files inside arrive as separate events.
		if ev.IsDir && ev.Operation != OpDelete && ev.Operation != OpRename {
			return
		}
	}
	deb.Add(ev)
}

// enqueue shards by path so that one worker sees a path's events in order.
func enqueue(ctx context.Context, queues []chan FileEvent, ev FileEvent) bool {
	h := fnv.New32a()
	_, _ = h.Write([]byte(ev.Path))
	q := queues[h.Sum32()%uint32(len(queues))]
	select {
	case q <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (w *DirectoryWatcher) work(ctx context.Context, queue <-chan FileEvent) {
	// In-flight files finish even when the run is cancelled.
	callCtx := context.WithoutCancel(ctx)
	for ev := range queue {
		if ctx.Err() != nil {
			continue
		}
		w.dispatch(callCtx, ev)
	}
}

func (w *DirectoryWatcher) dispatch(ctx context.Context, ev FileEvent) {
	abs := filepath.Join(w.root, filepath.FromSlash(ev.Path))

	switch ev.Operation {
	case OpGitignoreChange:
		w.reconcile(ctx, ev.Path)
		return
	case OpConfigChange:
		w.logger.Warn("config_changed", slog.String("path", ev.Path),
			slog.String("hint", "restart the watcher to apply configuration changes"))
		return
	case OpDelete, OpRename:
		if _, err := os.Lstat(abs); errors.Is(err, os.ErrNotExist) {
			w.remove(ctx, abs)
			return
		}
	}

	w.report(w.indexer.IndexFile(ctx, abs))
}

// remove handles a path that no longer exists. An untracked path may have
// been a directory, so its subtree is dropped too.
func (w *DirectoryWatcher) remove(ctx context.Context, abs string) {
	res, err := w.indexer.Remove(ctx, abs)
	if err != nil || res.Status != index.StatusSkipped {
		w.report(res, err)
		return
	}
	n, err := w.indexer.RemoveDirectory(ctx, abs)
	if err != nil {
		w.report(index.Result{Path: abs, Status: index.StatusFailed, Reason: err.Error()}, err)
		return
	}
	if n == 0 {
		w.report(res, nil)
		return
	}
	w.removed.Add(uint64(n))
	w.logger.Info("directory_removed", slog.String("path", abs), slog.Int("files", n))
}

// reconcile reloads ignore rules and re-runs a full pass so that newly
// ignored files leave the index and newly visible ones join it.
func (w *DirectoryWatcher) reconcile(ctx context.Context, changed string) {
	w.rescans.Add(1)
	if w.opts.OnIgnoreChange != nil {
		if err := w.opts.OnIgnoreChange(); err != nil {
			w.emitError(semerrors.WatcherError("reload ignore rules", err).WithDetail("path", changed))
			return
		}
	}
	stats, err := w.indexer.IndexDirectory(ctx, w.root, true)
	if err != nil {
		w.emitError(semerrors.WatcherError("reconcile after ignore change", err).WithDetail("path", changed))
		return
	}
	w.logger.Info("ignore_rules_reconciled",
		slog.String("path", changed),
		slog.Int("indexed", stats.Indexed),
		slog.Int("deleted", stats.Deleted),
		slog.Int("errors", stats.Errors))
}

func (w *DirectoryWatcher) report(res index.Result, err error) {
	switch {
	case err != nil:
		w.failed.Add(1)
	case res.Status == index.StatusIndexed &&
		(res.Reason == index.ChangeDeleted.String() || res.Reason == index.ReasonExcluded):
		w.removed.Add(1)
	case res.Status == index.StatusIndexed:
		w.indexed.Add(1)
	default:
		w.skipped.Add(1)
	}
	if w.opts.OnResult != nil {
		w.opts.OnResult(res, err)
	}
}

func (w *DirectoryWatcher) emitError(err error) {
	select {
	case w.errors <- err:
	default:
		w.logger.Warn("watcher_error_dropped", slog.String("error", err.Error()))
	}
}
