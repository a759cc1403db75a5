// Package watcher keeps an index current while files change.
//
// A Source (fsnotify, or polling where fsnotify fails such as network
// mounts and Docker volumes) feeds a per-path Debouncer. Coalesced events
// go into a bounded queue sharded by path, so events for one file are
// handled in order by a single worker, and workers call the indexer.
//
// Usage:
//
//	w, err := watcher.NewDirectoryWatcher(root, writer, watcher.Options{
//	    Exclude:        excluder.Func(),
//	    OnIgnoreChange: excluder.Reload,
//	})
//	if err != nil {
//	    return err
//	}
//	go func() {
//	    for err := range w.Errors() {
//	        slog.Warn("watcher_error", slog.String("error", err.Error()))
//	    }
//	}()
//	return w.Run(ctx)
package watcher
