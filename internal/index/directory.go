package index

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	semerrors "github.com/Aman-CERP/semindex/internal/errors"
)

// Stats summarizes an IndexDirectory pass.
type Stats struct {
	// Processed counts candidate files handed to IndexFile.
	Processed int `json:"processed"`
	Indexed   int `json:"indexed"`
	Skipped   int `json:"skipped"`
	// Excluded counts files rejected by the exclusion predicate.
	Excluded int `json:"excluded"`
	Errors   int `json:"errors"`
	// Deleted counts records reconciled away because their file is gone.
	Deleted  int           `json:"deleted"`
	Chunks   int           `json:"chunks"`
	Embedded int           `json:"embedded"`
	Duration time.Duration `json:"duration"`
	// Failures maps failed paths to their error message.
	Failures map[string]string `json:"failures,omitempty"`
}

// Progress is reported after every file during IndexDirectory.
type Progress struct {
	Done   int
	Total  int
	Path   string
	Status Status
}

// OnProgress registers fn to receive progress updates. It must be set
// before IndexDirectory is called and is invoked from worker goroutines.
func (w *Writer) OnProgress(fn func(Progress)) {
	w.progress = fn
}

// IndexDirectory indexes every eligible file under root on a bounded worker
// pool. Per-file failures are counted, not returned; the error is non-nil
// only when the walk itself fails or ctx is cancelled. Records for files
// under root that are gone or now excluded are deleted.
func (w *Writer) IndexDirectory(ctx context.Context, root string, recursive bool) (Stats, error) {
	start := time.Now()
	stats := Stats{Failures: make(map[string]string)}

	absRoot, rootKey := w.paths.resolve(root)
	candidates, excluded, err := w.collect(ctx, absRoot, recursive)
	stats.Excluded = excluded
	if err != nil {
		stats.Duration = time.Since(start)
		return stats, err
	}

	var mu sync.Mutex
	seen := make(map[string]bool, len(candidates))
	record := func(res Result, err error) {
		mu.Lock()
		defer mu.Unlock()
		stats.Processed++
		switch {
		case err != nil:
			stats.Errors++
			stats.Failures[res.Path] = err.Error()
		case res.Status == StatusIndexed:
			stats.Indexed++
		default:
			stats.Skipped++
		}
		stats.Chunks += res.Chunks
		stats.Embedded += res.Embedded
		if w.progress != nil {
			w.progress(Progress{Done: stats.Processed, Total: len(candidates), Path: res.Path, Status: res.Status})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.cfg.Workers)
	for _, path := range candidates {
		if gctx.Err() != nil {
			break
		}
		_, key := w.paths.resolve(path)
		seen[key] = true
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			res, err := w.IndexFile(gctx, path)
			if err != nil && gctx.Err() != nil {
				return nil
			}
			record(res, err)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		stats.Duration = time.Since(start)
		return stats, err
	}

	deleted, err := w.reconcile(ctx, rootKey, recursive, seen)
	stats.Deleted = deleted
	stats.Duration = time.Since(start)
	if err != nil {
		return stats, err
	}

	w.logger.Info("directory_indexed",
		slog.String("root", absRoot),
		slog.Int("processed", stats.Processed),
		slog.Int("indexed", stats.Indexed),
		slog.Int("skipped", stats.Skipped),
		slog.Int("excluded", stats.Excluded),
		slog.Int("errors", stats.Errors),
		slog.Int("deleted", stats.Deleted),
		slog.Duration("duration", stats.Duration))
	return stats, nil
}

// collect walks root and splits files into candidates and excluded ones.
func (w *Writer) collect(ctx context.Context, root string, recursive bool) ([]string, int, error) {
	var candidates []string
	excluded := 0

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if path == root {
				return semerrors.ReadError(root, walkErr)
			}
			w.logger.Warn("walk_failed", slog.String("path", path), slog.String("error", walkErr.Error()))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if path == root {
				return nil
			}
			if !recursive || (w.cfg.Exclude != nil && w.cfg.Exclude(path, true)) {
				return filepath.SkipDir
			}
			return nil
		}

		if w.cfg.Exclude != nil && w.cfg.Exclude(path, false) {
			excluded++
			return nil
		}
		if !d.Type().IsRegular() {
			excluded++
			return nil
		}
		candidates = append(candidates, path)
		return nil
	})
	return candidates, excluded, err
}

// RemoveDirectory drops every record under dir, for a directory that was
// deleted or renamed away. It returns the number of files removed.
func (w *Writer) RemoveDirectory(ctx context.Context, dir string) (int, error) {
	_, key := w.paths.resolve(dir)
	return w.reconcile(ctx, key, true, nil)
}

// reconcile removes records under rootKey whose files were not seen.
func (w *Writer) reconcile(ctx context.Context, rootKey string, recursive bool, seen map[string]bool) (int, error) {
	records, err := w.cfg.Records.List(ctx)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		if seen[rec.Path] || !underRoot(rec.Path, rootKey, recursive) {
			continue
		}
		res, err := w.Remove(ctx, rec.Path)
		if err != nil {
			continue
		}
		if res.Status == StatusIndexed {
			deleted++
		}
	}
	return deleted, nil
}

// underRoot reports whether record key lies under rootKey, directly when
// recursive is false.
func underRoot(key, rootKey string, recursive bool) bool {
	var rest string
	switch {
	case rootKey == ".":
		rest = key
	case strings.HasPrefix(key, rootKey+"/"):
		rest = key[len(rootKey)+1:]
	default:
		return false
	}
	return recursive || !strings.Contains(rest, "/")
}
