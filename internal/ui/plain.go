package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// plainEvery limits plain progress lines to one per this many files, plus
// the last one.
const plainEvery = 50

// PlainRenderer writes line-oriented progress for CI and pipes.
type PlainRenderer struct {
	mu     sync.Mutex
	out    io.Writer
	last   int
	errors int
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(context.Context) error {
	return nil
}

// UpdateProgress implements Renderer.
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg := event.Message
	if msg == "" {
		msg = event.CurrentFile
	}
	if event.Total <= 0 {
		if msg != "" {
			_, _ = fmt.Fprintf(r.out, "[%s] %s\n", event.Stage.Icon(), msg)
		}
		return
	}
	if event.Current < event.Total && event.Current-r.last < plainEvery {
		return
	}
	r.last = event.Current
	_, _ = fmt.Fprintf(r.out, "[%s] %d/%d - %s\n", event.Stage.Icon(), event.Current, event.Total, msg)
}

// AddError implements Renderer.
func (r *PlainRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prefix := "ERROR"
	if event.IsWarn {
		prefix = "WARN"
	} else {
		r.errors++
	}
	if event.File != "" {
		_, _ = fmt.Fprintf(r.out, "%s: %s: %v\n", prefix, event.File, event.Err)
		return
	}
	_, _ = fmt.Fprintf(r.out, "%s: %v\n", prefix, event.Err)
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, _ = fmt.Fprintf(r.out, "Complete: %d files processed, %d indexed, %d unchanged, %d excluded, %d removed in %s\n",
		stats.Processed, stats.Indexed, stats.Skipped, stats.Excluded, stats.Deleted,
		stats.Duration.Round(100*time.Millisecond))
	_, _ = fmt.Fprintf(r.out, "Chunks: %d written, %d embedded\n", stats.Chunks, stats.Embedded)
	if stats.Errors > 0 {
		_, _ = fmt.Fprintf(r.out, "Errors: %d (rerun to retry failed files)\n", stats.Errors)
	}
	if stats.Embedder.Model != "" {
		_, _ = fmt.Fprintf(r.out, "Embedder: %s (%d dims)\n", stats.Embedder.Model, stats.Embedder.Dimensions)
	}
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error {
	return nil
}

var _ Renderer = (*PlainRenderer)(nil)
