// Package ui renders indexing progress and index status in the terminal:
// a bubbletea view for interactive terminals, plain lines for pipes and CI.
package ui

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/Aman-CERP/semindex/internal/index"
)

// Stage is a phase of a directory indexing run.
type Stage int

const (
	// StageScanning walks the tree and applies exclusion rules.
	StageScanning Stage = iota
	// StageIndexing chunks, embeds and stores changed files.
	StageIndexing
	// StageComplete means the run finished.
	StageComplete
)

// String returns the human-readable stage name.
func (s Stage) String() string {
	switch s {
	case StageScanning:
		return "Scanning"
	case StageIndexing:
		return "Indexing"
	case StageComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// Icon returns the short stage tag for plain text output.
func (s Stage) Icon() string {
	switch s {
	case StageScanning:
		return "SCAN"
	case StageIndexing:
		return "INDEX"
	case StageComplete:
		return "DONE"
	default:
		return "???"
	}
}

// ProgressEvent is a progress update.
type ProgressEvent struct {
	Stage       Stage
	Current     int
	Total       int
	CurrentFile string
	Message     string
}

// ErrorEvent is a per-file problem.
type ErrorEvent struct {
	File   string
	Err    error
	IsWarn bool
}

// EmbedderInfo describes the embedding model in use.
type EmbedderInfo struct {
	Model      string
	Dimensions int
}

// CompletionStats summarizes a finished run.
type CompletionStats struct {
	Processed int
	Indexed   int
	Skipped   int
	Excluded  int
	Deleted   int
	Chunks    int
	Embedded  int
	Errors    int
	Duration  time.Duration
	Embedder  EmbedderInfo
}

// CompletionFromStats converts the result of Writer.IndexDirectory.
func CompletionFromStats(s index.Stats, emb EmbedderInfo) CompletionStats {
	return CompletionStats{
		Processed: s.Processed,
		Indexed:   s.Indexed,
		Skipped:   s.Skipped,
		Excluded:  s.Excluded,
		Deleted:   s.Deleted,
		Chunks:    s.Chunks,
		Embedded:  s.Embedded,
		Errors:    s.Errors,
		Duration:  s.Duration,
		Embedder:  emb,
	}
}

// Renderer displays progress.
type Renderer interface {
	Start(ctx context.Context) error
	UpdateProgress(event ProgressEvent)
	AddError(event ErrorEvent)
	Complete(stats CompletionStats)
	Stop() error
}

// ProgressFunc adapts r to Writer.OnProgress. Failed files are also
// reported through AddError.
func ProgressFunc(r Renderer) func(index.Progress) {
	return func(p index.Progress) {
		r.UpdateProgress(ProgressEvent{
			Stage:       StageIndexing,
			Current:     p.Done,
			Total:       p.Total,
			CurrentFile: p.Path,
		})
		if p.Status == index.StatusFailed {
			r.AddError(ErrorEvent{File: p.Path, Err: errFileFailed})
		}
	}
}

// Config configures a renderer.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
	// ProjectDir is shown in the header.
	ProjectDir string
}

// ConfigOption modifies a Config.
type ConfigOption func(*Config)

// WithForcePlain forces plain text output.
func WithForcePlain(force bool) ConfigOption {
	return func(c *Config) {
		c.ForcePlain = force
	}
}

// WithNoColor disables color output.
func WithNoColor(noColor bool) ConfigOption {
	return func(c *Config) {
		c.NoColor = noColor
	}
}

// WithProjectDir sets the directory shown in the header.
func WithProjectDir(dir string) ConfigOption {
	return func(c *Config) {
		c.ProjectDir = dir
	}
}

// NewConfig creates a Config for output.
func NewConfig(output io.Writer, opts ...ConfigOption) Config {
	cfg := Config{Output: output}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewRenderer returns the TUI renderer for interactive terminals and the
// plain renderer for pipes, CI, or when plain output is forced.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain || !IsTTY(cfg.Output) || DetectCI() {
		return NewPlainRenderer(cfg)
	}
	tui, err := NewTUIRenderer(cfg)
	if err != nil {
		return NewPlainRenderer(cfg)
	}
	return tui
}

// IsTTY reports whether w is a terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// DetectNoColor reports whether NO_COLOR is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI reports whether the process runs under a CI system.
func DetectCI() bool {
	for _, v := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"} {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}
