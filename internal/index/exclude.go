package index

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Aman-CERP/semindex/internal/gitignore"
)

// ExcludeFunc reports whether path must not be indexed.
type ExcludeFunc func(path string, isDir bool) bool

// DefaultMaxFileSize is used when ExcludeConfig.MaxFileSize is zero.
const DefaultMaxFileSize int64 = 1 << 20

// binarySniffLen is how many leading bytes are checked for NUL.
const binarySniffLen = 8000

// builtinExcludes are never indexed regardless of configuration.
var builtinExcludes = []string{".git/", ".hg/", ".svn/", "node_modules/"}

// ExcludeConfig configures an Excluder.
type ExcludeConfig struct {
	Root    string
	DataDir string
	// Patterns are extra gitignore-style patterns scoped to Root.
	Patterns []string
	// AllowedExtensions lists eligible suffixes with the leading dot.
	// Empty allows every extension.
	AllowedExtensions []string
	MaxFileSize       int64
	// UseGitignore loads every .gitignore below Root.
	UseGitignore bool
}

// Excluder is the exclusion predicate used by the writer and the watcher.
// Directory checks only consult patterns. File checks also apply the
// extension allow-list, the size limit and binary sniffing. A file that
// does not exist is never excluded so its deletion can be processed.
type Excluder struct {
	cfg     ExcludeConfig
	allowed map[string]bool

	mu      sync.RWMutex
	matcher *gitignore.Matcher
}

// NewExcluder builds an Excluder and loads its patterns.
func NewExcluder(cfg ExcludeConfig) (*Excluder, error) {
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = DefaultMaxFileSize
	}
	e := &Excluder{cfg: cfg}
	if len(cfg.AllowedExtensions) > 0 {
		e.allowed = make(map[string]bool, len(cfg.AllowedExtensions))
		for _, ext := range cfg.AllowedExtensions {
			ext = strings.ToLower(strings.TrimSpace(ext))
			if ext != "" && !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			e.allowed[ext] = true
		}
	}
	if err := e.Reload(); err != nil {
		return nil, err
	}
	return e, nil
}

// Reload rebuilds the pattern set, picking up .gitignore edits.
func (e *Excluder) Reload() error {
	m := gitignore.New()
	for _, p := range builtinExcludes {
		m.AddPattern(p)
	}
	for _, p := range e.cfg.Patterns {
		m.AddPattern(p)
	}
	if e.cfg.UseGitignore && e.cfg.Root != "" {
		if err := m.LoadTree(e.cfg.Root); err != nil {
			return err
		}
	}

	e.mu.Lock()
	e.matcher = m
	e.mu.Unlock()
	return nil
}

// Func returns the predicate as an ExcludeFunc.
func (e *Excluder) Func() ExcludeFunc {
	return e.Exclude
}

// Exclude implements ExcludeFunc.
func (e *Excluder) Exclude(path string, isDir bool) bool {
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(e.cfg.Root, path)
	}
	if e.inDataDir(abs) {
		return true
	}

	rel, err := filepath.Rel(e.cfg.Root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return true
	}

	e.mu.RLock()
	matcher := e.matcher
	e.mu.RUnlock()
	if matcher.Match(rel, isDir) {
		return true
	}
	if isDir {
		return false
	}

	if e.allowed != nil && !e.allowed[strings.ToLower(filepath.Ext(abs))] {
		return true
	}

	info, err := os.Lstat(abs)
	if err != nil {
		return false
	}
	if !info.Mode().IsRegular() {
		return true
	}
	if info.Size() > e.cfg.MaxFileSize {
		slog.Debug("file_excluded_size",
			slog.String("path", rel),
			slog.Int64("size", info.Size()),
			slog.Int64("max", e.cfg.MaxFileSize))
		return true
	}
	return isBinaryFile(abs)
}

func (e *Excluder) inDataDir(abs string) bool {
	if e.cfg.DataDir == "" {
		return false
	}
	dataDir := filepath.Clean(e.cfg.DataDir)
	return abs == dataDir || strings.HasPrefix(abs, dataDir+string(filepath.Separator))
}

// isBinaryFile sniffs the head of the file for a NUL byte.
func isBinaryFile(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, binarySniffLen)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return false
	}
	return bytes.IndexByte(buf[:n], 0) >= 0
}
