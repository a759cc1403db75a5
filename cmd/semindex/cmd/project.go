package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/semindex/internal/chunk"
	"github.com/Aman-CERP/semindex/internal/config"
	"github.com/Aman-CERP/semindex/internal/embed"
	semerrors "github.com/Aman-CERP/semindex/internal/errors"
	"github.com/Aman-CERP/semindex/internal/index"
	"github.com/Aman-CERP/semindex/internal/logging"
	"github.com/Aman-CERP/semindex/internal/search"
	"github.com/Aman-CERP/semindex/internal/store"
)

// openMode selects whether a command mutates the index.
type openMode int

const (
	readOnly openMode = iota
	// readWrite takes the data directory lock first.
	readWrite
)

// project is one opened index: configuration, stores and the components
// built on them.
type project struct {
	root    string
	dataDir string
	cfg     *config.Config
	logger  *slog.Logger

	lock      *store.DataDirLock
	records   *store.SQLiteRecordStore
	vectors   store.SimilarityStore
	lexical   store.LexicalIndex
	embedder  embed.Embedder
	excluder  *index.Excluder
	writer    *index.Writer
	retriever *search.Retriever

	closers []func() error
}

// projectRoot resolves the --root flag, falling back to the nearest
// project root above the working directory.
func projectRoot(cmd *cobra.Command) (string, error) {
	dir, _ := cmd.Flags().GetString("root")
	if dir != "" {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return "", fmt.Errorf("failed to resolve root: %w", err)
		}
		info, err := os.Stat(abs)
		if err != nil || !info.IsDir() {
			return "", semerrors.ValidationError("root is not a directory", err).WithDetail("path", abs)
		}
		return abs, nil
	}
	return config.FindProjectRoot(".")
}

// openProject loads configuration for root and opens every store.
// readWrite holds the data directory lock until Close.
func openProject(ctx context.Context, root string, mode openMode) (p *project, err error) {
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}

	p = &project{root: root, dataDir: cfg.DataDirFor(root), cfg: cfg}
	defer func() {
		if err != nil {
			_ = p.Close()
		}
	}()

	p.logger = slog.Default()
	if loggingCleanup == nil && mode == readWrite {
		logger, cleanup, lerr := logging.Setup(logging.Config{
			Level:     cfg.Logging.Level,
			FilePath:  logging.DefaultLogPath(),
			MaxSizeMB: 10,
			MaxFiles:  5,
		})
		if lerr == nil {
			p.logger = logger
			p.closers = append(p.closers, func() error { cleanup(); return nil })
		}
	}

	if mode == readWrite {
		p.lock = store.NewDataDirLock(p.dataDir)
		if err := p.lock.TryLock(); err != nil {
			return p, err
		}
		p.closers = append(p.closers, p.lock.Unlock)
	} else if _, serr := os.Stat(store.RecordsPath(p.dataDir)); errors.Is(serr, os.ErrNotExist) {
		return p, semerrors.New(semerrors.ErrCodeStoreUnavailable, "no index found", serr).
			WithDetail("path", p.dataDir).
			WithSuggestion("run 'semindex index' first")
	}

	p.embedder, err = embed.New(ctx, cfg.Embeddings)
	if err != nil {
		return p, err
	}
	p.closers = append(p.closers, p.embedder.Close)

	p.records, err = store.NewSQLiteRecordStore(store.RecordsPath(p.dataDir))
	if err != nil {
		return p, semerrors.StoreUnavailable("open records", err)
	}
	p.closers = append(p.closers, p.records.Close)

	p.vectors, err = store.New(store.Options{
		Backend:    cfg.Store.Backend,
		Dimensions: p.embedder.Dimensions(),
		Path:       store.VectorPath(p.dataDir, cfg.Store.Backend),
		M:          cfg.Store.HNSWM,
		EfSearch:   cfg.Store.HNSWEfSearch,
	})
	if err != nil {
		return p, err
	}
	p.closers = append(p.closers, p.vectors.Close)

	if cfg.Lexical.Backend != store.LexicalNone {
		p.lexical, err = store.NewLexicalIndex(filepath.Join(p.dataDir, "lexical"), cfg.Lexical.Backend)
		if err != nil {
			return p, semerrors.StoreUnavailable("open lexical index", err)
		}
		p.closers = append(p.closers, p.lexical.Close)
	}

	p.excluder, err = index.NewExcluder(index.ExcludeConfig{
		Root:              root,
		DataDir:           p.dataDir,
		Patterns:          cfg.Paths.Exclude,
		AllowedExtensions: cfg.Index.AllowedExtensions,
		MaxFileSize:       cfg.Index.MaxFileSize,
		UseGitignore:      !cfg.Index.IgnoreGitignore,
	})
	if err != nil {
		return p, err
	}

	retry := semerrors.DefaultRetryConfig()
	retry.MaxRetries = cfg.Index.MaxRetries

	p.writer, err = index.NewWriter(index.WriterConfig{
		Root:         root,
		Chunker:      chunk.NewStructuralChunker(chunk.WithLogger(p.logger)),
		Embedder:     p.embedder,
		Vectors:      p.vectors,
		Records:      p.records,
		Lexical:      p.lexical,
		Exclude:      p.excluder.Func(),
		MaxChunkSize: cfg.Chunking.MaxChunkSize,
		Overlap:      cfg.Chunking.Overlap,
		Workers:      cfg.Index.WorkerPoolSize,
		Timeout:      cfg.Index.Timeout(),
		Retry:        retry,
		Logger:       p.logger,
	})
	if err != nil {
		return p, err
	}

	opts := search.OptionsFromConfig(cfg.Search)
	opts.Logger = p.logger
	p.retriever, err = search.NewRetriever(p.vectors, p.lexical, p.embedder, opts)
	if err != nil {
		return p, err
	}
	return p, nil
}

// embedderInfo describes the embedder for progress output.
func (p *project) embedderInfo() embed.Info {
	return embed.GetInfo(p.embedder)
}

// Close releases everything openProject acquired, in reverse order.
func (p *project) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	p.closers = nil
	return errors.Join(errs...)
}
