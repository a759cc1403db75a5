// Package integration exercises the writer, the stores, the retriever and
// the watcher together against real on-disk backends.
package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/semindex/internal/chunk"
	"github.com/Aman-CERP/semindex/internal/embed"
	semerrors "github.com/Aman-CERP/semindex/internal/errors"
	"github.com/Aman-CERP/semindex/internal/index"
	"github.com/Aman-CERP/semindex/internal/logging"
	"github.com/Aman-CERP/semindex/internal/search"
	"github.com/Aman-CERP/semindex/internal/store"
)

// stack is one opened index over a data directory.
type stack struct {
	root      string
	dataDir   string
	embedder  embed.Embedder
	records   *store.SQLiteRecordStore
	vectors   store.SimilarityStore
	lexical   store.LexicalIndex
	writer    *index.Writer
	retriever *search.Retriever
	excluder  *index.Excluder
}

type backends struct {
	vector  string
	lexical string
}

var defaultBackends = backends{vector: store.BackendHNSW, lexical: store.LexicalSQLite}

// openStack opens every component on disk. Closing is registered with t.
func openStack(t *testing.T, root string, b backends) *stack {
	t.Helper()
	dataDir := filepath.Join(root, ".semindex")
	s := &stack{root: root, dataDir: dataDir, embedder: embed.NewStaticEmbedder()}

	var err error
	s.records, err = store.NewSQLiteRecordStore(store.RecordsPath(dataDir))
	require.NoError(t, err)

	s.vectors, err = store.New(store.Options{
		Backend:    b.vector,
		Dimensions: s.embedder.Dimensions(),
		Path:       store.VectorPath(dataDir, b.vector),
	})
	require.NoError(t, err)

	if b.lexical != store.LexicalNone {
		s.lexical, err = store.NewLexicalIndex(filepath.Join(dataDir, "lexical"), b.lexical)
		require.NoError(t, err)
	}

	s.excluder, err = index.NewExcluder(index.ExcludeConfig{
		Root:         root,
		DataDir:      dataDir,
		UseGitignore: true,
	})
	require.NoError(t, err)

	s.writer, err = index.NewWriter(index.WriterConfig{
		Root:         root,
		Chunker:      chunk.NewStructuralChunker(),
		Embedder:     s.embedder,
		Vectors:      s.vectors,
		Records:      s.records,
		Lexical:      s.lexical,
		Exclude:      s.excluder.Func(),
		MaxChunkSize: 40,
		Overlap:      8,
		Workers:      4,
		Timeout:      10 * time.Second,
		Retry:        semerrors.RetryConfig{MaxRetries: 1, InitialDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond, Multiplier: 2},
		Logger:       logging.Discard(),
	})
	require.NoError(t, err)

	s.retriever, err = search.NewRetriever(s.vectors, s.lexical, s.embedder, search.Options{Logger: logging.Discard()})
	require.NoError(t, err)

	t.Cleanup(s.close)
	return s
}

func (s *stack) close() {
	if s.lexical != nil {
		_ = s.lexical.Close()
	}
	_ = s.vectors.Close()
	_ = s.records.Close()
	_ = s.embedder.Close()
}

// writeFiles creates files under root, keyed by slash-separated paths.
func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

// searchPaths returns the distinct paths of the top-k results for query.
func searchPaths(t *testing.T, s *stack, query string, k int, filter *store.Filter) []string {
	t.Helper()
	results, err := s.retriever.SearchText(context.Background(), query, k, filter, true)
	require.NoError(t, err)
	seen := make(map[string]bool)
	var paths []string
	for _, r := range results {
		if !seen[r.Path] {
			seen[r.Path] = true
			paths = append(paths, r.Path)
		}
	}
	return paths
}

var sampleProject = map[string]string{
	"auth/login.go": `package auth

// Authenticate verifies a user's password against the stored hash.
func Authenticate(user, password string) error {
	if user == "" {
		return ErrNoUser
	}
	return checkHash(user, password)
}
`,
	"billing/invoice.go": `package billing

// Invoice totals line items for a customer.
type Invoice struct {
	Customer string
	Lines    []Line
}

func (i Invoice) Total() int {
	sum := 0
	for _, l := range i.Lines {
		sum += l.Amount
	}
	return sum
}
`,
	"docs/setup.md": `# Setup

Install the tool and run the indexer once.

## Configuration

Edit the project file to change chunk sizes.
`,
}
