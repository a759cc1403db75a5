package index

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/semindex/internal/chunk"
	"github.com/Aman-CERP/semindex/internal/embed"
	semerrors "github.com/Aman-CERP/semindex/internal/errors"
	"github.com/Aman-CERP/semindex/internal/store"
)

// countingEmbedder counts every text it embeds.
type countingEmbedder struct {
	*embed.StaticEmbedder
	texts atomic.Int64
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.texts.Add(int64(len(texts)))
	return c.StaticEmbedder.EmbedBatch(ctx, texts)
}

// flakyStore hides the MemoryStore's Replace, so the writer falls back to
// delete-then-upsert. Upserts fail while failUpserts > 0.
type flakyStore struct {
	store.SimilarityStore

	mu          sync.Mutex
	failUpserts int
	upsertErr   error
	upserts     int
}

func newFlakyStore() *flakyStore {
	return &flakyStore{SimilarityStore: store.NewMemoryStore(embed.StaticDimensions)}
}

func (f *flakyStore) failNext(n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failUpserts = n
	f.upsertErr = err
}

func (f *flakyStore) Upsert(ctx context.Context, entries []store.Entry) error {
	f.mu.Lock()
	f.upserts++
	if f.failUpserts > 0 {
		f.failUpserts--
		err := f.upsertErr
		f.mu.Unlock()
		return err
	}
	f.mu.Unlock()
	return f.SimilarityStore.Upsert(ctx, entries)
}

func (f *flakyStore) upsertCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.upserts
}

type fixture struct {
	root     string
	writer   *Writer
	vectors  store.SimilarityStore
	records  *store.SQLiteRecordStore
	lexical  store.LexicalIndex
	embedder *countingEmbedder
}

type fixtureOption func(*WriterConfig)

func withVectors(s store.SimilarityStore) fixtureOption {
	return func(c *WriterConfig) { c.Vectors = s }
}

func withChunking(maxSize, overlap int) fixtureOption {
	return func(c *WriterConfig) {
		c.MaxChunkSize = maxSize
		c.Overlap = overlap
	}
}

func withExclude(fn ExcludeFunc) fixtureOption {
	return func(c *WriterConfig) { c.Exclude = fn }
}

func withLogger(l *slog.Logger) fixtureOption {
	return func(c *WriterConfig) { c.Logger = l }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	root := t.TempDir()
	dataDir := t.TempDir()

	records, err := store.NewSQLiteRecordStore(filepath.Join(dataDir, "records.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = records.Close() })

	lexical, err := store.NewSQLiteLexicalIndex("", store.DefaultCodeStopWords)
	require.NoError(t, err)
	t.Cleanup(func() { _ = lexical.Close() })

	embedder := &countingEmbedder{StaticEmbedder: embed.NewStaticEmbedder()}

	cfg := WriterConfig{
		Root:         root,
		Chunker:      chunk.NewStructuralChunker(),
		Embedder:     embedder,
		Vectors:      store.NewMemoryStore(embed.StaticDimensions),
		Records:      records,
		Lexical:      lexical,
		MaxChunkSize: chunk.DefaultMaxChunkSize,
		Overlap:      chunk.DefaultOverlap,
		Workers:      4,
		Timeout:      5 * time.Second,
		Retry: semerrors.RetryConfig{
			MaxRetries:   2,
			InitialDelay: time.Millisecond,
			MaxDelay:     2 * time.Millisecond,
			Multiplier:   2,
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	w, err := NewWriter(cfg)
	require.NoError(t, err)
	return &fixture{
		root:     root,
		writer:   w,
		vectors:  cfg.Vectors,
		records:  records,
		lexical:  lexical,
		embedder: embedder,
	}
}

func (f *fixture) write(t *testing.T, rel, content string) string {
	t.Helper()
	abs := filepath.Join(f.root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
	return abs
}

func (f *fixture) remove(t *testing.T, rel string) {
	t.Helper()
	require.NoError(t, os.Remove(filepath.Join(f.root, filepath.FromSlash(rel))))
}

func (f *fixture) record(t *testing.T, rel string) *store.IndexRecord {
	t.Helper()
	rec, err := f.records.Get(context.Background(), rel)
	require.NoError(t, err)
	return rec
}

// storeIDs returns the sorted ids the store holds for path.
func (f *fixture) storeIDs(t *testing.T, path string) []string {
	t.Helper()
	entries, err := f.vectors.Fetch(context.Background(), nil, 0)
	require.NoError(t, err)
	var ids []string
	for _, e := range entries {
		if e.Payload.Path == path {
			ids = append(ids, e.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

// requireConsistent asserts the store holds exactly the record's ids.
func (f *fixture) requireConsistent(t *testing.T, path string) {
	t.Helper()
	rec := f.record(t, path)
	require.NotNil(t, rec)
	require.Empty(t, rec.PendingIDs)
	want := append([]string(nil), rec.ChunkIDs...)
	sort.Strings(want)
	require.Equal(t, want, f.storeIDs(t, path))
}

func (f *fixture) count(t *testing.T) int {
	t.Helper()
	n, err := f.vectors.Count(context.Background())
	require.NoError(t, err)
	return n
}

const threeFuncs = `package demo

func A() int {
	return 1
}

func B() int {
	return 2
}

func C() int {
	return 3
}
`
