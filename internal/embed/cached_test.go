package embed

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/semindex/internal/chunk"
	semerrors "github.com/Aman-CERP/semindex/internal/errors"
)

// recordingEmbedder remembers every text that reached it.
type recordingEmbedder struct {
	*StaticEmbedder

	mu     sync.Mutex
	texts  []string
	closed int
	short  bool
	err    error
}

func newRecordingEmbedder() *recordingEmbedder {
	return &recordingEmbedder{StaticEmbedder: NewStaticEmbedder()}
}

func (r *recordingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := r.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (r *recordingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	r.mu.Lock()
	r.texts = append(r.texts, texts...)
	short, err := r.short, r.err
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	vecs, err := r.StaticEmbedder.EmbedBatch(ctx, texts)
	if short && len(vecs) > 0 {
		vecs = vecs[:len(vecs)-1]
	}
	return vecs, err
}

func (r *recordingEmbedder) Close() error {
	r.mu.Lock()
	r.closed++
	r.mu.Unlock()
	return r.StaticEmbedder.Close()
}

// seen returns and clears the texts embedded so far.
func (r *recordingEmbedder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.texts
	r.texts = nil
	return out
}

const sessionSource = `package auth

func Login(user, pass string) bool {
	token := hash(user + pass)
	return check(token)
}

func Logout(user string) {
	sessions.Drop(user)
	audit("logout", user)
}

func Refresh(user string) string {
	token := issue(user)
	return token
}
`

func chunkTexts(t *testing.T, path, src string) []chunk.Chunk {
	t.Helper()
	chunks, err := chunk.NewStructuralChunker().Chunk(context.Background(), path, []byte(src), 6, 0)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 2)
	return chunks
}

func contents(chunks []chunk.Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Content
	}
	return out
}

func TestCachedEmbedder_CopiedFileReusesVectors(t *testing.T) {
	// Given: a file whose chunks were embedded
	inner := newRecordingEmbedder()
	cached := NewCachedEmbedder(inner, 100)
	defer func() { _ = cached.Close() }()
	ctx := context.Background()

	original := chunkTexts(t, "auth/session.go", sessionSource)
	want, err := cached.EmbedBatch(ctx, contents(original))
	require.NoError(t, err)
	require.Len(t, inner.seen(), len(original))

	// When: the same source shows up under another path
	copied := chunkTexts(t, "backup/session.go", sessionSource)
	got, err := cached.EmbedBatch(ctx, contents(copied))

	// Then: the chunk ids differ but nothing is re-embedded
	require.NoError(t, err)
	assert.NotEqual(t, original[0].ID, copied[0].ID)
	assert.Empty(t, inner.seen())
	assert.Equal(t, want, got)
	assert.Equal(t, uint64(len(copied)), cached.Stats().Hits)
}

func TestCachedEmbedder_EditedFileEmbedsOnlyChangedChunk(t *testing.T) {
	// Given: an embedded file
	inner := newRecordingEmbedder()
	cached := NewCachedEmbedder(inner, 100)
	defer func() { _ = cached.Close() }()
	ctx := context.Background()
	_, err := cached.EmbedBatch(ctx, contents(chunkTexts(t, "auth/session.go", sessionSource)))
	require.NoError(t, err)
	inner.seen()

	// When: one function body changes without moving any lines
	edited := strings.Replace(sessionSource, "token := issue(user)", "token := mint(user)", 1)
	_, err = cached.EmbedBatch(ctx, contents(chunkTexts(t, "auth/session.go", edited)))

	// Then: only the chunk holding that function reaches the embedder
	require.NoError(t, err)
	sent := inner.seen()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "mint(user)")
}

func TestCachedEmbedder_DuplicateTextsInBatchEmbeddedOnce(t *testing.T) {
	// Given: a batch where the same boilerplate chunk repeats
	inner := newRecordingEmbedder()
	cached := NewCachedEmbedder(inner, 100)
	defer func() { _ = cached.Close() }()
	boiler := "if err != nil {\n\treturn err\n}"

	// When: it is embedded
	got, err := cached.EmbedBatch(context.Background(), []string{boiler, "func Open() {}", boiler})

	// Then: the inner embedder sees each text once and the slots agree
	require.NoError(t, err)
	assert.Equal(t, []string{boiler, "func Open() {}"}, inner.seen())
	require.Len(t, got, 3)
	assert.Equal(t, got[0], got[2])
	assert.Equal(t, CacheStats{Entries: 2, Hits: 0, Misses: 3}, cached.Stats())
}

func TestCachedEmbedder_PartialHitKeepsInputOrder(t *testing.T) {
	// Given: one text already cached
	cached := NewCachedEmbedder(NewStaticEmbedder(), 100)
	defer func() { _ = cached.Close() }()
	ctx := context.Background()
	warm, err := cached.Embed(ctx, "parse config file")
	require.NoError(t, err)

	// When: a batch mixes it with new texts
	got, err := cached.EmbedBatch(ctx, []string{"open socket", "parse config file", "close socket"})

	// Then: every slot holds the vector for its own text
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, warm, got[1])
	direct, err := NewStaticEmbedder().EmbedBatch(ctx, []string{"open socket", "close socket"})
	require.NoError(t, err)
	assert.Equal(t, direct[0], got[0])
	assert.Equal(t, direct[1], got[2])
	assert.Equal(t, 3, cached.Stats().Entries)
}

func TestCachedEmbedder_EvictsLeastRecentlyUsed(t *testing.T) {
	// Given: room for two vectors
	inner := newRecordingEmbedder()
	cached := NewCachedEmbedder(inner, 2)
	defer func() { _ = cached.Close() }()
	ctx := context.Background()

	// When: a third text is embedded after the first was touched again
	for _, text := range []string{"func A() {}", "func B() {}", "func A() {}", "func C() {}"} {
		_, err := cached.Embed(ctx, text)
		require.NoError(t, err)
	}
	inner.seen()
	_, err := cached.EmbedBatch(ctx, []string{"func A() {}", "func B() {}"})

	// Then: B was evicted, A survived
	require.NoError(t, err)
	assert.Equal(t, []string{"func B() {}"}, inner.seen())
}

func TestCachedEmbedder_InnerFailures(t *testing.T) {
	t.Run("error is returned and nothing cached", func(t *testing.T) {
		inner := newRecordingEmbedder()
		inner.err = errors.New("ollama down")
		cached := NewCachedEmbedder(inner, 10)
		defer func() { _ = cached.Close() }()

		_, err := cached.EmbedBatch(context.Background(), []string{"func A() {}"})

		assert.EqualError(t, err, "ollama down")
		assert.Equal(t, 0, cached.Stats().Entries)
	})

	t.Run("short batch is an embedding error", func(t *testing.T) {
		inner := newRecordingEmbedder()
		inner.short = true
		cached := NewCachedEmbedder(inner, 10)
		defer func() { _ = cached.Close() }()

		_, err := cached.EmbedBatch(context.Background(), []string{"func A() {}", "func B() {}"})

		require.Error(t, err)
		assert.True(t, semerrors.HasCode(err, semerrors.ErrCodeEmbeddingFailed))
		assert.Equal(t, 0, cached.Stats().Entries)
	})
}

func TestCachedEmbedder_Passthrough(t *testing.T) {
	inner := newRecordingEmbedder()
	cached := NewCachedEmbedder(inner, 0)

	var _ Embedder = cached
	assert.Equal(t, StaticDimensions, cached.Dimensions())
	assert.Equal(t, inner.ModelName(), cached.ModelName())
	assert.Same(t, inner, cached.Inner())

	require.NoError(t, cached.Close())
	assert.Equal(t, 1, inner.closed)
}

func TestCachedEmbedder_ConcurrentLookupsAreCounted(t *testing.T) {
	// Given: workers embedding overlapping chunk text, as IndexDirectory does
	cached := NewCachedEmbedder(NewStaticEmbedder(), 100)
	defer func() { _ = cached.Close() }()
	texts := []string{"func A() {}", "func B() {}", "func C() {}"}

	// When: eight workers embed them fifty times each
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_, err := cached.Embed(context.Background(), texts[i%len(texts)])
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	// Then: every lookup is accounted for and each text is cached once
	stats := cached.Stats()
	assert.Equal(t, uint64(400), stats.Hits+stats.Misses)
	assert.Equal(t, 3, stats.Entries)
}
