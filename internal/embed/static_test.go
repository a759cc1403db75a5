package embed

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func embedAll(t *testing.T, e Embedder, texts ...string) [][]float32 {
	t.Helper()
	vecs, err := e.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, len(texts))
	return vecs
}

func TestStaticEmbedder_VectorShape(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	tests := []struct {
		name     string
		text     string
		wantNorm float64
	}{
		{"go function", "func main() {}", 1},
		{"markdown heading", "## Installing the CLI", 1},
		{"unicode identifiers", "func 日本語() {}", 1},
		{"cyrillic comment", "// Комментарий", 1},
		{"emoji literal", "const rocket = '🚀'", 1},
		{"long repeated text", strings.Repeat("word ", 10000), 1},
		{"empty chunk", "", 0},
		{"whitespace-only chunk", "   \t\n  ", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vec, err := e.Embed(context.Background(), tt.text)

			require.NoError(t, err)
			assert.Len(t, vec, StaticDimensions)
			assert.InDelta(t, tt.wantNorm, Norm(vec), 0.001)
		})
	}
}

func TestStaticEmbedder_IsDeterministicAcrossInstances(t *testing.T) {
	// Given: two embedders, as in an indexing run and a later search run
	a, b := NewStaticEmbedder(), NewStaticEmbedder()
	defer func() { _ = a.Close() }()
	defer func() { _ = b.Close() }()
	chunk := "func getUserById(id string) (*User, error)"

	// Then: the stored vector and the query-time vector are identical
	assert.Equal(t, embedAll(t, a, chunk), embedAll(t, b, chunk))
	assert.NotEqual(t, embedAll(t, a, "func add()")[0], embedAll(t, a, "class Database")[0])
}

func TestStaticEmbedder_QueryRanksRelatedChunksFirst(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	tests := []struct {
		name, query, related, unrelated string
	}{
		{
			name:      "auth query",
			query:     "user authentication",
			related:   "func authenticateUser(name, password string) error { return checkPasswordHash(name, password) }",
			unrelated: "func renderChart(points []float64) { drawAxis(); plotLine(points) }",
		},
		{
			name:      "similar arithmetic",
			query:     "func add(a, b int) int { return a + b }",
			related:   "func sum(x, y int) int { return x + y }",
			unrelated: "class UserRepository { findById() }",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := embedAll(t, e, tt.query, tt.related, tt.unrelated)
			assert.Greater(t, Cosine(v[0], v[1]), Cosine(v[0], v[2]))
		})
	}
}

func TestStaticEmbedder_IdentifierStylesMatchPlainWords(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	tests := []struct {
		ident, words string
		min          float64
	}{
		{"getUserById", "get user by id", 0.3},
		{"get_user_by_id", "get user by id", 0.3},
		{"parseJSONData", "parse json data", 0.2},
		{"MAX_BUFFER_SIZE", "max buffer size", 0.2},
	}
	for _, tt := range tests {
		t.Run(tt.ident, func(t *testing.T) {
			v := embedAll(t, e, tt.ident, tt.words)
			sim := Cosine(v[0], v[1])
			assert.Greater(t, sim, tt.min, "similarity %.4f", sim)
		})
	}
}

func TestStaticEmbedder_KeywordsCarryLittleWeight(t *testing.T) {
	// A chunk of language keywords should not resemble a chunk of verbs.
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	v := embedAll(t, e, "func return int string bool void", "calculate process validate")

	assert.Less(t, Cosine(v[0], v[1]), 0.5)
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"getUserById", []string{"get", "user", "by", "id"}},
		{"HTTPRequest", []string{"http", "request"}},
		{"parseJSONData", []string{"parse", "json", "data"}},
		{"get_user_by_id", []string{"get", "user", "by", "id"}},
		{"MAX_BUFFER_SIZE", []string{"max", "buffer", "size"}},
		{"a.b(c)", []string{"a", "b", "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, tokenize(tt.input))
		})
	}
}

func TestStaticEmbedder_EmbedBatch(t *testing.T) {
	e := NewStaticEmbedder()
	defer func() { _ = e.Close() }()

	t.Run("one vector per chunk, empty chunks zero", func(t *testing.T) {
		v := embedAll(t, e, "func add(a, b int) int { return a + b }", "", "func multiply(a, b int) int { return a * b }")
		assert.Equal(t, 0.0, Norm(v[1]))
		assert.InDelta(t, 1.0, Norm(v[2]), 0.001)
	})

	t.Run("empty batch", func(t *testing.T) {
		v, err := e.EmbedBatch(context.Background(), nil)
		require.NoError(t, err)
		assert.Empty(t, v)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := e.EmbedBatch(ctx, []string{"a", "b"})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestStaticEmbedder_Identity(t *testing.T) {
	tests := []struct {
		opts  []StaticOption
		dims  int
		model string
	}{
		{nil, StaticDimensions, "static-256"},
		{[]StaticOption{WithStaticDimensions(64)}, 64, "static-64"},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			e := NewStaticEmbedder(tt.opts...)
			defer func() { _ = e.Close() }()

			var _ Embedder = e
			assert.Equal(t, tt.dims, e.Dimensions())
			assert.Equal(t, tt.model, e.ModelName())
			assert.Len(t, embedAll(t, e, "open the socket")[0], tt.dims)
		})
	}
}

func TestStaticEmbedder_Close(t *testing.T) {
	e := NewStaticEmbedder()

	assert.NoError(t, e.Close())
	assert.NoError(t, e.Close())
	_, err := e.Embed(context.Background(), "test")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"same direction", []float32{1, 2}, []float32{2, 4}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
		{"length mismatch", []float32{1}, []float32{1, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Cosine(tt.a, tt.b), 1e-6)
		})
	}
}
