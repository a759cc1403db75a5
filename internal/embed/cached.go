package embed

import (
	"context"
	"crypto/sha256"
	"strconv"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	semerrors "github.com/Aman-CERP/semindex/internal/errors"
)

// DefaultEmbeddingCacheSize is the number of vectors kept when none is configured.
const DefaultEmbeddingCacheSize = 1000

// CacheStats counts lookups against a CachedEmbedder.
type CacheStats struct {
	Entries int    `json:"entries"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
}

// CachedEmbedder keeps recent vectors keyed by a hash of the model and the
// text. Chunk text that reappears, in a copied file, a moved file or a
// boilerplate block repeated within one file, is sent to the inner
// embedder once.
type CachedEmbedder struct {
	inner  Embedder
	salt   string
	vecs   *lru.Cache[[sha256.Size]byte, []float32]
	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewCachedEmbedder wraps inner. A non-positive size selects
// DefaultEmbeddingCacheSize.
func NewCachedEmbedder(inner Embedder, size int) *CachedEmbedder {
	if size <= 0 {
		size = DefaultEmbeddingCacheSize
	}
	vecs, _ := lru.New[[sha256.Size]byte, []float32](size)
	return &CachedEmbedder{
		inner: inner,
		salt:  inner.ModelName() + "\x00" + strconv.Itoa(inner.Dimensions()) + "\x00",
		vecs:  vecs,
	}
}

func (c *CachedEmbedder) key(text string) [sha256.Size]byte {
	return sha256.Sum256([]byte(c.salt + text))
}

// Embed returns the cached vector for text or computes and stores it.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	k := c.key(text)
	if vec, ok := c.vecs.Get(k); ok {
		c.hits.Add(1)
		return vec, nil
	}
	c.misses.Add(1)
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.vecs.Add(k, vec)
	return vec, nil
}

// EmbedBatch embeds each distinct uncached text once, in one inner call,
// and returns vectors in input order.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	keys := make([][sha256.Size]byte, len(texts))
	missing := make(map[[sha256.Size]byte]int)
	var (
		todo     []string
		unfilled []int
	)
	for i, text := range texts {
		keys[i] = c.key(text)
		if vec, ok := c.vecs.Get(keys[i]); ok {
			c.hits.Add(1)
			out[i] = vec
			continue
		}
		c.misses.Add(1)
		unfilled = append(unfilled, i)
		if _, queued := missing[keys[i]]; !queued {
			missing[keys[i]] = len(todo)
			todo = append(todo, text)
		}
	}
	if len(todo) == 0 {
		return out, nil
	}

	fresh, err := c.inner.EmbedBatch(ctx, todo)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(todo) {
		return nil, semerrors.EmbeddingError("embedder returned a short batch", nil).
			WithDetail("want", strconv.Itoa(len(todo))).
			WithDetail("got", strconv.Itoa(len(fresh)))
	}
	for k, j := range missing {
		c.vecs.Add(k, fresh[j])
	}
	for _, i := range unfilled {
		out[i] = fresh[missing[keys[i]]]
	}
	return out, nil
}

// Stats reports cache size and lookup counts since creation.
func (c *CachedEmbedder) Stats() CacheStats {
	return CacheStats{Entries: c.vecs.Len(), Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// Dimensions returns the inner embedder's dimension.
func (c *CachedEmbedder) Dimensions() int { return c.inner.Dimensions() }

// ModelName returns the inner embedder's model.
func (c *CachedEmbedder) ModelName() string { return c.inner.ModelName() }

// Inner returns the wrapped embedder.
func (c *CachedEmbedder) Inner() Embedder { return c.inner }

// Close drops cached vectors and closes the inner embedder.
func (c *CachedEmbedder) Close() error {
	c.vecs.Purge()
	return c.inner.Close()
}
