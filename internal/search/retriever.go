package search

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/semindex/internal/embed"
	semerrors "github.com/Aman-CERP/semindex/internal/errors"
	"github.com/Aman-CERP/semindex/internal/store"
)

// Retriever answers queries against a similarity store and an optional
// lexical index. It only reads, so it is safe to use while indexing.
type Retriever struct {
	vectors  store.SimilarityStore
	lexical  store.LexicalIndex
	embedder embed.Embedder
	opts     Options
	logger   *slog.Logger
}

// NewRetriever creates a Retriever. lexical and embedder may be nil; without
// an embedder only Search is usable.
func NewRetriever(vectors store.SimilarityStore, lexical store.LexicalIndex, embedder embed.Embedder, opts Options) (*Retriever, error) {
	if vectors == nil {
		return nil, semerrors.ValidationError("retriever requires a similarity store", nil)
	}
	opts = opts.WithDefaults()
	return &Retriever{
		vectors:  vectors,
		lexical:  lexical,
		embedder: embedder,
		opts:     opts,
		logger:   opts.Logger,
	}, nil
}

// Search returns up to k chunks for queryVector. With a non-empty
// lexicalQuery and a lexical index, vector and keyword candidates are
// gathered concurrently and fused. Store errors are returned; a lexical
// failure degrades to vector-only results.
func (r *Retriever) Search(ctx context.Context, queryVector []float32, k int, filter *store.Filter, lexicalQuery string) ([]Result, error) {
	return r.search(ctx, queryVector, k, filter, lexicalQuery, r.opts.Weights)
}

// SearchText embeds query and searches with it. When hybrid is set the
// query text also drives the lexical side.
func (r *Retriever) SearchText(ctx context.Context, query string, k int, filter *store.Filter, hybrid bool) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, semerrors.New(semerrors.ErrCodeQueryEmpty, "query is empty", nil)
	}
	if r.embedder == nil {
		return nil, semerrors.ValidationError("text search requires an embedder", nil)
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		if semerrors.HasCode(err, semerrors.ErrCodeEmbeddingFailed) || semerrors.HasCode(err, semerrors.ErrCodeEmbedderTimeout) {
			return nil, err
		}
		return nil, semerrors.EmbeddingError("embed query", err)
	}

	weights := r.opts.Weights
	var lexicalQuery string
	if hybrid {
		lexicalQuery = query
		if r.opts.Classifier != nil {
			qt, w, _ := r.opts.Classifier.Classify(ctx, query)
			weights = w
			r.logger.Debug("query_classified", slog.String("type", string(qt)),
				slog.Float64("vector_weight", w.Vector), slog.Float64("lexical_weight", w.Lexical))
		}
		if r.opts.Expander != nil {
			lexicalQuery = r.opts.Expander.Expand(query)
		}
	}
	return r.search(ctx, vec, k, filter, lexicalQuery, weights)
}

func (r *Retriever) search(ctx context.Context, vec []float32, k int, filter *store.Filter, lexicalQuery string, weights Weights) ([]Result, error) {
	if k <= 0 {
		return nil, semerrors.ValidationError("k must be positive", nil)
	}
	k = min(k, MaxLimit)
	if len(vec) != r.vectors.Dimensions() {
		return nil, semerrors.ValidationError("query vector has wrong dimensions", nil).
			WithDetail("expected", strconv.Itoa(r.vectors.Dimensions())).
			WithDetail("got", strconv.Itoa(len(vec)))
	}

	if r.lexical == nil || strings.TrimSpace(lexicalQuery) == "" {
		matches, err := r.vectors.Query(ctx, vec, k, filter)
		if err != nil {
			return nil, err
		}
		results := make([]Result, len(matches))
		for i, m := range matches {
			results[i] = Result{
				ChunkID:     m.ID,
				Path:        m.Payload.Path,
				StartLine:   m.Payload.StartLine,
				EndLine:     m.Payload.EndLine,
				Category:    m.Payload.Category,
				Language:    m.Payload.Language,
				Content:     m.Payload.Content,
				Score:       float64(m.Score),
				VectorScore: float64(m.Score),
				VectorRank:  i + 1,
			}
		}
		return results, nil
	}

	n := k * r.opts.CandidateMultiplier
	var (
		matches []store.Match
		hits    []store.LexicalResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		matches, err = r.vectors.Query(gctx, vec, n, filter)
		return err
	})
	g.Go(func() error {
		var err error
		hits, err = r.lexical.Search(gctx, lexicalQuery, n)
		if err != nil {
			if ctx.Err() == nil {
				r.logger.Warn("lexical_search_degraded",
					slog.String("query", lexicalQuery),
					slog.String("error", err.Error()))
			}
			hits = nil
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	set := newCandidateSet(len(matches) + len(hits))
	set.addVector(matches)
	set.addLexical(hits)
	if err := r.resolveLexicalOnly(ctx, set, vec, filter); err != nil {
		return nil, err
	}

	if r.opts.Fusion == FusionRRF {
		NewRRFFusion(r.opts.RRFConstant).score(set, weights)
	} else {
		WeightedFusion{}.score(set, weights)
	}

	ranked := set.ranked()
	if len(ranked) > k {
		ranked = ranked[:k]
	}
	results := make([]Result, len(ranked))
	for i, c := range ranked {
		results[i] = c.result()
	}
	return results, nil
}

// resolveLexicalOnly loads payloads and exact cosine scores for keyword
// hits the vector search did not return. Hits that fail the filter or no
// longer exist in the store are dropped.
func (r *Retriever) resolveLexicalOnly(ctx context.Context, set *candidateSet, vec []float32, filter *store.Filter) error {
	ids := set.lexicalOnly()
	if len(ids) == 0 {
		return nil
	}
	entries, err := r.vectors.Fetch(ctx, ids, 0)
	if err != nil {
		return err
	}
	found := make(map[string]store.Entry, len(entries))
	for _, e := range entries {
		found[e.ID] = e
	}
	for _, id := range ids {
		e, ok := found[id]
		if !ok || !filter.Matches(e.Payload) {
			delete(set.byID, id)
			continue
		}
		c := set.byID[id]
		c.payload = e.Payload
		c.vecScore = embed.Cosine(vec, e.Vector)
	}
	return nil
}
