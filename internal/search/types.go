// Package search retrieves chunks by vector similarity, optionally fused
// with keyword (lexical) matches.
package search

import (
	"log/slog"

	"github.com/Aman-CERP/semindex/internal/config"
)

// Fusion modes.
const (
	// FusionWeighted sums the vector score and the max-normalized lexical
	// score under Weights.
	FusionWeighted = "weighted"
	// FusionRRF uses Reciprocal Rank Fusion.
	FusionRRF = "rrf"
)

// Defaults applied by Options.WithDefaults.
const (
	DefaultCandidateMultiplier = 4
	DefaultLimit               = 10
	MaxLimit                   = 100
)

// Result is one retrieved chunk.
type Result struct {
	ChunkID   string  `json:"chunk_id"`
	Path      string  `json:"path"`
	StartLine int     `json:"start_line"`
	EndLine   int     `json:"end_line"`
	Category  string  `json:"category"`
	Language  string  `json:"language,omitempty"`
	Content   string  `json:"content"`
	Score     float64 `json:"score"`
	// VectorScore is the cosine similarity to the query vector.
	VectorScore float64 `json:"vector_score"`
	// LexicalScore is the raw keyword score, 0 when the chunk had no
	// keyword hit.
	LexicalScore float64  `json:"lexical_score,omitempty"`
	VectorRank   int      `json:"vector_rank,omitempty"`
	LexicalRank  int      `json:"lexical_rank,omitempty"`
	MatchedTerms []string `json:"matched_terms,omitempty"`
}

// Weights sets the relative importance of vector and lexical scores.
type Weights struct {
	Vector  float64 `json:"vector"`
	Lexical float64 `json:"lexical"`
}

// DefaultWeights favors the vector score.
func DefaultWeights() Weights {
	return Weights{Vector: 0.7, Lexical: 0.3}
}

// QueryType is the shape of a text query.
type QueryType string

const (
	// QueryTypeLexical is an identifier, error code, quoted phrase or path.
	QueryTypeLexical QueryType = "LEXICAL"
	// QueryTypeSemantic is a natural-language question or description.
	QueryTypeSemantic QueryType = "SEMANTIC"
	// QueryTypeMixed is everything else.
	QueryTypeMixed QueryType = "MIXED"
)

// WeightsForQueryType returns the fusion weights used for a query shape.
func WeightsForQueryType(qt QueryType) Weights {
	switch qt {
	case QueryTypeLexical:
		return Weights{Vector: 0.3, Lexical: 0.7}
	case QueryTypeSemantic:
		return Weights{Vector: 0.85, Lexical: 0.15}
	default:
		return DefaultWeights()
	}
}

// Options configures a Retriever.
type Options struct {
	Weights Weights
	// Fusion is FusionWeighted or FusionRRF.
	Fusion      string
	RRFConstant int
	// CandidateMultiplier sizes each candidate list at k times this value.
	CandidateMultiplier int
	// Classifier, when set, picks Weights per text query.
	Classifier *PatternClassifier
	// Expander, when set, widens the lexical query of SearchText.
	Expander *QueryExpander
	Logger   *slog.Logger
}

// OptionsFromConfig maps the search section of the configuration.
func OptionsFromConfig(cfg config.SearchConfig) Options {
	opts := Options{
		Weights:             Weights{Vector: cfg.VectorWeight, Lexical: cfg.LexicalWeight},
		Fusion:              cfg.Fusion,
		RRFConstant:         cfg.RRFConstant,
		CandidateMultiplier: cfg.CandidateMultiplier,
	}
	if cfg.AdaptiveWeights {
		opts.Classifier = NewPatternClassifier()
	}
	if cfg.ExpandQueries {
		opts.Expander = NewQueryExpander()
	}
	return opts.WithDefaults()
}

// WithDefaults fills unset fields.
func (o Options) WithDefaults() Options {
	if o.Weights.Vector <= 0 && o.Weights.Lexical <= 0 {
		o.Weights = DefaultWeights()
	}
	if o.Fusion != FusionRRF {
		o.Fusion = FusionWeighted
	}
	if o.RRFConstant <= 0 {
		o.RRFConstant = DefaultRRFConstant
	}
	if o.CandidateMultiplier <= 0 {
		o.CandidateMultiplier = DefaultCandidateMultiplier
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}
