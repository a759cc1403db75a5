package embed

import (
	"context"
	"errors"
	"math"
	"time"
)

// Common embedding constants
const (
	// DefaultBatchSize is the default batch size for embedding requests
	DefaultBatchSize = 32

	// MaxBatchSize caps a single request to the remote provider
	MaxBatchSize = 256

	// DefaultTimeout bounds a single embedding request
	DefaultTimeout = 60 * time.Second

	// StaticDimensions is the embedding dimension for the static embedder
	StaticDimensions = 256
)

// ErrClosed is returned by embedders after Close.
var ErrClosed = errors.New("embedder is closed")

// Embedder maps text to fixed-dimension vectors.
// Implementations must be safe for concurrent use.
type Embedder interface {
	// Embed generates embedding for a single text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, in input order
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension
	Dimensions() int

	// ModelName returns the model identifier
	ModelName() string

	// Close releases resources
	Close() error
}

// Norm returns the Euclidean length of v.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Cosine returns the cosine similarity of a and b, or 0 when their lengths
// differ or either is the zero vector.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	na, nb := Norm(a), Norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (na * nb)
}

// normalizeVector scales v to unit length. The zero vector is returned as is.
func normalizeVector(v []float32) []float32 {
	magnitude := Norm(v)
	if magnitude == 0 {
		return v
	}
	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
