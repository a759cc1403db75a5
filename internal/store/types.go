// Package store provides the similarity store contract and its backends,
// the durable index records, and the lexical (keyword) index.
package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	semerrors "github.com/Aman-CERP/semindex/internal/errors"
)

// Backend names accepted by New.
const (
	BackendMemory    = "memory"
	BackendHNSW      = "hnsw"
	BackendSQLiteVec = "sqlitevec"
)

// overfetchFactor sizes the first candidate window of approximate and
// filtered queries relative to k. The window doubles until enough
// candidates pass the filter.
const overfetchFactor = 4

// ErrClosed is the cause of StoreUnavailable errors from a closed store.
var ErrClosed = errors.New("store is closed")

// Payload is the attributed content stored with a vector.
type Payload struct {
	Path      string            `json:"path"`
	StartLine int               `json:"start_line"`
	EndLine   int               `json:"end_line"`
	Category  string            `json:"category"` // code, document or generic
	Language  string            `json:"language,omitempty"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Entry is one embedding plus payload. An upsert replaces the whole entry.
type Entry struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// Match is a query hit. Score is cosine similarity, higher is closer.
type Match struct {
	ID      string
	Payload Payload
	Score   float32
}

// Filter restricts query results. Empty fields match everything.
type Filter struct {
	// Paths matches exact file paths.
	Paths []string
	// PathPrefixes matches paths under any of the given prefixes.
	PathPrefixes []string
	Category     string
	Language     string
}

// Matches reports whether p passes the filter. A nil filter matches all.
func (f *Filter) Matches(p Payload) bool {
	if f == nil {
		return true
	}
	if f.Category != "" && p.Category != f.Category {
		return false
	}
	if f.Language != "" && !strings.EqualFold(p.Language, f.Language) {
		return false
	}
	if len(f.Paths) == 0 && len(f.PathPrefixes) == 0 {
		return true
	}
	for _, path := range f.Paths {
		if p.Path == path {
			return true
		}
	}
	for _, prefix := range f.PathPrefixes {
		if strings.HasPrefix(p.Path, prefix) {
			return true
		}
	}
	return false
}

// SimilarityStore is the contract every vector backend implements.
//
// Upsert is idempotent and overwrites entries entirely. Delete ignores
// missing ids. Query returns at most k matches by descending similarity,
// ties broken by insertion recency, newest first.
type SimilarityStore interface {
	Upsert(ctx context.Context, entries []Entry) error
	Query(ctx context.Context, vector []float32, k int, filter *Filter) ([]Match, error)
	Delete(ctx context.Context, ids []string) error
	// Fetch returns the entries for ids, or every entry when ids is nil,
	// in insertion order. limit <= 0 means no limit.
	Fetch(ctx context.Context, ids []string, limit int) ([]Entry, error)
	Count(ctx context.Context) (int, error)
	Dimensions() int
	Close() error
}

// Replacer is implemented by backends that can delete and upsert as one
// atomic swap.
type Replacer interface {
	Replace(ctx context.Context, deleteIDs []string, entries []Entry) error
}

// Options configures a similarity store.
type Options struct {
	Backend    string
	Dimensions int
	// Path is the on-disk location. Empty keeps the store in memory.
	Path string
	// HNSW graph parameters.
	M        int
	EfSearch int
}

// unavailable wraps a backend failure as a retryable StoreUnavailable.
func unavailable(op string, err error) error {
	return semerrors.StoreUnavailable(op, err)
}

func closedError() error {
	return semerrors.StoreUnavailable("store is closed", ErrClosed)
}

func dimensionError(id string, want, got int) error {
	return semerrors.StoreRejected(id, fmt.Sprintf("dimension mismatch: expected %d, got %d", want, got)).
		WithDetail("expected", fmt.Sprint(want)).
		WithDetail("got", fmt.Sprint(got))
}

func checkEntries(entries []Entry, dims int) error {
	for _, e := range entries {
		if e.ID == "" {
			return semerrors.StoreRejected("", "entry id is empty")
		}
		if len(e.Vector) != dims {
			return dimensionError(e.ID, dims, len(e.Vector))
		}
	}
	return nil
}

// ranked is a scored candidate before truncation.
type ranked struct {
	id      string
	payload Payload
	score   float32
	seq     uint64
}

// topK sorts by score descending, then seq descending, and keeps k.
func topK(candidates []ranked, k int) []Match {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].seq > candidates[j].seq
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	out := make([]Match, len(candidates))
	for i, c := range candidates {
		out[i] = Match{ID: c.id, Payload: c.payload, Score: c.score}
	}
	return out
}

// normalize returns a unit-length copy of v.
func normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	var sum float64
	for _, x := range out {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return out
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range out {
		out[i] *= inv
	}
	return out
}

// dot is the cosine similarity of two unit vectors.
func dot(a, b []float32) float32 {
	var s float32
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

// IndexRecord maps a tracked file to its committed chunk set.
type IndexRecord struct {
	Path string
	// Fingerprint is empty until the first commit succeeds.
	Fingerprint string
	ChunkIDs    []string
	// PendingIDs is the write intent of an update that has not committed.
	PendingIDs []string
	Size       int64
	IndexedAt  time.Time
}

// Committed reports whether the record has a committed fingerprint.
func (r *IndexRecord) Committed() bool {
	return r != nil && r.Fingerprint != ""
}

// RecordStats summarizes the record table.
type RecordStats struct {
	TrackedFiles  int
	TotalChunks   int
	LastIndexedAt time.Time
}

// RecordStore persists index records.
type RecordStore interface {
	// Get returns nil and no error when path is not tracked.
	Get(ctx context.Context, path string) (*IndexRecord, error)
	Put(ctx context.Context, rec *IndexRecord) error
	Delete(ctx context.Context, path string) error
	List(ctx context.Context) ([]*IndexRecord, error)
	Stats(ctx context.Context) (RecordStats, error)
	Close() error
}

// Document is a chunk submitted to the lexical index.
type Document struct {
	ID      string
	Path    string
	Content string
}

// LexicalResult is a keyword hit. Higher Score is better.
type LexicalResult struct {
	ID           string
	Score        float64
	MatchedTerms []string
}

// LexicalIndex is a keyword index over chunk content.
type LexicalIndex interface {
	Index(ctx context.Context, docs []Document) error
	Search(ctx context.Context, query string, limit int) ([]LexicalResult, error)
	Delete(ctx context.Context, ids []string) error
	AllIDs(ctx context.Context) ([]string, error)
	Close() error
}

// DefaultCodeStopWords are keywords too common in source to carry signal.
var DefaultCodeStopWords = []string{
	"var", "let", "const", "func", "function", "def", "class",
	"return", "if", "else", "for", "while",
	"the", "and", "or", "of", "to", "in", "is",
	"err", "ctx", "tmp",
}
