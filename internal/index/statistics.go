package index

import (
	"context"
	"time"
)

// IndexStats describes the committed state of the index.
type IndexStats struct {
	TotalChunks   int       `json:"total_chunks"`
	TrackedFiles  int       `json:"tracked_files"`
	LastIndexedAt time.Time `json:"last_indexed_at"`
	// StoreEntries is the similarity store's own count. It differs from
	// TotalChunks only while an update is in flight or after a crash.
	StoreEntries int    `json:"store_entries"`
	Dimensions   int    `json:"dimensions"`
	Model        string `json:"model"`
}

// Statistics reports record totals alongside the store's entry count.
func (w *Writer) Statistics(ctx context.Context) (IndexStats, error) {
	rs, err := w.cfg.Records.Stats(ctx)
	if err != nil {
		return IndexStats{}, err
	}
	count, err := w.cfg.Vectors.Count(ctx)
	if err != nil {
		return IndexStats{}, err
	}
	return IndexStats{
		TotalChunks:   rs.TotalChunks,
		TrackedFiles:  rs.TrackedFiles,
		LastIndexedAt: rs.LastIndexedAt,
		StoreEntries:  count,
		Dimensions:    w.cfg.Vectors.Dimensions(),
		Model:         w.cfg.Embedder.ModelName(),
	}, nil
}
