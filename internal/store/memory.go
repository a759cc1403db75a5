package store

import (
	"context"
	"sort"
	"sync"
)

type memEntry struct {
	entry Entry
	unit  []float32
	seq   uint64
}

// MemoryStore is an exact, brute-force SimilarityStore held in memory.
type MemoryStore struct {
	mu      sync.RWMutex
	dims    int
	entries map[string]*memEntry
	seq     uint64
	closed  bool
}

var (
	_ SimilarityStore = (*MemoryStore)(nil)
	_ Replacer        = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty store for vectors of dims dimensions.
func NewMemoryStore(dims int) *MemoryStore {
	return &MemoryStore{dims: dims, entries: make(map[string]*memEntry)}
}

// Upsert implements SimilarityStore.
func (s *MemoryStore) Upsert(ctx context.Context, entries []Entry) error {
	return s.Replace(ctx, nil, entries)
}

// Replace deletes deleteIDs and upserts entries under one lock.
func (s *MemoryStore) Replace(ctx context.Context, deleteIDs []string, entries []Entry) error {
	if err := checkEntries(entries, s.dims); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return unavailable("replace cancelled", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return closedError()
	}

	for _, id := range deleteIDs {
		delete(s.entries, id)
	}
	for _, e := range entries {
		s.seq++
		s.entries[e.ID] = &memEntry{entry: cloneEntry(e), unit: normalize(e.Vector), seq: s.seq}
	}
	return nil
}

// Query implements SimilarityStore.
func (s *MemoryStore) Query(ctx context.Context, vector []float32, k int, filter *Filter) ([]Match, error) {
	if len(vector) != s.dims {
		return nil, dimensionError("query", s.dims, len(vector))
	}
	if k <= 0 {
		return []Match{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, closedError()
	}

	q := normalize(vector)
	candidates := make([]ranked, 0, len(s.entries))
	for id, e := range s.entries {
		if !filter.Matches(e.entry.Payload) {
			continue
		}
		candidates = append(candidates, ranked{id: id, payload: e.entry.Payload, score: dot(q, e.unit), seq: e.seq})
	}
	return topK(candidates, k), nil
}

// Delete implements SimilarityStore.
func (s *MemoryStore) Delete(ctx context.Context, ids []string) error {
	return s.Replace(ctx, ids, nil)
}

// Fetch implements SimilarityStore.
func (s *MemoryStore) Fetch(ctx context.Context, ids []string, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, closedError()
	}

	var found []*memEntry
	if ids == nil {
		found = make([]*memEntry, 0, len(s.entries))
		for _, e := range s.entries {
			found = append(found, e)
		}
	} else {
		for _, id := range ids {
			if e, ok := s.entries[id]; ok {
				found = append(found, e)
			}
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].seq < found[j].seq })
	if limit > 0 && len(found) > limit {
		found = found[:limit]
	}

	out := make([]Entry, len(found))
	for i, e := range found {
		out[i] = cloneEntry(e.entry)
	}
	return out, nil
}

// Count implements SimilarityStore.
func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, closedError()
	}
	return len(s.entries), nil
}

// Dimensions implements SimilarityStore.
func (s *MemoryStore) Dimensions() int { return s.dims }

// Close implements SimilarityStore. It is idempotent.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.entries = nil
	return nil
}

func cloneEntry(e Entry) Entry {
	out := e
	out.Vector = append([]float32(nil), e.Vector...)
	if e.Payload.Metadata != nil {
		out.Payload.Metadata = make(map[string]string, len(e.Payload.Metadata))
		for k, v := range e.Payload.Metadata {
			out.Payload.Metadata[k] = v
		}
	}
	return out
}
