package store

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/coder/hnsw"

	semerrors "github.com/Aman-CERP/semindex/internal/errors"
)

const (
	defaultHNSWM        = 16
	defaultHNSWEfSearch = 64

	// compactMinOrphans is the orphan count below which the graph is never
	// rebuilt.
	compactMinOrphans = 64
)

// HNSWStore implements SimilarityStore with the coder/hnsw graph.
// Deletes are lazy: the node stays in the graph but loses its id mapping.
// The graph is rebuilt once orphans outnumber live entries.
type HNSWStore struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[uint64]
	path  string
	dims  int
	m     int
	ef    int

	entries map[string]*hnswEntry
	keyMap  map[uint64]string
	nextKey uint64
	seq     uint64

	closed bool
}

// hnswEntry is the payload sidecar for one graph node. Vector is unit length.
type hnswEntry struct {
	Key     uint64
	Seq     uint64
	Vector  []float32
	Payload Payload
}

// hnswState is the gob-encoded header of the persisted file.
type hnswState struct {
	Dims     int
	M        int
	EfSearch int
	NextKey  uint64
	Seq      uint64
	Entries  map[string]*hnswEntry
}

var (
	_ SimilarityStore = (*HNSWStore)(nil)
	_ Replacer        = (*HNSWStore)(nil)
)

// NewHNSWStore opens the store persisted at opts.Path, or creates an empty
// one. An empty path keeps the store in memory only.
func NewHNSWStore(opts Options) (*HNSWStore, error) {
	if opts.M == 0 {
		opts.M = defaultHNSWM
	}
	if opts.EfSearch == 0 {
		opts.EfSearch = defaultHNSWEfSearch
	}

	s := &HNSWStore{
		path:    opts.Path,
		dims:    opts.Dimensions,
		m:       opts.M,
		ef:      opts.EfSearch,
		entries: make(map[string]*hnswEntry),
		keyMap:  make(map[uint64]string),
	}
	s.graph = s.newGraph()

	if opts.Path == "" {
		return s, nil
	}
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *HNSWStore) newGraph() *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = s.m
	g.EfSearch = s.ef
	g.Ml = 0.25
	return g
}

// Upsert implements SimilarityStore.
func (s *HNSWStore) Upsert(ctx context.Context, entries []Entry) error {
	return s.Replace(ctx, nil, entries)
}

// Delete implements SimilarityStore.
func (s *HNSWStore) Delete(ctx context.Context, ids []string) error {
	return s.Replace(ctx, ids, nil)
}

// Replace applies deletes then upserts and persists the result in one
// atomic file rename. On a persistence failure the in-memory state is
// rolled back.
func (s *HNSWStore) Replace(ctx context.Context, deleteIDs []string, entries []Entry) error {
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

	changed := false
	prev := make(map[string]*hnswEntry, len(deleteIDs)+len(entries))
	remember := func(id string) {
		if _, seen := prev[id]; !seen {
			prev[id] = s.entries[id]
		}
	}

	for _, id := range deleteIDs {
		if e, ok := s.entries[id]; ok {
			remember(id)
			delete(s.keyMap, e.Key)
			delete(s.entries, id)
			changed = true
		}
	}

	var added []uint64
	for _, in := range entries {
		remember(in.ID)
		if old, ok := s.entries[in.ID]; ok {
			delete(s.keyMap, old.Key)
		}
		key := s.nextKey
		s.nextKey++
		s.seq++
		unit := normalize(in.Vector)
		s.graph.Add(hnsw.MakeNode(key, unit))
		e := cloneEntry(in)
		s.entries[in.ID] = &hnswEntry{Key: key, Seq: s.seq, Vector: unit, Payload: e.Payload}
		s.keyMap[key] = in.ID
		added = append(added, key)
		changed = true
	}
	if !changed {
		return nil
	}

	if err := s.persistLocked(); err != nil {
		for _, key := range added {
			delete(s.keyMap, key)
		}
		for id, e := range prev {
			if e == nil {
				delete(s.entries, id)
				continue
			}
			s.entries[id] = e
			s.keyMap[e.Key] = id
		}
		return err
	}
	s.maybeCompactLocked()
	return nil
}

// Query implements SimilarityStore.
func (s *HNSWStore) Query(ctx context.Context, vector []float32, k int, filter *Filter) ([]Match, error) {
	if len(vector) != s.dims {
		return nil, dimensionError("query", s.dims, len(vector))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, closedError()
	}
	if k <= 0 || len(s.entries) == 0 || s.graph.Len() == 0 {
		return []Match{}, nil
	}

	q := normalize(vector)
	total := s.graph.Len()
	n := k * overfetchFactor
	var candidates []ranked
	for {
		if err := ctx.Err(); err != nil {
			return nil, unavailable("query cancelled", err)
		}
		n = min(n, total)
		candidates = candidates[:0]
		for _, node := range s.graph.Search(q, n) {
			id, ok := s.keyMap[node.Key]
			if !ok {
				continue
			}
			e := s.entries[id]
			if !filter.Matches(e.Payload) {
				continue
			}
			candidates = append(candidates, ranked{id: id, payload: e.Payload, score: dot(q, e.Vector), seq: e.Seq})
		}
		if len(candidates) >= k || n >= total {
			break
		}
		n *= 2
	}

	matches := topK(candidates, k)
	for i := range matches {
		matches[i].Payload = cloneEntry(Entry{Payload: matches[i].Payload}).Payload
	}
	return matches, nil
}

// Fetch implements SimilarityStore.
func (s *HNSWStore) Fetch(ctx context.Context, ids []string, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, closedError()
	}

	type pair struct {
		id string
		e  *hnswEntry
	}
	var found []pair
	if ids == nil {
		for id, e := range s.entries {
			found = append(found, pair{id, e})
		}
	} else {
		for _, id := range ids {
			if e, ok := s.entries[id]; ok {
				found = append(found, pair{id, e})
			}
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].e.Seq < found[j].e.Seq })
	if limit > 0 && len(found) > limit {
		found = found[:limit]
	}

	out := make([]Entry, len(found))
	for i, p := range found {
		out[i] = cloneEntry(Entry{ID: p.id, Vector: p.e.Vector, Payload: p.e.Payload})
	}
	return out, nil
}

// Count implements SimilarityStore.
func (s *HNSWStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, closedError()
	}
	return len(s.entries), nil
}

// Dimensions implements SimilarityStore.
func (s *HNSWStore) Dimensions() int { return s.dims }

// HNSWStats reports graph occupancy.
type HNSWStats struct {
	Live       int
	GraphNodes int
	Orphans    int
}

// Stats returns live and orphaned node counts.
func (s *HNSWStore) Stats() HNSWStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return HNSWStats{}
	}
	nodes := s.graph.Len()
	return HNSWStats{Live: len(s.entries), GraphNodes: nodes, Orphans: nodes - len(s.entries)}
}

// Close implements SimilarityStore.
func (s *HNSWStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = nil
	return nil
}

// maybeCompactLocked rebuilds the graph from live entries when lazy
// deletes have left too many orphans.
func (s *HNSWStore) maybeCompactLocked() {
	orphans := s.graph.Len() - len(s.entries)
	if orphans < compactMinOrphans || orphans <= len(s.entries) {
		return
	}

	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return s.entries[ids[i]].Seq < s.entries[ids[j]].Seq })

	graph := s.newGraph()
	keyMap := make(map[uint64]string, len(ids))
	for i, id := range ids {
		e := s.entries[id]
		e.Key = uint64(i)
		graph.Add(hnsw.MakeNode(e.Key, e.Vector))
		keyMap[e.Key] = id
	}
	oldGraph, oldKeys, oldNext := s.graph, s.keyMap, s.nextKey
	s.graph, s.keyMap, s.nextKey = graph, keyMap, uint64(len(ids))

	if err := s.persistLocked(); err != nil {
		// The previous file still matches the previous graph.
		s.graph, s.keyMap, s.nextKey = oldGraph, oldKeys, oldNext
		for key, id := range oldKeys {
			s.entries[id].Key = key
		}
		slog.Warn("hnsw_compact_failed", slog.String("path", s.path), slog.String("error", err.Error()))
		return
	}
	slog.Debug("hnsw_compacted", slog.Int("orphans_removed", orphans), slog.Int("live", len(ids)))
}

// persistLocked writes header and graph to a temp file and renames it over
// the store file. The header is length-prefixed so the graph can be read
// straight after it.
func (s *HNSWStore) persistLocked() error {
	if s.path == "" {
		return nil
	}

	var header bytes.Buffer
	state := hnswState{
		Dims: s.dims, M: s.m, EfSearch: s.ef,
		NextKey: s.nextKey, Seq: s.seq, Entries: s.entries,
	}
	if err := gob.NewEncoder(&header).Encode(state); err != nil {
		return semerrors.InternalError("encode hnsw state", err)
	}

	tmp := s.path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return unavailable("create hnsw file", err)
	}
	w := bufio.NewWriter(file)
	writeErr := binary.Write(w, binary.LittleEndian, uint64(header.Len()))
	if writeErr == nil {
		_, writeErr = w.Write(header.Bytes())
	}
	if writeErr == nil {
		writeErr = s.graph.Export(w)
	}
	if writeErr == nil {
		writeErr = w.Flush()
	}
	if writeErr == nil {
		writeErr = file.Sync()
	}
	if closeErr := file.Close(); writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		_ = os.Remove(tmp)
		return unavailable("write hnsw file", writeErr)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return unavailable("rename hnsw file", err)
	}
	return nil
}

func (s *HNSWStore) load() error {
	file, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return unavailable("open hnsw file", err)
	}
	defer file.Close()

	corrupt := func(err error) error {
		return semerrors.New(semerrors.ErrCodeCorruptIndex, "hnsw store is corrupt", err).
			WithDetail("path", s.path).
			WithSuggestion("delete the data directory and reindex")
	}

	r := bufio.NewReader(file)
	var size uint64
	if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
		return corrupt(err)
	}
	header := make([]byte, size)
	if _, err := io.ReadFull(r, header); err != nil {
		return corrupt(err)
	}
	var state hnswState
	if err := gob.NewDecoder(bytes.NewReader(header)).Decode(&state); err != nil {
		return corrupt(err)
	}
	if s.dims != 0 && state.Dims != s.dims {
		return semerrors.StoreRejected("", fmt.Sprintf("index was built with %d dimensions, embedder produces %d", state.Dims, s.dims)).
			WithSuggestion("delete the data directory and reindex")
	}
	if err := s.graph.Import(r); err != nil {
		return corrupt(err)
	}

	s.dims = state.Dims
	s.nextKey = state.NextKey
	s.seq = state.Seq
	s.entries = state.Entries
	if s.entries == nil {
		s.entries = make(map[string]*hnswEntry)
	}
	for id, e := range s.entries {
		s.keyMap[e.Key] = id
	}
	s.graph.Distance = hnsw.CosineDistance
	s.graph.EfSearch = s.ef
	return nil
}
