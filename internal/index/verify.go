package index

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/Aman-CERP/semindex/internal/store"
)

// InconsistencyType categorizes detected issues.
type InconsistencyType int

const (
	// InconsistencyOrphanVector is a store entry no record references.
	InconsistencyOrphanVector InconsistencyType = iota
	// InconsistencyMissingVector is a committed chunk id absent from the store.
	InconsistencyMissingVector
	// InconsistencyOrphanLexical is a lexical entry no record references.
	InconsistencyOrphanLexical
	// InconsistencyMissingLexical is a committed chunk id absent from the lexical index.
	InconsistencyMissingLexical
	// InconsistencyPendingIntent is a record left with an uncommitted write intent.
	InconsistencyPendingIntent
)

// String returns a short name for the inconsistency type.
func (t InconsistencyType) String() string {
	switch t {
	case InconsistencyOrphanVector:
		return "orphan_vector"
	case InconsistencyMissingVector:
		return "missing_vector"
	case InconsistencyOrphanLexical:
		return "orphan_lexical"
	case InconsistencyMissingLexical:
		return "missing_lexical"
	case InconsistencyPendingIntent:
		return "pending_intent"
	default:
		return "unknown"
	}
}

// Inconsistency is one detected issue. Path is empty for orphans.
type Inconsistency struct {
	Type    InconsistencyType `json:"type"`
	ChunkID string            `json:"chunk_id,omitempty"`
	Path    string            `json:"path,omitempty"`
}

// VerifyReport is the outcome of Verify.
type VerifyReport struct {
	// Checked is the number of committed chunk ids verified.
	Checked         int             `json:"checked"`
	Inconsistencies []Inconsistency `json:"inconsistencies"`
	Duration        time.Duration   `json:"duration"`
}

// Clean reports whether no issue was found.
func (r *VerifyReport) Clean() bool {
	return len(r.Inconsistencies) == 0
}

// Count returns the number of issues of type t.
func (r *VerifyReport) Count(t InconsistencyType) int {
	n := 0
	for _, issue := range r.Inconsistencies {
		if issue.Type == t {
			n++
		}
	}
	return n
}

// RepairResult summarizes Repair.
type RepairResult struct {
	OrphansDeleted  int `json:"orphans_deleted"`
	Reindexed       int `json:"reindexed"`
	LexicalRestored int `json:"lexical_restored"`
	Failed          int `json:"failed"`
}

// Verify cross-checks records against the similarity store and the lexical
// index. Run it while no other writer is active; in-flight updates show up
// as pending intents.
func (w *Writer) Verify(ctx context.Context) (*VerifyReport, error) {
	start := time.Now()
	report := &VerifyReport{}

	records, err := w.cfg.Records.List(ctx)
	if err != nil {
		return nil, err
	}

	committed := make(map[string]string)
	referenced := make(map[string]bool)
	for _, rec := range records {
		for _, id := range rec.ChunkIDs {
			committed[id] = rec.Path
			referenced[id] = true
		}
		for _, id := range rec.PendingIDs {
			referenced[id] = true
		}
		if len(rec.PendingIDs) > 0 || !rec.Committed() {
			report.add(InconsistencyPendingIntent, "", rec.Path)
		}
	}
	report.Checked = len(committed)

	entries, err := w.cfg.Vectors.Fetch(ctx, nil, 0)
	if err != nil {
		return nil, err
	}
	inStore := make(map[string]bool, len(entries))
	for _, e := range entries {
		inStore[e.ID] = true
		if !referenced[e.ID] {
			report.add(InconsistencyOrphanVector, e.ID, "")
		}
	}
	for _, id := range sortedKeys(committed) {
		if !inStore[id] {
			report.add(InconsistencyMissingVector, id, committed[id])
		}
	}

	if w.cfg.Lexical != nil {
		lexIDs, err := w.cfg.Lexical.AllIDs(ctx)
		if err != nil {
			w.logger.Warn("lexical_verify_failed", slog.String("error", err.Error()))
		} else {
			inLexical := make(map[string]bool, len(lexIDs))
			for _, id := range lexIDs {
				inLexical[id] = true
				if !referenced[id] {
					report.add(InconsistencyOrphanLexical, id, "")
				}
			}
			for _, id := range sortedKeys(committed) {
				if !inLexical[id] {
					report.add(InconsistencyMissingLexical, id, committed[id])
				}
			}
		}
	}

	report.Duration = time.Since(start)
	return report, nil
}

func (r *VerifyReport) add(t InconsistencyType, id, path string) {
	r.Inconsistencies = append(r.Inconsistencies, Inconsistency{Type: t, ChunkID: id, Path: path})
}

// Repair fixes what Verify found. Orphans are deleted; files with missing
// vectors or a stale intent are uncommitted and re-indexed; chunks missing
// only from the lexical index are restored from their stored payload.
func (w *Writer) Repair(ctx context.Context, report *VerifyReport) (RepairResult, error) {
	var result RepairResult
	var orphanVectors, orphanLexical, missingLexical []string
	requeue := make(map[string]bool)

	for _, issue := range report.Inconsistencies {
		switch issue.Type {
		case InconsistencyOrphanVector:
			orphanVectors = append(orphanVectors, issue.ChunkID)
		case InconsistencyOrphanLexical:
			orphanLexical = append(orphanLexical, issue.ChunkID)
		case InconsistencyMissingLexical:
			missingLexical = append(missingLexical, issue.ChunkID)
		case InconsistencyMissingVector, InconsistencyPendingIntent:
			requeue[issue.Path] = true
		}
	}

	if len(orphanVectors) > 0 {
		if err := w.swap(ctx, orphanVectors, nil); err != nil {
			return result, err
		}
		result.OrphansDeleted += len(orphanVectors)
	}
	if len(orphanLexical) > 0 {
		if err := w.cfg.Lexical.Delete(ctx, orphanLexical); err != nil {
			w.logger.Warn("lexical_orphan_delete_failed", slog.String("error", err.Error()))
		} else {
			result.OrphansDeleted += len(orphanLexical)
		}
	}

	for _, path := range sortedKeys(requeue) {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := w.uncommit(ctx, path); err != nil {
			result.Failed++
			continue
		}
		if _, err := w.IndexFile(ctx, path); err != nil {
			result.Failed++
			continue
		}
		result.Reindexed++
	}

	if len(missingLexical) > 0 && w.cfg.Lexical != nil {
		restored, err := w.restoreLexical(ctx, missingLexical, requeue)
		if err != nil {
			w.logger.Warn("lexical_restore_failed", slog.String("error", err.Error()))
		}
		result.LexicalRestored = restored
	}

	w.logger.Info("index_repaired",
		slog.Int("orphans_deleted", result.OrphansDeleted),
		slog.Int("reindexed", result.Reindexed),
		slog.Int("lexical_restored", result.LexicalRestored),
		slog.Int("failed", result.Failed))
	return result, nil
}

// uncommit clears a record's fingerprint so the next IndexFile treats the
// file as new and replaces every id the record names.
func (w *Writer) uncommit(ctx context.Context, path string) error {
	unlock := w.locks.lock(path)
	defer unlock()

	rec, err := w.cfg.Records.Get(ctx, path)
	if err != nil || rec == nil {
		return err
	}
	return w.putRecord(ctx, &store.IndexRecord{
		Path:       path,
		PendingIDs: union(rec.ChunkIDs, rec.PendingIDs),
	})
}

// restoreLexical re-adds documents from stored payloads, skipping files
// that were just re-indexed.
func (w *Writer) restoreLexical(ctx context.Context, ids []string, reindexed map[string]bool) (int, error) {
	entries, err := w.cfg.Vectors.Fetch(ctx, ids, 0)
	if err != nil {
		return 0, err
	}
	docs := make([]store.Document, 0, len(entries))
	for _, e := range entries {
		if reindexed[e.Payload.Path] {
			continue
		}
		docs = append(docs, store.Document{ID: e.ID, Path: e.Payload.Path, Content: e.Payload.Content})
	}
	if len(docs) == 0 {
		return 0, nil
	}
	if err := w.cfg.Lexical.Index(ctx, docs); err != nil {
		return 0, err
	}
	return len(docs), nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
