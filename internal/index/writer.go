// Package index keeps the similarity store in step with the files on disk.
//
// The Writer classifies a file against its IndexRecord, re-chunks it,
// embeds only what changed and swaps the file's chunk set in the store.
// The record's fingerprint is committed last, after a write intent, so a
// crash at any point is repaired by the next pass.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Aman-CERP/semindex/internal/chunk"
	"github.com/Aman-CERP/semindex/internal/embed"
	semerrors "github.com/Aman-CERP/semindex/internal/errors"
	"github.com/Aman-CERP/semindex/internal/store"
)

// Status is the outcome of indexing one file.
type Status int

const (
	// StatusIndexed means the store now reflects the file.
	StatusIndexed Status = iota
	// StatusSkipped means nothing was written.
	StatusSkipped
	// StatusFailed means the update was aborted; the next pass retries it.
	StatusFailed
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusIndexed:
		return "indexed"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result reports what IndexFile or Remove did.
type Result struct {
	Path   string
	Status Status
	Reason string
	// Chunks is the file's chunk count after the update.
	Chunks int
	// Embedded counts chunks sent to the embedder; the rest were reused.
	Embedded int
	// Removed counts chunk ids deleted from the store.
	Removed int
}

// Skip reasons.
const (
	ReasonUnchanged  = "unchanged"
	ReasonExcluded   = "excluded"
	ReasonNotTracked = "not tracked"
	ReasonUnreadable = "unreadable"
)

// WriterConfig wires a Writer to its collaborators.
type WriterConfig struct {
	// Root is the project root; record keys are relative to it.
	Root     string
	Chunker  chunk.Chunker
	Embedder embed.Embedder
	Vectors  store.SimilarityStore
	Records  store.RecordStore
	// Lexical is optional. Its updates are best effort.
	Lexical store.LexicalIndex
	// Exclude is optional.
	Exclude ExcludeFunc

	MaxChunkSize int
	Overlap      int
	// Workers bounds IndexDirectory parallelism.
	Workers int
	// Timeout bounds each store and embedder call.
	Timeout time.Duration
	Retry   semerrors.RetryConfig

	Logger *slog.Logger
	Now    func() time.Time
}

// Writer applies file changes to the store, one file at a time.
// Calls for the same path are serialized; different paths run in parallel.
type Writer struct {
	cfg      WriterConfig
	paths    pathResolver
	detector *ChangeDetector
	locks    *pathLocks
	logger   *slog.Logger
	progress func(Progress)
}

// NewWriter validates cfg and creates a Writer.
func NewWriter(cfg WriterConfig) (*Writer, error) {
	if cfg.Root == "" || cfg.Chunker == nil || cfg.Embedder == nil || cfg.Vectors == nil || cfg.Records == nil {
		return nil, semerrors.ValidationError("writer requires root, chunker, embedder, vectors and records", nil)
	}
	if cfg.MaxChunkSize <= 0 {
		cfg.MaxChunkSize = chunk.DefaultMaxChunkSize
		cfg.Overlap = chunk.DefaultOverlap
	}
	if cfg.Overlap < 0 || cfg.Overlap >= cfg.MaxChunkSize {
		return nil, semerrors.ValidationError(
			fmt.Sprintf("overlap %d must be in [0, %d)", cfg.Overlap, cfg.MaxChunkSize), nil)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry.Multiplier == 0 {
		cfg.Retry = semerrors.DefaultRetryConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Writer{
		cfg:      cfg,
		paths:    pathResolver{root: cfg.Root},
		detector: NewChangeDetector(cfg.Root, cfg.Records),
		locks:    newPathLocks(),
		logger:   cfg.Logger,
	}, nil
}

// Root returns the project root.
func (w *Writer) Root() string {
	return w.cfg.Root
}

// Detector returns the writer's change detector.
func (w *Writer) Detector() *ChangeDetector {
	return w.detector
}

// IndexFile brings the store in line with the file at path.
// The error is non-nil exactly when Status is StatusFailed.
func (w *Writer) IndexFile(ctx context.Context, path string) (Result, error) {
	abs, key := w.paths.resolve(path)
	unlock := w.locks.lock(key)
	defer unlock()

	res, err := w.indexLocked(ctx, abs, key)
	w.logResult(ctx, res, err)
	return res, err
}

// Remove drops path's chunks and record, whether or not the file exists.
func (w *Writer) Remove(ctx context.Context, path string) (Result, error) {
	_, key := w.paths.resolve(path)
	unlock := w.locks.lock(key)
	defer unlock()

	res, err := w.removeTracked(ctx, key)
	w.logResult(ctx, res, err)
	return res, err
}

func (w *Writer) removeTracked(ctx context.Context, key string) (Result, error) {
	prev, err := w.cfg.Records.Get(ctx, key)
	if err != nil {
		return w.fail(key, err)
	}
	return w.removeLocked(ctx, key, prev)
}

func (w *Writer) indexLocked(ctx context.Context, abs, key string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return w.fail(key, err)
	}

	if w.cfg.Exclude != nil && w.cfg.Exclude(abs, false) {
		prev, err := w.cfg.Records.Get(ctx, key)
		if err != nil {
			return w.fail(key, err)
		}
		if prev == nil {
			return Result{Path: key, Status: StatusSkipped, Reason: ReasonExcluded}, nil
		}
		// A tracked file that became excluded leaves the index.
		res, err := w.removeLocked(ctx, key, prev)
		res.Reason = ReasonExcluded
		return res, err
	}

	change, err := w.detector.Classify(ctx, key)
	if err != nil {
		if semerrors.HasCode(err, semerrors.ErrCodeReadFailed) {
			w.logger.LogAttrs(ctx, slog.LevelWarn, "file_read_failed", semerrors.LogAttrs(err)...)
			return Result{Path: key, Status: StatusSkipped, Reason: ReasonUnreadable}, nil
		}
		return w.fail(key, err)
	}

	switch change.Kind {
	case ChangeUnchanged:
		return Result{Path: key, Status: StatusSkipped, Reason: ReasonUnchanged,
			Chunks: len(change.Previous.ChunkIDs)}, nil
	case ChangeDeleted:
		return w.removeLocked(ctx, key, change.Previous)
	default:
		return w.update(ctx, change)
	}
}

// update re-chunks a new or modified file and swaps its chunk set.
func (w *Writer) update(ctx context.Context, change Change) (Result, error) {
	key := change.Path
	chunks, err := w.cfg.Chunker.Chunk(ctx, key, change.Content, w.cfg.MaxChunkSize, w.cfg.Overlap)
	if err != nil {
		return w.fail(key, err)
	}

	newIDs := make([]string, len(chunks))
	newSet := make(map[string]bool, len(chunks))
	for i := range chunks {
		newIDs[i] = chunks[i].ID
		newSet[chunks[i].ID] = true
	}

	prev := change.Previous
	var oldIDs, pending []string
	reusable := make(map[string]bool)
	if prev != nil {
		oldIDs = union(prev.ChunkIDs, prev.PendingIDs)
		pending = prev.PendingIDs
		// Only a clean commit guarantees the old vectors are present.
		if prev.Committed() && len(prev.PendingIDs) == 0 {
			for _, id := range prev.ChunkIDs {
				reusable[id] = true
			}
		}
	}

	var toDelete []string
	for _, id := range oldIDs {
		if !newSet[id] {
			toDelete = append(toDelete, id)
		}
	}
	var toEmbed []chunk.Chunk
	for _, c := range chunks {
		if !reusable[c.ID] {
			toEmbed = append(toEmbed, c)
		}
	}

	// Write intent: the previous commit stays in place while the pending
	// ids name everything this update may leave in the store.
	intent := &store.IndexRecord{Path: key, PendingIDs: union(pending, newIDs)}
	if prev != nil {
		intent.Fingerprint = prev.Fingerprint
		intent.ChunkIDs = prev.ChunkIDs
		intent.Size = prev.Size
		intent.IndexedAt = prev.IndexedAt
	}
	if err := w.putRecord(ctx, intent); err != nil {
		return w.fail(key, err)
	}

	entries, err := w.embedChunks(ctx, toEmbed)
	if err != nil {
		return w.fail(key, err)
	}
	if err := w.swap(ctx, toDelete, entries); err != nil {
		return w.fail(key, err)
	}
	w.updateLexical(ctx, key, toDelete, toEmbed)

	commit := &store.IndexRecord{
		Path:        key,
		Fingerprint: change.Fingerprint,
		ChunkIDs:    newIDs,
		Size:        int64(len(change.Content)),
		IndexedAt:   w.cfg.Now(),
	}
	if err := w.putRecord(ctx, commit); err != nil {
		return w.fail(key, err)
	}

	return Result{
		Path:     key,
		Status:   StatusIndexed,
		Reason:   change.Kind.String(),
		Chunks:   len(newIDs),
		Embedded: len(toEmbed),
		Removed:  len(toDelete),
	}, nil
}

// removeLocked deletes every id the record names, then the record itself.
func (w *Writer) removeLocked(ctx context.Context, key string, prev *store.IndexRecord) (Result, error) {
	if prev == nil {
		return Result{Path: key, Status: StatusSkipped, Reason: ReasonNotTracked}, nil
	}

	ids := union(prev.ChunkIDs, prev.PendingIDs)
	// Uncommit first so a crash below re-indexes the file if it reappears.
	intent := &store.IndexRecord{Path: key, PendingIDs: ids}
	if err := w.putRecord(ctx, intent); err != nil {
		return w.fail(key, err)
	}
	if err := w.swap(ctx, ids, nil); err != nil {
		return w.fail(key, err)
	}
	w.updateLexical(ctx, key, ids, nil)

	err := w.withRetry(ctx, func(callCtx context.Context) error {
		return w.cfg.Records.Delete(callCtx, key)
	})
	if err != nil {
		return w.fail(key, err)
	}
	return Result{Path: key, Status: StatusIndexed, Reason: ChangeDeleted.String(), Removed: len(ids)}, nil
}

// embedChunks embeds chunk content in one batch and builds store entries.
func (w *Writer) embedChunks(ctx context.Context, chunks []chunk.Chunk) ([]store.Entry, error) {
	if len(chunks) == 0 {
		return nil, nil
	}
	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Content
	}

	var vectors [][]float32
	err := w.withRetry(ctx, func(callCtx context.Context) error {
		v, err := w.cfg.Embedder.EmbedBatch(callCtx, texts)
		if err != nil {
			if _, ok := semerrors.As(err); !ok && !isTimeout(err) {
				return semerrors.EmbeddingError("embed batch failed", err)
			}
			return err
		}
		if len(v) != len(texts) {
			return semerrors.EmbeddingError(
				fmt.Sprintf("embedder returned %d vectors for %d chunks", len(v), len(texts)), nil)
		}
		vectors = v
		return nil
	})
	if err != nil {
		return nil, err
	}

	entries := make([]store.Entry, len(chunks))
	for i, c := range chunks {
		entries[i] = store.Entry{
			ID:     c.ID,
			Vector: vectors[i],
			Payload: store.Payload{
				Path:      c.Path,
				StartLine: c.StartLine,
				EndLine:   c.EndLine,
				Category:  c.Category.Kind.String(),
				Language:  c.Category.Language,
				Content:   c.Content,
				Metadata:  c.Metadata,
			},
		}
	}
	return entries, nil
}

// swap removes deleteIDs and upserts entries, atomically when the backend
// implements store.Replacer.
func (w *Writer) swap(ctx context.Context, deleteIDs []string, entries []store.Entry) error {
	if len(deleteIDs) == 0 && len(entries) == 0 {
		return nil
	}
	return w.withRetry(ctx, func(callCtx context.Context) error {
		if r, ok := w.cfg.Vectors.(store.Replacer); ok {
			return r.Replace(callCtx, deleteIDs, entries)
		}
		if len(deleteIDs) > 0 {
			if err := w.cfg.Vectors.Delete(callCtx, deleteIDs); err != nil {
				return err
			}
		}
		if len(entries) > 0 {
			return w.cfg.Vectors.Upsert(callCtx, entries)
		}
		return nil
	})
}

// updateLexical mirrors a swap into the lexical index. Failures are logged
// and left for Verify to report.
func (w *Writer) updateLexical(ctx context.Context, key string, deleteIDs []string, added []chunk.Chunk) {
	if w.cfg.Lexical == nil {
		return
	}
	if len(deleteIDs) > 0 {
		if err := w.cfg.Lexical.Delete(ctx, deleteIDs); err != nil {
			w.logger.Warn("lexical_delete_failed",
				slog.String("path", key),
				slog.Int("count", len(deleteIDs)),
				slog.String("error", err.Error()))
		}
	}
	if len(added) == 0 {
		return
	}
	docs := make([]store.Document, len(added))
	for i, c := range added {
		docs[i] = store.Document{ID: c.ID, Path: c.Path, Content: c.Content}
	}
	if err := w.cfg.Lexical.Index(ctx, docs); err != nil {
		w.logger.Warn("lexical_index_failed",
			slog.String("path", key),
			slog.Int("count", len(docs)),
			slog.String("error", err.Error()))
	}
}

func (w *Writer) putRecord(ctx context.Context, rec *store.IndexRecord) error {
	return w.withRetry(ctx, func(callCtx context.Context) error {
		return w.cfg.Records.Put(callCtx, rec)
	})
}

// withRetry runs fn under the per-call timeout with backoff. A timeout is
// reported as StoreUnavailable so it is retried; StoreRejected and other
// permanent errors end the loop at once.
func (w *Writer) withRetry(ctx context.Context, fn func(context.Context) error) error {
	return semerrors.Retry(ctx, w.cfg.Retry, func() error {
		callCtx, cancel := context.WithTimeout(ctx, w.cfg.Timeout)
		defer cancel()

		err := fn(callCtx)
		if err != nil && ctx.Err() == nil && isTimeout(err) {
			return semerrors.StoreUnavailable("call timed out", err).
				WithDetail("timeout", w.cfg.Timeout.String())
		}
		return err
	})
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

func (w *Writer) fail(key string, err error) (Result, error) {
	return Result{Path: key, Status: StatusFailed, Reason: err.Error()}, err
}

func (w *Writer) logResult(ctx context.Context, res Result, err error) {
	switch {
	case err != nil:
		attrs := append(semerrors.LogAttrs(err), slog.String("path", res.Path))
		w.logger.LogAttrs(ctx, slog.LevelWarn, "file_index_failed", attrs...)
	case res.Status == StatusIndexed:
		w.logger.Debug("file_indexed",
			slog.String("path", res.Path),
			slog.String("change", res.Reason),
			slog.Int("chunks", res.Chunks),
			slog.Int("embedded", res.Embedded),
			slog.Int("removed", res.Removed))
	}
}

// union returns a followed by the ids of b not in a, without duplicates.
func union(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, id := range list {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}
