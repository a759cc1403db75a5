package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	semerrors "github.com/Aman-CERP/semindex/internal/errors"
)

func init() {
	sqlite_vec.Auto()
}

// vec0 rejects k above this value.
const sqliteVecMaxK = 4096

// SQLiteVecStore implements SimilarityStore on SQLite with the sqlite-vec
// vec0 virtual table. Entry payloads live in a regular table whose
// AUTOINCREMENT key doubles as the insertion sequence.
type SQLiteVecStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	dims   int
	closed bool
}

var (
	_ SimilarityStore = (*SQLiteVecStore)(nil)
	_ Replacer        = (*SQLiteVecStore)(nil)
)

// NewSQLiteVecStore opens or creates the database at opts.Path.
// An empty path opens a private in-memory database.
func NewSQLiteVecStore(opts Options) (*SQLiteVecStore, error) {
	dsn := ":memory:"
	if opts.Path != "" {
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		dsn = opts.Path + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, unavailable("open sqlite-vec database", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteVecStore{db: db, path: opts.Path, dims: opts.Dimensions}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteVecStore) initSchema() error {
	const base = `
	CREATE TABLE IF NOT EXISTS vec_meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS entries (
		seq      INTEGER PRIMARY KEY AUTOINCREMENT,
		id       TEXT NOT NULL UNIQUE,
		path     TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		language TEXT NOT NULL DEFAULT '',
		payload  TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entries_path ON entries(path);
	`
	if _, err := s.db.Exec(base); err != nil {
		return unavailable("create sqlite-vec schema", err)
	}

	var stored string
	err := s.db.QueryRow(`SELECT value FROM vec_meta WHERE key = 'dimensions'`).Scan(&stored)
	switch {
	case err == sql.ErrNoRows:
		if s.dims <= 0 {
			return semerrors.ValidationError("sqlite-vec store needs a dimension count", nil)
		}
		if _, err := s.db.Exec(`INSERT INTO vec_meta(key, value) VALUES ('dimensions', ?)`, strconv.Itoa(s.dims)); err != nil {
			return unavailable("record dimensions", err)
		}
	case err != nil:
		return unavailable("read dimensions", err)
	default:
		dims, convErr := strconv.Atoi(stored)
		if convErr != nil {
			return semerrors.New(semerrors.ErrCodeCorruptIndex, "invalid stored dimension count", convErr)
		}
		if s.dims != 0 && dims != s.dims {
			return semerrors.StoreRejected("", fmt.Sprintf("index was built with %d dimensions, embedder produces %d", dims, s.dims)).
				WithSuggestion("delete the data directory and reindex")
		}
		s.dims = dims
	}

	vecTable := fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS vec_entries USING vec0(
		seq INTEGER PRIMARY KEY,
		embedding float[%d] distance_metric=cosine
	)`, s.dims)
	if _, err := s.db.Exec(vecTable); err != nil {
		return unavailable("create vec0 table", err)
	}
	return nil
}

// Upsert implements SimilarityStore.
func (s *SQLiteVecStore) Upsert(ctx context.Context, entries []Entry) error {
	return s.Replace(ctx, nil, entries)
}

// Delete implements SimilarityStore.
func (s *SQLiteVecStore) Delete(ctx context.Context, ids []string) error {
	return s.Replace(ctx, ids, nil)
}

// Replace deletes and upserts in a single transaction.
func (s *SQLiteVecStore) Replace(ctx context.Context, deleteIDs []string, entries []Entry) error {
	if len(deleteIDs) == 0 && len(entries) == 0 {
		return nil
	}
	if err := checkEntries(entries, s.dims); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return closedError()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	remove := append(append([]string(nil), deleteIDs...), idsOf(entries)...)
	if err := deleteEntriesTx(ctx, tx, remove); err != nil {
		return err
	}

	insertEntry, err := tx.PrepareContext(ctx,
		`INSERT INTO entries(id, path, category, language, payload) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return unavailable("prepare entry insert", err)
	}
	defer insertEntry.Close()

	insertVec, err := tx.PrepareContext(ctx,
		`INSERT INTO vec_entries(seq, embedding) VALUES (?, ?)`)
	if err != nil {
		return unavailable("prepare vector insert", err)
	}
	defer insertVec.Close()

	for _, e := range entries {
		payload, err := json.Marshal(e.Payload)
		if err != nil {
			return semerrors.StoreRejected(e.ID, "payload is not serializable")
		}
		blob, err := sqlite_vec.SerializeFloat32(e.Vector)
		if err != nil {
			return semerrors.StoreRejected(e.ID, "vector is not serializable")
		}
		res, err := insertEntry.ExecContext(ctx, e.ID, e.Payload.Path, e.Payload.Category, e.Payload.Language, string(payload))
		if err != nil {
			return unavailable("insert entry", err)
		}
		seq, err := res.LastInsertId()
		if err != nil {
			return unavailable("read entry sequence", err)
		}
		if _, err := insertVec.ExecContext(ctx, seq, blob); err != nil {
			return unavailable("insert vector", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return unavailable("commit", err)
	}
	return nil
}

func deleteEntriesTx(ctx context.Context, tx *sql.Tx, ids []string) error {
	for len(ids) > 0 {
		batch := ids[:min(len(ids), 500)]
		ids = ids[len(batch):]

		in, args := inClause(batch)
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM vec_entries WHERE seq IN (SELECT seq FROM entries WHERE id IN (%s))`, in), args...); err != nil {
			return unavailable("delete vectors", err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM entries WHERE id IN (%s)`, in), args...); err != nil {
			return unavailable("delete entries", err)
		}
	}
	return nil
}

// Query implements SimilarityStore. With a filter, the KNN window grows
// until k matches pass or the table is exhausted.
func (s *SQLiteVecStore) Query(ctx context.Context, vector []float32, k int, filter *Filter) ([]Match, error) {
	if len(vector) != s.dims {
		return nil, dimensionError("query", s.dims, len(vector))
	}
	if k <= 0 {
		return []Match{}, nil
	}
	blob, err := sqlite_vec.SerializeFloat32(vector)
	if err != nil {
		return nil, semerrors.StoreRejected("query", "vector is not serializable")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, closedError()
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&total); err != nil {
		return nil, unavailable("count entries", err)
	}
	if total == 0 {
		return []Match{}, nil
	}

	n := k
	if filter != nil {
		n = k * overfetchFactor
	}
	limit := min(total, sqliteVecMaxK)
	for {
		n = min(n, limit)
		candidates, err := s.knn(ctx, blob, n, filter)
		if err != nil {
			return nil, err
		}
		if len(candidates) >= k || n >= limit {
			return topK(candidates, k), nil
		}
		n *= 2
	}
}

func (s *SQLiteVecStore) knn(ctx context.Context, blob []byte, n int, filter *Filter) ([]ranked, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.seq, e.payload, v.distance
		FROM (
			SELECT seq, distance FROM vec_entries
			WHERE embedding MATCH ? AND k = ?
		) v
		JOIN entries e ON e.seq = v.seq
	`, blob, n)
	if err != nil {
		return nil, unavailable("vector query", err)
	}
	defer rows.Close()

	var out []ranked
	for rows.Next() {
		var (
			r        ranked
			seq      int64
			payload  string
			distance float64
		)
		if err := rows.Scan(&r.id, &seq, &payload, &distance); err != nil {
			return nil, unavailable("scan match", err)
		}
		if err := json.Unmarshal([]byte(payload), &r.payload); err != nil {
			return nil, semerrors.New(semerrors.ErrCodeCorruptIndex, "stored payload is invalid", err).WithDetail("id", r.id)
		}
		if !filter.Matches(r.payload) {
			continue
		}
		r.seq = uint64(seq)
		r.score = float32(1 - distance)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("read matches", err)
	}
	return out, nil
}

// Fetch implements SimilarityStore.
func (s *SQLiteVecStore) Fetch(ctx context.Context, ids []string, limit int) ([]Entry, error) {
	if ids != nil && len(ids) == 0 {
		return []Entry{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, closedError()
	}

	query := `SELECT e.id, e.payload, v.embedding FROM entries e JOIN vec_entries v ON v.seq = e.seq`
	var args []any
	if ids != nil {
		var in string
		in, args = inClause(ids)
		query += fmt.Sprintf(` WHERE e.id IN (%s)`, in)
	}
	query += ` ORDER BY e.seq`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("fetch entries", err)
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		var (
			e       Entry
			payload string
			blob    []byte
		)
		if err := rows.Scan(&e.ID, &payload, &blob); err != nil {
			return nil, unavailable("scan entry", err)
		}
		if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
			return nil, semerrors.New(semerrors.ErrCodeCorruptIndex, "stored payload is invalid", err).WithDetail("id", e.ID)
		}
		e.Vector = deserializeFloat32(blob)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("read entries", err)
	}
	return out, nil
}

// Count implements SimilarityStore.
func (s *SQLiteVecStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, closedError()
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&n); err != nil {
		return 0, unavailable("count entries", err)
	}
	return n, nil
}

// Dimensions implements SimilarityStore.
func (s *SQLiteVecStore) Dimensions() int { return s.dims }

// Close implements SimilarityStore.
func (s *SQLiteVecStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// deserializeFloat32 is the inverse of sqlite_vec.SerializeFloat32.
func deserializeFloat32(blob []byte) []float32 {
	out := make([]float32, len(blob)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return out
}

func inClause(ids []string) (string, []any) {
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	return strings.Join(placeholders, ","), args
}

func idsOf(entries []Entry) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids
}
