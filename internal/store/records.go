package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// SQLiteRecordStore persists index records in SQLite through the pure Go
// modernc driver.
type SQLiteRecordStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

var _ RecordStore = (*SQLiteRecordStore)(nil)

// NewSQLiteRecordStore opens or creates the record database at path.
// An empty path opens an in-memory database.
func NewSQLiteRecordStore(path string) (*SQLiteRecordStore, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", filepath.Dir(path), err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, unavailable("open record database", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// DSN params may be ignored by modernc.org/sqlite, so pragmas run as statements.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = FULL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, unavailable("set pragma", err)
		}
	}

	const schema = `
	CREATE TABLE IF NOT EXISTS index_records (
		path        TEXT PRIMARY KEY,
		fingerprint TEXT NOT NULL DEFAULT '',
		chunk_ids   TEXT NOT NULL DEFAULT '[]',
		pending_ids TEXT NOT NULL DEFAULT '[]',
		size        INTEGER NOT NULL DEFAULT 0,
		indexed_at  INTEGER NOT NULL DEFAULT 0
	);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, unavailable("create record schema", err)
	}
	return &SQLiteRecordStore{db: db}, nil
}

// Get implements RecordStore.
func (s *SQLiteRecordStore) Get(ctx context.Context, path string) (*IndexRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, closedError()
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT path, fingerprint, chunk_ids, pending_ids, size, indexed_at FROM index_records WHERE path = ?`, path)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("read record", err)
	}
	return rec, nil
}

// Put implements RecordStore. It replaces the whole record.
func (s *SQLiteRecordStore) Put(ctx context.Context, rec *IndexRecord) error {
	chunkIDs, err := json.Marshal(nonNil(rec.ChunkIDs))
	if err != nil {
		return err
	}
	pendingIDs, err := json.Marshal(nonNil(rec.PendingIDs))
	if err != nil {
		return err
	}
	var indexedAt int64
	if !rec.IndexedAt.IsZero() {
		indexedAt = rec.IndexedAt.UnixNano()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return closedError()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO index_records(path, fingerprint, chunk_ids, pending_ids, size, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			chunk_ids   = excluded.chunk_ids,
			pending_ids = excluded.pending_ids,
			size        = excluded.size,
			indexed_at  = excluded.indexed_at
	`, rec.Path, rec.Fingerprint, string(chunkIDs), string(pendingIDs), rec.Size, indexedAt)
	if err != nil {
		return unavailable("write record", err)
	}
	return nil
}

// Delete implements RecordStore. Deleting an untracked path is a no-op.
func (s *SQLiteRecordStore) Delete(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return closedError()
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM index_records WHERE path = ?`, path); err != nil {
		return unavailable("delete record", err)
	}
	return nil
}

// List implements RecordStore. Records are ordered by path.
func (s *SQLiteRecordStore) List(ctx context.Context) ([]*IndexRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, closedError()
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT path, fingerprint, chunk_ids, pending_ids, size, indexed_at FROM index_records ORDER BY path`)
	if err != nil {
		return nil, unavailable("list records", err)
	}
	defer rows.Close()

	var out []*IndexRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, unavailable("scan record", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list records", err)
	}
	return out, nil
}

// Stats implements RecordStore. Only committed records count.
func (s *SQLiteRecordStore) Stats(ctx context.Context) (RecordStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return RecordStats{}, closedError()
	}

	var (
		stats  RecordStats
		chunks sql.NullInt64
		last   sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), SUM(json_array_length(chunk_ids)), MAX(indexed_at)
		FROM index_records WHERE fingerprint != ''
	`).Scan(&stats.TrackedFiles, &chunks, &last)
	if err != nil {
		return RecordStats{}, unavailable("record stats", err)
	}
	stats.TotalChunks = int(chunks.Int64)
	if last.Valid && last.Int64 > 0 {
		stats.LastIndexedAt = time.Unix(0, last.Int64)
	}
	return stats, nil
}

// Close implements RecordStore.
func (s *SQLiteRecordStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*IndexRecord, error) {
	var (
		rec        IndexRecord
		chunkIDs   string
		pendingIDs string
		indexedAt  int64
	)
	if err := row.Scan(&rec.Path, &rec.Fingerprint, &chunkIDs, &pendingIDs, &rec.Size, &indexedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(chunkIDs), &rec.ChunkIDs); err != nil {
		return nil, fmt.Errorf("decode chunk ids for %s: %w", rec.Path, err)
	}
	if err := json.Unmarshal([]byte(pendingIDs), &rec.PendingIDs); err != nil {
		return nil, fmt.Errorf("decode pending ids for %s: %w", rec.Path, err)
	}
	if indexedAt > 0 {
		rec.IndexedAt = time.Unix(0, indexedAt)
	}
	return &rec, nil
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
