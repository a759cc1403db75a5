package store

import (
	"fmt"
	"path/filepath"
)

// New creates the similarity store selected by opts.Backend.
func New(opts Options) (SimilarityStore, error) {
	if opts.Dimensions <= 0 && opts.Backend != BackendSQLiteVec {
		return nil, fmt.Errorf("store dimensions must be positive, got %d", opts.Dimensions)
	}

	switch opts.Backend {
	case BackendHNSW, "":
		return NewHNSWStore(opts)
	case BackendSQLiteVec:
		return NewSQLiteVecStore(opts)
	case BackendMemory:
		return NewMemoryStore(opts.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown store backend: %s (valid options: hnsw, sqlitevec, memory)", opts.Backend)
	}
}

// VectorPath returns the on-disk location of backend under dataDir, or ""
// for the memory backend.
func VectorPath(dataDir, backend string) string {
	switch backend {
	case BackendMemory:
		return ""
	case BackendSQLiteVec:
		return filepath.Join(dataDir, "vectors.db")
	default:
		return filepath.Join(dataDir, "vectors.hnsw")
	}
}

// RecordsPath returns the record database location under dataDir.
func RecordsPath(dataDir string) string {
	return filepath.Join(dataDir, "records.db")
}
