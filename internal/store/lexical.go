package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// Lexical backend names accepted by NewLexicalIndex.
const (
	// LexicalSQLite uses SQLite FTS5 in WAL mode, safe across processes.
	LexicalSQLite = "sqlite"
	// LexicalBleve uses Bleve v2. BoltDB holds an exclusive file lock, so
	// only one process can open it.
	LexicalBleve = "bleve"
	// LexicalNone disables keyword search.
	LexicalNone = "none"
)

// NewLexicalIndex creates the lexical index for backend. basePath has no
// extension; ".db" or ".bleve" is appended. An empty basePath keeps the
// index in memory. LexicalNone returns a nil index and no error.
func NewLexicalIndex(basePath, backend string) (LexicalIndex, error) {
	switch backend {
	case LexicalSQLite, "":
		var path string
		if basePath != "" {
			path = basePath + ".db"
		}
		return NewSQLiteLexicalIndex(path, DefaultCodeStopWords)

	case LexicalBleve:
		var path string
		if basePath != "" {
			path = basePath + ".bleve"
		}
		return NewBleveLexicalIndex(path)

	case LexicalNone:
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown lexical backend: %s (valid options: sqlite, bleve, none)", backend)
	}
}

// LexicalIndexPath returns the on-disk location for backend under dataDir.
func LexicalIndexPath(dataDir, backend string) string {
	base := filepath.Join(dataDir, "lexical")
	if backend == LexicalBleve {
		return base + ".bleve"
	}
	return base + ".db"
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
