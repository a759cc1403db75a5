package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	semerrors "github.com/Aman-CERP/semindex/internal/errors"
)

// isolate points the user config at an empty directory.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
}

func TestNewConfig_DefaultsAreValid(t *testing.T) {
	cfg := NewConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 120, cfg.Chunking.MaxChunkSize)
	assert.Equal(t, 24, cfg.Chunking.Overlap)
	assert.Equal(t, "hnsw", cfg.Store.Backend)
	assert.Equal(t, 200*time.Millisecond, cfg.Watcher.Debounce())
	assert.Contains(t, cfg.Index.AllowedExtensions, ".go")
	assert.LessOrEqual(t, cfg.Index.WorkerPoolSize, 8)
}

func TestLoad_NoFilesUsesDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load(t.TempDir())

	require.NoError(t, err)
	assert.Equal(t, NewConfig().Chunking, cfg.Chunking)
}

func TestLoad_ProjectFileOverridesUserFile(t *testing.T) {
	// Given: a user config and a project config that disagree
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	require.NoError(t, os.MkdirAll(filepath.Join(xdg, "semindex"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(xdg, "semindex", "config.yaml"),
		[]byte("store:\n  backend: memory\nwatcher:\n  debounce_window: 50ms\n"), 0o644))

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectFileName),
		[]byte("store:\n  backend: sqlitevec\nchunking:\n  max_chunk_size: 50\npaths:\n  exclude: [\"gen/\"]\n"), 0o644))

	// When: loading
	cfg, err := Load(dir)

	// Then: project wins, user-only values survive, overlap follows chunk size
	require.NoError(t, err)
	assert.Equal(t, "sqlitevec", cfg.Store.Backend)
	assert.Equal(t, 50*time.Millisecond, cfg.Watcher.Debounce())
	assert.Equal(t, 50, cfg.Chunking.MaxChunkSize)
	assert.Equal(t, 10, cfg.Chunking.Overlap)
	assert.Contains(t, cfg.Paths.Exclude, "gen/")
	assert.Contains(t, cfg.Paths.Exclude, ".git/")
}

func TestLoad_EnvOverridesFiles(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectFileName),
		[]byte("store:\n  backend: sqlitevec\n"), 0o644))

	t.Setenv("SEMINDEX_STORE_BACKEND", "MEMORY")
	t.Setenv("SEMINDEX_WORKERS", "3")
	t.Setenv("SEMINDEX_ALLOWED_EXTENSIONS", "go, .PY")
	t.Setenv("SEMINDEX_VECTOR_WEIGHT", "0.6")

	cfg, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, 3, cfg.Index.WorkerPoolSize)
	assert.Equal(t, []string{".go", ".py"}, cfg.Index.AllowedExtensions)
	assert.InDelta(t, 0.4, cfg.Search.LexicalWeight, 1e-9)
}

func TestLoad_InvalidConfig(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectFileName),
		[]byte("store:\n  backend: redis\n"), 0o644))

	_, err := Load(dir)

	require.Error(t, err)
	assert.True(t, semerrors.HasCode(err, semerrors.ErrCodeConfigInvalid))
	assert.Contains(t, err.Error(), "store.backend")
}

func TestLoad_MalformedYAML(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProjectFileName), []byte("store: [unclosed"), 0o644))

	_, err := Load(dir)

	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero chunk size", func(c *Config) { c.Chunking.MaxChunkSize = 0 }},
		{"overlap too large", func(c *Config) { c.Chunking.Overlap = c.Chunking.MaxChunkSize }},
		{"negative overlap", func(c *Config) { c.Chunking.Overlap = -1 }},
		{"no workers", func(c *Config) { c.Index.WorkerPoolSize = 0 }},
		{"bad debounce", func(c *Config) { c.Watcher.DebounceWindow = "soon" }},
		{"bad fusion", func(c *Config) { c.Search.Fusion = "max" }},
		{"weights do not sum", func(c *Config) { c.Search.VectorWeight = 0.9 }},
		{"bad provider", func(c *Config) { c.Embeddings.Provider = "openai" }},
		{"bad lexical", func(c *Config) { c.Lexical.Backend = "lucene" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDataDirFor(t *testing.T) {
	cfg := NewConfig()
	assert.Equal(t, filepath.Join("/repo", ".semindex"), cfg.DataDirFor("/repo"))

	cfg.Paths.DataDir = "idx"
	assert.Equal(t, filepath.Join("/repo", "idx"), cfg.DataDirFor("/repo"))

	cfg.Paths.DataDir = "/var/semindex"
	assert.Equal(t, "/var/semindex", cfg.DataDirFor("/repo"))
}

func TestFindProjectRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	got, err := FindProjectRoot(nested)

	require.NoError(t, err)
	assert.Equal(t, root, got)
}

func TestWriteYAML_RoundTripsThroughLoad(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	cfg := NewConfig()
	cfg.Store.Backend = "memory"
	require.NoError(t, cfg.WriteYAML(filepath.Join(dir, ProjectFileName)))

	loaded, err := Load(dir)

	require.NoError(t, err)
	assert.Equal(t, "memory", loaded.Store.Backend)
}
