package configs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/semindex/internal/config"
)

func TestProjectConfigTemplate_LoadsAsDefaults(t *testing.T) {
	// Given: the template written as a project config
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.ProjectFileName), []byte(ProjectConfigTemplate), 0o644))

	// When: loading it
	cfg, err := config.Load(dir)

	// Then: it validates and matches the defaults
	require.NoError(t, err)
	def := config.NewConfig()
	assert.Equal(t, def.Chunking, cfg.Chunking)
	assert.Equal(t, def.Store, cfg.Store)
	assert.Equal(t, def.Lexical, cfg.Lexical)
	assert.Equal(t, def.Search, cfg.Search)
	assert.Equal(t, def.Embeddings.Provider, cfg.Embeddings.Provider)
	assert.Equal(t, def.Paths.Exclude, cfg.Paths.Exclude)
}
