package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/semindex/internal/config"
	semerrors "github.com/Aman-CERP/semindex/internal/errors"
	"github.com/Aman-CERP/semindex/internal/store"
	"github.com/Aman-CERP/semindex/pkg/version"
)

// isolate points HOME and the user config dir at temp directories so logs
// and user config never leak between tests.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("CI", "true")
}

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCmd()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func newProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"auth/login.go": "package auth\n\n// Authenticate checks a user password.\nfunc Authenticate(user, password string) bool {\n\treturn user != \"\" && password != \"\"\n}\n",
		"README.md":     "# Demo\n\nA small project used to exercise the index.\n",
	}
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	// Given: the root command
	root := NewRootCmd()

	// When/Then: every subcommand resolves
	for _, name := range []string{"index", "search", "watch", "stats", "verify", "serve", "init", "version"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := root.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestRootCmd_DebugFlagIsPersistent(t *testing.T) {
	root := NewRootCmd()
	assert.NotNil(t, root.PersistentFlags().Lookup("debug"))
	assert.NotNil(t, root.PersistentFlags().Lookup("root"))
}

func TestVersionCmd_DefaultOutput(t *testing.T) {
	// Given: a version command
	cmd := newVersionCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{})

	// When: executing without flags
	err := cmd.Execute()

	// Then: it prints the program name and version
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "semindex")
	assert.Contains(t, buf.String(), version.Version)
}

func TestVersionCmd_ShortAndJSON(t *testing.T) {
	t.Run("short", func(t *testing.T) {
		cmd := newVersionCmd()
		buf := &bytes.Buffer{}
		cmd.SetOut(buf)
		cmd.SetArgs([]string{"--short"})

		require.NoError(t, cmd.Execute())
		assert.Equal(t, version.Version, strings.TrimSpace(buf.String()))
	})

	t.Run("json", func(t *testing.T) {
		cmd := newVersionCmd()
		buf := &bytes.Buffer{}
		cmd.SetOut(buf)
		cmd.SetArgs([]string{"--json"})

		require.NoError(t, cmd.Execute())
		var info map[string]string
		require.NoError(t, json.Unmarshal(buf.Bytes(), &info))
		assert.Equal(t, version.Version, info["version"])
		assert.Contains(t, info, "go_version")
	})
}

func TestIndexSearchStatsVerify_EndToEnd(t *testing.T) {
	isolate(t)
	root := newProject(t)

	// Given: a fresh index of the project
	out, _, err := runCLI(t, "--root", root, "index", "--plain")
	require.NoError(t, err)
	assert.Contains(t, out, "2 indexed")

	// When: indexing again without changes
	out, _, err = runCLI(t, "--root", root, "index", "--plain")

	// Then: nothing is re-indexed
	require.NoError(t, err)
	assert.Contains(t, out, "0 indexed")
	assert.Contains(t, out, "2 unchanged")

	t.Run("search text", func(t *testing.T) {
		out, _, err := runCLI(t, "--root", root, "search", "authenticate", "user")
		require.NoError(t, err)
		assert.Contains(t, out, "auth/login.go")
	})

	t.Run("search json with path filter", func(t *testing.T) {
		out, _, err := runCLI(t, "--root", root, "search", "--json", "--path", "auth/", "password")
		require.NoError(t, err)

		var results []map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &results))
		require.NotEmpty(t, results)
		for _, r := range results {
			assert.True(t, strings.HasPrefix(r["path"].(string), "auth/"))
		}
	})

	t.Run("stats json", func(t *testing.T) {
		out, _, err := runCLI(t, "--root", root, "stats", "--json")
		require.NoError(t, err)

		var info map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &info))
		assert.EqualValues(t, 2, info["total_files"])
		assert.Equal(t, info["total_chunks"], info["vectors"])
		assert.Equal(t, "hnsw", info["vector_backend"])
	})

	t.Run("verify", func(t *testing.T) {
		out, _, err := runCLI(t, "--root", root, "verify")
		require.NoError(t, err)
		assert.Contains(t, out, "Index consistent")
	})
}

func TestIndexCmd_RemovesDeletedFiles(t *testing.T) {
	isolate(t)
	root := newProject(t)
	_, _, err := runCLI(t, "--root", root, "index", "--plain")
	require.NoError(t, err)

	// Given: a file deleted after indexing
	require.NoError(t, os.Remove(filepath.Join(root, "README.md")))

	// When: re-indexing with JSON statistics
	out, _, err := runCLI(t, "--root", root, "index", "--json")

	// Then: the deletion is reconciled
	require.NoError(t, err)
	var stats map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.EqualValues(t, 1, stats["deleted"])
}

func TestSearchCmd_NoIndex(t *testing.T) {
	isolate(t)
	root := t.TempDir()

	// When: searching a project that was never indexed
	_, _, err := runCLI(t, "--root", root, "search", "anything")

	// Then: the error says the index is unavailable
	require.Error(t, err)
	assert.True(t, semerrors.HasCode(err, semerrors.ErrCodeStoreUnavailable))
	_, statErr := os.Stat(filepath.Join(root, ".semindex"))
	assert.True(t, os.IsNotExist(statErr), "a read-only command must not create the data dir")
}

func TestIndexCmd_LockHeld(t *testing.T) {
	isolate(t)
	root := newProject(t)

	// Given: another writer holding the data directory lock
	lock := store.NewDataDirLock(filepath.Join(root, ".semindex"))
	require.NoError(t, lock.TryLock())
	defer func() { _ = lock.Unlock() }()

	// When: indexing
	_, _, err := runCLI(t, "--root", root, "index", "--plain")

	// Then: the command refuses to share the index
	require.Error(t, err)
	assert.True(t, semerrors.HasCode(err, semerrors.ErrCodeLockHeld))
}

func TestResolveTarget(t *testing.T) {
	root := t.TempDir()

	tests := []struct {
		name    string
		path    string
		want    string
		wantErr bool
	}{
		{name: "relative", path: "src", want: filepath.Join(root, "src")},
		{name: "absolute inside", path: filepath.Join(root, "a", "b"), want: filepath.Join(root, "a", "b")},
		{name: "root itself", path: ".", want: root},
		{name: "escapes root", path: "../elsewhere", wantErr: true},
		{name: "absolute outside", path: filepath.Dir(root), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveTarget(root, tt.path)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTrimPrefixes(t *testing.T) {
	got := trimPrefixes([]string{"./internal/", "cmd\\semindex", "", "docs"})
	assert.Equal(t, []string{"internal/", "cmd/semindex", "docs"}, got)
}

func TestPathSize(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "records.db")
	require.NoError(t, os.WriteFile(file, make([]byte, 100), 0o644))
	require.NoError(t, os.WriteFile(file+"-wal", make([]byte, 20), 0o644))

	sub := filepath.Join(dir, "lexical.bleve")
	require.NoError(t, os.MkdirAll(filepath.Join(sub, "store"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "store", "root.bolt"), make([]byte, 50), 0o644))

	assert.Equal(t, int64(120), pathSize(file))
	assert.Equal(t, int64(50), pathSize(sub))
	assert.Equal(t, int64(0), pathSize(filepath.Join(dir, "missing")))
}

func TestInitCmd(t *testing.T) {
	isolate(t)
	root := t.TempDir()

	// Given: a project without a config file
	// When: running init
	out, _, err := runCLI(t, "--root", root, "init")

	// Then: the template is written and loads cleanly
	require.NoError(t, err)
	assert.Contains(t, out, config.ProjectFileName)
	_, err = config.Load(root)
	require.NoError(t, err)

	// And: a second init refuses to overwrite without --force
	_, _, err = runCLI(t, "--root", root, "init")
	require.Error(t, err)
	assert.True(t, semerrors.HasCode(err, semerrors.ErrCodeInvalidInput))

	_, _, err = runCLI(t, "--root", root, "init", "--force")
	assert.NoError(t, err)
}
