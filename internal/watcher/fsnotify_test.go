package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	semerrors "github.com/Aman-CERP/semindex/internal/errors"
)

func startFSWatcher(t *testing.T, root string, exclude func(string, bool) bool) *FSWatcher {
	t.Helper()
	w, err := NewFSWatcher(100, exclude)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Start(ctx, root)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	time.Sleep(100 * time.Millisecond)
	return w
}

// waitForEvent returns the first event matching path and op.
func waitForEvent(t *testing.T, ch <-chan FileEvent, path string, op Operation) FileEvent {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case e, ok := <-ch:
			require.True(t, ok, "events channel closed")
			if e.Path == path && e.Operation == op {
				return e
			}
		case <-deadline:
			t.Fatalf("no %s event for %s", op, path)
		}
	}
}

func TestFSWatcher_DetectsCreateModifyDelete(t *testing.T) {
	// Given: a watched directory
	root := t.TempDir()
	w := startFSWatcher(t, root, nil)
	file := filepath.Join(root, "main.go")

	// When/Then: create, write and remove are reported with relative paths
	require.NoError(t, os.WriteFile(file, []byte("package main"), 0o644))
	waitForEvent(t, w.Events(), "main.go", OpCreate)

	f, err := os.OpenFile(file, os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.WriteString("\n// more\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	waitForEvent(t, w.Events(), "main.go", OpModify)

	require.NoError(t, os.Remove(file))
	ev := waitForEvent(t, w.Events(), "main.go", OpDelete)
	assert.False(t, ev.IsDir)
}

func TestFSWatcher_NewDirectoryIsWatchedAndAnnounced(t *testing.T) {
	// Given: a watched directory
	root := t.TempDir()
	w := startFSWatcher(t, root, nil)

	// When: a directory tree appears at once
	nested := filepath.Join(root, "pkg", "util")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(nested, "early.go"), []byte("package util"), 0o644))

	// Then: the new directory is reported
	ev := waitForEvent(t, w.Events(), "pkg", OpCreate)
	assert.True(t, ev.IsDir)

	// And: files written later in the nested directory are seen
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(nested, "late.go"), []byte("package util"), 0o644))
	waitForEvent(t, w.Events(), "pkg/util/late.go", OpCreate)
}

func TestFSWatcher_SkipsExcludedDirectories(t *testing.T) {
	// Given: a watched tree with an excluded directory
	root := t.TempDir()
	data := filepath.Join(root, ".semindex")
	require.NoError(t, os.MkdirAll(data, 0o755))
	exclude := func(path string, isDir bool) bool { return isDir && path == data }
	w := startFSWatcher(t, root, exclude)

	// When: files change inside and outside it
	require.NoError(t, os.WriteFile(filepath.Join(data, "records.db"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte("package a"), 0o644))

	// Then: only the visible file is reported
	events := collectEvents(w.Events(), 10, 300*time.Millisecond)
	require.NotEmpty(t, events)
	for _, e := range events {
		assert.Equal(t, "a.go", e.Path)
	}
}

func TestFSWatcher_Start_InvalidPath_ReturnsWatcherError(t *testing.T) {
	w, err := NewFSWatcher(10, nil)
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()

	err = w.Start(context.Background(), filepath.Join(t.TempDir(), "missing"))

	require.Error(t, err)
	assert.True(t, semerrors.HasCode(err, semerrors.ErrCodeWatcherFailed))
	assert.True(t, semerrors.IsRetryable(err))
}

func TestFSWatcher_StopClosesChannelsAndIsIdempotent(t *testing.T) {
	w, err := NewFSWatcher(10, nil)
	require.NoError(t, err)

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())

	_, ok := <-w.Events()
	assert.False(t, ok)
	_, ok = <-w.Errors()
	assert.False(t, ok)
	assert.Equal(t, uint64(0), w.Dropped())
}
