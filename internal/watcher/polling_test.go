package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/semindex/internal/index"
)

// startPolling runs a PollingWatcher over root until the test ends.
func startPolling(t *testing.T, root string, exclude index.ExcludeFunc) *PollingWatcher {
	t.Helper()
	p := NewPollingWatcher(30*time.Millisecond, 64, exclude)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = p.Start(ctx, root) }()
	t.Cleanup(func() {
		cancel()
		_ = p.Stop()
	})
	// Let the first snapshot settle so pre-existing files are not reported.
	time.Sleep(90 * time.Millisecond)
	return p
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
}

// fileOps renders file events as "path:OP", sorted, dropping directories.
func fileOps(events []FileEvent) []string {
	var out []string
	for _, e := range events {
		if !e.IsDir {
			out = append(out, e.Path+":"+e.Operation.String())
		}
	}
	sort.Strings(out)
	return out
}

func TestPollingWatcher_ReportsSourceTreeChanges(t *testing.T) {
	tests := []struct {
		name   string
		before map[string]string
		change func(t *testing.T, root string)
		want   []string
	}{
		{
			name:   "new source file",
			change: func(t *testing.T, root string) { writeFile(t, root, "cmd/main.go", "package main") },
			want:   []string{"cmd/main.go:CREATE"},
		},
		{
			name:   "edited source file",
			before: map[string]string{"auth/login.go": "package auth"},
			change: func(t *testing.T, root string) {
				writeFile(t, root, "auth/login.go", "package auth\n\nfunc Login() {}\n")
			},
			want: []string{"auth/login.go:MODIFY"},
		},
		{
			name:   "deleted doc",
			before: map[string]string{"docs/setup.md": "# Setup"},
			change: func(t *testing.T, root string) {
				require.NoError(t, os.Remove(filepath.Join(root, "docs", "setup.md")))
			},
			want: []string{"docs/setup.md:DELETE"},
		},
		{
			name:   "file renamed within the tree",
			before: map[string]string{"billing/invoice.go": "package billing"},
			change: func(t *testing.T, root string) {
				require.NoError(t, os.Rename(filepath.Join(root, "billing", "invoice.go"), filepath.Join(root, "billing", "bill.go")))
			},
			want: []string{"billing/bill.go:CREATE", "billing/invoice.go:DELETE"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: a project tree under a polling watcher
			root := t.TempDir()
			for rel, content := range tt.before {
				writeFile(t, root, rel, content)
			}
			p := startPolling(t, root, nil)

			// When: the tree changes
			tt.change(t, root)

			// Then: exactly the expected file events arrive
			events := collectEvents(p.Events(), 10, 300*time.Millisecond)
			assert.Equal(t, tt.want, fileOps(events))
		})
	}
}

func TestPollingWatcher_ExcludedDirectoryStaysQuiet(t *testing.T) {
	// Given: a node_modules directory the excluder rejects
	root := t.TempDir()
	vendored := filepath.Join(root, "node_modules")
	require.NoError(t, os.MkdirAll(vendored, 0o755))
	p := startPolling(t, root, func(path string, isDir bool) bool { return isDir && path == vendored })

	// When: files appear inside and outside it
	writeFile(t, root, "node_modules/left-pad/index.js", "module.exports = 1")
	writeFile(t, root, "app.js", "console.log(1)")

	// Then: only the project file is reported
	events := collectEvents(p.Events(), 5, 300*time.Millisecond)
	assert.Equal(t, []string{"app.js:CREATE"}, fileOps(events))
}

func TestPollingWatcher_Lifecycle(t *testing.T) {
	t.Run("stop closes events", func(t *testing.T) {
		p := startPolling(t, t.TempDir(), nil)
		require.NoError(t, p.Stop())

		select {
		case _, ok := <-p.Events():
			assert.False(t, ok)
		case <-time.After(200 * time.Millisecond):
			t.Fatal("events channel left open")
		}
	})

	t.Run("cancel returns from Start", func(t *testing.T) {
		p := NewPollingWatcher(30*time.Millisecond, 8, nil)
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			_ = p.Start(ctx, t.TempDir())
			close(done)
		}()
		time.Sleep(60 * time.Millisecond)

		cancel()

		select {
		case <-done:
		case <-time.After(500 * time.Millisecond):
			t.Fatal("Start did not return after cancel")
		}
		_ = p.Stop()
	})

	t.Run("missing root fails", func(t *testing.T) {
		p := NewPollingWatcher(30*time.Millisecond, 8, nil)
		defer func() { _ = p.Stop() }()

		assert.Error(t, p.Start(context.Background(), filepath.Join(t.TempDir(), "missing")))
	})
}

// collectEvents collects up to n events or until timeout.
func collectEvents(ch <-chan FileEvent, n int, timeout time.Duration) []FileEvent {
	var events []FileEvent
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for len(events) < n {
		select {
		case e, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, e)
		case <-timer.C:
			return events
		}
	}
	return events
}
