package index

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	semerrors "github.com/Aman-CERP/semindex/internal/errors"
	"github.com/Aman-CERP/semindex/internal/store"
)

func TestChangeDetector_Classify(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	records, err := store.NewSQLiteRecordStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = records.Close() })
	d := NewChangeDetector(root, records)

	write := func(rel, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(root, rel), []byte(content), 0o644))
	}
	write("same.go", "package same\n")
	write("edited.go", "package edited\n")
	write("fresh.go", "package fresh\n")
	write("pending.go", "package pending\n")
	write("intent.go", "package intent\n")

	sameFP, err := d.Fingerprint("same.go")
	require.NoError(t, err)
	pendingFP, err := d.Fingerprint("pending.go")
	require.NoError(t, err)

	for _, rec := range []*store.IndexRecord{
		{Path: "same.go", Fingerprint: sameFP, ChunkIDs: []string{"s1"}},
		{Path: "edited.go", Fingerprint: "0000", ChunkIDs: []string{"e1"}},
		{Path: "pending.go", Fingerprint: pendingFP, ChunkIDs: []string{"p1"}, PendingIDs: []string{"p2"}},
		{Path: "intent.go", PendingIDs: []string{"i1"}},
		{Path: "gone.go", Fingerprint: "abcd", ChunkIDs: []string{"g1"}},
	} {
		require.NoError(t, records.Put(ctx, rec))
	}

	tests := []struct {
		path string
		want ChangeKind
	}{
		{"same.go", ChangeUnchanged},
		{"edited.go", ChangeModified},
		{"fresh.go", ChangeNew},
		{"pending.go", ChangeModified},
		{"intent.go", ChangeNew},
		{"gone.go", ChangeDeleted},
		{"never.go", ChangeDeleted},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			change, err := d.Classify(ctx, tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, change.Kind, "got %s", change.Kind)
			assert.Equal(t, tt.path, change.Path)
			if tt.want != ChangeDeleted {
				assert.Len(t, change.Fingerprint, 40)
				assert.NotEmpty(t, change.Content)
			}
		})
	}
}

func TestChangeDetector_AbsolutePathUsesRelativeKey(t *testing.T) {
	root := t.TempDir()
	records, err := store.NewSQLiteRecordStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = records.Close() })
	require.NoError(t, os.MkdirAll(filepath.Join(root, "pkg"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "pkg", "a.go"), []byte("package pkg\n"), 0o644))

	change, err := NewChangeDetector(root, records).Classify(context.Background(), filepath.Join(root, "pkg", "a.go"))

	require.NoError(t, err)
	assert.Equal(t, "pkg/a.go", change.Path)
	assert.Equal(t, ChangeNew, change.Kind)
}

func TestChangeDetector_UnreadableIsReadError(t *testing.T) {
	root := t.TempDir()
	records, err := store.NewSQLiteRecordStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = records.Close() })
	require.NoError(t, os.MkdirAll(filepath.Join(root, "dir.go"), 0o755))
	d := NewChangeDetector(root, records)

	_, err = d.Classify(context.Background(), "dir.go")
	require.Error(t, err)
	assert.True(t, semerrors.HasCode(err, semerrors.ErrCodeReadFailed))

	_, err = d.Fingerprint("missing.go")
	assert.True(t, semerrors.HasCode(err, semerrors.ErrCodeReadFailed))
}

func TestPathResolver(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "work", "proj")
	p := pathResolver{root: root}

	tests := []struct {
		in      string
		wantKey string
	}{
		{"a.go", "a.go"},
		{filepath.Join("pkg", "b.go"), "pkg/b.go"},
		{filepath.Join(root, "pkg", "b.go"), "pkg/b.go"},
		{filepath.Join(root, "..", "other", "c.go"), filepath.ToSlash(filepath.Join(string(filepath.Separator), "work", "other", "c.go"))},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			abs, key := p.resolve(tt.in)
			assert.Equal(t, tt.wantKey, key)
			assert.Equal(t, abs, p.abs(key))
		})
	}
}

func TestPathLocks_SerializeAndRelease(t *testing.T) {
	locks := newPathLocks()
	var mu sync.Mutex
	active, maxActive := 0, 0

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.lock("same")
			mu.Lock()
			active++
			maxActive = max(maxActive, active)
			mu.Unlock()

			mu.Lock()
			active--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxActive)
	assert.Equal(t, 0, locks.size())
}
