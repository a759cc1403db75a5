package ui

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/semindex/internal/index"
)

func sampleStatus() StatusInfo {
	info := StatusFromStats("/repo", index.IndexStats{
		TotalChunks:   120,
		TrackedFiles:  30,
		LastIndexedAt: time.Now().Add(-2 * time.Hour),
		StoreEntries:  120,
		Dimensions:    256,
		Model:         "static-hash",
	})
	info.RecordsSize = 4 * 1024
	info.LexicalSize = 2 * 1024 * 1024
	info.VectorSize = 3 * 1024 * 1024
	info.TotalSize = info.RecordsSize + info.LexicalSize + info.VectorSize
	info.VectorBackend = "hnsw"
	info.LexicalBackend = "sqlite"
	return info
}

func TestStatusRenderer_Render(t *testing.T) {
	// Given: a populated status
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)

	// When: rendering as text
	require.NoError(t, r.Render(sampleStatus()))

	// Then: counts, sizes, backends and embedder appear
	out := buf.String()
	assert.Contains(t, out, "Index: /repo")
	assert.Contains(t, out, "Files:        30")
	assert.Contains(t, out, "Chunks:       120")
	assert.Contains(t, out, "2 hours ago")
	assert.Contains(t, out, "2.0 MB (sqlite)")
	assert.Contains(t, out, "3.0 MB (hnsw)")
	assert.Contains(t, out, "static-hash (256 dims)")
	assert.NotContains(t, out, "verify")
}

func TestStatusRenderer_FlagsVectorMismatch(t *testing.T) {
	buf := &bytes.Buffer{}
	info := sampleStatus()
	info.Vectors = 118

	require.NoError(t, NewStatusRenderer(buf, true).Render(info))

	assert.Contains(t, buf.String(), "118 (run `semindex verify`)")
}

func TestStatusRenderer_RenderJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, NewStatusRenderer(buf, true).RenderJSON(sampleStatus()))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "/repo", decoded["root"])
	assert.EqualValues(t, 120, decoded["total_chunks"])
	assert.Equal(t, "hnsw", decoded["vector_backend"])
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1536, "1.5 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
		{3 * 1024 * 1024 * 1024, "3.0 GB"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatBytes(tt.in))
		})
	}
}

func TestFormatTime(t *testing.T) {
	assert.Equal(t, "just now", formatTime(time.Now()))
	assert.Equal(t, "1 minute ago", formatTime(time.Now().Add(-90*time.Second)))
	assert.Equal(t, "3 days ago", formatTime(time.Now().Add(-73*time.Hour)))
}
