package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/Aman-CERP/semindex/internal/index"
)

// StatusInfo describes an index for the stats command.
type StatusInfo struct {
	Root        string    `json:"root"`
	TotalFiles  int       `json:"total_files"`
	TotalChunks int       `json:"total_chunks"`
	Vectors     int       `json:"vectors"`
	LastIndexed time.Time `json:"last_indexed"`

	// Storage sizes in bytes.
	RecordsSize int64 `json:"records_size"`
	LexicalSize int64 `json:"lexical_size"`
	VectorSize  int64 `json:"vector_size"`
	TotalSize   int64 `json:"total_size"`

	VectorBackend  string `json:"vector_backend"`
	LexicalBackend string `json:"lexical_backend"`
	EmbedderModel  string `json:"embedder_model"`
	Dimensions     int    `json:"dimensions"`
}

// StatusFromStats fills the index fields of a StatusInfo. Sizes and
// backends are left for the caller.
func StatusFromStats(root string, s index.IndexStats) StatusInfo {
	return StatusInfo{
		Root:          root,
		TotalFiles:    s.TrackedFiles,
		TotalChunks:   s.TotalChunks,
		Vectors:       s.StoreEntries,
		LastIndexed:   s.LastIndexedAt,
		EmbedderModel: s.Model,
		Dimensions:    s.Dimensions,
	}
}

// StatusRenderer displays index status.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{out: out, styles: GetStyles(noColor)}
}

// Render writes info as text.
func (r *StatusRenderer) Render(info StatusInfo) error {
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("Index: "+info.Root))

	_, _ = fmt.Fprintf(r.out, "  Files:        %d\n", info.TotalFiles)
	_, _ = fmt.Fprintf(r.out, "  Chunks:       %d\n", info.TotalChunks)
	_, _ = fmt.Fprintf(r.out, "  Vectors:      %s\n", r.renderCount(info.Vectors, info.TotalChunks))
	if !info.LastIndexed.IsZero() {
		_, _ = fmt.Fprintf(r.out, "  Last indexed: %s\n", formatTime(info.LastIndexed))
	}
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintln(r.out, "  Storage:")
	_, _ = fmt.Fprintf(r.out, "    Records:  %s\n", FormatBytes(info.RecordsSize))
	_, _ = fmt.Fprintf(r.out, "    Lexical:  %s (%s)\n", FormatBytes(info.LexicalSize), info.LexicalBackend)
	_, _ = fmt.Fprintf(r.out, "    Vectors:  %s (%s)\n", FormatBytes(info.VectorSize), info.VectorBackend)
	_, _ = fmt.Fprintf(r.out, "    Total:    %s\n", FormatBytes(info.TotalSize))
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintf(r.out, "  Embedder: %s (%d dims)\n", info.EmbedderModel, info.Dimensions)
	return nil
}

// RenderJSON writes info as indented JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(info)
}

// renderCount highlights a vector count that disagrees with the chunk count.
func (r *StatusRenderer) renderCount(vectors, chunks int) string {
	s := fmt.Sprintf("%d", vectors)
	if vectors != chunks {
		return r.styles.Warning.Render(s + " (run `semindex verify`)")
	}
	return s
}

func formatTime(t time.Time) string {
	diff := time.Since(t)
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour")
	case diff < 7*24*time.Hour:
		return plural(int(diff.Hours()/24), "day")
	default:
		return t.Format("2006-01-02 15:04")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit + " ago"
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}

// FormatBytes formats a byte count for display.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)
	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
