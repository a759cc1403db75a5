// Package output formats command results for the terminal.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Aman-CERP/semindex/internal/index"
	"github.com/Aman-CERP/semindex/internal/search"
)

// DefaultSnippetLines is how many content lines a search hit shows.
const DefaultSnippetLines = 6

// Writer provides formatted output for the CLI.
type Writer struct {
	out io.Writer
}

// New creates a Writer.
func New(out io.Writer) *Writer {
	return &Writer{out: out}
}

// Status prints a message with an icon. Write errors are ignored.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message.
func (w *Writer) Success(msg string) {
	w.Status("✅", msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status("⚠️ ", msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status("❌", msg)
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// JSON writes v as indented JSON.
func (w *Writer) JSON(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// SearchResults prints hits as "path:start-end  score" followed by an
// indented snippet of at most snippetLines lines. snippetLines <= 0 omits
// the snippet.
func (w *Writer) SearchResults(query string, results []search.Result, snippetLines int) {
	if len(results) == 0 {
		w.Statusf("🔍", "No results for %q", query)
		return
	}
	w.Statusf("🔍", "%d results for %q", len(results), query)
	for i, r := range results {
		_, _ = fmt.Fprintf(w.out, "\n%2d. %s:%d-%d  %.3f", i+1, r.Path, r.StartLine, r.EndLine, r.Score)
		if r.Language != "" {
			_, _ = fmt.Fprintf(w.out, "  [%s]", r.Language)
		}
		if len(r.MatchedTerms) > 0 {
			_, _ = fmt.Fprintf(w.out, "  terms: %s", strings.Join(r.MatchedTerms, ", "))
		}
		_, _ = fmt.Fprintln(w.out)
		if snippetLines > 0 {
			w.snippet(r.Content, snippetLines)
		}
	}
}

func (w *Writer) snippet(content string, maxLines int) {
	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	extra := 0
	if len(lines) > maxLines {
		extra = len(lines) - maxLines
		lines = lines[:maxLines]
	}
	for _, line := range lines {
		_, _ = fmt.Fprintf(w.out, "    │ %s\n", line)
	}
	if extra > 0 {
		_, _ = fmt.Fprintf(w.out, "    │ … %d more lines\n", extra)
	}
}

// VerifyReport prints the outcome of an index consistency check.
func (w *Writer) VerifyReport(report *index.VerifyReport) {
	if report.Clean() {
		w.Successf("Index consistent (%d chunks checked in %s)", report.Checked, report.Duration.Round(time.Millisecond))
		return
	}
	w.Warningf("%d inconsistencies in %d chunks", len(report.Inconsistencies), report.Checked)
	for _, t := range []index.InconsistencyType{
		index.InconsistencyOrphanVector,
		index.InconsistencyMissingVector,
		index.InconsistencyOrphanLexical,
		index.InconsistencyMissingLexical,
		index.InconsistencyPendingIntent,
	} {
		if n := report.Count(t); n > 0 {
			w.Statusf("", "%-16s %d", t.String(), n)
		}
	}
}

// RepairResult prints what Repair changed.
func (w *Writer) RepairResult(res index.RepairResult) {
	msg := fmt.Sprintf("Repair complete: %d orphans deleted, %d files reindexed, %d lexical entries restored",
		res.OrphansDeleted, res.Reindexed, res.LexicalRestored)
	if res.Failed > 0 {
		w.Warningf("%s, %d failed", msg, res.Failed)
		return
	}
	w.Success(msg)
}
