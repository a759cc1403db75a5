package chunk

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	semerrors "github.com/Aman-CERP/semindex/internal/errors"
)

func chunkString(t *testing.T, path, source string, maxSize, overlap int) []Chunk {
	t.Helper()
	chunks, err := NewStructuralChunker().Chunk(context.Background(), path, []byte(source), maxSize, overlap)
	require.NoError(t, err)
	return chunks
}

// assertCovers checks that unsplit chunks concatenate back to the source and
// that start lines never decrease.
func assertCovers(t *testing.T, source string, chunks []Chunk) {
	t.Helper()
	var sb strings.Builder
	next := 1
	for i, c := range chunks {
		assert.Equal(t, i, c.Ordinal)
		if i > 0 {
			assert.GreaterOrEqual(t, c.StartLine, chunks[i-1].StartLine)
		}
		if _, split := c.Metadata["split"]; split {
			// Skip the overlapped head of each split part.
			lines := splitLines(c.Content)
			skip := next - c.StartLine
			require.GreaterOrEqual(t, skip, 0, "gap before chunk %d", i)
			sb.WriteString(strings.Join(lines[skip:], ""))
		} else {
			require.Equal(t, next, c.StartLine, "gap before chunk %d", i)
			sb.WriteString(c.Content)
		}
		next = c.EndLine + 1
	}
	assert.Equal(t, source, sb.String())
}

const threeFuncs = `package auth

import "errors"

// Login checks credentials.
func Login(user, pass string) error {
	if user == "" {
		return errors.New("empty user")
	}
	return nil
}

func Logout(user string) {
	_ = user
}

type Session struct {
	User string
}
`

func TestChunk_WholeFileFitsInOneChunk(t *testing.T) {
	// Given a three-declaration Go file smaller than the max chunk size
	// When it is chunked
	chunks := chunkString(t, "auth.go", threeFuncs, 120, 24)

	// Then exactly one chunk covers every line
	require.Len(t, chunks, 1)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, strings.Count(threeFuncs, "\n"), chunks[0].EndLine)
	assert.Equal(t, threeFuncs, chunks[0].Content)
	assert.Equal(t, Code("go"), chunks[0].Category)
	assert.Equal(t, StrategyTreeSitter, chunks[0].Metadata["strategy"])
}

func TestChunk_GoDeclarationsSplitWithLeadingComments(t *testing.T) {
	source := "package main\n" +
		"\n" +
		"// A does a.\n" +
		"func A() {\n" +
		"\t_ = 1\n" +
		"}\n" +
		"\n" +
		"func B() {\n" +
		"\t_ = 2\n" +
		"}\n"

	// When chunked with a max smaller than two units combined
	chunks := chunkString(t, "main.go", source, 5, 1)

	// Then each declaration is its own chunk and the doc comment stays with A
	require.Len(t, chunks, 3)
	assert.Equal(t, [2]int{1, 2}, [2]int{chunks[0].StartLine, chunks[0].EndLine})
	assert.Equal(t, [2]int{3, 7}, [2]int{chunks[1].StartLine, chunks[1].EndLine})
	assert.Equal(t, [2]int{8, 10}, [2]int{chunks[2].StartLine, chunks[2].EndLine})
	assert.True(t, strings.HasPrefix(chunks[1].Content, "// A does a.\nfunc A()"))
	assertCovers(t, source, chunks)
}

func bigFunc(bodyLines int) string {
	var sb strings.Builder
	sb.WriteString("package main\n\nfunc Big() {\n")
	for i := 0; i < bodyLines; i++ {
		fmt.Fprintf(&sb, "\tx%d := %d\n", i, i)
	}
	sb.WriteString("}\n")
	return sb.String()
}

func TestChunk_OversizedUnitKeptWholeBelowCeiling(t *testing.T) {
	// Given a 20-line function with max 10 (ceiling 25)
	source := bigFunc(18)

	chunks := chunkString(t, "big.go", source, 10, 2)

	// Then the function stays in one chunk
	require.Len(t, chunks, 2)
	assert.Equal(t, 3, chunks[1].StartLine)
	assert.Equal(t, 22, chunks[1].EndLine)
	assert.NotContains(t, chunks[1].Metadata, "split")
	assertCovers(t, source, chunks)
}

func TestChunk_UnitBeyondCeilingIsForceSplitWithOverlap(t *testing.T) {
	// Given a 42-line function with max 10 (ceiling 25)
	source := bigFunc(40)

	chunks := chunkString(t, "big.go", source, 10, 2)

	// Then it is split into windows of at most 10 lines overlapping by 2
	require.Len(t, chunks, 6)
	for i, c := range chunks[1:] {
		assert.LessOrEqual(t, c.LineCount(), 10)
		assert.Equal(t, fmt.Sprintf("%d/5", i+1), c.Metadata["split"])
		if i > 0 {
			assert.Equal(t, chunks[i].EndLine-1, c.StartLine, "overlap with previous part")
		}
	}
	assert.Equal(t, 44, chunks[5].EndLine)
	assertCovers(t, source, chunks)
}

func TestChunk_GenericContentUsesSlidingWindow(t *testing.T) {
	var sb strings.Builder
	for i := 1; i <= 25; i++ {
		fmt.Fprintf(&sb, "row %d\n", i)
	}
	source := sb.String()

	chunks := chunkString(t, "data.dat", source, 10, 2)

	require.Len(t, chunks, 3)
	assert.Equal(t, [][2]int{{1, 10}, {9, 18}, {17, 25}}, [][2]int{
		{chunks[0].StartLine, chunks[0].EndLine},
		{chunks[1].StartLine, chunks[1].EndLine},
		{chunks[2].StartLine, chunks[2].EndLine},
	})
	assert.Equal(t, Generic(), chunks[0].Category)
	assert.Equal(t, StrategyWindow, chunks[0].Metadata["strategy"])
	assertCovers(t, source, chunks)
}

func TestChunk_NoTrailingNewline(t *testing.T) {
	source := "a\nb\nc"

	chunks := chunkString(t, "x.unknown", source, 10, 2)

	require.Len(t, chunks, 1)
	assert.Equal(t, 3, chunks[0].EndLine)
	assert.Equal(t, source, chunks[0].Content)
}

func TestChunk_EmptyContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty", ""},
		{"whitespace only", "  \n\n\t\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := chunkString(t, "empty.go", tt.content, 10, 2)
			assert.Empty(t, chunks)
		})
	}
}

func TestChunk_MarkdownHeadingsIgnoreFencedCode(t *testing.T) {
	source := "# Title\n" +
		"intro\n" +
		"\n" +
		"## Setup\n" +
		"```bash\n" +
		"# not a heading\n" +
		"```\n" +
		"\n" +
		"## Usage\n" +
		"run it\n"

	chunks := chunkString(t, "README.md", source, 3, 1)

	require.Len(t, chunks, 3)
	assert.Equal(t, "Title", chunks[0].Metadata["heading"])
	assert.Equal(t, "Setup", chunks[1].Metadata["heading"])
	assert.Equal(t, 4, chunks[1].StartLine)
	assert.Equal(t, 8, chunks[1].EndLine)
	assert.Equal(t, "Usage", chunks[2].Metadata["heading"])
	assert.Equal(t, Document("markdown"), chunks[0].Category)
	assertCovers(t, source, chunks)
}

func TestChunk_RSTUnderlinedHeadings(t *testing.T) {
	source := "Intro\n" +
		"=====\n" +
		"text\n" +
		"\n" +
		"Install\n" +
		"-------\n" +
		"steps\n"

	chunks := chunkString(t, "guide.rst", source, 3, 1)

	require.Len(t, chunks, 2)
	assert.Equal(t, "Intro", chunks[0].Metadata["heading"])
	assert.Equal(t, "Install", chunks[1].Metadata["heading"])
	assert.Equal(t, 5, chunks[1].StartLine)
}

func TestChunk_RustMarkersCollapseAttributes(t *testing.T) {
	source := "use std::io;\n" +
		"\n" +
		"/// Doc.\n" +
		"#[inline]\n" +
		"pub fn a() {}\n" +
		"\n" +
		"struct S;\n"

	chunks := chunkString(t, "lib.rs", source, 2, 0)

	require.Len(t, chunks, 3)
	assert.Equal(t, 3, chunks[1].StartLine)
	assert.Equal(t, 6, chunks[1].EndLine)
	assert.Equal(t, 7, chunks[2].StartLine)
	assert.Equal(t, StrategyMarkers, chunks[1].Metadata["strategy"])
	assertCovers(t, source, chunks)
}

func TestChunk_SyntaxErrorFallsBackToMarkers(t *testing.T) {
	// Given Go source that tree-sitter cannot parse cleanly
	source := "package main\n" +
		"\n" +
		"func A( {\n" +
		"}\n" +
		"\n" +
		"func B() {}\n"

	// When chunked
	chunks := chunkString(t, "broken.go", source, 3, 1)

	// Then regex markers still find both functions
	require.Len(t, chunks, 3)
	assert.Equal(t, 3, chunks[1].StartLine)
	assert.Equal(t, 6, chunks[2].StartLine)
	assert.Equal(t, StrategyMarkers, chunks[1].Metadata["strategy"])
	assertCovers(t, source, chunks)
}

func TestChunk_IDsAreDeterministicAndPathScoped(t *testing.T) {
	a := chunkString(t, "a/auth.go", threeFuncs, 5, 1)
	again := chunkString(t, "a/auth.go", threeFuncs, 5, 1)
	other := chunkString(t, "b/auth.go", threeFuncs, 5, 1)

	require.Equal(t, len(a), len(other))
	seen := map[string]bool{}
	for i := range a {
		assert.Equal(t, a[i].ID, again[i].ID)
		assert.NotEqual(t, a[i].ID, other[i].ID)
		assert.Len(t, a[i].ID, 32)
		assert.False(t, seen[a[i].ID], "duplicate id")
		seen[a[i].ID] = true
	}
}

func TestChunk_RejectsInvalidSizes(t *testing.T) {
	tests := []struct {
		name    string
		max     int
		overlap int
	}{
		{"zero max", 0, 0},
		{"negative overlap", 10, -1},
		{"overlap equals max", 10, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewStructuralChunker().Chunk(context.Background(), "a.go", []byte("x\n"), tt.max, tt.overlap)
			require.Error(t, err)
			assert.True(t, semerrors.HasCode(err, semerrors.ErrCodeInvalidInput))
		})
	}
}

func TestChunk_RespectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewStructuralChunker().Chunk(ctx, "a.go", []byte(threeFuncs), 10, 2)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestDetectCategory(t *testing.T) {
	tests := []struct {
		path string
		want Category
	}{
		{"main.go", Code("go")},
		{"src/App.TSX", Code("tsx")},
		{"lib.RS", Code("rust")},
		{"script.py", Code("python")},
		{"README.md", Document("markdown")},
		{"notes.txt", Document("text")},
		{"config.json", Generic()},
		{"Makefile", Generic()},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectCategory(tt.path))
		})
	}
}

func TestCategory_String(t *testing.T) {
	assert.Equal(t, "code:go", Code("go").String())
	assert.Equal(t, "document:markdown", Document("markdown").String())
	assert.Equal(t, "generic", Generic().String())
	assert.Equal(t, KindDocument, ParseKind(KindDocument.String()))
}
