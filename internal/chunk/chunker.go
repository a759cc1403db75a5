package chunk

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	semerrors "github.com/Aman-CERP/semindex/internal/errors"
)

// Strategy values recorded in chunk metadata.
const (
	StrategyTreeSitter = "treesitter"
	StrategyMarkers    = "markers"
	StrategyWindow     = "window"
)

// StructuralChunker splits files along declarations and headings.
// It is safe for concurrent use.
type StructuralChunker struct {
	logger *slog.Logger
}

// Option configures a StructuralChunker.
type Option func(*StructuralChunker)

// WithLogger sets the logger used for parse fallbacks.
func WithLogger(l *slog.Logger) Option {
	return func(c *StructuralChunker) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewStructuralChunker creates a chunker.
func NewStructuralChunker(opts ...Option) *StructuralChunker {
	c := &StructuralChunker{logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ Chunker = (*StructuralChunker)(nil)

// span is a half-open line range [start, end).
type span struct {
	start, end int
}

func (s span) len() int { return s.end - s.start }

// Chunk splits content into ordered chunks. maxChunkSize and overlap are in
// lines; overlap must be smaller than maxChunkSize. Empty or whitespace-only
// content yields no chunks.
func (c *StructuralChunker) Chunk(ctx context.Context, path string, content []byte, maxChunkSize, overlap int) ([]Chunk, error) {
	if maxChunkSize < 1 {
		return nil, semerrors.ValidationError(fmt.Sprintf("max chunk size must be positive, got %d", maxChunkSize), nil)
	}
	if overlap < 0 || overlap >= maxChunkSize {
		return nil, semerrors.ValidationError(fmt.Sprintf("overlap must be in [0, %d), got %d", maxChunkSize, overlap), nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text := string(content)
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	lines := splitLines(text)
	category := DetectCategory(path)

	bounds, strategy := c.boundaries(ctx, path, category, content, lines)

	b := &builder{
		path:     path,
		lines:    lines,
		category: category,
		max:      maxChunkSize,
		overlap:  overlap,
		ceiling:  int(CeilingFactor * float64(maxChunkSize)),
		strategy: strategy,
	}
	if len(bounds) == 0 {
		b.window(span{0, len(lines)}, "")
		return b.chunks, nil
	}
	b.pack(units(bounds, len(lines)))
	return b.chunks, nil
}

// boundaries selects the boundary source for category. Tree-sitter failures
// are logged as chunking errors and fall through to regex markers.
func (c *StructuralChunker) boundaries(ctx context.Context, path string, category Category, content []byte, lines []string) ([]boundary, string) {
	if category.Kind == KindGeneric {
		return nil, StrategyWindow
	}
	spec := specByName[category.Language]
	if spec == nil {
		return nil, StrategyWindow
	}

	if spec.grammar != nil {
		starts, err := parseBoundaries(ctx, spec, content)
		if err == nil {
			if len(starts) == 0 {
				return nil, StrategyWindow
			}
			return lineBoundaries(starts), StrategyTreeSitter
		}
		cerr := semerrors.ChunkingError(path, err)
		attrs := append(semerrors.LogAttrs(cerr), slog.String("path", path))
		c.logger.LogAttrs(ctx, slog.LevelWarn, "chunk_parse_fallback", attrs...)
	}

	bounds := markerBoundaries(spec, lines)
	if len(bounds) == 0 {
		return nil, StrategyWindow
	}
	return bounds, StrategyMarkers
}

// unit is a logical unit: a boundary up to the next one.
type unit struct {
	span
	heading string
}

func units(bounds []boundary, n int) []unit {
	var out []unit
	if bounds[0].line > 0 {
		out = append(out, unit{span: span{0, bounds[0].line}})
	}
	for i, b := range bounds {
		end := n
		if i+1 < len(bounds) {
			end = bounds[i+1].line
		}
		out = append(out, unit{span: span{b.line, end}, heading: b.heading})
	}
	return out
}

type builder struct {
	path     string
	lines    []string
	category Category
	max      int
	overlap  int
	ceiling  int
	strategy string
	chunks   []Chunk
}

// pack accumulates units into chunks. A boundary closes the current chunk
// only when the current chunk has content and adding the next unit would
// exceed max.
func (b *builder) pack(us []unit) {
	cur := us[0]
	for _, u := range us[1:] {
		if b.nonBlank(cur.span) && cur.len()+u.len() > b.max {
			b.emitUnit(cur)
			cur = u
			continue
		}
		if cur.heading == "" {
			cur.heading = u.heading
		}
		cur.end = u.end
	}
	b.emitUnit(cur)
}

// emitUnit keeps u whole up to the ceiling and force-splits beyond it.
func (b *builder) emitUnit(u unit) {
	if u.len() <= b.ceiling {
		b.emit(u.span, u.heading, "")
		return
	}
	b.window(u.span, u.heading)
}

// window splits s into max-line windows, each starting overlap lines before
// the end of the previous one.
func (b *builder) window(s span, heading string) {
	var parts []span
	for start := s.start; ; start = parts[len(parts)-1].end - b.overlap {
		end := min(start+b.max, s.end)
		parts = append(parts, span{start, end})
		if end == s.end {
			break
		}
	}
	if len(parts) == 1 {
		b.emit(parts[0], heading, "")
		return
	}
	for i, p := range parts {
		b.emit(p, heading, fmt.Sprintf("%d/%d", i+1, len(parts)))
	}
}

func (b *builder) emit(s span, heading, split string) {
	content := strings.Join(b.lines[s.start:s.end], "")
	ordinal := len(b.chunks)
	meta := map[string]string{"strategy": b.strategy}
	if heading != "" {
		meta["heading"] = heading
	}
	if split != "" {
		meta["split"] = split
	}
	b.chunks = append(b.chunks, Chunk{
		ID:        ChunkID(b.path, ordinal, content),
		Path:      b.path,
		Ordinal:   ordinal,
		Content:   content,
		StartLine: s.start + 1,
		EndLine:   s.end,
		Category:  b.category,
		Metadata:  meta,
	})
}

func (b *builder) nonBlank(s span) bool {
	for _, l := range b.lines[s.start:s.end] {
		if strings.TrimSpace(l) != "" {
			return true
		}
	}
	return false
}

// splitLines splits text after each newline so that joining the parts
// reproduces text exactly.
func splitLines(text string) []string {
	lines := strings.SplitAfter(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
