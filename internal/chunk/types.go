// Package chunk splits file content into ordered, line-addressed chunks that
// follow logical boundaries (declarations, headings) where the content type
// is recognized, and a sliding window otherwise.
package chunk

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Chunk size defaults, in lines.
const (
	DefaultMaxChunkSize = 120
	DefaultOverlap      = 24

	// CeilingFactor bounds how far past MaxChunkSize a single logical unit
	// may grow before it is force-split.
	CeilingFactor = 2.5
)

// Kind is the content category tag carried by every chunk.
type Kind int

const (
	// KindGeneric is content with no recognized structure.
	KindGeneric Kind = iota
	// KindCode is source code in a known language.
	KindCode
	// KindDocument is prose with headings.
	KindDocument
)

// String returns the tag stored with chunks: "generic", "code" or "document".
func (k Kind) String() string {
	switch k {
	case KindCode:
		return "code"
	case KindDocument:
		return "document"
	default:
		return "generic"
	}
}

// ParseKind is the inverse of Kind.String. Unknown tags map to KindGeneric.
func ParseKind(s string) Kind {
	switch s {
	case "code":
		return KindCode
	case "document":
		return KindDocument
	default:
		return KindGeneric
	}
}

// Category is the detected content category of a file.
// Language is set for KindCode and KindDocument and empty for KindGeneric.
type Category struct {
	Kind     Kind
	Language string
}

// Code returns the category for source in lang.
func Code(lang string) Category { return Category{Kind: KindCode, Language: lang} }

// Document returns the category for a prose format.
func Document(format string) Category { return Category{Kind: KindDocument, Language: format} }

// Generic returns the fallback category.
func Generic() Category { return Category{Kind: KindGeneric} }

// String renders the category as "code:go", "document:markdown" or "generic".
func (c Category) String() string {
	if c.Language == "" {
		return c.Kind.String()
	}
	return c.Kind.String() + ":" + c.Language
}

// Chunk is a contiguous span of one file.
type Chunk struct {
	// ID is stable for a (path, ordinal, content) triple.
	ID string
	// Path is the file path as given to the chunker.
	Path string
	// Ordinal is the zero-based position of the chunk within its file.
	Ordinal int
	// Content is the exact text of lines StartLine..EndLine.
	Content string
	// StartLine and EndLine are 1-indexed and inclusive.
	StartLine int
	EndLine   int
	Category  Category
	Metadata  map[string]string
}

// LineCount returns the number of lines spanned.
func (c *Chunk) LineCount() int {
	return c.EndLine - c.StartLine + 1
}

// Chunker is implemented by StructuralChunker.
type Chunker interface {
	Chunk(ctx context.Context, path string, content []byte, maxChunkSize, overlap int) ([]Chunk, error)
}

// ChunkID derives the deterministic chunk id: the first 128 bits of
// SHA-256 over path, ordinal and content, hex encoded.
func ChunkID(path string, ordinal int, content string) string {
	h := sha256.New()
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(ordinal)))
	h.Write([]byte{0})
	h.Write([]byte(content))
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}
