package mcp

import (
	"path/filepath"
	"strings"

	"github.com/Aman-CERP/semindex/internal/chunk"
)

// Languages whose MIME type is not text/x-<language>.
var languageMIME = map[string]string{
	"javascript": "text/javascript",
	"jsx":        "text/javascript",
	"typescript": "text/typescript",
	"tsx":        "text/typescript",
	"cpp":        "text/x-c++",
	"shell":      "text/x-sh",
	"markdown":   "text/markdown",
	"asciidoc":   "text/asciidoc",
	"text":       "text/plain",
}

// Generic files that still deserve a specific type.
var genericMIME = map[string]string{
	".json": "application/json",
	".yaml": "text/x-yaml",
	".yml":  "text/x-yaml",
	".toml": "text/x-toml",
	".xml":  "text/xml",
	".html": "text/html",
	".css":  "text/css",
	".mod":  "text/x-go.mod",
	".sum":  "text/x-go.sum",
}

// mimeTypeFor derives a resource MIME type from the same category the
// chunker assigns to path.
func mimeTypeFor(path string) string {
	cat := chunk.DetectCategory(path)
	if cat.Kind == chunk.KindGeneric {
		if mime, ok := genericMIME[strings.ToLower(filepath.Ext(path))]; ok {
			return mime
		}
		return "text/plain"
	}
	if mime, ok := languageMIME[cat.Language]; ok {
		return mime
	}
	return "text/x-" + cat.Language
}
