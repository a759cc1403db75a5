package mcp

import "time"

// SearchInput is the input schema of the search tool.
type SearchInput struct {
	Query      string   `json:"query" jsonschema:"the search query"`
	Limit      int      `json:"limit,omitempty" jsonschema:"maximum number of results, default 10, max 50"`
	Language   string   `json:"language,omitempty" jsonschema:"only return chunks in this language, e.g. go, python, markdown"`
	Scope      []string `json:"scope,omitempty" jsonschema:"only return chunks under these path prefixes"`
	VectorOnly bool     `json:"vector_only,omitempty" jsonschema:"skip keyword matching and rank by embedding similarity alone"`
}

// SearchOutput is the output schema of the search tool.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results" jsonschema:"ranked chunks"`
}

// SearchResultOutput is one ranked chunk.
type SearchResultOutput struct {
	FilePath     string   `json:"file_path" jsonschema:"file path relative to the index root"`
	StartLine    int      `json:"start_line" jsonschema:"first line of the chunk, 1-indexed"`
	EndLine      int      `json:"end_line" jsonschema:"last line of the chunk, inclusive"`
	Content      string   `json:"content" jsonschema:"chunk text"`
	Score        float64  `json:"score" jsonschema:"fused relevance score"`
	Language     string   `json:"language,omitempty" jsonschema:"language of the file"`
	MatchedTerms []string `json:"matched_terms,omitempty" jsonschema:"query terms found by keyword matching"`
	InBothLists  bool     `json:"in_both_lists,omitempty" jsonschema:"true if keyword and embedding search both returned the chunk"`
}

// IndexStatsInput is the input schema of the index_stats tool.
type IndexStatsInput struct{}

// IndexStatsOutput is the output schema of the index_stats tool.
type IndexStatsOutput struct {
	RootPath     string `json:"root_path"`
	FileCount    int    `json:"file_count"`
	ChunkCount   int    `json:"chunk_count"`
	VectorCount  int    `json:"vector_count"`
	LastIndexed  string `json:"last_indexed,omitempty"`
	Model        string `json:"model"`
	Dimensions   int    `json:"dimensions"`
	Consistent   bool   `json:"consistent" jsonschema:"false while an update is in flight or after an interrupted write"`
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
