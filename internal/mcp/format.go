package mcp

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/semindex/internal/search"
)

// FormatSearchResults renders results as markdown.
func FormatSearchResults(query string, results []search.Result) string {
	if len(results) == 0 {
		return fmt.Sprintf("No results found for \"%s\"", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Search Results for \"%s\"\n\n", query)
	fmt.Fprintf(&sb, "Found %d result", len(results))
	if len(results) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")

	for i, r := range results {
		formatResult(&sb, i+1, r)
	}
	return sb.String()
}

func formatResult(sb *strings.Builder, num int, r search.Result) {
	fmt.Fprintf(sb, "### %d. %s:%d-%d (score: %.2f)\n", num, r.Path, r.StartLine, r.EndLine, r.Score)
	if len(r.MatchedTerms) > 0 {
		fmt.Fprintf(sb, "**Matched:** %s\n\n", strings.Join(r.MatchedTerms, ", "))
	}

	if r.Language == "markdown" {
		sb.WriteString(r.Content)
		sb.WriteString("\n\n---\n\n")
		return
	}
	lang := r.Language
	if lang == "" {
		lang = "text"
	}
	fmt.Fprintf(sb, "```%s\n%s\n```\n\n", lang, strings.TrimRight(r.Content, "\n"))
}

func clampLimit(limit, defaultVal, lo, hi int) int {
	if limit <= 0 {
		return defaultVal
	}
	return min(max(limit, lo), hi)
}

// ToSearchResultOutput converts a retriever result.
func ToSearchResultOutput(r search.Result) SearchResultOutput {
	return SearchResultOutput{
		FilePath:     r.Path,
		StartLine:    r.StartLine,
		EndLine:      r.EndLine,
		Content:      r.Content,
		Score:        r.Score,
		Language:     r.Language,
		MatchedTerms: r.MatchedTerms,
		InBothLists:  r.VectorRank > 0 && r.LexicalRank > 0,
	}
}
