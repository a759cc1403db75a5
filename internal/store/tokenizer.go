package store

import (
	"regexp"
	"strings"
	"unicode"
)

var wordPattern = regexp.MustCompile(`[A-Za-z0-9_]+`)

// minTokenLength drops single-character tokens.
const minTokenLength = 2

// TokenizeCode lowercases text and splits identifiers into their
// camelCase, PascalCase and snake_case parts:
// "parseHTTPRequest user_id" -> [parse http request user id].
func TokenizeCode(text string) []string {
	var tokens []string
	for _, word := range wordPattern.FindAllString(text, -1) {
		for _, part := range SplitIdentifier(word) {
			if len(part) >= minTokenLength {
				tokens = append(tokens, strings.ToLower(part))
			}
		}
	}
	return tokens
}

// SplitIdentifier splits on underscores, then on case changes.
func SplitIdentifier(word string) []string {
	var parts []string
	for _, piece := range strings.Split(word, "_") {
		if piece != "" {
			parts = append(parts, SplitCamelCase(piece)...)
		}
	}
	return parts
}

// SplitCamelCase splits at lower-to-upper transitions and before the last
// capital of an acronym: "HTTPHandler" -> [HTTP Handler].
func SplitCamelCase(s string) []string {
	if s == "" {
		return []string{}
	}

	var (
		parts []string
		start int
	)
	runes := []rune(s)
	for i := 1; i < len(runes); i++ {
		if !unicode.IsUpper(runes[i]) {
			continue
		}
		afterLower := unicode.IsLower(runes[i-1])
		acronymEnd := i+1 < len(runes) && unicode.IsLower(runes[i+1])
		if afterLower || acronymEnd {
			if i > start {
				parts = append(parts, string(runes[start:i]))
			}
			start = i
		}
	}
	return append(parts, string(runes[start:]))
}

// FilterStopWords drops tokens present in stopWords.
func FilterStopWords(tokens []string, stopWords map[string]struct{}) []string {
	out := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, stop := stopWords[strings.ToLower(token)]; !stop {
			out = append(out, token)
		}
	}
	return out
}

// BuildStopWordMap indexes words for FilterStopWords.
func BuildStopWordMap(words []string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[strings.ToLower(w)] = struct{}{}
	}
	return m
}
