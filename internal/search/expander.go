package search

import (
	"strings"

	"github.com/Aman-CERP/semindex/internal/store"
)

// DefaultMaxExpansions caps the synonyms added per query term.
const DefaultMaxExpansions = 3

// QueryExpander widens a keyword query with code vocabulary, so that
// "user authentication" also matches a chunk that only says "login".
// The lexical index ORs terms, so added words never shrink the hit set.
type QueryExpander struct {
	synonyms      map[string][]string
	maxExpansions int
}

// QueryExpanderOption configures a QueryExpander.
type QueryExpanderOption func(*QueryExpander)

// WithMaxExpansions sets how many synonyms each term may add.
func WithMaxExpansions(n int) QueryExpanderOption {
	return func(e *QueryExpander) {
		if n >= 0 {
			e.maxExpansions = n
		}
	}
}

// WithSynonyms adds mappings on top of CodeSynonyms.
func WithSynonyms(synonyms map[string][]string) QueryExpanderOption {
	return func(e *QueryExpander) {
		for k, v := range synonyms {
			k = strings.ToLower(k)
			e.synonyms[k] = append(e.synonyms[k], v...)
		}
	}
}

// NewQueryExpander creates an expander seeded with CodeSynonyms.
func NewQueryExpander(opts ...QueryExpanderOption) *QueryExpander {
	e := &QueryExpander{
		synonyms:      make(map[string][]string, len(CodeSynonyms)),
		maxExpansions: DefaultMaxExpansions,
	}
	for k, v := range CodeSynonyms {
		e.synonyms[k] = append([]string(nil), v...)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Expand returns the query terms followed by their synonyms, lower case
// and without duplicates. A query with no terms is returned unchanged.
func (e *QueryExpander) Expand(query string) string {
	terms := store.TokenizeCode(query)
	if len(terms) == 0 {
		return query
	}

	seen := make(map[string]bool, len(terms)*2)
	expanded := make([]string, 0, len(terms)*(1+e.maxExpansions))
	for _, t := range terms {
		if !seen[t] {
			seen[t] = true
			expanded = append(expanded, t)
		}
	}
	for _, t := range terms {
		added := 0
		for _, syn := range e.synonyms[t] {
			if added >= e.maxExpansions {
				break
			}
			syn = strings.ToLower(syn)
			if seen[syn] {
				continue
			}
			seen[syn] = true
			expanded = append(expanded, syn)
			added++
		}
	}
	return strings.Join(expanded, " ")
}
