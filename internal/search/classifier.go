package search

import (
	"context"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultClassifierCacheSize bounds the per-query classification cache.
const DefaultClassifierCacheSize = 4096

var (
	// ERR_*, E0001, ABC123, FooException
	errorCodePattern = regexp.MustCompile(`(?i)^(ERR_\w+|E\d{4,5}|[A-Z]{2,}\d{3,}|\w+Exception)$`)

	quotedPattern = regexp.MustCompile(`^["'].*["']$`)

	filePathPattern = regexp.MustCompile(`(?i)^[\w\-./\\]+\.(go|ts|tsx|js|jsx|py|md|json|yaml|yml|toml|rs|java|kt|c|cc|cpp|h|hpp|rb|php|swift|sh|sql)$`)

	camelCasePattern      = regexp.MustCompile(`^[a-z]+([A-Z][a-z0-9]*)+$`)
	pascalCasePattern     = regexp.MustCompile(`^([A-Z][a-z0-9]*){2,}$`)
	snakeCasePattern      = regexp.MustCompile(`^[a-z]+(_[a-z0-9]+)+$`)
	screamingSnakePattern = regexp.MustCompile(`^[A-Z]+(_[A-Z0-9]+)+$`)

	naturalLanguagePattern = regexp.MustCompile(`(?i)^(how|what|where|why|when|which|can|does|is|are|should|explain|describe|show|find|list)\s`)
)

// PatternClassifier picks fusion weights from the shape of a query:
// identifiers and error codes lean lexical, questions lean semantic.
// Results are cached per normalized query. Safe for concurrent use.
type PatternClassifier struct {
	cache *lru.Cache[string, QueryType]
}

// NewPatternClassifier creates a classifier with DefaultClassifierCacheSize.
func NewPatternClassifier() *PatternClassifier {
	cache, _ := lru.New[string, QueryType](DefaultClassifierCacheSize)
	return &PatternClassifier{cache: cache}
}

// Classify returns the query type and its weights. It never fails; the
// error is kept for callers that swap in a fallible classifier.
func (p *PatternClassifier) Classify(_ context.Context, query string) (QueryType, Weights, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return QueryTypeMixed, WeightsForQueryType(QueryTypeMixed), nil
	}

	key := normalizeQuery(query)
	if qt, ok := p.cache.Get(key); ok {
		return qt, WeightsForQueryType(qt), nil
	}
	qt := classifyQuery(query)
	p.cache.Add(key, qt)
	return qt, WeightsForQueryType(qt), nil
}

func classifyQuery(query string) QueryType {
	if isLexicalQuery(query) {
		return QueryTypeLexical
	}
	if naturalLanguagePattern.MatchString(query) {
		return QueryTypeSemantic
	}
	// Three or more plain words read as a description.
	if len(strings.Fields(query)) >= 3 {
		return QueryTypeSemantic
	}
	return QueryTypeMixed
}

func isLexicalQuery(query string) bool {
	if errorCodePattern.MatchString(query) || quotedPattern.MatchString(query) || filePathPattern.MatchString(query) {
		return true
	}
	if strings.Contains(query, " ") {
		return false
	}
	return camelCasePattern.MatchString(query) ||
		pascalCasePattern.MatchString(query) ||
		snakeCasePattern.MatchString(query) ||
		screamingSnakePattern.MatchString(query)
}

// normalizeQuery collapses whitespace. Case is kept because the identifier
// patterns depend on it.
func normalizeQuery(query string) string {
	return strings.Join(strings.Fields(query), " ")
}
