package search

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeightsForQueryType(t *testing.T) {
	tests := []struct {
		qt   QueryType
		want Weights
	}{
		{QueryTypeLexical, Weights{Vector: 0.3, Lexical: 0.7}},
		{QueryTypeSemantic, Weights{Vector: 0.85, Lexical: 0.15}},
		{QueryTypeMixed, DefaultWeights()},
		{QueryType("other"), DefaultWeights()},
	}
	for _, tt := range tests {
		t.Run(string(tt.qt), func(t *testing.T) {
			got := WeightsForQueryType(tt.qt)
			assert.Equal(t, tt.want, got)
			assert.InDelta(t, 1.0, got.Vector+got.Lexical, 1e-9)
		})
	}
}

func TestPatternClassifier_Classify(t *testing.T) {
	tests := []struct {
		query string
		want  QueryType
	}{
		{"ERR_301_STORE_UNAVAILABLE", QueryTypeLexical},
		{"E0001", QueryTypeLexical},
		{"NullPointerException", QueryTypeLexical},
		{`"exact phrase"`, QueryTypeLexical},
		{"internal/index/writer.go", QueryTypeLexical},
		{"indexFile", QueryTypeLexical},
		{"IndexWriter", QueryTypeLexical},
		{"chunk_ids", QueryTypeLexical},
		{"MAX_CHUNK_SIZE", QueryTypeLexical},
		{"how does the watcher debounce events", QueryTypeSemantic},
		{"where is the config loaded", QueryTypeSemantic},
		{"user authentication flow", QueryTypeSemantic},
		{"vector store", QueryTypeMixed},
		{"search", QueryTypeMixed},
		{"", QueryTypeMixed},
		{"   ", QueryTypeMixed},
	}
	c := NewPatternClassifier()
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			qt, w, err := c.Classify(context.Background(), tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, qt)
			assert.Equal(t, WeightsForQueryType(tt.want), w)
		})
	}
}

func TestPatternClassifier_CachesNormalizedQuery(t *testing.T) {
	// Given: a classified query
	c := NewPatternClassifier()
	_, _, err := c.Classify(context.Background(), "vector   store")
	require.NoError(t, err)

	// Then: the whitespace-normalized form is cached
	qt, ok := c.cache.Get("vector store")
	require.True(t, ok)
	assert.Equal(t, QueryTypeMixed, qt)
	assert.Equal(t, 1, c.cache.Len())
}

func TestPatternClassifier_ConcurrentUse(t *testing.T) {
	c := NewPatternClassifier()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, _, _ = c.Classify(context.Background(), fmt.Sprintf("query %d", (i+j)%7))
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 7, c.cache.Len())
}
