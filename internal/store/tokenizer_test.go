package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenizeCode(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"whitespace", "hello world", []string{"hello", "world"}},
		{"delimiters", "foo.bar(baz, qux)", []string{"foo", "bar", "baz", "qux"}},
		{"camel case", "getUserById", []string{"get", "user", "by", "id"}},
		{"acronym", "parseHTTPRequest", []string{"parse", "http", "request"}},
		{"snake case", "user_auth_token", []string{"user", "auth", "token"}},
		{"short tokens dropped", "a b cd", []string{"cd"}},
		{"empty", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TokenizeCode(tt.input))
		})
	}
}

func TestSplitCamelCase(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"", []string{}},
		{"lower", []string{"lower"}},
		{"HTTPHandler", []string{"HTTP", "Handler"}},
		{"XMLHttpRequest", []string{"XML", "Http", "Request"}},
		{"ID", []string{"ID"}},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitCamelCase(tt.input))
		})
	}
}

func TestFilterStopWords(t *testing.T) {
	stop := BuildStopWordMap([]string{"func", "Return"})

	got := FilterStopWords([]string{"func", "login", "return", "user"}, stop)

	assert.Equal(t, []string{"login", "user"}, got)
}
