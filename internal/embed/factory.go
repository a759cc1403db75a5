package embed

import (
	"context"
	"fmt"
	"strings"

	"github.com/Aman-CERP/semindex/internal/config"
	semerrors "github.com/Aman-CERP/semindex/internal/errors"
)

// ProviderType represents an embedding provider
type ProviderType string

const (
	// ProviderStatic uses hash-based embeddings (offline, deterministic)
	ProviderStatic ProviderType = "static"

	// ProviderOllama uses the Ollama HTTP API
	ProviderOllama ProviderType = "ollama"
)

// String returns the provider name.
func (p ProviderType) String() string {
	return string(p)
}

// ValidProviders returns the provider names accepted by ParseProvider.
func ValidProviders() []string {
	return []string{string(ProviderStatic), string(ProviderOllama)}
}

// ParseProvider converts a name to a ProviderType. The empty string selects static.
func ParseProvider(s string) (ProviderType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(ProviderStatic):
		return ProviderStatic, nil
	case string(ProviderOllama):
		return ProviderOllama, nil
	default:
		return "", semerrors.ValidationError(fmt.Sprintf("unknown embeddings provider %q", s), nil).
			WithSuggestion("Use one of: " + strings.Join(ValidProviders(), ", "))
	}
}

// New builds the embedder selected by cfg and wraps it in a CachedEmbedder.
// A negative CacheSize disables caching.
func New(ctx context.Context, cfg config.EmbeddingsConfig) (Embedder, error) {
	provider, err := ParseProvider(cfg.Provider)
	if err != nil {
		return nil, err
	}

	var embedder Embedder
	switch provider {
	case ProviderOllama:
		ocfg := DefaultOllamaConfig()
		if cfg.OllamaHost != "" {
			ocfg.Host = cfg.OllamaHost
		}
		if cfg.Model != "" {
			ocfg.Model = cfg.Model
		}
		if cfg.BatchSize > 0 {
			ocfg.BatchSize = cfg.BatchSize
		}
		ocfg.Timeout = cfg.RequestTimeout()

		embedder, err = NewOllamaEmbedder(ctx, ocfg)
		if err != nil {
			return nil, err
		}
	default:
		embedder = NewStaticEmbedder()
	}

	if cfg.CacheSize < 0 {
		return embedder, nil
	}
	return NewCachedEmbedder(embedder, cfg.CacheSize), nil
}

// Info describes an embedder for status output.
type Info struct {
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
	Cached     bool   `json:"cached"`
	// Cache is set when Cached is.
	Cache *CacheStats `json:"cache,omitempty"`
}

// GetInfo reports the provider, model and dimension of e.
func GetInfo(e Embedder) Info {
	info := Info{Model: e.ModelName(), Dimensions: e.Dimensions()}
	if c, ok := e.(*CachedEmbedder); ok {
		stats := c.Stats()
		info.Cached = true
		info.Cache = &stats
		e = c.Inner()
	}
	switch e.(type) {
	case *OllamaEmbedder:
		info.Provider = string(ProviderOllama)
	case *StaticEmbedder:
		info.Provider = string(ProviderStatic)
	default:
		info.Provider = "custom"
	}
	return info
}
