package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	semerrors "github.com/Aman-CERP/semindex/internal/errors"
)

// ollamaRetryDelay is the first backoff step between request attempts.
var ollamaRetryDelay = 100 * time.Millisecond

// OllamaEmbedder generates embeddings using Ollama's HTTP API.
// Each request runs under its own timeout, is retried with backoff and
// passes through a circuit breaker so an unreachable server fails fast.
type OllamaEmbedder struct {
	client    *http.Client
	transport *http.Transport
	config    OllamaConfig
	breaker   *semerrors.CircuitBreaker
	logger    *slog.Logger
	modelName string
	dims      int

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*OllamaEmbedder)(nil)

// NewOllamaEmbedder creates an Ollama embedder. Unless SkipHealthCheck is
// set it resolves an installed model and probes its dimension.
func NewOllamaEmbedder(ctx context.Context, cfg OllamaConfig) (*OllamaEmbedder, error) {
	defaults := DefaultOllamaConfig()
	if cfg.Host == "" {
		cfg.Host = defaults.Host
	}
	cfg.Host = strings.TrimRight(cfg.Host, "/")
	if cfg.Model == "" {
		cfg.Model = defaults.Model
	}
	if cfg.FallbackModels == nil {
		cfg.FallbackModels = defaults.FallbackModels
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = defaults.PoolSize
	}
	if cfg.BreakerFailures <= 0 {
		cfg.BreakerFailures = defaults.BreakerFailures
	}
	if cfg.BreakerReset <= 0 {
		cfg.BreakerReset = defaults.BreakerReset
	}

	// No client-level timeout: every request carries its own context deadline.
	transport := &http.Transport{
		MaxIdleConns:        cfg.PoolSize,
		MaxIdleConnsPerHost: cfg.PoolSize,
		MaxConnsPerHost:     cfg.PoolSize * 2,
		IdleConnTimeout:     10 * time.Second,
	}

	e := &OllamaEmbedder{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
		breaker: semerrors.NewCircuitBreaker("ollama",
			semerrors.WithMaxFailures(cfg.BreakerFailures),
			semerrors.WithResetTimeout(cfg.BreakerReset)),
		logger:    slog.Default(),
		modelName: cfg.Model,
		dims:      cfg.Dimensions,
	}

	if !cfg.SkipHealthCheck {
		checkCtx, cancel := context.WithTimeout(ctx, OllamaConnectTimeout+cfg.Timeout)
		defer cancel()

		modelName, err := e.findAvailableModel(checkCtx)
		if err != nil {
			transport.CloseIdleConnections()
			return nil, semerrors.EmbeddingError("failed to connect to Ollama or find model", err).
				WithDetail("host", cfg.Host).
				WithSuggestion("Start Ollama and pull the model, or set embeddings.provider to static")
		}
		e.modelName = modelName

		if e.dims == 0 {
			vecs, err := e.doEmbed(checkCtx, []string{"dimension detection"})
			if err != nil {
				transport.CloseIdleConnections()
				return nil, semerrors.EmbeddingError("failed to detect embedding dimensions", err)
			}
			e.dims = len(vecs[0])
		}
	}

	if e.dims == 0 {
		transport.CloseIdleConnections()
		return nil, semerrors.ValidationError("ollama dimensions must be set when the health check is skipped", nil)
	}

	return e, nil
}

// listModels gets available models from Ollama
func (e *OllamaEmbedder) listModels(ctx context.Context) ([]OllamaModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.config.Host+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ollama: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var result OllamaModelListResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return result.Models, nil
}

// findAvailableModel matches the configured model, then the fallbacks,
// against installed models by full name or by name without tag.
func (e *OllamaEmbedder) findAvailableModel(ctx context.Context) (string, error) {
	models, err := e.listModels(ctx)
	if err != nil {
		return "", err
	}

	available := make(map[string]string)
	for _, m := range models {
		name := strings.ToLower(m.Name)
		available[name] = m.Name
		base := strings.Split(name, ":")[0]
		if _, exists := available[base]; !exists {
			available[base] = m.Name
		}
	}

	candidates := append([]string{e.config.Model}, e.config.FallbackModels...)
	for _, candidate := range candidates {
		name := strings.ToLower(candidate)
		if actual, ok := available[name]; ok {
			return actual, nil
		}
		if actual, ok := available[strings.Split(name, ":")[0]]; ok {
			return actual, nil
		}
	}

	return "", fmt.Errorf("no embedding model available (tried %v)", candidates)
}

func (e *OllamaEmbedder) checkOpen() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrClosed
	}
	return nil
}

// Embed generates embedding for a single text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in requests of at most BatchSize inputs.
// Blank texts get the zero vector without a request.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}

	results := make([][]float32, len(texts))
	var pending []int
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			results[i] = make([]float32, e.dims)
		} else {
			pending = append(pending, i)
		}
	}

	for start := 0; start < len(pending); start += e.config.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := min(start+e.config.BatchSize, len(pending))
		batch := make([]string, 0, end-start)
		for _, idx := range pending[start:end] {
			batch = append(batch, texts[idx])
		}

		vecs, err := e.doEmbedWithRetry(ctx, batch)
		if err != nil {
			return nil, err
		}
		for j, idx := range pending[start:end] {
			results[idx] = vecs[j]
		}
	}

	return results, nil
}

// doEmbedWithRetry wraps doEmbed with the circuit breaker and backoff.
// Failures surface as EmbeddingError; an exhausted run of timeouts keeps
// the retryable EmbedderTimeout code.
func (e *OllamaEmbedder) doEmbedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	retryCfg := semerrors.RetryConfig{
		MaxRetries:   e.config.MaxRetries,
		InitialDelay: ollamaRetryDelay,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}

	attempt := 0
	vecs, err := semerrors.RetryWithResult(ctx, retryCfg, func() ([][]float32, error) {
		attempt++
		var out [][]float32
		err := e.breaker.Execute(func() error {
			reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
			defer cancel()

			var err error
			out, err = e.doEmbed(reqCtx, texts)
			return err
		})
		if errors.Is(err, semerrors.ErrCircuitOpen) {
			return nil, semerrors.EmbeddingError("ollama circuit open", err).
				WithDetail("breaker", e.breaker.Name())
		}
		if err != nil {
			e.logger.Debug("embedding_attempt_failed",
				slog.Int("attempt", attempt),
				slog.Int("texts", len(texts)),
				slog.String("error", err.Error()))
		}
		return out, err
	})
	if err == nil {
		return vecs, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if _, ok := semerrors.As(err); ok {
		return nil, err
	}
	return nil, semerrors.EmbeddingError(fmt.Sprintf("ollama embed failed after %d attempts", attempt), err)
}

// doEmbed performs a single /api/embed request.
// Timeouts and 5xx responses are retryable; 4xx responses are not.
func (e *OllamaEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	var input any = texts
	if len(texts) == 1 {
		input = texts[0]
	}

	body, err := json.Marshal(OllamaEmbedRequest{Model: e.modelName, Input: input})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, semerrors.New(semerrors.ErrCodeEmbedderTimeout, "ollama request timed out", err).
				WithDetail("timeout", e.config.Timeout.String())
		}
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := fmt.Sprintf("embedding failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, semerrors.EmbeddingError(msg, nil).WithDetail("model", e.modelName)
		}
		return nil, errors.New(msg)
	}

	var apiResult OllamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResult); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(apiResult.Embeddings) != len(texts) {
		return nil, semerrors.EmbeddingError(
			fmt.Sprintf("ollama returned %d embeddings for %d inputs", len(apiResult.Embeddings), len(texts)), nil)
	}

	embeddings := make([][]float32, len(apiResult.Embeddings))
	for i, emb := range apiResult.Embeddings {
		if len(emb) == 0 || (e.dims > 0 && len(emb) != e.dims) {
			return nil, semerrors.EmbeddingError(
				fmt.Sprintf("ollama returned %d dimensions, expected %d", len(emb), e.dims), nil).
				WithDetail("model", e.modelName)
		}
		embedding := make([]float32, len(emb))
		for j, v := range emb {
			embedding[j] = float32(v)
		}
		embeddings[i] = normalizeVector(embedding)
	}
	return embeddings, nil
}

// Dimensions returns the embedding dimension
func (e *OllamaEmbedder) Dimensions() int {
	return e.dims
}

// ModelName returns the model identifier
func (e *OllamaEmbedder) ModelName() string {
	return e.modelName
}

// Close releases idle connections. It is idempotent.
func (e *OllamaEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	e.transport.CloseIdleConnections()
	return nil
}
