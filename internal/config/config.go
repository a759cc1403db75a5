// Package config loads semindex configuration from defaults, the user config
// file, the project .semindex.yaml and SEMINDEX_* environment variables.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	semerrors "github.com/Aman-CERP/semindex/internal/errors"
)

// ProjectFileName is the per-project configuration file.
const ProjectFileName = ".semindex.yaml"

// DefaultDataDirName is the directory, relative to the project root, holding
// index records, vectors and the lexical index.
const DefaultDataDirName = ".semindex"

// Config represents the complete semindex configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Index      IndexConfig      `yaml:"index" json:"index"`
	Watcher    WatcherConfig    `yaml:"watcher" json:"watcher"`
	Store      StoreConfig      `yaml:"store" json:"store"`
	Lexical    LexicalConfig    `yaml:"lexical" json:"lexical"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// PathsConfig configures where data lives and what is never indexed.
type PathsConfig struct {
	// DataDir overrides <root>/.semindex. Relative paths resolve against the root.
	DataDir string `yaml:"data_dir" json:"data_dir"`
	// Exclude holds extra gitignore-style patterns, appended to the defaults.
	Exclude []string `yaml:"exclude" json:"exclude"`
}

// ChunkingConfig sizes chunks in lines.
type ChunkingConfig struct {
	MaxChunkSize int `yaml:"max_chunk_size" json:"max_chunk_size"`
	Overlap      int `yaml:"overlap" json:"overlap"`
}

// IndexConfig configures the index writer.
type IndexConfig struct {
	// AllowedExtensions lists suffixes eligible for indexing, including the dot.
	AllowedExtensions []string `yaml:"allowed_extensions" json:"allowed_extensions"`
	WorkerPoolSize    int      `yaml:"worker_pool_size" json:"worker_pool_size"`
	MaxFileSize       int64    `yaml:"max_file_size" json:"max_file_size"`
	// IgnoreGitignore disables .gitignore based exclusion.
	IgnoreGitignore bool `yaml:"ignore_gitignore" json:"ignore_gitignore"`
	// StoreTimeout bounds each store and embedder call, e.g. "30s".
	StoreTimeout string `yaml:"store_timeout" json:"store_timeout"`
	MaxRetries   int    `yaml:"max_retries" json:"max_retries"`
}

// WatcherConfig configures the directory watcher.
type WatcherConfig struct {
	DebounceWindow string `yaml:"debounce_window" json:"debounce_window"`
	QueueSize      int    `yaml:"queue_size" json:"queue_size"`
	PollInterval   string `yaml:"poll_interval" json:"poll_interval"`
	ForcePolling   bool   `yaml:"force_polling" json:"force_polling"`
}

// StoreConfig selects and tunes the similarity store backend.
type StoreConfig struct {
	// Backend is one of "hnsw" (default), "sqlitevec" or "memory".
	Backend string `yaml:"backend" json:"backend"`
	// HNSWM is the max neighbors per node.
	HNSWM int `yaml:"hnsw_m" json:"hnsw_m"`
	// HNSWEfSearch is the candidate list size during search.
	HNSWEfSearch int `yaml:"hnsw_ef_search" json:"hnsw_ef_search"`
}

// LexicalConfig selects the lexical index backend.
type LexicalConfig struct {
	// Backend is one of "sqlite" (default, FTS5), "bleve" or "none".
	Backend string `yaml:"backend" json:"backend"`
}

// SearchConfig configures result fusion.
type SearchConfig struct {
	VectorWeight  float64 `yaml:"vector_weight" json:"vector_weight"`
	LexicalWeight float64 `yaml:"lexical_weight" json:"lexical_weight"`
	// Fusion is "weighted" (default) or "rrf".
	Fusion              string `yaml:"fusion" json:"fusion"`
	RRFConstant         int    `yaml:"rrf_constant" json:"rrf_constant"`
	CandidateMultiplier int    `yaml:"candidate_multiplier" json:"candidate_multiplier"`
	DefaultLimit        int    `yaml:"default_limit" json:"default_limit"`
	// AdaptiveWeights picks fusion weights per query shape.
	AdaptiveWeights bool `yaml:"adaptive_weights" json:"adaptive_weights"`
	// ExpandQueries adds code synonyms to the lexical query.
	ExpandQueries bool `yaml:"expand_queries" json:"expand_queries"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is "static" (default, offline) or "ollama".
	Provider   string `yaml:"provider" json:"provider"`
	Model      string `yaml:"model" json:"model"`
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`
	BatchSize  int    `yaml:"batch_size" json:"batch_size"`
	CacheSize  int    `yaml:"cache_size" json:"cache_size"`
	Timeout    string `yaml:"timeout" json:"timeout"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
}

// DefaultAllowedExtensions are the suffixes indexed when none are configured.
var DefaultAllowedExtensions = []string{
	".go", ".py", ".js", ".jsx", ".mjs", ".ts", ".tsx",
	".rs", ".java", ".kt", ".scala", ".c", ".h", ".cc", ".cpp", ".hpp", ".cs",
	".rb", ".php", ".swift", ".lua", ".sh",
	".md", ".mdx", ".rst", ".adoc", ".txt",
	".yaml", ".yml", ".toml", ".json", ".sql",
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	workers := runtime.NumCPU()
	if workers > 8 {
		workers = 8
	}

	return &Config{
		Version: 1,
		Paths: PathsConfig{
			Exclude: []string{".git/", DefaultDataDirName + "/", "node_modules/", "vendor/", "dist/", "build/"},
		},
		Chunking: ChunkingConfig{
			MaxChunkSize: 120,
			Overlap:      24,
		},
		Index: IndexConfig{
			AllowedExtensions: append([]string(nil), DefaultAllowedExtensions...),
			WorkerPoolSize:    workers,
			MaxFileSize:       1 << 20,
			StoreTimeout:      "30s",
			MaxRetries:        3,
		},
		Watcher: WatcherConfig{
			DebounceWindow: "200ms",
			QueueSize:      256,
			PollInterval:   "2s",
		},
		Store: StoreConfig{
			Backend:      "hnsw",
			HNSWM:        16,
			HNSWEfSearch: 64,
		},
		Lexical: LexicalConfig{
			Backend: "sqlite",
		},
		Search: SearchConfig{
			VectorWeight:        0.7,
			LexicalWeight:       0.3,
			Fusion:              "weighted",
			RRFConstant:         60,
			CandidateMultiplier: 4,
			DefaultLimit:        10,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "static",
			Model:      "nomic-embed-text",
			OllamaHost: "http://localhost:11434",
			BatchSize:  32,
			CacheSize:  4096,
			Timeout:    "60s",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultOverlap is 20% of maxChunkSize.
func DefaultOverlap(maxChunkSize int) int {
	return maxChunkSize / 5
}

// UserConfigPath returns $XDG_CONFIG_HOME/semindex/config.yaml, falling back
// to ~/.config/semindex/config.yaml.
func UserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "semindex", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "semindex", "config.yaml")
	}
	return filepath.Join(home, ".config", "semindex", "config.yaml")
}

// Load builds the configuration for the project rooted at dir.
// Precedence, lowest first: defaults, user config, project config, environment.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if path := UserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	if path := filepath.Join(dir, ProjectFileName); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, semerrors.ConfigError("invalid configuration", err).
			WithSuggestion("check " + ProjectFileName + " and SEMINDEX_* variables")
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return semerrors.New(semerrors.ErrCodeConfigNotFound, "failed to read config file", err).
			WithDetail("path", path)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return semerrors.ConfigError("failed to parse config file", err).WithDetail("path", path)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith copies non-zero values from other into c.
// Exclude patterns are appended, everything else replaces.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Paths.DataDir != "" {
		c.Paths.DataDir = other.Paths.DataDir
	}
	c.Paths.Exclude = append(c.Paths.Exclude, other.Paths.Exclude...)

	if other.Chunking.MaxChunkSize != 0 {
		c.Chunking.MaxChunkSize = other.Chunking.MaxChunkSize
		c.Chunking.Overlap = DefaultOverlap(other.Chunking.MaxChunkSize)
	}
	setInt(&c.Chunking.Overlap, other.Chunking.Overlap)

	if len(other.Index.AllowedExtensions) > 0 {
		c.Index.AllowedExtensions = normalizeExtensions(other.Index.AllowedExtensions)
	}
	setInt(&c.Index.WorkerPoolSize, other.Index.WorkerPoolSize)
	if other.Index.MaxFileSize != 0 {
		c.Index.MaxFileSize = other.Index.MaxFileSize
	}
	if other.Index.IgnoreGitignore {
		c.Index.IgnoreGitignore = true
	}
	setString(&c.Index.StoreTimeout, other.Index.StoreTimeout)
	setInt(&c.Index.MaxRetries, other.Index.MaxRetries)

	setString(&c.Watcher.DebounceWindow, other.Watcher.DebounceWindow)
	setInt(&c.Watcher.QueueSize, other.Watcher.QueueSize)
	setString(&c.Watcher.PollInterval, other.Watcher.PollInterval)
	if other.Watcher.ForcePolling {
		c.Watcher.ForcePolling = true
	}

	setString(&c.Store.Backend, other.Store.Backend)
	setInt(&c.Store.HNSWM, other.Store.HNSWM)
	setInt(&c.Store.HNSWEfSearch, other.Store.HNSWEfSearch)

	setString(&c.Lexical.Backend, other.Lexical.Backend)

	if other.Search.VectorWeight != 0 || other.Search.LexicalWeight != 0 {
		c.Search.VectorWeight = other.Search.VectorWeight
		c.Search.LexicalWeight = other.Search.LexicalWeight
	}
	setString(&c.Search.Fusion, other.Search.Fusion)
	setInt(&c.Search.RRFConstant, other.Search.RRFConstant)
	setInt(&c.Search.CandidateMultiplier, other.Search.CandidateMultiplier)
	setInt(&c.Search.DefaultLimit, other.Search.DefaultLimit)
	if other.Search.AdaptiveWeights {
		c.Search.AdaptiveWeights = true
	}
	if other.Search.ExpandQueries {
		c.Search.ExpandQueries = true
	}

	setString(&c.Embeddings.Provider, other.Embeddings.Provider)
	setString(&c.Embeddings.Model, other.Embeddings.Model)
	setString(&c.Embeddings.OllamaHost, other.Embeddings.OllamaHost)
	setInt(&c.Embeddings.BatchSize, other.Embeddings.BatchSize)
	setInt(&c.Embeddings.CacheSize, other.Embeddings.CacheSize)
	setString(&c.Embeddings.Timeout, other.Embeddings.Timeout)

	setString(&c.Logging.Level, other.Logging.Level)
}

// applyEnvOverrides applies SEMINDEX_* environment variables.
// Unparseable values are ignored.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SEMINDEX_DATA_DIR"); v != "" {
		c.Paths.DataDir = v
	}
	if v := os.Getenv("SEMINDEX_STORE_BACKEND"); v != "" {
		c.Store.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("SEMINDEX_LEXICAL_BACKEND"); v != "" {
		c.Lexical.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("SEMINDEX_EMBEDDER"); v != "" {
		c.Embeddings.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("SEMINDEX_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("SEMINDEX_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("SEMINDEX_DEBOUNCE_WINDOW"); v != "" {
		c.Watcher.DebounceWindow = v
	}
	if v := os.Getenv("SEMINDEX_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if envInt("SEMINDEX_MAX_CHUNK_SIZE", &c.Chunking.MaxChunkSize) {
		c.Chunking.Overlap = DefaultOverlap(c.Chunking.MaxChunkSize)
	}
	envInt("SEMINDEX_OVERLAP", &c.Chunking.Overlap)
	envInt("SEMINDEX_WORKERS", &c.Index.WorkerPoolSize)
	if v := os.Getenv("SEMINDEX_ALLOWED_EXTENSIONS"); v != "" {
		c.Index.AllowedExtensions = normalizeExtensions(strings.Split(v, ","))
	}
	if v := os.Getenv("SEMINDEX_VECTOR_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && w >= 0 && w <= 1 {
			c.Search.VectorWeight = w
			c.Search.LexicalWeight = 1 - w
		}
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Chunking.MaxChunkSize <= 0 {
		return fmt.Errorf("chunking.max_chunk_size must be positive, got %d", c.Chunking.MaxChunkSize)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.MaxChunkSize {
		return fmt.Errorf("chunking.overlap must be in [0, max_chunk_size), got %d", c.Chunking.Overlap)
	}
	if c.Index.WorkerPoolSize <= 0 {
		return fmt.Errorf("index.worker_pool_size must be positive, got %d", c.Index.WorkerPoolSize)
	}
	if c.Index.MaxRetries < 0 {
		return fmt.Errorf("index.max_retries must be non-negative, got %d", c.Index.MaxRetries)
	}
	if c.Watcher.QueueSize <= 0 {
		return fmt.Errorf("watcher.queue_size must be positive, got %d", c.Watcher.QueueSize)
	}

	for name, v := range map[string]string{
		"index.store_timeout":     c.Index.StoreTimeout,
		"watcher.debounce_window": c.Watcher.DebounceWindow,
		"watcher.poll_interval":   c.Watcher.PollInterval,
		"embeddings.timeout":      c.Embeddings.Timeout,
	} {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("%s must be a duration like \"200ms\", got %q", name, v)
		}
	}

	if err := oneOf("store.backend", c.Store.Backend, "hnsw", "sqlitevec", "memory"); err != nil {
		return err
	}
	if err := oneOf("lexical.backend", c.Lexical.Backend, "sqlite", "bleve", "none"); err != nil {
		return err
	}
	if err := oneOf("search.fusion", c.Search.Fusion, "weighted", "rrf"); err != nil {
		return err
	}
	if err := oneOf("embeddings.provider", c.Embeddings.Provider, "static", "ollama"); err != nil {
		return err
	}
	if err := oneOf("logging.level", c.Logging.Level, "debug", "info", "warn", "error"); err != nil {
		return err
	}

	if c.Search.VectorWeight < 0 || c.Search.VectorWeight > 1 ||
		c.Search.LexicalWeight < 0 || c.Search.LexicalWeight > 1 {
		return fmt.Errorf("search weights must be between 0 and 1")
	}
	if sum := c.Search.VectorWeight + c.Search.LexicalWeight; math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("search.vector_weight + search.lexical_weight must equal 1.0, got %.2f", sum)
	}
	return nil
}

// DataDirFor resolves the data directory for a project root.
func (c *Config) DataDirFor(root string) string {
	switch {
	case c.Paths.DataDir == "":
		return filepath.Join(root, DefaultDataDirName)
	case filepath.IsAbs(c.Paths.DataDir):
		return c.Paths.DataDir
	default:
		return filepath.Join(root, c.Paths.DataDir)
	}
}

// Debounce returns the parsed debounce window.
func (w WatcherConfig) Debounce() time.Duration {
	return parseDurationOr(w.DebounceWindow, 200*time.Millisecond)
}

// Poll returns the parsed polling interval.
func (w WatcherConfig) Poll() time.Duration {
	return parseDurationOr(w.PollInterval, 2*time.Second)
}

// Timeout returns the parsed per-call store timeout.
func (i IndexConfig) Timeout() time.Duration {
	return parseDurationOr(i.StoreTimeout, 30*time.Second)
}

// RequestTimeout returns the parsed embedder request timeout.
func (e EmbeddingsConfig) RequestTimeout() time.Duration {
	return parseDurationOr(e.Timeout, 60*time.Second)
}

// WriteYAML writes the configuration to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// FindProjectRoot walks up from startDir looking for .git, go.mod or a
// project config file. It returns the absolute startDir when none is found.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	for dir := absDir; ; {
		if dirExists(filepath.Join(dir, ".git")) ||
			fileExists(filepath.Join(dir, ProjectFileName)) ||
			fileExists(filepath.Join(dir, "go.mod")) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return absDir, nil
		}
		dir = parent
	}
}

func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out = append(out, e)
	}
	return out
}

func oneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if strings.EqualFold(value, a) {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", field, strings.Join(allowed, ", "), value)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func envInt(key string, dst *int) bool {
	v := os.Getenv(key)
	if v == "" {
		return false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return false
	}
	*dst = n
	return true
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
