// Package config loads docsearch settings from a YAML file, DOCSEARCH_*
// environment variables and built-in defaults, in that order of precedence
// (environment wins over the file).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/dshills/docsearch-mcp/internal/chunker"
	"github.com/dshills/docsearch-mcp/internal/embedder"
	"github.com/dshills/docsearch-mcp/internal/indexer"
	"github.com/dshills/docsearch-mcp/internal/loader"
	"github.com/dshills/docsearch-mcp/internal/searcher"
	"github.com/dshills/docsearch-mcp/pkg/types"
)

const (
	// AppName names the config file (docsearch.yaml) and the data directory
	AppName = "docsearch"

	// EnvPrefix prefixes every environment override, e.g. DOCSEARCH_CHUNKING_MAX_SIZE
	EnvPrefix = "DOCSEARCH"

	// DefaultWatchDebounce is how long watch mode waits for events to settle
	DefaultWatchDebounce = 2 * time.Second
)

// Config is the full application configuration
type Config struct {
	DataDir   string          `mapstructure:"data_dir"`
	Index     IndexConfig     `mapstructure:"index"`
	Tracker   TrackerConfig   `mapstructure:"tracker"`
	Source    SourceConfig    `mapstructure:"source"`
	Chunking  ChunkingConfig  `mapstructure:"chunking"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Search    SearchConfig    `mapstructure:"search"`
	Log       LogConfig       `mapstructure:"log"`

	// File is the config file that was read, empty when none was found
	File string `mapstructure:"-"`
}

// IndexConfig locates the SQLite index
type IndexConfig struct {
	Path string `mapstructure:"path"`
}

// TrackerConfig locates the processing tracker file
type TrackerConfig struct {
	Path string `mapstructure:"path"`
}

// SourceConfig describes the document tree
type SourceConfig struct {
	Root       string   `mapstructure:"root"`
	Extensions []string `mapstructure:"extensions"`
}

// ChunkingConfig selects the chunking strategy
type ChunkingConfig struct {
	Strategy string `mapstructure:"strategy"`
	MaxSize  int    `mapstructure:"max_size"`
	Overlap  int    `mapstructure:"overlap"`
}

// EmbeddingConfig configures the provider and the batch coordinator
type EmbeddingConfig struct {
	Provider   string        `mapstructure:"provider"`
	APIKey     string        `mapstructure:"api_key"`
	Model      string        `mapstructure:"model"`
	BaseURL    string        `mapstructure:"base_url"`
	Dimension  int           `mapstructure:"dimension"`
	BatchSize  int           `mapstructure:"batch_size"`
	BatchDelay time.Duration `mapstructure:"batch_delay"`
	CacheSize  int           `mapstructure:"cache_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
	Retry      RetryConfig   `mapstructure:"retry"`
}

// RetryConfig maps onto embedder.BackoffPolicy
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
	Multiplier  float64       `mapstructure:"multiplier"`
	Jitter      float64       `mapstructure:"jitter"`
}

// PipelineConfig tunes ingestion pacing
type PipelineConfig struct {
	FileDelay     time.Duration `mapstructure:"file_delay"`
	WatchDebounce time.Duration `mapstructure:"watch_debounce"`
}

// SearchConfig holds retrieval defaults
type SearchConfig struct {
	DefaultMode string        `mapstructure:"default_mode"`
	DefaultTopK int           `mapstructure:"default_top_k"`
	CacheSize   int           `mapstructure:"cache_size"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
}

// LogConfig configures internal/logging
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// DefaultDataDir returns ~/.docsearch, or .docsearch when there is no home directory
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "." + AppName
	}
	return filepath.Join(home, "."+AppName)
}

// setDefaults registers every key so AutomaticEnv can override it
func setDefaults(v *viper.Viper) {
	backoff := embedder.DefaultBackoffPolicy()

	v.SetDefault("data_dir", DefaultDataDir())
	v.SetDefault("index.path", "")
	v.SetDefault("tracker.path", "")

	v.SetDefault("source.root", ".")
	v.SetDefault("source.extensions", loader.DefaultExtensions)

	v.SetDefault("chunking.strategy", chunker.StrategySentence)
	v.SetDefault("chunking.max_size", chunker.DefaultMaxSize)
	v.SetDefault("chunking.overlap", chunker.DefaultOverlap)

	v.SetDefault("embedding.provider", "")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.model", "")
	v.SetDefault("embedding.base_url", "")
	v.SetDefault("embedding.dimension", 0)
	v.SetDefault("embedding.batch_size", embedder.DefaultBatchSize)
	v.SetDefault("embedding.batch_delay", embedder.DefaultBatchDelay)
	v.SetDefault("embedding.cache_size", embedder.DefaultCacheSize)
	v.SetDefault("embedding.timeout", embedder.DefaultTimeout)
	v.SetDefault("embedding.retry.max_attempts", backoff.MaxAttempts)
	v.SetDefault("embedding.retry.base_delay", backoff.BaseDelay)
	v.SetDefault("embedding.retry.max_delay", backoff.MaxDelay)
	v.SetDefault("embedding.retry.multiplier", backoff.Multiplier)
	v.SetDefault("embedding.retry.jitter", backoff.Jitter)

	v.SetDefault("pipeline.file_delay", indexer.DefaultFileDelay)
	v.SetDefault("pipeline.watch_debounce", DefaultWatchDebounce)

	v.SetDefault("search.default_mode", string(searcher.SearchModeHybrid))
	v.SetDefault("search.default_top_k", 10)
	v.SetDefault("search.cache_size", searcher.DefaultCacheSize)
	v.SetDefault("search.cache_ttl", searcher.DefaultCacheTTL)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Load reads configuration. An explicit path must exist; without one,
// docsearch.yaml is looked up in the working directory and the data directory.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(AppName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(DefaultDataDir())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	cfg.resolve()

	return &cfg, nil
}

// resolve fills derived paths and provider key fallbacks
func (c *Config) resolve() {
	c.DataDir = expandHome(c.DataDir)
	if c.Index.Path == "" {
		c.Index.Path = filepath.Join(c.DataDir, "index.db")
	}
	if c.Tracker.Path == "" {
		c.Tracker.Path = filepath.Join(c.DataDir, "processed.json")
	}
	c.Index.Path = expandHome(c.Index.Path)
	c.Tracker.Path = expandHome(c.Tracker.Path)
	c.Source.Root = expandHome(c.Source.Root)

	c.Embedding.Provider = strings.ToLower(strings.TrimSpace(c.Embedding.Provider))
	if c.Embedding.APIKey == "" {
		switch c.Embedding.Provider {
		case embedder.ProviderOpenAI:
			c.Embedding.APIKey = os.Getenv(embedder.EnvOpenAIAPIKey)
		case embedder.ProviderJina:
			c.Embedding.APIKey = os.Getenv(embedder.EnvJinaAPIKey)
		}
	}
}

// Validate checks ranges and names. It does not touch the filesystem.
func (c *Config) Validate() error {
	if c.Index.Path == "" {
		return &types.ValidationError{Field: "index.path", Message: "is required"}
	}
	if c.Tracker.Path == "" {
		return &types.ValidationError{Field: "tracker.path", Message: "is required"}
	}
	if len(c.Source.Extensions) == 0 {
		return &types.ValidationError{Field: "source.extensions", Message: "at least one extension is required"}
	}

	if !slices.Contains(chunker.Strategies(), c.Chunking.Strategy) {
		return &types.ValidationError{
			Field:   "chunking.strategy",
			Message: fmt.Sprintf("unknown strategy %q (available: %s)", c.Chunking.Strategy, strings.Join(chunker.Strategies(), ", ")),
		}
	}
	if c.Chunking.MaxSize <= 0 {
		return &types.ValidationError{Field: "chunking.max_size", Message: "must be positive"}
	}
	if c.Chunking.Overlap < 0 {
		return &types.ValidationError{Field: "chunking.overlap", Message: "must not be negative"}
	}

	switch c.Embedding.Provider {
	case "", embedder.ProviderJina, embedder.ProviderOpenAI, embedder.ProviderOllama, embedder.ProviderLocal:
	default:
		return &types.ValidationError{Field: "embedding.provider", Message: fmt.Sprintf("unsupported provider %q", c.Embedding.Provider)}
	}
	if c.Embedding.Dimension < 0 {
		return &types.ValidationError{Field: "embedding.dimension", Message: "must not be negative"}
	}
	if c.Embedding.BatchSize <= 0 || c.Embedding.BatchSize > embedder.MaxBatchSize {
		return &types.ValidationError{
			Field:   "embedding.batch_size",
			Message: fmt.Sprintf("must be between 1 and %d", embedder.MaxBatchSize),
		}
	}
	if c.Embedding.BatchDelay < 0 {
		return &types.ValidationError{Field: "embedding.batch_delay", Message: "must not be negative"}
	}
	if c.Embedding.Retry.Jitter < 0 || c.Embedding.Retry.Jitter > 1 {
		return &types.ValidationError{Field: "embedding.retry.jitter", Message: "must be within [0, 1]"}
	}

	if c.Pipeline.FileDelay < 0 {
		return &types.ValidationError{Field: "pipeline.file_delay", Message: "must not be negative"}
	}

	if _, err := searcher.ParseMode(c.Search.DefaultMode); err != nil {
		return &types.ValidationError{Field: "search.default_mode", Message: err.Error()}
	}
	if c.Search.DefaultTopK <= 0 || c.Search.DefaultTopK > searcher.MaxTopK {
		return &types.ValidationError{
			Field:   "search.default_top_k",
			Message: fmt.Sprintf("must be between 1 and %d", searcher.MaxTopK),
		}
	}
	return nil
}

// EmbedderConfig returns the provider settings for embedder.New
func (c *Config) EmbedderConfig() embedder.Config {
	return embedder.Config{
		Provider:  c.Embedding.Provider,
		APIKey:    c.Embedding.APIKey,
		Model:     c.Embedding.Model,
		BaseURL:   c.Embedding.BaseURL,
		Dimension: c.Embedding.Dimension,
		CacheSize: c.Embedding.CacheSize,
		Timeout:   c.Embedding.Timeout,
	}
}

// BackoffPolicy returns the retry schedule for the embedding coordinator
func (c *Config) BackoffPolicy() embedder.BackoffPolicy {
	r := c.Embedding.Retry
	return embedder.BackoffPolicy{
		MaxAttempts: r.MaxAttempts,
		BaseDelay:   r.BaseDelay,
		MaxDelay:    r.MaxDelay,
		Multiplier:  r.Multiplier,
		Jitter:      r.Jitter,
	}
}

// EnsureDirs creates the parent directories of the index and tracker files
func (c *Config) EnsureDirs() error {
	for _, p := range []string{c.Index.Path, c.Tracker.Path} {
		if p == ":memory:" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", p, err)
		}
	}
	return nil
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return p
		}
		return filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return p
}
