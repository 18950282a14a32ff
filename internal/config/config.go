// Package config provides configuration loading for the kioku engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

// Embedding providers.
const (
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
	ProviderONNX   = "onnx"
)

// Config holds all configuration for the engine.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Sync      SyncConfig      `yaml:"sync"`
	Watch     WatchConfig     `yaml:"watch"`
	Backup    BackupConfig    `yaml:"backup"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig selects the durable backend and its paths.
type StorageConfig struct {
	// Backend is "sqlite" (default) or "badger".
	Backend          string `yaml:"backend"`
	DatabasePath     string `yaml:"database_path"`
	BadgerPath       string `yaml:"badger_path"`
	KeywordIndexPath string `yaml:"keyword_index_path"`
	// KeywordEnabled toggles the bleve keyword index used for hybrid
	// retrieval. Defaults to true when unset.
	KeywordEnabled *bool `yaml:"keyword_enabled"`
}

// KeywordEnabledOrDefault returns whether the keyword index is enabled;
// defaults to true when unset.
func (s *StorageConfig) KeywordEnabledOrDefault() bool {
	if s.KeywordEnabled != nil {
		return *s.KeywordEnabled
	}
	return true
}

// ActivePaths returns the storage paths in use (for disk usage reporting).
func (s *StorageConfig) ActivePaths() []string {
	paths := make([]string, 0, 2)
	switch s.Backend {
	case BackendBadger:
		paths = append(paths, s.BadgerPath)
	default:
		paths = append(paths, s.DatabasePath)
	}
	if s.KeywordEnabledOrDefault() {
		paths = append(paths, s.KeywordIndexPath)
	}
	return paths
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider is "openai" (any OpenAI-compatible endpoint), "mock", or
	// "onnx" (requires a cgo build).
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	BaseURL    string `yaml:"base_url"`
	// APIKeyEnv names the environment variable holding the API key. The key
	// itself never lives in the config file.
	APIKeyEnv string `yaml:"api_key_env"`
	BatchSize int    `yaml:"batch_size"`
	// MaxRetries and RetryBaseMS control the pipeline's backoff for
	// retryable provider failures.
	MaxRetries     int `yaml:"max_retries"`
	RetryBaseMS    int `yaml:"retry_base_ms"`
	TimeoutSeconds int `yaml:"timeout_seconds"`
	// RequestsPerSecond rate-limits provider calls; 0 means unlimited.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	CacheSize         int     `yaml:"cache_size"`
	// ModelPath and MaxTokens apply to the onnx provider only.
	ModelPath string `yaml:"model_path"`
	MaxTokens int    `yaml:"max_tokens"`
}

// RetryBase returns the base backoff delay.
func (e *EmbeddingConfig) RetryBase() time.Duration {
	return time.Duration(e.RetryBaseMS) * time.Millisecond
}

// Timeout returns the per-request provider timeout.
func (e *EmbeddingConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutSeconds) * time.Second
}

// ChunkingConfig holds text segmentation settings.
type ChunkingConfig struct {
	MaxChunkSize int `yaml:"max_chunk_size"`
	OverlapSize  int `yaml:"overlap_size"`
	// CodeLineWindow is the fallback line window for code without
	// recognizable declaration boundaries.
	CodeLineWindow int `yaml:"code_line_window"`
}

// RetrievalConfig holds retrieval defaults.
type RetrievalConfig struct {
	DefaultLimit  int     `yaml:"default_limit"`
	MaxLimit      int     `yaml:"max_limit"`
	MinScore      float64 `yaml:"min_score"`
	SnippetLength int     `yaml:"snippet_length"`
	// KeywordWeight is the default hybrid blend; 0 keeps retrieval purely
	// vector-based unless a query overrides it.
	KeywordWeight float64 `yaml:"keyword_weight"`
}

// SyncConfig controls flushing of dirty records to durable storage.
type SyncConfig struct {
	FlushThreshold         int `yaml:"flush_threshold"`
	FlushIntervalSeconds   int `yaml:"flush_interval_seconds"`
	ShutdownTimeoutSeconds int `yaml:"shutdown_timeout_seconds"`
}

// FlushInterval returns the periodic flush interval.
func (s *SyncConfig) FlushInterval() time.Duration {
	return time.Duration(s.FlushIntervalSeconds) * time.Second
}

// ShutdownTimeout returns the bound on the blocking shutdown flush.
func (s *SyncConfig) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeoutSeconds) * time.Second
}

// WatchConfig holds directory watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true
// when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// BackupConfig holds S3-compatible backup upload settings. Credentials come
// from the named environment variables.
type BackupConfig struct {
	Endpoint     string `yaml:"endpoint"`
	Bucket       string `yaml:"bucket"`
	Prefix       string `yaml:"prefix"`
	AccessKeyEnv string `yaml:"access_key_env"`
	SecretKeyEnv string `yaml:"secret_key_env"`
	UseSSL       *bool  `yaml:"use_ssl"`
}

// UseSSLOrDefault returns whether to use TLS for the endpoint; defaults to
// true when unset.
func (b *BackupConfig) UseSSLOrDefault() bool {
	if b.UseSSL != nil {
		return *b.UseSSL
	}
	return true
}

// Load reads and parses the config file at path, applies defaults, expands
// paths, and validates the result. Any failure here is a startup-aborting
// configuration error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.BadgerPath = expandPath(cfg.Storage.BadgerPath, configDir)
	cfg.Storage.KeywordIndexPath = expandPath(cfg.Storage.KeywordIndexPath, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations that cannot produce a working engine.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendSQLite, BackendBadger:
	default:
		return fmt.Errorf("invalid config: unknown storage backend %q (supported: %s, %s)",
			c.Storage.Backend, BackendSQLite, BackendBadger)
	}
	switch c.Embedding.Provider {
	case ProviderOpenAI, ProviderMock, ProviderONNX:
	default:
		return fmt.Errorf("invalid config: unknown embedding provider %q (supported: %s, %s, %s)",
			c.Embedding.Provider, ProviderOpenAI, ProviderMock, ProviderONNX)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("invalid config: embedding dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	if c.Chunking.MaxChunkSize <= 0 {
		return fmt.Errorf("invalid config: max_chunk_size must be positive, got %d", c.Chunking.MaxChunkSize)
	}
	if c.Chunking.OverlapSize < 0 || c.Chunking.OverlapSize >= c.Chunking.MaxChunkSize {
		return fmt.Errorf("invalid config: overlap_size %d must be in [0, max_chunk_size)", c.Chunking.OverlapSize)
	}
	return nil
}

// Save writes the config to path. Used for persisting watch directory
// add/remove.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are
// relative to configDir; other relative paths are relative to the home
// directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
