// Package embedding turns text into dense float32 vectors via a pluggable
// provider, with LRU caching and client-side rate limiting as decorators.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/kiokusearch/kioku/internal/config"
)

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// ErrEmptyInput is returned when a single text to embed is empty.
var ErrEmptyInput = errors.New("embedding: empty input")

// ProviderError wraps a provider failure with a retry classification.
// Rate limits, server errors, and transport failures are retryable;
// invalid requests and dimension mismatches are not.
type ProviderError struct {
	Provider  string
	Retryable bool
	Err       error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s embedding: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a provider failure worth retrying.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// New builds the configured provider and wraps it with rate limiting and
// caching when enabled. Configuration problems (unknown provider, missing
// API key) are reported here, before any job runs.
func New(cfg config.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		emb Embedder
		err error
	)
	switch cfg.Provider {
	case config.ProviderOpenAI:
		apiKey := os.Getenv(cfg.APIKeyEnv)
		if apiKey == "" {
			return nil, fmt.Errorf("embedding: environment variable %s is not set", cfg.APIKeyEnv)
		}
		emb, err = NewOpenAIEmbedder(apiKey, cfg.Model, cfg.Dimensions, cfg.BaseURL, cfg.Timeout())
	case config.ProviderONNX:
		emb, err = NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens)
	case config.ProviderMock:
		emb = NewMockEmbedder(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("embedding: unknown provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.RequestsPerSecond > 0 {
		emb = WithRateLimit(emb, cfg.RequestsPerSecond)
	}
	if cfg.CacheSize > 0 {
		emb = WithCache(emb, cfg.CacheSize)
	}

	logger.Info("embedding provider ready",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
		zap.Int("dimensions", cfg.Dimensions))
	return emb, nil
}
