package embedding

import (
	"context"

	"golang.org/x/time/rate"
)

// limitedEmbedder spaces provider calls out with a token bucket so a large
// ingestion job cannot exhaust the provider's request quota.
type limitedEmbedder struct {
	inner   Embedder
	limiter *rate.Limiter
}

// WithRateLimit wraps inner so at most rps requests per second reach the
// provider. One batch call consumes one token.
func WithRateLimit(inner Embedder, rps float64) Embedder {
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &limitedEmbedder{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (l *limitedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return l.inner.Embed(ctx, text)
}

func (l *limitedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return l.inner.EmbedBatch(ctx, texts)
}

func (l *limitedEmbedder) Dimensions() int { return l.inner.Dimensions() }

func (l *limitedEmbedder) Close() error { return l.inner.Close() }
