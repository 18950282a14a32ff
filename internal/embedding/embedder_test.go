package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"go.uber.org/zap"

	"github.com/kiokusearch/kioku/internal/config"
)

// countingEmbedder records which texts reach the underlying provider.
type countingEmbedder struct {
	dims       int
	batchCalls int
	seen       []string
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.batchCalls++
	c.seen = append(c.seen, texts...)
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, c.dims)
		v[0] = float32(len(text))
		out[i] = v
	}
	return out, nil
}

func (c *countingEmbedder) Dimensions() int { return c.dims }
func (c *countingEmbedder) Close() error    { return nil }

func TestMockEmbedder_Deterministic(t *testing.T) {
	e := NewMockEmbedder(64)
	ctx := context.Background()

	a, err := e.Embed(ctx, "the same text")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	b, err := e.Embed(ctx, "the same text")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(a) != 64 {
		t.Fatalf("got %d dimensions, want 64", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("embeddings differ at %d", i)
		}
	}

	var sum float64
	for _, v := range a {
		sum += float64(v) * float64(v)
	}
	if math.Abs(sum-1.0) > 1e-4 {
		t.Errorf("embedding norm² = %f, want 1", sum)
	}
}

func TestMockEmbedder_EmptyText(t *testing.T) {
	e := NewMockEmbedder(8)
	if _, err := e.Embed(context.Background(), ""); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("got %v, want ErrEmptyInput", err)
	}
}

func TestOpenAIEmbedder_EmptyBatch(t *testing.T) {
	e, err := NewOpenAIEmbedder("test-key", "text-embedding-3-small", 8, "", 0)
	if err != nil {
		t.Fatalf("NewOpenAIEmbedder: %v", err)
	}
	got, err := e.EmbedBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d vectors for empty input", len(got))
	}
}

func TestWithCache_BatchSendsOnlyMisses(t *testing.T) {
	inner := &countingEmbedder{dims: 4}
	e := WithCache(inner, 16)
	ctx := context.Background()

	if _, err := e.EmbedBatch(ctx, []string{"aa", "bbb"}); err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	got, err := e.EmbedBatch(ctx, []string{"aa", "bbb", "cccc"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}

	if inner.batchCalls != 2 {
		t.Errorf("inner called %d times, want 2", inner.batchCalls)
	}
	if len(inner.seen) != 3 || inner.seen[2] != "cccc" {
		t.Errorf("inner saw %v, want only the miss on the second call", inner.seen)
	}
	// Results stay ordered by input regardless of cache hits.
	wantFirst := []float32{2, 3, 4}
	for i, w := range wantFirst {
		if got[i][0] != w {
			t.Errorf("result %d: got %f, want %f", i, got[i][0], w)
		}
	}
}

func TestWithCache_EvictionKeepsServing(t *testing.T) {
	inner := &countingEmbedder{dims: 4}
	e := WithCache(inner, 2)
	ctx := context.Background()

	for _, text := range []string{"a", "b", "c", "a"} {
		if _, err := e.Embed(ctx, text); err != nil {
			t.Fatalf("Embed(%q): %v", text, err)
		}
	}
	// "a" was evicted by "c", so it is fetched twice.
	if inner.batchCalls != 4 {
		t.Errorf("inner called %d times, want 4", inner.batchCalls)
	}
}

func TestWithRateLimit_PassesThrough(t *testing.T) {
	inner := &countingEmbedder{dims: 4}
	e := WithRateLimit(inner, 1000)

	got, err := e.EmbedBatch(context.Background(), []string{"xy"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(got) != 1 || got[0][0] != 2 {
		t.Errorf("unexpected result %v", got)
	}
	if e.Dimensions() != 4 {
		t.Errorf("Dimensions() = %d, want 4", e.Dimensions())
	}
}

func TestIsRetryable(t *testing.T) {
	retryable := &ProviderError{Provider: "openai", Retryable: true, Err: errors.New("503")}
	if !IsRetryable(retryable) {
		t.Error("retryable provider error not recognized")
	}
	if !IsRetryable(fmt.Errorf("batch 3: %w", retryable)) {
		t.Error("wrapped retryable provider error not recognized")
	}
	fatal := &ProviderError{Provider: "openai", Retryable: false, Err: errors.New("400")}
	if IsRetryable(fatal) {
		t.Error("non-retryable provider error misclassified")
	}
	if IsRetryable(errors.New("plain")) {
		t.Error("plain error misclassified as retryable")
	}
}

func TestNew_MockProvider(t *testing.T) {
	e, err := New(config.EmbeddingConfig{
		Provider:   config.ProviderMock,
		Dimensions: 16,
		CacheSize:  8,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Close()

	if e.Dimensions() != 16 {
		t.Errorf("Dimensions() = %d, want 16", e.Dimensions())
	}
	v, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(v) != 16 {
		t.Errorf("got %d dimensions, want 16", len(v))
	}
}

func TestNew_UnknownProvider(t *testing.T) {
	if _, err := New(config.EmbeddingConfig{Provider: "llama"}, nil); err == nil {
		t.Error("expected error for unknown provider")
	}
}
