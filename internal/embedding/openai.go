package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	// The embeddings endpoint accepts up to 2048 inputs per request.
	openAIMaxBatch     = 2048
	openAIProviderName = "openai"
)

// OpenAIEmbedder calls the OpenAI embeddings API. Setting a base URL makes it
// work against any OpenAI-compatible server.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
	dim    int
}

// NewOpenAIEmbedder creates an OpenAI embedder. The SDK's internal retries
// are disabled: retry policy belongs to the caller, which classifies
// failures via ProviderError.
func NewOpenAIEmbedder(apiKey, model string, dimensions int, baseURL string, timeout time.Duration) (*OpenAIEmbedder, error) {
	if model == "" {
		return nil, errors.New("embedding: model is required")
	}
	if dimensions <= 0 {
		return nil, fmt.Errorf("embedding: dimensions must be positive, got %d", dimensions)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: timeout}),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)

	return &OpenAIEmbedder{
		client: &client,
		model:  model,
		dim:    dimensions,
	}, nil
}

// Embed returns the embedding for a single text.
func (o *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}
	vecs, err := o.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch returns embeddings for texts in order. An empty input returns
// an empty result without an API call. Batches beyond the endpoint limit are
// split transparently.
func (o *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	result := make([][]float32, len(texts))
	for i := 0; i < len(texts); i += openAIMaxBatch {
		end := min(i+openAIMaxBatch, len(texts))
		vecs, err := o.callAPI(ctx, texts[i:end])
		if err != nil {
			return nil, err
		}
		copy(result[i:], vecs)
	}
	return result, nil
}

// Dimensions returns the configured vector dimensionality.
func (o *OpenAIEmbedder) Dimensions() int { return o.dim }

// Close releases nothing; the HTTP client holds no persistent resources.
func (o *OpenAIEmbedder) Close() error { return nil }

func (o *OpenAIEmbedder) callAPI(ctx context.Context, texts []string) ([][]float32, error) {
	params := openai.EmbeddingNewParams{
		Model:          o.model,
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Dimensions:     openai.Int(int64(o.dim)),
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	}

	resp, err := o.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, o.classify(ctx, err)
	}

	vecs := make([][]float32, len(texts))
	for _, item := range resp.Data {
		idx := item.Index
		if idx < 0 || idx >= int64(len(texts)) {
			return nil, &ProviderError{
				Provider: openAIProviderName,
				Err:      fmt.Errorf("unexpected embedding index %d for batch size %d", idx, len(texts)),
			}
		}
		vecs[idx] = float64sToFloat32s(item.Embedding)
	}
	for i, v := range vecs {
		if v == nil {
			return nil, &ProviderError{
				Provider: openAIProviderName,
				Err:      fmt.Errorf("missing embedding for index %d", i),
			}
		}
		if len(v) != o.dim {
			return nil, &ProviderError{
				Provider: openAIProviderName,
				Err:      fmt.Errorf("embedding %d has %d dimensions, want %d", i, len(v), o.dim),
			}
		}
	}
	return vecs, nil
}

// classify wraps an API error with its retry classification. Cancellation of
// the surrounding context is never retryable; 429 and 5xx responses and
// transport failures are.
func (o *OpenAIEmbedder) classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return &ProviderError{Provider: openAIProviderName, Retryable: false, Err: err}
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		retryable := apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
		return &ProviderError{Provider: openAIProviderName, Retryable: retryable, Err: err}
	}
	return &ProviderError{Provider: openAIProviderName, Retryable: true, Err: err}
}

func float64sToFloat32s(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
