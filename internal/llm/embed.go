package llm

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	goption "google.golang.org/api/option"
)

// Embedder turns text into dense vectors for similarity search.
type Embedder interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Model names the embedding model, recorded alongside stored vectors.
	Model() string
}

// NewEmbedder creates an Embedder for the configured provider. It returns
// (nil, nil) when the provider has no embeddings API or no embedding model is
// configured; callers then fall back to full-text ranking.
func NewEmbedder(ctx context.Context, config *Config, apiKey string) (Embedder, error) {
	if config == nil || config.EmbeddingModel == "" {
		return nil, nil
	}

	var (
		embedder Embedder
		err      error
	)
	switch config.Provider {
	case ProviderOpenAI:
		embedder, err = NewOpenAIEmbedder(config.EmbeddingModel, apiKey)
	case ProviderGemini:
		embedder, err = NewGeminiEmbedder(ctx, config.EmbeddingModel, apiKey)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return embedder, nil
}

// OpenAIEmbedder implements Embedder using the OpenAI embeddings endpoint.
type OpenAIEmbedder struct {
	client openai.Client
	model  string
}

// NewOpenAIEmbedder creates an OpenAI embedder.
func NewOpenAIEmbedder(model, apiKey string, opts ...option.RequestOption) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &OpenAIEmbedder{client: openai.NewClient(opts...), model: model}, nil
}

// Embed implements Embedder.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI embeddings failed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("OpenAI embeddings returned %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(out) {
			return nil, fmt.Errorf("OpenAI embeddings returned out-of-range index %d", d.Index)
		}
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		out[d.Index] = vec
	}
	return out, nil
}

// Model implements Embedder.
func (e *OpenAIEmbedder) Model() string { return e.model }

// GeminiEmbedder implements Embedder using the Gemini embedding model.
type GeminiEmbedder struct {
	client *genai.Client
	model  string
}

// NewGeminiEmbedder creates a Gemini embedder.
func NewGeminiEmbedder(ctx context.Context, model, apiKey string) (*GeminiEmbedder, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	client, err := genai.NewClient(ctx, goption.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiEmbedder{client: client, model: model}, nil
}

// Embed implements Embedder.
func (e *GeminiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	em := e.client.EmbeddingModel(e.model)
	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}

	res, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("gemini embeddings failed: %w", err)
	}
	if len(res.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini embeddings returned %d vectors for %d inputs", len(res.Embeddings), len(texts))
	}

	out := make([][]float32, len(texts))
	for i, emb := range res.Embeddings {
		out[i] = emb.Values
	}
	return out, nil
}

// Model implements Embedder.
func (e *GeminiEmbedder) Model() string { return e.model }

// Close releases the underlying Gemini client.
func (e *GeminiEmbedder) Close() error {
	return e.client.Close()
}
