// Package embedding turns corpus passages and queries into vectors.
package embedding

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Embedder defines the interface for text embedding providers.
type Embedder interface {
	// Embed generates an embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Model returns the name of the embedding model being used.
	Model() string

	// Dimension returns the embedding vector dimension.
	// Must match the vector index dimension of the corpus store.
	Dimension() int
}

// ProviderType identifies the embedding provider.
type ProviderType string

const (
	// ProviderOllama talks to Ollama's native embed API.
	ProviderOllama ProviderType = "ollama"
	// ProviderOpenAI goes through langchaingo's OpenAI client.
	ProviderOpenAI ProviderType = "openai"
	// ProviderLangchainOllama goes through langchaingo's Ollama client.
	ProviderLangchainOllama ProviderType = "langchain-ollama"
)

// Config holds configuration for creating an Embedder.
type Config struct {
	Provider ProviderType

	// Ollama: "all-minilm:l6-v2" (384-dim), "nomic-embed-text" (768-dim)
	Model string

	// Dimension is the required output dimension; 0 uses the provider default.
	Dimension int

	OllamaHost   string
	OpenAIAPIKey string
}

// New creates an Embedder based on the provided configuration.
func New(cfg Config) (Embedder, error) {
	switch cfg.Provider {
	case ProviderOllama, "":
		return NewOllamaClient(cfg.OllamaHost, cfg.Model, cfg.Dimension)
	case ProviderOpenAI, ProviderLangchainOllama:
		return NewLangchainEmbedder(cfg)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
}

// EmbedAll embeds texts in batches of batchSize with at most concurrency
// batches in flight. Results keep input order.
func EmbedAll(ctx context.Context, e Embedder, texts []string, batchSize, concurrency int) ([][]float32, error) {
	if batchSize <= 0 {
		batchSize = 32
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	out := make([][]float32, len(texts))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))
		g.Go(func() error {
			vectors, err := e.EmbedBatch(ctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("embed texts %d-%d: %w", start, end, err)
			}
			copy(out[start:end], vectors)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func checkDimensions(vectors [][]float32, want int, model string) error {
	for i, v := range vectors {
		if len(v) != want {
			return fmt.Errorf("embedding %d dimension mismatch: got %d, want %d (model: %s)", i, len(v), want, model)
		}
	}
	return nil
}
