package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// LangchainEmbedder wraps langchaingo embeddings with dimension validation.
type LangchainEmbedder struct {
	model     embeddings.Embedder
	dimension int
	modelName string
}

var _ Embedder = (*LangchainEmbedder)(nil)

// NewLangchainEmbedder creates an OpenAI or Ollama embedder through langchaingo.
func NewLangchainEmbedder(cfg Config) (*LangchainEmbedder, error) {
	var client embeddings.EmbedderClient

	switch cfg.Provider {
	case ProviderLangchainOllama:
		llm, err := ollama.New(
			ollama.WithModel(cfg.Model),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama client: %w", err)
		}
		client = llm

	case ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		llm, err := openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithEmbeddingModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai client: %w", err)
		}
		client = llm

	default:
		return nil, fmt.Errorf("unsupported langchain embedding provider: %s", cfg.Provider)
	}

	model, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("create %s embedder: %w", cfg.Provider, err)
	}
	return &LangchainEmbedder{model: model, dimension: cfg.Dimension, modelName: cfg.Model}, nil
}

// Embed generates an embedding vector for text.
func (e *LangchainEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	vector, err := e.model.EmbedQuery(ctx, text)
	if err != nil {
		slog.Warn("embedding failed", "model", e.modelName, "text_len", len(text),
			"duration_ms", time.Since(start).Milliseconds(), "error", err)
		return nil, fmt.Errorf("embed: %w", err)
	}
	if err := checkDimensions([][]float32{vector}, e.dimension, e.modelName); err != nil {
		return nil, err
	}
	slog.Debug("embedding complete", "model", e.modelName, "text_len", len(text),
		"duration_ms", time.Since(start).Milliseconds())
	return vector, nil
}

// EmbedBatch generates embeddings for multiple texts.
func (e *LangchainEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	vectors, err := e.model.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed batch: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("count mismatch: got %d, want %d", len(vectors), len(texts))
	}
	if err := checkDimensions(vectors, e.dimension, e.modelName); err != nil {
		return nil, err
	}
	return vectors, nil
}

// Model returns the embedding model name.
func (e *LangchainEmbedder) Model() string {
	return e.modelName
}

// Dimension returns the expected embedding dimension.
func (e *LangchainEmbedder) Dimension() int {
	return e.dimension
}
