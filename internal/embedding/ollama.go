package embedding

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
)

const (
	// DefaultOllamaModel is the embedding model that produces 384-dimensional vectors.
	DefaultOllamaModel = "all-minilm:l6-v2"

	// DefaultOllamaDimension is the dimension for all-minilm:l6-v2.
	DefaultOllamaDimension = 384
)

// OllamaClient implements Embedder using a local Ollama server.
type OllamaClient struct {
	client    *api.Client
	model     string
	dimension int
}

var _ Embedder = (*OllamaClient)(nil)

// NewOllamaClient creates an Ollama embedding client. An empty host falls
// back to OLLAMA_HOST; empty model and zero dimension use the defaults.
func NewOllamaClient(host, model string, dimension int) (*OllamaClient, error) {
	if model == "" {
		model = DefaultOllamaModel
	}
	if dimension == 0 {
		dimension = DefaultOllamaDimension
	}

	var client *api.Client
	if host == "" {
		c, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("create ollama client: %w", err)
		}
		client = c
	} else {
		base, err := url.Parse(host)
		if err != nil {
			return nil, fmt.Errorf("parse ollama host %q: %w", host, err)
		}
		client = api.NewClient(base, http.DefaultClient)
	}

	return &OllamaClient{client: client, model: model, dimension: dimension}, nil
}

// Model returns the configured embedding model name.
func (c *OllamaClient) Model() string {
	return c.model
}

// Dimension returns the expected embedding dimension.
func (c *OllamaClient) Dimension() int {
	return c.dimension
}

// Embed generates an embedding vector for the given text.
func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.embed(ctx, text, 1)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for multiple texts in a single request.
func (c *OllamaClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	vectors, err := c.embed(ctx, texts, len(texts))
	if err != nil {
		return nil, fmt.Errorf("embed batch: %w", err)
	}
	return vectors, nil
}

func (c *OllamaClient) embed(ctx context.Context, input any, want int) ([][]float32, error) {
	resp, err := c.client.Embed(ctx, &api.EmbedRequest{Model: c.model, Input: input})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != want {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(resp.Embeddings), want)
	}
	if err := checkDimensions(resp.Embeddings, c.dimension, c.model); err != nil {
		return nil, err
	}
	return resp.Embeddings, nil
}
