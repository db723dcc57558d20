package retrieval

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/diveroast/internal/db"
	"github.com/raphaelgruber/diveroast/internal/embedding"
	"github.com/raphaelgruber/diveroast/internal/models"
)

// SurrealBackend searches the SurrealDB passage table: HNSW for the
// semantic query, BM25 for the lexical one.
type SurrealBackend struct {
	db       *db.Client
	embedder embedding.Embedder
}

var (
	_ Backend = (*SurrealBackend)(nil)
	_ Store   = (*SurrealBackend)(nil)
)

// NewSurrealBackend creates a backend over an initialized client.
func NewSurrealBackend(client *db.Client, embedder embedding.Embedder) *SurrealBackend {
	return &SurrealBackend{db: client, embedder: embedder}
}

// Name implements Backend.
func (b *SurrealBackend) Name() string { return "surreal" }

// SemanticSearch implements Backend. Cosine similarity is already in [0, 1]
// for normalized embeddings; negative values are clamped.
func (b *SurrealBackend) SemanticSearch(ctx context.Context, query, category string, k int) ([]models.ScoredPassage, error) {
	vec, err := b.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := b.db.SemanticSearch(ctx, vec, category, k)
	if err != nil {
		return nil, err
	}
	return convertHits(hits, models.SearchSemantic, func(s float64) float64 { return max(0, min(1, s)) }), nil
}

// LexicalSearch implements Backend.
func (b *SurrealBackend) LexicalSearch(ctx context.Context, query, category string, k int) ([]models.ScoredPassage, error) {
	hits, err := b.db.LexicalSearch(ctx, query, category, k)
	if err != nil {
		return nil, err
	}
	return convertHits(hits, models.SearchLexical, normalizeBM25), nil
}

// ReplacePassages implements Store.
func (b *SurrealBackend) ReplacePassages(ctx context.Context, passages []models.PassageInput) (int, error) {
	return b.db.ReplacePassages(ctx, passages)
}

// CountPassages implements Store.
func (b *SurrealBackend) CountPassages(ctx context.Context) (int, error) {
	counts, err := b.db.CountPassages(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, c := range counts {
		total += c.Count
	}
	return total, nil
}

func convertHits(hits []db.PassageHit, mode models.SearchMode, score func(float64) float64) []models.ScoredPassage {
	out := make([]models.ScoredPassage, 0, len(hits))
	for _, h := range hits {
		id, err := models.RecordIDString(h.ID)
		if err != nil {
			id = fmt.Sprint(h.ID.ID)
		}
		out = append(out, models.ScoredPassage{
			SourceID: sourceID(h.URL, id),
			Content:  h.Content,
			Title:    h.Title,
			URL:      h.URL,
			Category: h.Category,
			Score:    score(h.Score),
			Mode:     mode,
		})
	}
	return out
}
