package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/raphaelgruber/diveroast/internal/embedding"
	dmodels "github.com/raphaelgruber/diveroast/internal/models"
)

// PassageClass is the Weaviate class holding corpus chunks.
const PassageClass = "DanPassage"

const weaviateBatchSize = 100

// passageNamespace seeds deterministic object ids.
var passageNamespace = uuid.MustParse("5b0c7f2e-6a43-4b8e-9f55-6d1f1d2d7a10")

// WeaviateBackend searches a Weaviate class with NearVector and BM25 queries.
type WeaviateBackend struct {
	client   *weaviate.Client
	embedder embedding.Embedder
	logger   *slog.Logger
}

var (
	_ Backend = (*WeaviateBackend)(nil)
	_ Store   = (*WeaviateBackend)(nil)
)

// NewWeaviateBackend connects to rawURL (e.g. http://localhost:8080).
func NewWeaviateBackend(rawURL string, embedder embedding.Embedder, logger *slog.Logger) (*WeaviateBackend, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse weaviate url %q: %w", rawURL, err)
	}
	client, err := weaviate.NewClient(weaviate.Config{Host: u.Host, Scheme: u.Scheme})
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WeaviateBackend{client: client, embedder: embedder, logger: logger}, nil
}

// Name implements Backend.
func (b *WeaviateBackend) Name() string { return "weaviate" }

func passageClass() *models.Class {
	return &models.Class{
		Class:       PassageClass,
		Description: "Chunked DAN incident reports and safety guidelines",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{Name: "content", DataType: []string{"text"}},
			{Name: "title", DataType: []string{"text"}},
			{Name: "url", DataType: []string{"text"}, Tokenization: "field"},
			{Name: "category", DataType: []string{"text"}, Tokenization: "field"},
			{Name: "position", DataType: []string{"int"}},
		},
	}
}

// EnsureSchema creates the passage class when missing.
func (b *WeaviateBackend) EnsureSchema(ctx context.Context) error {
	if _, err := b.client.Schema().ClassGetter().WithClassName(PassageClass).Do(ctx); err == nil {
		return nil
	}
	b.logger.Info("creating weaviate class", "class", PassageClass)
	if err := b.client.Schema().ClassCreator().WithClass(passageClass()).Do(ctx); err != nil {
		return fmt.Errorf("create class %s: %w", PassageClass, err)
	}
	return nil
}

// SemanticSearch implements Backend. Certainty is already in [0, 1].
func (b *WeaviateBackend) SemanticSearch(ctx context.Context, query, category string, k int) ([]dmodels.ScoredPassage, error) {
	vec, err := b.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	get := b.client.GraphQL().Get().
		WithClassName(PassageClass).
		WithFields(passageFields("certainty")...).
		WithNearVector(b.client.GraphQL().NearVectorArgBuilder().WithVector(vec)).
		WithLimit(k)
	if where := categoryFilter(category); where != nil {
		get = get.WithWhere(where)
	}
	return b.run(ctx, get, dmodels.SearchSemantic, "certainty", func(s float64) float64 { return s })
}

// LexicalSearch implements Backend.
func (b *WeaviateBackend) LexicalSearch(ctx context.Context, query, category string, k int) ([]dmodels.ScoredPassage, error) {
	get := b.client.GraphQL().Get().
		WithClassName(PassageClass).
		WithFields(passageFields("score")...).
		WithBM25(b.client.GraphQL().Bm25ArgBuilder().WithQuery(query).WithProperties("content", "title")).
		WithLimit(k)
	if where := categoryFilter(category); where != nil {
		get = get.WithWhere(where)
	}
	return b.run(ctx, get, dmodels.SearchLexical, "score", normalizeBM25)
}

func passageFields(scoreField string) []graphql.Field {
	return []graphql.Field{
		{Name: "content"},
		{Name: "title"},
		{Name: "url"},
		{Name: "category"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "id"}, {Name: scoreField}}},
	}
}

func categoryFilter(category string) *filters.WhereBuilder {
	if category == "" {
		return nil
	}
	return filters.Where().
		WithPath([]string{"category"}).
		WithOperator(filters.Equal).
		WithValueText(category)
}

type getter interface {
	Do(ctx context.Context) (*models.GraphQLResponse, error)
}

func (b *WeaviateBackend) run(ctx context.Context, get getter, mode dmodels.SearchMode, scoreField string, norm func(float64) float64) ([]dmodels.ScoredPassage, error) {
	result, err := get.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate %s search: %w", mode, err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("weaviate %s search: %s", mode, result.Errors[0].Message)
	}
	return parsePassages(result.Data, mode, scoreField, norm), nil
}

// parsePassages reads Get.DanPassage objects from a GraphQL response.
func parsePassages(data map[string]models.JSONObject, mode dmodels.SearchMode, scoreField string, norm func(float64) float64) []dmodels.ScoredPassage {
	get, ok := data["Get"].(map[string]any)
	if !ok {
		return []dmodels.ScoredPassage{}
	}
	objects, ok := get[PassageClass].([]any)
	if !ok {
		return []dmodels.ScoredPassage{}
	}

	out := make([]dmodels.ScoredPassage, 0, len(objects))
	for _, obj := range objects {
		m, ok := obj.(map[string]any)
		if !ok {
			continue
		}
		additional, _ := m["_additional"].(map[string]any)
		out = append(out, dmodels.ScoredPassage{
			SourceID: sourceID(getString(m, "url"), getString(additional, "id")),
			Content:  getString(m, "content"),
			Title:    getString(m, "title"),
			URL:      getString(m, "url"),
			Category: getString(m, "category"),
			Score:    norm(getNumber(additional, scoreField)),
			Mode:     mode,
		})
	}
	return out
}

func getString(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// getNumber accepts both JSON numbers and the numeric strings BM25 scores arrive as.
func getNumber(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return 0
}

// ReplacePassages implements Store by recreating the class and batch importing.
func (b *WeaviateBackend) ReplacePassages(ctx context.Context, passages []dmodels.PassageInput) (int, error) {
	if err := b.client.Schema().ClassDeleter().WithClassName(PassageClass).Do(ctx); err != nil {
		b.logger.Debug("delete class before replace", "class", PassageClass, "error", err)
	}
	if err := b.EnsureSchema(ctx); err != nil {
		return 0, err
	}

	written := 0
	for start := 0; start < len(passages); start += weaviateBatchSize {
		end := min(start+weaviateBatchSize, len(passages))
		objects := make([]*models.Object, 0, end-start)
		for _, p := range passages[start:end] {
			objects = append(objects, &models.Object{
				Class:  PassageClass,
				ID:     strfmt.UUID(uuid.NewSHA1(passageNamespace, []byte(fmt.Sprintf("%s#%d", p.URL, p.Position))).String()),
				Vector: p.Embedding,
				Properties: map[string]any{
					"content":  p.Content,
					"title":    p.Title,
					"url":      p.URL,
					"category": p.Category,
					"position": p.Position,
				},
			})
		}

		resp, err := b.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
		if err != nil {
			return written, fmt.Errorf("batch import %d-%d: %w", start, end, err)
		}
		for _, item := range resp {
			if item.Result != nil && item.Result.Errors == nil {
				written++
			}
		}
	}
	return written, nil
}

// CountPassages implements Store.
func (b *WeaviateBackend) CountPassages(ctx context.Context) (int, error) {
	result, err := b.client.GraphQL().Aggregate().
		WithClassName(PassageClass).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("count passages: %w", err)
	}
	if len(result.Errors) > 0 {
		return 0, fmt.Errorf("count passages: %s", result.Errors[0].Message)
	}
	agg, _ := result.Data["Aggregate"].(map[string]any)
	groups, _ := agg[PassageClass].([]any)
	if len(groups) == 0 {
		return 0, nil
	}
	group, _ := groups[0].(map[string]any)
	meta, _ := group["meta"].(map[string]any)
	return int(getNumber(meta, "count")), nil
}
