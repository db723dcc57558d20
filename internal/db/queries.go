package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/surrealdb/surrealdb.go"

	"github.com/raphaelgruber/diveroast/internal/models"
)

// insertBatchSize bounds the number of passages sent in one INSERT.
const insertBatchSize = 200

// PassageHit is a passage row with the score its search produced.
type PassageHit struct {
	models.Passage
	Score float64 `json:"score"`
}

// ReplacePassages swaps the whole corpus for passages inside one
// transaction, so readers never see a half-written corpus.
func (c *Client) ReplacePassages(ctx context.Context, passages []models.PassageInput) (int, error) {
	var sql strings.Builder
	vars := map[string]any{}
	sql.WriteString("BEGIN TRANSACTION;\nDELETE passage;\n")
	for i, start := 0, 0; start < len(passages); i, start = i+1, start+insertBatchSize {
		end := min(start+insertBatchSize, len(passages))
		name := fmt.Sprintf("rows%d", i)
		vars[name] = passages[start:end]
		fmt.Fprintf(&sql, "INSERT INTO passage $%s;\n", name)
	}
	sql.WriteString("COMMIT TRANSACTION;")

	if _, err := surrealdb.Query[any](ctx, c.db, sql.String(), vars); err != nil {
		return 0, fmt.Errorf("replace passages: %w", wrapQueryError(err))
	}
	return len(passages), nil
}

// InsertPassages appends passages in batches.
func (c *Client) InsertPassages(ctx context.Context, passages []models.PassageInput) (int, error) {
	inserted := 0
	for start := 0; start < len(passages); start += insertBatchSize {
		end := min(start+insertBatchSize, len(passages))
		batch := passages[start:end]
		if _, err := surrealdb.Query[any](ctx, c.db, `INSERT INTO passage $rows`, map[string]any{"rows": batch}); err != nil {
			return inserted, fmt.Errorf("insert passages %d-%d: %w", start, end, wrapQueryError(err))
		}
		inserted += len(batch)
	}
	return inserted, nil
}

// SemanticSearch returns the k nearest passages by cosine similarity.
// An empty category searches the whole corpus.
func (c *Client) SemanticSearch(ctx context.Context, embedding []float32, category string, k int) ([]PassageHit, error) {
	categoryClause := ""
	if category != "" {
		categoryClause = "AND category = $category"
	}

	// HNSW with ef=40; over-fetch so the category filter still leaves k rows.
	sql := fmt.Sprintf(`
		SELECT id, content, title, url, category, position, created,
			vector::similarity::cosine(embedding, $emb) AS score
		FROM passage
		WHERE embedding <|%d,40|> $emb %s
		ORDER BY score DESC
		LIMIT $k
	`, k*2, categoryClause)

	vars := map[string]any{"emb": embedding, "k": k, "category": category}
	return c.queryHits(ctx, "semantic search", sql, vars)
}

// LexicalSearch returns the top k passages by BM25 score.
func (c *Client) LexicalSearch(ctx context.Context, query, category string, k int) ([]PassageHit, error) {
	categoryClause := ""
	if category != "" {
		categoryClause = "AND category = $category"
	}

	sql := fmt.Sprintf(`
		SELECT id, content, title, url, category, position, created,
			search::score(0) AS score
		FROM passage
		WHERE content @0@ $q %s
		ORDER BY score DESC
		LIMIT $k
	`, categoryClause)

	vars := map[string]any{"q": query, "k": k, "category": category}
	return c.queryHits(ctx, "lexical search", sql, vars)
}

func (c *Client) queryHits(ctx context.Context, op, sql string, vars map[string]any) ([]PassageHit, error) {
	results, err := surrealdb.Query[[]PassageHit](ctx, c.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, wrapQueryError(err))
	}
	if results != nil && len(*results) > 0 {
		return (*results)[0].Result, nil
	}
	return []PassageHit{}, nil
}

// CategoryCount is the number of passages in one category.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// CountPassages returns passage counts per category.
func (c *Client) CountPassages(ctx context.Context) ([]CategoryCount, error) {
	results, err := surrealdb.Query[[]CategoryCount](ctx, c.db, `
		SELECT category, count() AS count FROM passage GROUP BY category ORDER BY category
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("count passages: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return []CategoryCount{}, nil
	}
	return (*results)[0].Result, nil
}
