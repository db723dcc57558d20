package corpus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/diveroast/internal/embedding"
	"github.com/raphaelgruber/diveroast/internal/models"
	"github.com/raphaelgruber/diveroast/internal/retrieval"
)

// Source lists the articles of one resource.
type Source interface {
	FetchAll(ctx context.Context, resource string) ([]Article, error)
}

// ProgressFunc reports completed and total pipeline steps.
type ProgressFunc func(done, total int)

// Result summarizes a refresh run.
type Result struct {
	Articles   int            `json:"articles"`
	Passages   int            `json:"passages"`
	ByCategory map[string]int `json:"by_category"`
	Skipped    int            `json:"skipped"`
	Duration   time.Duration  `json:"duration"`
}

// ErrEmptyCorpus is returned when a scrape produced nothing to store. The
// existing corpus is left untouched.
var ErrEmptyCorpus = errors.New("scrape produced no passages")

// Refresher rebuilds the corpus: scrape, strip, chunk, embed, replace.
type Refresher struct {
	source    Source
	chunker   *Chunker
	embedder  embedding.Embedder
	store     retrieval.Store
	resources []string
	logger    *slog.Logger
}

// NewRefresher wires a refresh pipeline over the default resources.
func NewRefresher(source Source, embedder embedding.Embedder, store retrieval.Store, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{
		source:    source,
		chunker:   NewChunker(),
		embedder:  embedder,
		store:     store,
		resources: Resources,
		logger:    logger,
	}
}

// Run executes one refresh. A failing resource aborts the run so a partial
// scrape never replaces a complete corpus.
func (r *Refresher) Run(ctx context.Context, progress ProgressFunc) (*Result, error) {
	start := time.Now()
	total := len(r.resources) + 2 // fetch per resource, embed, store
	report := func(done int) {
		if progress != nil {
			progress(done, total)
		}
	}

	result := &Result{ByCategory: map[string]int{}}
	var passages []models.PassageInput

	for i, resource := range r.resources {
		articles, err := r.source.FetchAll(ctx, resource)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", resource, err)
		}
		category := CategoryFor(resource)
		for _, a := range articles {
			chunks, err := r.chunker.Split(StripHTML(a.Content.Rendered))
			if err != nil {
				r.logger.Warn("skipping article", "url", a.Link, "error", err)
				result.Skipped++
				continue
			}
			if len(chunks) == 0 {
				result.Skipped++
				continue
			}
			title := StripHTML(a.Title.Rendered)
			for pos, chunk := range chunks {
				passages = append(passages, models.PassageInput{
					Content:  chunk,
					Title:    title,
					URL:      a.Link,
					Category: category,
					Position: pos,
				})
			}
			result.Articles++
			result.ByCategory[category] += len(chunks)
		}
		r.logger.Info("resource scraped", "resource", resource, "articles", len(articles))
		report(i + 1)
	}

	if len(passages) == 0 {
		return nil, ErrEmptyCorpus
	}

	texts := make([]string, len(passages))
	for i, p := range passages {
		texts[i] = p.Content
	}
	vectors, err := embedding.EmbedAll(ctx, r.embedder, texts, 32, 4)
	if err != nil {
		return nil, fmt.Errorf("embed passages: %w", err)
	}
	for i := range passages {
		passages[i].Embedding = vectors[i]
	}
	report(len(r.resources) + 1)

	n, err := r.store.ReplacePassages(ctx, passages)
	if err != nil {
		return nil, fmt.Errorf("store passages: %w", err)
	}
	report(total)

	result.Passages = n
	result.Duration = time.Since(start)
	r.logger.Info("corpus refreshed", "articles", result.Articles, "passages", n,
		"duration_ms", result.Duration.Milliseconds())
	return result, nil
}
