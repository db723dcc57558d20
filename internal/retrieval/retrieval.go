// Package retrieval runs hybrid (semantic + lexical) searches over the
// incident/guideline corpus.
package retrieval

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/raphaelgruber/diveroast/internal/metrics"
	"github.com/raphaelgruber/diveroast/internal/models"
)

var tracer = otel.Tracer("github.com/raphaelgruber/diveroast/internal/retrieval")

// Backend is a corpus store that answers both sub-queries of a hybrid
// search. Scores must be in [0, 1], higher is more relevant.
type Backend interface {
	SemanticSearch(ctx context.Context, query, category string, k int) ([]models.ScoredPassage, error)
	LexicalSearch(ctx context.Context, query, category string, k int) ([]models.ScoredPassage, error)
	Name() string
}

// Store is the write side of a corpus backend.
type Store interface {
	ReplacePassages(ctx context.Context, passages []models.PassageInput) (int, error)
	CountPassages(ctx context.Context) (int, error)
}

// Options configures an Adapter.
type Options struct {
	Timeout time.Duration
	MaxK    int
}

// Adapter is the retrieval entry point used by tools and services.
type Adapter struct {
	backend Backend
	opts    Options
	metrics *metrics.Collector
	logger  *slog.Logger
}

// NewAdapter wraps a backend. metrics may be nil.
func NewAdapter(backend Backend, opts Options, m *metrics.Collector, logger *slog.Logger) *Adapter {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxK <= 0 {
		opts.MaxK = 20
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{backend: backend, opts: opts, metrics: m, logger: logger}
}

// Retrieve searches the whole corpus.
func (a *Adapter) Retrieve(ctx context.Context, query string, k int) ([]models.RetrievedPassage, error) {
	return a.RetrieveCategory(ctx, query, "", k)
}

// RetrieveCategory runs both sub-queries concurrently and merges them.
// Any sub-query failure, or the timeout elapsing, yields
// ErrRetrievalUnavailable. Cancellation of ctx itself is returned as is.
func (a *Adapter) RetrieveCategory(ctx context.Context, query, category string, k int) ([]models.RetrievedPassage, error) {
	k = max(1, min(k, a.opts.MaxK))

	ctx, span := tracer.Start(ctx, "retrieval.hybrid")
	defer span.End()
	span.SetAttributes(
		attribute.String("retrieval.backend", a.backend.Name()),
		attribute.String("retrieval.category", category),
		attribute.Int("retrieval.k", k),
	)

	start := time.Now()
	searchCtx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()

	var semantic, lexical []models.ScoredPassage
	g, gctx := errgroup.WithContext(searchCtx)
	g.Go(func() error {
		var err error
		semantic, err = a.backend.SemanticSearch(gctx, query, category, k)
		if err != nil {
			return fmt.Errorf("semantic: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		lexical, err = a.backend.LexicalSearch(gctx, query, category, k)
		if err != nil {
			return fmt.Errorf("lexical: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		a.metrics.RecordError(metrics.OpRetrieval, "unavailable")
		a.logger.Warn("retrieval unavailable", "backend", a.backend.Name(), "query", query, "error", err)
		return nil, fmt.Errorf("%w: %w", models.ErrRetrievalUnavailable, err)
	}

	passages := Merge(query, k, semantic, lexical)
	a.metrics.RecordTiming(metrics.OpRetrieval, time.Since(start))
	span.SetAttributes(attribute.Int("retrieval.results", len(passages)))
	a.logger.Debug("retrieval complete", "query", query, "category", category,
		"semantic", len(semantic), "lexical", len(lexical), "results", len(passages),
		"duration_ms", time.Since(start).Milliseconds())
	return passages, nil
}

// Merge unions scored hits, keeps the best-scoring hit per source id, sorts
// by score descending with source id ascending on ties, and truncates to k.
func Merge(query string, k int, sets ...[]models.ScoredPassage) []models.RetrievedPassage {
	best := make(map[string]models.ScoredPassage)
	for _, set := range sets {
		for _, p := range set {
			if cur, ok := best[p.SourceID]; !ok || p.Score > cur.Score {
				best[p.SourceID] = p
			}
		}
	}

	out := make([]models.RetrievedPassage, 0, len(best))
	for _, p := range best {
		out = append(out, models.RetrievedPassage{
			Text:     p.Content,
			SourceID: p.SourceID,
			Title:    p.Title,
			URL:      p.URL,
			Category: p.Category,
			Score:    p.Score,
			Query:    query,
			Mode:     p.Mode,
		})
	}
	slices.SortFunc(out, func(a, b models.RetrievedPassage) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.SourceID, b.SourceID)
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}

// normalizeBM25 maps an unbounded BM25 score into [0, 1).
func normalizeBM25(s float64) float64 {
	if s <= 0 {
		return 0
	}
	return s / (1 + s)
}

// sourceID prefers the article URL so chunks of one article count as one source.
func sourceID(url, fallback string) string {
	if url != "" {
		return url
	}
	return fallback
}

// ErrNoBackend is returned when no corpus backend is configured.
var ErrNoBackend = errors.New("no retrieval backend configured")
