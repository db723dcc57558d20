package embedding

import (
	"context"
	"time"

	"github.com/raphaelgruber/diveroast/internal/metrics"
)

// instrumented records the duration of every embed call.
type instrumented struct {
	Embedder
	metrics *metrics.Collector
}

// WithMetrics times e's calls under the embedding operation. A nil
// collector returns e unchanged.
func WithMetrics(e Embedder, m *metrics.Collector) Embedder {
	if m == nil {
		return e
	}
	return &instrumented{Embedder: e, metrics: m}
}

func (i *instrumented) Embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	vec, err := i.Embedder.Embed(ctx, text)
	i.record(start, err)
	return vec, err
}

func (i *instrumented) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	vecs, err := i.Embedder.EmbedBatch(ctx, texts)
	i.record(start, err)
	return vecs, err
}

func (i *instrumented) record(start time.Time, err error) {
	if err != nil {
		i.metrics.RecordError(metrics.OpEmbedding, "provider")
		return
	}
	i.metrics.RecordTiming(metrics.OpEmbedding, time.Since(start))
}
