package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/diveroast/internal/metrics"
)

// fakeOllama serves /api/embed, returning vectors of dim dimensions whose
// first element is the input's length.
func fakeOllama(t *testing.T, dim int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Model string `json:"model"`
			Input any    `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var inputs []string
		switch in := req.Input.(type) {
		case string:
			inputs = []string{in}
		case []any:
			for _, s := range in {
				inputs = append(inputs, s.(string))
			}
		}
		vectors := make([][]float32, len(inputs))
		for i, s := range inputs {
			vectors[i] = make([]float32, dim)
			vectors[i][0] = float32(len(s))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"model": req.Model, "embeddings": vectors})
	}))
}

func TestNewOllamaClientDefaults(t *testing.T) {
	client, err := NewOllamaClient("http://localhost:11434", "", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultOllamaModel, client.Model())
	assert.Equal(t, DefaultOllamaDimension, client.Dimension())
}

func TestOllamaEmbed(t *testing.T) {
	srv := fakeOllama(t, 4)
	defer srv.Close()

	client, err := NewOllamaClient(srv.URL, "test-model", 4)
	require.NoError(t, err)

	vec, err := client.Embed(context.Background(), "rapid ascent")
	require.NoError(t, err)
	assert.Len(t, vec, 4)
	assert.Equal(t, float32(len("rapid ascent")), vec[0])

	batch, err := client.EmbedBatch(context.Background(), []string{"a", "bbb"})
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, float32(3), batch[1][0])

	empty, err := client.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestOllamaDimensionMismatch(t *testing.T) {
	srv := fakeOllama(t, 8)
	defer srv.Close()

	client, err := NewOllamaClient(srv.URL, "test-model", 4)
	require.NoError(t, err)

	_, err = client.Embed(context.Background(), "text")
	assert.ErrorContains(t, err, "dimension mismatch")
}

func TestNewUnknownProvider(t *testing.T) {
	_, err := New(Config{Provider: "voyage"})
	assert.Error(t, err)

	_, err = New(Config{Provider: ProviderOpenAI})
	assert.ErrorContains(t, err, "API key")
}

type countingEmbedder struct {
	calls atomic.Int32
	fail  bool
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text))}, nil
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls.Add(1)
	if c.fail {
		return nil, errors.New("boom")
	}
	out := make([][]float32, len(texts))
	for i, s := range texts {
		out[i] = []float32{float32(len(s))}
	}
	return out, nil
}

func (c *countingEmbedder) Model() string  { return "counting" }
func (c *countingEmbedder) Dimension() int { return 1 }

func TestEmbedAll(t *testing.T) {
	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}

	e := &countingEmbedder{}
	vectors, err := EmbedAll(context.Background(), e, texts, 2, 3)
	require.NoError(t, err)
	require.Len(t, vectors, 5)
	for i, v := range vectors {
		assert.Equal(t, float32(i+1), v[0], "order preserved")
	}
	assert.Equal(t, int32(3), e.calls.Load())

	_, err = EmbedAll(context.Background(), &countingEmbedder{fail: true}, texts, 2, 2)
	assert.ErrorContains(t, err, "boom")
}

func TestWithMetrics(t *testing.T) {
	m := metrics.NewCollector(nil)
	e := WithMetrics(&countingEmbedder{}, m)

	_, err := e.Embed(context.Background(), "a")
	require.NoError(t, err)
	_, err = e.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)

	snap := m.Snapshot()
	require.NotNil(t, snap.Operations[metrics.OpEmbedding])
	assert.Equal(t, int64(2), snap.Operations[metrics.OpEmbedding].Count)

	_, err = WithMetrics(&countingEmbedder{fail: true}, m).EmbedBatch(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Equal(t, int64(2), m.Snapshot().Operations[metrics.OpEmbedding].Count, "failures are not timed")

	plain := &countingEmbedder{}
	assert.Same(t, plain, WithMetrics(plain, nil))
}
