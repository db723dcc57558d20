package tools

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/diveroast/internal/analysis"
	"github.com/raphaelgruber/diveroast/internal/models"
	"github.com/raphaelgruber/diveroast/internal/session"
)

func newTestToolbox(t *testing.T) (*Toolbox, *session.MemoryStore, *fakeRetriever) {
	t.Helper()
	store := session.NewMemoryStore(time.Hour, nil)
	retriever := &fakeRetriever{}
	box := NewToolbox(&Dependencies{
		Retriever:  retriever,
		Sessions:   store,
		Uploader:   &fakeUploader{store: store},
		Refresher:  &fakeRefresher{},
		Thresholds: analysis.DefaultThresholds(),
	})
	return box, store, retriever
}

func TestSchemasCoverClosedSet(t *testing.T) {
	schemas := Schemas()
	require.Len(t, schemas, 7)
	names := make([]string, len(schemas))
	for i, s := range schemas {
		names[i] = s.Name
		assert.NotEmpty(t, s.Description, s.Name)
	}
	assert.Equal(t, []string{
		"search_dan_incidents", "search_dan_guidelines", "parse_dive_log",
		"analyze_dive_profile", "get_dive_summary", "list_dives", "refresh_dan_data",
	}, names)
}

func TestDecodeArgs(t *testing.T) {
	tests := []struct {
		name    string
		call    models.ToolCall
		wantErr error
	}{
		{"unknown tool", models.ToolCall{Name: "rm_rf"}, models.ErrUnknownTool},
		{"missing query", models.ToolCall{Name: "search_dan_incidents", Arguments: map[string]any{}}, models.ErrInvalidArguments},
		{"unknown field", models.ToolCall{Name: "search_dan_incidents", Arguments: map[string]any{"query": "x", "depth": 3}}, models.ErrInvalidArguments},
		{"wrong type", models.ToolCall{Name: "search_dan_incidents", Arguments: map[string]any{"query": "x", "k": "five"}}, models.ErrInvalidArguments},
		{"k out of range", models.ToolCall{Name: "search_dan_guidelines", Arguments: map[string]any{"query": "x", "k": 50}}, models.ErrInvalidArguments},
		{"fractional k", models.ToolCall{Name: "search_dan_guidelines", Arguments: map[string]any{"query": "x", "k": 2.5}}, models.ErrInvalidArguments},
		{"dive id missing", models.ToolCall{Name: "analyze_dive_profile"}, models.ErrInvalidArguments},
		{"parse without source", models.ToolCall{Name: "parse_dive_log", Arguments: map[string]any{}}, models.ErrInvalidArguments},
		{"valid search", models.ToolCall{Name: "search_dan_incidents", Arguments: map[string]any{"query": "rapid ascent", "k": float64(5)}}, nil},
		{"valid refresh", models.ToolCall{Name: "refresh_dan_data"}, nil},
		{"valid list", models.ToolCall{Name: "list_dives", Arguments: map[string]any{}}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeArgs(tt.call)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDispatchDiveTools(t *testing.T) {
	box, store, _ := newTestToolbox(t)
	id := seedSession(store)
	ctx := context.Background()

	tests := []struct {
		name     string
		session  string
		call     models.ToolCall
		isError  bool
		contains string
	}{
		{"list", id, models.ToolCall{Name: "list_dives"}, false, "#2: Quarry"},
		{"list shows excluded", id, models.ToolCall{Name: "list_dives"}, false, "#3: excluded (too few samples)"},
		{"list by explicit session", "other", models.ToolCall{Name: "list_dives", Arguments: map[string]any{"session_id": id}}, false, "2 dives:"},
		{"list unknown session", "nope", models.ToolCall{Name: "list_dives"}, true, "No dive log loaded"},
		{"summary", id, models.ToolCall{Name: "get_dive_summary", Arguments: map[string]any{"dive_id": "1"}}, false, "Location: Blue Hole"},
		{"profile", id, models.ToolCall{Name: "analyze_dive_profile", Arguments: map[string]any{"dive_id": "2"}}, false, "Max ascent speed 28.0 m/min"},
		{"missing dive", id, models.ToolCall{Name: "analyze_dive_profile", Arguments: map[string]any{"dive_id": "42"}}, true, "Dive #42 not found"},
		{"excluded dive", id, models.ToolCall{Name: "get_dive_summary", Arguments: map[string]any{"dive_id": "3"}}, true, "excluded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := box.Dispatch(ctx, tt.session, tt.call)
			require.NoError(t, err)
			assert.Equal(t, tt.isError, res.IsError)
			assert.Contains(t, res.Content, tt.contains)
		})
	}
}

func TestDispatchSearch(t *testing.T) {
	box, _, retriever := newTestToolbox(t)
	retriever.passages = []models.RetrievedPassage{
		{Title: "Rapid ascent", URL: "https://dan.org/a", Score: 0.912, Text: "Diver bolted up. Then more."},
	}

	res, err := box.Dispatch(context.Background(), "", models.ToolCall{
		Name: "search_dan_incidents", Arguments: map[string]any{"query": "rapid ascent"},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusFinished, res.Status())
	assert.Equal(t, "[1] Rapid ascent (0.91) https://dan.org/a\nDiver bolted up.", res.Content)

	_, err = box.Dispatch(context.Background(), "", models.ToolCall{
		Name: "search_dan_guidelines", Arguments: map[string]any{"query": "safety stop", "k": 2},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"diving incident: rapid ascent", "diving safety guideline: safety stop"}, retriever.queries)
	assert.Equal(t, []string{models.CategoryIncident, models.CategoryGuideline}, retriever.cats)
	assert.Equal(t, []int{5, 2}, retriever.ks)
}

func TestDispatchSearchDegrades(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus string
	}{
		{"backend unreachable", errors.Join(models.ErrRetrievalUnavailable, errors.New("dial tcp: refused")), StatusUnavailable},
		{"unexpected failure", errors.New("boom"), StatusError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			box, _, retriever := newTestToolbox(t)
			retriever.err = tt.err
			res, err := box.Dispatch(context.Background(), "", models.ToolCall{
				Name: "search_dan_incidents", Arguments: map[string]any{"query": "rapid ascent", "k": 5},
			})
			require.NoError(t, err, "retrieval failures never fail the turn")
			assert.Equal(t, tt.wantStatus, res.Status())
		})
	}
}

func TestDispatchBlankQuery(t *testing.T) {
	box, _, retriever := newTestToolbox(t)
	res, err := box.Dispatch(context.Background(), "", models.ToolCall{
		Name: "search_dan_incidents", Arguments: map[string]any{"query": "   "},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Empty(t, retriever.queries)
}

func TestDispatchCancelled(t *testing.T) {
	box, _, _ := newTestToolbox(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := box.Dispatch(ctx, "", models.ToolCall{Name: "search_dan_incidents", Arguments: map[string]any{"query": "x"}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseDiveLog(t *testing.T) {
	box, store, _ := newTestToolbox(t)

	res, err := box.Dispatch(context.Background(), "", models.ToolCall{
		Name: "parse_dive_log", Arguments: map[string]any{"raw": "<divelog/>"},
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Contains(t, res.Content, "Parsed 2 dives")
	assert.Equal(t, 1, store.Len())

	res, err = box.Dispatch(context.Background(), "", models.ToolCall{
		Name: "parse_dive_log", Arguments: map[string]any{"file_path": "/etc/passwd"},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError, "agent callers cannot read local files")
}

func TestParseDiveLogFromFile(t *testing.T) {
	box, _, _ := newTestToolbox(t)
	box.deps.AllowFiles = true

	path := filepath.Join(t.TempDir(), "log.ssrf")
	require.NoError(t, os.WriteFile(path, []byte("<divelog/>"), 0o600))

	res, err := box.Dispatch(context.Background(), "", models.ToolCall{
		Name: "parse_dive_log", Arguments: map[string]any{"file_path": path},
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)

	res, err = box.Dispatch(context.Background(), "", models.ToolCall{
		Name: "parse_dive_log", Arguments: map[string]any{"file_path": filepath.Join(t.TempDir(), "missing.ssrf")},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestRefreshTool(t *testing.T) {
	box, _, _ := newTestToolbox(t)

	res, err := box.Dispatch(context.Background(), "", models.ToolCall{Name: "refresh_dan_data"})
	require.NoError(t, err)
	assert.Contains(t, res.Content, "started in the background (job job1)")

	box.deps.Refresher = &fakeRefresher{running: true}
	res, err = box.Dispatch(context.Background(), "", models.ToolCall{Name: "refresh_dan_data"})
	require.NoError(t, err)
	assert.Contains(t, res.Content, "already running")
}
