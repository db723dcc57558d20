package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/diveroast/internal/analysis"
	"github.com/raphaelgruber/diveroast/internal/llm/llmtest"
	"github.com/raphaelgruber/diveroast/internal/models"
	"github.com/raphaelgruber/diveroast/internal/retrieval"
	"github.com/raphaelgruber/diveroast/internal/session"
	"github.com/raphaelgruber/diveroast/internal/tools"
)

func profile(depths ...float64) []models.Sample {
	samples := make([]models.Sample, len(depths))
	for i, d := range depths {
		samples[i] = models.Sample{Elapsed: float64(i * 60), Depth: d}
	}
	return samples
}

// downBackend is a corpus backend whose host is unreachable.
type downBackend struct{}

func (downBackend) SemanticSearch(ctx context.Context, query, category string, k int) ([]models.ScoredPassage, error) {
	return nil, errors.New("dial tcp 127.0.0.1:8000: connect: connection refused")
}

func (downBackend) LexicalSearch(ctx context.Context, query, category string, k int) ([]models.ScoredPassage, error) {
	return nil, errors.New("dial tcp 127.0.0.1:8000: connect: connection refused")
}

func (downBackend) Name() string { return "down" }

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) sink(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func (r *recorder) last() Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

type fixture struct {
	store     *session.MemoryStore
	sessionID string
	model     *llmtest.Scripted
	agent     *Orchestrator
}

func newFixture(t *testing.T, opts Options, steps ...llmtest.Step) *fixture {
	t.Helper()
	th := analysis.DefaultThresholds()
	store := session.NewMemoryStore(time.Hour, nil)

	dives := []models.Dive{
		{ID: "1", Site: "Blue Hole", Rating: 4, Samples: profile(0, 10, 18, 18, 5, 0)},
		{ID: "2", Site: "Quarry", Rating: 2, Samples: profile(0, 30, 30, 2, 0)},
	}
	features, excluded := analysis.Analyze(dives, th)
	id := store.Create(dives, session.Analysis{
		Features: features,
		Ranking:  analysis.Rank(features, th.TopN, th),
		Excluded: excluded,
	})

	box := tools.NewToolbox(&tools.Dependencies{
		Retriever:  retrieval.NewAdapter(downBackend{}, retrieval.Options{Timeout: time.Second}, nil, nil),
		Sessions:   store,
		Thresholds: th,
	})
	model := llmtest.New(steps...)
	return &fixture{
		store:     store,
		sessionID: id,
		model:     model,
		agent:     New(store, model, box, opts, nil, nil),
	}
}

func (f *fixture) history(t *testing.T) []models.Turn {
	t.Helper()
	s, err := f.store.Get(f.sessionID)
	require.NoError(t, err)
	return s.History
}

func TestChatStreamsAndCommits(t *testing.T) {
	f := newFixture(t, Options{}, llmtest.Text("Nice ", "dive."))
	rec := &recorder{}

	require.NoError(t, f.agent.Chat(context.Background(), f.sessionID, "roast dive 2", rec.sink))

	assert.Equal(t, []EventType{EventDelta, EventDelta, EventDone}, rec.types())
	h := f.history(t)
	require.Len(t, h, 2)
	assert.Equal(t, models.RoleUser, h[0].Role)
	assert.Equal(t, "roast dive 2", h[0].Content)
	assert.Equal(t, models.RoleAssistant, h[1].Role)
	assert.Equal(t, "Nice dive.", h[1].Content)

	req := f.model.Requests()[0]
	assert.Contains(t, req.System, "2 analysed dives: 1, 2")
	assert.Contains(t, req.System, "dive #2 at Quarry")
	assert.Len(t, req.Tools, 7)
}

func TestChatToolThenAnswer(t *testing.T) {
	f := newFixture(t, Options{},
		llmtest.Call("c1", "analyze_dive_profile", map[string]any{"dive_id": "2"}),
		llmtest.Text("28 m/min? Bold."),
	)
	rec := &recorder{}

	require.NoError(t, f.agent.Chat(context.Background(), f.sessionID, "how was dive 2?", rec.sink))

	assert.Equal(t, []EventType{EventTool, EventTool, EventDelta, EventDone}, rec.types())
	h := f.history(t)
	require.Len(t, h, 4)
	assert.Equal(t, []models.Role{models.RoleUser, models.RoleAssistant, models.RoleTool, models.RoleAssistant},
		[]models.Role{h[0].Role, h[1].Role, h[2].Role, h[3].Role}, "turns are committed in production order")
	assert.Equal(t, "c1", h[2].ToolCallID)
	assert.Contains(t, h[2].Content, "Max ascent speed 28.0 m/min")

	second := f.model.Requests()[1]
	require.Len(t, second.History, 3, "tool result is fed back before the answer")
	assert.Equal(t, models.RoleTool, second.History[2].Role)
}

func TestChatRetrievalUnavailableStillAnswers(t *testing.T) {
	f := newFixture(t, Options{},
		llmtest.Call("c1", "search_dan_incidents", map[string]any{"query": "rapid ascent", "k": 5}),
		llmtest.Text("No DAN evidence right now, but slow down."),
	)
	rec := &recorder{}

	require.NoError(t, f.agent.Chat(context.Background(), f.sessionID, "find incidents like dive 2", rec.sink))

	require.GreaterOrEqual(t, len(rec.events), 3)
	assert.Equal(t, Event{Type: EventTool, Name: "search_dan_incidents", Status: tools.StatusUnavailable}, rec.events[1])
	assert.Equal(t, EventDone, rec.last().Type)

	h := f.history(t)
	require.Len(t, h, 4)
	assert.Contains(t, h[2].Content, "unavailable")
	assert.False(t, h[2].IsError)
	assert.Equal(t, "No DAN evidence right now, but slow down.", h[3].Content)
}

func TestChatToolLoopBound(t *testing.T) {
	f := newFixture(t, Options{MaxToolCalls: 3},
		llmtest.Call("", "list_dives", map[string]any{}),
	)
	rec := &recorder{}

	err := f.agent.Chat(context.Background(), f.sessionID, "loop forever", rec.sink)
	require.ErrorIs(t, err, models.ErrToolLoopExceeded)

	assert.Equal(t, 4, f.model.Calls(), "three executed calls, the fourth request is refused")
	assert.Equal(t, Event{Type: EventError, Error: err.Error(), Kind: "tool_loop_exceeded"}, rec.last())
	h := f.history(t)
	require.Len(t, h, 1, "failed turn keeps only the user message")
	assert.Equal(t, models.RoleUser, h[0].Role)
}

func TestChatContractViolationsAreFatal(t *testing.T) {
	tests := []struct {
		name    string
		step    llmtest.Step
		wantErr error
	}{
		{"unknown tool", llmtest.Call("x", "rm_rf", nil), models.ErrUnknownTool},
		{"invalid arguments", llmtest.Call("x", "analyze_dive_profile", map[string]any{"dive": 2}), models.ErrInvalidArguments},
		{"one bad call among good ones", llmtest.Step{ToolCalls: []models.ToolCall{
			{ID: "a", Name: "list_dives", Arguments: map[string]any{}},
			{ID: "b", Name: "get_dive_summary", Arguments: map[string]any{}},
		}}, models.ErrInvalidArguments},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Options{}, tt.step, llmtest.Text("never"))
			rec := &recorder{}

			err := f.agent.Chat(context.Background(), f.sessionID, "go", rec.sink)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, EventError, rec.last().Type)
			for _, e := range rec.events {
				assert.NotEqual(t, EventTool, e.Type, "no call runs before all are validated")
			}
			assert.Len(t, f.history(t), 1)
			assert.Equal(t, 1, f.model.Calls())
		})
	}
}

func TestChatModelFailureLeavesSessionUsable(t *testing.T) {
	f := newFixture(t, Options{},
		llmtest.Fail(fmt.Errorf("%w: 503 from upstream", models.ErrModelBackend)),
		llmtest.Text("Back online."),
	)
	rec := &recorder{}

	err := f.agent.Chat(context.Background(), f.sessionID, "first", rec.sink)
	require.ErrorIs(t, err, models.ErrModelBackend)
	assert.Equal(t, "model_backend", rec.last().Kind)
	assert.Len(t, f.history(t), 1)

	require.NoError(t, f.agent.Chat(context.Background(), f.sessionID, "second", nil))
	h := f.history(t)
	require.Len(t, h, 3)
	assert.Equal(t, "first", h[0].Content)
	assert.Equal(t, "second", h[1].Content)
	assert.Equal(t, "Back online.", h[2].Content)
}

func TestChatCancelledStreamCommitsNothing(t *testing.T) {
	f := newFixture(t, Options{},
		llmtest.Call("c1", "list_dives", map[string]any{}),
		llmtest.Step{Deltas: []string{"Your dive was"}, Block: true},
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &recorder{}
	err := f.agent.Chat(ctx, f.sessionID, "roast me", func(e Event) {
		rec.sink(e)
		if e.Type == EventDelta {
			cancel()
		}
	})
	require.ErrorIs(t, err, context.Canceled)

	h := f.history(t)
	require.Len(t, h, 1, "neither the tool result nor partial content is committed")
	assert.Equal(t, "roast me", h[0].Content)
	assert.Equal(t, "cancelled", rec.last().Kind)
}

func TestChatTurnTimeout(t *testing.T) {
	f := newFixture(t, Options{TurnTimeout: 20 * time.Millisecond}, llmtest.Step{Block: true})

	err := f.agent.Chat(context.Background(), f.sessionID, "slow", nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "timeout", ErrorKind(err))
	assert.Len(t, f.history(t), 1)
}

func TestChatSerializesTurnsPerSession(t *testing.T) {
	f := newFixture(t, Options{}, llmtest.Step{Block: true})
	f.model.Started = make(chan struct{}, 1)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.agent.Chat(firstCtx, f.sessionID, "first", nil) }()
	<-f.model.Started

	waitCtx, cancelWait := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancelWait()
	err := f.agent.Chat(waitCtx, f.sessionID, "second", nil)
	assert.ErrorIs(t, err, models.ErrTurnInProgress)

	cancelFirst()
	assert.ErrorIs(t, <-done, context.Canceled)

	h := f.history(t)
	require.Len(t, h, 1, "the waiting turn never committed its message")
	assert.Equal(t, "first", h[0].Content)
}

func TestChatInputErrors(t *testing.T) {
	f := newFixture(t, Options{}, llmtest.Text("never"))

	err := f.agent.Chat(context.Background(), f.sessionID, "   ", nil)
	assert.ErrorIs(t, err, ErrEmptyMessage)

	rec := &recorder{}
	err = f.agent.Chat(context.Background(), "missing", "hi", rec.sink)
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
	assert.Equal(t, "session_not_found", rec.last().Kind)
	assert.Zero(t, f.model.Calls())
}
