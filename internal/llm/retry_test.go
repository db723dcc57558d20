package llm_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/diveroast/internal/llm"
	"github.com/raphaelgruber/diveroast/internal/llm/llmtest"
	"github.com/raphaelgruber/diveroast/internal/models"
)

var errTransient = fmt.Errorf("%w: connection reset", models.ErrModelBackend)

func TestRetryingRetriesOnce(t *testing.T) {
	tests := []struct {
		name      string
		steps     []llmtest.Step
		wantCalls int
		wantErr   error
		wantText  string
	}{
		{
			name:      "success first try",
			steps:     []llmtest.Step{llmtest.Text("hi")},
			wantCalls: 1,
			wantText:  "hi",
		},
		{
			name:      "transient then success",
			steps:     []llmtest.Step{llmtest.Fail(errTransient), llmtest.Text("ok")},
			wantCalls: 2,
			wantText:  "ok",
		},
		{
			name:      "transient twice",
			steps:     []llmtest.Step{llmtest.Fail(errTransient), llmtest.Fail(errTransient), llmtest.Text("never")},
			wantCalls: 2,
			wantErr:   models.ErrModelBackend,
		},
		{
			name:      "fatal not retried",
			steps:     []llmtest.Step{llmtest.Fail(fmt.Errorf("%w: %w", models.ErrModelBackend, llm.ErrFatalAPI)), llmtest.Text("never")},
			wantCalls: 1,
			wantErr:   llm.ErrFatalAPI,
		},
		{
			name:      "contract error not retried",
			steps:     []llmtest.Step{llmtest.Fail(models.ErrInvalidArguments), llmtest.Text("never")},
			wantCalls: 1,
			wantErr:   models.ErrInvalidArguments,
		},
		{
			name: "failure after delta not retried",
			steps: []llmtest.Step{
				{Deltas: []string{"partial"}, Err: errTransient, ErrAfterDeltas: true},
				llmtest.Text("never"),
			},
			wantCalls: 1,
			wantErr:   models.ErrModelBackend,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := llmtest.New(tt.steps...)
			b := llm.WithRetry(fake, time.Millisecond, nil)

			var deltas []string
			resp, err := b.Stream(context.Background(), llm.Request{}, func(d string) error {
				deltas = append(deltas, d)
				return nil
			})

			assert.Equal(t, tt.wantCalls, fake.Calls())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantText, resp.Content)
		})
	}
}

func TestRetryingStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fake := llmtest.New(llmtest.Fail(errTransient), llmtest.Text("never"))
	_, err := llm.WithRetry(fake, time.Millisecond, nil).Stream(ctx, llm.Request{}, nil)
	assert.Error(t, err)
	assert.Equal(t, 1, fake.Calls())
}

func TestComplete(t *testing.T) {
	fake := llmtest.New(llmtest.Text("Two ", "sentences."))
	text, err := llm.Complete(context.Background(), fake, "be brief", "note on dive 3")
	require.NoError(t, err)
	assert.Equal(t, "Two sentences.", text)

	req := fake.Requests()[0]
	assert.Equal(t, "be brief", req.System)
	require.Len(t, req.History, 1)
	assert.Equal(t, models.RoleUser, req.History[0].Role)

	_, err = llm.Complete(context.Background(), llmtest.New(llmtest.Fail(errors.New("down"))), "", "x")
	assert.Error(t, err)
}

func TestToolSchemaJSON(t *testing.T) {
	one := 1.0
	s := llm.ToolSchema{
		Name:       "search",
		Properties: map[string]llm.Property{"k": {Type: "integer", Minimum: &one}},
		Required:   []string{"k"},
	}
	got := s.JSONSchema()
	assert.Equal(t, "object", got["type"])
	assert.Equal(t, []string{"k"}, got["required"])
	assert.Contains(t, got["properties"], "k")
}
