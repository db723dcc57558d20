// Package llmtest provides a scripted llm.Backend for tests.
package llmtest

import (
	"context"
	"errors"
	"sync"

	"github.com/raphaelgruber/diveroast/internal/llm"
	"github.com/raphaelgruber/diveroast/internal/models"
)

// Step is one scripted model reply.
type Step struct {
	Deltas    []string
	ToolCalls []models.ToolCall
	Err       error
	// ErrAfterDeltas fails the call after the deltas were sent.
	ErrAfterDeltas bool
	// Block waits for ctx to end after sending deltas.
	Block bool
	Usage llm.Usage
}

// Text returns a step that streams content in the given fragments.
func Text(fragments ...string) Step {
	return Step{Deltas: fragments}
}

// Call returns a step that requests one tool call.
func Call(id, name string, args map[string]any) Step {
	return Step{ToolCalls: []models.ToolCall{{ID: id, Name: name, Arguments: args}}}
}

// Fail returns a step that fails before producing output.
func Fail(err error) Step {
	return Step{Err: err}
}

// Scripted replays steps in order. Once the script is exhausted the last
// step repeats, which makes an always-calling model easy to express.
type Scripted struct {
	mu       sync.Mutex
	steps    []Step
	next     int
	requests []llm.Request
	// Started is signalled on each call when non-nil.
	Started chan struct{}
}

var _ llm.Backend = (*Scripted)(nil)

// New creates a scripted backend.
func New(steps ...Step) *Scripted {
	return &Scripted{steps: steps}
}

// Model returns a fixed name.
func (s *Scripted) Model() string { return "scripted" }

// Calls returns how many times Stream was called.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// Requests returns copies of the received requests.
func (s *Scripted) Requests() []llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.Request(nil), s.requests...)
}

// Stream plays the next step.
func (s *Scripted) Stream(ctx context.Context, req llm.Request, onDelta llm.DeltaFunc) (*llm.Response, error) {
	s.mu.Lock()
	if len(s.steps) == 0 {
		s.mu.Unlock()
		return nil, errors.New("llmtest: empty script")
	}
	req.History = append([]models.Turn(nil), req.History...)
	s.requests = append(s.requests, req)
	step := s.steps[min(s.next, len(s.steps)-1)]
	s.next++
	s.mu.Unlock()

	if s.Started != nil {
		s.Started <- struct{}{}
	}
	if step.Err != nil && !step.ErrAfterDeltas {
		return nil, step.Err
	}

	var content string
	for _, d := range step.Deltas {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		content += d
		if onDelta != nil {
			if err := onDelta(d); err != nil {
				return nil, err
			}
		}
	}
	if step.Block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if step.Err != nil {
		return nil, step.Err
	}
	return &llm.Response{Content: content, ToolCalls: step.ToolCalls, Usage: step.Usage}, nil
}
