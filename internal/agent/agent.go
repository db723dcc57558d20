// Package agent runs the tool-calling conversation loop for one session turn.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/raphaelgruber/diveroast/internal/llm"
	"github.com/raphaelgruber/diveroast/internal/metrics"
	"github.com/raphaelgruber/diveroast/internal/models"
	"github.com/raphaelgruber/diveroast/internal/session"
	"github.com/raphaelgruber/diveroast/internal/tools"
)

var tracer = otel.Tracer("github.com/raphaelgruber/diveroast/internal/agent")

// ErrEmptyMessage is returned for a blank user message.
var ErrEmptyMessage = errors.New("empty message")

// State is a step of the per-turn state machine.
type State string

const (
	StateAwaitingInput     State = "AWAITING_USER_INPUT"
	StateModelThinking     State = "MODEL_THINKING"
	StateToolCallRequested State = "TOOL_CALL_REQUESTED"
	StateToolExecuting     State = "TOOL_EXECUTING"
	StateStreaming         State = "STREAMING_RESPONSE"
)

// Dispatcher validates and executes tool calls.
type Dispatcher interface {
	Validate(call models.ToolCall) error
	Dispatch(ctx context.Context, sessionID string, call models.ToolCall) (tools.Result, error)
}

// Options bound a turn.
type Options struct {
	// MaxToolCalls caps the tool calls of one user turn.
	MaxToolCalls int
	TurnTimeout  time.Duration
}

// Orchestrator drives chat turns. It is safe for concurrent use; turns on
// the same session are serialized through the session store.
type Orchestrator struct {
	sessions session.Store
	model    llm.Backend
	tools    Dispatcher
	schemas  []llm.ToolSchema
	opts     Options
	metrics  *metrics.Collector
	logger   *slog.Logger
}

// New creates an orchestrator offering the full tool table. metrics may be nil.
func New(sessions session.Store, model llm.Backend, dispatcher Dispatcher, opts Options, m *metrics.Collector, logger *slog.Logger) *Orchestrator {
	if opts.MaxToolCalls <= 0 {
		opts.MaxToolCalls = 8
	}
	if opts.TurnTimeout <= 0 {
		opts.TurnTimeout = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		sessions: sessions,
		model:    model,
		tools:    dispatcher,
		schemas:  tools.Schemas(),
		opts:     opts,
		metrics:  m,
		logger:   logger,
	}
}

// Chat runs one user turn and streams its events to sink. The user message
// is committed first and stays committed whatever happens next. Tool turns
// and the assistant answer are committed together, and only when the turn
// completes. Every failure is also reported to sink as an error event.
func (o *Orchestrator) Chat(ctx context.Context, sessionID, message string, sink Sink) (err error) {
	if sink == nil {
		sink = func(Event) {}
	}
	start := time.Now()
	ctx, span := tracer.Start(ctx, "agent.turn")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	defer func() {
		if err == nil {
			o.metrics.RecordTiming(metrics.OpTurn, time.Since(start))
			return
		}
		kind := ErrorKind(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, kind)
		o.metrics.RecordError(metrics.OpTurn, kind)
		o.logger.Warn("chat turn failed", "session_id", sessionID, "kind", kind, "error", err,
			"duration_ms", time.Since(start).Milliseconds())
		sink(Event{Type: EventError, Error: err.Error(), Kind: kind})
	}()

	message = strings.TrimSpace(message)
	if message == "" {
		return ErrEmptyMessage
	}

	release, err := o.sessions.AcquireTurn(ctx, sessionID)
	if err != nil {
		return err
	}
	defer release()

	if err := o.sessions.AppendTurns(sessionID, models.Turn{Role: models.RoleUser, Content: message}); err != nil {
		return err
	}
	snapshot, err := o.sessions.Get(sessionID)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, o.opts.TurnTimeout)
	defer cancel()

	t := &turn{
		o:         o,
		sessionID: sessionID,
		system:    SystemPrompt(snapshot),
		history:   snapshot.History,
		sink:      sink,
		state:     StateModelThinking,
	}
	if err := t.run(ctx); err != nil {
		return err
	}

	o.logger.Info("chat turn complete", "session_id", sessionID, "tool_calls", t.calls,
		"duration_ms", time.Since(start).Milliseconds())
	sink(Event{Type: EventDone, Status: "complete"})
	return nil
}

// turn is the state of one user turn. pending holds the turns produced so
// far; nothing in it is visible to other callers until commit.
type turn struct {
	o         *Orchestrator
	sessionID string
	system    string
	history   []models.Turn
	pending   []models.Turn
	requested []models.ToolCall
	calls     int
	sink      Sink
	state     State
}

func (t *turn) run(ctx context.Context) error {
	for {
		t.o.logger.Debug("turn state", "session_id", t.sessionID, "state", t.state)
		var err error
		switch t.state {
		case StateModelThinking:
			err = t.think(ctx)
		case StateToolCallRequested:
			err = t.validate()
		case StateToolExecuting:
			err = t.execute(ctx)
		case StateStreaming:
			err = t.commit(ctx)
		case StateAwaitingInput:
			return nil
		default:
			return fmt.Errorf("unknown turn state %q", t.state)
		}
		if err != nil {
			return err
		}
	}
}

// think sends the conversation to the model. Content deltas are forwarded
// as they arrive; the full response decides the next state.
func (t *turn) think(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "agent.model")
	defer span.End()

	req := llm.Request{
		System:  t.system,
		History: append(append([]models.Turn(nil), t.history...), t.pending...),
		Tools:   t.o.schemas,
	}

	var content strings.Builder
	start := time.Now()
	resp, err := t.o.model.Stream(ctx, req, func(delta string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		t.state = StateStreaming
		content.WriteString(delta)
		t.sink(Event{Type: EventDelta, Content: delta})
		return nil
	})
	if err != nil {
		span.RecordError(err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	t.o.metrics.RecordLLMUsage(metrics.OpLLMStream, time.Since(start),
		int64(resp.Usage.InputTokens), int64(resp.Usage.OutputTokens))

	text := resp.Content
	if text == "" {
		text = content.String()
	}
	span.SetAttributes(attribute.Int("agent.tool_calls", len(resp.ToolCalls)))

	if len(resp.ToolCalls) > 0 {
		calls := make([]models.ToolCall, len(resp.ToolCalls))
		for i, c := range resp.ToolCalls {
			if c.ID == "" {
				c.ID = uuid.New().String()[:8]
			}
			calls[i] = c
		}
		t.requested = calls
		t.pending = append(t.pending, models.Turn{Role: models.RoleAssistant, Content: text, ToolCalls: calls})
		t.state = StateToolCallRequested
		return nil
	}

	if text == "" {
		return fmt.Errorf("%w: model returned no content", models.ErrModelBackend)
	}
	t.pending = append(t.pending, models.Turn{Role: models.RoleAssistant, Content: text})
	t.state = StateStreaming
	return nil
}

// validate enforces the per-turn call bound and checks every requested call
// before any of them runs.
func (t *turn) validate() error {
	if t.calls+len(t.requested) > t.o.opts.MaxToolCalls {
		return fmt.Errorf("%w: more than %d tool calls in one turn", models.ErrToolLoopExceeded, t.o.opts.MaxToolCalls)
	}
	for _, call := range t.requested {
		if err := t.o.tools.Validate(call); err != nil {
			return err
		}
	}
	t.state = StateToolExecuting
	return nil
}

func (t *turn) execute(ctx context.Context) error {
	for _, call := range t.requested {
		t.calls++
		t.sink(Event{Type: EventTool, Name: call.Name, Status: ToolStarted})

		res, err := t.o.tools.Dispatch(ctx, t.sessionID, call)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}

		t.sink(Event{Type: EventTool, Name: call.Name, Status: res.Status()})
		t.pending = append(t.pending, models.Turn{
			Role:       models.RoleTool,
			Content:    res.Content,
			ToolCallID: call.ID,
			ToolName:   call.Name,
			IsError:    res.IsError,
		})
	}
	t.requested = nil
	t.state = StateModelThinking
	return nil
}

// commit appends the buffered turns in production order, all or nothing.
func (t *turn) commit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := t.o.sessions.AppendTurns(t.sessionID, t.pending...); err != nil {
		return fmt.Errorf("commit turn: %w", err)
	}
	t.state = StateAwaitingInput
	return nil
}
