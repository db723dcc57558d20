package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/raphaelgruber/diveroast/internal/metrics"
	"github.com/raphaelgruber/diveroast/internal/models"
)

var tracer = otel.Tracer("github.com/raphaelgruber/diveroast/internal/tools")

// Status values reported for a finished tool call.
const (
	StatusFinished    = "finished"
	StatusUnavailable = "unavailable"
	StatusError       = "error"
)

// Result is the outcome of a tool call as fed back to the model.
type Result struct {
	Content string
	// IsError marks a domain failure the model can react to.
	IsError bool
	// Unavailable marks a degraded result from an unreachable backend.
	Unavailable bool
}

// Status classifies the result for stream events and metrics.
func (r Result) Status() string {
	switch {
	case r.Unavailable:
		return StatusUnavailable
	case r.IsError:
		return StatusError
	default:
		return StatusFinished
	}
}

func textResult(format string, args ...any) Result {
	return Result{Content: fmt.Sprintf(format, args...)}
}

func errorResult(msg, hint string) Result {
	if hint != "" {
		msg = msg + ". " + hint
	}
	return Result{Content: msg, IsError: true}
}

// Toolbox executes tool calls against the session store and services.
type Toolbox struct {
	deps *Dependencies
}

// NewToolbox creates a toolbox.
func NewToolbox(deps *Dependencies) *Toolbox {
	if deps.DefaultK <= 0 {
		deps.DefaultK = 5
	}
	return &Toolbox{deps: deps}
}

// Validate checks a call against the schema table without running it.
func (t *Toolbox) Validate(call models.ToolCall) error {
	_, err := decodeArgs(call)
	return err
}

// Dispatch validates and runs one tool call on behalf of a session.
// It fails closed: an unknown name returns ErrUnknownTool and malformed
// arguments return ErrInvalidArguments. Domain failures come back as
// error results, never as errors. Only ctx cancellation is returned besides.
func (t *Toolbox) Dispatch(ctx context.Context, sessionID string, call models.ToolCall) (Result, error) {
	args, err := decodeArgs(call)
	if err != nil {
		t.deps.Metrics.Prometheus().IncToolCall(call.Name, "rejected")
		return Result{}, err
	}
	return t.run(ctx, sessionID, Name(call.Name), args)
}

func (t *Toolbox) run(ctx context.Context, sessionID string, name Name, args any) (Result, error) {
	ctx, span := tracer.Start(ctx, "tool."+string(name))
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	start := time.Now()
	var res Result
	switch a := args.(type) {
	case *SearchArgs:
		res = t.search(ctx, name, *a)
	case *ParseArgs:
		res = t.parseLog(ctx, *a)
	case *DiveArgs:
		if name == AnalyzeProfile {
			res = t.analyzeProfile(sessionID, *a)
		} else {
			res = t.diveSummary(sessionID, *a)
		}
	case *ListArgs:
		res = t.listDives(sessionID, *a)
	case *RefreshArgs:
		res = t.refresh(ctx)
	default:
		return Result{}, fmt.Errorf("%w: %s", models.ErrUnknownTool, name)
	}

	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, "cancelled")
		return Result{}, err
	}

	status := res.Status()
	span.SetAttributes(attribute.String("tool.status", status))
	if status != StatusFinished {
		span.SetStatus(codes.Error, status)
	}
	t.deps.Metrics.RecordTiming(metrics.OpTool, time.Since(start))
	t.deps.Metrics.Prometheus().IncToolCall(string(name), status)
	t.deps.logger().Info("tool call", "tool", name, "session_id", sessionID, "status", status,
		"duration_ms", time.Since(start).Milliseconds())
	return res, nil
}

// sessionError turns a store lookup failure into a result for the model.
func sessionError(err error) Result {
	if errors.Is(err, models.ErrSessionNotFound) {
		return errorResult("No dive log loaded in this session", "Ask the diver to upload a Subsurface XML log, or call parse_dive_log")
	}
	return errorResult("Session lookup failed", "")
}
