package agent

import (
	"context"
	"errors"

	"github.com/raphaelgruber/diveroast/internal/models"
)

// EventType names a stream event.
type EventType string

const (
	EventDelta EventType = "delta"
	EventTool  EventType = "tool"
	EventDone  EventType = "done"
	EventError EventType = "error"
)

// Tool event statuses besides the tools package's finished/unavailable/error.
const ToolStarted = "started"

// Event is one element of a chat turn's output stream. Every turn ends with
// exactly one done or error event.
type Event struct {
	Type    EventType `json:"type"`
	Content string    `json:"content,omitempty"`
	Name    string    `json:"name,omitempty"`
	Status  string    `json:"status,omitempty"`
	Error   string    `json:"error,omitempty"`
	Kind    string    `json:"kind,omitempty"`
}

// Sink receives events in order. It is called from the turn's goroutine.
type Sink func(Event)

// ErrorKind classifies a turn failure for clients and metrics.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, models.ErrToolLoopExceeded):
		return "tool_loop_exceeded"
	case errors.Is(err, models.ErrUnknownTool):
		return "unknown_tool"
	case errors.Is(err, models.ErrInvalidArguments):
		return "invalid_arguments"
	case errors.Is(err, models.ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, models.ErrTurnInProgress):
		return "turn_in_progress"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, models.ErrModelBackend):
		return "model_backend"
	case errors.Is(err, ErrEmptyMessage):
		return "invalid_message"
	default:
		return "internal"
	}
}
