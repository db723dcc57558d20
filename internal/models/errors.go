package models

import (
	"errors"
	"fmt"
)

// Error taxonomy shared across packages. Check with errors.Is.
var (
	ErrParse                = errors.New("parse error")
	ErrSessionNotFound      = errors.New("session not found")
	ErrDiveNotFound         = errors.New("dive not found")
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")
	ErrModelBackend         = errors.New("model backend error")
	ErrUnknownTool          = errors.New("unknown tool")
	ErrInvalidArguments     = errors.New("invalid tool arguments")
	ErrToolLoopExceeded     = errors.New("tool loop exceeded")
	ErrTurnInProgress       = errors.New("turn already in progress")
)

// ParseError describes a malformed logbook. Sample is -1 when the problem is not sample-specific.
type ParseError struct {
	DiveID string
	Sample int
	Reason string
}

func (e *ParseError) Error() string {
	switch {
	case e.DiveID == "":
		return "parse logbook: " + e.Reason
	case e.Sample < 0:
		return fmt.Sprintf("parse dive %s: %s", e.DiveID, e.Reason)
	default:
		return fmt.Sprintf("parse dive %s sample %d: %s", e.DiveID, e.Sample, e.Reason)
	}
}

// Is makes errors.Is(err, ErrParse) match any ParseError.
func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}
