// Package dispatch executes batch groups against agent backends with
// bounded concurrency, retry, fallback and halt semantics.
package dispatch

import (
	"errors"
	"fmt"
	"time"

	"github.com/ShayCichocki/taskweave/pkg/models"
)

var (
	// ErrHalted is recorded for subtasks that never started because the workflow halted.
	ErrHalted = errors.New("workflow halted")
	// ErrIllegalTransition is returned when a subtask state change breaks the state machine.
	ErrIllegalTransition = errors.New("illegal state transition")
)

// Error is a classified dispatch failure.
type Error struct {
	Kind      models.ErrorKind
	SubtaskID string
	AgentID   string
	// Attempt is the 1-based attempt that produced the error.
	Attempt int
	Err     error
}

// NewError wraps err with its classification.
func NewError(kind models.ErrorKind, subtaskID, agentID string, attempt int, err error) *Error {
	return &Error{Kind: kind, SubtaskID: subtaskID, AgentID: agentID, Attempt: attempt, Err: err}
}

func (e *Error) Error() string {
	msg := "<nil>"
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.AgentID != "" {
		return fmt.Sprintf("%s: subtask %s on %s (attempt %d): %s", e.Kind, e.SubtaskID, e.AgentID, e.Attempt, msg)
	}
	return fmt.Sprintf("%s: subtask %s: %s", e.Kind, e.SubtaskID, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the failure kind is retried.
func (e *Error) Retryable() bool { return e.Kind.Retryable() }

// Record converts the error into the form kept in ExecutionState.
func (e *Error) Record(at time.Time) models.ExecutionError {
	rec := models.ExecutionError{
		SubtaskID: e.SubtaskID,
		AgentID:   e.AgentID,
		Kind:      e.Kind,
		Attempt:   e.Attempt,
		Retryable: e.Retryable(),
		Timestamp: at,
	}
	if e.Err != nil {
		rec.Message = e.Err.Error()
	}
	return rec
}

// KindOf returns the classification of err when it is, or wraps, an *Error.
func KindOf(err error) (models.ErrorKind, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return "", false
}
