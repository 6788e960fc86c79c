package domain

import (
	"errors"
	"fmt"
)

// Status is the task lifecycle state. Wire and storage values are lowercase.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// transitions is the lifecycle graph. pending→failed covers rejection before
// execution starts; terminal states have no outgoing edges.
var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusFailed},
	StatusProcessing: {StatusCompleted, StatusFailed},
}

// Valid reports whether s is one of the four lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s absorbs: no transition may leave it.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo reports whether the edge s→to exists in the graph.
func (s Status) CanTransitionTo(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Notes written by the standard transitions.
const (
	NoteTaskCreated   = "Task created"
	NoteWorkerClaimed = "Worker started processing"
	NoteTaskCompleted = "Task completed successfully"
)

// Categories prepended to a failed task's error message.
const (
	CategoryParse      = "Circuit parse error"
	CategoryExecution  = "Execution error"
	CategoryUnexpected = "Unexpected error"
)

// ClassifyError maps an execution failure to its category. Anything that is
// neither a parse fault nor an executor fault counts as unexpected.
func ClassifyError(err error) string {
	switch {
	case errors.Is(err, ErrCircuitParse):
		return CategoryParse
	case errors.Is(err, ErrCircuitExecution):
		return CategoryExecution
	default:
		return CategoryUnexpected
	}
}

// FormatTaskError renders the error_message stored on a failed task,
// category first.
func FormatTaskError(err error) string {
	return fmt.Sprintf("%s: %v", ClassifyError(err), err)
}
