// Package domain holds the task entities, the lifecycle rules and the ports
// shared by the HTTP server and the worker.
package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrNotFound           = errors.New("not found")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrQueueUnavailable   = errors.New("queue unavailable")
	ErrCircuitParse       = errors.New("invalid circuit syntax")
	ErrCircuitExecution   = errors.New("execution fault")
)

// Shots bounds for a single task. Zero on input means DefaultShots.
const (
	DefaultShots = 1024
	MinShots     = 1
	MaxShots     = 100_000
)

// Task is one submitted unit of work. Result is set only for completed
// tasks, ErrorMessage only for failed ones, CompletedAt for either.
type Task struct {
	ID           string
	Circuit      string
	Shots        int
	SubmittedAt  time.Time
	Status       Status
	CompletedAt  *time.Time
	Result       Counts
	ErrorMessage *string
}

// StatusChange is one row of the append-only status history.
type StatusChange struct {
	Status         Status
	TransitionedAt time.Time
	Notes          string
}

// TransitionUpdate carries the payload written alongside a guarded
// transition. Result is persisted only when moving to StatusCompleted,
// ErrorMessage only when moving to StatusFailed.
type TransitionUpdate struct {
	Notes        string
	Result       Counts
	ErrorMessage string
}

// TaskMessage is the queue payload dispatched to workers.
type TaskMessage struct {
	TaskID  string `json:"task_id"`
	Circuit string `json:"circuit"`
}

// Repositories (ports)

type TaskRepository interface {
	// Create inserts the task as pending together with its first history
	// row; both share one timestamp and one transaction.
	Create(ctx Context, circuit string, shots int) (Task, error)
	Get(ctx Context, id string) (Task, error)
	// GetWithHistory returns the task and its history ascending by
	// transition time, read from a single snapshot.
	GetWithHistory(ctx Context, id string) (Task, []StatusChange, error)
	// Transition compare-and-sets current_status from `from` to `to` and
	// appends a history row in the same transaction. It reports false when
	// the task was no longer in `from`, without error.
	Transition(ctx Context, id string, from, to Status, upd TransitionUpdate) (bool, error)
	Ping(ctx Context) error
}

// Queue (port)

type Queue interface {
	PublishTask(ctx Context, msg TaskMessage, correlationID string) error
}

// CircuitRunner (port)
// Run executes circuit text for the given number of shots and returns
// measurement counts. Implementations are synchronous and CPU-bound;
// callers are expected to move the call off their scheduling loop.
type CircuitRunner interface {
	Run(ctx Context, circuit string, shots int) (Counts, error)
}

// Context aliases context.Context so port signatures stay uniform across
// the domain; adapters and usecases pass the std context through.
type Context = context.Context
