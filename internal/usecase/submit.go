// Package usecase contains the application services: task submission and
// the worker's per-delivery processing pipeline.
package usecase

import (
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/quantum-task-queue/internal/adapter/observability"
	"github.com/fairyhunter13/quantum-task-queue/internal/domain"
)

// SubmitService coordinates task creation and dispatch: persist first,
// publish second.
type SubmitService struct {
	Tasks domain.TaskRepository
	Queue domain.Queue
}

// NewSubmitService constructs a SubmitService with its dependencies.
func NewSubmitService(tasks domain.TaskRepository, queue domain.Queue) SubmitService {
	return SubmitService{Tasks: tasks, Queue: queue}
}

// Submit validates the request, persists a pending task and enqueues its
// message. When the publish fails the pending row stays in place and the
// queue error is surfaced; re-enqueueing orphaned rows is an operational
// concern, not a rollback.
func (s SubmitService) Submit(ctx domain.Context, circuit string, shots int, correlationID string) (domain.Task, error) {
	tracer := otel.Tracer("usecase.submit")
	ctx, span := tracer.Start(ctx, "Submit")
	defer span.End()

	if circuit == "" {
		return domain.Task{}, fmt.Errorf("%w: circuit must not be empty", domain.ErrInvalidArgument)
	}
	if shots == 0 {
		shots = domain.DefaultShots
	}
	if shots < domain.MinShots || shots > domain.MaxShots {
		return domain.Task{}, fmt.Errorf("%w: shots must be between %d and %d", domain.ErrInvalidArgument, domain.MinShots, domain.MaxShots)
	}

	task, err := s.Tasks.Create(ctx, circuit, shots)
	if err != nil {
		return domain.Task{}, fmt.Errorf("op=submit.create: %w", err)
	}
	span.SetAttributes(attribute.String("task.id", task.ID))

	msg := domain.TaskMessage{TaskID: task.ID, Circuit: task.Circuit}
	if err := s.Queue.PublishTask(ctx, msg, correlationID); err != nil {
		// The pending row is deliberately left behind for reconciliation.
		observability.PublishFailed()
		slog.ErrorContext(ctx, "task publish failed, row remains pending",
			slog.String("task_id", task.ID),
			slog.Any("error", err))
		return domain.Task{}, fmt.Errorf("op=submit.publish: %w", err)
	}

	observability.SubmitTask()
	slog.InfoContext(ctx, "task submitted",
		slog.String("task_id", task.ID),
		slog.Int("shots", task.Shots),
		slog.Int("circuit_length", len(task.Circuit)))
	return task, nil
}
