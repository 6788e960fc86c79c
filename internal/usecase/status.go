package usecase

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/fairyhunter13/quantum-task-queue/internal/domain"
)

// StatusService answers task status queries.
type StatusService struct {
	Tasks domain.TaskRepository
}

// NewStatusService constructs a StatusService.
func NewStatusService(tasks domain.TaskRepository) StatusService {
	return StatusService{Tasks: tasks}
}

// Fetch returns the task and its history for a well-formed id. A
// syntactically invalid id is rejected before touching the store.
func (s StatusService) Fetch(ctx domain.Context, id string) (domain.Task, []domain.StatusChange, error) {
	if _, err := uuid.Parse(id); err != nil {
		return domain.Task{}, nil, fmt.Errorf("%w: invalid task ID format", domain.ErrInvalidArgument)
	}
	task, history, err := s.Tasks.GetWithHistory(ctx, id)
	if err != nil {
		return domain.Task{}, nil, fmt.Errorf("op=status.fetch: %w", err)
	}
	return task, history, nil
}
