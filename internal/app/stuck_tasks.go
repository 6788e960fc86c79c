package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/quantum-task-queue/internal/adapter/observability"
	"github.com/fairyhunter13/quantum-task-queue/internal/domain"
)

// stuckTaskStore is the slice of the repository the sweeper needs.
type stuckTaskStore interface {
	ListProcessingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
	Transition(ctx context.Context, id string, from, to domain.Status, upd domain.TransitionUpdate) (bool, error)
}

// StuckTaskSweeper fails tasks abandoned in processing, e.g. after a worker
// died mid-execution and the redelivered message was absorbed by the
// idempotency guard. It is opt-in: without STUCK_TASK_TIMEOUT recovery
// stays with operators, because a slow execution is indistinguishable from
// a dead worker by age alone.
type StuckTaskSweeper struct {
	tasks            stuckTaskStore
	maxProcessingAge time.Duration
	interval         time.Duration
}

// NewStuckTaskSweeper returns nil when tasks is nil or maxProcessingAge is
// not positive, so callers can unconditionally Run the result.
func NewStuckTaskSweeper(tasks stuckTaskStore, maxProcessingAge, interval time.Duration) *StuckTaskSweeper {
	if tasks == nil || maxProcessingAge <= 0 {
		return nil
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &StuckTaskSweeper{tasks: tasks, maxProcessingAge: maxProcessingAge, interval: interval}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *StuckTaskSweeper) Run(ctx context.Context) {
	if s == nil {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweepOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("stuck task sweeper stopping")
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *StuckTaskSweeper) sweepOnce(ctx context.Context) {
	tracer := otel.Tracer("tasks.sweeper")
	ctx, span := tracer.Start(ctx, "StuckTaskSweeper.sweepOnce")
	defer span.End()

	cutoff := time.Now().UTC().Add(-s.maxProcessingAge)
	const pageSize = 100
	span.SetAttributes(
		attribute.Float64("tasks.max_processing_age_seconds", s.maxProcessingAge.Seconds()),
	)

	swept := 0
	for {
		ids, err := s.tasks.ListProcessingOlderThan(ctx, cutoff, pageSize)
		if err != nil {
			span.RecordError(err)
			slog.Error("stuck task sweep failed to list tasks", slog.Any("error", err))
			return
		}
		if len(ids) == 0 {
			break
		}

		progressed := false
		for _, id := range ids {
			msg := fmt.Sprintf("%s: task stuck in processing longer than %v; failed by sweeper",
				domain.CategoryUnexpected, s.maxProcessingAge)
			ok, err := s.tasks.Transition(ctx, id, domain.StatusProcessing, domain.StatusFailed,
				domain.TransitionUpdate{ErrorMessage: msg, Notes: msg})
			if err != nil {
				span.RecordError(err)
				slog.Error("stuck task sweep failed to fail task",
					slog.String("task_id", id), slog.Any("error", err))
				continue
			}
			if ok {
				// The guard also protects against racing a worker that is
				// just finishing; a miss means the task moved on by itself.
				observability.SweepTask(domain.CategoryUnexpected)
				slog.Warn("stuck task failed by sweeper", slog.String("task_id", id))
				swept++
				progressed = true
			}
		}
		if !progressed || len(ids) < pageSize {
			break
		}
	}
	span.SetAttributes(attribute.Int("tasks.swept", swept))
}
