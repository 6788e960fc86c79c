package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/quantum-task-queue/internal/adapter/observability"
	"github.com/fairyhunter13/quantum-task-queue/internal/domain"
	obsctx "github.com/fairyhunter13/quantum-task-queue/internal/observability"
	"github.com/fairyhunter13/quantum-task-queue/pkg/textx"
)

// selfCheckCircuit is executed once at worker startup to prove the runner
// works before any message is consumed.
const selfCheckCircuit = `OPENQASM 3;
include "stdgates.inc";
qubit[2] q;
bit[2] c;
h q[0];
cx q[0], q[1];
c[0] = measure q[0];
c[1] = measure q[1];`

// ProcessService is the worker pipeline: decode, guard, claim, execute,
// commit. One instance serves one consume loop.
type ProcessService struct {
	Tasks  domain.TaskRepository
	Runner domain.CircuitRunner

	inflight sync.WaitGroup
}

// NewProcessService constructs a ProcessService.
func NewProcessService(tasks domain.TaskRepository, runner domain.CircuitRunner) *ProcessService {
	return &ProcessService{Tasks: tasks, Runner: runner}
}

// SelfCheck runs a fixed Bell circuit through the runner. Workers call it
// before consuming and exit nonzero on failure.
func (p *ProcessService) SelfCheck(ctx context.Context) error {
	counts, err := p.Runner.Run(ctx, selfCheckCircuit, 16)
	if err != nil {
		return fmt.Errorf("op=worker.selfcheck: %w", err)
	}
	if err := counts.Validate(); err != nil {
		return fmt.Errorf("op=worker.selfcheck: %w", err)
	}
	return nil
}

// Drain blocks until no execution is in flight.
func (p *ProcessService) Drain() { p.inflight.Wait() }

// HandleDelivery processes one queue message. It returns a non-nil error
// only when the store is unreachable, so the broker redelivers; every
// task-specific failure is written to the task and acknowledged.
func (p *ProcessService) HandleDelivery(ctx context.Context, body []byte, correlationID string) error {
	tracer := otel.Tracer("usecase.process")
	ctx, span := tracer.Start(ctx, "ProcessTask")
	defer span.End()

	lg := obsctx.LoggerFromContext(ctx)
	if correlationID != "" {
		ctx = obsctx.ContextWithCorrelationID(ctx, correlationID)
		lg = lg.With(slog.String("correlation_id", correlationID))
		ctx = obsctx.ContextWithLogger(ctx, lg)
	}

	var msg domain.TaskMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		lg.Error("malformed message, dropping",
			slog.String("body_preview", textx.Truncate(string(body), 200)),
			slog.Any("error", err))
		observability.DropMessage("malformed")
		return nil
	}
	if msg.TaskID == "" {
		lg.Error("message missing task_id, dropping")
		observability.DropMessage("missing_task_id")
		return nil
	}
	if _, err := uuid.Parse(msg.TaskID); err != nil {
		lg.Error("message task_id is not a UUID, dropping",
			slog.String("task_id", msg.TaskID))
		observability.DropMessage("bad_task_id")
		return nil
	}
	span.SetAttributes(attribute.String("task.id", msg.TaskID))
	lg = lg.With(slog.String("task_id", msg.TaskID))

	task, err := p.Tasks.Get(ctx, msg.TaskID)
	if errors.Is(err, domain.ErrNotFound) {
		lg.Error("task not found for message, dropping orphan")
		observability.DropMessage("orphan")
		return nil
	}
	if err != nil {
		return fmt.Errorf("op=process.load: %w", err)
	}

	// Idempotency guard: redelivery of a task some worker already advanced
	// is a no-op.
	if task.Status != domain.StatusPending {
		lg.Info("task already progressed, skipping",
			slog.String("status", string(task.Status)))
		observability.DropMessage("already_progressed")
		return nil
	}

	// Pre-execution rejection: a stored row that can never execute is
	// failed straight from pending.
	if rejectErr := rejectReason(task); rejectErr != nil {
		return p.reject(ctx, lg, task.ID, rejectErr)
	}

	ok, err := p.Tasks.Transition(ctx, task.ID, domain.StatusPending, domain.StatusProcessing,
		domain.TransitionUpdate{Notes: domain.NoteWorkerClaimed})
	if err != nil {
		if errors.Is(err, domain.ErrStorageUnavailable) {
			return fmt.Errorf("op=process.claim: %w", err)
		}
		lg.Error("claim failed", slog.Any("error", err))
		return nil
	}
	if !ok {
		lg.Info("claim lost to another worker, skipping")
		observability.DropMessage("claim_lost")
		return nil
	}
	observability.ClaimTask()
	lg.Info("task claimed",
		slog.Int("shots", task.Shots),
		slog.String("circuit_preview", textx.Truncate(task.Circuit, 120)))

	started := time.Now()
	counts, execErr := p.execute(ctx, task)
	if execErr == nil {
		if verr := counts.Validate(); verr != nil {
			execErr = fmt.Errorf("%w: runner returned malformed counts: %v", domain.ErrCircuitExecution, verr)
		}
	}

	// Commits run on a context detached from the consume loop's cancel so a
	// shutdown mid-execution still lands the terminal status.
	commitCtx := context.WithoutCancel(ctx)
	if execErr != nil {
		return p.fail(commitCtx, lg, task.ID, execErr)
	}

	ok, err = p.Tasks.Transition(commitCtx, task.ID, domain.StatusProcessing, domain.StatusCompleted,
		domain.TransitionUpdate{Result: counts, Notes: domain.NoteTaskCompleted})
	if err != nil {
		if errors.Is(err, domain.ErrStorageUnavailable) {
			return fmt.Errorf("op=process.commit: %w", err)
		}
		lg.Error("commit failed", slog.Any("error", err))
		return nil
	}
	if !ok {
		// Status diverged; the winning transition wrote its own history.
		lg.Warn("completion commit lost, acknowledging anyway")
		observability.TasksProcessing.Dec()
		return nil
	}
	observability.CompleteTask(time.Since(started))
	lg.Info("task completed",
		slog.Duration("execution", time.Since(started)),
		slog.Int("outcomes", len(counts)))
	return nil
}

// rejectReason reports why a stored task cannot be executed, or nil.
func rejectReason(task domain.Task) error {
	if task.Circuit == "" {
		return fmt.Errorf("%w: stored circuit is empty", domain.ErrCircuitParse)
	}
	if task.Shots < domain.MinShots || task.Shots > domain.MaxShots {
		return fmt.Errorf("stored shots %d outside [%d, %d]", task.Shots, domain.MinShots, domain.MaxShots)
	}
	return nil
}

// reject fails a task straight from pending, before execution starts.
func (p *ProcessService) reject(ctx context.Context, lg *slog.Logger, id string, cause error) error {
	// Parse errors echo user circuit text; strip control characters before
	// the message is stored and served back.
	msg := textx.SanitizeText(domain.FormatTaskError(cause))
	ok, err := p.Tasks.Transition(ctx, id, domain.StatusPending, domain.StatusFailed,
		domain.TransitionUpdate{ErrorMessage: msg, Notes: "Rejected before execution: " + cause.Error()})
	if err != nil {
		if errors.Is(err, domain.ErrStorageUnavailable) {
			return fmt.Errorf("op=process.reject: %w", err)
		}
		lg.Error("rejection commit failed", slog.Any("error", err))
		return nil
	}
	if ok {
		observability.RejectTask(domain.ClassifyError(cause))
	}
	lg.Warn("task rejected before execution", slog.String("error_message", msg))
	return nil
}

// fail commits processing→failed with the classified error message.
func (p *ProcessService) fail(ctx context.Context, lg *slog.Logger, id string, cause error) error {
	category := domain.ClassifyError(cause)
	msg := textx.SanitizeText(domain.FormatTaskError(cause))
	ok, err := p.Tasks.Transition(ctx, id, domain.StatusProcessing, domain.StatusFailed,
		domain.TransitionUpdate{ErrorMessage: msg, Notes: msg})
	if err != nil {
		if errors.Is(err, domain.ErrStorageUnavailable) {
			return fmt.Errorf("op=process.fail: %w", err)
		}
		lg.Error("failure commit failed", slog.Any("error", err))
		return nil
	}
	if !ok {
		lg.Warn("failure commit lost, acknowledging anyway")
	}
	observability.FailTask(category)
	lg.Warn("task failed",
		slog.String("category", category),
		slog.String("error_message", msg))
	return nil
}

// execute runs the CPU-bound runner on its own goroutine so the consume
// loop's goroutine only blocks on a channel. Panics escaping the runner are
// captured as unexpected errors; a running execution is never cancelled.
func (p *ProcessService) execute(ctx context.Context, task domain.Task) (domain.Counts, error) {
	p.inflight.Add(1)

	type outcome struct {
		counts domain.Counts
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		defer p.inflight.Done()
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{err: fmt.Errorf("panic during execution: %v", rec)}
			}
		}()
		counts, err := p.Runner.Run(ctx, task.Circuit, task.Shots)
		done <- outcome{counts: counts, err: err}
	}()

	res := <-done
	return res.counts, res.err
}
