package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/quantum-task-queue/internal/domain"
)

// PgxPool is a minimal subset of pgxpool used by the repo for easy testing.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// TaskRepo persists and loads tasks from PostgreSQL using a minimal pgx pool.
type TaskRepo struct{ Pool PgxPool }

// NewTaskRepo constructs a TaskRepo with the given pool.
func NewTaskRepo(p PgxPool) *TaskRepo { return &TaskRepo{Pool: p} }

const taskColumns = `task_id, circuit, shots, submitted_at, current_status, completed_at, result, error_message`

const insertHistorySQL = `INSERT INTO status_history (task_id, status, transitioned_at, notes) VALUES ($1,$2,$3,$4)`

// Create inserts a pending task together with its first history row. Both
// rows carry the same timestamp and land in one transaction.
func (r *TaskRepo) Create(ctx domain.Context, circuit string, shots int) (domain.Task, error) {
	tracer := otel.Tracer("repo.tasks")
	ctx, span := tracer.Start(ctx, "tasks.Create")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "tasks"),
	)

	task := domain.Task{
		ID:          uuid.New().String(),
		Circuit:     circuit,
		Shots:       shots,
		SubmittedAt: time.Now().UTC(),
		Status:      domain.StatusPending,
	}

	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Task{}, fmt.Errorf("op=task.create: %w: %w", domain.ErrStorageUnavailable, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const insertTask = `INSERT INTO tasks (task_id, circuit, shots, submitted_at, current_status) VALUES ($1,$2,$3,$4,$5)`
	if _, err := tx.Exec(ctx, insertTask, task.ID, task.Circuit, task.Shots, task.SubmittedAt, task.Status); err != nil {
		return domain.Task{}, fmt.Errorf("op=task.create: %w: %w", domain.ErrStorageUnavailable, err)
	}
	if _, err := tx.Exec(ctx, insertHistorySQL, task.ID, task.Status, task.SubmittedAt, domain.NoteTaskCreated); err != nil {
		return domain.Task{}, fmt.Errorf("op=task.create: %w: %w", domain.ErrStorageUnavailable, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Task{}, fmt.Errorf("op=task.create: %w: %w", domain.ErrStorageUnavailable, err)
	}
	return task, nil
}

// Get loads a task by id.
func (r *TaskRepo) Get(ctx domain.Context, id string) (domain.Task, error) {
	tracer := otel.Tracer("repo.tasks")
	ctx, span := tracer.Start(ctx, "tasks.Get")
	defer span.End()

	q := `SELECT ` + taskColumns + ` FROM tasks WHERE task_id=$1`
	t, err := scanTask(r.Pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Task{}, fmt.Errorf("op=task.get: %w", domain.ErrNotFound)
		}
		return domain.Task{}, fmt.Errorf("op=task.get: %w: %w", domain.ErrStorageUnavailable, err)
	}
	return t, nil
}

// GetWithHistory loads a task and its full status history from one
// repeatable-read snapshot so the history tail always matches the status.
func (r *TaskRepo) GetWithHistory(ctx domain.Context, id string) (domain.Task, []domain.StatusChange, error) {
	tracer := otel.Tracer("repo.tasks")
	ctx, span := tracer.Start(ctx, "tasks.GetWithHistory")
	defer span.End()

	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return domain.Task{}, nil, fmt.Errorf("op=task.get_history: %w: %w", domain.ErrStorageUnavailable, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	t, err := scanTask(tx.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE task_id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Task{}, nil, fmt.Errorf("op=task.get_history: %w", domain.ErrNotFound)
		}
		return domain.Task{}, nil, fmt.Errorf("op=task.get_history: %w: %w", domain.ErrStorageUnavailable, err)
	}

	rows, err := tx.Query(ctx, `SELECT status, transitioned_at, COALESCE(notes,'') FROM status_history WHERE task_id=$1 ORDER BY transitioned_at ASC, id ASC`, id)
	if err != nil {
		return domain.Task{}, nil, fmt.Errorf("op=task.get_history: %w: %w", domain.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var history []domain.StatusChange
	for rows.Next() {
		var sc domain.StatusChange
		if err := rows.Scan(&sc.Status, &sc.TransitionedAt, &sc.Notes); err != nil {
			return domain.Task{}, nil, fmt.Errorf("op=task.get_history: %w: %w", domain.ErrStorageUnavailable, err)
		}
		history = append(history, sc)
	}
	if err := rows.Err(); err != nil {
		return domain.Task{}, nil, fmt.Errorf("op=task.get_history: %w: %w", domain.ErrStorageUnavailable, err)
	}
	_ = tx.Commit(ctx)
	return t, history, nil
}

// Transition performs the guarded compare-and-set: the task row is updated
// only while current_status still equals `from`, and the matching history
// row is appended in the same transaction. Returns false without error when
// the guard misses.
func (r *TaskRepo) Transition(ctx domain.Context, id string, from, to domain.Status, upd domain.TransitionUpdate) (bool, error) {
	tracer := otel.Tracer("repo.tasks")
	ctx, span := tracer.Start(ctx, "tasks.Transition")
	defer span.End()
	span.SetAttributes(
		attribute.String("task.id", id),
		attribute.String("task.from", string(from)),
		attribute.String("task.to", string(to)),
	)

	if !from.CanTransitionTo(to) {
		return false, fmt.Errorf("op=task.transition: %s to %s: %w", from, to, domain.ErrInvalidTransition)
	}

	now := time.Now().UTC()
	var (
		q    string
		args []any
	)
	switch to {
	case domain.StatusCompleted:
		counts := upd.Result
		if counts == nil {
			counts = domain.Counts{}
		}
		raw, err := json.Marshal(counts)
		if err != nil {
			return false, fmt.Errorf("op=task.transition: encode result: %w", err)
		}
		q = `UPDATE tasks SET current_status=$2, completed_at=$3, result=$4 WHERE task_id=$1 AND current_status=$5`
		args = []any{id, to, now, raw, from}
	case domain.StatusFailed:
		q = `UPDATE tasks SET current_status=$2, completed_at=$3, error_message=$4 WHERE task_id=$1 AND current_status=$5`
		args = []any{id, to, now, upd.ErrorMessage, from}
	default:
		q = `UPDATE tasks SET current_status=$2 WHERE task_id=$1 AND current_status=$3`
		args = []any{id, to, from}
	}

	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, fmt.Errorf("op=task.transition: %w: %w", domain.ErrStorageUnavailable, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, q, args...)
	if err != nil {
		return false, fmt.Errorf("op=task.transition: %w: %w", domain.ErrStorageUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		// Another writer advanced the task first; the rollback is a no-op.
		return false, nil
	}
	if _, err := tx.Exec(ctx, insertHistorySQL, id, to, now, upd.Notes); err != nil {
		return false, fmt.Errorf("op=task.transition: %w: %w", domain.ErrStorageUnavailable, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("op=task.transition: %w: %w", domain.ErrStorageUnavailable, err)
	}
	return true, nil
}

// ListProcessingOlderThan returns ids of tasks still in processing whose
// latest claim happened before cutoff. Used by the stuck-task sweeper.
func (r *TaskRepo) ListProcessingOlderThan(ctx domain.Context, cutoff time.Time, limit int) ([]string, error) {
	const q = `SELECT t.task_id
FROM tasks t
JOIN status_history h ON h.task_id = t.task_id AND h.status = 'processing'
WHERE t.current_status = 'processing'
GROUP BY t.task_id
HAVING MAX(h.transitioned_at) < $1
ORDER BY MAX(h.transitioned_at) ASC
LIMIT $2`
	rows, err := r.Pool.Query(ctx, q, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("op=task.list_stuck: %w: %w", domain.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("op=task.list_stuck: %w: %w", domain.ErrStorageUnavailable, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=task.list_stuck: %w: %w", domain.ErrStorageUnavailable, err)
	}
	return ids, nil
}

// Ping reports store liveness.
func (r *TaskRepo) Ping(ctx domain.Context) error {
	if err := r.Pool.Ping(ctx); err != nil {
		return fmt.Errorf("op=task.ping: %w: %w", domain.ErrStorageUnavailable, err)
	}
	return nil
}

func scanTask(row pgx.Row) (domain.Task, error) {
	var (
		t         domain.Task
		completed *time.Time
		rawResult []byte
		errMsg    *string
	)
	if err := row.Scan(&t.ID, &t.Circuit, &t.Shots, &t.SubmittedAt, &t.Status, &completed, &rawResult, &errMsg); err != nil {
		return domain.Task{}, err
	}
	t.CompletedAt = completed
	t.ErrorMessage = errMsg
	if len(rawResult) > 0 {
		if err := json.Unmarshal(rawResult, &t.Result); err != nil {
			return domain.Task{}, fmt.Errorf("decode result: %w", err)
		}
	}
	return t, nil
}
