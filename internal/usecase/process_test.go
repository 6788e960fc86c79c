package usecase_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/quantum-task-queue/internal/domain"
	"github.com/fairyhunter13/quantum-task-queue/internal/usecase"
)

const testTaskID = "3b241101-e2bb-4255-8caf-4136c566a962"

type runnerCall struct {
	circuit string
	shots   int
}

type stubRunner struct {
	counts  domain.Counts
	err     error
	doPanic bool
	calls   []runnerCall
}

func (r *stubRunner) Run(_ domain.Context, circuit string, shots int) (domain.Counts, error) {
	r.calls = append(r.calls, runnerCall{circuit: circuit, shots: shots})
	if r.doPanic {
		panic("index out of range in runner")
	}
	return r.counts, r.err
}

func taskBody(id string) []byte {
	return []byte(fmt.Sprintf(`{"task_id":%q,"circuit":"OPENQASM 3; qubit q;"}`, id))
}

func pendingTask() domain.Task {
	return domain.Task{Status: domain.StatusPending, Circuit: "OPENQASM 3; qubit q; bit c; c = measure q;", Shots: 100}
}

func TestHandleDelivery_Completes(t *testing.T) {
	t.Parallel()
	repo := &stubTaskRepo{task: pendingTask()}
	runner := &stubRunner{counts: domain.Counts{"0": 52, "1": 48}}
	svc := usecase.NewProcessService(repo, runner)

	err := svc.HandleDelivery(context.Background(), taskBody(testTaskID), "corr-9")
	require.NoError(t, err)

	require.Len(t, runner.calls, 1)
	assert.Equal(t, repo.task.Circuit, runner.calls[0].circuit)
	assert.Equal(t, 100, runner.calls[0].shots)

	require.Len(t, repo.transitions, 2)
	claim := repo.transitions[0]
	assert.Equal(t, testTaskID, claim.id)
	assert.Equal(t, domain.StatusPending, claim.from)
	assert.Equal(t, domain.StatusProcessing, claim.to)
	assert.Equal(t, domain.NoteWorkerClaimed, claim.upd.Notes)

	commit := repo.transitions[1]
	assert.Equal(t, domain.StatusProcessing, commit.from)
	assert.Equal(t, domain.StatusCompleted, commit.to)
	assert.Equal(t, runner.counts, commit.upd.Result)
	assert.Equal(t, domain.NoteTaskCompleted, commit.upd.Notes)
}

func TestHandleDelivery_PoisonMessagesAcked(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		body []byte
	}{
		{"malformed json", []byte(`{"task_id": `)},
		{"missing task_id", []byte(`{"circuit":"OPENQASM 3;"}`)},
		{"task_id not a uuid", taskBody("not-a-uuid")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			repo := &stubTaskRepo{task: pendingTask()}
			runner := &stubRunner{}
			svc := usecase.NewProcessService(repo, runner)

			err := svc.HandleDelivery(context.Background(), tt.body, "")
			// nil means ack: the message can never succeed on redelivery.
			require.NoError(t, err)
			assert.Empty(t, repo.transitions)
			assert.Empty(t, runner.calls)
		})
	}
}

func TestHandleDelivery_OrphanDropped(t *testing.T) {
	t.Parallel()
	repo := &stubTaskRepo{getErr: fmt.Errorf("op=repo.get: %w", domain.ErrNotFound)}
	svc := usecase.NewProcessService(repo, &stubRunner{})

	err := svc.HandleDelivery(context.Background(), taskBody(testTaskID), "")
	require.NoError(t, err)
	assert.Empty(t, repo.transitions)
}

func TestHandleDelivery_StorageDownOnLoadRedelivers(t *testing.T) {
	t.Parallel()
	repo := &stubTaskRepo{getErr: fmt.Errorf("op=repo.get: %w", domain.ErrStorageUnavailable)}
	svc := usecase.NewProcessService(repo, &stubRunner{})

	err := svc.HandleDelivery(context.Background(), taskBody(testTaskID), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
}

func TestHandleDelivery_AlreadyProgressedIsNoop(t *testing.T) {
	t.Parallel()
	for _, status := range []domain.Status{domain.StatusProcessing, domain.StatusCompleted, domain.StatusFailed} {
		task := pendingTask()
		task.Status = status
		repo := &stubTaskRepo{task: task}
		runner := &stubRunner{}
		svc := usecase.NewProcessService(repo, runner)

		err := svc.HandleDelivery(context.Background(), taskBody(testTaskID), "")
		require.NoError(t, err, status)
		assert.Empty(t, repo.transitions, status)
		assert.Empty(t, runner.calls, status)
	}
}

func TestHandleDelivery_RejectsStoredEmptyCircuit(t *testing.T) {
	t.Parallel()
	task := pendingTask()
	task.Circuit = ""
	repo := &stubTaskRepo{task: task}
	runner := &stubRunner{}
	svc := usecase.NewProcessService(repo, runner)

	err := svc.HandleDelivery(context.Background(), taskBody(testTaskID), "")
	require.NoError(t, err)
	assert.Empty(t, runner.calls)

	require.Len(t, repo.transitions, 1)
	tr := repo.transitions[0]
	assert.Equal(t, domain.StatusPending, tr.from)
	assert.Equal(t, domain.StatusFailed, tr.to)
	assert.True(t, strings.HasPrefix(tr.upd.ErrorMessage, domain.CategoryParse+": "), tr.upd.ErrorMessage)
	assert.True(t, strings.HasPrefix(tr.upd.Notes, "Rejected before execution: "), tr.upd.Notes)
}

func TestHandleDelivery_RejectsStoredShotsOutOfRange(t *testing.T) {
	t.Parallel()
	task := pendingTask()
	task.Shots = domain.MaxShots + 1
	repo := &stubTaskRepo{task: task}
	svc := usecase.NewProcessService(repo, &stubRunner{})

	err := svc.HandleDelivery(context.Background(), taskBody(testTaskID), "")
	require.NoError(t, err)
	require.Len(t, repo.transitions, 1)
	assert.Equal(t, domain.StatusFailed, repo.transitions[0].to)
	assert.True(t, strings.HasPrefix(repo.transitions[0].upd.ErrorMessage, domain.CategoryUnexpected+": "))
}

func TestHandleDelivery_ClaimLostSkipsExecution(t *testing.T) {
	t.Parallel()
	repo := &stubTaskRepo{task: pendingTask(), transitionResults: []transitionResult{{ok: false}}}
	runner := &stubRunner{}
	svc := usecase.NewProcessService(repo, runner)

	err := svc.HandleDelivery(context.Background(), taskBody(testTaskID), "")
	require.NoError(t, err)
	assert.Empty(t, runner.calls)
	assert.Len(t, repo.transitions, 1)
}

func TestHandleDelivery_ClaimStorageDownRedelivers(t *testing.T) {
	t.Parallel()
	repo := &stubTaskRepo{
		task:              pendingTask(),
		transitionResults: []transitionResult{{err: fmt.Errorf("tx: %w", domain.ErrStorageUnavailable)}},
	}
	svc := usecase.NewProcessService(repo, &stubRunner{})

	err := svc.HandleDelivery(context.Background(), taskBody(testTaskID), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
}

func TestHandleDelivery_ExecutionFailureClassified(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		runner   *stubRunner
		category string
	}{
		{
			name:     "parse fault",
			runner:   &stubRunner{err: fmt.Errorf("%w: unknown gate", domain.ErrCircuitParse)},
			category: domain.CategoryParse,
		},
		{
			name:     "execution fault",
			runner:   &stubRunner{err: fmt.Errorf("%w: too many qubits", domain.ErrCircuitExecution)},
			category: domain.CategoryExecution,
		},
		{
			name:     "panic captured",
			runner:   &stubRunner{doPanic: true},
			category: domain.CategoryUnexpected,
		},
		{
			name:     "malformed counts",
			runner:   &stubRunner{counts: domain.Counts{"02": 10}},
			category: domain.CategoryExecution,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			repo := &stubTaskRepo{task: pendingTask()}
			svc := usecase.NewProcessService(repo, tt.runner)

			err := svc.HandleDelivery(context.Background(), taskBody(testTaskID), "")
			require.NoError(t, err)

			require.Len(t, repo.transitions, 2)
			fail := repo.transitions[1]
			assert.Equal(t, domain.StatusProcessing, fail.from)
			assert.Equal(t, domain.StatusFailed, fail.to)
			assert.True(t, strings.HasPrefix(fail.upd.ErrorMessage, tt.category+": "), fail.upd.ErrorMessage)
			assert.Empty(t, fail.upd.Result)
		})
	}
}

func TestHandleDelivery_CommitStorageDownRedelivers(t *testing.T) {
	t.Parallel()
	repo := &stubTaskRepo{
		task: pendingTask(),
		transitionResults: []transitionResult{
			{ok: true},
			{err: fmt.Errorf("tx: %w", domain.ErrStorageUnavailable)},
		},
	}
	svc := usecase.NewProcessService(repo, &stubRunner{counts: domain.Counts{"0": 100}})

	err := svc.HandleDelivery(context.Background(), taskBody(testTaskID), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
}

func TestHandleDelivery_CommitLostStillAcks(t *testing.T) {
	t.Parallel()
	repo := &stubTaskRepo{
		task:              pendingTask(),
		transitionResults: []transitionResult{{ok: true}, {ok: false}},
	}
	svc := usecase.NewProcessService(repo, &stubRunner{counts: domain.Counts{"0": 100}})

	err := svc.HandleDelivery(context.Background(), taskBody(testTaskID), "")
	require.NoError(t, err)
}

func TestSelfCheck(t *testing.T) {
	t.Parallel()

	t.Run("passes with healthy runner", func(t *testing.T) {
		t.Parallel()
		runner := &stubRunner{counts: domain.Counts{"00": 9, "11": 7}}
		svc := usecase.NewProcessService(&stubTaskRepo{}, runner)
		require.NoError(t, svc.SelfCheck(context.Background()))
		require.Len(t, runner.calls, 1)
		assert.Equal(t, 16, runner.calls[0].shots)
		assert.Contains(t, runner.calls[0].circuit, "OPENQASM 3")
	})

	t.Run("fails when runner errors", func(t *testing.T) {
		t.Parallel()
		runner := &stubRunner{err: fmt.Errorf("%w: broken", domain.ErrCircuitExecution)}
		svc := usecase.NewProcessService(&stubTaskRepo{}, runner)
		require.Error(t, svc.SelfCheck(context.Background()))
	})

	t.Run("fails on malformed counts", func(t *testing.T) {
		t.Parallel()
		runner := &stubRunner{counts: domain.Counts{"0x": 16}}
		svc := usecase.NewProcessService(&stubTaskRepo{}, runner)
		require.Error(t, svc.SelfCheck(context.Background()))
	})
}
