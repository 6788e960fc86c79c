// Package httpserver contains the HTTP handlers and middleware for the task
// API: submission, status lookup and health probing. Handlers translate
// between the JSON wire contract and the usecase layer; business rules live
// below this package.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fairyhunter13/quantum-task-queue/internal/config"
	"github.com/fairyhunter13/quantum-task-queue/internal/domain"
	"github.com/fairyhunter13/quantum-task-queue/internal/usecase"
)

// Server aggregates handler dependencies.
type Server struct {
	Cfg        config.Config
	Submit     usecase.SubmitService
	Status     usecase.StatusService
	DBCheck    func(ctx context.Context) error
	QueueCheck func(ctx context.Context) error
}

// NewServer constructs a Server with all handlers and checks wired.
func NewServer(cfg config.Config, submit usecase.SubmitService, status usecase.StatusService, dbCheck, queueCheck func(context.Context) error) *Server {
	return &Server{Cfg: cfg, Submit: submit, Status: status, DBCheck: dbCheck, QueueCheck: queueCheck}
}

type submitResponse struct {
	TaskID        string    `json:"task_id"`
	Message       string    `json:"message"`
	SubmittedAt   time.Time `json:"submitted_at"`
	CorrelationID string    `json:"correlation_id"`
}

// SubmitHandler accepts a circuit, stores it as a pending task and enqueues
// it for a worker.
func (s *Server) SubmitHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeValidationFailed(w, r, map[string]string{"body": "must be valid JSON"})
			return
		}
		if details := validateSubmit(req); len(details) > 0 {
			writeValidationFailed(w, r, details)
			return
		}

		shots := 0
		if req.Shots != nil {
			shots = *req.Shots
		}
		task, err := s.Submit.Submit(r.Context(), req.Circuit, shots, correlationIDFrom(r))
		if err != nil {
			writeError(w, r, fmt.Errorf("submit: %w", err))
			return
		}
		LoggerFrom(r).Info("task accepted", "task_id", task.ID)
		writeJSON(w, http.StatusCreated, submitResponse{
			TaskID:        task.ID,
			Message:       "Task submitted successfully.",
			SubmittedAt:   task.SubmittedAt,
			CorrelationID: correlationIDFrom(r),
		})
	}
}

type historyEntry struct {
	Status         domain.Status `json:"status"`
	TransitionedAt time.Time     `json:"transitioned_at"`
	Notes          string        `json:"notes,omitempty"`
}

type statusResponse struct {
	TaskID        string         `json:"task_id"`
	Status        domain.Status  `json:"status"`
	SubmittedAt   time.Time      `json:"submitted_at"`
	Message       string         `json:"message"`
	Result        domain.Counts  `json:"result,omitempty"`
	StatusHistory []historyEntry `json:"status_history"`
	CorrelationID string         `json:"correlation_id"`
}

// StatusHandler returns the task, its progress message and the full status
// history.
func (s *Server) StatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "taskID")
		task, history, err := s.Status.Fetch(r.Context(), id)
		if errors.Is(err, domain.ErrInvalidArgument) {
			writeJSON(w, http.StatusBadRequest, errorResponse{
				Error:         "Invalid task ID format. Expected UUID v4.",
				CorrelationID: correlationIDFrom(r),
			})
			return
		}
		if err != nil {
			writeError(w, r, err)
			return
		}

		resp := statusResponse{
			TaskID:        task.ID,
			Status:        task.Status,
			SubmittedAt:   task.SubmittedAt,
			Message:       statusMessage(task),
			Result:        task.Result,
			StatusHistory: make([]historyEntry, 0, len(history)),
			CorrelationID: correlationIDFrom(r),
		}
		for _, sc := range history {
			resp.StatusHistory = append(resp.StatusHistory, historyEntry{
				Status:         sc.Status,
				TransitionedAt: sc.TransitionedAt,
				Notes:          sc.Notes,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// statusMessage renders the human-readable progress line for a task.
func statusMessage(task domain.Task) string {
	switch task.Status {
	case domain.StatusCompleted:
		return "Task completed successfully."
	case domain.StatusFailed:
		if task.ErrorMessage != nil {
			return *task.ErrorMessage
		}
		return "Task failed."
	default:
		return "Task is still in progress."
	}
}

type healthResponse struct {
	Status         string    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
	DatabaseStatus string    `json:"database_status"`
	QueueStatus    string    `json:"queue_status"`
}

// HealthHandler probes both backends with a short deadline. The response is
// always 200; degradation is reported in the body so a load balancer can
// keep routing while operators see the broken dependency.
func (s *Server) HealthHandler() http.HandlerFunc {
	probe := func(ctx context.Context, check func(context.Context) error) string {
		if check == nil {
			return "disconnected"
		}
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := check(ctx); err != nil {
			return "disconnected"
		}
		return "connected"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		db := probe(r.Context(), s.DBCheck)
		queue := probe(r.Context(), s.QueueCheck)
		status := "healthy"
		if db != "connected" || queue != "connected" {
			status = "unhealthy"
		}
		writeJSON(w, http.StatusOK, healthResponse{
			Status:         status,
			Timestamp:      time.Now().UTC(),
			DatabaseStatus: db,
			QueueStatus:    queue,
		})
	}
}

// ReadyzHandler is the strict variant of /health for orchestrator readiness
// probes: 503 until both backends answer.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := make([]check, 0, 2)
		run := func(name string, fn func(context.Context) error) {
			if fn == nil {
				checks = append(checks, check{Name: name, OK: false, Details: "not configured"})
				return
			}
			if err := fn(ctx); err != nil {
				checks = append(checks, check{Name: name, OK: false, Details: err.Error()})
				return
			}
			checks = append(checks, check{Name: name, OK: true})
		}
		run("db", s.DBCheck)
		run("queue", s.QueueCheck)

		st := http.StatusOK
		for _, c := range checks {
			if !c.OK {
				st = http.StatusServiceUnavailable
				break
			}
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}
