package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fairyhunter13/quantum-task-queue/internal/domain"
)

// errorResponse is the flat error body shared by every failure path.
type errorResponse struct {
	Error         string            `json:"error"`
	Details       map[string]string `json:"details,omitempty"`
	CorrelationID string            `json:"correlation_id"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeValidationFailed(w http.ResponseWriter, r *http.Request, details map[string]string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{
		Error:         "Validation failed",
		Details:       details,
		CorrelationID: correlationIDFrom(r),
	})
}

// writeError maps domain sentinels onto the HTTP contract. Anything without
// a mapping is a 500 with a generic body; the cause goes to the log, never
// to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	msg := "Internal server error"
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		status = http.StatusBadRequest
		msg = "Validation failed"
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
		msg = "Task not found"
	case errors.Is(err, domain.ErrStorageUnavailable), errors.Is(err, domain.ErrQueueUnavailable):
		status = http.StatusServiceUnavailable
		msg = "Service temporarily unavailable"
	}
	if status >= 500 {
		LoggerFrom(r).Error("request failed", "status", status, "error", err)
	} else {
		LoggerFrom(r).Warn("request rejected", "status", status, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: msg, CorrelationID: correlationIDFrom(r)})
}
