package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestStatusConstants(t *testing.T) {
	tests := []struct {
		name     string
		constant Status
		expected string
	}{
		{"StatusPending", StatusPending, "pending"},
		{"StatusProcessing", StatusProcessing, "processing"},
		{"StatusCompleted", StatusCompleted, "completed"},
		{"StatusFailed", StatusFailed, "failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if string(tt.constant) != tt.expected {
				t.Errorf("Expected %s to be %q, got %q", tt.name, tt.expected, string(tt.constant))
			}
		})
	}
}

func TestStatusValid(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusProcessing, StatusCompleted, StatusFailed} {
		if !s.Valid() {
			t.Errorf("Expected %q to be valid", s)
		}
	}
	for _, s := range []Status{"", "PENDING", "done", "queued"} {
		if s.Valid() {
			t.Errorf("Expected %q to be invalid", s)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	tests := []struct {
		status   Status
		terminal bool
	}{
		{StatusPending, false},
		{StatusProcessing, false},
		{StatusCompleted, true},
		{StatusFailed, true},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.terminal {
			t.Errorf("Terminal(%q) = %v, want %v", tt.status, got, tt.terminal)
		}
	}
}

func TestStatusCanTransitionTo(t *testing.T) {
	tests := []struct {
		from    Status
		to      Status
		allowed bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusPending, StatusFailed, true},
		{StatusProcessing, StatusCompleted, true},
		{StatusProcessing, StatusFailed, true},
		{StatusPending, StatusCompleted, false},
		{StatusPending, StatusPending, false},
		{StatusProcessing, StatusPending, false},
		{StatusProcessing, StatusProcessing, false},
		{StatusCompleted, StatusProcessing, false},
		{StatusCompleted, StatusFailed, false},
		{StatusCompleted, StatusPending, false},
		{StatusFailed, StatusProcessing, false},
		{StatusFailed, StatusCompleted, false},
		{StatusFailed, StatusPending, false},
	}

	for _, tt := range tests {
		name := fmt.Sprintf("%s_to_%s", tt.from, tt.to)
		t.Run(name, func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.allowed {
				t.Errorf("CanTransitionTo(%q→%q) = %v, want %v", tt.from, tt.to, got, tt.allowed)
			}
		})
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		category string
	}{
		{"parse sentinel", ErrCircuitParse, CategoryParse},
		{"wrapped parse", fmt.Errorf("%w: line 3: unknown gate", ErrCircuitParse), CategoryParse},
		{"execution sentinel", ErrCircuitExecution, CategoryExecution},
		{"wrapped execution", fmt.Errorf("%w: 30 qubits exceeds limit", ErrCircuitExecution), CategoryExecution},
		{"plain error", errors.New("boom"), CategoryUnexpected},
		{"storage error", ErrStorageUnavailable, CategoryUnexpected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != tt.category {
				t.Errorf("ClassifyError(%v) = %q, want %q", tt.err, got, tt.category)
			}
		})
	}
}

func TestFormatTaskError(t *testing.T) {
	err := fmt.Errorf("%w: unexpected token %q at line 1", ErrCircuitParse, "INVALID")
	got := FormatTaskError(err)
	want := `Circuit parse error: invalid circuit syntax: unexpected token "INVALID" at line 1`
	if got != want {
		t.Errorf("FormatTaskError = %q, want %q", got, want)
	}

	got = FormatTaskError(errors.New("boom"))
	if got != "Unexpected error: boom" {
		t.Errorf("FormatTaskError = %q, want %q", got, "Unexpected error: boom")
	}
}
