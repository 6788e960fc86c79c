//go:build e2e

// Package e2e drives a running stack (server + worker + backends, e.g. the
// deploy/docker-compose.yml stack) through its HTTP API. Opt in with
// `go test -tags e2e ./test/e2e/`. E2E_BASE_URL overrides the default
// http://localhost:8000.
package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var httpClient = &http.Client{Timeout: 10 * time.Second}

func baseURL() string {
	if v := os.Getenv("E2E_BASE_URL"); v != "" {
		return v
	}
	return "http://localhost:8000"
}

func postJSON(t *testing.T, path string, payload any) (*http.Response, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := httpClient.Post(baseURL()+path, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp, decode(t, resp)
}

func getJSON(t *testing.T, path string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := httpClient.Get(baseURL() + path)
	require.NoError(t, err)
	return resp, decode(t, resp)
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

// submitTask posts a circuit and returns the assigned task id.
func submitTask(t *testing.T, circuit string, shots int) string {
	t.Helper()
	resp, body := postJSON(t, "/tasks", map[string]any{"circuit": circuit, "shots": shots})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "submit response: %v", body)
	id, _ := body["task_id"].(string)
	require.NotEmpty(t, id)
	return id
}

// waitTerminal polls the status endpoint until the task leaves
// pending/processing or the deadline passes.
func waitTerminal(t *testing.T, taskID string, deadline time.Duration) map[string]any {
	t.Helper()
	var last map[string]any
	require.Eventually(t, func() bool {
		resp, body := getJSON(t, "/tasks/"+taskID)
		if resp.StatusCode != http.StatusOK {
			return false
		}
		last = body
		status, _ := body["status"].(string)
		return status == "completed" || status == "failed"
	}, deadline, 500*time.Millisecond, "task %s never reached a terminal status", taskID)
	return last
}

func historyStatuses(t *testing.T, body map[string]any) []string {
	t.Helper()
	raw, ok := body["status_history"].([]any)
	require.True(t, ok, "status_history missing: %v", body)
	out := make([]string, 0, len(raw))
	for _, e := range raw {
		entry, ok := e.(map[string]any)
		require.True(t, ok)
		out = append(out, fmt.Sprintf("%v", entry["status"]))
	}
	return out
}
