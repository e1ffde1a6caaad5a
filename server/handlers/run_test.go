package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomis52/cloudops/server/runner"
)

type mockRunner struct {
	err        error
	calls      int
	trigger    string
	operations []string
}

func (m *mockRunner) Run(trigger string, operations []string) error {
	m.calls++
	m.trigger = trigger
	m.operations = operations
	return m.err
}

func (m *mockRunner) Status() runner.RunStatus {
	return runner.RunStatus{RunSummary: runner.RunSummary{
		ID:         "20250101T020000.000Z",
		State:      runner.RunStateRunning,
		Trigger:    m.trigger,
		Operations: m.operations,
	}}
}

func TestRunHandler(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		runErr         error
		wantStatus     int
		wantCalls      int
		wantOperations []string
		wantError      string
	}{
		{name: "empty body runs everything", wantStatus: http.StatusAccepted, wantCalls: 1},
		{name: "empty operations", body: `{"operations":[]}`, wantStatus: http.StatusAccepted, wantCalls: 1, wantOperations: []string{}},
		{
			name:           "selected operations",
			body:           `{"operations":["swap","warm"]}`,
			wantStatus:     http.StatusAccepted,
			wantCalls:      1,
			wantOperations: []string{"swap", "warm"},
		},
		{name: "invalid json", body: `{"operations":`, wantStatus: http.StatusBadRequest, wantError: "invalid JSON"},
		{name: "duplicate operation", body: `{"operations":["swap","swap"]}`, wantStatus: http.StatusBadRequest, wantError: `duplicate operation "swap"`},
		{
			name:       "run in progress",
			runErr:     runner.ErrRunInProgress,
			wantStatus: http.StatusConflict,
			wantCalls:  1,
			wantError:  "already in progress",
		},
		{
			name:       "unknown operation",
			body:       `{"operations":["nope"]}`,
			runErr:     fmt.Errorf("creating build: %w", errors.New("unknown operations: [nope]")),
			wantStatus: http.StatusBadRequest,
			wantCalls:  1,
			wantError:  "unknown operations",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mockRunner{err: tt.runErr}
			h := NewRunHandler(m)
			w := serve(func(e *gin.Engine) { e.POST("/api/run", h.Handle) }, http.MethodPost, "/api/run", tt.body)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantCalls, m.calls)

			if tt.wantError != "" {
				var resp ErrorResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.Contains(t, resp.Error, tt.wantError)
				return
			}

			assert.Equal(t, runner.TriggerAPI, m.trigger)
			assert.Equal(t, tt.wantOperations, m.operations)

			var summary runner.RunSummary
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
			assert.Equal(t, runner.RunStateRunning, summary.State)
			assert.Equal(t, runner.TriggerAPI, summary.Trigger)
		})
	}
}
