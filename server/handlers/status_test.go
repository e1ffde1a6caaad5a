package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomis52/cloudops/server/runner"
)

type mockStatus struct {
	status  runner.RunStatus
	nextRun *time.Time
}

func (m *mockStatus) Status() runner.RunStatus { return m.status }
func (m *mockStatus) NextRun() *time.Time      { return m.nextRun }

func TestStatusHandler(t *testing.T) {
	now := time.Date(2025, 1, 1, 1, 0, 0, 0, time.UTC)
	next := now.Add(90 * time.Minute)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name    string
		nextRun *time.Time
		wantIn  string
	}{
		{name: "scheduled", nextRun: &next, wantIn: "1h30m0s"},
		{name: "no schedule"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewStatusHandler(logger, &mockStatus{
				status:  runner.RunStatus{RunSummary: runner.RunSummary{State: runner.RunStateIdle}},
				nextRun: tt.nextRun,
			})
			h.now = func() time.Time { return now }

			w := serve(func(e *gin.Engine) { e.GET("/api/status", h.Handle) }, http.MethodGet, "/api/status", "")
			require.Equal(t, http.StatusOK, w.Code)

			var resp StatusResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, runner.RunStateIdle, resp.Run.State)
			if tt.nextRun == nil {
				assert.Nil(t, resp.NextRun)
				return
			}
			require.NotNil(t, resp.NextRun)
			assert.True(t, next.Equal(resp.NextRun.At))
			assert.Equal(t, tt.wantIn, resp.NextRun.In)
		})
	}
}
