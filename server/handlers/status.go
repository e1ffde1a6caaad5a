package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nomis52/cloudops/server/runner"
)

// StatusResponse is the response body of GET /api/status.
type StatusResponse struct {
	Run     runner.RunStatus `json:"run"`
	NextRun *NextRunResponse `json:"next_run,omitempty"`
}

// NextRunResponse describes the next scheduled run.
type NextRunResponse struct {
	At time.Time `json:"at"`
	// In is the time until the run, rounded to the second.
	In string `json:"in"`
}

// StatusHandler reports the current run and the schedule.
type StatusHandler struct {
	logger   *slog.Logger
	provider StatusProvider
	now      func() time.Time
}

// NewStatusHandler creates a new StatusHandler.
func NewStatusHandler(logger *slog.Logger, provider StatusProvider) *StatusHandler {
	return &StatusHandler{
		logger:   logger,
		provider: provider,
		now:      time.Now,
	}
}

// Handle responds with a StatusResponse.
func (h *StatusHandler) Handle(c *gin.Context) {
	resp := StatusResponse{Run: h.provider.Status()}
	if next := h.provider.NextRun(); next != nil {
		resp.NextRun = &NextRunResponse{
			At: *next,
			In: next.Sub(h.now()).Round(time.Second).String(),
		}
	}
	h.logger.Debug("status requested", "state", resp.Run.State)
	c.JSON(http.StatusOK, resp)
}
