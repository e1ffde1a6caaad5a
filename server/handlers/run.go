package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nomis52/cloudops/server/runner"
)

// RunRequest defines the request body for POST /api/run. An empty body or an
// empty operations list runs every configured operation.
type RunRequest struct {
	Operations []string `json:"operations"`
}

// RunHandler handles requests to trigger a build run.
type RunHandler struct {
	runner BuildRunner
}

// NewRunHandler creates a new RunHandler.
func NewRunHandler(r BuildRunner) *RunHandler {
	return &RunHandler{
		runner: r,
	}
}

// Handle starts a run and responds 202 with the run summary, 409 if a run is
// already in progress and 400 for an invalid request.
func (h *RunHandler) Handle(c *gin.Context) {
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	seen := make(map[string]bool, len(req.Operations))
	for _, op := range req.Operations {
		if seen[op] {
			abortWithError(c, http.StatusBadRequest, fmt.Sprintf("duplicate operation %q in request", op))
			return
		}
		seen[op] = true
	}

	if err := h.runner.Run(runner.TriggerAPI, req.Operations); err != nil {
		if errors.Is(err, runner.ErrRunInProgress) {
			abortWithError(c, http.StatusConflict, err.Error())
			return
		}
		// Unknown operation or build construction error
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	}

	c.JSON(http.StatusAccepted, h.runner.Status().RunSummary)
}
