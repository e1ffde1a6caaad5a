package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nomis52/cloudops/server/runner"
)

// HistoryHandler handles requests for the run history.
type HistoryHandler struct {
	provider HistoryProvider
}

// NewHistoryHandler creates a new HistoryHandler.
func NewHistoryHandler(provider HistoryProvider) *HistoryHandler {
	return &HistoryHandler{
		provider: provider,
	}
}

// List returns the completed runs, most recent first.
func (h *HistoryHandler) List(c *gin.Context) {
	history := h.provider.History()
	if history == nil {
		history = []runner.RunSummary{}
	}
	c.JSON(http.StatusOK, history)
}

// Get returns one completed run with its activity executions and logs.
func (h *HistoryHandler) Get(c *gin.Context) {
	id := c.Param("id")
	run, ok := h.provider.Get(id)
	if !ok {
		abortWithError(c, http.StatusNotFound, fmt.Sprintf("run %q not found", id))
		return
	}
	c.JSON(http.StatusOK, run)
}
