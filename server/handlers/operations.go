package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// OperationResponse describes one configured operation.
type OperationResponse struct {
	Name                   string   `json:"name"`
	Type                   string   `json:"type"`
	DependsOn              []string `json:"depends_on,omitempty"`
	WarnOnly               bool     `json:"warn_only,omitempty"`
	TimeoutSeconds         int      `json:"timeout_seconds"`
	PollingIntervalSeconds int      `json:"polling_interval_seconds"`
}

// OperationsHandler lists the operations a run can select.
type OperationsHandler struct {
	configProvider ConfigProvider
}

// NewOperationsHandler creates a new OperationsHandler.
func NewOperationsHandler(provider ConfigProvider) *OperationsHandler {
	return &OperationsHandler{configProvider: provider}
}

// Handle returns the operations in build order.
func (h *OperationsHandler) Handle(c *gin.Context) {
	cfg := h.configProvider.Config()
	out := make([]OperationResponse, 0, len(cfg.Operations))
	for _, op := range cfg.Operations {
		out = append(out, OperationResponse{
			Name:                   op.Name,
			Type:                   op.Type,
			DependsOn:              op.DependsOn,
			WarnOnly:               op.WarnOnly,
			TimeoutSeconds:         op.TimeoutSeconds,
			PollingIntervalSeconds: op.PollingIntervalSeconds,
		})
	}
	c.JSON(http.StatusOK, out)
}
