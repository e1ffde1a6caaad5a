package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gopkg.in/yaml.v3"
)

// ConfigHandler handles requests for the current configuration.
type ConfigHandler struct {
	configProvider ConfigProvider
}

// NewConfigHandler creates a new ConfigHandler.
func NewConfigHandler(provider ConfigProvider) *ConfigHandler {
	return &ConfigHandler{
		configProvider: provider,
	}
}

// Handle returns the configuration as YAML with credentials redacted.
func (h *ConfigHandler) Handle(c *gin.Context) {
	redacted := h.configProvider.Config().Redacted()

	out, err := yaml.Marshal(redacted)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.Data(http.StatusOK, "text/yaml", out)
}
