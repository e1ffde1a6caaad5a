package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HandleHealth is a simple health check handler that returns "ok".
func HandleHealth(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}
