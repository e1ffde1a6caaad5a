package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/nomis52/cloudops/config"
	"github.com/nomis52/cloudops/operation"
)

type mockConfigProvider struct {
	config *config.Config
}

func (m *mockConfigProvider) Config() *config.Config {
	return m.config
}

func testConfig() *config.Config {
	return &config.Config{
		Management: config.ManagementConfig{
			BaseURL:     "https://management.example.com",
			Credentials: []string{"primary-token"},
		},
		Operations: []config.OperationConfig{
			{
				Name:     "swap",
				Type:     config.TypeREST,
				Path:     "/sites/web/slots/staging/swap",
				Headers:  map[string]string{"x-api-key": "secret"},
				Settings: operation.Settings{TimeoutSeconds: 600, PollingIntervalSeconds: 10},
			},
			{
				Name:      "warm",
				Type:      config.TypeSSH,
				Script:    "/opt/app/warm.sh",
				WarnOnly:  true,
				DependsOn: []string{"swap"},
				Settings:  operation.Settings{TimeoutSeconds: 300, PollingIntervalSeconds: 15},
			},
		},
	}
}

func TestConfigHandler(t *testing.T) {
	h := NewConfigHandler(&mockConfigProvider{config: testConfig()})
	w := serve(func(e *gin.Engine) { e.GET("/api/config", h.Handle) }, http.MethodGet, "/api/config", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/yaml", w.Header().Get("Content-Type"))
	assert.NotContains(t, w.Body.String(), "primary-token")
	assert.NotContains(t, w.Body.String(), "secret")

	var got config.Config
	require.NoError(t, yaml.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, []string{"REDACTED"}, got.Management.Credentials)
	require.Len(t, got.Operations, 2)
	assert.Equal(t, 600, got.Operations[0].TimeoutSeconds)
}

func TestOperationsHandler(t *testing.T) {
	h := NewOperationsHandler(&mockConfigProvider{config: testConfig()})
	w := serve(func(e *gin.Engine) { e.GET("/api/operations", h.Handle) }, http.MethodGet, "/api/operations", "")

	require.Equal(t, http.StatusOK, w.Code)

	var got []OperationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, []OperationResponse{
		{Name: "swap", Type: "rest", TimeoutSeconds: 600, PollingIntervalSeconds: 10},
		{Name: "warm", Type: "ssh", DependsOn: []string{"swap"}, WarnOnly: true, TimeoutSeconds: 300, PollingIntervalSeconds: 15},
	}, got)
}
