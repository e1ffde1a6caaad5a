package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{name: "json", config: Config{Level: "info", Format: "json", Output: "stdout"}},
		{name: "text", config: Config{Level: "debug", Format: "text", Output: "stderr"}},
		{name: "console", config: Config{Level: "warn", Format: "console"}},
		{name: "upper case level", config: Config{Level: "ERROR"}},
		{name: "defaults", config: Config{}},
		{name: "invalid level", config: Config{Level: "verbose"}, wantErr: true},
		{name: "invalid format", config: Config{Format: "xml"}, wantErr: true},
		{name: "unwritable file", config: Config{Output: filepath.Join(t.TempDir(), "missing", "x.log")}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, logger.Logger)
			assert.NoError(t, logger.Close())
		})
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cloudops.log")

	logger, err := New(Config{Output: path})
	require.NoError(t, err)
	logger.Info("operation started", "handle", "op-1")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var record map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &record))
	assert.Equal(t, "operation started", record["msg"])
	assert.Equal(t, "op-1", record["handle"])
}

func TestNewWithWriter_Level(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(&buf, Config{Level: "warn", Format: "text"})
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewWithWriter_Console(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(&buf, Config{Level: "debug", Format: "console"})
	require.NoError(t, err)

	logger.Debug("polling", "poll", 3)
	assert.Contains(t, buf.String(), "polling")
	assert.Contains(t, buf.String(), "poll=3")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelInfo, parseLevel("info"))
	assert.Equal(t, slog.LevelWarn, parseLevel("WARN"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
}
