package statusmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomis52/cloudops/operation"
)

func TestDefault(t *testing.T) {
	tests := []struct {
		name    string
		doc     map[string]any
		want    operation.Status
		wantErr bool
	}{
		{name: "in progress", doc: map[string]any{"status": "InProgress"}, want: operation.StatusInProgress},
		{name: "running lower case", doc: map[string]any{"status": "running"}, want: operation.StatusInProgress},
		{name: "succeeded capital key", doc: map[string]any{"Status": "Succeeded"}, want: operation.StatusSucceeded},
		{name: "failed", doc: map[string]any{"status": "FAILED"}, want: operation.StatusFailed},
		{name: "canceled", doc: map[string]any{"status": "Canceled"}, want: operation.StatusFailed},
		{name: "provisioning state", doc: map[string]any{"properties": map[string]any{"provisioningState": "Succeeded"}}, want: operation.StatusSucceeded},
		{name: "unknown", doc: map[string]any{"status": "Paused"}, wantErr: true},
		{name: "missing", doc: map[string]any{}, wantErr: true},
		{name: "non string", doc: map[string]any{"status": 3}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Default().Map(tt.doc)
			if tt.wantErr {
				assert.ErrorIs(t, err, operation.ErrUnknownStatus)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_Expressions(t *testing.T) {
	m, err := New(`body.progress >= 100`, `body.error != nil || status == "aborted"`)
	require.NoError(t, err)

	tests := []struct {
		name string
		doc  map[string]any
		want operation.Status
	}{
		{name: "in progress", doc: map[string]any{"progress": 40}, want: operation.StatusInProgress},
		{name: "done", doc: map[string]any{"progress": 100}, want: operation.StatusSucceeded},
		{name: "error wins", doc: map[string]any{"progress": 100, "error": "disk full"}, want: operation.StatusFailed},
		{name: "aborted", doc: map[string]any{"state": "aborted", "progress": 0}, want: operation.StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Map(tt.doc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_Errors(t *testing.T) {
	_, err := New(`status == "done"`, "")
	assert.Error(t, err)

	_, err = New(`status ==`, `false`)
	assert.Error(t, err)

	_, err = New(`"not a bool"`, `false`)
	assert.Error(t, err)

	m, err := New("", " ")
	require.NoError(t, err)
	assert.Nil(t, m.succeeded)
}
