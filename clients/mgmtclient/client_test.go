package mgmtclient

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomis52/cloudops/operation"
	"github.com/nomis52/cloudops/operation/operationtest"
	"github.com/nomis52/cloudops/statusmap"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, url string, opts ...Option) *Client {
	t.Helper()
	all := append([]Option{WithLogger(quietLogger()), WithRetry(2, time.Millisecond)}, opts...)
	c, err := New(url, all...)
	require.NoError(t, err)
	return c
}

func TestNew(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)

	_, err = New("http://localhost", WithOperationsPath("/ops"))
	assert.Error(t, err)

	c, err := New("http://localhost/", WithOperationsPath("/v2/ops/{handle}"))
	require.NoError(t, err)
	assert.Equal(t, "/v2/ops/{handle}", c.operationsPath)
}

func TestStartOperation(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		header     string
		body       string
		wantHandle operation.Handle
		wantErr    string
	}{
		{name: "handle from header", status: http.StatusAccepted, header: "req-123", wantHandle: "req-123"},
		{name: "handle from body id", status: http.StatusAccepted, body: `{"id":"op-9"}`, wantHandle: "op-9"},
		{name: "handle from operationId", status: http.StatusOK, body: `{"operationId":"op-10","status":"InProgress"}`, wantHandle: "op-10"},
		{name: "no handle", status: http.StatusAccepted, body: `{"status":"Accepted"}`, wantErr: "no x-ms-request-id header"},
		{name: "invalid json", status: http.StatusAccepted, body: `not json`, wantErr: "decoding"},
		{name: "api error", status: http.StatusConflict, body: `{"error":{"code":"Conflict","message":"deployment already running"}}`, wantErr: "409: deployment already running"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPut, r.Method)
				assert.Equal(t, "/sites/web-1/deploy", r.URL.Path)
				assert.Equal(t, "Bearer token-a", r.Header.Get("Authorization"))

				var body map[string]any
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, "web-1.4.2.zip", body["package"])

				if tt.header != "" {
					w.Header().Set("x-ms-request-id", tt.header)
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			c := newTestClient(t, ts.URL, WithCredentials("token-a"))
			handle, err := c.StartOperation(context.Background(), Request{
				Method: http.MethodPut,
				Path:   "/sites/web-1/deploy",
				Body:   map[string]any{"package": "web-1.4.2.zip"},
			})

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantHandle, handle)
		})
	}
}

func TestStartOperation_APIErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"boom"}`))
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL)
	_, err := c.StartOperation(context.Background(), Request{Path: "/jobs"})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, "boom", apiErr.Message)
	assert.Equal(t, int32(1), calls.Load())
}

func TestStartOperation_CredentialFailover(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("Authorization") != "Bearer secondary" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("x-ms-request-id", "op-1")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL, WithCredentials("expired", "secondary"))

	handle, err := c.StartOperation(context.Background(), Request{Path: "/jobs"})
	require.NoError(t, err)
	assert.Equal(t, operation.Handle("op-1"), handle)
	assert.Equal(t, int32(2), calls.Load())

	// The working credential is kept for later requests.
	_, err = c.StartOperation(context.Background(), Request{Path: "/jobs"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestStartOperation_AuthorizationExhausted(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL, WithCredentials("a", "b"))
	_, err := c.StartOperation(context.Background(), Request{Path: "/jobs"})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, int32(3), calls.Load(), "initial attempt plus two retries")
}

func TestStartOperation_Connectivity(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL
	ts.Close()

	c := newTestClient(t, url, WithRetry(0, time.Millisecond))
	_, err := c.StartOperation(context.Background(), Request{Path: "/jobs"})
	assert.ErrorIs(t, err, operation.ErrConnectivity)
}

// dropConnections closes the connection of the first n requests without a response.
func dropConnections(t *testing.T, n int32, calls *atomic.Int32, next http.HandlerFunc) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) > n {
			next(w, r)
			return
		}
		conn, _, err := w.(http.Hijacker).Hijack()
		if err != nil {
			t.Errorf("hijack: %v", err)
			return
		}
		_ = conn.Close()
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestStartOperation_DroppedConnectionNotResent(t *testing.T) {
	for _, method := range []string{http.MethodPut, http.MethodPost} {
		t.Run(method, func(t *testing.T) {
			var calls atomic.Int32
			ts := dropConnections(t, 100, &calls, nil)

			c := newTestClient(t, ts.URL)
			_, err := c.StartOperation(context.Background(), Request{Method: method, Path: "/sites/web-1/deploy"})
			require.Error(t, err)
			assert.ErrorIs(t, err, operation.ErrConnectivity)
			assert.Equal(t, int32(1), calls.Load())
		})
	}
}

func TestOperationStatus_DroppedConnectionRetried(t *testing.T) {
	var calls atomic.Int32
	ts := dropConnections(t, 1, &calls, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"Succeeded"}`))
	})

	c := newTestClient(t, ts.URL)
	got, err := c.OperationStatus(context.Background(), "op-1")
	require.NoError(t, err)
	assert.Equal(t, operation.StatusSucceeded, got)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOperationStatus(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		opts    []Option
		want    operation.Status
		wantErr string
	}{
		{name: "in progress", status: http.StatusOK, body: `{"status":"InProgress"}`, want: operation.StatusInProgress},
		{name: "succeeded", status: http.StatusOK, body: `{"Status":"Succeeded"}`, want: operation.StatusSucceeded},
		{name: "failed", status: http.StatusOK, body: `{"status":"Failed","error":{"message":"quota"}}`, want: operation.StatusFailed},
		{
			name:   "nested document",
			status: http.StatusOK,
			body:   `{"operation":{"status":"Succeeded"}}`,
			opts:   []Option{WithDocumentPath("operation")},
			want:   operation.StatusSucceeded,
		},
		{
			name:    "missing nested document",
			status:  http.StatusOK,
			body:    `{"status":"Succeeded"}`,
			opts:    []Option{WithDocumentPath("operation")},
			wantErr: `no "operation" object`,
		},
		{name: "not an object", status: http.StatusOK, body: `["Succeeded"]`, wantErr: "not a JSON object"},
		{name: "unknown status", status: http.StatusOK, body: `{"status":"Paused"}`, wantErr: "unknown operation status"},
		{name: "not found", status: http.StatusNotFound, body: `{"message":"no such operation"}`, wantErr: "404: no such operation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, "/operations/op-1", r.URL.Path)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			c := newTestClient(t, ts.URL, tt.opts...)
			got, err := c.OperationStatus(context.Background(), "op-1")
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOperationStatus_Idempotent(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"InProgress"}`))
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL)
	for i := 0; i < 3; i++ {
		got, err := c.OperationStatus(context.Background(), "op-1")
		require.NoError(t, err)
		assert.Equal(t, operation.StatusInProgress, got)
	}
}

func TestOperationStatus_EmptyHandle(t *testing.T) {
	c := newTestClient(t, "http://localhost")
	_, err := c.OperationStatus(context.Background(), "")
	assert.ErrorIs(t, err, operation.ErrEmptyHandle)
}

func TestOperationStatus_ExpressionMapper(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"progress":100}`))
	}))
	defer ts.Close()

	mapper, err := statusmap.New(`body.progress >= 100`, `body.error != nil`)
	require.NoError(t, err)

	c := newTestClient(t, ts.URL, WithStatusMapper(mapper))
	got, err := c.OperationStatus(context.Background(), "op-1")
	require.NoError(t, err)
	assert.Equal(t, operation.StatusSucceeded, got)
}

func TestClient_Supervised(t *testing.T) {
	var polls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/deployments":
			w.Header().Set("x-ms-request-id", "dep-7")
			w.WriteHeader(http.StatusAccepted)
		case r.Method == http.MethodGet && r.URL.Path == "/operations/dep-7":
			if polls.Add(1) < 3 {
				_, _ = w.Write([]byte(`{"status":"Running"}`))
				return
			}
			_, _ = w.Write([]byte(`{"status":"Succeeded"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL)
	sv, err := operation.NewSupervisor(
		c.Invoker(Request{Path: "/deployments", Body: map[string]string{"slot": "staging"}}),
		operation.PollerFunc(c.OperationStatus),
		operation.WithClock(operationtest.NewFakeClock(time.Now())),
		operation.WithPollingIntervalSeconds(1),
		operation.WithLogger(quietLogger()),
	)
	require.NoError(t, err)

	outcome := sv.Run(context.Background())
	require.True(t, outcome.IsSuccess(), "outcome error: %v", outcome.Err)
	assert.Equal(t, operation.Handle("dep-7"), outcome.Handle)
	assert.Equal(t, 3, outcome.Polls)
}
