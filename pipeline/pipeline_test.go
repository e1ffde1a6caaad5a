package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomis52/cloudops/activity"
	"github.com/nomis52/cloudops/build"
	"github.com/nomis52/cloudops/clients/sshclient"
	"github.com/nomis52/cloudops/config"
	"github.com/nomis52/cloudops/logging"
	"github.com/nomis52/cloudops/metrics"
	"github.com/nomis52/cloudops/operation"
	"github.com/nomis52/cloudops/operation/operationtest"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// managementServer starts operations under /start/<name> and reports each as
// the status listed in final after one in-progress poll.
func managementServer(t *testing.T, final map[string]string) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	polls := map[string]int{}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/start/"):
			w.Header().Set("x-ms-request-id", strings.TrimPrefix(r.URL.Path, "/start/"))
			w.WriteHeader(http.StatusAccepted)
		case strings.HasPrefix(r.URL.Path, "/operations/"):
			name := strings.TrimPrefix(r.URL.Path, "/operations/")
			mu.Lock()
			polls[name]++
			n := polls[name]
			mu.Unlock()
			if n == 1 {
				_, _ = w.Write([]byte(`{"status":"InProgress"}`))
				return
			}
			_, _ = w.Write([]byte(`{"status":"` + final[name] + `"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

// exitRunner fakes a remote shell whose jobs exit with code.
type exitRunner struct {
	code string
}

func (r *exitRunner) Run(ctx context.Context, command string) (string, string, error) {
	switch {
	case strings.Contains(command, "nohup"):
		return "", "", nil
	case strings.HasPrefix(command, "tail"):
		return "done\n", "", nil
	default:
		return r.code + "\n", "", nil
	}
}

func testConfig(baseURL string) config.Config {
	cfg := config.Config{
		Management: config.ManagementConfig{BaseURL: baseURL, RetryWait: time.Millisecond},
		SSH:        config.SSHConfig{Host: "10.0.0.5", User: "deploy", KeyFile: "/unused"},
		Operations: []config.OperationConfig{
			{Name: "deploy", Type: config.TypeREST, Path: "/start/deploy"},
			{Name: "swap", Type: config.TypeREST, Path: "/start/swap", DependsOn: []string{"deploy"}},
			{Name: "warm", Type: config.TypeSSH, Script: "/opt/app/warm.sh", DependsOn: []string{"swap"}},
		},
	}
	cfg.Defaults.PollingIntervalSeconds = 1
	cfg.SetDefaults()
	return cfg
}

func newTestPipeline(t *testing.T, cfg config.Config, registry metrics.Registry, runner sshclient.Runner) *Pipeline {
	t.Helper()
	opts := []Option{
		WithLogger(quietLogger()),
		WithSSHRunner(runner),
		WithClock(operationtest.NewFakeClock(time.Date(2024, 6, 1, 2, 0, 0, 0, time.UTC))),
	}
	if registry != nil {
		opts = append(opts, WithRegistry(registry))
	}
	p, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestPipeline_RunsAllOperations(t *testing.T) {
	ts := managementServer(t, map[string]string{"deploy": "Succeeded", "swap": "Succeeded"})
	registry, err := metrics.NewScrapeRegistry(metrics.WithoutRuntimeCollectors())
	require.NoError(t, err)

	p := newTestPipeline(t, testConfig(ts.URL), registry, &exitRunner{code: "0"})

	status := activity.NewStatusHandler()
	collector := logging.NewLogCollector()
	b, err := p.NewBuild(nil, WithStatusHandler(status), WithLogCollector(collector))
	require.NoError(t, err)

	assert.Equal(t, []build.ActivityID{
		{Kind: "rest", Name: "deploy"},
		{Kind: "rest", Name: "swap"},
		{Kind: "ssh", Name: "warm"},
	}, b.Order())

	require.NoError(t, p.Execute(context.Background(), b))
	assert.Equal(t, build.StatusSucceeded, b.Status())

	for _, id := range b.Order() {
		assert.Contains(t, status.Get(id), "✅", id.String())
		assert.NotEmpty(t, collector.Entries(id.String()), id.String())
	}

	count, err := testutil.GatherAndCount(registry.Gatherer(),
		"operation_sessions_total", "build_status", "activity_success")
	require.NoError(t, err)
	assert.Equal(t, 1+3+3, count)

	w := httptest.NewRecorder()
	registry.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, w.Body.String(), `operation_sessions_total{outcome="succeeded"} 3`)
	assert.Contains(t, w.Body.String(), `build_status{status="succeeded"} 1`)
	assert.Contains(t, w.Body.String(), `activity_success{activity="ssh/warm"} 1`)
}

func TestPipeline_FailureSkipsDependents(t *testing.T) {
	ts := managementServer(t, map[string]string{"deploy": "Failed", "swap": "Succeeded"})
	p := newTestPipeline(t, testConfig(ts.URL), nil, &exitRunner{code: "0"})

	b, err := p.NewBuild(nil)
	require.NoError(t, err)

	err = p.Execute(context.Background(), b)
	assert.ErrorIs(t, err, operation.ErrRemoteFailure)
	assert.Equal(t, build.StatusFailed, b.Status())
	require.Len(t, b.FailureReasons(), 1)

	r, _ := b.Result(build.ActivityID{Kind: "ssh", Name: "warm"})
	assert.Equal(t, build.Skipped, r.State)
}

func TestPipeline_WarnOnly(t *testing.T) {
	ts := managementServer(t, map[string]string{"deploy": "Succeeded", "swap": "Succeeded"})
	cfg := testConfig(ts.URL)
	cfg.Operations[2].WarnOnly = true

	p := newTestPipeline(t, cfg, nil, &exitRunner{code: "3"})
	b, err := p.NewBuild(nil)
	require.NoError(t, err)

	require.NoError(t, p.Execute(context.Background(), b))
	assert.Equal(t, build.StatusPartiallySucceeded, b.Status())
}

func TestPipeline_SelectOperations(t *testing.T) {
	ts := managementServer(t, map[string]string{"swap": "Succeeded"})
	p := newTestPipeline(t, testConfig(ts.URL), nil, &exitRunner{code: "0"})

	b, err := p.NewBuild([]string{"warm", "swap"})
	require.NoError(t, err)
	assert.Equal(t, []build.ActivityID{
		{Kind: "rest", Name: "swap"},
		{Kind: "ssh", Name: "warm"},
	}, b.Order(), "config order is kept and the dependency on deploy is dropped")

	require.NoError(t, p.Execute(context.Background(), b))
	assert.Equal(t, build.StatusSucceeded, b.Status())

	_, err = p.NewBuild([]string{"nope"})
	assert.ErrorContains(t, err, "unknown operations: [nope]")
}

func TestPipeline_Options(t *testing.T) {
	cfg := testConfig("http://localhost")
	cfg.Management.SucceededWhen = "body.done"
	cfg.Management.FailedWhen = "body.error != nil"
	cfg.Management.OperationsPath = "/v2/operations/{handle}"

	p, err := New(cfg, WithLogger(quietLogger()), WithSSHRunner(&exitRunner{}))
	require.NoError(t, err)
	assert.NotNil(t, p.client)
	assert.Equal(t, []string{"deploy", "swap", "warm"}, p.OperationNames())

	cfg.Management.SucceededWhen = "body.done +"
	_, err = New(cfg, WithLogger(quietLogger()), WithSSHRunner(&exitRunner{}))
	assert.Error(t, err)

	cfg = testConfig("http://localhost")
	cfg.SSH.KeyFile = filepath.Join(t.TempDir(), "missing")
	_, err = New(cfg, WithLogger(quietLogger()))
	assert.ErrorContains(t, err, "reading ssh key")
}

func TestPipeline_UnreachableSSHHostFaults(t *testing.T) {
	ts := managementServer(t, map[string]string{"deploy": "Succeeded", "swap": "Succeeded"})
	cfg := testConfig(ts.URL)
	cfg.SSH.KeyFile = filepath.Join(t.TempDir(), "id")
	require.NoError(t, os.WriteFile(cfg.SSH.KeyFile, []byte("key"), 0o600))

	p, err := New(cfg, WithLogger(quietLogger()),
		WithClock(operationtest.NewFakeClock(time.Now())))
	require.NoError(t, err)
	defer p.Close()

	runner := p.runner.(*lazyRunner)
	runner.dial = func(host, user, key string, opts ...sshclient.Option) (*sshclient.SSHClient, error) {
		assert.Equal(t, "10.0.0.5:22", host)
		return nil, errors.Join(operation.ErrConnectivity, errors.New("connection refused"))
	}

	b, err := p.NewBuild(nil)
	require.NoError(t, err)
	err = p.Execute(context.Background(), b)
	assert.ErrorIs(t, err, operation.ErrConnectivity)

	r, _ := b.Result(build.ActivityID{Kind: "ssh", Name: "warm"})
	assert.Equal(t, build.Completed, r.State)
	var fault *operation.FaultError
	require.ErrorAs(t, r.Error, &fault)
	assert.Equal(t, operation.StepInvoke, fault.Step)
}

func TestBuildMetrics_NilSafe(t *testing.T) {
	var m *BuildMetrics
	assert.NotPanics(t, func() { m.Record(build.New()) })
}
