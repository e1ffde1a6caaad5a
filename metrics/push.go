package metrics

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/prometheus/prompb"
)

// DefaultPushTimeout bounds a single remote write request.
const DefaultPushTimeout = 30 * time.Second

// PushConfig configures a PushRegistry.
type PushConfig struct {
	// URL is the base URL of the remote write endpoint, e.g. http://localhost:8428.
	URL string
	// Prefix, if set, is prepended to every metric name followed by an underscore.
	Prefix string
	// Job and Instance are attached to every series when non-empty.
	Job      string
	Instance string
	// Timeout defaults to DefaultPushTimeout.
	Timeout time.Duration
	Logger  *slog.Logger
}

// PushRegistry implements Registry for short-lived processes. Metric updates are
// held in memory and sent as one remote write request by Flush.
type PushRegistry struct {
	cfg        PushConfig
	url        string
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time

	mu     sync.Mutex
	series map[string]*sample
}

type sample struct {
	name   string
	labels map[string]string
	value  float64
}

// NewPushRegistry creates a PushRegistry that writes to cfg.URL.
func NewPushRegistry(cfg PushConfig) *PushRegistry {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultPushTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &PushRegistry{
		cfg:        cfg,
		url:        strings.TrimSuffix(cfg.URL, "/") + "/api/v1/write",
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With("component", "metrics_push"),
		now:        time.Now,
		series:     make(map[string]*sample),
	}
}

func (r *PushRegistry) NewGauge(opts prometheus.GaugeOpts) (Gauge, error) {
	return &pushGauge{registry: r, name: opts.Name}, nil
}

func (r *PushRegistry) NewGaugeVec(opts prometheus.GaugeOpts, labels []string) (GaugeVec, error) {
	return &pushGaugeVec{registry: r, name: opts.Name}, nil
}

func (r *PushRegistry) NewCounter(opts prometheus.CounterOpts) (Counter, error) {
	return &pushCounter{registry: r, name: opts.Name}, nil
}

func (r *PushRegistry) NewCounterVec(opts prometheus.CounterOpts, labels []string) (CounterVec, error) {
	return &pushCounterVec{registry: r, name: opts.Name}, nil
}

func (r *PushRegistry) set(name string, labels map[string]string, v float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entry(name, labels).value = v
}

func (r *PushRegistry) add(name string, labels map[string]string, v float64) {
	if v < 0 {
		panic("metrics: counter cannot decrease")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entry(name, labels).value += v
}

// entry must be called with mu held.
func (r *PushRegistry) entry(name string, labels map[string]string) *sample {
	key := seriesKey(name, labels)
	s, ok := r.series[key]
	if !ok {
		copied := make(map[string]string, len(labels))
		for k, v := range labels {
			copied[k] = v
		}
		s = &sample{name: name, labels: copied}
		r.series[key] = s
	}
	return s
}

// Flush sends the current value of every series. It is a no-op when nothing
// has been recorded.
func (r *PushRegistry) Flush(ctx context.Context) error {
	req := r.writeRequest()
	if len(req.Timeseries) == 0 {
		return nil
	}

	data, err := proto.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshaling write request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(snappy.Encode(nil, data)))
	if err != nil {
		return fmt.Errorf("creating HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Encoding", "snappy")
	httpReq.Header.Set("Content-Type", "application/x-protobuf")
	httpReq.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("sending remote write: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("remote write returned status %d: %s", resp.StatusCode, string(body))
	}

	r.logger.Debug("metrics pushed", "series", len(req.Timeseries), "url", r.url)
	return nil
}

func (r *PushRegistry) writeRequest() *prompb.WriteRequest {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]string, 0, len(r.series))
	for k := range r.series {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ts := r.now().UnixMilli()
	req := &prompb.WriteRequest{Timeseries: make([]prompb.TimeSeries, 0, len(keys))}
	for _, k := range keys {
		s := r.series[k]
		req.Timeseries = append(req.Timeseries, prompb.TimeSeries{
			Labels:  r.labels(s),
			Samples: []prompb.Sample{{Value: s.value, Timestamp: ts}},
		})
	}
	return req
}

// labels returns the series labels sorted by name, as remote write requires.
func (r *PushRegistry) labels(s *sample) []prompb.Label {
	name := s.name
	if r.cfg.Prefix != "" {
		name = r.cfg.Prefix + "_" + name
	}

	out := make([]prompb.Label, 0, len(s.labels)+3)
	out = append(out, prompb.Label{Name: "__name__", Value: name})
	if r.cfg.Job != "" {
		out = append(out, prompb.Label{Name: "job", Value: r.cfg.Job})
	}
	if r.cfg.Instance != "" {
		out = append(out, prompb.Label{Name: "instance", Value: r.cfg.Instance})
	}
	for k, v := range s.labels {
		out = append(out, prompb.Label{Name: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func seriesKey(name string, labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	for _, k := range keys {
		b.WriteString("|")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(labels[k])
	}
	return b.String()
}

type pushGauge struct {
	registry *PushRegistry
	name     string
	labels   map[string]string
}

func (g *pushGauge) Set(v float64) {
	g.registry.set(g.name, g.labels, v)
}

type pushGaugeVec struct {
	registry *PushRegistry
	name     string
}

func (g *pushGaugeVec) With(labels prometheus.Labels) Gauge {
	return &pushGauge{registry: g.registry, name: g.name, labels: labels}
}

type pushCounter struct {
	registry *PushRegistry
	name     string
	labels   map[string]string
}

func (c *pushCounter) Inc() {
	c.Add(1)
}

func (c *pushCounter) Add(v float64) {
	c.registry.add(c.name, c.labels, v)
}

type pushCounterVec struct {
	registry *PushRegistry
	name     string
}

func (c *pushCounterVec) With(labels prometheus.Labels) Counter {
	return &pushCounter{registry: c.registry, name: c.name, labels: labels}
}
