package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ScrapeRegistry implements Registry on top of a Prometheus registry served by Handler.
type ScrapeRegistry struct {
	prom *prometheus.Registry
}

// ScrapeOption configures a ScrapeRegistry.
type ScrapeOption func(*scrapeOptions)

type scrapeOptions struct {
	runtimeCollectors bool
}

// WithoutRuntimeCollectors skips the Go and process collectors.
func WithoutRuntimeCollectors() ScrapeOption {
	return func(o *scrapeOptions) {
		o.runtimeCollectors = false
	}
}

// NewScrapeRegistry creates a ScrapeRegistry. The Go runtime and process
// collectors are registered unless WithoutRuntimeCollectors is given.
func NewScrapeRegistry(opts ...ScrapeOption) (*ScrapeRegistry, error) {
	o := scrapeOptions{runtimeCollectors: true}
	for _, opt := range opts {
		opt(&o)
	}

	reg := prometheus.NewRegistry()
	if o.runtimeCollectors {
		if err := reg.Register(collectors.NewGoCollector()); err != nil {
			return nil, fmt.Errorf("registering go collector: %w", err)
		}
		if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
			return nil, fmt.Errorf("registering process collector: %w", err)
		}
	}

	return &ScrapeRegistry{prom: reg}, nil
}

// Handler serves the registry in the Prometheus exposition format.
func (r *ScrapeRegistry) Handler() http.Handler {
	return promhttp.HandlerFor(r.prom, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Gatherer exposes the underlying registry for tests and custom exporters.
func (r *ScrapeRegistry) Gatherer() prometheus.Gatherer {
	return r.prom
}

func (r *ScrapeRegistry) register(kind, name string, c prometheus.Collector) error {
	if err := r.prom.Register(c); err != nil {
		return fmt.Errorf("registering %s %q: %w", kind, name, err)
	}
	return nil
}

func (r *ScrapeRegistry) NewGauge(opts prometheus.GaugeOpts) (Gauge, error) {
	g := prometheus.NewGauge(opts)
	if err := r.register("gauge", opts.Name, g); err != nil {
		return nil, err
	}
	return g, nil
}

func (r *ScrapeRegistry) NewGaugeVec(opts prometheus.GaugeOpts, labels []string) (GaugeVec, error) {
	g := prometheus.NewGaugeVec(opts, labels)
	if err := r.register("gauge vec", opts.Name, g); err != nil {
		return nil, err
	}
	return gaugeVec{g}, nil
}

func (r *ScrapeRegistry) NewCounter(opts prometheus.CounterOpts) (Counter, error) {
	c := prometheus.NewCounter(opts)
	if err := r.register("counter", opts.Name, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *ScrapeRegistry) NewCounterVec(opts prometheus.CounterOpts, labels []string) (CounterVec, error) {
	c := prometheus.NewCounterVec(opts, labels)
	if err := r.register("counter vec", opts.Name, c); err != nil {
		return nil, err
	}
	return counterVec{c}, nil
}

// prometheus.Gauge and prometheus.Counter satisfy Gauge and Counter directly;
// the vectors need adapting because With returns the concrete prometheus types.

type gaugeVec struct {
	vec *prometheus.GaugeVec
}

func (g gaugeVec) With(labels prometheus.Labels) Gauge {
	return g.vec.With(labels)
}

type counterVec struct {
	vec *prometheus.CounterVec
}

func (c counterVec) With(labels prometheus.Labels) Counter {
	return c.vec.With(labels)
}
