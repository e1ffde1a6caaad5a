// Package metrics records supervisor and pipeline metrics in either of two modes:
//   - Scrape mode (serve): metrics live in a Prometheus registry exposed over HTTP
//   - Push mode (run): metrics are batched and flushed to a remote write endpoint
//     when the run completes
//
// Callers depend only on Registry and the metric interfaces below, so the same
// instrumentation code works in both modes.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Gauge is a value that can go up and down.
type Gauge interface {
	Set(float64)
}

// Counter is a monotonically increasing value.
type Counter interface {
	Inc()
	// Add panics if v is negative.
	Add(v float64)
}

// GaugeVec is a Gauge partitioned by labels.
type GaugeVec interface {
	With(prometheus.Labels) Gauge
}

// CounterVec is a Counter partitioned by labels.
type CounterVec interface {
	With(prometheus.Labels) Counter
}

// Registry creates metrics. Registering the same name twice is an error in
// scrape mode.
type Registry interface {
	NewGauge(opts prometheus.GaugeOpts) (Gauge, error)
	NewGaugeVec(opts prometheus.GaugeOpts, labels []string) (GaugeVec, error)
	NewCounter(opts prometheus.CounterOpts) (Counter, error)
	NewCounterVec(opts prometheus.CounterOpts, labels []string) (CounterVec, error)
}
