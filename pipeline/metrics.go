package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nomis52/cloudops/build"
	"github.com/nomis52/cloudops/metrics"
)

var buildStatuses = []build.Status{
	build.StatusSucceeded,
	build.StatusPartiallySucceeded,
	build.StatusFailed,
}

// BuildMetrics records the result of each executed build.
type BuildMetrics struct {
	lastRun          metrics.Gauge
	duration         metrics.Gauge
	status           metrics.GaugeVec
	activitySuccess  metrics.GaugeVec
	activityDuration metrics.GaugeVec
}

// NewBuildMetrics registers the build metrics with registry.
func NewBuildMetrics(registry metrics.Registry) (*BuildMetrics, error) {
	m := &BuildMetrics{}
	var err error

	if m.lastRun, err = registry.NewGauge(prometheus.GaugeOpts{
		Name: "build_last_run_timestamp_seconds",
		Help: "Unix time the last build finished.",
	}); err != nil {
		return nil, err
	}
	if m.duration, err = registry.NewGauge(prometheus.GaugeOpts{
		Name: "build_duration_seconds",
		Help: "Duration of the last build.",
	}); err != nil {
		return nil, err
	}
	if m.status, err = registry.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_status",
		Help: "1 for the status of the last build, 0 otherwise.",
	}, []string{"status"}); err != nil {
		return nil, err
	}
	if m.activitySuccess, err = registry.NewGaugeVec(prometheus.GaugeOpts{
		Name: "activity_success",
		Help: "1 if the activity completed without error in the last build.",
	}, []string{"activity"}); err != nil {
		return nil, err
	}
	if m.activityDuration, err = registry.NewGaugeVec(prometheus.GaugeOpts{
		Name: "activity_duration_seconds",
		Help: "Duration of the activity in the last build.",
	}, []string{"activity"}); err != nil {
		return nil, err
	}
	return m, nil
}

// Record sets the metrics from a finished build. A nil BuildMetrics records nothing.
func (m *BuildMetrics) Record(b *build.Build) {
	if m == nil {
		return
	}

	start, end := b.Times()
	m.lastRun.Set(float64(end.Unix()))
	m.duration.Set(end.Sub(start).Seconds())

	current := b.Status()
	for _, s := range buildStatuses {
		v := 0.0
		if s == current {
			v = 1
		}
		m.status.With(prometheus.Labels{"status": s.String()}).Set(v)
	}

	for id, r := range b.Results() {
		labels := prometheus.Labels{"activity": id.String()}
		success := 0.0
		if r.IsSuccess() {
			success = 1
		}
		m.activitySuccess.With(labels).Set(success)
		if r.State == build.Completed {
			m.activityDuration.With(labels).Set(r.Duration().Seconds())
		}
	}
}
