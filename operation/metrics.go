package operation

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nomis52/cloudops/metrics"
)

const (
	metricSessions        = "operation_sessions_total"
	metricPolls           = "operation_polls_total"
	metricSessionDuration = "operation_session_duration_seconds"
)

// Metrics records supervisor activity. Create it once per registry and share it
// between supervisors; a nil *Metrics records nothing.
type Metrics struct {
	sessions metrics.CounterVec
	polls    metrics.Counter
	duration metrics.GaugeVec
}

// NewMetrics creates and registers the supervisor metrics with registry.
func NewMetrics(registry metrics.Registry) (*Metrics, error) {
	sessions, err := registry.NewCounterVec(prometheus.CounterOpts{
		Name: metricSessions,
		Help: "Count of supervised operation sessions by terminal outcome",
	}, []string{"outcome"})
	if err != nil {
		return nil, fmt.Errorf("creating %s metric: %w", metricSessions, err)
	}

	polls, err := registry.NewCounter(prometheus.CounterOpts{
		Name: metricPolls,
		Help: "Count of status polls issued",
	})
	if err != nil {
		return nil, fmt.Errorf("creating %s metric: %w", metricPolls, err)
	}

	duration, err := registry.NewGaugeVec(prometheus.GaugeOpts{
		Name: metricSessionDuration,
		Help: "Duration of the most recent session by terminal outcome",
	}, []string{"outcome"})
	if err != nil {
		return nil, fmt.Errorf("creating %s metric: %w", metricSessionDuration, err)
	}

	return &Metrics{
		sessions: sessions,
		polls:    polls,
		duration: duration,
	}, nil
}

func (m *Metrics) observePoll() {
	if m == nil {
		return
	}
	m.polls.Inc()
}

func (m *Metrics) observeOutcome(o Outcome) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{"outcome": o.State.String()}
	m.sessions.With(labels).Inc()
	m.duration.With(labels).Set(o.Duration().Seconds())
}
