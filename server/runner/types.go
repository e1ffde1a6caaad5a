package runner

import (
	"time"

	"github.com/nomis52/cloudops/build"
	"github.com/nomis52/cloudops/logging"
)

// RunState represents the current state of a build run.
type RunState int

const (
	// RunStateIdle indicates no build is running.
	RunStateIdle RunState = iota
	// RunStateRunning indicates a build is in progress.
	RunStateRunning
)

// String returns the string representation of the run state.
func (s RunState) String() string {
	switch s {
	case RunStateIdle:
		return "idle"
	case RunStateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// MarshalJSON implements json.Marshaler.
func (s RunState) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *RunState) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"running"`:
		*s = RunStateRunning
	default:
		*s = RunStateIdle
	}
	return nil
}

// Triggers recorded in RunSummary.Trigger.
const (
	TriggerAPI  = "api"
	TriggerCron = "cron"
)

// RunSummary describes a run without its per-activity detail.
type RunSummary struct {
	ID    string   `json:"id"`
	State RunState `json:"state"`
	// Trigger is what started the run, e.g. api or cron.
	Trigger string `json:"trigger,omitempty"`
	// Operations lists the requested operations; empty means all of them.
	Operations []string `json:"operations,omitempty"`
	// Status is the build status, set once the run has ended.
	Status *build.Status `json:"status,omitempty"`
	// StartedAt is when the run started. Nil if no run has occurred.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// EndedAt is when the run ended. Nil if run is in progress or no run has occurred.
	EndedAt *time.Time `json:"ended_at,omitempty"`
	// Error contains the error message if the run failed. Empty on success.
	Error          string   `json:"error,omitempty"`
	FailureReasons []string `json:"failure_reasons,omitempty"`
}

// CalculateID derives the run ID from its start time.
func (s RunSummary) CalculateID() string {
	if s.StartedAt == nil {
		return ""
	}
	return s.StartedAt.UTC().Format("20060102T150405.000Z")
}

// ActivityExecution is the outcome of one activity in a run.
type ActivityExecution struct {
	ID        build.ActivityID   `json:"id"`
	State     string             `json:"state"`
	Status    string             `json:"status,omitempty"`
	Error     string             `json:"error,omitempty"`
	Warning   bool               `json:"warning,omitempty"`
	StartTime *time.Time         `json:"start_time,omitempty"`
	EndTime   *time.Time         `json:"end_time,omitempty"`
	Logs      []logging.LogEntry `json:"logs,omitempty"`
	// DroppedLogs counts the oldest log entries discarded for this activity.
	DroppedLogs int `json:"dropped_logs,omitempty"`
}

// RunStatus contains information about the current or last run.
type RunStatus struct {
	RunSummary
	ActivityExecutions []ActivityExecution `json:"activity_executions,omitempty"`
}
