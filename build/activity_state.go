package build

import (
	"encoding/json"
	"fmt"
)

// ActivityState represents the execution state of an activity
type ActivityState int

const (
	// NotStarted indicates the activity is registered but the build has not reached
	// it. If initialization fails every activity stays NotStarted.
	NotStarted ActivityState = iota

	// Pending indicates the build is executing and the activity is queued
	Pending

	// Running indicates the activity is currently executing
	Running

	// Skipped indicates the activity never ran: an earlier activity or a
	// dependency failed, or the build was cancelled
	Skipped

	// Completed indicates the activity ran. Check Result.Error for the outcome.
	Completed
)

var activityStateNames = map[ActivityState]string{
	NotStarted: "not_started",
	Pending:    "pending",
	Running:    "running",
	Skipped:    "skipped",
	Completed:  "completed",
}

func (s ActivityState) String() string {
	if name, ok := activityStateNames[s]; ok {
		return name
	}
	return "unknown"
}

func (s ActivityState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *ActivityState) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for state, n := range activityStateNames {
		if n == name {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown activity state %q", name)
}

// Status is the overall status of a build.
type Status int

const (
	StatusInProgress Status = iota
	StatusSucceeded
	// StatusPartiallySucceeded means every activity that ran finished but at
	// least one reported a warning.
	StatusPartiallySucceeded
	StatusFailed
)

var statusNames = map[Status]string{
	StatusInProgress:         "in_progress",
	StatusSucceeded:          "succeeded",
	StatusPartiallySucceeded: "partially_succeeded",
	StatusFailed:             "failed",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for status, n := range statusNames {
		if n == name {
			*s = status
			return nil
		}
	}
	return fmt.Errorf("unknown build status %q", name)
}
