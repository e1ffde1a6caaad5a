package activity

import (
	"sync"
	"time"

	"github.com/nomis52/cloudops/build"
)

// Status is the latest message reported by an activity.
type Status struct {
	Message   string    `json:"message"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StatusHandler stores the latest status of every activity. It is the shared
// sink behind all StatusLines of a run.
type StatusHandler struct {
	mu       sync.RWMutex
	now      func() time.Time
	statuses map[build.ActivityID]Status
}

// NewStatusHandler creates a new status handler.
func NewStatusHandler() *StatusHandler {
	return &StatusHandler{
		now:      time.Now,
		statuses: make(map[build.ActivityID]Status),
	}
}

// Set records message as the status of activityID.
func (sh *StatusHandler) Set(activityID build.ActivityID, message string) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.statuses[activityID] = Status{Message: message, UpdatedAt: sh.now()}
}

// Get returns the status message of activityID, or "" if none was set.
func (sh *StatusHandler) Get(activityID build.ActivityID) string {
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return sh.statuses[activityID].Message
}

// All returns a copy of every status.
func (sh *StatusHandler) All() map[build.ActivityID]Status {
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	out := make(map[build.ActivityID]Status, len(sh.statuses))
	for k, v := range sh.statuses {
		out[k] = v
	}
	return out
}
