package activity

import (
	"fmt"
	"log/slog"

	"github.com/nomis52/cloudops/build"
)

// StatusLine reports the human-readable progress of one activity. Each update
// is logged and, when a handler is attached, stored for display.
type StatusLine struct {
	logger     *slog.Logger
	handler    *StatusHandler
	activityID build.ActivityID
}

// NewStatusLine creates a status line bound to an activity. handler may be nil,
// in which case updates are only logged.
func NewStatusLine(activityID build.ActivityID, logger *slog.Logger, handler *StatusHandler) *StatusLine {
	return &StatusLine{
		logger:     logger,
		handler:    handler,
		activityID: activityID,
	}
}

// Set replaces the activity's status message. A nil StatusLine ignores the call.
func (sl *StatusLine) Set(status string) {
	if sl == nil {
		return
	}
	sl.logger.Info(status, "activity", sl.activityID.String())
	if sl.handler != nil {
		sl.handler.Set(sl.activityID, status)
	}
}

// Setf is Set with formatting.
func (sl *StatusLine) Setf(format string, args ...any) {
	sl.Set(fmt.Sprintf(format, args...))
}
