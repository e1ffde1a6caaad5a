package build

import (
	"context"
	"errors"
	"time"
)

// Activity is a single step of a build.
//
// Init is called for every activity before any Execute, so configuration
// errors surface before remote work starts. Execute performs the work; return
// nil for success, an error to fail the build, or an error wrapped with
// Warning to let the build continue as partially succeeded.
type Activity interface {
	Init() error
	Execute(ctx context.Context) error
}

// Result is the outcome of one activity.
type Result struct {
	State ActivityState
	// Error is the error returned by Execute, or why the activity was skipped
	// or blocked.
	Error     error
	StartTime time.Time
	EndTime   time.Time
}

// IsSuccess reports whether the activity ran and returned nil.
func (r Result) IsSuccess() bool {
	return r.State == Completed && r.Error == nil
}

// IsWarning reports whether the activity ran and returned a Warning.
func (r Result) IsWarning() bool {
	return r.State == Completed && IsWarning(r.Error)
}

// Duration is zero until the activity completes.
func (r Result) Duration() time.Duration {
	if r.StartTime.IsZero() || r.EndTime.IsZero() {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}

type warning struct {
	err error
}

func (w *warning) Error() string { return w.err.Error() }
func (w *warning) Unwrap() error { return w.err }

// Warning marks err as non-fatal for the build. A nil err returns nil.
func Warning(err error) error {
	if err == nil {
		return nil
	}
	return &warning{err: err}
}

// IsWarning reports whether err was wrapped with Warning.
func IsWarning(err error) bool {
	var w *warning
	return errors.As(err, &w)
}
