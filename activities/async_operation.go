// Package activities contains the build activities cloudops can run.
package activities

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nomis52/cloudops/activity"
	"github.com/nomis52/cloudops/build"
	"github.com/nomis52/cloudops/operation"
)

// AsyncOperation runs one supervised remote operation as a build activity.
//
// A successful operation completes the activity. Otherwise the failure
// continuation logs a build error and updates the status line; with
// FailBuildOnError the build is marked failed and stops, without it the
// activity completes with a warning and the build carries on.
type AsyncOperation struct {
	ID       build.ActivityID
	Invoker  operation.Invoker
	Poller   operation.Poller
	Settings operation.Settings

	FailBuildOnError bool

	Logger     *slog.Logger
	StatusLine *activity.StatusLine
	Metrics    *operation.Metrics
	// Clock is only set by tests.
	Clock operation.Clock
	// AfterFailure, if set, runs at the end of the failure continuation.
	AfterFailure operation.Continuation

	supervisor *operation.Supervisor
	outcome    operation.Outcome
}

// Init validates the activity and builds its supervisor. A failure is also
// reported on the status line.
func (a *AsyncOperation) Init() error {
	return activity.CaptureError(a.StatusLine, a.init)
}

func (a *AsyncOperation) init() error {
	if a.Invoker == nil || a.Poller == nil {
		return errors.New("invoker and poller are required")
	}
	if a.Logger == nil {
		a.Logger = slog.Default()
	}

	opts := []operation.Option{
		operation.WithSettings(a.Settings),
		operation.WithLogger(a.Logger),
		operation.WithName(a.ID.String()),
		operation.WithMetrics(a.Metrics),
		operation.OnSuccess(a.succeeded),
		operation.OnFailure(a.failed),
	}
	if a.Clock != nil {
		opts = append(opts, operation.WithClock(a.Clock))
	}

	sv, err := operation.NewSupervisor(a.Invoker, a.Poller, opts...)
	if err != nil {
		return fmt.Errorf("%s: %w", a.ID, err)
	}
	a.supervisor = sv
	return nil
}

func (a *AsyncOperation) Execute(ctx context.Context) error {
	settings := a.supervisor.Settings()
	a.StatusLine.Setf("starting operation (timeout %ds, polling every %ds)",
		settings.TimeoutSeconds, settings.PollingIntervalSeconds)

	a.outcome = a.supervisor.Run(ctx)
	if a.outcome.IsSuccess() {
		return nil
	}
	if a.FailBuildOnError {
		return a.outcome.Err
	}
	return build.Warning(a.outcome.Err)
}

// Outcome returns the outcome of the last Execute.
func (a *AsyncOperation) Outcome() operation.Outcome {
	return a.outcome
}

func (a *AsyncOperation) succeeded(ctx context.Context, o operation.Outcome) {
	a.StatusLine.Setf("✅ operation %s succeeded after %d polls in %s", o.Handle, o.Polls, o.Duration())
}

func (a *AsyncOperation) failed(ctx context.Context, o operation.Outcome) {
	reason := fmt.Sprintf("%s %s: %v", a.ID, o.State, o.Err)

	a.Logger.Error("build error",
		"activity", a.ID.String(),
		"handle", string(o.Handle),
		"state", o.State.String(),
		"error", o.Err)

	if a.FailBuildOnError {
		a.StatusLine.Set("❌ " + reason)
		build.FromContext(ctx).MarkFailed(reason)
	} else {
		a.StatusLine.Set("⚠️ " + reason)
	}

	if a.AfterFailure != nil {
		a.AfterFailure(ctx, o)
	}
}
