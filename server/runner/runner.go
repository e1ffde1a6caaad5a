// Package runner manages build execution for the cloudops server.
//
// The runner handles:
//   - Starting build runs in the background
//   - Preventing concurrent runs
//   - Tracking current run status
//   - Maintaining history of completed runs
//
// # Example
//
//	r := runner.New(logger, pipeline)
//
//	// Start a run of every operation
//	if err := r.Run(runner.TriggerAPI, nil); err != nil {
//	    if errors.Is(err, runner.ErrRunInProgress) {
//	        // Handle concurrent run attempt
//	    }
//	}
//
//	// Check status with live activity executions and logs
//	status := r.Status()
//	for _, exec := range status.ActivityExecutions {
//	    fmt.Printf("%s [%s]: %s\n", exec.ID, exec.State, exec.Status)
//	}
//
//	// Get history
//	history := r.History() // Most recent first
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/nomis52/cloudops/activity"
	"github.com/nomis52/cloudops/build"
	"github.com/nomis52/cloudops/logging"
	"github.com/nomis52/cloudops/pipeline"
)

const defaultMaxHistorySize = 100

// ErrRunInProgress is returned when attempting to start a run while one is already running.
var ErrRunInProgress = errors.New("build run already in progress")

// BuildFactory creates and executes builds. *pipeline.Pipeline implements it.
type BuildFactory interface {
	NewBuild(operations []string, opts ...pipeline.BuildOption) (*build.Build, error)
	Execute(ctx context.Context, b *build.Build) error
}

// Runner manages build execution.
type Runner struct {
	logger  *slog.Logger
	factory BuildFactory
	store   StateStore
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	runStatus RunStatus
	build     *build.Build
	statuses  *activity.StatusHandler
	logs      *logging.LogCollector
}

// Option configures a Runner.
type Option func(*Runner)

// WithStateStore configures the runner to use the provided store for persistence.
func WithStateStore(store StateStore) Option {
	return func(r *Runner) {
		r.store = store
	}
}

// WithClock sets the time source used for run timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

// New creates a new Runner.
func New(logger *slog.Logger, factory BuildFactory, opts ...Option) *Runner {
	r := &Runner{
		logger:    logger.With("component", "runner"),
		factory:   factory,
		store:     NewMemoryStore(defaultMaxHistorySize),
		now:       time.Now,
		runStatus: RunStatus{RunSummary: RunSummary{State: RunStateIdle}},
	}
	for _, opt := range opts {
		opt(r)
	}
	r.ctx, r.cancel = context.WithCancel(context.Background())
	return r
}

// Run starts a build of the given operations, or all of them when operations
// is empty, in the background. It returns ErrRunInProgress if a run is
// already in progress and an error if the build cannot be created.
func (r *Runner) Run(trigger string, operations []string) error {
	statuses := activity.NewStatusHandler()
	logs := logging.NewLogCollector()

	r.mu.Lock()
	if r.runStatus.State == RunStateRunning {
		r.mu.Unlock()
		return ErrRunInProgress
	}
	if err := r.ctx.Err(); err != nil {
		r.mu.Unlock()
		return fmt.Errorf("runner stopped: %w", err)
	}

	b, err := r.factory.NewBuild(operations,
		pipeline.WithStatusHandler(statuses),
		pipeline.WithLogCollector(logs))
	if err != nil {
		r.mu.Unlock()
		return fmt.Errorf("creating build: %w", err)
	}

	now := r.now()
	r.runStatus = RunStatus{RunSummary: RunSummary{
		State:      RunStateRunning,
		Trigger:    trigger,
		Operations: slices.Clone(operations),
		StartedAt:  &now,
	}}
	r.runStatus.ID = r.runStatus.CalculateID()
	runID := r.runStatus.ID
	r.build = b
	r.statuses = statuses
	r.logs = logs
	r.wg.Add(1)
	r.mu.Unlock()

	r.logger.Info("starting build run", "run_id", runID, "trigger", trigger, "operations", operations)

	go func() {
		defer r.wg.Done()
		err := r.factory.Execute(r.ctx, b)
		r.finish(b, err)
	}()
	return nil
}

// Status returns the current run status with live activity executions and
// logs, or the last run's status when idle.
func (r *Runner) Status() RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	status := cloneRun(r.runStatus)
	if r.runStatus.State == RunStateRunning {
		status.ActivityExecutions = r.activityExecutions()
	}
	return status
}

// IsRunning returns true if a build run is in progress.
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runStatus.State == RunStateRunning
}

// History returns the completed runs, most recent first.
func (r *Runner) History() []RunSummary {
	return r.store.History()
}

// Get returns a completed run by ID.
func (r *Runner) Get(id string) (RunStatus, bool) {
	return r.store.Get(id)
}

// Wait blocks until the current run, if any, has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Stop cancels the current run and waits for it to finish. No further runs
// can be started.
func (r *Runner) Stop() {
	r.cancel()
	r.wg.Wait()
}

func (r *Runner) finish(b *build.Build, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	end := r.now()
	status := b.Status()

	r.runStatus.State = RunStateIdle
	r.runStatus.EndedAt = &end
	r.runStatus.Status = &status
	r.runStatus.FailureReasons = b.FailureReasons()
	if err != nil {
		r.runStatus.Error = err.Error()
	}
	r.runStatus.ActivityExecutions = r.activityExecutions()

	duration := end.Sub(*r.runStatus.StartedAt)
	if status == build.StatusFailed {
		r.logger.Error("build run failed", "run_id", r.runStatus.ID, "error", err, "duration", duration)
	} else {
		r.logger.Info("build run completed", "run_id", r.runStatus.ID, "status", status.String(), "duration", duration)
	}

	if err := r.store.Save(cloneRun(r.runStatus)); err != nil {
		r.logger.Error("failed to save run to store", "error", err)
	}
}

// activityExecutions combines build results, status lines and captured logs.
// Must be called with mu held.
func (r *Runner) activityExecutions() []ActivityExecution {
	if r.build == nil {
		return nil
	}

	results := r.build.Results()
	statuses := r.statuses.All()

	executions := make([]ActivityExecution, 0, len(results))
	for _, id := range r.build.Order() {
		result := results[id]
		exec := ActivityExecution{
			ID:      id,
			State:   result.State.String(),
			Warning: result.IsWarning(),
			Status:  statuses[id].Message,
		}
		if result.Error != nil {
			exec.Error = result.Error.Error()
		}
		if !result.StartTime.IsZero() {
			start := result.StartTime
			exec.StartTime = &start
		}
		if !result.EndTime.IsZero() {
			end := result.EndTime
			exec.EndTime = &end
		}
		exec.Logs = r.logs.Entries(id.String())
		exec.DroppedLogs = r.logs.Dropped(id.String())

		executions = append(executions, exec)
	}
	return executions
}
