package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// Build runs its activities one after another in the order they were added.
type Build struct {
	logger *slog.Logger
	now    func() time.Time

	mu        sync.RWMutex
	order     []ActivityID
	entries   map[ActivityID]*entry
	status    Status
	reasons   []string
	startTime time.Time
	endTime   time.Time
	executed  bool
}

type entry struct {
	activity        Activity
	continueOnError bool
	dependsOn       []ActivityID
	result          Result
}

// Option configures a Build.
type Option func(*Build)

// WithLogger sets a custom logger for the build
func WithLogger(logger *slog.Logger) Option {
	return func(b *Build) {
		b.logger = logger
	}
}

// WithClock replaces time.Now for activity timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *Build) {
		b.now = now
	}
}

// AddOption configures a single activity.
type AddOption func(*entry)

// ContinueOnError lets later activities run after this one fails. The build
// still ends as failed.
func ContinueOnError() AddOption {
	return func(e *entry) {
		e.continueOnError = true
	}
}

// DependsOn skips the activity unless every listed activity succeeded or warned.
// Dependencies must already have been added.
func DependsOn(ids ...ActivityID) AddOption {
	return func(e *entry) {
		e.dependsOn = append(e.dependsOn, ids...)
	}
}

// New creates an empty build.
func New(opts ...Option) *Build {
	b := &Build{
		logger:  slog.Default(),
		now:     time.Now,
		entries: make(map[ActivityID]*entry),
		status:  StatusInProgress,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "build")
	return b
}

// AddActivity registers an activity under id. The activity's result is
// available immediately in the NotStarted state.
func (b *Build) AddActivity(id ActivityID, activity Activity, opts ...AddOption) error {
	if !id.IsValid() {
		return fmt.Errorf("invalid activity id %q", id)
	}
	if activity == nil {
		return fmt.Errorf("activity %s is nil", id)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.executed {
		return errors.New("cannot add activities after the build started")
	}
	if _, exists := b.entries[id]; exists {
		return fmt.Errorf("activity %s already exists", id)
	}

	e := &entry{activity: activity, result: Result{State: NotStarted}}
	for _, opt := range opts {
		opt(e)
	}
	for _, dep := range e.dependsOn {
		if _, ok := b.entries[dep]; !ok {
			return fmt.Errorf("activity %s depends on unknown activity %s", id, dep)
		}
	}

	b.entries[id] = e
	b.order = append(b.order, id)
	return nil
}

// Execute runs the build once. The returned error joins the errors of every
// failed activity; warnings are not returned. After Execute every activity has
// a final Result and Status is terminal.
func (b *Build) Execute(ctx context.Context) error {
	b.mu.Lock()
	if b.executed {
		b.mu.Unlock()
		return errors.New("build already executed")
	}
	b.executed = true
	b.startTime = b.now()
	order := slices.Clone(b.order)
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.endTime = b.now()
		b.mu.Unlock()
	}()

	if len(order) == 0 {
		b.logger.Info("no activities to execute")
		b.finish(nil)
		return nil
	}

	b.logger.Info("starting build", "activity_count", len(order))

	if err := b.initAll(order); err != nil {
		b.finish(err)
		return err
	}

	for _, id := range order {
		b.setState(id, Pending)
	}

	ctx = withBuild(ctx, b)
	var errs []error
	var stoppedBy *ActivityID

	for _, id := range order {
		logger := b.logger.With("activity_id", id.String())

		if err := ctx.Err(); err != nil {
			logger.Warn("activity skipped, build cancelled", "error", err)
			b.skip(id, fmt.Errorf("cancelled: %w", err))
			continue
		}
		if stoppedBy != nil {
			b.skip(id, fmt.Errorf("skipped: %s failed", stoppedBy))
			continue
		}
		if dep, ok := b.failedDependency(id); ok {
			logger.Warn("activity skipped, dependency did not succeed", "dependency", dep.String())
			b.skip(id, fmt.Errorf("dependency %s did not succeed", dep))
			continue
		}

		err := b.run(ctx, id, logger)
		if err == nil || IsWarning(err) {
			continue
		}

		errs = append(errs, fmt.Errorf("activity %s failed: %w", id, err))
		if !b.continueOnError(id) {
			stopped := id
			stoppedBy = &stopped
		}
	}

	if ctx.Err() != nil {
		errs = append(errs, fmt.Errorf("build cancelled: %w", ctx.Err()))
	}

	err := errors.Join(errs...)
	b.finish(err)
	return err
}

func (b *Build) initAll(order []ActivityID) error {
	for _, id := range order {
		b.mu.RLock()
		activity := b.entries[id].activity
		b.mu.RUnlock()

		if err := activity.Init(); err != nil {
			b.logger.Error("activity initialization failed", "activity_id", id.String(), "error", err)
			blocked := fmt.Errorf("initialization blocked by %s: %w", id, err)
			b.mu.Lock()
			for _, other := range order {
				b.entries[other].result = Result{State: NotStarted, Error: blocked}
			}
			b.mu.Unlock()
			return fmt.Errorf("activity %s initialization failed: %w", id, err)
		}
	}
	return nil
}

// run executes one activity, converting a panic into an error.
func (b *Build) run(ctx context.Context, id ActivityID, logger *slog.Logger) (err error) {
	b.mu.Lock()
	e := b.entries[id]
	e.result = Result{State: Running, StartTime: b.now()}
	b.mu.Unlock()

	logger.Info("executing activity")

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("activity panicked: %v", r)
		}

		switch {
		case err == nil:
			logger.Info("activity completed")
		case IsWarning(err):
			logger.Warn("activity completed with warning", "error", err)
		default:
			logger.Error("activity failed", "error", err)
		}

		b.mu.Lock()
		e.result.State = Completed
		e.result.Error = err
		e.result.EndTime = b.now()
		b.mu.Unlock()
	}()

	return e.activity.Execute(ctx)
}

func (b *Build) failedDependency(id ActivityID) (ActivityID, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, dep := range b.entries[id].dependsOn {
		r := b.entries[dep].result
		if !r.IsSuccess() && !r.IsWarning() {
			return dep, true
		}
	}
	return ActivityID{}, false
}

func (b *Build) continueOnError(id ActivityID) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.entries[id].continueOnError
}

func (b *Build) setState(id ActivityID, state ActivityState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[id].result.State = state
}

func (b *Build) skip(id ActivityID, reason error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[id].result = Result{State: Skipped, Error: reason}
}

// finish computes the terminal status.
func (b *Build) finish(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	warned := false
	for _, e := range b.entries {
		if e.result.IsWarning() {
			warned = true
		}
	}

	switch {
	case err != nil || len(b.reasons) > 0:
		b.status = StatusFailed
	case warned:
		b.status = StatusPartiallySucceeded
	default:
		b.status = StatusSucceeded
	}

	b.logger.Info("build finished", "status", b.status.String())
}

// MarkFailed records reason and forces the build to end as failed. It may be
// called from inside an activity, typically from a failure continuation. A nil
// Build ignores the call.
func (b *Build) MarkFailed(reason string) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reasons = append(b.reasons, reason)
	if b.status != StatusInProgress {
		b.status = StatusFailed
	}
}

// Status returns the overall status.
func (b *Build) Status() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

// FailureReasons returns the reasons passed to MarkFailed.
func (b *Build) FailureReasons() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.reasons)
}

// Order returns the activity IDs in execution order.
func (b *Build) Order() []ActivityID {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.order)
}

// Result returns the current result of an activity.
func (b *Build) Result(id ActivityID) (Result, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.entries[id]
	if !ok {
		return Result{}, false
	}
	return e.result, true
}

// Results returns a snapshot of every activity's result. It is safe to call
// while the build executes.
func (b *Build) Results() map[ActivityID]Result {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[ActivityID]Result, len(b.entries))
	for id, e := range b.entries {
		out[id] = e.result
	}
	return out
}

// Times returns when Execute started and ended. Either may be zero.
func (b *Build) Times() (start, end time.Time) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.startTime, b.endTime
}

type buildKey struct{}

func withBuild(ctx context.Context, b *Build) context.Context {
	return context.WithValue(ctx, buildKey{}, b)
}

// FromContext returns the build executing the current activity, or nil.
func FromContext(ctx context.Context) *Build {
	b, _ := ctx.Value(buildKey{}).(*Build)
	return b
}
