package operation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// Supervisor launches a remote operation, polls it until it reaches a terminal
// state or its deadline, and reports the result through exactly one continuation.
//
// A Supervisor is immutable after construction. Run may be called concurrently;
// every call supervises an independent session.
type Supervisor struct {
	invoker   Invoker
	poller    Poller
	settings  Settings
	clock     Clock
	logger    *slog.Logger
	metrics   *Metrics
	name      string
	onSuccess Continuation
	onFailure Continuation

	// timeoutSet and intervalSet mark settings given through WithTimeoutSeconds
	// and WithPollingIntervalSeconds, where zero does not mean default.
	timeoutSet  bool
	intervalSet bool
}

// Option configures a Supervisor
type Option func(*Supervisor)

// WithSettings sets both timing parameters. Zero fields keep their defaults.
func WithSettings(settings Settings) Option {
	return func(sv *Supervisor) {
		sv.settings = settings.Merge(sv.settings)
	}
}

// WithTimeoutSeconds sets the polling deadline measured from a successful invoke.
// Unlike a zero Settings field, an explicit zero is rejected.
func WithTimeoutSeconds(seconds int) Option {
	return func(sv *Supervisor) {
		sv.settings.TimeoutSeconds = seconds
		sv.timeoutSet = true
	}
}

// WithPollingIntervalSeconds sets the delay between polls.
// Unlike a zero Settings field, an explicit zero is rejected.
func WithPollingIntervalSeconds(seconds int) Option {
	return func(sv *Supervisor) {
		sv.settings.PollingIntervalSeconds = seconds
		sv.intervalSet = true
	}
}

// WithLogger sets a custom logger for the supervisor
func WithLogger(logger *slog.Logger) Option {
	return func(sv *Supervisor) {
		sv.logger = logger
	}
}

// WithClock replaces the time source. Tests use a simulated clock.
func WithClock(clock Clock) Option {
	return func(sv *Supervisor) {
		sv.clock = clock
	}
}

// WithMetrics records session and poll metrics.
func WithMetrics(m *Metrics) Option {
	return func(sv *Supervisor) {
		sv.metrics = m
	}
}

// WithName labels log records with the name of the supervised operation.
func WithName(name string) Option {
	return func(sv *Supervisor) {
		sv.name = name
	}
}

// OnSuccess sets the continuation run when the operation succeeds.
func OnSuccess(c Continuation) Option {
	return func(sv *Supervisor) {
		sv.onSuccess = c
	}
}

// OnFailure sets the continuation run when the session fails, times out or faults.
func OnFailure(c Continuation) Option {
	return func(sv *Supervisor) {
		sv.onFailure = c
	}
}

// NewSupervisor creates a Supervisor for the given invoker and poller.
// It returns ErrInvalidPollingInterval or ErrInvalidTimeout if the settings are out of range.
func NewSupervisor(invoker Invoker, poller Poller, opts ...Option) (*Supervisor, error) {
	if invoker == nil {
		return nil, errors.New("invoker is required")
	}
	if poller == nil {
		return nil, errors.New("poller is required")
	}

	sv := &Supervisor{
		invoker:  invoker,
		poller:   poller,
		settings: DefaultSettings(),
		clock:    RealClock(),
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(sv)
	}

	// An explicit zero skips defaulting so that Validate rejects it.
	explicit := sv.settings
	sv.settings.SetDefaults()
	if sv.intervalSet && explicit.PollingIntervalSeconds == 0 {
		sv.settings.PollingIntervalSeconds = 0
	}
	if sv.timeoutSet && explicit.TimeoutSeconds == 0 {
		sv.settings.TimeoutSeconds = 0
	}
	if err := sv.settings.Validate(); err != nil {
		return nil, err
	}

	sv.logger = sv.logger.With("component", "supervisor")
	if sv.name != "" {
		sv.logger = sv.logger.With("operation", sv.name)
	}

	return sv, nil
}

// Settings returns the effective timing settings.
func (sv *Supervisor) Settings() Settings {
	return sv.settings
}

// Run supervises one session to completion and returns its Outcome.
// Run never panics because of the invoker or poller and never returns an error:
// failures are reported in Outcome.Err and through the failure continuation.
func (sv *Supervisor) Run(ctx context.Context) Outcome {
	sess := newSession(uuid.NewString(), sv.settings, sv.clock.Now())
	logger := sv.logger.With("session_id", sess.id)

	outcome := sv.drive(ctx, sess, logger)
	sv.metrics.observeOutcome(outcome)
	sv.dispatch(ctx, outcome, logger)
	return outcome
}

// Start runs a session in its own goroutine. The Outcome is delivered on the
// returned channel, which is closed afterwards.
func (sv *Supervisor) Start(ctx context.Context) <-chan Outcome {
	ch := make(chan Outcome, 1)
	go func() {
		defer close(ch)
		ch <- sv.Run(ctx)
	}()
	return ch
}

// drive moves the session through Invoking and Polling to a terminal state.
func (sv *Supervisor) drive(ctx context.Context, sess *Session, logger *slog.Logger) Outcome {
	sv.mustTransition(sess, StateInvoking)
	logger.Debug("invoking remote operation")

	var handle Handle
	sv.intercept(ctx, sess, StepInvoke, func(ctx context.Context) error {
		h, err := sv.invoker.Invoke(ctx)
		if err != nil {
			return err
		}
		if h == "" {
			return ErrEmptyHandle
		}
		handle = h
		return nil
	})
	if sess.Faulted() {
		return sv.finish(sess, StateFaulted)
	}

	sess.begin(handle, sv.clock.Now())
	sv.mustTransition(sess, StatePolling)
	logger.Info("remote operation started",
		"handle", string(handle),
		"deadline", sess.deadline,
		"polling_interval", sess.pollingInterval)

	for {
		var status Status
		sv.intercept(ctx, sess, StepPoll, func(ctx context.Context) error {
			st, err := sv.poller.Poll(ctx, handle)
			if err != nil {
				return err
			}
			if st != StatusInProgress && !st.IsTerminal() {
				return fmt.Errorf("%w: %d", ErrUnknownStatus, int(st))
			}
			status = st
			return nil
		})
		if sess.Faulted() {
			return sv.finish(sess, StateFaulted)
		}

		sess.recordPoll(status)
		sv.metrics.observePoll()
		logger.Debug("operation status", "handle", string(handle), "status", status.String(), "poll", sess.polls)

		switch status {
		case StatusSucceeded:
			return sv.finish(sess, StateSucceeded)
		case StatusFailed:
			return sv.finish(sess, StateFailed)
		}

		// Timeout short-circuits: no delay is scheduled once the deadline has passed.
		if sess.expired(sv.clock.Now()) {
			return sv.finish(sess, StateTimedOut)
		}

		sv.intercept(ctx, sess, StepDelay, func(ctx context.Context) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-sv.clock.After(sess.pollingInterval):
				return nil
			}
		})
		if sess.Faulted() {
			return sv.finish(sess, StateFaulted)
		}
		sess.recordDelay()
	}
}

func (sv *Supervisor) finish(sess *Session, state State) Outcome {
	outcome, err := sess.finish(state, sv.clock.Now())
	if err != nil {
		// Unreachable with the transitions used by drive.
		panic(err)
	}
	return outcome
}

func (sv *Supervisor) mustTransition(sess *Session, state State) {
	if err := sess.transition(state); err != nil {
		panic(err)
	}
}

// dispatch fires exactly one continuation for the outcome.
func (sv *Supervisor) dispatch(ctx context.Context, outcome Outcome, logger *slog.Logger) {
	attrs := []any{
		"handle", string(outcome.Handle),
		"state", outcome.State.String(),
		"polls", outcome.Polls,
		"delays", outcome.Delays,
		"duration", outcome.Duration(),
	}

	if outcome.IsSuccess() {
		logger.Info("remote operation succeeded", attrs...)
		continueWith(ctx, stepOnSuccess, sv.onSuccess, outcome, logger)
		return
	}

	logger.Warn("remote operation did not succeed", append(attrs, "error", outcome.Err)...)
	continueWith(ctx, stepOnFailure, sv.onFailure, outcome, logger)
}
