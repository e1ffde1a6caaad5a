package operation

import (
	"fmt"
	"time"
)

// Session holds the state of one supervised run.
// It is owned by a single Run call and never shared, so it needs no locking.
type Session struct {
	id              string
	handle          Handle
	deadline        time.Time
	timeout         time.Duration
	pollingInterval time.Duration

	state      State
	faulted    bool
	fault      *FaultError
	lastStatus Status
	polls      int
	delays     int

	startedAt time.Time
	endedAt   time.Time
}

func newSession(id string, settings Settings, now time.Time) *Session {
	return &Session{
		id:              id,
		timeout:         settings.Timeout(),
		pollingInterval: settings.PollingInterval(),
		state:           StateIdle,
		startedAt:       now,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current state.
func (s *Session) State() State { return s.state }

// Handle returns the operation handle, empty until the invoker succeeds.
func (s *Session) Handle() Handle { return s.handle }

// Deadline returns the absolute polling deadline, zero until the invoker succeeds.
func (s *Session) Deadline() time.Time { return s.deadline }

// Faulted reports whether a step has been intercepted with an error.
func (s *Session) Faulted() bool { return s.faulted }

func (s *Session) transition(to State) error {
	if !s.state.canTransition(to) {
		return transitionError(s.state, to)
	}
	s.state = to
	return nil
}

// begin records the handle and fixes the deadline. The deadline is never re-evaluated.
func (s *Session) begin(handle Handle, now time.Time) {
	s.handle = handle
	s.deadline = now.Add(s.timeout)
}

func (s *Session) recordPoll(status Status) {
	s.polls++
	s.lastStatus = status
}

func (s *Session) recordDelay() {
	s.delays++
}

func (s *Session) markFaulted(fault *FaultError) {
	s.faulted = true
	s.fault = fault
}

// expired reports whether now is at or past the deadline.
func (s *Session) expired(now time.Time) bool {
	return !now.Before(s.deadline)
}

// finish moves the session into a terminal state and builds its Outcome.
func (s *Session) finish(to State, now time.Time) (Outcome, error) {
	if err := s.transition(to); err != nil {
		return Outcome{}, err
	}
	s.endedAt = now

	outcome := Outcome{
		SessionID:  s.id,
		Handle:     s.handle,
		State:      s.state,
		LastStatus: s.lastStatus,
		Polls:      s.polls,
		Delays:     s.delays,
		StartedAt:  s.startedAt,
		EndedAt:    s.endedAt,
	}

	switch to {
	case StateFailed:
		outcome.Err = fmt.Errorf("%w: operation %s", ErrRemoteFailure, s.handle)
	case StateTimedOut:
		outcome.Err = fmt.Errorf("%w: operation %s still in progress after %v", ErrTimeoutExceeded, s.handle, s.timeout)
	case StateFaulted:
		if s.fault != nil {
			outcome.Err = s.fault
		}
	}

	return outcome, nil
}
