package operation

import (
	"context"
	"time"
)

// Handle is an opaque identifier for a remote long-running action.
// It is returned by an Invoker and passed unchanged to every Poll call.
type Handle string

// Status is the remote status of an operation as reported by a Poller.
type Status int

const (
	// StatusInProgress indicates the remote operation has not finished yet.
	StatusInProgress Status = iota

	// StatusSucceeded indicates the remote operation finished successfully.
	StatusSucceeded

	// StatusFailed indicates the remote side reported the operation as failed.
	StatusFailed
)

// String returns a human-readable representation of the Status
func (s Status) String() string {
	switch s {
	case StatusInProgress:
		return "in_progress"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal returns true if no further polling is needed.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Invoker starts a remote operation and returns its handle.
// Invoke triggers exactly one remote state-changing call and is never retried by the supervisor.
type Invoker interface {
	Invoke(ctx context.Context) (Handle, error)
}

// InvokerFunc adapts a plain function to the Invoker interface.
type InvokerFunc func(ctx context.Context) (Handle, error)

// Invoke calls f(ctx).
func (f InvokerFunc) Invoke(ctx context.Context) (Handle, error) {
	return f(ctx)
}

// Poller queries the status of a remote operation.
// Poll must not change remote state and must be safe to call repeatedly.
// An error means the status could not be determined, which is distinct from StatusFailed.
type Poller interface {
	Poll(ctx context.Context, handle Handle) (Status, error)
}

// PollerFunc adapts a plain function to the Poller interface.
type PollerFunc func(ctx context.Context, handle Handle) (Status, error)

// Poll calls f(ctx, handle).
func (f PollerFunc) Poll(ctx context.Context, handle Handle) (Status, error) {
	return f(ctx, handle)
}

// Continuation receives the outcome of a finished session.
type Continuation func(ctx context.Context, outcome Outcome)

// Outcome is the accumulated state of a session once it reaches a terminal state.
// Exactly one Outcome is produced per session.
type Outcome struct {
	// SessionID uniquely identifies the supervised run.
	SessionID string

	// Handle is the operation handle. Empty if the invoker never produced one.
	Handle Handle

	// State is the terminal state: Succeeded, Failed, TimedOut or Faulted.
	State State

	// LastStatus is the status returned by the most recent successful poll.
	LastStatus Status

	// Polls and Delays count the poll and delay steps that completed.
	Polls  int
	Delays int

	StartedAt time.Time
	EndedAt   time.Time

	// Err is nil on success. Otherwise it wraps ErrRemoteFailure, ErrTimeoutExceeded
	// or is a *FaultError.
	Err error
}

// IsSuccess returns true if the session reached StateSucceeded.
func (o Outcome) IsSuccess() bool {
	return o.State == StateSucceeded
}

// Duration returns how long the session ran.
func (o Outcome) Duration() time.Duration {
	return o.EndedAt.Sub(o.StartedAt)
}
