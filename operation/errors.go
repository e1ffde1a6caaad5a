package operation

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectivity indicates the remote invoke or poll endpoint could not be reached.
	// Clients wrap transport failures with it. It is fatal for the session.
	ErrConnectivity = errors.New("remote endpoint unreachable")

	// ErrTimeoutExceeded is reported when polling passes the session deadline
	// while the operation is still in progress.
	ErrTimeoutExceeded = errors.New("operation timed out")

	// ErrRemoteFailure is reported when the remote status is explicitly Failed.
	ErrRemoteFailure = errors.New("remote operation failed")

	// ErrEmptyHandle is raised when an invoker returns no error and no handle.
	ErrEmptyHandle = errors.New("invoker returned an empty operation handle")

	// ErrUnknownStatus is raised when a poller returns a value outside the known statuses.
	ErrUnknownStatus = errors.New("unknown operation status")

	// ErrInvalidPollingInterval is returned at construction for a polling interval outside [1s, 30s].
	ErrInvalidPollingInterval = errors.New("polling interval out of range")

	// ErrInvalidTimeout is returned at construction for a timeout below 30s.
	ErrInvalidTimeout = errors.New("timeout out of range")
)

// Step names the supervised step that was executing.
type Step string

const (
	StepInvoke Step = "invoke"
	StepPoll   Step = "poll"
	StepDelay  Step = "delay"
)

// FaultError describes an error or panic intercepted while a step executed.
type FaultError struct {
	Step Step
	Err  error
	// Stack is only populated when the step panicked.
	Stack string
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("%s step faulted: %v", e.Step, e.Err)
}

func (e *FaultError) Unwrap() error {
	return e.Err
}

// panicError carries the value recovered from a panicking step.
type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}
