package operation

import (
	"errors"
	"fmt"
)

// State represents where a session is in its lifecycle
type State int

const (
	// StateIdle indicates the session has been created but the invoker has not been called
	StateIdle State = iota

	// StateInvoking indicates the invoker is starting the remote operation
	StateInvoking

	// StatePolling indicates a handle was obtained and the status is being polled
	StatePolling

	// StateSucceeded indicates the remote operation reported success (terminal)
	StateSucceeded

	// StateFailed indicates the remote operation reported failure (terminal)
	StateFailed

	// StateTimedOut indicates the deadline passed while still in progress (terminal)
	StateTimedOut

	// StateFaulted indicates a step raised an error or panicked (terminal)
	StateFaulted
)

// ErrInvalidTransition is returned when a session is asked to move to a state
// that is not reachable from its current state.
var ErrInvalidTransition = errors.New("invalid session state transition")

var transitions = map[State][]State{
	StateIdle:     {StateInvoking},
	StateInvoking: {StatePolling, StateFaulted},
	StatePolling:  {StateSucceeded, StateFailed, StateTimedOut, StateFaulted},
}

// String returns a human-readable representation of the State
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInvoking:
		return "invoking"
	case StatePolling:
		return "polling"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateTimedOut:
		return "timed_out"
	case StateFaulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// IsTerminal returns true if no further invoker or poller calls happen in this state
func (s State) IsTerminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateTimedOut, StateFaulted:
		return true
	default:
		return false
	}
}

// canTransition reports whether to is reachable from s in one step.
func (s State) canTransition(to State) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func transitionError(from, to State) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
