// Package operation supervises asynchronous long-running remote operations.
//
// # Overview
//
// Many remote APIs start work asynchronously: a call returns an operation handle
// immediately and the caller must poll a status endpoint until the work finishes.
// The Supervisor wraps that pattern in an explicit state machine:
//
//	Idle -> Invoking -> Polling -> {Succeeded, Failed, TimedOut, Faulted}
//
// The invoker is called exactly once. On a handle, the session deadline is fixed at
// now + timeout and the poller is called until it reports a terminal status. Between
// polls the session waits one polling interval. When a poll returns InProgress at or
// after the deadline the session times out immediately without scheduling another delay.
//
// # Faults
//
// Every step (invoke, poll, delay) runs inside a fault interceptor. An error or panic
// raised by a step is logged with the step name and error type, the step's context is
// cancelled, and the session is flagged as faulted. The supervisor inspects the flag
// before scheduling the next step and routes the session to its failure continuation.
// Nothing propagates out of Run: errors are data.
//
// A poller error is a fault; a poller returning StatusFailed is a remote failure.
// Both end up in the failure continuation but are distinguishable through Outcome.State
// and errors.Is / errors.As on Outcome.Err.
//
// # Usage
//
//	sv, err := operation.NewSupervisor(
//	    operation.InvokerFunc(func(ctx context.Context) (operation.Handle, error) {
//	        return client.StartOperation(ctx, req)
//	    }),
//	    operation.PollerFunc(client.OperationStatus),
//	    operation.WithTimeoutSeconds(600),
//	    operation.WithPollingIntervalSeconds(10),
//	    operation.OnFailure(func(ctx context.Context, o operation.Outcome) {
//	        logger.Error("deployment failed", "error", o.Err)
//	    }),
//	)
//	if err != nil {
//	    return err // settings out of range
//	}
//	outcome := sv.Run(ctx)
//
// # Timing
//
// The polling interval must be within [1, 30] seconds (default 15). The timeout must be
// at least 30 seconds (default 300) with no upper bound. Zero selects the default.
package operation
