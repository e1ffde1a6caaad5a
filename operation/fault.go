package operation

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// intercept runs one step under a child context and converts any returned error or
// panic into a fault recorded on the session. It never returns an error and never
// re-panics: the supervisor inspects sess.Faulted() before scheduling the next step.
func (sv *Supervisor) intercept(ctx context.Context, sess *Session, step Step, fn func(ctx context.Context) error) {
	stepCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	fault := runStep(stepCtx, step, fn)
	if fault == nil {
		return
	}

	// Anything the step left running is told to stop; its result is discarded.
	cancel()
	sess.markFaulted(fault)

	attrs := []any{
		"session_id", sess.id,
		"step", string(fault.Step),
		"error_type", errorType(fault.Err),
		"error", fault.Err,
	}
	if sess.handle != "" {
		attrs = append(attrs, "handle", string(sess.handle))
	}
	if fault.Stack != "" {
		attrs = append(attrs, "stack", fault.Stack)
	}
	sv.logger.Error("operation step faulted", attrs...)
}

// Continuations run after the session is terminal, so a panic in one is logged
// and swallowed rather than turned into a fault.
const (
	stepOnSuccess Step = "on_success"
	stepOnFailure Step = "on_failure"
)

// continueWith runs a continuation, recovering and logging a panic so that Run
// still returns its Outcome.
func continueWith(ctx context.Context, step Step, c Continuation, outcome Outcome, logger *slog.Logger) {
	if c == nil {
		return
	}
	fault := runStep(ctx, step, func(ctx context.Context) error {
		c(ctx, outcome)
		return nil
	})
	if fault == nil {
		return
	}
	logger.Error("continuation panicked",
		"step", string(fault.Step),
		"error_type", errorType(fault.Err),
		"error", fault.Err,
		"handle", string(outcome.Handle),
		"stack", fault.Stack,
	)
}

func runStep(ctx context.Context, step Step, fn func(ctx context.Context) error) (fault *FaultError) {
	defer func() {
		if r := recover(); r != nil {
			fault = &FaultError{
				Step:  step,
				Err:   &panicError{value: r},
				Stack: string(debug.Stack()),
			}
		}
	}()

	if err := fn(ctx); err != nil {
		return &FaultError{Step: step, Err: err}
	}
	return nil
}

func errorType(err error) string {
	if pe, ok := err.(*panicError); ok {
		return fmt.Sprintf("panic(%T)", pe.value)
	}
	return fmt.Sprintf("%T", err)
}
