// Package operationtest provides fakes for testing code built on package operation.
package operationtest

import (
	"context"
	"sync"
	"time"

	"github.com/nomis52/cloudops/operation"
)

// FakeClock is a simulated clock. Every After call advances the clock by the
// requested duration and fires immediately, so polling loops run instantly.
type FakeClock struct {
	mu       sync.Mutex
	now      time.Time
	delays   []time.Duration
	blocking bool
}

// NewFakeClock creates a FakeClock starting at start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.blocking {
		// A nil channel never fires.
		return nil
	}

	c.now = c.now.Add(d)
	c.delays = append(c.delays, d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

// Advance moves the clock forward without recording a delay.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// SetBlocking makes subsequent After calls never fire.
func (c *FakeClock) SetBlocking(blocking bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocking = blocking
}

// Delays returns the durations passed to After, in order.
func (c *FakeClock) Delays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.delays))
	copy(out, c.delays)
	return out
}

// Invoker returns a fixed handle or error and counts its calls.
type Invoker struct {
	Handle operation.Handle
	Err    error

	mu    sync.Mutex
	calls int
}

func (i *Invoker) Invoke(ctx context.Context) (operation.Handle, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.calls++
	return i.Handle, i.Err
}

// Calls returns the number of Invoke calls.
func (i *Invoker) Calls() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.calls
}

// PollResult is one scripted response of a ScriptedPoller.
type PollResult struct {
	Status operation.Status
	Err    error
	// Panic, if non-nil, is raised instead of returning.
	Panic any
}

// Statuses converts statuses into scripted results.
func Statuses(statuses ...operation.Status) []PollResult {
	results := make([]PollResult, len(statuses))
	for i, s := range statuses {
		results[i] = PollResult{Status: s}
	}
	return results
}

// InProgressThen returns n InProgress results followed by final.
func InProgressThen(n int, final operation.Status) []PollResult {
	results := make([]PollResult, 0, n+1)
	for i := 0; i < n; i++ {
		results = append(results, PollResult{Status: operation.StatusInProgress})
	}
	return append(results, PollResult{Status: final})
}

// ScriptedPoller returns its results in order. Once exhausted the last result repeats.
type ScriptedPoller struct {
	mu      sync.Mutex
	results []PollResult
	handles []operation.Handle
}

// NewScriptedPoller creates a poller returning results in order.
func NewScriptedPoller(results ...PollResult) *ScriptedPoller {
	return &ScriptedPoller{results: results}
}

func (p *ScriptedPoller) Poll(ctx context.Context, handle operation.Handle) (operation.Status, error) {
	p.mu.Lock()
	idx := len(p.handles)
	p.handles = append(p.handles, handle)
	var r PollResult
	switch {
	case len(p.results) == 0:
		r = PollResult{Status: operation.StatusInProgress}
	case idx < len(p.results):
		r = p.results[idx]
	default:
		r = p.results[len(p.results)-1]
	}
	p.mu.Unlock()

	if r.Panic != nil {
		panic(r.Panic)
	}
	return r.Status, r.Err
}

// Calls returns the number of Poll calls.
func (p *ScriptedPoller) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handles)
}

// Handles returns the handle passed to each Poll call.
func (p *ScriptedPoller) Handles() []operation.Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]operation.Handle, len(p.handles))
	copy(out, p.handles)
	return out
}
