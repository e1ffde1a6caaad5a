package operation

import "time"

// Clock is the time source used by the supervisor.
// After schedules the deferred resumption between polls.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// RealClock returns a Clock backed by the time package.
func RealClock() Clock {
	return realClock{}
}
