package delivery

import "time"

// Scheduler abstracts delayed execution so backoff and startup stagger are
// testable without wall-clock waits.
type Scheduler interface {
	// After runs fn once the delay elapses and returns a cancel function.
	// Cancel after firing is a no-op.
	After(delay time.Duration, fn func()) (cancel func())
}

type timerScheduler struct{}

// NewScheduler returns the wall-clock scheduler used in production.
func NewScheduler() Scheduler {
	return timerScheduler{}
}

func (timerScheduler) After(delay time.Duration, fn func()) func() {
	timer := time.AfterFunc(delay, fn)
	return func() { timer.Stop() }
}
