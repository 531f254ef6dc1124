package testsupport

import (
	"context"
	"sync"
	"time"

	"satchel/internal/remote"
)

// FakeRemote is a scriptable remote.Client double. Each CreateSnippet call is
// recorded; CreateFunc decides the outcome per call.
type FakeRemote struct {
	mu       sync.Mutex
	calls    []remote.Snippet
	create   func(call int, snippet remote.Snippet) (string, error)
	PingFunc func(ctx context.Context) error
}

// NewFakeRemote returns a double whose CreateSnippet always succeeds with the
// given id until scripted otherwise.
func NewFakeRemote(id string) *FakeRemote {
	return &FakeRemote{
		create: func(int, remote.Snippet) (string, error) { return id, nil },
	}
}

// Script replaces the CreateSnippet behavior. The call index starts at 0.
func (f *FakeRemote) Script(fn func(call int, snippet remote.Snippet) (string, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.create = fn
}

func (f *FakeRemote) CreateSnippet(ctx context.Context, snippet remote.Snippet) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	call := len(f.calls)
	f.calls = append(f.calls, snippet)
	fn := f.create
	f.mu.Unlock()
	return fn(call, snippet)
}

func (f *FakeRemote) Ping(ctx context.Context) error {
	if f.PingFunc != nil {
		return f.PingFunc(ctx)
	}
	return nil
}

// Calls returns a copy of the snippets sent so far.
func (f *FakeRemote) Calls() []remote.Snippet {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]remote.Snippet, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallCount reports how many CreateSnippet calls have been made.
func (f *FakeRemote) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type scheduledFunc struct {
	Delay     time.Duration
	fn        func()
	fired     bool
	cancelled bool
}

// ManualScheduler implements delivery.Scheduler with explicit firing so tests
// control when backoff timers elapse.
type ManualScheduler struct {
	mu      sync.Mutex
	pending []*scheduledFunc
}

func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

func (s *ManualScheduler) After(delay time.Duration, fn func()) func() {
	s.mu.Lock()
	entry := &scheduledFunc{Delay: delay, fn: fn}
	s.pending = append(s.pending, entry)
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		entry.cancelled = true
		s.mu.Unlock()
	}
}

// Fire runs the oldest pending function that has not fired or been cancelled.
// It reports whether anything ran.
func (s *ManualScheduler) Fire() bool {
	s.mu.Lock()
	var next *scheduledFunc
	for _, entry := range s.pending {
		if !entry.fired && !entry.cancelled {
			next = entry
			break
		}
	}
	if next != nil {
		next.fired = true
	}
	s.mu.Unlock()
	if next == nil {
		return false
	}
	next.fn()
	return true
}

// FireAll runs every pending function until none remain, returning how many
// ran. Functions scheduled while firing are included.
func (s *ManualScheduler) FireAll() int {
	count := 0
	for s.Fire() {
		count++
	}
	return count
}

// Delays returns the delays of all scheduled calls in order, including
// cancelled ones.
func (s *ManualScheduler) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, len(s.pending))
	for i, entry := range s.pending {
		out[i] = entry.Delay
	}
	return out
}

// PendingCount reports scheduled functions that have neither fired nor been
// cancelled.
func (s *ManualScheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, entry := range s.pending {
		if !entry.fired && !entry.cancelled {
			count++
		}
	}
	return count
}
