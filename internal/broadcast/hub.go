// Package broadcast fans delivery outcomes and queue summaries out to every
// attached observer (capture surfaces, control panels, SSE clients).
//
// Delivery is best-effort: a subscriber that is not attached, or cannot keep
// up, misses events. The queue store stays the source of truth, so observers
// reconcile by querying a summary on attach rather than relying on replay.
package broadcast

import (
	"sync"
	"time"
)

// Kind discriminates event payloads.
type Kind string

const (
	// KindResult marks a terminal delivery outcome for one entry.
	KindResult Kind = "result"
	// KindSummary marks a queue state snapshot.
	KindSummary Kind = "summary"
)

// Result is the terminal outcome of one queue entry.
type Result struct {
	QueueID   string `json:"queue_id"`
	Success   bool   `json:"success"`
	SnippetID string `json:"snippet_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// SummaryItem is one recent queue entry in a summary snapshot.
type SummaryItem struct {
	QueueID    string    `json:"queue_id"`
	Text       string    `json:"text"`
	SourceURL  string    `json:"source_url"`
	Status     string    `json:"status"`
	RetryCount int       `json:"retry_count"`
	LastError  string    `json:"last_error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Summary is a snapshot of queue state for control surfaces.
type Summary struct {
	PendingCount int           `json:"pending_count"`
	FailedCount  int           `json:"failed_count"`
	RecentItems  []SummaryItem `json:"recent_items"`
}

// Event is the unit published to subscribers. Exactly one of Result and
// Summary is set, matching Kind.
type Event struct {
	Kind    Kind      `json:"kind"`
	Seq     uint64    `json:"seq"`
	Time    time.Time `json:"time"`
	Result  *Result   `json:"result,omitempty"`
	Summary *Summary  `json:"summary,omitempty"`
}

// Subscription is one attached observer.
type Subscription struct {
	ch     chan Event
	hub    *Hub
	closed bool
}

// Events returns the channel events arrive on.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Close detaches the subscriber and releases its channel.
func (s *Subscription) Close() {
	if s == nil || s.hub == nil {
		return
	}
	s.hub.unsubscribe(s)
}

// Hub is an in-process publish/subscribe fan-out.
type Hub struct {
	mu      sync.Mutex
	nextSeq uint64
	subs    map[*Subscription]struct{}
}

// NewHub constructs an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscription]struct{})}
}

// Subscribe attaches a new observer. The buffer bounds how far a slow
// observer may lag before it starts missing events.
func (h *Hub) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 16
	}
	sub := &Subscription{ch: make(chan Event, buffer), hub: h}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// SubscriberCount returns the number of attached observers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// PublishResult broadcasts a terminal delivery outcome.
func (h *Hub) PublishResult(result Result) {
	h.publish(Event{Kind: KindResult, Result: &result})
}

// PublishSummary broadcasts a queue snapshot.
func (h *Hub) PublishSummary(summary Summary) {
	h.publish(Event{Kind: KindSummary, Summary: &summary})
}

func (h *Hub) publish(evt Event) {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.nextSeq++
	evt.Seq = h.nextSeq
	if evt.Time.IsZero() {
		evt.Time = time.Now().UTC()
	}
	for sub := range h.subs {
		select {
		case sub.ch <- evt:
		default:
			// Subscriber is not draining; dropping keeps publishers from
			// ever blocking on an observer.
		}
	}
	h.mu.Unlock()
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub.closed {
		return
	}
	sub.closed = true
	delete(h.subs, sub)
	close(sub.ch)
}
