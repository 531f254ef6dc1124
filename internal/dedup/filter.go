// Package dedup rejects near-identical captures submitted within a short
// trailing window, protecting against accidental double saves. The filter is
// best-effort: it lives in memory, resets on restart, and losing it only
// means a duplicate might be saved twice.
package dedup

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"
)

// prefixRunes bounds how much text participates in the duplicate key. Long
// captures differing only deep in the body still count as duplicates, which
// is the right call for double-click protection.
const prefixRunes = 120

// Filter is an ephemeral recency index of (text prefix, source) pairs.
type Filter struct {
	window time.Duration
	now    func() time.Time
	folder cases.Caser

	mu   sync.Mutex
	seen map[string]time.Time
}

// NewFilter builds a filter with the given recency window. A zero or negative
// window disables duplicate detection.
func NewFilter(window time.Duration) *Filter {
	return &Filter{
		window: window,
		now:    time.Now,
		folder: cases.Fold(),
		seen:   make(map[string]time.Time),
	}
}

// CheckAndRecord reports whether the capture should be allowed. On allow it
// records the pair so an identical capture within the window is rejected.
func (f *Filter) CheckAndRecord(text, sourceURL string) bool {
	if f == nil || f.window <= 0 {
		return true
	}

	key := f.key(text, sourceURL)
	now := f.now()

	f.mu.Lock()
	defer f.mu.Unlock()

	f.evictLocked(now)

	if recorded, ok := f.seen[key]; ok && now.Sub(recorded) < f.window {
		return false
	}
	f.seen[key] = now
	return true
}

// Len returns the number of live records, for tests and diagnostics.
func (f *Filter) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}

func (f *Filter) key(text, sourceURL string) string {
	normalized := f.folder.String(strings.Join(strings.Fields(text), " "))
	runes := []rune(normalized)
	if len(runes) > prefixRunes {
		normalized = string(runes[:prefixRunes])
	}
	return normalized + "\x00" + strings.TrimSpace(sourceURL)
}

func (f *Filter) evictLocked(now time.Time) {
	for key, recorded := range f.seen {
		if now.Sub(recorded) >= f.window {
			delete(f.seen, key)
		}
	}
}
