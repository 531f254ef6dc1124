package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a queue entry.
//
// There is no completed status: a successful delivery removes the entry.
type Status string

const (
	StatusPending    Status = "pending"
	StatusDelivering Status = "delivering"
	StatusFailed     Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusDelivering,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// Payload is the immutable captured content carried by a queue entry.
type Payload struct {
	Text         string
	SourceURL    string
	SourceTitle  string
	SourceDomain string
	Context      string
}

// Entry represents one capture persisted in SQLite.
type Entry struct {
	ID         string
	Payload    Payload
	Status     Status
	RetryCount int
	LastError  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IsResumable reports whether an entry left over from a previous session
// should be replayed at startup.
func (e Entry) IsResumable() bool {
	return e.Status == StatusPending || e.Status == StatusFailed
}

// HealthSummary describes aggregated queue counts per lifecycle state.
type HealthSummary struct {
	Total      int
	Pending    int
	Delivering int
	Failed     int
}

// DatabaseHealth captures diagnostic information about the queue database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	TableExists      bool
	IntegrityCheck   bool
	TotalEntries     int
	Error            string
}
