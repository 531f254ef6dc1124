package ipc

import (
	"satchel/internal/api"
	"satchel/internal/broadcast"
)

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents daemon runtime information.
type StatusResponse struct {
	Running     bool           `json:"running"`
	PID         int            `json:"pid"`
	Online      bool           `json:"online"`
	QueueDBPath string         `json:"queue_db_path"`
	LockPath    string         `json:"lock_path"`
	Inflight    int            `json:"inflight"`
	QueueStats  map[string]int `json:"queue_stats"`
}

// SummaryRequest fetches the queue summary shown by control surfaces.
type SummaryRequest struct{}

// SummaryResponse carries the queue snapshot.
type SummaryResponse struct {
	Summary broadcast.Summary `json:"summary"`
}

// QueueListRequest filters queue listing by status.
type QueueListRequest struct {
	Statuses []string `json:"statuses"`
}

// QueueListResponse contains queue entries.
type QueueListResponse struct {
	Entries []api.EntryView `json:"entries"`
}

// SubmitRequest submits a capture through the daemon.
type SubmitRequest struct {
	Capture api.SubmitRequest `json:"capture"`
}

// SubmitResponse carries the synchronous submit verdict.
type SubmitResponse struct {
	Result api.SubmitResponse `json:"result"`
}

// RetryRequest retries a failed queue entry.
type RetryRequest struct {
	ID string `json:"id"`
}

// RetryResponse reports whether the retry was accepted.
type RetryResponse struct {
	Retrying bool `json:"retrying"`
}

// DiscardRequest removes a queue entry regardless of state.
type DiscardRequest struct {
	ID string `json:"id"`
}

// DiscardResponse reports whether an entry was removed.
type DiscardResponse struct {
	Discarded bool `json:"discarded"`
}

// HealthRequest fetches queue database diagnostics.
type HealthRequest struct{}

// HealthResponse carries queue database diagnostics.
type HealthResponse struct {
	DBPath           string `json:"db_path"`
	DatabaseExists   bool   `json:"database_exists"`
	DatabaseReadable bool   `json:"database_readable"`
	TableExists      bool   `json:"table_exists"`
	IntegrityCheck   bool   `json:"integrity_check"`
	TotalEntries     int    `json:"total_entries"`
	Error            string `json:"error,omitempty"`
}

// StopRequest asks the daemon process to shut down.
type StopRequest struct{}

// StopResponse indicates the stop was initiated.
type StopResponse struct {
	Stopping bool `json:"stopping"`
}

// TestNotificationRequest asks the daemon to send a probe notification.
type TestNotificationRequest struct{}

// TestNotificationResponse reports the outcome of the probe.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message,omitempty"`
}
