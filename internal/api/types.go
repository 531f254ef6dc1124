package api

import (
	"time"

	"satchel/internal/queue"
)

// SubmitRequest is one capture from a producer surface.
type SubmitRequest struct {
	Text         string `json:"text"`
	SourceURL    string `json:"source_url"`
	SourceTitle  string `json:"source_title,omitempty"`
	SourceDomain string `json:"source_domain,omitempty"`
	Context      string `json:"context,omitempty"`
}

// SubmitResponse is the synchronous verdict returned to a producer.
type SubmitResponse struct {
	Accepted bool   `json:"accepted"`
	QueueID  string `json:"queue_id,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// EntryView is the wire representation of a queue entry.
type EntryView struct {
	ID           string    `json:"id"`
	Text         string    `json:"text"`
	SourceURL    string    `json:"source_url"`
	SourceTitle  string    `json:"source_title,omitempty"`
	SourceDomain string    `json:"source_domain,omitempty"`
	Status       string    `json:"status"`
	RetryCount   int       `json:"retry_count"`
	LastError    string    `json:"last_error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// FromEntry converts a store entry into its wire representation.
func FromEntry(entry *queue.Entry) EntryView {
	return EntryView{
		ID:           entry.ID,
		Text:         entry.Payload.Text,
		SourceURL:    entry.Payload.SourceURL,
		SourceTitle:  entry.Payload.SourceTitle,
		SourceDomain: entry.Payload.SourceDomain,
		Status:       string(entry.Status),
		RetryCount:   entry.RetryCount,
		LastError:    entry.LastError,
		CreatedAt:    entry.CreatedAt,
		UpdatedAt:    entry.UpdatedAt,
	}
}

// FromEntries converts a slice of store entries.
func FromEntries(entries []*queue.Entry) []EntryView {
	views := make([]EntryView, 0, len(entries))
	for _, entry := range entries {
		views = append(views, FromEntry(entry))
	}
	return views
}
