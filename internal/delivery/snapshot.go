package delivery

import (
	"context"

	"satchel/internal/broadcast"
	"satchel/internal/queue"
)

// recentLimit bounds how many entries a summary snapshot carries.
const recentLimit = 10

// previewRunes bounds the text preview included per summary item.
const previewRunes = 80

// Snapshot builds a queue summary for broadcast and for control surfaces
// polling on attach.
func Snapshot(ctx context.Context, store *queue.Store) (broadcast.Summary, error) {
	entries, err := store.List(ctx)
	if err != nil {
		return broadcast.Summary{}, err
	}

	summary := broadcast.Summary{}
	for _, entry := range entries {
		switch entry.Status {
		case queue.StatusPending, queue.StatusDelivering:
			summary.PendingCount++
		case queue.StatusFailed:
			summary.FailedCount++
		}
	}

	start := 0
	if len(entries) > recentLimit {
		start = len(entries) - recentLimit
	}
	for _, entry := range entries[start:] {
		summary.RecentItems = append(summary.RecentItems, broadcast.SummaryItem{
			QueueID:    entry.ID,
			Text:       previewText(entry.Payload.Text),
			SourceURL:  entry.Payload.SourceURL,
			Status:     string(entry.Status),
			RetryCount: entry.RetryCount,
			LastError:  entry.LastError,
			CreatedAt:  entry.CreatedAt,
		})
	}
	return summary, nil
}

func previewText(text string) string {
	runes := []rune(text)
	if len(runes) <= previewRunes {
		return text
	}
	return string(runes[:previewRunes]) + "…"
}
