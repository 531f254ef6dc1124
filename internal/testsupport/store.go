package testsupport

import (
	"context"
	"testing"

	"satchel/internal/config"
	"satchel/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// Enqueue inserts a capture for tests using the provided store.
func Enqueue(t testing.TB, store *queue.Store, text, sourceURL string) *queue.Entry {
	t.Helper()

	entry, err := store.Enqueue(context.Background(), queue.Payload{
		Text:      text,
		SourceURL: sourceURL,
	})
	if err != nil {
		t.Fatalf("store.Enqueue: %v", err)
	}
	return entry
}
