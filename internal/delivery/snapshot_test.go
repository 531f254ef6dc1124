package delivery_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"satchel/internal/delivery"
	"satchel/internal/testsupport"
)

func TestSnapshotCounts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.Enqueue(t, store, "first pending entry", "")
	delivering := testsupport.Enqueue(t, store, "one mid delivery", "")
	failed := testsupport.Enqueue(t, store, "one that failed", "")
	if err := store.MarkDelivering(ctx, delivering.ID); err != nil {
		t.Fatalf("MarkDelivering failed: %v", err)
	}
	if err := store.MarkFailed(ctx, failed.ID, "boom"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}

	summary, err := delivery.Snapshot(ctx, store)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	// Delivering counts as pending work from the observer's point of view.
	if summary.PendingCount != 2 {
		t.Fatalf("expected pending count 2, got %d", summary.PendingCount)
	}
	if summary.FailedCount != 1 {
		t.Fatalf("expected failed count 1, got %d", summary.FailedCount)
	}
	if len(summary.RecentItems) != 3 {
		t.Fatalf("expected 3 recent items, got %d", len(summary.RecentItems))
	}
}

func TestSnapshotBoundsRecentItems(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	var lastID string
	for i := 0; i < 15; i++ {
		entry := testsupport.Enqueue(t, store, fmt.Sprintf("capture number %02d", i), "")
		lastID = entry.ID
	}

	summary, err := delivery.Snapshot(ctx, store)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(summary.RecentItems) != 10 {
		t.Fatalf("expected 10 recent items, got %d", len(summary.RecentItems))
	}
	if summary.RecentItems[len(summary.RecentItems)-1].QueueID != lastID {
		t.Fatal("expected the newest entry to be last")
	}
}

func TestSnapshotTruncatesPreview(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.Enqueue(t, store, strings.Repeat("long capture text ", 20), "")

	summary, err := delivery.Snapshot(ctx, store)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	preview := summary.RecentItems[0].Text
	if utf8.RuneCountInString(preview) > 81 {
		t.Fatalf("expected truncated preview, got %d runes", utf8.RuneCountInString(preview))
	}
	if !strings.HasSuffix(preview, "…") {
		t.Fatalf("expected ellipsis suffix, got %q", preview)
	}
}
