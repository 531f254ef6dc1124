package delivery_test

import (
	"context"
	"testing"
	"time"

	"satchel/internal/broadcast"
	"satchel/internal/delivery"
	"satchel/internal/logging"
	"satchel/internal/queue"
	"satchel/internal/remote"
	"satchel/internal/testsupport"
)

func testSettings() delivery.Settings {
	return delivery.Settings{
		MaxRetries:     3,
		BaseDelay:      2 * time.Second,
		MaxDelay:       8 * time.Second,
		AttemptTimeout: 5 * time.Second,
		StartupStagger: 0,
	}
}

type workerFixture struct {
	store     *queue.Store
	remote    *testsupport.FakeRemote
	scheduler *testsupport.ManualScheduler
	hub       *broadcast.Hub
	worker    *delivery.Worker
	events    *broadcast.Subscription
}

func newWorkerFixture(t *testing.T, settings delivery.Settings) *workerFixture {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	fake := testsupport.NewFakeRemote("s1")
	scheduler := testsupport.NewManualScheduler()
	hub := broadcast.NewHub()

	worker := delivery.NewWorker(store, fake, hub, scheduler, settings, logging.NewNop())
	if err := worker.Start(context.Background()); err != nil {
		t.Fatalf("worker.Start failed: %v", err)
	}
	t.Cleanup(worker.Stop)

	events := hub.Subscribe(32)
	t.Cleanup(events.Close)

	return &workerFixture{
		store:     store,
		remote:    fake,
		scheduler: scheduler,
		hub:       hub,
		worker:    worker,
		events:    events,
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func waitResult(t *testing.T, sub *broadcast.Subscription) broadcast.Result {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case evt := <-sub.Events():
			if evt.Kind == broadcast.KindResult && evt.Result != nil {
				return *evt.Result
			}
		case <-deadline:
			t.Fatal("timed out waiting for a result event")
		}
	}
}

func TestSuccessfulDeliveryRemovesEntry(t *testing.T) {
	fx := newWorkerFixture(t, testSettings())
	entry := testsupport.Enqueue(t, fx.store, "The quick brown fox jumps", "https://example.com/foxes")

	fx.worker.Trigger(entry)

	result := waitResult(t, fx.events)
	if !result.Success {
		t.Fatalf("expected success, got %#v", result)
	}
	if result.QueueID != entry.ID || result.SnippetID != "s1" {
		t.Fatalf("unexpected result %#v", result)
	}

	remaining, err := fx.store.GetByID(context.Background(), entry.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if remaining != nil {
		t.Fatalf("expected entry removed after delivery, got %#v", remaining)
	}

	calls := fx.remote.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 remote call, got %d", len(calls))
	}
	if calls[0].Text != "The quick brown fox jumps" || calls[0].SourceURL != "https://example.com/foxes" {
		t.Fatalf("unexpected snippet payload %#v", calls[0])
	}
}

func TestRetryableErrorsBackOffThenFail(t *testing.T) {
	fx := newWorkerFixture(t, testSettings())
	fx.remote.Script(func(int, remote.Snippet) (string, error) {
		return "", &remote.Error{StatusCode: 503, Message: "unavailable"}
	})
	entry := testsupport.Enqueue(t, fx.store, "keeps failing", "")

	fx.worker.Trigger(entry)

	// Three retries get scheduled, then the fourth attempt exhausts the budget.
	for retry := 1; retry <= 3; retry++ {
		waitFor(t, func() bool { return fx.scheduler.PendingCount() == 1 },
			"timed out waiting for retry timer")

		current, err := fx.store.GetByID(context.Background(), entry.ID)
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if current.Status != queue.StatusPending {
			t.Fatalf("retry %d: expected pending, got %s", retry, current.Status)
		}
		if current.RetryCount != retry {
			t.Fatalf("retry %d: expected retry count %d, got %d", retry, retry, current.RetryCount)
		}

		if !fx.scheduler.Fire() {
			t.Fatalf("retry %d: expected a scheduled function to fire", retry)
		}
	}

	result := waitResult(t, fx.events)
	if result.Success {
		t.Fatalf("expected permanent failure, got %#v", result)
	}
	if result.QueueID != entry.ID || result.Error == "" {
		t.Fatalf("unexpected result %#v", result)
	}

	current, err := fx.store.GetByID(context.Background(), entry.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if current.Status != queue.StatusFailed {
		t.Fatalf("expected failed, got %s", current.Status)
	}
	if current.RetryCount != 3 {
		t.Fatalf("expected retry count 3, got %d", current.RetryCount)
	}
	if got := fx.remote.CallCount(); got != 4 {
		t.Fatalf("expected 4 attempts, got %d", got)
	}

	delays := fx.scheduler.Delays()
	if len(delays) != 3 {
		t.Fatalf("expected 3 scheduled delays, got %v", delays)
	}
	for i := 1; i < len(delays); i++ {
		if delays[i] < delays[i-1] {
			t.Fatalf("delays must not decrease: %v", delays)
		}
	}
	max := testSettings().MaxDelay
	for _, delay := range delays {
		if delay > max {
			t.Fatalf("delay %v exceeds cap %v", delay, max)
		}
	}
}

func TestTerminalErrorFailsImmediately(t *testing.T) {
	fx := newWorkerFixture(t, testSettings())
	fx.remote.Script(func(int, remote.Snippet) (string, error) {
		return "", &remote.Error{StatusCode: 400, Message: "text rejected"}
	})
	entry := testsupport.Enqueue(t, fx.store, "rejected by the store", "")

	fx.worker.Trigger(entry)

	result := waitResult(t, fx.events)
	if result.Success {
		t.Fatalf("expected failure, got %#v", result)
	}

	current, err := fx.store.GetByID(context.Background(), entry.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if current.Status != queue.StatusFailed {
		t.Fatalf("expected failed, got %s", current.Status)
	}
	if current.RetryCount != 0 {
		t.Fatalf("terminal errors must not burn retries, got %d", current.RetryCount)
	}
	if fx.scheduler.PendingCount() != 0 {
		t.Fatal("terminal errors must not schedule retries")
	}
	if got := fx.remote.CallCount(); got != 1 {
		t.Fatalf("expected 1 attempt, got %d", got)
	}
}

func TestSuccessAfterRetry(t *testing.T) {
	fx := newWorkerFixture(t, testSettings())
	fx.remote.Script(func(call int, _ remote.Snippet) (string, error) {
		if call == 0 {
			return "", &remote.Error{StatusCode: 502, Message: "bad gateway"}
		}
		return "s1", nil
	})
	entry := testsupport.Enqueue(t, fx.store, "second try wins", "")

	fx.worker.Trigger(entry)
	waitFor(t, func() bool { return fx.scheduler.PendingCount() == 1 },
		"timed out waiting for retry timer")
	fx.scheduler.Fire()

	result := waitResult(t, fx.events)
	if !result.Success || result.SnippetID != "s1" {
		t.Fatalf("expected delivery on retry, got %#v", result)
	}
}

func TestTriggerIgnoresInflightEntry(t *testing.T) {
	fx := newWorkerFixture(t, testSettings())
	gate := make(chan struct{})
	fx.remote.Script(func(int, remote.Snippet) (string, error) {
		<-gate
		return "s1", nil
	})
	entry := testsupport.Enqueue(t, fx.store, "only once", "")

	fx.worker.Trigger(entry)
	waitFor(t, func() bool { return fx.remote.CallCount() == 1 },
		"timed out waiting for first attempt")

	fx.worker.Trigger(entry)
	fx.worker.Trigger(entry)
	if got := fx.worker.InflightCount(); got != 1 {
		t.Fatalf("expected 1 in-flight attempt, got %d", got)
	}

	close(gate)
	result := waitResult(t, fx.events)
	if !result.Success {
		t.Fatalf("expected success, got %#v", result)
	}
	if got := fx.remote.CallCount(); got != 1 {
		t.Fatalf("duplicate triggers must not start attempts, got %d calls", got)
	}
}

func TestCancelSuppressesScheduledRetry(t *testing.T) {
	fx := newWorkerFixture(t, testSettings())
	fx.remote.Script(func(int, remote.Snippet) (string, error) {
		return "", &remote.Error{StatusCode: 503}
	})
	entry := testsupport.Enqueue(t, fx.store, "cancel me", "")

	fx.worker.Trigger(entry)
	waitFor(t, func() bool { return fx.scheduler.PendingCount() == 1 },
		"timed out waiting for retry timer")

	removed, err := fx.worker.Cancel(context.Background(), entry.ID)
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if !removed {
		t.Fatal("expected entry removed")
	}
	if fx.scheduler.PendingCount() != 0 {
		t.Fatal("expected retry timer cancelled")
	}

	current, err := fx.store.GetByID(context.Background(), entry.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if current != nil {
		t.Fatalf("expected entry gone, got %#v", current)
	}
}

func TestRetryTimerSkipsDiscardedEntry(t *testing.T) {
	fx := newWorkerFixture(t, testSettings())
	fx.remote.Script(func(int, remote.Snippet) (string, error) {
		return "", &remote.Error{StatusCode: 503}
	})
	entry := testsupport.Enqueue(t, fx.store, "discarded before retry", "")

	fx.worker.Trigger(entry)
	waitFor(t, func() bool { return fx.scheduler.PendingCount() == 1 },
		"timed out waiting for retry timer")

	// Remove behind the worker's back. The fired timer re-reads the entry and
	// must drop the retry instead of resurrecting it.
	if _, err := fx.store.Remove(context.Background(), entry.ID); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	fx.scheduler.Fire()

	time.Sleep(20 * time.Millisecond)
	if got := fx.remote.CallCount(); got != 1 {
		t.Fatalf("expected no retry attempt for removed entry, got %d calls", got)
	}
}

func TestResumeReplaysUnfinishedEntries(t *testing.T) {
	fx := newWorkerFixture(t, testSettings())
	ctx := context.Background()

	pending := testsupport.Enqueue(t, fx.store, "left pending", "")
	stuck := testsupport.Enqueue(t, fx.store, "left delivering", "")
	failed := testsupport.Enqueue(t, fx.store, "left failed", "")
	if err := fx.store.MarkDelivering(ctx, stuck.ID); err != nil {
		t.Fatalf("MarkDelivering failed: %v", err)
	}
	if err := fx.store.MarkFailed(ctx, failed.ID, "old session"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}

	if err := fx.worker.Resume(ctx); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}

	waitFor(t, func() bool {
		entries, err := fx.store.List(ctx)
		return err == nil && len(entries) == 0
	}, "timed out waiting for resumed deliveries")

	if got := fx.remote.CallCount(); got != 3 {
		t.Fatalf("expected each entry delivered exactly once, got %d calls", got)
	}
	for _, want := range []string{pending.ID, stuck.ID, failed.ID} {
		entry, err := fx.store.GetByID(ctx, want)
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if entry != nil {
			t.Fatalf("expected %s delivered and removed, got %#v", want, entry)
		}
	}
}

func TestTriggerAfterStopIsIgnored(t *testing.T) {
	fx := newWorkerFixture(t, testSettings())
	entry := testsupport.Enqueue(t, fx.store, "never sent", "")

	fx.worker.Stop()
	fx.worker.Trigger(entry)

	time.Sleep(20 * time.Millisecond)
	if got := fx.remote.CallCount(); got != 0 {
		t.Fatalf("expected no attempts after stop, got %d", got)
	}
}
