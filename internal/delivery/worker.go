package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"satchel/internal/broadcast"
	"satchel/internal/config"
	"satchel/internal/logging"
	"satchel/internal/queue"
	"satchel/internal/remote"
)

// Settings bounds retry and timing behavior for the worker.
type Settings struct {
	MaxRetries     int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	AttemptTimeout time.Duration
	StartupStagger time.Duration
}

// SettingsFromConfig converts the delivery config section into Settings.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		MaxRetries:     cfg.Delivery.MaxRetries,
		BaseDelay:      time.Duration(cfg.Delivery.BaseDelaySeconds) * time.Second,
		MaxDelay:       time.Duration(cfg.Delivery.MaxDelaySeconds) * time.Second,
		AttemptTimeout: time.Duration(cfg.Delivery.AttemptTimeoutSeconds) * time.Second,
		StartupStagger: time.Duration(cfg.Delivery.StartupStaggerMillis) * time.Millisecond,
	}
}

// Worker owns the per-entry delivery state machine.
type Worker struct {
	store     *queue.Store
	client    remote.Client
	hub       *broadcast.Hub
	scheduler Scheduler
	settings  Settings
	logger    *slog.Logger

	mu       sync.Mutex
	running  bool
	ctx      context.Context
	cancel   context.CancelFunc
	inflight map[string]struct{}
	timers   map[string]func()
	wg       sync.WaitGroup
}

// NewWorker constructs a delivery worker. A nil scheduler falls back to the
// wall-clock scheduler.
func NewWorker(store *queue.Store, client remote.Client, hub *broadcast.Hub, scheduler Scheduler, settings Settings, logger *slog.Logger) *Worker {
	if scheduler == nil {
		scheduler = NewScheduler()
	}
	return &Worker{
		store:     store,
		client:    client,
		hub:       hub,
		scheduler: scheduler,
		settings:  settings,
		logger:    logging.WithComponent(logger, "delivery-worker"),
		inflight:  make(map[string]struct{}),
		timers:    make(map[string]func()),
	}
}

// Start prepares the worker for triggers. It must be called before Trigger.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return errors.New("delivery worker already running")
	}
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.running = true
	return nil
}

// Stop cancels pending backoff timers, interrupts in-flight attempts, and
// waits for them to settle. Entries mid-attempt stay in the delivering state
// and are reset to pending by the next startup recovery.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	cancel := w.cancel
	w.cancel = nil
	for id, stopTimer := range w.timers {
		stopTimer()
		delete(w.timers, id)
	}
	w.mu.Unlock()

	cancel()
	w.wg.Wait()
}

// Trigger starts a delivery attempt for the entry unless one is already in
// flight for the same id.
func (w *Worker) Trigger(entry *queue.Entry) {
	if entry == nil {
		return
	}

	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	if _, busy := w.inflight[entry.ID]; busy {
		w.mu.Unlock()
		w.logger.Debug("delivery already in flight, ignoring trigger",
			logging.String(logging.FieldQueueID, entry.ID))
		return
	}
	w.inflight[entry.ID] = struct{}{}
	if stopTimer, ok := w.timers[entry.ID]; ok {
		stopTimer()
		delete(w.timers, entry.ID)
	}
	ctx := w.ctx
	w.wg.Add(1)
	w.mu.Unlock()

	go func() {
		defer w.wg.Done()
		defer w.clearInflight(entry.ID)
		w.attempt(ctx, entry)
	}()
}

// Cancel removes an entry regardless of state and suppresses any pending
// retry timer for it. Used for manual discard of a failed capture.
func (w *Worker) Cancel(ctx context.Context, id string) (bool, error) {
	w.mu.Lock()
	if stopTimer, ok := w.timers[id]; ok {
		stopTimer()
		delete(w.timers, id)
	}
	w.mu.Unlock()

	removed, err := w.store.Remove(ctx, id)
	if err != nil {
		return false, err
	}
	if removed {
		w.publishSummary(ctx)
	}
	return removed, nil
}

// Resume replays entries left unfinished by a previous session. Stale
// delivering entries are first reset to pending, then every resumable entry
// is triggered once, staggered to avoid stampeding the remote store.
func (w *Worker) Resume(ctx context.Context) error {
	reset, err := w.store.ResetStuckDelivering(ctx)
	if err != nil {
		return fmt.Errorf("reset stuck deliveries: %w", err)
	}
	if reset > 0 {
		w.logger.Info("reset interrupted deliveries", logging.Int64("count", reset))
	}

	entries, err := w.store.ListResumable(ctx)
	if err != nil {
		return fmt.Errorf("list resumable entries: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}

	w.logger.Info("resuming unfinished deliveries", logging.Int("count", len(entries)))
	for i, entry := range entries {
		if i > 0 && w.settings.StartupStagger > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.settings.StartupStagger):
			}
		}
		w.Trigger(entry)
	}
	return nil
}

// InflightCount reports how many attempts are currently underway.
func (w *Worker) InflightCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.inflight)
}

func (w *Worker) clearInflight(id string) {
	w.mu.Lock()
	delete(w.inflight, id)
	w.mu.Unlock()
}

func (w *Worker) attempt(ctx context.Context, entry *queue.Entry) {
	logger := w.logger.With(logging.String(logging.FieldQueueID, entry.ID))

	if err := w.store.MarkDelivering(ctx, entry.ID); err != nil {
		logger.Error("failed to mark entry delivering", logging.Error(err))
		return
	}

	attemptCtx, cancelAttempt := context.WithTimeout(ctx, w.settings.AttemptTimeout)
	snippetID, err := w.client.CreateSnippet(attemptCtx, remote.Snippet{
		Text:        entry.Payload.Text,
		SourceURL:   entry.Payload.SourceURL,
		SourceTitle: entry.Payload.SourceTitle,
	})
	cancelAttempt()

	if err == nil {
		w.resolveSuccess(ctx, logger, entry, snippetID)
		return
	}

	if ctx.Err() != nil {
		// Shutdown, not a delivery verdict. The entry stays delivering and
		// the next startup recovery resets it.
		logger.Debug("attempt interrupted by shutdown")
		return
	}

	if remote.IsRetryable(err) && entry.RetryCount < w.settings.MaxRetries {
		w.scheduleRetry(ctx, logger, entry, err)
		return
	}

	w.resolveFailure(ctx, logger, entry, err)
}

func (w *Worker) resolveSuccess(ctx context.Context, logger *slog.Logger, entry *queue.Entry, snippetID string) {
	if _, err := w.store.Remove(ctx, entry.ID); err != nil {
		logger.Error("delivered but failed to remove entry", logging.Error(err),
			logging.String(logging.FieldErrorHint, "entry will be retried and may duplicate in the remote store"))
		return
	}
	logger.Info("capture delivered",
		logging.String("snippet_id", snippetID),
		logging.Int("attempts", entry.RetryCount+1))
	w.hub.PublishResult(broadcast.Result{
		QueueID:   entry.ID,
		Success:   true,
		SnippetID: snippetID,
	})
	w.publishSummary(ctx)
}

func (w *Worker) scheduleRetry(ctx context.Context, logger *slog.Logger, entry *queue.Entry, attemptErr error) {
	if err := w.store.MarkRetry(ctx, entry.ID, attemptErr.Error()); err != nil {
		logger.Error("failed to requeue entry", logging.Error(err))
		return
	}

	nextRetry := entry.RetryCount + 1
	delay := w.backoffDelay(nextRetry)
	logger.Warn("delivery failed, retry scheduled",
		logging.Error(attemptErr),
		logging.Int("retry", nextRetry),
		logging.Int("max_retries", w.settings.MaxRetries),
		logging.Duration("delay", delay),
		logging.String(logging.FieldEventType, "delivery_retry_scheduled"))

	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	id := entry.ID
	w.timers[id] = w.scheduler.After(delay, func() {
		w.mu.Lock()
		delete(w.timers, id)
		w.mu.Unlock()
		w.retryNow(id)
	})
	w.mu.Unlock()
}

// retryNow re-reads the entry before acting: it may have been discarded or
// already picked up between scheduling and firing.
func (w *Worker) retryNow(id string) {
	w.mu.Lock()
	ctx := w.ctx
	running := w.running
	w.mu.Unlock()
	if !running {
		return
	}

	entry, err := w.store.GetByID(ctx, id)
	if err != nil {
		w.logger.Error("failed to load entry for retry",
			logging.String(logging.FieldQueueID, id), logging.Error(err))
		return
	}
	if entry == nil || entry.Status != queue.StatusPending {
		return
	}
	w.Trigger(entry)
}

func (w *Worker) resolveFailure(ctx context.Context, logger *slog.Logger, entry *queue.Entry, attemptErr error) {
	reason := attemptErr.Error()
	if err := w.store.MarkFailed(ctx, entry.ID, reason); err != nil {
		logger.Error("failed to mark entry failed", logging.Error(err))
		return
	}

	logger.Error("delivery failed permanently",
		logging.Error(attemptErr),
		logging.Int("attempts", entry.RetryCount+1),
		logging.String(logging.FieldEventType, "delivery_failed"),
		logging.String(logging.FieldErrorHint, "retry or discard the capture via the control panel or CLI"))
	w.hub.PublishResult(broadcast.Result{
		QueueID: entry.ID,
		Success: false,
		Error:   reason,
	})
	w.publishSummary(ctx)
}

// backoffDelay computes min(base * 2^retry, max) for the given retry ordinal.
func (w *Worker) backoffDelay(retry int) time.Duration {
	delay := w.settings.BaseDelay
	for i := 0; i < retry; i++ {
		delay *= 2
		if delay >= w.settings.MaxDelay {
			return w.settings.MaxDelay
		}
	}
	if delay > w.settings.MaxDelay {
		return w.settings.MaxDelay
	}
	return delay
}

func (w *Worker) publishSummary(ctx context.Context) {
	summary, err := Snapshot(ctx, w.store)
	if err != nil {
		w.logger.Debug("summary snapshot unavailable", logging.Error(err))
		return
	}
	w.hub.PublishSummary(summary)
}
