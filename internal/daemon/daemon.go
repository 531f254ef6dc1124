package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/gofrs/flock"

	"satchel/internal/api"
	"satchel/internal/broadcast"
	"satchel/internal/config"
	"satchel/internal/delivery"
	"satchel/internal/logging"
	"satchel/internal/notifications"
	"satchel/internal/queue"
	"satchel/internal/remote"
)

// Daemon coordinates the save-queue services and enforces single-instance
// execution.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *queue.Store
	worker  *delivery.Worker
	saveSvc *api.SaveService
	hub     *broadcast.Hub
	client  remote.Client

	lockPath string
	lock     *flock.Flock

	apiServer *apiServer
	monitor   *connectivityMonitor
	notifier  notifications.Service
	alertsSub *broadcast.Subscription

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Online       bool
	QueueDBPath  string
	LockFilePath string
	Queue        queue.HealthSummary
	Inflight     int
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, worker *delivery.Worker, saveSvc *api.SaveService, hub *broadcast.Hub, client remote.Client, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || worker == nil || saveSvc == nil || hub == nil {
		return nil, errors.New("daemon requires config, store, worker, save service, and hub")
	}

	lockPath := filepath.Join(cfg.Paths.DataDir, "satcheld.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logging.WithComponent(logger, "daemon"),
		store:    store,
		worker:   worker,
		saveSvc:  saveSvc,
		hub:      hub,
		client:   client,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
		notifier: notifications.NewService(cfg),
	}, nil
}

// Start acquires the instance lock, starts the delivery worker and HTTP API,
// and kicks off startup recovery and the connectivity monitor.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another satchel daemon instance is already running")
	}

	d.checkDiskSpace()

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if err := d.worker.Start(runCtx); err != nil {
		d.releaseLock()
		cancel()
		d.cancel = nil
		return fmt.Errorf("start delivery worker: %w", err)
	}

	server, err := newAPIServer(d.cfg, d, d.logger)
	if err != nil {
		d.worker.Stop()
		d.releaseLock()
		cancel()
		d.cancel = nil
		return fmt.Errorf("configure api server: %w", err)
	}
	d.apiServer = server
	if err := d.apiServer.start(runCtx); err != nil {
		d.worker.Stop()
		d.releaseLock()
		cancel()
		d.cancel = nil
		return err
	}

	d.monitor = newConnectivityMonitor(d.cfg, d.client, d.store, d.worker, d.logger)
	d.monitor.start(runCtx)

	d.alertsSub = d.hub.Subscribe(16)
	go d.forwardAlerts(runCtx, d.alertsSub)

	go func() {
		resumable, err := d.store.ListResumable(runCtx)
		if err == nil && len(resumable) > 0 {
			if err := d.notifier.NotifyDaemonStarted(runCtx, len(resumable)); err != nil {
				d.logger.Debug("startup notification failed", logging.Error(err))
			}
		}
		if err := d.worker.Resume(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Warn("startup recovery incomplete",
				logging.Error(err),
				logging.String(logging.FieldEventType, "startup_recovery_failed"),
				logging.String(logging.FieldErrorHint, "remaining entries will be retried when connectivity returns"))
		}
	}()

	d.running.Store(true)
	d.logger.Info("satchel daemon started",
		logging.String("lock", d.lockPath),
		logging.String("queue_db", d.store.Path()))
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.alertsSub != nil {
		d.alertsSub.Close()
		d.alertsSub = nil
	}
	if d.monitor != nil {
		d.monitor.stop()
		d.monitor = nil
	}
	if d.apiServer != nil {
		d.apiServer.stop()
		d.apiServer = nil
	}
	d.worker.Stop()
	d.releaseLock()
	d.running.Store(false)
	d.logger.Info("satchel daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// SaveService exposes the capture boundary to transports (HTTP, IPC).
func (d *Daemon) SaveService() *api.SaveService {
	return d.saveSvc
}

// Hub exposes the broadcast hub to transports.
func (d *Daemon) Hub() *broadcast.Hub {
	return d.hub
}

// APIAddr returns the HTTP API listen address, or "" when the API is
// disabled or not started.
func (d *Daemon) APIAddr() string {
	return d.apiServer.Addr()
}

// TestNotification sends a probe through the configured notifier. It reports
// false without error when notifications are not configured.
func (d *Daemon) TestNotification(ctx context.Context) (bool, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, nil
	}
	if err := d.notifier.TestNotification(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Status gathers runtime information for status surfaces.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		QueueDBPath:  d.store.Path(),
		LockFilePath: d.lockPath,
		Inflight:     d.worker.InflightCount(),
	}
	if d.monitor != nil {
		status.Online = d.monitor.online()
	}
	if health, err := d.store.Health(ctx); err == nil {
		status.Queue = health
	}
	return status
}

// forwardAlerts turns failed delivery results into push notifications. Events
// the notifier cannot keep up with are dropped by the hub, never queued.
func (d *Daemon) forwardAlerts(ctx context.Context, sub *broadcast.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-sub.Events():
			if !ok {
				return
			}
			if evt.Kind != broadcast.KindResult || evt.Result == nil || evt.Result.Success {
				continue
			}
			preview := evt.Result.QueueID
			if entry, err := d.store.GetByID(ctx, evt.Result.QueueID); err == nil && entry != nil {
				preview = previewText(entry.Payload.Text)
			}
			if err := d.notifier.NotifyDeliveryFailed(ctx, preview, evt.Result.Error); err != nil {
				d.logger.Debug("delivery failure notification failed", logging.Error(err))
			}
		}
	}
}

func previewText(text string) string {
	runes := []rune(text)
	if len(runes) <= 60 {
		return text
	}
	return string(runes[:60]) + "…"
}

func (d *Daemon) releaseLock() {
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock",
			logging.Error(err),
			logging.String("lock", d.lockPath),
			logging.String(logging.FieldErrorHint, "remove the lock file manually if the next start fails"))
	}
}
