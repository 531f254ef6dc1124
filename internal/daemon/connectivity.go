package daemon

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"satchel/internal/config"
	"satchel/internal/delivery"
	"satchel/internal/logging"
	"satchel/internal/queue"
	"satchel/internal/remote"
)

// connectivityMonitor probes the remote store and replays pending entries
// when the network comes back, so captures saved offline do not wait for the
// next daemon restart.
type connectivityMonitor struct {
	client   remote.Client
	store    *queue.Store
	worker   *delivery.Worker
	logger   *slog.Logger
	interval time.Duration
	stagger  time.Duration

	mu       sync.Mutex
	isOnline bool
	cancel   context.CancelFunc
	done     chan struct{}
}

func newConnectivityMonitor(cfg *config.Config, client remote.Client, store *queue.Store, worker *delivery.Worker, logger *slog.Logger) *connectivityMonitor {
	return &connectivityMonitor{
		client:   client,
		store:    store,
		worker:   worker,
		logger:   logging.WithComponent(logger, "connectivity"),
		interval: time.Duration(cfg.Delivery.ProbeIntervalSeconds) * time.Second,
		stagger:  time.Duration(cfg.Delivery.StartupStaggerMillis) * time.Millisecond,
		// Assume online until a probe says otherwise, so the first probe
		// after an outage is the one that triggers replay.
		isOnline: true,
	}
}

func (m *connectivityMonitor) start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				m.probe(runCtx)
			}
		}
	}()
}

func (m *connectivityMonitor) stop() {
	if m.cancel != nil {
		m.cancel()
	}
	if m.done != nil {
		<-m.done
	}
}

func (m *connectivityMonitor) online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isOnline
}

func (m *connectivityMonitor) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err := m.client.Ping(probeCtx)
	cancel()

	m.mu.Lock()
	wasOnline := m.isOnline
	m.isOnline = err == nil
	m.mu.Unlock()

	switch {
	case err != nil && wasOnline:
		m.logger.Warn("remote store unreachable",
			logging.Error(err),
			logging.String(logging.FieldEventType, "remote_offline"),
			logging.String(logging.FieldImpact, "captures queue locally until connectivity returns"))
	case err == nil && !wasOnline:
		m.logger.Info("remote store reachable again, replaying pending captures")
		m.replayPending(ctx)
	}
}

func (m *connectivityMonitor) replayPending(ctx context.Context) {
	entries, err := m.store.List(ctx, queue.StatusPending)
	if err != nil {
		m.logger.Error("failed to list pending entries for replay", logging.Error(err))
		return
	}
	for i, entry := range entries {
		if i > 0 && m.stagger > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(m.stagger):
			}
		}
		m.worker.Trigger(entry)
	}
}
