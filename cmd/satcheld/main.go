// Command satcheld is the save-queue daemon. It owns the durable queue,
// delivers captures to the remote snippet store, and exposes the HTTP API and
// unix-socket control surface.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"satchel/internal/api"
	"satchel/internal/broadcast"
	"satchel/internal/config"
	"satchel/internal/daemon"
	"satchel/internal/dedup"
	"satchel/internal/delivery"
	"satchel/internal/ipc"
	"satchel/internal/logging"
	"satchel/internal/queue"
	"satchel/internal/remote"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load("")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	logger, err := logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stderr", cfg.LogFilePath()},
	})
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		return
	}
	defer store.Close()

	client := remote.NewClient(cfg)
	hub := broadcast.NewHub()
	filter := dedup.NewFilter(time.Duration(cfg.Capture.DedupWindowSeconds) * time.Second)
	worker := delivery.NewWorker(store, client, hub, delivery.NewScheduler(), delivery.SettingsFromConfig(cfg), logger)
	saveSvc := api.NewSaveService(cfg, store, filter, worker, hub, logger)

	d, err := daemon.New(cfg, store, worker, saveSvc, hub, client, logger)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		return
	}
	defer d.Close()

	ipcServer, err := ipc.NewServer(ctx, cfg.Paths.Socket, d, store, cancel, logger)
	if err != nil {
		logger.Error("start IPC server", logging.Error(err))
		return
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(ctx); err != nil {
		logger.Error("daemon start", logging.Error(err))
		return
	}

	<-ctx.Done()
	logger.Info("satcheld shutting down")
}
