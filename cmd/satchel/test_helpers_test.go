package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
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
	"satchel/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	store      *queue.Store
	remote     *testsupport.FakeRemote
	daemon     *daemon.Daemon
	socketPath string
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	configPath := filepath.Join(base, "config.toml")
	contents := fmt.Sprintf(`
[paths]
data_dir = %q
log_dir = %q
api_bind = "127.0.0.1:0"
socket = %q

[remote]
base_url = "http://remote.test"

[delivery]
startup_stagger_ms = 0
`,
		filepath.Join(base, "data"),
		filepath.Join(base, "logs"),
		filepath.Join(base, "satcheld.sock"))
	if err := os.WriteFile(configPath, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("config.Load failed: %v", err)
	}

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	fake := testsupport.NewFakeRemote("s1")
	hub := broadcast.NewHub()
	filter := dedup.NewFilter(time.Duration(cfg.Capture.DedupWindowSeconds) * time.Second)
	worker := delivery.NewWorker(store, fake, hub, testsupport.NewManualScheduler(),
		delivery.SettingsFromConfig(cfg), logging.NewNop())
	saveSvc := api.NewSaveService(cfg, store, filter, worker, hub, logging.NewNop())

	d, err := daemon.New(cfg, store, worker, saveSvc, hub, fake, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New failed: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start failed: %v", err)
	}
	t.Cleanup(d.Stop)

	server, err := ipc.NewServer(context.Background(), cfg.Paths.Socket, d, store, func() {}, logging.NewNop())
	if err != nil {
		t.Fatalf("ipc.NewServer failed: %v", err)
	}
	server.Serve()
	t.Cleanup(server.Close)

	return &cliTestEnv{
		cfg:        cfg,
		store:      store,
		remote:     fake,
		daemon:     d,
		socketPath: cfg.Paths.Socket,
		configPath: configPath,
	}
}

func runCLI(t *testing.T, args []string, socketPath, configPath string) (string, string, error) {
	t.Helper()

	full := append([]string{}, args...)
	if socketPath != "" {
		full = append(full, "--socket", socketPath)
	}
	if configPath != "" {
		full = append(full, "--config", configPath)
	}

	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(full)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q, got:\n%s", needle, haystack)
	}
}
