package daemon_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"satchel/internal/api"
	"satchel/internal/broadcast"
	"satchel/internal/config"
	"satchel/internal/daemon"
	"satchel/internal/dedup"
	"satchel/internal/delivery"
	"satchel/internal/logging"
	"satchel/internal/queue"
	"satchel/internal/testsupport"
)

type daemonFixture struct {
	cfg    *config.Config
	store  *queue.Store
	remote *testsupport.FakeRemote
	daemon *daemon.Daemon
	base   string
}

func newDaemonFixture(t *testing.T, opts ...testsupport.ConfigOption) *daemonFixture {
	t.Helper()

	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
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

	addr := d.APIAddr()
	if addr == "" {
		t.Fatal("expected api server address")
	}

	return &daemonFixture{
		cfg:    cfg,
		store:  store,
		remote: fake,
		daemon: d,
		base:   "http://" + addr,
	}
}

func postJSON(t *testing.T, url string, payload any) (*http.Response, []byte) {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read response: %v", err)
	}
	return resp, buf.Bytes()
}

func TestSubmitOverHTTP(t *testing.T) {
	fx := newDaemonFixture(t)

	resp, body := postJSON(t, fx.base+"/api/captures", api.SubmitRequest{
		Text:      "The quick brown fox jumps",
		SourceURL: "https://example.com/foxes",
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", resp.StatusCode, body)
	}

	var verdict api.SubmitResponse
	if err := json.Unmarshal(body, &verdict); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !verdict.Accepted || verdict.QueueID == "" {
		t.Fatalf("unexpected verdict %#v", verdict)
	}

	// Delivery runs in the background; the entry disappears once it lands.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		entry, err := fx.store.GetByID(context.Background(), verdict.QueueID)
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if entry == nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for delivery")
}

func TestSubmitRejectionsOverHTTP(t *testing.T) {
	fx := newDaemonFixture(t)

	resp, body := postJSON(t, fx.base+"/api/captures", api.SubmitRequest{Text: "too short"})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", resp.StatusCode, body)
	}
	var verdict api.SubmitResponse
	if err := json.Unmarshal(body, &verdict); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if verdict.Accepted || verdict.Reason != api.ReasonTooShort {
		t.Fatalf("unexpected verdict %#v", verdict)
	}

	// Same capture twice within the window rejects as a duplicate.
	first, _ := postJSON(t, fx.base+"/api/captures", api.SubmitRequest{
		Text:      "a capture sent twice in a row",
		SourceURL: "https://example.com",
	})
	if first.StatusCode != http.StatusAccepted {
		t.Fatalf("expected first accept, got %d", first.StatusCode)
	}
	second, body := postJSON(t, fx.base+"/api/captures", api.SubmitRequest{
		Text:      "a capture sent twice in a row",
		SourceURL: "https://example.com",
	})
	if second.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", second.StatusCode, body)
	}
	if err := json.Unmarshal(body, &verdict); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if verdict.Reason != api.ReasonDuplicate {
		t.Fatalf("expected duplicate rejection, got %#v", verdict)
	}
}

func TestStatusAndSummaryEndpoints(t *testing.T) {
	fx := newDaemonFixture(t)

	resp, err := http.Get(fx.base + "/api/status")
	if err != nil {
		t.Fatalf("GET status failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var status map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status["running"] != true {
		t.Fatalf("expected running daemon, got %#v", status)
	}

	resp, err = http.Get(fx.base + "/api/summary")
	if err != nil {
		t.Fatalf("GET summary failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var summary broadcast.Summary
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
}

func TestQueueEndpoints(t *testing.T) {
	fx := newDaemonFixture(t)
	ctx := context.Background()

	entry := testsupport.Enqueue(t, fx.store, "inspect me over http", "")
	if err := fx.store.MarkFailed(ctx, entry.ID, "remote store returned 400"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}

	resp, err := http.Get(fx.base + "/api/queue/?status=failed")
	if err != nil {
		t.Fatalf("GET queue failed: %v", err)
	}
	defer resp.Body.Close()
	var listing struct {
		Entries []api.EntryView `json:"entries"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		t.Fatalf("decode listing: %v", err)
	}
	if len(listing.Entries) != 1 || listing.Entries[0].ID != entry.ID {
		t.Fatalf("unexpected listing %#v", listing)
	}

	resp, err = http.Get(fmt.Sprintf("%s/api/queue/%s", fx.base, entry.ID))
	if err != nil {
		t.Fatalf("GET entry failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	req, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/api/queue/%s", fx.base, entry.ID), nil)
	if err != nil {
		t.Fatalf("build delete: %v", err)
	}
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE entry failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	remaining, err := fx.store.GetByID(ctx, entry.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if remaining != nil {
		t.Fatalf("expected entry discarded, got %#v", remaining)
	}

	resp, err = http.Get(fmt.Sprintf("%s/api/queue/%s", fx.base, entry.ID))
	if err != nil {
		t.Fatalf("GET missing entry failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestAPITokenRequired(t *testing.T) {
	fx := newDaemonFixture(t, func(cfg *config.Config) {
		cfg.Paths.APIToken = "panel-secret"
	})

	resp, err := http.Get(fx.base + "/api/status")
	if err != nil {
		t.Fatalf("GET status failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	req, err := http.NewRequest(http.MethodGet, fx.base+"/api/status", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer panel-secret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET status with token failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", resp.StatusCode)
	}
}

func TestSecondInstanceRefused(t *testing.T) {
	fx := newDaemonFixture(t)

	hub := broadcast.NewHub()
	worker := delivery.NewWorker(fx.store, fx.remote, hub, testsupport.NewManualScheduler(),
		delivery.SettingsFromConfig(fx.cfg), logging.NewNop())
	filter := dedup.NewFilter(0)
	saveSvc := api.NewSaveService(fx.cfg, fx.store, filter, worker, hub, logging.NewNop())

	second, err := daemon.New(fx.cfg, fx.store, worker, saveSvc, hub, fx.remote, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New failed: %v", err)
	}
	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("expected second instance to be refused")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	fx := newDaemonFixture(t)
	fx.daemon.Stop()
	fx.daemon.Stop()

	status := fx.daemon.Status(context.Background())
	if status.Running {
		t.Fatal("expected stopped daemon")
	}
}
