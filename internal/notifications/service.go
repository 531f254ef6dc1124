package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"satchel/internal/config"
)

const userAgent = "satchel/0.1.0"

// Service defines the notification surface exposed to the daemon.
type Service interface {
	// NotifyDeliveryFailed alerts that a capture exhausted its retries or was
	// rejected outright by the remote store.
	NotifyDeliveryFailed(ctx context.Context, preview, reason string) error
	// NotifyDaemonStarted announces the daemon coming up, including how many
	// unfinished entries it found to replay.
	NotifyDaemonStarted(ctx context.Context, resumable int) error
	// TestNotification sends a probe message so users can verify their topic.
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyDeliveryFailed(ctx context.Context, preview, reason string) error {
	preview = strings.TrimSpace(preview)
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown"
	}
	message := fmt.Sprintf("Capture failed: %s\nReason: %s", preview, reason)
	data := payload{
		title:    "Satchel - Delivery Failed",
		message:  message,
		tags:     []string{"satchel", "delivery", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyDaemonStarted(ctx context.Context, resumable int) error {
	message := "Satchel daemon started"
	if resumable > 0 {
		message = fmt.Sprintf("Satchel daemon started, replaying %d unfinished captures", resumable)
	}
	data := payload{
		title:   "Satchel - Started",
		message: message,
		tags:    []string{"satchel", "daemon", "started"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Satchel - Test",
		message:  "Notification system test",
		tags:     []string{"satchel", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyDeliveryFailed(context.Context, string, string) error { return nil }
func (noopService) NotifyDaemonStarted(context.Context, int) error             { return nil }
func (noopService) TestNotification(context.Context) error                     { return nil }
