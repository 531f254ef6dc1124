// Package remote talks to the authoritative snippet store. The contract is
// deliberately narrow: create a snippet, get back its id or an error that
// classifies as retryable or terminal.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"satchel/internal/config"
)

const userAgent = "satchel/0.1.0"

// Snippet is the payload of a create request.
type Snippet struct {
	Text        string `json:"text"`
	SourceURL   string `json:"source_url"`
	SourceTitle string `json:"source_title,omitempty"`
}

// Client is the boundary the delivery worker depends on.
type Client interface {
	// CreateSnippet persists a snippet and returns the created resource id.
	CreateSnippet(ctx context.Context, snippet Snippet) (string, error)
	// Ping reports whether the store is reachable. Any HTTP response counts
	// as reachable; only transport failures are errors.
	Ping(ctx context.Context) error
}

// Error is a create rejection carrying the HTTP status used for retry
// classification.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote store returned %d", e.StatusCode)
	}
	return fmt.Sprintf("remote store returned %d: %s", e.StatusCode, e.Message)
}

// IsRetryable classifies a delivery error. Transport failures, timeouts, and
// 5xx responses are retryable; 4xx responses are terminal.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var remoteErr *Error
	if errors.As(err, &remoteErr) {
		return remoteErr.StatusCode >= 500
	}
	return true
}

// HTTPClient implements Client against the snippet store's HTTP API.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewClient builds an HTTP client from configuration.
func NewClient(cfg *config.Config) *HTTPClient {
	timeout := time.Duration(cfg.Remote.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimSuffix(cfg.Remote.BaseURL, "/"),
		token:   cfg.Remote.APIToken,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) CreateSnippet(ctx context.Context, snippet Snippet) (string, error) {
	body, err := json.Marshal(snippet)
	if err != nil {
		return "", fmt.Errorf("marshal snippet: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/snippets", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("create snippet: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", &Error{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(detail)),
		}
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("decode create response: %w", err)
	}
	if created.ID == "" {
		return "", errors.New("remote store returned no snippet id")
	}
	return created.ID, nil
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return fmt.Errorf("build ping request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("ping remote store: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
