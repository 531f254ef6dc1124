// Package testsupport provides shared helpers and doubles for satchel tests.
package testsupport

import (
	"path/filepath"
	"testing"

	"satchel/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Paths.Socket = filepath.Join(base, "satcheld.sock")
	cfg.Remote.BaseURL = "http://remote.test"
	cfg.Delivery.StartupStaggerMillis = 0

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithQueueSize overrides the queue capacity on the test config.
func WithQueueSize(size int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Queue.MaxSize = size
	}
}

// WithCaptureBounds overrides the capture length bounds on the test config.
func WithCaptureBounds(minLength, maxLength int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Capture.MinLength = minLength
		cfg.Capture.MaxLength = maxLength
	}
}

// WithMaxRetries overrides the delivery retry budget on the test config.
func WithMaxRetries(retries int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Delivery.MaxRetries = retries
	}
}
