package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateRemote(); err != nil {
		return err
	}
	if err := c.validateCapture(); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateDelivery(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateRemote() error {
	if strings.TrimSpace(c.Remote.BaseURL) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/satchel/config.toml"
		}
		return fmt.Errorf("remote.base_url is required. Edit %s (create with 'satchel config init')", defaultPath)
	}
	parsed, err := url.Parse(c.Remote.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("remote.base_url %q is not a valid URL", c.Remote.BaseURL)
	}
	if c.Remote.TimeoutSeconds <= 0 {
		return errors.New("remote.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateCapture() error {
	if c.Capture.MinLength < 1 {
		return errors.New("capture.min_length must be at least 1")
	}
	if c.Capture.MaxLength <= c.Capture.MinLength {
		return errors.New("capture.max_length must be greater than capture.min_length")
	}
	if c.Capture.DedupWindowSeconds < 0 {
		return errors.New("capture.dedup_window_seconds must not be negative")
	}
	return nil
}

func (c *Config) validateQueue() error {
	if c.Queue.MaxSize < 1 {
		return errors.New("queue.max_size must be at least 1")
	}
	return nil
}

func (c *Config) validateDelivery() error {
	if c.Delivery.MaxRetries < 0 {
		return errors.New("delivery.max_retries must not be negative")
	}
	if c.Delivery.BaseDelaySeconds < 1 {
		return errors.New("delivery.base_delay_seconds must be at least 1")
	}
	if c.Delivery.MaxDelaySeconds < c.Delivery.BaseDelaySeconds {
		return errors.New("delivery.max_delay_seconds must not be below delivery.base_delay_seconds")
	}
	if c.Delivery.AttemptTimeoutSeconds < 1 {
		return errors.New("delivery.attempt_timeout_seconds must be at least 1")
	}
	if c.Delivery.StartupStaggerMillis < 0 {
		return errors.New("delivery.startup_stagger_ms must not be negative")
	}
	if c.Delivery.ProbeIntervalSeconds < 1 {
		return errors.New("delivery.probe_interval_seconds must be at least 1")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if strings.TrimSpace(c.Notifications.NtfyTopic) == "" {
		return nil
	}
	if c.Notifications.RequestTimeoutSeconds < 1 {
		return errors.New("notifications.request_timeout_seconds must be at least 1")
	}
	return nil
}
