package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory, socket, and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	Socket   string `toml:"socket"`
	APIToken string `toml:"api_token"`
}

// Remote contains configuration for the authoritative snippet store.
type Remote struct {
	BaseURL        string `toml:"base_url"`
	APIToken       string `toml:"api_token"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Capture contains acceptance rules for submitted captures.
type Capture struct {
	MinLength          int `toml:"min_length"`
	MaxLength          int `toml:"max_length"`
	DedupWindowSeconds int `toml:"dedup_window_seconds"`
}

// Queue contains durable queue limits.
type Queue struct {
	MaxSize int `toml:"max_size"`
}

// Delivery contains retry and timing behavior for the delivery worker.
type Delivery struct {
	MaxRetries            int `toml:"max_retries"`
	BaseDelaySeconds      int `toml:"base_delay_seconds"`
	MaxDelaySeconds       int `toml:"max_delay_seconds"`
	AttemptTimeoutSeconds int `toml:"attempt_timeout_seconds"`
	StartupStaggerMillis  int `toml:"startup_stagger_ms"`
	ProbeIntervalSeconds  int `toml:"probe_interval_seconds"`
}

// Notifications contains push notification settings. An empty topic
// disables notifications.
type Notifications struct {
	NtfyTopic             string `toml:"ntfy_topic"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for satchel.
//
// Sections by subsystem:
//   - Paths: data/log directories, API bind address, IPC socket
//   - Remote: snippet store endpoint and credentials
//   - Capture: length bounds and duplicate detection window
//   - Queue: durable queue capacity
//   - Delivery: retry budget, backoff, attempt timeout, recovery stagger
//   - Notifications: optional ntfy push alerts
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Remote        Remote        `toml:"remote"`
	Capture       Capture       `toml:"capture"`
	Queue         Queue         `toml:"queue"`
	Delivery      Delivery      `toml:"delivery"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/satchel/config.toml")
}

// SampleConfig returns the annotated sample configuration file contents.
func SampleConfig() string {
	return sampleConfig
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. A .env file next to
// the config file (or in the working directory) is applied first so secrets
// such as SATCHEL_API_TOKEN can live outside the TOML file.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	loadDotenv(resolvedPath)

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// loadDotenv applies .env overlays on a best-effort basis. Missing files are
// not an error; explicit environment variables always win.
func loadDotenv(configPath string) {
	candidates := []string{".env"}
	if configPath != "" {
		candidates = append(candidates, filepath.Join(filepath.Dir(configPath), ".env"))
	}
	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			_ = godotenv.Load(candidate)
		}
	}
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.Socket = strings.TrimSpace(c.Paths.Socket)
	if c.Paths.Socket == "" {
		c.Paths.Socket = filepath.Join(c.Paths.LogDir, "satcheld.sock")
	} else if c.Paths.Socket, err = expandPath(c.Paths.Socket); err != nil {
		return fmt.Errorf("paths.socket: %w", err)
	}

	if c.Remote.APIToken == "" {
		if value, ok := os.LookupEnv("SATCHEL_API_TOKEN"); ok {
			c.Remote.APIToken = strings.TrimSpace(value)
		}
	}
	c.Remote.BaseURL = strings.TrimSpace(strings.TrimSuffix(c.Remote.BaseURL, "/"))

	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	return nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// QueueDBPath returns the location of the durable queue database.
func (c *Config) QueueDBPath() string {
	return filepath.Join(c.Paths.DataDir, "queue.db")
}

// LogFilePath returns the daemon log file location.
func (c *Config) LogFilePath() string {
	return filepath.Join(c.Paths.LogDir, "satchel.log")
}

// ExpandPath resolves ~ and relative segments to an absolute path.
func ExpandPath(path string) (string, error) {
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve path %q: %w", path, err)
	}
	return abs, nil
}
