package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"satchel/internal/config"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
[remote]
base_url = "https://snippets.example.com"
`

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected config at %s to be used, got %s exists=%v", path, resolved, exists)
	}
	if cfg.Capture.MinLength != 10 || cfg.Capture.MaxLength != 50000 {
		t.Fatalf("unexpected capture defaults: %#v", cfg.Capture)
	}
	if cfg.Queue.MaxSize != 500 {
		t.Fatalf("unexpected queue default: %d", cfg.Queue.MaxSize)
	}
	if cfg.Delivery.MaxRetries != 5 || cfg.Delivery.BaseDelaySeconds != 2 || cfg.Delivery.MaxDelaySeconds != 300 {
		t.Fatalf("unexpected delivery defaults: %#v", cfg.Delivery)
	}
	if cfg.Paths.Socket == "" {
		t.Fatal("expected socket path derived from log dir")
	}
	if !filepath.IsAbs(cfg.Paths.DataDir) {
		t.Fatalf("expected data dir expanded, got %q", cfg.Paths.DataDir)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
[remote]
base_url = "https://snippets.example.com"
timeout_seconds = 10

[capture]
min_length = 5
max_length = 100
dedup_window_seconds = 3

[queue]
max_size = 25

[delivery]
max_retries = 2
base_delay_seconds = 1
max_delay_seconds = 4

[logging]
format = "json"
level = "debug"
`)

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Remote.TimeoutSeconds != 10 {
		t.Fatalf("unexpected remote timeout: %d", cfg.Remote.TimeoutSeconds)
	}
	if cfg.Capture.MinLength != 5 || cfg.Capture.MaxLength != 100 || cfg.Capture.DedupWindowSeconds != 3 {
		t.Fatalf("unexpected capture config: %#v", cfg.Capture)
	}
	if cfg.Queue.MaxSize != 25 {
		t.Fatalf("unexpected queue size: %d", cfg.Queue.MaxSize)
	}
	if cfg.Delivery.MaxRetries != 2 || cfg.Delivery.MaxDelaySeconds != 4 {
		t.Fatalf("unexpected delivery config: %#v", cfg.Delivery)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging config: %#v", cfg.Logging)
	}
}

func TestLoadRequiresRemoteBaseURL(t *testing.T) {
	path := writeConfig(t, "[remote]\n")

	_, _, _, err := config.Load(path)
	if err == nil || !strings.Contains(err.Error(), "remote.base_url") {
		t.Fatalf("expected base_url error, got %v", err)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name     string
		contents string
		want     string
	}{
		{
			name: "bad base url",
			contents: `
[remote]
base_url = "not a url"
`,
			want: "not a valid URL",
		},
		{
			name: "inverted capture bounds",
			contents: minimalConfig + `
[capture]
min_length = 100
max_length = 10
`,
			want: "capture.max_length",
		},
		{
			name: "zero queue size",
			contents: minimalConfig + `
[queue]
max_size = 0
`,
			want: "queue.max_size",
		},
		{
			name: "max delay below base delay",
			contents: minimalConfig + `
[delivery]
base_delay_seconds = 30
max_delay_seconds = 10
`,
			want: "max_delay_seconds",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.contents)
			_, _, _, err := config.Load(path)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestEnvTokenFillsMissingToken(t *testing.T) {
	path := writeConfig(t, minimalConfig)
	t.Setenv("SATCHEL_API_TOKEN", "from-env")

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Remote.APIToken != "from-env" {
		t.Fatalf("expected env token applied, got %q", cfg.Remote.APIToken)
	}
}

func TestFileTokenWinsOverEnv(t *testing.T) {
	path := writeConfig(t, minimalConfig+`
api_token = "from-file"
`)
	t.Setenv("SATCHEL_API_TOKEN", "from-env")

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Remote.APIToken != "from-file" {
		t.Fatalf("expected explicit file token to win, got %q", cfg.Remote.APIToken)
	}
}

func TestMissingConfigFileReportsDefaults(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.toml")

	_, resolved, exists, err := config.Load(missing)
	if err == nil {
		t.Fatal("expected validation error without remote.base_url")
	}
	_ = resolved
	_ = exists
}

func TestSampleConfigParses(t *testing.T) {
	path := writeConfig(t, config.SampleConfig())

	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config must load cleanly: %v", err)
	}
	if cfg.Remote.BaseURL != "https://snippets.example.com" {
		t.Fatalf("unexpected sample base url %q", cfg.Remote.BaseURL)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}

	expanded, err := config.ExpandPath("~/captures")
	if err != nil {
		t.Fatalf("ExpandPath failed: %v", err)
	}
	if expanded != filepath.Join(home, "captures") {
		t.Fatalf("unexpected expansion %q", expanded)
	}
}
