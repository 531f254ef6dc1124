package logging_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"satchel/internal/logging"
)

func TestNewJSONLoggerWritesStructuredLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "satchel.log")

	logger, err := logging.New(logging.Options{
		Level:       "debug",
		Format:      "json",
		OutputPaths: []string{path},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logging.WithComponent(logger, "delivery-worker").Info("capture delivered",
		logging.String("snippet_id", "s1"),
		logging.Int("attempts", 2))

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var line map[string]any
	if err := json.Unmarshal(data, &line); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, data)
	}
	if line["msg"] != "capture delivered" || line["level"] != "info" {
		t.Fatalf("unexpected line %v", line)
	}
	if line["component"] != "delivery-worker" || line["snippet_id"] != "s1" {
		t.Fatalf("unexpected attributes %v", line)
	}
	if _, ok := line["ts"]; !ok {
		t.Fatal("expected ts field")
	}
}

func TestNewConsoleLoggerRendersComponent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "satchel.log")

	logger, err := logging.New(logging.Options{
		Format:      "console",
		OutputPaths: []string{path},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logging.WithComponent(logger, "daemon").Warn("disk space low",
		logging.String("path", "/data"))

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "WARN") || !strings.Contains(out, "daemon:") {
		t.Fatalf("unexpected console line %q", out)
	}
	if !strings.Contains(out, "disk space low") || !strings.Contains(out, "path=/data") {
		t.Fatalf("unexpected console line %q", out)
	}
}

func TestNewRespectsLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "satchel.log")

	logger, err := logging.New(logging.Options{
		Level:       "warn",
		Format:      "console",
		OutputPaths: []string{path},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.Info("suppressed line")
	logger.Warn("surfaced line")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	out := string(data)
	if strings.Contains(out, "suppressed line") {
		t.Fatalf("info must be suppressed at warn level: %q", out)
	}
	if !strings.Contains(out, "surfaced line") {
		t.Fatalf("warn must be logged: %q", out)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "yaml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := logging.NewNop()
	logger.Info("goes nowhere", logging.String("key", "value"))
	logger.Error("also nowhere", logging.Error(os.ErrNotExist))
}
