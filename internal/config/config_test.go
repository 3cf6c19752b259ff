package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fbuild/internal/config"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, _, exists, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if exists {
		t.Fatal("expected exists=false for missing config")
	}
	if cfg.PollInterval() != 100*time.Millisecond {
		t.Fatalf("unexpected poll interval: %v", cfg.PollInterval())
	}
	if cfg.IdleTimeout() != 12*time.Hour {
		t.Fatalf("unexpected idle timeout: %v", cfg.IdleTimeout())
	}
	if cfg.Serial.DefaultBaud != 115200 {
		t.Fatalf("unexpected default baud: %d", cfg.Serial.DefaultBaud)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
daemon_dir = "` + filepath.Join(dir, "daemon") + `"
log_dir = "` + filepath.Join(dir, "logs") + `"

[daemon]
poll_interval_ms = 250
idle_timeout_hours = 2

[serial]
default_baud = 9600
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected resolved existing path %s, got %s exists=%v", path, resolved, exists)
	}
	if cfg.PollInterval() != 250*time.Millisecond {
		t.Fatalf("unexpected poll interval: %v", cfg.PollInterval())
	}
	if cfg.IdleTimeout() != 2*time.Hour {
		t.Fatalf("unexpected idle timeout: %v", cfg.IdleTimeout())
	}
	if cfg.Serial.DefaultBaud != 9600 {
		t.Fatalf("unexpected baud: %d", cfg.Serial.DefaultBaud)
	}
}

func TestLoadRejectsInvalidLogging(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("[logging]\nformat = \"xml\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected error for unsupported log format")
	}
}

func TestLoadRejectsEmptyToolchainCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("[toolchain]\nbuild_command = []\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, _, _, err := config.Load(path)
	if err == nil || !strings.Contains(err.Error(), "toolchain.build_command") {
		t.Fatalf("expected toolchain validation error, got %v", err)
	}
}

func TestExpandPathTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}
	got, err := config.ExpandPath("~/x")
	if err != nil {
		t.Fatalf("ExpandPath failed: %v", err)
	}
	if got != filepath.Join(home, "x") {
		t.Fatalf("unexpected expansion: %s", got)
	}
}

func TestWriteSampleRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := config.WriteSample(path); err != nil {
		t.Fatalf("WriteSample failed: %v", err)
	}
	if err := config.WriteSample(path); err == nil {
		t.Fatal("expected error when config already exists")
	}
}
