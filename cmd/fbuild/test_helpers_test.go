package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"fbuild/internal/config"
	"fbuild/internal/daemon"
	"fbuild/internal/daemonctl"
	"fbuild/internal/dispatch"
	"fbuild/internal/firmware"
	"fbuild/internal/history"
	"fbuild/internal/lockmap"
	"fbuild/internal/logging"
	"fbuild/internal/opstatus"
	"fbuild/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	hist       *history.Store
	done       chan error
	cancel     context.CancelFunc
}

// setupCLITestEnv writes a config file and runs a real daemon in-process so
// CLI commands find it already running instead of spawning fbuildd.
func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, opts...)
	configPath := filepath.Join(t.TempDir(), "config.toml")
	writeTestConfig(t, configPath, cfg)

	statuses := opstatus.NewStore(cfg.Paths.DaemonDir)
	locks := lockmap.NewRegistry()
	hist := testsupport.MustOpenHistory(t, cfg)
	toolchain := firmware.NewExecToolchain(cfg, logging.NewNop())
	dispatcher := dispatch.New(cfg, statuses, locks, toolchain, hist, logging.NewNop())
	server, err := daemon.New(cfg, dispatcher, statuses, locks, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		// A test may have already stopped the daemon and drained done.
		if running, _, _ := daemonctl.IsRunning(cfg); !running {
			select {
			case <-done:
			default:
			}
			return
		}
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("daemon did not stop")
		}
	})

	waitFor(t, 3*time.Second, func() bool {
		running, _, _ := daemonctl.IsRunning(cfg)
		return running
	})

	return &cliTestEnv{cfg: cfg, configPath: configPath, hist: hist, done: done, cancel: cancel}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = []string{"--config", configPath}
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func waitFor(t *testing.T, duration time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", duration)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
