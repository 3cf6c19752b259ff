package daemonctl_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"fbuild/internal/config"
	"fbuild/internal/daemon"
	"fbuild/internal/daemonctl"
	"fbuild/internal/dispatch"
	"fbuild/internal/firmware"
	"fbuild/internal/lockmap"
	"fbuild/internal/logging"
	"fbuild/internal/opstatus"
	"fbuild/internal/protocol"
	"fbuild/internal/testsupport"
)

func writePIDFile(t *testing.T, cfg *config.Config, pid int) string {
	t.Helper()
	path := filepath.Join(cfg.Paths.DaemonDir, protocol.PIDFileName)
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0o644); err != nil {
		t.Fatalf("write pid file: %v", err)
	}
	return path
}

func TestIsRunningWithoutPIDFile(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	running, _, err := daemonctl.IsRunning(cfg)
	if err != nil {
		t.Fatalf("IsRunning: %v", err)
	}
	if running {
		t.Fatal("expected not running")
	}
}

func TestIsRunningLiveProcess(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	writePIDFile(t, cfg, os.Getpid())

	running, pid, err := daemonctl.IsRunning(cfg)
	if err != nil {
		t.Fatalf("IsRunning: %v", err)
	}
	if !running || pid != os.Getpid() {
		t.Fatalf("expected running with pid %d, got %v/%d", os.Getpid(), running, pid)
	}
}

func TestIsRunningCleansStaleFiles(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	pidPath := writePIDFile(t, cfg, 1<<30)
	statusPath := filepath.Join(cfg.Paths.DaemonDir, protocol.DaemonStatusFileName)
	if err := protocol.WriteJSONAtomic(statusPath, protocol.DaemonStatus{PID: 1 << 30}); err != nil {
		t.Fatalf("write daemon status: %v", err)
	}

	running, _, err := daemonctl.IsRunning(cfg)
	if err != nil {
		t.Fatalf("IsRunning: %v", err)
	}
	if running {
		t.Fatal("expected stale daemon to read as not running")
	}
	if _, err := os.Stat(pidPath); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("expected stale pid file to be removed")
	}
	if _, err := os.Stat(statusPath); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("expected stale status file to be removed")
	}
}

func TestStopWithoutDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	_, err := daemonctl.Stop(cfg, time.Second)
	if !errors.Is(err, daemonctl.ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
}

func TestStopGraceful(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	statuses := opstatus.NewStore(cfg.Paths.DaemonDir)
	locks := lockmap.NewRegistry()
	toolchain := firmware.NewExecToolchain(cfg, logging.NewNop())
	dispatcher := dispatch.New(cfg, statuses, locks, toolchain, nil, logging.NewNop())
	server, err := daemon.New(cfg, dispatcher, statuses, locks, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- server.Run(context.Background()) }()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if running, _, _ := daemonctl.IsRunning(cfg); running {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	result, err := daemonctl.Stop(cfg, 3*time.Second)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if result.ForcedKill {
		t.Fatal("expected graceful stop, got forced kill")
	}

	select {
	case runErr := <-done:
		if runErr != nil {
			t.Fatalf("daemon Run returned error: %v", runErr)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("daemon did not exit")
	}
}

func TestEnsureStartedAlreadyRunning(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	writePIDFile(t, cfg, os.Getpid())

	result, err := daemonctl.EnsureStarted(cfg, "/nonexistent/fbuildd", daemonctl.LaunchOptions{})
	if err != nil {
		t.Fatalf("EnsureStarted: %v", err)
	}
	if result.State != daemonctl.StartStateAlreadyRunning {
		t.Fatalf("expected already_running, got %s", result.State)
	}
}

func TestEnsureStartedLaunchesDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	// Stub daemon executable: writes its pid file and lingers.
	script := "#!/bin/sh\necho $$ > \"" + filepath.Join(cfg.Paths.DaemonDir, protocol.PIDFileName) + "\"\nsleep 5\n"
	exe := filepath.Join(t.TempDir(), "fbuildd")
	if err := os.WriteFile(exe, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub daemon: %v", err)
	}

	result, err := daemonctl.EnsureStarted(cfg, exe, daemonctl.LaunchOptions{})
	if err != nil {
		t.Fatalf("EnsureStarted: %v", err)
	}
	if result.State != daemonctl.StartStateStarted || result.PID == 0 {
		t.Fatalf("unexpected start result: %+v", result)
	}
}
