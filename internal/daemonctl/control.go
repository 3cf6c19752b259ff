package daemonctl

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"fbuild/internal/config"
	"fbuild/internal/procutil"
	"fbuild/internal/protocol"
)

// ErrDaemonNotRunning indicates no live daemon process was found.
var ErrDaemonNotRunning = errors.New("daemon not running")

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	ConfigPath string
}

type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StartResult captures daemon start orchestration state.
type StartResult struct {
	State StartState
	PID   int
}

// StopResult captures daemon stop outcome.
type StopResult struct {
	ForcedKill bool
	PID        int
}

// RestartResult captures stop/start outcomes for daemon restart.
type RestartResult struct {
	WasRunning bool
	Stop       StopResult
	Start      StartResult
}

func pidFilePath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.DaemonDir, protocol.PIDFileName)
}

// IsRunning reports whether a daemon process is alive, returning its PID.
// Stale files left by a crashed daemon are cleaned up on the way.
func IsRunning(cfg *config.Config) (bool, int, error) {
	data, err := os.ReadFile(pidFilePath(cfg))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, 0, nil
		}
		return false, 0, fmt.Errorf("read pid file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		cleanupDaemonFiles(cfg)
		return false, 0, nil
	}
	if !procutil.IsProcessAlive(pid) {
		cleanupDaemonFiles(cfg)
		return false, 0, nil
	}
	return true, pid, nil
}

func cleanupDaemonFiles(cfg *config.Config) {
	for _, name := range []string{protocol.PIDFileName, protocol.DaemonStatusFileName} {
		_ = os.Remove(filepath.Join(cfg.Paths.DaemonDir, name))
	}
}

// Launch starts a detached daemon process.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return errors.New("resolve executable: executable path is empty")
	}

	var args []string
	if path := strings.TrimSpace(opts.ConfigPath); path != "" {
		args = append(args, "--config", path)
	}

	proc := exec.Command(executablePath, args...)
	proc.Stdin = nil
	proc.Stdout = nil
	proc.Stderr = nil
	detachFromSession(proc)
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// EnsureStarted launches the daemon unless one is already alive, then waits
// for its pid file to appear.
func EnsureStarted(cfg *config.Config, executablePath string, opts LaunchOptions) (StartResult, error) {
	running, pid, err := IsRunning(cfg)
	if err != nil {
		return StartResult{}, err
	}
	if running {
		return StartResult{State: StartStateAlreadyRunning, PID: pid}, nil
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return StartResult{}, fmt.Errorf("ensure directories: %w", err)
	}
	if err := Launch(executablePath, opts); err != nil {
		return StartResult{}, err
	}

	deadline := time.Now().Add(cfg.StartWait())
	for time.Now().Before(deadline) {
		running, pid, err = IsRunning(cfg)
		if err != nil {
			return StartResult{}, err
		}
		if running {
			return StartResult{State: StartStateStarted, PID: pid}, nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return StartResult{}, fmt.Errorf("daemon failed to start within %s", cfg.StartWait())
}

// Stop requests a graceful shutdown via the signal file and escalates to
// SIGKILL when the daemon outlives the grace period.
func Stop(cfg *config.Config, gracePeriod time.Duration) (StopResult, error) {
	running, pid, err := IsRunning(cfg)
	if err != nil {
		return StopResult{}, err
	}
	if !running {
		return StopResult{}, ErrDaemonNotRunning
	}

	shutdownPath := filepath.Join(cfg.Paths.DaemonDir, protocol.ShutdownSignalName)
	if err := protocol.TouchSignal(shutdownPath); err != nil {
		return StopResult{}, fmt.Errorf("write shutdown signal: %w", err)
	}

	// The daemon removes its pid file on clean exit, so either the file
	// disappearing or the process dying counts as a stop.
	deadline := time.Now().Add(gracePeriod)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(pidFilePath(cfg)); errors.Is(err, os.ErrNotExist) {
			return StopResult{PID: pid}, nil
		}
		if !procutil.IsProcessAlive(pid) {
			cleanupDaemonFiles(cfg)
			return StopResult{PID: pid}, nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	// The daemon may be refusing shutdown because operations are active, or
	// it may be wedged. Escalation loses in-flight work, so it only happens
	// after the full grace period.
	if err := procutil.ForceKill(pid); err != nil {
		return StopResult{PID: pid}, fmt.Errorf("force kill daemon %d: %w", pid, err)
	}
	cleanupDaemonFiles(cfg)
	_ = os.Remove(shutdownPath)
	return StopResult{ForcedKill: true, PID: pid}, nil
}

// Restart stops the daemon if running, then starts a fresh instance.
func Restart(cfg *config.Config, executablePath string, opts LaunchOptions) (RestartResult, error) {
	stopResult, stopErr := Stop(cfg, cfg.ShutdownWait())
	if stopErr != nil && !errors.Is(stopErr, ErrDaemonNotRunning) {
		return RestartResult{}, stopErr
	}

	startResult, err := EnsureStarted(cfg, executablePath, opts)
	if err != nil {
		return RestartResult{}, err
	}
	return RestartResult{
		WasRunning: stopErr == nil,
		Stop:       stopResult,
		Start:      startResult,
	}, nil
}
