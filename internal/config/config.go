package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DaemonDir string `toml:"daemon_dir"`
	LogDir    string `toml:"log_dir"`
}

// Daemon contains timing configuration for the coordination daemon.
type Daemon struct {
	PollIntervalMillis        int     `toml:"poll_interval_ms"`
	MaintenanceIntervalSecond int     `toml:"maintenance_interval_seconds"`
	IdleTimeoutHours          float64 `toml:"idle_timeout_hours"`
	CancelStaleMinutes        int     `toml:"cancel_stale_minutes"`
	ShutdownWaitSeconds       int     `toml:"shutdown_wait_seconds"`
	StartWaitSeconds          int     `toml:"start_wait_seconds"`
}

// Serial contains serial port defaults used by monitor and deploy operations.
type Serial struct {
	DefaultBaud  int      `toml:"default_baud"`
	PortPatterns []string `toml:"port_patterns"`
}

// Toolchain contains the external commands the daemon drives. Each entry is
// the base argv; operation-specific flags are appended at invocation time.
type Toolchain struct {
	BuildCommand   []string `toml:"build_command"`
	DeployCommand  []string `toml:"deploy_command"`
	MonitorCommand []string `toml:"monitor_command"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for fbuild.
//
// Configuration sections by subsystem:
//   - Paths: daemon working directory and log directory
//   - Daemon: polling, maintenance, and shutdown timing
//   - Serial: baud defaults and port auto-detection patterns
//   - Toolchain: external build/deploy/monitor commands
//   - Logging: log format and level
type Config struct {
	Paths     Paths     `toml:"paths"`
	Daemon    Daemon    `toml:"daemon"`
	Serial    Serial    `toml:"serial"`
	Toolchain Toolchain `toml:"toolchain"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/fbuild/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized. A missing file is not an error;
// defaults apply.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

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

// EnsureDirectories creates the daemon and log directories if missing.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DaemonDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// WriteSample writes the embedded sample configuration to path.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists: %s", expanded)
	}
	return os.WriteFile(expanded, []byte(sampleConfig), 0o644)
}

// PollInterval returns the request discovery interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Daemon.PollIntervalMillis) * time.Millisecond
}

// MaintenanceInterval returns the periodic maintenance interval.
func (c *Config) MaintenanceInterval() time.Duration {
	return time.Duration(c.Daemon.MaintenanceIntervalSecond) * time.Second
}

// IdleTimeout returns the duration after which an idle daemon exits.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.Daemon.IdleTimeoutHours * float64(time.Hour))
}

// CancelStaleAge returns the age past which unconsumed cancel signals are swept.
func (c *Config) CancelStaleAge() time.Duration {
	return time.Duration(c.Daemon.CancelStaleMinutes) * time.Minute
}

// ShutdownWait returns how long clients wait for a graceful daemon exit.
func (c *Config) ShutdownWait() time.Duration {
	return time.Duration(c.Daemon.ShutdownWaitSeconds) * time.Second
}

// StartWait returns how long clients wait for a launched daemon to come up.
func (c *Config) StartWait() time.Duration {
	return time.Duration(c.Daemon.StartWaitSeconds) * time.Second
}

// ExpandPath exposes tilde expansion for callers outside the package.
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
		if trimmed == "~" {
			return home, nil
		}
		return filepath.Join(home, trimmed[2:]), nil
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve path %q: %w", trimmed, err)
	}
	return abs, nil
}
