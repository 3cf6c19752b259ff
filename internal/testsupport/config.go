package testsupport

import (
	"path/filepath"
	"testing"

	"fbuild/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test
// and timings short enough for test loops. It applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DaemonDir = filepath.Join(base, "daemon")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Daemon.PollIntervalMillis = 10
	cfgVal.Daemon.MaintenanceIntervalSecond = 1
	cfgVal.Daemon.ShutdownWaitSeconds = 3
	cfgVal.Daemon.StartWaitSeconds = 3
	cfgVal.Serial.PortPatterns = []string{filepath.Join(base, "devices", "tty*")}
	cfgVal.Toolchain.BuildCommand = []string{"sh", "-c", "exit 0"}
	cfgVal.Toolchain.DeployCommand = []string{"sh", "-c", "exit 0"}
	cfgVal.Toolchain.MonitorCommand = []string{"sh", "-c", "exit 0"}

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithToolchainCommands overrides all three toolchain base commands at once.
func WithToolchainCommands(build, deploy, monitor []string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Toolchain.BuildCommand = build
		b.cfg.Toolchain.DeployCommand = deploy
		b.cfg.Toolchain.MonitorCommand = monitor
	}
}

// WithPortPatterns overrides the serial port detection globs.
func WithPortPatterns(patterns ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Serial.PortPatterns = patterns
	}
}

// WithIdleTimeoutHours overrides the daemon idle timeout.
func WithIdleTimeoutHours(hours float64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Daemon.IdleTimeoutHours = hours
	}
}
