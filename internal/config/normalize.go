package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeDaemon()
	c.normalizeSerial()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DaemonDir) == "" {
		c.Paths.DaemonDir = defaultDaemonDir
	}
	if c.Paths.DaemonDir, err = expandPath(c.Paths.DaemonDir); err != nil {
		return fmt.Errorf("paths.daemon_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeDaemon() {
	if c.Daemon.PollIntervalMillis <= 0 {
		c.Daemon.PollIntervalMillis = defaultPollIntervalMillis
	}
	if c.Daemon.MaintenanceIntervalSecond <= 0 {
		c.Daemon.MaintenanceIntervalSecond = defaultMaintenanceSeconds
	}
	if c.Daemon.IdleTimeoutHours <= 0 {
		c.Daemon.IdleTimeoutHours = defaultIdleTimeoutHours
	}
	if c.Daemon.CancelStaleMinutes <= 0 {
		c.Daemon.CancelStaleMinutes = defaultCancelStaleMinutes
	}
	if c.Daemon.ShutdownWaitSeconds <= 0 {
		c.Daemon.ShutdownWaitSeconds = defaultShutdownWaitSeconds
	}
	if c.Daemon.StartWaitSeconds <= 0 {
		c.Daemon.StartWaitSeconds = defaultStartWaitSeconds
	}
}

func (c *Config) normalizeSerial() {
	if c.Serial.DefaultBaud <= 0 {
		c.Serial.DefaultBaud = defaultBaud
	}
	if len(c.Serial.PortPatterns) == 0 {
		c.Serial.PortPatterns = defaultPortPatterns()
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
