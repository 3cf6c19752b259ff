package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateToolchain(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.DaemonDir == "" {
		return errors.New("paths.daemon_dir must be set")
	}
	if c.Paths.LogDir == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateToolchain() error {
	for _, entry := range []struct {
		name string
		argv []string
	}{
		{name: "toolchain.build_command", argv: c.Toolchain.BuildCommand},
		{name: "toolchain.deploy_command", argv: c.Toolchain.DeployCommand},
		{name: "toolchain.monitor_command", argv: c.Toolchain.MonitorCommand},
	} {
		if len(entry.argv) == 0 {
			return fmt.Errorf("%s must not be empty", entry.name)
		}
		if entry.argv[0] == "" {
			return fmt.Errorf("%s has an empty executable", entry.name)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
