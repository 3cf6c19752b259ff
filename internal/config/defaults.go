package config

const (
	defaultDaemonDir           = "~/.fbuild/daemon"
	defaultLogDir              = "~/.fbuild/logs"
	defaultPollIntervalMillis  = 100
	defaultMaintenanceSeconds  = 60
	defaultIdleTimeoutHours    = 12
	defaultCancelStaleMinutes  = 5
	defaultShutdownWaitSeconds = 10
	defaultStartWaitSeconds    = 10
	defaultBaud                = 115200
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

func defaultPortPatterns() []string {
	return []string{
		"/dev/ttyUSB*",
		"/dev/ttyACM*",
		"/dev/cu.usbserial*",
		"/dev/cu.SLAB_USBtoUART*",
	}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DaemonDir: defaultDaemonDir,
			LogDir:    defaultLogDir,
		},
		Daemon: Daemon{
			PollIntervalMillis:        defaultPollIntervalMillis,
			MaintenanceIntervalSecond: defaultMaintenanceSeconds,
			IdleTimeoutHours:          defaultIdleTimeoutHours,
			CancelStaleMinutes:        defaultCancelStaleMinutes,
			ShutdownWaitSeconds:       defaultShutdownWaitSeconds,
			StartWaitSeconds:          defaultStartWaitSeconds,
		},
		Serial: Serial{
			DefaultBaud:  defaultBaud,
			PortPatterns: defaultPortPatterns(),
		},
		Toolchain: Toolchain{
			BuildCommand:   []string{"pio", "run"},
			DeployCommand:  []string{"pio", "run", "--target", "upload"},
			MonitorCommand: []string{"pio", "device", "monitor"},
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
