package firmware

import (
	"context"
	"errors"
	"time"
)

// LineSink receives collaborator output one line at a time, in order. Sinks
// must be safe for the collaborator to call from its streaming goroutine.
type LineSink func(line string)

// BuildResult reports the outcome of a firmware build.
type BuildResult struct {
	Success      bool
	ArtifactPath string
}

// DeployResult reports the outcome of a firmware upload. DetectedPort is set
// when the deployer resolved the port itself.
type DeployResult struct {
	Success      bool
	DetectedPort string
}

// MonitorResult reports the outcome of a serial monitor session.
type MonitorResult struct {
	Success bool
}

// MonitorOptions carries the parameters of a monitor session. Zero values
// mean "use the configured default" (Baud) or "none" (Timeout, patterns).
type MonitorOptions struct {
	ProjectDir    string
	Environment   string
	Port          string
	Baud          int
	Timeout       time.Duration
	HaltOnError   string
	HaltOnSuccess string
	Verbose       bool
}

// Builder compiles a project environment.
type Builder interface {
	Build(ctx context.Context, projectDir, environment string, clean, verbose bool, sink LineSink) (BuildResult, error)
}

// Deployer uploads firmware, auto-detecting the serial port when none is
// given.
type Deployer interface {
	Deploy(ctx context.Context, projectDir, environment, port string, clean, verbose bool, sink LineSink) (DeployResult, error)
}

// Monitor attaches to a serial port and streams device output until a halt
// pattern matches, the timeout elapses, or the session ends.
type Monitor interface {
	Monitor(ctx context.Context, opts MonitorOptions, sink LineSink) (MonitorResult, error)
}

// Toolchain bundles the three collaborators the dispatcher drives. The
// daemon core treats these as opaque, possibly slow, blocking calls.
type Toolchain interface {
	Builder
	Deployer
	Monitor
}

// ErrNoPortDetected indicates port auto-detection found no candidate device.
var ErrNoPortDetected = errors.New("no serial port detected")
