package firmware

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"sync/atomic"

	"fbuild/internal/config"
	"fbuild/internal/logging"
)

// ExecToolchain drives the external toolchain commands from configuration.
// Each operation invokes the configured base argv with standard project,
// environment, and port flags appended.
type ExecToolchain struct {
	cfg    *config.Config
	logger *slog.Logger
}

// NewExecToolchain constructs the default exec-backed toolchain.
func NewExecToolchain(cfg *config.Config, logger *slog.Logger) *ExecToolchain {
	return &ExecToolchain{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "toolchain"),
	}
}

// Build runs the configured build command, optionally cleaning first.
func (t *ExecToolchain) Build(ctx context.Context, projectDir, environment string, clean, verbose bool, sink LineSink) (BuildResult, error) {
	if clean {
		argv := t.argv(t.cfg.Toolchain.BuildCommand, projectDir, environment)
		argv = append(argv, "--target", "clean")
		if err := t.run(ctx, projectDir, argv, sink); err != nil {
			return BuildResult{}, fmt.Errorf("clean: %w", err)
		}
	}

	argv := t.argv(t.cfg.Toolchain.BuildCommand, projectDir, environment)
	if verbose {
		argv = append(argv, "--verbose")
	}
	if err := t.run(ctx, projectDir, argv, sink); err != nil {
		return BuildResult{}, err
	}
	return BuildResult{
		Success:      true,
		ArtifactPath: findArtifact(projectDir, environment),
	}, nil
}

// Deploy runs the configured deploy command, resolving the port first when
// none was given.
func (t *ExecToolchain) Deploy(ctx context.Context, projectDir, environment, port string, clean, verbose bool, sink LineSink) (DeployResult, error) {
	detected := ""
	if port == "" {
		resolved, err := DetectPort(t.cfg.Serial.PortPatterns)
		if err != nil {
			return DeployResult{}, err
		}
		port = resolved
		detected = resolved
		sink(fmt.Sprintf("Auto-detected serial port %s", port))
	}

	if clean {
		argv := t.argv(t.cfg.Toolchain.BuildCommand, projectDir, environment)
		argv = append(argv, "--target", "clean")
		if err := t.run(ctx, projectDir, argv, sink); err != nil {
			return DeployResult{DetectedPort: detected}, fmt.Errorf("clean: %w", err)
		}
	}

	argv := t.argv(t.cfg.Toolchain.DeployCommand, projectDir, environment)
	argv = append(argv, "--upload-port", port)
	if verbose {
		argv = append(argv, "--verbose")
	}
	if err := t.run(ctx, projectDir, argv, sink); err != nil {
		return DeployResult{DetectedPort: detected}, err
	}
	return DeployResult{Success: true, DetectedPort: detected}, nil
}

// Monitor runs the configured monitor command, halting on pattern matches or
// timeout. A timeout is a normal end of session, not a failure.
func (t *ExecToolchain) Monitor(ctx context.Context, opts MonitorOptions, sink LineSink) (MonitorResult, error) {
	port := opts.Port
	if port == "" {
		resolved, err := DetectPort(t.cfg.Serial.PortPatterns)
		if err != nil {
			return MonitorResult{}, err
		}
		port = resolved
		sink(fmt.Sprintf("Auto-detected serial port %s", port))
	}
	baud := opts.Baud
	if baud <= 0 {
		baud = t.cfg.Serial.DefaultBaud
	}

	var errPattern, successPattern *regexp.Regexp
	var err error
	if opts.HaltOnError != "" {
		if errPattern, err = regexp.Compile(opts.HaltOnError); err != nil {
			return MonitorResult{}, fmt.Errorf("halt_on_error pattern: %w", err)
		}
	}
	if opts.HaltOnSuccess != "" {
		if successPattern, err = regexp.Compile(opts.HaltOnSuccess); err != nil {
			return MonitorResult{}, fmt.Errorf("halt_on_success pattern: %w", err)
		}
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if opts.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	argv := t.argv(t.cfg.Toolchain.MonitorCommand, opts.ProjectDir, opts.Environment)
	argv = append(argv, "--port", port, "--baud", strconv.Itoa(baud))

	var haltedOnError, haltedOnSuccess atomic.Bool
	halt := func() {}
	watcher := func(line string) {
		sink(line)
		if errPattern != nil && errPattern.MatchString(line) {
			haltedOnError.Store(true)
			halt()
			return
		}
		if successPattern != nil && successPattern.MatchString(line) {
			haltedOnSuccess.Store(true)
			halt()
		}
	}

	runErr := t.runWithHalt(runCtx, opts.ProjectDir, argv, watcher, &halt)

	switch {
	case haltedOnError.Load():
		return MonitorResult{Success: false}, nil
	case haltedOnSuccess.Load():
		return MonitorResult{Success: true}, nil
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		sink(fmt.Sprintf("Monitor timeout after %s", opts.Timeout))
		return MonitorResult{Success: true}, nil
	case runErr != nil:
		return MonitorResult{}, runErr
	default:
		return MonitorResult{Success: true}, nil
	}
}

func (t *ExecToolchain) argv(base []string, projectDir, environment string) []string {
	argv := append([]string{}, base...)
	argv = append(argv, "-d", projectDir, "-e", environment)
	return argv
}

func (t *ExecToolchain) run(ctx context.Context, dir string, argv []string, sink LineSink) error {
	var noop func()
	return t.runWithHalt(ctx, dir, argv, sink, &noop)
}

// runWithHalt executes argv, streaming combined stdout/stderr lines to sink.
// *halt is set to a function that kills the process, so a sink can stop the
// session from within a line callback.
func (t *ExecToolchain) runWithHalt(ctx context.Context, dir string, argv []string, sink LineSink, halt *func()) error {
	if len(argv) == 0 {
		return errors.New("empty command")
	}
	t.logger.Debug("running toolchain command", logging.String("command", argv[0]), logging.Any("args", argv[1:]))

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Stdin = nil

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pw.Close()
		pr.Close()
		return fmt.Errorf("start %s: %w", argv[0], err)
	}

	var once sync.Once
	*halt = func() {
		once.Do(func() {
			if cmd.Process != nil {
				_ = cmd.Process.Kill()
			}
		})
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			sink(scanner.Text())
		}
	}()

	err := cmd.Wait()
	pw.Close()
	<-done
	pr.Close()

	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s: %w", argv[0], err)
	}
	return nil
}

func findArtifact(projectDir, environment string) string {
	buildDir := filepath.Join(projectDir, ".pio", "build", environment)
	for _, name := range []string{"firmware.bin", "firmware.hex", "firmware.elf"} {
		candidate := filepath.Join(buildDir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}
