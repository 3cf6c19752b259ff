package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"fbuild/internal/config"
	"fbuild/internal/daemonctl"
	"fbuild/internal/protocol"
)

type operationFlags struct {
	projectDir  string
	environment string
	clean       bool
	verbose     bool

	port           string
	baud           int
	timeoutSeconds float64
	haltOnError    string
	haltOnSuccess  string
	monitorAfter   bool
}

func (f *operationFlags) addCommon(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.projectDir, "project", "d", "", "Project directory (defaults to the current directory)")
	cmd.Flags().StringVarP(&f.environment, "env", "e", "", "Target environment")
	_ = cmd.MarkFlagRequired("env")
}

func (f *operationFlags) addBuild(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.clean, "clean", false, "Clean before building")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "Verbose toolchain output")
}

func (f *operationFlags) addSerial(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.port, "port", "p", "", "Serial port (auto-detected when omitted)")
	cmd.Flags().IntVarP(&f.baud, "baud", "b", 0, "Baud rate (configured default when omitted)")
}

func (f *operationFlags) addMonitor(cmd *cobra.Command) {
	cmd.Flags().Float64VarP(&f.timeoutSeconds, "timeout", "t", 0, "Monitor timeout in seconds (0 means none)")
	cmd.Flags().StringVar(&f.haltOnError, "halt-on-error", "", "Stop monitoring when output matches this pattern and report failure")
	cmd.Flags().StringVar(&f.haltOnSuccess, "halt-on-success", "", "Stop monitoring when output matches this pattern and report success")
}

func (f *operationFlags) request(kind protocol.Kind) (*protocol.Request, error) {
	projectDir := strings.TrimSpace(f.projectDir)
	if projectDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve current directory: %w", err)
		}
		projectDir = cwd
	}
	absDir, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, fmt.Errorf("resolve project directory: %w", err)
	}

	cwd, _ := os.Getwd()
	return &protocol.Request{
		RequestID:      protocol.NewRequestID(kind),
		Kind:           kind,
		ProjectDir:     absDir,
		Environment:    strings.TrimSpace(f.environment),
		CallerPID:      os.Getpid(),
		CallerCwd:      cwd,
		CreatedAt:      time.Now().UTC(),
		CleanBuild:     f.clean,
		Verbose:        f.verbose,
		Port:           strings.TrimSpace(f.port),
		Baud:           f.baud,
		TimeoutSeconds: f.timeoutSeconds,
		HaltOnError:    f.haltOnError,
		HaltOnSuccess:  f.haltOnSuccess,
		MonitorAfter:   f.monitorAfter,
	}, nil
}

func newBuildCommand(ctx *commandContext) *cobra.Command {
	var flags operationFlags
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Compile firmware for an environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.request(protocol.KindBuild)
			if err != nil {
				return err
			}
			return runOperation(cmd, ctx, req)
		},
	}
	flags.addCommon(cmd)
	flags.addBuild(cmd)
	return cmd
}

func newDeployCommand(ctx *commandContext) *cobra.Command {
	var flags operationFlags
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Upload firmware to a device",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.request(protocol.KindDeploy)
			if err != nil {
				return err
			}
			return runOperation(cmd, ctx, req)
		},
	}
	flags.addCommon(cmd)
	flags.addBuild(cmd)
	flags.addSerial(cmd)
	flags.addMonitor(cmd)
	cmd.Flags().BoolVar(&flags.monitorAfter, "monitor", false, "Attach the serial monitor after a successful upload")
	return cmd
}

func newMonitorCommand(ctx *commandContext) *cobra.Command {
	var flags operationFlags
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Stream serial output from a device",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.request(protocol.KindMonitor)
			if err != nil {
				return err
			}
			return runOperation(cmd, ctx, req)
		},
	}
	flags.addCommon(cmd)
	flags.addSerial(cmd)
	flags.addMonitor(cmd)
	return cmd
}

// runOperation makes sure a daemon is up, submits the request, and follows it
// to completion, mirroring the operation outcome in the process exit code.
func runOperation(cmd *cobra.Command, ctx *commandContext, req *protocol.Request) error {
	cfg := ctx.configValue()
	if cfg == nil {
		return errors.New("configuration not available")
	}

	if err := ensureDaemon(cmd, ctx, cfg); err != nil {
		return err
	}

	interactive := isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
	submitter := daemonctl.NewSubmitter(cfg)
	submitter.SetStreams(cmd.InOrStdin(), cmd.OutOrStdout(), interactive)
	result, err := submitter.Submit(cmd.Context(), req)
	if err != nil {
		return err
	}

	stdout := cmd.OutOrStdout()
	switch {
	case result.Detached:
		fmt.Fprintf(stdout, "Detached. Operation %s continues in the daemon.\n", result.RequestID)
		return nil
	case result.Succeeded():
		fmt.Fprintln(stdout, result.Message)
		if port := result.ResultData[protocol.ResultDataKeyDetectedPort]; port != "" {
			fmt.Fprintf(stdout, "Port: %s\n", port)
		}
		if artifact := result.ResultData[protocol.ResultDataKeyArtifact]; artifact != "" {
			fmt.Fprintf(stdout, "Artifact: %s\n", artifact)
		}
		return nil
	default:
		if result.Error != "" {
			return fmt.Errorf("%s: %s", result.Message, result.Error)
		}
		return errors.New(result.Message)
	}
}

func ensureDaemon(cmd *cobra.Command, ctx *commandContext, cfg *config.Config) error {
	exe, err := daemonExecutable()
	if err != nil {
		return err
	}
	result, err := daemonctl.EnsureStarted(cfg, exe, daemonLaunchOptions(ctx))
	if err != nil {
		return err
	}
	if result.State == daemonctl.StartStateStarted {
		fmt.Fprintf(cmd.OutOrStdout(), "Daemon started (pid %d)\n", result.PID)
	}
	return nil
}

// daemonExecutable locates fbuildd next to the running fbuild binary, falling
// back to PATH lookup.
func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	sibling := filepath.Join(filepath.Dir(exe), "fbuildd")
	if _, statErr := os.Stat(sibling); statErr == nil {
		return sibling, nil
	}
	return "fbuildd", nil
}

func daemonLaunchOptions(ctx *commandContext) daemonctl.LaunchOptions {
	return daemonctl.LaunchOptions{ConfigPath: ctx.configPathFlag()}
}
