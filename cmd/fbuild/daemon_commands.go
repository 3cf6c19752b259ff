package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"fbuild/internal/daemonctl"
	"fbuild/internal/protocol"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the fbuild daemon",
	}
	daemonCmd.AddCommand(newDaemonSubcommands(ctx)...)
	return daemonCmd
}

func newDaemonSubcommands(ctx *commandContext) []*cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the fbuild daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			result, err := daemonctl.EnsureStarted(ctx.configValue(), exe, daemonLaunchOptions(ctx))
			if err != nil {
				return err
			}
			switch result.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintf(stdout, "Daemon started (pid %d)\n", result.PID)
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintf(stdout, "Daemon already running (pid %d)\n", result.PID)
			}
			return nil
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the fbuild daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			cfg := ctx.configValue()
			result, err := daemonctl.Stop(cfg, cfg.ShutdownWait())
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(stdout, "Daemon did not stop in time, killed process %d\n", result.PID)
				return nil
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}

	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the fbuild daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			result, err := daemonctl.Restart(ctx.configValue(), exe, daemonLaunchOptions(ctx))
			if err != nil {
				return err
			}
			if result.WasRunning {
				fmt.Fprintln(stdout, "Daemon stopped")
			}
			fmt.Fprintf(stdout, "Daemon running (pid %d)\n", result.Start.PID)
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			cfg := ctx.configValue()

			running, pid, err := daemonctl.IsRunning(cfg)
			if err != nil {
				return err
			}
			if !running {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}

			rows := [][]string{
				{"State", "running"},
				{"PID", fmt.Sprintf("%d", pid)},
				{"Daemon dir", cfg.Paths.DaemonDir},
			}
			if status, statusErr := protocol.ReadDaemonStatus(cfg.Paths.DaemonDir); statusErr == nil {
				rows = append(rows,
					[]string{"Started", status.StartedAt.Local().Format(time.RFC1123)},
					[]string{"Heartbeat", fmt.Sprintf("%s ago", time.Since(status.LastHeartbeat).Round(time.Second))},
				)
			}
			rows = append(rows, []string{"Pending requests", fmt.Sprintf("%d", countPendingRequests(cfg.Paths.DaemonDir))})

			fmt.Fprintln(stdout, renderTable([]string{"Field", "Value"}, rows, []columnAlignment{alignLeft, alignLeft}))
			return nil
		},
	}

	return []*cobra.Command{startCmd, stopCmd, restartCmd, statusCmd}
}
