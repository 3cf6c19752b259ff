package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"fbuild/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var projectDir string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			if cfg == nil {
				return errors.New("configuration not available")
			}

			store, err := history.Open(cfg)
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer store.Close()

			entries, err := store.List(cmd.Context(), projectDir, limit)
			if err != nil {
				return err
			}

			stdout := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(stdout, "No operations recorded")
				return nil
			}

			rows := make([][]string, 0, len(entries))
			for _, entry := range entries {
				when := ""
				if entry.StartedAt != nil {
					when = entry.StartedAt.Local().Format("2006-01-02 15:04:05")
				}
				rows = append(rows, []string{
					entry.Kind,
					entry.Environment,
					entry.Status,
					when,
					entry.Duration.Round(time.Millisecond).String(),
					formatOrDash(entry.DetectedPort),
					formatOrDash(entry.Message),
				})
			}
			table := renderTable(
				[]string{"Kind", "Env", "Status", "Started", "Duration", "Port", "Message"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			)
			fmt.Fprintln(stdout, table)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum entries to show")
	cmd.Flags().StringVarP(&projectDir, "project", "d", "", "Only show operations for this project directory")
	return cmd
}
