package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newAgentsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List the configured agents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat, err := opts.client().listAgents(cmd.Context())
			if err != nil {
				return fmt.Errorf("list agents: %w", err)
			}
			printCatalog(cmd.OutOrStdout(), cat)
			return nil
		},
	}
}

func newRunsCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			runs, err := opts.client().listRuns(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}
			printRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs")
	return cmd
}

func newEventsCmd(opts *rootOptions) *cobra.Command {
	var limit int
	var types []string
	cmd := &cobra.Command{
		Use:   "events RUN_ID",
		Short: "Show the recorded progress of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := opts.client().runEvents(cmd.Context(), args[0], types, limit)
			if err != nil {
				return fmt.Errorf("get events: %w", err)
			}
			printEvents(cmd.OutOrStdout(), events)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum number of events")
	cmd.Flags().StringSliceVar(&types, "types", nil, "Only these event types (state, plan, warning, error, run)")
	return cmd
}

func newCancelCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel RUN_ID",
		Short: "Cancel the in-flight run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.client().cancelRun(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("cancel run: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cancellation requested for run %s\n", args[0])
			return nil
		},
	}
}
