package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/xiaot623/settle/internal/domain"
	"github.com/xiaot623/settle/internal/engine"
	"github.com/xiaot623/settle/internal/extract"
)

func newRunCmd(opts *rootOptions, pollInterval time.Duration) *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "run FILE...",
		Short: "Review documents and print the verdict",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReview(cmd, opts.client(), args, pollInterval, verbose)
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print streaming updates")
	return cmd
}

func runReview(cmd *cobra.Command, client *apiClient, paths []string, pollInterval time.Duration, verbose bool) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	docs := extract.ExtractFiles(extract.NewTextExtractor(), paths)
	for _, d := range docs {
		if d.ExtractionFailed {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", d.Text)
		}
	}

	// Subscribe before starting so no progress is missed.
	runID := engine.NewRunID()
	events := make(chan domain.ProgressEvent, 64)
	done := make(chan struct{})
	defer close(done)
	conn, err := client.watch(ctx, runID)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: live progress unavailable: %v\n", err)
		events = nil
	} else {
		defer conn.Close()
		go readEvents(conn, events, done)
	}

	if _, err := client.startRun(ctx, runID, docs); err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	fmt.Fprintf(out, "Run %s started with %d documents\n", runID, len(docs))

	run, err := followRun(ctx, cmd, client, runID, events, pollInterval, verbose)
	if err != nil {
		return err
	}

	printOutcome(out, run)
	if run.Status != domain.RunStatusDone {
		return fmt.Errorf("run %s %s: %s", run.RunID, run.Status, run.Error)
	}
	return nil
}

// followRun prints progress until the run settles. The run record is polled as
// well, so a dropped websocket never leaves the command waiting.
func followRun(ctx context.Context, cmd *cobra.Command, client *apiClient, runID string, events <-chan domain.ProgressEvent, pollInterval time.Duration, verbose bool) (*domain.Run, error) {
	out := cmd.OutOrStdout()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if line := formatProgress(ev, verbose); line != "" {
				fmt.Fprintln(out, line)
			}
			if ev.Kind == domain.EventKindRun {
				return settledRun(ctx, client, runID)
			}
		case <-ticker.C:
			run, err := client.getRun(ctx, runID)
			if err != nil {
				return nil, fmt.Errorf("get run: %w", err)
			}
			if run.Status.IsTerminal() {
				return run, nil
			}
		case <-ctx.Done():
			cancelCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := client.cancelRun(cancelCtx, runID); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: cancel run: %v\n", err)
			}
			return nil, ctx.Err()
		}
	}
}

// settledRun fetches the run after its final event. The record is written
// before that event is sent, so it is already terminal.
func settledRun(ctx context.Context, client *apiClient, runID string) (*domain.Run, error) {
	run, err := client.getRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

func readEvents(conn *websocket.Conn, events chan<- domain.ProgressEvent, done <-chan struct{}) {
	defer close(events)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var ev domain.ProgressEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}
		select {
		case events <- ev:
		case <-done:
			return
		}
	}
}
