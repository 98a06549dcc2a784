package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/xiaot623/settle/internal/domain"
	"github.com/xiaot623/settle/internal/service"
)

const summaryWidth = 60

func newTable(header ...any) table.Writer {
	w := table.NewWriter()
	w.SetStyle(table.StyleLight)
	w.AppendHeader(table.Row(header))
	return w
}

// formatProgress renders one live event as a line, or "" when it is not worth
// printing. Streaming updates are only shown when verbose is set.
func formatProgress(ev domain.ProgressEvent, verbose bool) string {
	switch ev.Kind {
	case domain.EventKindPlan:
		if ev.Plan == nil || len(ev.Plan.AgentSequence) == 0 {
			return "Plan: no agents selected"
		}
		line := "Plan: " + strings.Join(ev.Plan.AgentSequence, " -> ")
		if ev.Plan.Scenario != "" {
			line += fmt.Sprintf(" (%s)", ev.Plan.Scenario)
		}
		return line
	case domain.EventKindWarning:
		return "warning: " + ev.Message
	case domain.EventKindRun:
		if ev.Error != "" {
			return fmt.Sprintf("Run %s: %s", ev.Message, ev.Error)
		}
		return "Run " + ev.Message
	case domain.EventKindState:
		switch ev.Status {
		case domain.AgentStatusProcessing:
			return fmt.Sprintf("[%d] %s started", ev.Index, ev.AgentName)
		case domain.AgentStatusStreaming:
			if verbose {
				return fmt.Sprintf("[%d] %s streaming", ev.Index, ev.AgentName)
			}
		case domain.AgentStatusCompleted:
			return fmt.Sprintf("[%d] %s completed in %s", ev.Index, ev.AgentName, ev.Duration.Round(time.Millisecond))
		case domain.AgentStatusFailed:
			return fmt.Sprintf("[%d] %s failed: %s", ev.Index, ev.AgentName, ev.Error)
		}
	}
	return ""
}

// printOutcome prints the agent results and the final verdict of a run.
func printOutcome(out io.Writer, run *domain.Run) {
	var results []domain.AgentResult
	if len(run.Results) > 0 {
		if err := json.Unmarshal(run.Results, &results); err != nil {
			fmt.Fprintf(out, "warning: unreadable results: %v\n", err)
		}
	}
	if len(results) > 0 {
		w := newTable("Agent", "Stage", "Summary")
		w.SetColumnConfigs([]table.ColumnConfig{{Number: 3, WidthMax: summaryWidth}})
		for _, r := range results {
			w.AppendRow(table.Row{r.AgentName, r.StageLabel, r.Summary()})
		}
		fmt.Fprintln(out, w.Render())
	}

	if len(run.FinalEvaluation) == 0 {
		fmt.Fprintf(out, "Status:  %s\n", run.Status)
		if run.Error != "" {
			fmt.Fprintf(out, "Error:   %s\n", run.Error)
		}
		return
	}
	var final domain.AgentResult
	if err := json.Unmarshal(run.FinalEvaluation, &final); err != nil {
		fmt.Fprintf(out, "warning: unreadable final evaluation: %v\n", err)
		return
	}
	printEvaluation(out, final.Evaluation())
}

func printEvaluation(out io.Writer, ev domain.Evaluation) {
	verdict := ev.Verdict
	if verdict == "" {
		verdict = "UNKNOWN"
	}
	fmt.Fprintf(out, "Verdict:    %s\n", verdictColor(verdict).Sprint(verdict))
	if ev.ConfidenceScore > 0 {
		fmt.Fprintf(out, "Confidence: %s%%\n", humanize.FtoaWithDigits(ev.ConfidenceScore, 1))
	}
	if ev.RiskLevel != "" {
		fmt.Fprintf(out, "Risk:       %s\n", ev.RiskLevel)
	}
	if ev.Reasoning != "" {
		fmt.Fprintf(out, "Reasoning:  %s\n", ev.Reasoning)
	}
	printList(out, "Key factors", ev.KeyFactors)
	printList(out, "Critical issues", ev.CriticalIssues)
	printList(out, "Recommendations", ev.Recommendations)
}

func printList(out io.Writer, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(out, "%s:\n", title)
	for _, item := range items {
		fmt.Fprintf(out, "  - %s\n", item)
	}
}

func verdictColor(verdict string) text.Colors {
	switch verdict {
	case "APPROVE":
		return text.Colors{text.FgGreen}
	case "REJECT":
		return text.Colors{text.FgRed}
	case "HOLD", "REVIEW":
		return text.Colors{text.FgYellow}
	}
	return nil
}

func printCatalog(out io.Writer, cat *service.AgentCatalog) {
	fmt.Fprintf(out, "Model:            %s\n", cat.Model)
	fmt.Fprintf(out, "Orchestrator:     %s\n", cat.Orchestrator.Name)
	fmt.Fprintf(out, "Final evaluation: %s\n", cat.FinalEvaluation.Name)

	w := newTable("#", "Agent", "Stage", "Description")
	w.SetColumnConfigs([]table.ColumnConfig{{Number: 4, WidthMax: summaryWidth}})
	for i, a := range cat.Agents {
		w.AppendRow(table.Row{i + 1, a.Name, a.StageLabel, a.Description})
	}
	fmt.Fprintln(out, w.Render())
}

func printRuns(out io.Writer, runs []domain.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs")
		return
	}
	w := newTable("Run", "Status", "Docs", "Started", "Duration", "Error")
	w.SetColumnConfigs([]table.ColumnConfig{{Number: 6, WidthMax: summaryWidth}})
	for _, r := range runs {
		duration := "-"
		if r.EndedAt != nil {
			duration = r.EndedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		w.AppendRow(table.Row{r.RunID, r.Status, r.DocumentCount, humanize.Time(r.StartedAt), duration, r.Error})
	}
	fmt.Fprintln(out, w.Render())
}

func printEvents(out io.Writer, events []domain.Event) {
	if len(events) == 0 {
		fmt.Fprintln(out, "No events")
		return
	}
	w := newTable("Time", "Type", "Agent", "Status", "Size")
	for _, ev := range events {
		w.AppendRow(table.Row{
			time.UnixMilli(ev.Ts).Format("15:04:05.000"),
			ev.Type,
			ev.Agent,
			ev.Status,
			humanize.Bytes(uint64(len(ev.Payload))),
		})
	}
	fmt.Fprintln(out, w.Render())
}
