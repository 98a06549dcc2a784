package main

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/settle/internal/domain"
)

func TestFormatProgress(t *testing.T) {
	tests := []struct {
		name    string
		ev      domain.ProgressEvent
		verbose bool
		want    string
	}{
		{
			name: "plan",
			ev:   domain.ProgressEvent{Kind: domain.EventKindPlan, Plan: &domain.ExecutionPlan{Scenario: "three-way match", AgentSequence: []string{"A", "B"}}},
			want: "Plan: A -> B (three-way match)",
		},
		{
			name: "empty plan",
			ev:   domain.ProgressEvent{Kind: domain.EventKindPlan, Plan: &domain.ExecutionPlan{}},
			want: "Plan: no agents selected",
		},
		{
			name: "processing",
			ev:   domain.ProgressEvent{Kind: domain.EventKindState, Index: 1, AgentName: "VendorIntakeAgent", Status: domain.AgentStatusProcessing},
			want: "[1] VendorIntakeAgent started",
		},
		{
			name: "streaming hidden",
			ev:   domain.ProgressEvent{Kind: domain.EventKindState, Index: 1, AgentName: "A", Status: domain.AgentStatusStreaming},
			want: "",
		},
		{
			name:    "streaming verbose",
			ev:      domain.ProgressEvent{Kind: domain.EventKindState, Index: 1, AgentName: "A", Status: domain.AgentStatusStreaming},
			verbose: true,
			want:    "[1] A streaming",
		},
		{
			name: "completed",
			ev:   domain.ProgressEvent{Kind: domain.EventKindState, Index: 2, AgentName: "A", Status: domain.AgentStatusCompleted, Duration: 1500 * time.Millisecond},
			want: "[2] A completed in 1.5s",
		},
		{
			name: "failed",
			ev:   domain.ProgressEvent{Kind: domain.EventKindState, Index: 2, AgentName: "A", Status: domain.AgentStatusFailed, Error: "boom"},
			want: "[2] A failed: boom",
		},
		{
			name: "warning",
			ev:   domain.ProgressEvent{Kind: domain.EventKindWarning, Message: "unknown agent"},
			want: "warning: unknown agent",
		},
		{
			name: "run failed",
			ev:   domain.ProgressEvent{Kind: domain.EventKindRun, Message: "FAILED", Error: "run timed out"},
			want: "Run FAILED: run timed out",
		},
		{
			name: "agent error duplicates failed state",
			ev:   domain.ProgressEvent{Kind: domain.EventKindError, Error: "boom"},
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatProgress(tt.ev, tt.verbose))
		})
	}
}

func TestPrintOutcome(t *testing.T) {
	results, err := json.Marshal([]domain.AgentResult{
		domain.NewDomainResult(domain.AgentSpec{Name: "InvoiceMatchingAgent", StageLabel: "Invoice Matching"}, domain.ResultKindDomain, map[string]any{"summary": "quantities match"}),
	})
	require.NoError(t, err)
	final, err := json.Marshal(domain.NewDomainResult(domain.AgentSpec{Name: "FinalEvaluationAgent"}, domain.ResultKindEvaluation, map[string]any{
		"verdict":         "hold",
		"confidenceScore": 72.5,
		"riskLevel":       "MEDIUM",
		"reasoning":       "receipt is short by two units",
		"criticalIssues":  []any{"short delivery"},
	}))
	require.NoError(t, err)

	var out bytes.Buffer
	printOutcome(&out, &domain.Run{RunID: "run_1", Status: domain.RunStatusDone, Results: results, FinalEvaluation: final})

	got := out.String()
	assert.Contains(t, got, "InvoiceMatchingAgent")
	assert.Contains(t, got, "quantities match")
	assert.Contains(t, got, "HOLD")
	assert.Contains(t, got, "Confidence: 72.5%")
	assert.Contains(t, got, "Risk:       MEDIUM")
	assert.Contains(t, got, "Critical issues:\n  - short delivery\n")
	assert.NotContains(t, got, "Key factors")
}

func TestPrintOutcomeWithoutEvaluation(t *testing.T) {
	var out bytes.Buffer
	printOutcome(&out, &domain.Run{RunID: "run_1", Status: domain.RunStatusFailed, Error: "LLM call failed"})
	assert.Equal(t, "Status:  FAILED\nError:   LLM call failed\n", out.String())
}

func TestPrintRunsAndEvents(t *testing.T) {
	var out bytes.Buffer
	printRuns(&out, nil)
	printEvents(&out, nil)
	assert.Equal(t, "No runs\nNo events\n", out.String())

	out.Reset()
	started := time.Now().Add(-2 * time.Hour)
	ended := started.Add(90 * time.Second)
	printRuns(&out, []domain.Run{{RunID: "run_1", Status: domain.RunStatusDone, DocumentCount: 3, StartedAt: started, EndedAt: &ended}})
	assert.Contains(t, out.String(), "run_1")
	assert.Contains(t, out.String(), "2 hours ago")
	assert.Contains(t, out.String(), "1m30s")

	out.Reset()
	printEvents(&out, []domain.Event{{EventID: "evt_1", RunID: "run_1", Ts: 1, Type: domain.EventKindPlan, Agent: "OrchestratorAgent", Payload: json.RawMessage(`{"kind":"plan"}`)}})
	assert.Contains(t, out.String(), "OrchestratorAgent")
	assert.Contains(t, out.String(), "15 B")
}
