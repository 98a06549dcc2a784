package domain

import (
	"encoding/json"
	"time"
)

// RunContext is the working state of one pipeline invocation. A fresh value is
// created per run and handed back to the caller; nothing in it is shared across runs.
type RunContext struct {
	ID              string           `json:"run_id"`
	Documents       []Document       `json:"-"`
	Plan            *ExecutionPlan   `json:"plan"`
	States          []*AgentRunState `json:"states"`
	Results         []AgentResult    `json:"results"`
	FinalEvaluation *AgentResult     `json:"final_evaluation"`
}

// NewRunContext creates an empty context for documents.
func NewRunContext(id string, docs []Document) *RunContext {
	return &RunContext{
		ID:        id,
		Documents: docs,
		States:    []*AgentRunState{},
		Results:   []AgentResult{},
	}
}

// Schedule appends a pending state for spec and returns it.
func (rc *RunContext) Schedule(spec AgentSpec) *AgentRunState {
	st := NewAgentRunState(len(rc.States), spec)
	rc.States = append(rc.States, st)
	return st
}

// Append records a completed result. Results are never modified after append.
func (rc *RunContext) Append(r AgentResult) {
	rc.Results = append(rc.Results, r)
}

// Run is the persisted summary of a pipeline run.
type Run struct {
	RunID           string          `json:"run_id"`
	Status          RunStatus       `json:"status"`
	DocumentCount   int             `json:"document_count"`
	StartedAt       time.Time       `json:"started_at"`
	EndedAt         *time.Time      `json:"ended_at,omitempty"`
	Plan            json.RawMessage `json:"plan,omitempty"`
	Results         json.RawMessage `json:"results,omitempty"`
	FinalEvaluation json.RawMessage `json:"final_evaluation,omitempty"`
	Error           string          `json:"error,omitempty"`
}

// Event represents a trace event for replay.
type Event struct {
	EventID string          `json:"event_id"`
	RunID   string          `json:"run_id"`
	Ts      int64           `json:"ts"` // Unix milliseconds
	Type    EventKind       `json:"type"`
	Agent   string          `json:"agent,omitempty"`
	Status  string          `json:"status,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}
