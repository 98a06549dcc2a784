package domain

import "time"

// ProgressEvent is emitted for every AgentRunState transition and for run-level
// warnings. Data and Error mirror the state at emission time.
type ProgressEvent struct {
	RunID     string         `json:"run_id"`
	Kind      EventKind      `json:"kind"`
	Index     int            `json:"index"`
	AgentName string         `json:"agent,omitempty"`
	Status    AgentStatus    `json:"status,omitempty"`
	Data      any            `json:"data,omitempty"`
	Error     string         `json:"error,omitempty"`
	Message   string         `json:"message,omitempty"`
	Plan      *ExecutionPlan `json:"plan,omitempty"`
	Duration  time.Duration  `json:"duration_ns,omitempty"`
	Ts        int64          `json:"ts"`
}

// ProgressSink receives progress notifications. Delivery is fire-and-forget:
// the pipeline never waits on or retries a sink.
type ProgressSink interface {
	Notify(ev ProgressEvent)
}

// SinkFunc adapts a function to ProgressSink.
type SinkFunc func(ev ProgressEvent)

// Notify calls f.
func (f SinkFunc) Notify(ev ProgressEvent) { f(ev) }

// DiscardSink drops every event.
var DiscardSink ProgressSink = SinkFunc(func(ProgressEvent) {})

// StateEvent builds a state notification for st.
func StateEvent(runID string, st *AgentRunState) ProgressEvent {
	return ProgressEvent{
		RunID:     runID,
		Kind:      EventKindState,
		Index:     st.Index,
		AgentName: st.Spec.Name,
		Status:    st.Status,
		Data:      st.Data,
		Error:     st.Error,
		Duration:  st.Duration(),
		Ts:        time.Now().UnixMilli(),
	}
}
