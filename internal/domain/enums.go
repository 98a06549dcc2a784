// Package domain defines the core domain models for the review pipeline.
package domain

// AgentStatus represents the lifecycle position of one scheduled unit of work.
type AgentStatus string

const (
	AgentStatusPending    AgentStatus = "pending"
	AgentStatusProcessing AgentStatus = "processing"
	AgentStatusStreaming  AgentStatus = "streaming"
	AgentStatusCompleted  AgentStatus = "completed"
	AgentStatusFailed     AgentStatus = "failed"
)

// IsTerminal reports whether no further transitions are allowed.
func (s AgentStatus) IsTerminal() bool {
	return s == AgentStatusCompleted || s == AgentStatusFailed
}

// rank orders statuses along the forward-only lifecycle.
func (s AgentStatus) rank() int {
	switch s {
	case AgentStatusPending:
		return 0
	case AgentStatusProcessing:
		return 1
	case AgentStatusStreaming:
		return 2
	case AgentStatusCompleted, AgentStatusFailed:
		return 3
	}
	return -1
}

// RunStatus represents the status of a pipeline run.
type RunStatus string

const (
	RunStatusCreated   RunStatus = "CREATED"
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusDone      RunStatus = "DONE"
	RunStatusFailed    RunStatus = "FAILED"
	RunStatusCancelled RunStatus = "CANCELLED"
)

// IsTerminal reports whether the run has settled.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusDone, RunStatusFailed, RunStatusCancelled:
		return true
	}
	return false
}

// EventKind classifies a progress notification.
type EventKind string

const (
	// EventKindState is emitted for every AgentRunState transition and streamed chunk.
	EventKindState EventKind = "state"
	// EventKindWarning is emitted when a planned step is skipped.
	EventKindWarning EventKind = "warning"
	// EventKindError is emitted when a planned agent fails and the run continues.
	EventKindError EventKind = "error"
	// EventKindPlan is emitted once the orchestrator has produced the execution plan.
	EventKindPlan EventKind = "plan"
	// EventKindRun is emitted when the whole run settles.
	EventKindRun EventKind = "run"
)

// ResultKind tags the shape of an AgentResult.
type ResultKind string

const (
	ResultKindDomain     ResultKind = "domain"
	ResultKindEvaluation ResultKind = "evaluation"
	ResultKindRawText    ResultKind = "raw_text"
)
