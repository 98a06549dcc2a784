package domain

import (
	"fmt"
	"time"
)

// AgentRunState tracks one scheduled unit of work. It is mutated only by the
// agent runner that owns it and is kept for the life of the run.
type AgentRunState struct {
	Index     int         `json:"index"`
	Spec      AgentSpec   `json:"spec"`
	Status    AgentStatus `json:"status"`
	Data      any         `json:"data"`
	RawText   string      `json:"raw_text,omitempty"`
	Error     string      `json:"error,omitempty"`
	StartedAt *time.Time  `json:"started_at,omitempty"`
	EndedAt   *time.Time  `json:"ended_at,omitempty"`
}

// NewAgentRunState creates a pending state for spec.
func NewAgentRunState(index int, spec AgentSpec) *AgentRunState {
	return &AgentRunState{
		Index:  index,
		Spec:   spec,
		Status: AgentStatusPending,
	}
}

// Transition moves the state to next. Streaming may repeat; every other move must
// go strictly forward.
func (s *AgentRunState) Transition(next AgentStatus) error {
	if next.rank() < 0 {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, next)
	}
	if s.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, s.Status)
	}
	cur := s.Status.rank()
	switch {
	case next == AgentStatusStreaming && s.Status == AgentStatusStreaming:
	case next.rank() <= cur:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, next)
	case next == AgentStatusStreaming && s.Status != AgentStatusProcessing:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, next)
	case next.IsTerminal() && s.Status == AgentStatusPending && next == AgentStatusCompleted:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, next)
	}

	now := time.Now()
	if next == AgentStatusProcessing {
		s.StartedAt = &now
	}
	if next.IsTerminal() {
		s.EndedAt = &now
	}
	s.Status = next
	return nil
}

// Duration returns how long the unit ran, or zero if it has not finished.
func (s *AgentRunState) Duration() time.Duration {
	if s.StartedAt == nil || s.EndedAt == nil {
		return 0
	}
	return s.EndedAt.Sub(*s.StartedAt)
}

// Snapshot returns a copy safe to hand to sinks.
func (s *AgentRunState) Snapshot() AgentRunState {
	return *s
}
