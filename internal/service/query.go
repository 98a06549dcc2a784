package service

import (
	"context"
	"fmt"

	"github.com/xiaot623/settle/internal/domain"
)

// GetRun returns the stored summary of a run.
func (s *Service) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if run == nil {
		return nil, ErrRunNotFound
	}
	return run, nil
}

// ListRuns returns recent runs, newest first.
func (s *Service) ListRuns(ctx context.Context, limit int) ([]domain.Run, error) {
	runs, err := s.store.ListRuns(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// GetRunEvents returns recorded progress events of a run.
func (s *Service) GetRunEvents(ctx context.Context, runID string, afterTs int64, types []string, limit int) ([]domain.Event, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	events, err := s.store.GetEvents(ctx, runID, afterTs, types, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get run events: %w", err)
	}
	return events, nil
}

// AgentCatalog is the read-only view of the configured agents.
type AgentCatalog struct {
	Model           string             `json:"model"`
	Orchestrator    domain.AgentSpec   `json:"orchestrator"`
	FinalEvaluation domain.AgentSpec   `json:"final_evaluation"`
	Agents          []domain.AgentSpec `json:"agents"`
}

// ListAgents returns the agent catalog.
func (s *Service) ListAgents() AgentCatalog {
	if s.catalog == nil {
		return AgentCatalog{Agents: []domain.AgentSpec{}}
	}
	model := s.catalog.Model.Name
	if s.config != nil && s.config.LLMModel != "" {
		model = s.config.LLMModel
	}
	agents := append([]domain.AgentSpec{}, s.catalog.Agents...)
	return AgentCatalog{
		Model:           model,
		Orchestrator:    s.catalog.Orchestrator,
		FinalEvaluation: s.catalog.FinalEvaluation,
		Agents:          agents,
	}
}
