// Package engine runs the review pipeline: the orchestrator plans, the planned
// agents run one after another, and a final evaluation closes the run.
package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/settle/internal/agent"
	"github.com/xiaot623/settle/internal/config"
	"github.com/xiaot623/settle/internal/domain"
	"github.com/xiaot623/settle/internal/policy"
)

// Executor runs one agent to a terminal state.
type Executor interface {
	Execute(ctx context.Context, state *domain.AgentRunState, req agent.Request) (domain.AgentResult, error)
}

// StepPolicy decides whether a planned step may run.
type StepPolicy interface {
	Admit(ctx context.Context, agent string, index, planLength int) (policy.Decision, error)
}

// Engine drives runs over a fixed catalog. It keeps no per-run state, but a
// single Engine must not be used for concurrent runs.
type Engine struct {
	executor Executor
	catalog  *config.Catalog
	policy   StepPolicy
}

// New creates an engine. policy may be nil, admitting every step.
func New(executor Executor, catalog *config.Catalog, policy StepPolicy) *Engine {
	return &Engine{
		executor: executor,
		catalog:  catalog,
		policy:   policy,
	}
}

type runOptions struct {
	sink   domain.ProgressSink
	apiKey string
	runID  string
}

// RunOption configures a single run.
type RunOption func(*runOptions)

// WithSink sets the progress sink for the run.
func WithSink(sink domain.ProgressSink) RunOption {
	return func(o *runOptions) {
		if sink != nil {
			o.sink = sink
		}
	}
}

// WithAPIKey passes caller credentials through to the model API.
func WithAPIKey(key string) RunOption {
	return func(o *runOptions) { o.apiKey = key }
}

// WithRunID sets the run id carried by every notification.
func WithRunID(id string) RunOption {
	return func(o *runOptions) {
		if id != "" {
			o.runID = id
		}
	}
}

// NewRunID returns a fresh run id.
func NewRunID() string {
	return "run_" + uuid.New().String()[:8]
}

// Run executes the whole pipeline over docs and returns the run's context.
// Only the orchestrator and final-evaluation steps can fail the run; those
// failures are returned as *RunError carrying the partial context.
func (e *Engine) Run(ctx context.Context, docs []domain.Document, opts ...RunOption) (*domain.RunContext, error) {
	o := runOptions{sink: domain.DiscardSink, runID: NewRunID()}
	for _, opt := range opts {
		opt(&o)
	}
	rc := domain.NewRunContext(o.runID, docs)

	if e.catalog == nil || e.catalog.Orchestrator.Name == "" {
		return rc, &RunError{Stage: StagePlan, Run: rc, Err: &domain.ConfigurationError{Message: "no orchestrator agent configured"}}
	}
	if err := ctx.Err(); err != nil {
		return rc, &RunError{Stage: StagePlan, Run: rc, Err: err}
	}

	// 1. Plan
	orchestrator := e.catalog.Orchestrator
	orchestrator.IsOrchestrator = true
	planResult, err := e.executor.Execute(ctx, rc.Schedule(orchestrator), agent.Request{
		RunID:     rc.ID,
		Role:      agent.RoleOrchestrator,
		Documents: docs,
		Catalog:   e.catalog.Agents,
		APIKey:    o.apiKey,
		Sink:      o.sink,
	})
	if err != nil {
		return rc, &RunError{Stage: StagePlan, Run: rc, Err: err}
	}
	rc.Plan = agent.ParsePlan(planResult)
	o.sink.Notify(domain.ProgressEvent{
		RunID:     rc.ID,
		Kind:      domain.EventKindPlan,
		AgentName: orchestrator.Name,
		Plan:      rc.Plan,
		Ts:        time.Now().UnixMilli(),
	})

	if len(rc.Plan.AgentSequence) == 0 {
		log.Printf("INFO: run %s: empty plan, nothing to review", rc.ID)
		return rc, nil
	}

	// 2. Planned agents, strictly in order
	for i, name := range rc.Plan.AgentSequence {
		if err := ctx.Err(); err != nil {
			return rc, &RunError{Stage: StageAgents, Run: rc, Err: err}
		}

		spec, ok := e.catalog.Lookup(name)
		if !ok {
			e.warn(o.sink, rc.ID, name, fmt.Sprintf("unknown agent %q in plan, skipping", name))
			continue
		}
		if reason, admitted := e.admit(ctx, name, i, len(rc.Plan.AgentSequence)); !admitted {
			e.warn(o.sink, rc.ID, name, fmt.Sprintf("agent %q skipped by plan policy: %s", name, reason))
			continue
		}

		state := rc.Schedule(spec)
		result, err := e.executor.Execute(ctx, state, agent.Request{
			RunID:        rc.ID,
			Role:         agent.RoleDomain,
			Documents:    docs,
			PriorResults: append([]domain.AgentResult(nil), rc.Results...),
			APIKey:       o.apiKey,
			Sink:         o.sink,
		})
		if err != nil {
			log.Printf("WARN: run %s: agent %s failed: %v", rc.ID, name, err)
			o.sink.Notify(domain.ProgressEvent{
				RunID:     rc.ID,
				Kind:      domain.EventKindError,
				Index:     state.Index,
				AgentName: name,
				Status:    state.Status,
				Error:     err.Error(),
				Ts:        time.Now().UnixMilli(),
			})
			continue
		}
		rc.Append(result)
	}

	// 3. Final evaluation over everything that succeeded
	if err := ctx.Err(); err != nil {
		return rc, &RunError{Stage: StageAgents, Run: rc, Err: err}
	}
	final, err := e.executor.Execute(ctx, rc.Schedule(e.finalSpec()), agent.Request{
		RunID:        rc.ID,
		Role:         agent.RoleEvaluation,
		Documents:    docs,
		PriorResults: append([]domain.AgentResult(nil), rc.Results...),
		APIKey:       o.apiKey,
		Sink:         o.sink,
	})
	if err != nil {
		return rc, &RunError{Stage: StageFinalEvaluation, Run: rc, Err: err}
	}
	rc.FinalEvaluation = &final
	return rc, nil
}

func (e *Engine) finalSpec() domain.AgentSpec {
	spec := e.catalog.FinalEvaluation
	if spec.Name == "" {
		spec.Name = config.DefaultFinalEvaluationName
	}
	return spec
}

// admit consults the plan policy. A policy that cannot be evaluated skips the step.
func (e *Engine) admit(ctx context.Context, name string, index, planLength int) (string, bool) {
	if e.policy == nil {
		return "", true
	}
	d, err := e.policy.Admit(ctx, name, index, planLength)
	if err != nil {
		return err.Error(), false
	}
	return d.Reason, d.Allowed()
}

func (e *Engine) warn(sink domain.ProgressSink, runID, name, msg string) {
	log.Printf("WARN: run %s: %s", runID, msg)
	sink.Notify(domain.ProgressEvent{
		RunID:     runID,
		Kind:      domain.EventKindWarning,
		Index:     -1,
		AgentName: name,
		Message:   msg,
		Ts:        time.Now().UnixMilli(),
	})
}
