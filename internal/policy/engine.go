// Package policy admits planned pipeline steps through an OPA rego policy.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// Actions a policy may return.
const (
	ActionAllow = "allow"
	ActionSkip  = "skip"
)

// Decision is the outcome of evaluating one planned step.
type Decision struct {
	Action string
	Reason string
}

// Allowed reports whether the step may run.
func (d Decision) Allowed() bool {
	return d.Action == ActionAllow
}

// Engine is the OPA policy engine.
type Engine struct {
	query    rego.PreparedEvalQuery
	disabled []string
}

// NewEngine creates a new policy engine with the given policy content.
// disabledAgents is handed to the policy as input.disabled_agents.
func NewEngine(ctx context.Context, policyContent string, disabledAgents []string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.plan_policy.decision"),
		rego.Module("plan_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	if disabledAgents == nil {
		disabledAgents = []string{}
	}
	return &Engine{query: query, disabled: disabledAgents}, nil
}

// Admit evaluates the policy for the step at index of a plan of planLength steps.
func (e *Engine) Admit(ctx context.Context, agent string, index, planLength int) (Decision, error) {
	disabled := make([]any, len(e.disabled))
	for i, name := range e.disabled {
		disabled[i] = name
	}
	input := map[string]any{
		"agent":           agent,
		"index":           index,
		"plan_length":     planLength,
		"disabled_agents": disabled,
	}

	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return Decision{}, fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		// The policy is expected to define a fallback; an undefined decision admits the step.
		return Decision{Action: ActionAllow, Reason: "default"}, nil
	}

	switch val := results[0].Expressions[0].Value.(type) {
	case string:
		return Decision{Action: val}, nil
	case map[string]any:
		d := Decision{}
		d.Action, _ = val["action"].(string)
		d.Reason, _ = val["reason"].(string)
		if d.Action == "" {
			return Decision{}, fmt.Errorf("policy decision has no action: %v", val)
		}
		return d, nil
	default:
		return Decision{}, fmt.Errorf("unexpected policy decision type %T", val)
	}
}

// DefaultPolicy skips disabled agents and any step past max_steps.
const DefaultPolicy = `
package plan_policy

import rego.v1

max_steps := 32

decision := {"action": "skip", "reason": "agent is disabled"} if {
	input.agent in input.disabled_agents
} else := {"action": "skip", "reason": sprintf("plan exceeds %d steps", [max_steps])} if {
	input.index >= max_steps
} else := {"action": "allow", "reason": ""}
`
