package agent

import (
	"strings"

	"github.com/xiaot623/settle/internal/domain"
)

// ParsePlan reads an execution plan from the orchestrator's result. The agent
// list may be given as "agentPlan" or "agentSequence", with entries as names or
// as objects carrying "agent" or "name". A result without a usable list yields
// an empty plan.
func ParsePlan(result domain.AgentResult) *domain.ExecutionPlan {
	plan := &domain.ExecutionPlan{
		Scenario:        result.Text("scenario"),
		Reasoning:       result.Text("reasoning"),
		ExpectedOutcome: result.Text("expectedOutcome"),
		AgentSequence:   []string{},
	}

	raw, ok := result.Fields["agentPlan"]
	if !ok {
		raw = result.Fields["agentSequence"]
	}
	var items []any
	switch t := raw.(type) {
	case []any:
		items = t
	case []string:
		for _, s := range t {
			items = append(items, s)
		}
	}

	for _, item := range items {
		if name := planEntryName(item); name != "" {
			plan.AgentSequence = append(plan.AgentSequence, name)
		}
	}
	return plan
}

func planEntryName(item any) string {
	switch t := item.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]any:
		for _, key := range []string{"agent", "name"} {
			if s, ok := t[key].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}
