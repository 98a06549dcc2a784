package agent

import (
	"fmt"
	"strings"

	"github.com/xiaot623/settle/internal/domain"
	"github.com/xiaot623/settle/internal/prompt"
)

const (
	orchestratorPreviewLen = 300
	contextPreviewLen      = 500
)

func (r *Runner) renderPrompt(spec domain.AgentSpec, req Request) (string, error) {
	switch req.Role {
	case RoleOrchestrator:
		return r.renderer.Render(prompt.TemplateOrchestrator, orchestratorVars(spec, req))
	case RoleEvaluation:
		return r.renderer.Render(prompt.TemplateFinalEvaluation, evaluationVars(req))
	case RoleDomain:
		return r.renderer.Render(prompt.TemplateAgent, domainVars(spec, req))
	}
	return "", fmt.Errorf("unknown agent role %q", req.Role)
}

func orchestratorVars(spec domain.AgentSpec, req Request) map[string]any {
	agents := make([]map[string]any, 0, len(req.Catalog))
	for _, a := range req.Catalog {
		if a.IsOrchestrator {
			continue
		}
		agents = append(agents, map[string]any{
			"name":        a.Name,
			"description": a.Description,
			"role":        a.Role,
			"task":        a.Task,
		})
	}

	docs := make([]map[string]any, 0, len(req.Documents))
	for _, d := range req.Documents {
		docs = append(docs, map[string]any{
			"filename": d.Filename,
			"type":     d.MediaType,
			"preview":  d.Preview(orchestratorPreviewLen),
		})
	}

	return map[string]any{
		"orchestrator_name": spec.Name,
		"orchestrator_role": spec.Role,
		"orchestrator_task": spec.Task,
		"agents":            agents,
		"document_count":    len(req.Documents),
		"documents":         docs,
	}
}

func domainVars(spec domain.AgentSpec, req Request) map[string]any {
	var ctx strings.Builder
	ctx.WriteString("Documents:\n")
	for _, d := range req.Documents {
		fmt.Fprintf(&ctx, "- %s: %s\n", d.Filename, d.Preview(contextPreviewLen))
	}
	if len(req.PriorResults) > 0 {
		ctx.WriteString("\nPrevious agent results:\n")
		for _, res := range req.PriorResults {
			fmt.Fprintf(&ctx, "- %s (%s): %s\n", res.AgentName, res.StageLabel, res.Summary())
		}
	}

	var full strings.Builder
	for _, d := range req.Documents {
		fmt.Fprintf(&full, "=== %s ===\n%s\n\n", d.Filename, d.Text)
	}

	return map[string]any{
		"agent_name": spec.Name,
		"stage":      spec.StageLabel,
		"role":       spec.Role,
		"task":       spec.Task,
		"context":    strings.TrimRight(ctx.String(), "\n"),
		"documents":  strings.TrimRight(full.String(), "\n"),
	}
}

func evaluationVars(req Request) map[string]any {
	results := make([]map[string]any, 0, len(req.PriorResults))
	for _, res := range req.PriorResults {
		results = append(results, map[string]any{
			"agent":           res.AgentName,
			"stage":           res.StageLabel,
			"summary":         res.Summary(),
			"concerns":        res.Text(domain.FieldConcerns),
			"recommendations": res.Text(domain.FieldRecommendations),
		})
	}

	names := make([]string, 0, len(req.Documents))
	for _, d := range req.Documents {
		names = append(names, d.Filename)
	}

	return map[string]any{
		"filenames": strings.Join(names, ", "),
		"results":   results,
	}
}
