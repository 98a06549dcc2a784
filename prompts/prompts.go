// Package prompts embeds the default prompt templates.
package prompts

import "embed"

// FS holds orchestrator.md, agent.md and final_evaluation.md.
//
//go:embed *.md
var FS embed.FS
