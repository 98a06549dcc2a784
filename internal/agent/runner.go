// Package agent drives a single agent run: render the role prompt, stream the
// model response, decode it incrementally and settle the result.
package agent

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/xiaot623/settle/internal/adapter/llm"
	"github.com/xiaot623/settle/internal/domain"
	"github.com/xiaot623/settle/internal/partialjson"
)

// Role selects the prompt template and the result shape of a run.
type Role string

const (
	RoleOrchestrator Role = "orchestrator"
	RoleDomain       Role = "domain"
	RoleEvaluation   Role = "evaluation"
)

// Renderer renders a named prompt template.
type Renderer interface {
	Render(name string, vars map[string]any) (string, error)
}

// Settings configures every model call made by a Runner.
type Settings struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature string
	// Timeout bounds one agent run; zero means no limit beyond the caller's context.
	Timeout time.Duration
}

// Request carries the inputs of one agent run.
type Request struct {
	RunID        string
	Role         Role
	Documents    []domain.Document
	PriorResults []domain.AgentResult
	// Catalog lists the agents offered to the orchestrator.
	Catalog []domain.AgentSpec
	// APIKey overrides Settings.APIKey when set.
	APIKey string
	Sink   domain.ProgressSink
}

// Runner executes agent runs against a model stream.
type Runner struct {
	streamer llm.Streamer
	renderer Renderer
	settings Settings
}

// NewRunner creates a new runner.
func NewRunner(streamer llm.Streamer, renderer Renderer, settings Settings) *Runner {
	return &Runner{
		streamer: streamer,
		renderer: renderer,
		settings: settings,
	}
}

// Execute moves state from Pending to Completed or Failed, notifying req.Sink
// on every transition and streamed chunk. A response that is not a JSON object
// still completes, as a raw-text result.
func (r *Runner) Execute(ctx context.Context, state *domain.AgentRunState, req Request) (domain.AgentResult, error) {
	sink := req.Sink
	if sink == nil {
		sink = domain.DiscardSink
	}
	notify := func() { sink.Notify(domain.StateEvent(req.RunID, state)) }
	fail := func(err error) (domain.AgentResult, error) {
		state.Error = err.Error()
		if tErr := state.Transition(domain.AgentStatusFailed); tErr != nil {
			log.Printf("WARN: %s: %v", state.Spec.Name, tErr)
		}
		notify()
		return domain.AgentResult{}, err
	}

	if err := state.Transition(domain.AgentStatusProcessing); err != nil {
		return domain.AgentResult{}, err
	}
	notify()

	apiKey := req.APIKey
	if apiKey == "" {
		apiKey = r.settings.APIKey
	}
	if apiKey == "" {
		return fail(&domain.ConfigurationError{Message: "no model API key configured (set LLM_API_KEY or send an Authorization bearer token)"})
	}
	if r.settings.Model == "" {
		return fail(&domain.ConfigurationError{Message: "no model name configured"})
	}

	text, err := r.renderPrompt(state.Spec, req)
	if err != nil {
		return fail(err)
	}

	if r.settings.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.settings.Timeout)
		defer cancel()
	}

	ep := llm.Endpoint{BaseURL: r.settings.BaseURL, APIKey: apiKey}
	chatReq := llm.NewChatRequest(r.settings.Model, text, r.settings.Temperature)

	var response string
	var upstream *llm.APIError
	for chunk := range r.streamer.Stream(ctx, ep, chatReq) {
		if chunk.Err != nil {
			upstream = chunk.Err
			break
		}
		if chunk.Text == "" {
			continue
		}
		response = chunk.Text
		if err := state.Transition(domain.AgentStatusStreaming); err != nil {
			log.Printf("WARN: %s: %v", state.Spec.Name, err)
		}
		state.RawText = response
		if v := partialjson.TryDecode(response); v != nil {
			state.Data = v
		} else {
			state.Data = map[string]any{"raw": response}
		}
		notify()
	}

	if err := ctx.Err(); err != nil {
		return fail(fmt.Errorf("%s stopped: %w", state.Spec.Name, err))
	}
	if upstream != nil {
		return fail(&domain.UpstreamError{Agent: state.Spec.Name, Detail: upstream.Message, Err: upstream})
	}

	result := settle(state.Spec, req.Role, response)
	state.RawText = response
	state.Data = result
	if err := state.Transition(domain.AgentStatusCompleted); err != nil {
		return fail(err)
	}
	notify()
	return result, nil
}

// settle strictly parses the final text, falling back to a raw-text result.
func settle(spec domain.AgentSpec, role Role, text string) domain.AgentResult {
	fields, err := partialjson.Decode(text)
	if err != nil {
		log.Printf("WARN: %s returned a malformed response, keeping raw text: %v", spec.Name, err)
		return domain.NewRawTextResult(spec, text)
	}
	kind := domain.ResultKindDomain
	if role == RoleEvaluation {
		kind = domain.ResultKindEvaluation
	}
	return domain.NewDomainResult(spec, kind, fields)
}
