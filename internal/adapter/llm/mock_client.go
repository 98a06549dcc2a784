package llm

import (
	"context"
	"encoding/json"
	"iter"
	"log"
	"strings"
)

const (
	// ModeMock selects the offline mock client.
	ModeMock = "MOCK"
)

// NewStreamer returns a MockClient when mode is MOCK, otherwise a real Client.
func NewStreamer(mode string, agentNames []string) Streamer {
	if strings.EqualFold(mode, ModeMock) {
		log.Println("INFO: SETTLE_MODE=MOCK detected, using mock LLM client")
		return NewMockClient(agentNames)
	}
	return NewClient()
}

// MockClient fabricates well-formed responses so the pipeline can be exercised
// without a model API. The orchestrator prompt gets a plan over every known
// agent, the final-evaluation prompt gets an APPROVE verdict, and every other
// prompt gets a domain result.
type MockClient struct {
	agentNames []string
	chunkSize  int
}

// Ensure MockClient implements Streamer.
var _ Streamer = (*MockClient)(nil)

// NewMockClient creates a new mock client planning over agentNames.
func NewMockClient(agentNames []string) *MockClient {
	return &MockClient{agentNames: agentNames, chunkSize: 10}
}

// Stream yields the mock response in cumulative chunks.
func (m *MockClient) Stream(ctx context.Context, ep Endpoint, req *ChatCompletionRequest) iter.Seq[Chunk] {
	return func(yield func(Chunk) bool) {
		response := m.generateMockResponse(req)
		for end := m.chunkSize; ; end += m.chunkSize {
			if ctx.Err() != nil {
				yield(errorChunk("transport_error", ctx.Err().Error()))
				return
			}
			if end > len(response) {
				end = len(response)
			}
			if !yield(Chunk{Text: response[:end]}) {
				return
			}
			if end == len(response) {
				return
			}
		}
	}
}

func (m *MockClient) generateMockResponse(req *ChatCompletionRequest) string {
	var prompt string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			prompt = req.Messages[i].Content
			break
		}
	}

	var v any
	switch {
	case strings.Contains(prompt, `"agentPlan"`):
		plan := m.agentNames
		if plan == nil {
			plan = []string{}
		}
		v = map[string]any{
			"scenario":        "[MOCK] standard review",
			"reasoning":       "[MOCK] every configured agent reviews the documents once",
			"agentPlan":       plan,
			"expectedOutcome": "[MOCK] a verdict over all documents",
		}
	case strings.Contains(prompt, `"verdict"`):
		v = map[string]any{
			"verdict":         "APPROVE",
			"confidenceScore": 0.5,
			"reasoning":       "[MOCK] no model was consulted",
			"keyFactors":      []string{"[MOCK] mock mode"},
			"riskLevel":       "low",
			"criticalIssues":  []string{},
			"recommendations": []string{"[MOCK] rerun against a real model"},
		}
	default:
		v = map[string]any{
			"summary":         "[MOCK] " + truncate(prompt, 60),
			"findings":        "[MOCK] nothing checked",
			"recommendations": "[MOCK] none",
			"concerns":        "",
		}
	}
	data, _ := json.Marshal(v)
	return string(data)
}

// truncate truncates a string to the given length.
func truncate(s string, maxLen int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
