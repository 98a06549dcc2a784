package helpers

import (
	"context"
	"iter"
	"strings"
	"sync"

	"github.com/xiaot623/settle/internal/adapter/llm"
	"github.com/xiaot623/settle/internal/domain"
)

// Script is one scripted model response: the deltas to stream, then an
// optional terminal error.
type Script struct {
	Deltas []string
	Err    *llm.APIError
}

// Reply scripts a response streamed in one delta per argument.
func Reply(deltas ...string) Script {
	return Script{Deltas: deltas}
}

// Fail scripts a response that reports an upstream error after any deltas.
func Fail(message string, deltas ...string) Script {
	return Script{Deltas: deltas, Err: &llm.APIError{Message: message}}
}

// ScriptedStreamer replays scripts in call order and records every request.
type ScriptedStreamer struct {
	mu        sync.Mutex
	scripts   []Script
	requests  []*llm.ChatCompletionRequest
	endpoints []llm.Endpoint
}

// NewScriptedStreamer creates a streamer answering calls with scripts in order.
// Calls beyond the last script receive an upstream error.
func NewScriptedStreamer(scripts ...Script) *ScriptedStreamer {
	return &ScriptedStreamer{scripts: scripts}
}

// Stream yields the next script's cumulative text.
func (s *ScriptedStreamer) Stream(ctx context.Context, ep llm.Endpoint, req *llm.ChatCompletionRequest) iter.Seq[llm.Chunk] {
	s.mu.Lock()
	n := len(s.requests)
	s.requests = append(s.requests, req)
	s.endpoints = append(s.endpoints, ep)
	script := Fail("no scripted response")
	if n < len(s.scripts) {
		script = s.scripts[n]
	}
	s.mu.Unlock()

	return func(yield func(llm.Chunk) bool) {
		var text strings.Builder
		for _, d := range script.Deltas {
			if ctx.Err() != nil {
				yield(llm.Chunk{Err: &llm.APIError{Message: ctx.Err().Error(), Type: "transport_error"}})
				return
			}
			text.WriteString(d)
			if !yield(llm.Chunk{Text: text.String()}) {
				return
			}
		}
		if script.Err != nil {
			yield(llm.Chunk{Err: script.Err})
		}
	}
}

// Calls returns how many streams were opened.
func (s *ScriptedStreamer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// Prompts returns the user prompt of every recorded request.
func (s *ScriptedStreamer) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.requests))
	for _, req := range s.requests {
		if len(req.Messages) > 0 {
			out = append(out, req.Messages[len(req.Messages)-1].Content)
		}
	}
	return out
}

// Requests returns every recorded request.
func (s *ScriptedStreamer) Requests() []*llm.ChatCompletionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*llm.ChatCompletionRequest(nil), s.requests...)
}

// Endpoints returns the endpoint of every recorded request.
func (s *ScriptedStreamer) Endpoints() []llm.Endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.Endpoint(nil), s.endpoints...)
}

// Recorder is a progress sink that keeps every event.
type Recorder struct {
	mu     sync.Mutex
	events []domain.ProgressEvent
}

// Notify records ev.
func (r *Recorder) Notify(ev domain.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []domain.ProgressEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.ProgressEvent(nil), r.events...)
}

// Statuses returns the state transitions recorded for the unit at index.
func (r *Recorder) Statuses(index int) []domain.AgentStatus {
	var out []domain.AgentStatus
	for _, ev := range r.Events() {
		if ev.Kind == domain.EventKindState && ev.Index == index {
			out = append(out, ev.Status)
		}
	}
	return out
}

// OfKind returns the recorded events of kind.
func (r *Recorder) OfKind(kind domain.EventKind) []domain.ProgressEvent {
	var out []domain.ProgressEvent
	for _, ev := range r.Events() {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}
