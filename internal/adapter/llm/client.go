// Package llm provides a streaming client for OpenAI-compatible chat completion APIs.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"math"
	"net/http"
	"strconv"
	"strings"
)

// Endpoint identifies the model API and the caller-supplied credentials.
type Endpoint struct {
	BaseURL string
	APIKey  string
}

// ChatCompletionRequest represents the OpenAI chat completion request.
type ChatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Temperature *float64      `json:"temperature,omitempty"`
}

// ChatMessage represents a chat message.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Choice represents a completion choice.
type Choice struct {
	Index        int          `json:"index"`
	Delta        *ChatMessage `json:"delta,omitempty"`
	Message      *ChatMessage `json:"message,omitempty"`
	FinishReason string       `json:"finish_reason,omitempty"`
}

// StreamChunk represents a single SSE frame from the stream.
type StreamChunk struct {
	ID      string          `json:"id"`
	Model   string          `json:"model"`
	Choices []Choice        `json:"choices"`
	Error   json.RawMessage `json:"error,omitempty"`
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error json.RawMessage `json:"error"`
}

// APIError represents the error details.
type APIError struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Status  int    `json:"-"`
}

func (e *APIError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("LLM API error [%d]: %s", e.Status, e.Message)
	}
	return e.Message
}

// Chunk is one element of a response stream: either the cumulative text
// received so far or a terminal error.
type Chunk struct {
	Text string
	Err  *APIError
}

// Streamer opens streaming chat completions.
type Streamer interface {
	Stream(ctx context.Context, ep Endpoint, req *ChatCompletionRequest) iter.Seq[Chunk]
}

// Ensure Client implements Streamer.
var _ Streamer = (*Client)(nil)

// Client is an OpenAI-compatible streaming client.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a new client. Streams are bounded by the caller's context,
// not by an HTTP client timeout.
func NewClient() *Client {
	return &Client{httpClient: &http.Client{}}
}

// NewChatRequest builds a single-message streaming request.
func NewChatRequest(model, prompt, temperature string) *ChatCompletionRequest {
	return &ChatCompletionRequest{
		Model:       model,
		Messages:    []ChatMessage{{Role: "user", Content: prompt}},
		Stream:      true,
		Temperature: ResolveTemperature(temperature),
	}
}

// ResolveTemperature parses a configured temperature. It returns nil, meaning
// the field is left out of the request, when the value is the provider default
// of 1 or is not a finite number; some models reject an explicit default.
func ResolveTemperature(raw string) *float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f == 1 {
		return nil
	}
	return &f
}

// Stream posts req to {BaseURL}/chat/completions and yields the cumulative
// response text after every non-empty delta. Failures are yielded as a final
// Chunk with Err set; the sequence never ends early without one. Breaking out
// of the range loop aborts the underlying request.
func (c *Client) Stream(ctx context.Context, ep Endpoint, req *ChatCompletionRequest) iter.Seq[Chunk] {
	return func(yield func(Chunk) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		req.Stream = true
		body, err := json.Marshal(req)
		if err != nil {
			yield(errorChunk("request_error", fmt.Sprintf("failed to marshal request: %v", err)))
			return
		}

		url := strings.TrimSuffix(ep.BaseURL, "/") + "/chat/completions"
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			yield(errorChunk("request_error", fmt.Sprintf("failed to create request: %v", err)))
			return
		}
		setHeaders(httpReq, ep.APIKey)

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			yield(errorChunk("transport_error", fmt.Sprintf("failed to send request: %v", err)))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(resp.Body)
			apiErr := decodeAPIError(respBody)
			if apiErr == nil {
				apiErr = &APIError{Message: strings.TrimSpace(string(respBody)), Type: "http_error"}
			}
			apiErr.Status = resp.StatusCode
			yield(Chunk{Err: apiErr})
			return
		}

		reader := bufio.NewReader(resp.Body)
		var text strings.Builder
		// finished records a finish_reason; EOF before it or [DONE] is a truncation.
		finished := false
		for {
			line, readErr := reader.ReadString('\n')
			if readErr != nil && !errors.Is(readErr, io.EOF) {
				yield(errorChunk("transport_error", fmt.Sprintf("failed to read stream: %v", readErr)))
				return
			}

			data, ok := sseData(line)
			switch {
			case !ok:
			case data == "[DONE]":
				return
			default:
				var frame StreamChunk
				if err := json.Unmarshal([]byte(data), &frame); err != nil {
					// Skip malformed frames
					break
				}
				if apiErr := errorFrom(frame.Error); apiErr != nil {
					yield(Chunk{Err: apiErr})
					return
				}
				if len(frame.Choices) > 0 && frame.Choices[0].FinishReason != "" {
					finished = true
				}
				delta := frameText(&frame)
				if delta == "" {
					break
				}
				text.WriteString(delta)
				if !yield(Chunk{Text: text.String()}) {
					return
				}
			}

			if errors.Is(readErr, io.EOF) {
				if !finished {
					yield(errorChunk("transport_error", "stream ended before completion"))
				}
				return
			}
		}
	}
}

func sseData(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "data:") {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(line, "data:")), true
}

func frameText(frame *StreamChunk) string {
	if len(frame.Choices) == 0 {
		return ""
	}
	choice := frame.Choices[0]
	if choice.Delta != nil {
		return choice.Delta.Content
	}
	if choice.Message != nil {
		return choice.Message.Content
	}
	return ""
}

func decodeAPIError(body []byte) *APIError {
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil {
		return nil
	}
	return errorFrom(errResp.Error)
}

// errorFrom accepts both {"error":{"message":...}} and {"error":"text"}.
func errorFrom(raw json.RawMessage) *APIError {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return &APIError{Message: s}
	}
	var apiErr APIError
	if err := json.Unmarshal(raw, &apiErr); err != nil {
		return &APIError{Message: string(raw)}
	}
	if apiErr.Message == "" {
		apiErr.Message = string(raw)
	}
	return &apiErr
}

func errorChunk(typ, msg string) Chunk {
	return Chunk{Err: &APIError{Message: msg, Type: typ}}
}

// setHeaders sets common request headers.
func setHeaders(req *http.Request, apiKey string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
}
