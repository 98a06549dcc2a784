package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned when an AgentRunState would move backwards
// or leave a terminal status.
var ErrInvalidTransition = errors.New("invalid agent status transition")

// ConfigurationError reports missing credentials or catalog entries. It is raised
// before any network call is made.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Message
}

// UpstreamError reports an explicit error payload from the model API or a
// transport failure while streaming.
type UpstreamError struct {
	Agent  string
	Detail string
	Err    error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("LLM call failed: %s. Please check: 1) API configured 2) key valid 3) model name correct", e.Detail)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
