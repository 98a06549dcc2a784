package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/settle/internal/adapter/llm"
	"github.com/xiaot623/settle/internal/domain"
	"github.com/xiaot623/settle/internal/prompt"
	"github.com/xiaot623/settle/prompts"
)

func TestExecuteTruncatedStreamFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"{\\\"summary\\\":\\\"par\"}}]}\n\n")
	}))
	defer server.Close()

	runner := NewRunner(llm.NewClient(), prompt.NewRenderer(prompts.FS), Settings{
		BaseURL: server.URL,
		APIKey:  "key",
		Model:   "test-model",
	})
	state := domain.NewAgentRunState(1, vendorSpec)

	_, err := runner.Execute(context.Background(), state, Request{Role: RoleDomain, Documents: testDocs})

	var upErr *domain.UpstreamError
	require.True(t, errors.As(err, &upErr), "got %v", err)
	assert.Equal(t, "stream ended before completion", upErr.Detail)
	assert.Equal(t, domain.AgentStatusFailed, state.Status)
	assert.Equal(t, map[string]any{"summary": "par"}, state.Data)
}
