package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/settle/internal/domain"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetricsCountsAgentOutcomes(t *testing.T) {
	m := New()
	state := func(agent string, status domain.AgentStatus, d time.Duration) {
		m.Notify(domain.ProgressEvent{Kind: domain.EventKindState, AgentName: agent, Status: status, Duration: d})
	}

	state("VendorIntakeAgent", domain.AgentStatusProcessing, 0)
	state("VendorIntakeAgent", domain.AgentStatusStreaming, 0)
	state("VendorIntakeAgent", domain.AgentStatusStreaming, 0)
	state("VendorIntakeAgent", domain.AgentStatusCompleted, 2*time.Second)
	state("PaymentAgent", domain.AgentStatusFailed, 0)
	m.Notify(domain.ProgressEvent{Kind: domain.EventKindWarning, AgentName: "Ghost"})
	m.ObserveRun(domain.RunStatusDone)

	body := scrape(t, m)
	assert.Contains(t, body, `settle_stream_chunks_total{agent="VendorIntakeAgent"} 2`)
	assert.Contains(t, body, `settle_agent_runs_total{agent="VendorIntakeAgent",status="completed"} 1`)
	assert.Contains(t, body, `settle_agent_runs_total{agent="PaymentAgent",status="failed"} 1`)
	assert.Contains(t, body, `settle_agent_run_duration_seconds_count{agent="VendorIntakeAgent"} 1`)
	assert.Contains(t, body, `settle_pipeline_runs_total{outcome="DONE"} 1`)
	assert.NotContains(t, body, "Ghost")
}
