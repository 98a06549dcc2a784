// Package metrics exposes pipeline counters and latencies to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xiaot623/settle/internal/domain"
)

// Metrics is a progress sink that counts agent outcomes and stream chunks.
type Metrics struct {
	registry     *prometheus.Registry
	agentRuns    *prometheus.CounterVec
	chunks       *prometheus.CounterVec
	pipelineRuns *prometheus.CounterVec
	duration     *prometheus.HistogramVec
}

// Ensure Metrics is a progress sink.
var _ domain.ProgressSink = (*Metrics)(nil)

// New creates the collectors on a dedicated registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		agentRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settle_agent_runs_total",
			Help: "Agent runs that reached a terminal status.",
		}, []string{"agent", "status"}),
		chunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settle_stream_chunks_total",
			Help: "Streamed model chunks received per agent.",
		}, []string{"agent"}),
		pipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "settle_pipeline_runs_total",
			Help: "Pipeline runs by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "settle_agent_run_duration_seconds",
			Help:    "Wall time of agent runs from processing to a terminal status.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"agent"}),
	}
	m.registry.MustRegister(
		m.agentRuns,
		m.chunks,
		m.pipelineRuns,
		m.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Notify updates counters from state events.
func (m *Metrics) Notify(ev domain.ProgressEvent) {
	if ev.Kind != domain.EventKindState {
		return
	}
	switch ev.Status {
	case domain.AgentStatusStreaming:
		m.chunks.WithLabelValues(ev.AgentName).Inc()
	case domain.AgentStatusCompleted, domain.AgentStatusFailed:
		m.agentRuns.WithLabelValues(ev.AgentName, string(ev.Status)).Inc()
		if ev.Duration > 0 {
			m.duration.WithLabelValues(ev.AgentName).Observe(ev.Duration.Seconds())
		}
	}
}

// ObserveRun counts a settled pipeline run.
func (m *Metrics) ObserveRun(status domain.RunStatus) {
	m.pipelineRuns.WithLabelValues(string(status)).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
