// Package progress provides progress sinks that log events and fan them out.
package progress

import (
	"log"
	"strings"

	"github.com/xiaot623/settle/internal/domain"
)

// MultiSink delivers every event to each of its sinks in order.
type MultiSink []domain.ProgressSink

// Notify forwards ev to every sink. A panicking sink is logged and skipped.
func (m MultiSink) Notify(ev domain.ProgressEvent) {
	for _, sink := range m {
		if sink == nil {
			continue
		}
		notifySafely(sink, ev)
	}
}

func notifySafely(sink domain.ProgressSink, ev domain.ProgressEvent) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: progress sink panicked: %v", r)
		}
	}()
	sink.Notify(ev)
}

// LogSink logs state transitions, warnings and errors. Streaming chunks are
// logged only when verbose is set.
type LogSink struct {
	verbose bool
}

// NewLogSink creates a log sink. A "debug" level also logs streaming chunks.
func NewLogSink(level string) *LogSink {
	return &LogSink{verbose: strings.EqualFold(level, "debug")}
}

// Notify logs ev.
func (s *LogSink) Notify(ev domain.ProgressEvent) {
	switch ev.Kind {
	case domain.EventKindState:
		switch ev.Status {
		case domain.AgentStatusStreaming:
			if s.verbose {
				log.Printf("DEBUG: run %s: [%d] %s streaming", ev.RunID, ev.Index, ev.AgentName)
			}
		case domain.AgentStatusFailed:
			log.Printf("WARN: run %s: [%d] %s failed: %s", ev.RunID, ev.Index, ev.AgentName, ev.Error)
		case domain.AgentStatusCompleted:
			log.Printf("INFO: run %s: [%d] %s completed in %s", ev.RunID, ev.Index, ev.AgentName, ev.Duration)
		default:
			log.Printf("INFO: run %s: [%d] %s %s", ev.RunID, ev.Index, ev.AgentName, ev.Status)
		}
	case domain.EventKindPlan:
		if ev.Plan != nil {
			log.Printf("INFO: run %s: plan %q: %s", ev.RunID, ev.Plan.Scenario, strings.Join(ev.Plan.AgentSequence, " -> "))
		}
	case domain.EventKindWarning:
		log.Printf("WARN: run %s: %s", ev.RunID, ev.Message)
	case domain.EventKindError:
		log.Printf("ERROR: run %s: %s: %s", ev.RunID, ev.AgentName, ev.Error)
	case domain.EventKindRun:
		log.Printf("INFO: run %s: %s %s", ev.RunID, ev.Message, ev.Error)
	}
}
