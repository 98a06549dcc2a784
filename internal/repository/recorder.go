package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/settle/internal/domain"
)

// EventRecorder is a progress sink that persists events to a Store. Only the
// first streaming notification of each unit is kept; later chunks would only
// repeat a growing prefix of the final result.
type EventRecorder struct {
	store   Store
	timeout time.Duration

	mu        sync.Mutex
	streaming map[string]bool
}

// NewEventRecorder creates a recorder writing to store.
func NewEventRecorder(store Store) *EventRecorder {
	return &EventRecorder{
		store:     store,
		timeout:   5 * time.Second,
		streaming: make(map[string]bool),
	}
}

// Notify persists ev. Failures are logged and dropped.
func (r *EventRecorder) Notify(ev domain.ProgressEvent) {
	if ev.Kind == domain.EventKindState && ev.Status == domain.AgentStatusStreaming && !r.firstChunk(ev) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.record(ctx, ev); err != nil {
		log.Printf("WARN: failed to record %s event for run %s: %v", ev.Kind, ev.RunID, err)
	}
}

func (r *EventRecorder) firstChunk(ev domain.ProgressEvent) bool {
	key := fmt.Sprintf("%s/%d", ev.RunID, ev.Index)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.streaming[key] {
		return false
	}
	r.streaming[key] = true
	return true
}

// Forget drops the per-run bookkeeping once a run has settled.
func (r *EventRecorder) Forget(runID string) {
	prefix := runID + "/"
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.streaming {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			delete(r.streaming, key)
		}
	}
}

// record records an event to the store.
func (r *EventRecorder) record(ctx context.Context, ev domain.ProgressEvent) error {
	payloadBytes, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	ts := ev.Ts
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}
	event := &domain.Event{
		EventID: "evt_" + uuid.New().String(),
		RunID:   ev.RunID,
		Ts:      ts,
		Type:    ev.Kind,
		Agent:   ev.AgentName,
		Status:  string(ev.Status),
		Payload: payloadBytes,
	}

	return r.store.CreateEvent(ctx, event)
}
