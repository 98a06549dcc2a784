package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/xiaot623/settle/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func createRun(t *testing.T, store *SQLiteStore, runID string, startedAt time.Time) {
	t.Helper()
	run := &domain.Run{
		RunID:         runID,
		Status:        domain.RunStatusRunning,
		DocumentCount: 2,
		StartedAt:     startedAt,
	}
	if err := store.CreateRun(context.Background(), run); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
}

func TestSQLiteStoreRunLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	createRun(t, store, "run_1", time.Now())

	got, err := store.GetRun(ctx, "run_1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got == nil || got.Status != domain.RunStatusRunning || got.DocumentCount != 2 {
		t.Fatalf("unexpected run: %+v", got)
	}
	if got.EndedAt != nil || got.Plan != nil {
		t.Fatalf("expected unsettled run, got %+v", got)
	}

	done := &domain.Run{
		RunID:           "run_1",
		Status:          domain.RunStatusDone,
		Plan:            json.RawMessage(`{"scenario":"s","agent_sequence":["A"]}`),
		Results:         json.RawMessage(`[{"agent":"A","summary":"ok"}]`),
		FinalEvaluation: json.RawMessage(`{"verdict":"APPROVE"}`),
	}
	if err := store.UpdateRunCompleted(ctx, done); err != nil {
		t.Fatalf("UpdateRunCompleted failed: %v", err)
	}

	got, err = store.GetRun(ctx, "run_1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Status != domain.RunStatusDone || got.EndedAt == nil {
		t.Fatalf("unexpected settled run: %+v", got)
	}
	if string(got.FinalEvaluation) != `{"verdict":"APPROVE"}` {
		t.Fatalf("unexpected final evaluation: %s", got.FinalEvaluation)
	}
	if got.Error != "" {
		t.Fatalf("unexpected error: %q", got.Error)
	}
}

func TestSQLiteStoreGetRunMissing(t *testing.T) {
	store := newTestStore(t)
	got, err := store.GetRun(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil run, got %+v", got)
	}
}

func TestSQLiteStoreFailedRunKeepsError(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	createRun(t, store, "run_1", time.Now())

	if err := store.UpdateRunStatus(ctx, "run_1", domain.RunStatusRunning); err != nil {
		t.Fatalf("UpdateRunStatus failed: %v", err)
	}
	if err := store.UpdateRunCompleted(ctx, &domain.Run{RunID: "run_1", Status: domain.RunStatusFailed, Error: "LLM call failed: rate_limited"}); err != nil {
		t.Fatalf("UpdateRunCompleted failed: %v", err)
	}
	got, _ := store.GetRun(ctx, "run_1")
	if got.Status != domain.RunStatusFailed || got.Error != "LLM call failed: rate_limited" {
		t.Fatalf("unexpected run: %+v", got)
	}
	if got.Results != nil {
		t.Fatalf("expected no results, got %s", got.Results)
	}
}

func TestSQLiteStoreListRuns(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	base := time.Now()
	createRun(t, store, "run_old", base.Add(-time.Hour))
	createRun(t, store, "run_new", base)

	runs, err := store.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 2 || runs[0].RunID != "run_new" || runs[1].RunID != "run_old" {
		t.Fatalf("unexpected runs: %+v", runs)
	}

	runs, _ = store.ListRuns(ctx, 1)
	if len(runs) != 1 {
		t.Fatalf("expected limit to apply, got %d", len(runs))
	}
}

func TestSQLiteStoreEvents(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	createRun(t, store, "run_1", time.Now())

	events := []domain.Event{
		{EventID: "e1", RunID: "run_1", Ts: 100, Type: domain.EventKindState, Agent: "A", Status: "processing", Payload: json.RawMessage(`{"n":1}`)},
		{EventID: "e2", RunID: "run_1", Ts: 100, Type: domain.EventKindWarning, Agent: "Ghost"},
		{EventID: "e3", RunID: "run_1", Ts: 200, Type: domain.EventKindState, Agent: "A", Status: "completed"},
	}
	for i := range events {
		if err := store.CreateEvent(ctx, &events[i]); err != nil {
			t.Fatalf("CreateEvent failed: %v", err)
		}
	}

	got, err := store.GetEvents(ctx, "run_1", 0, nil, 0)
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(got) != 3 || got[0].EventID != "e1" || got[1].EventID != "e2" || got[2].EventID != "e3" {
		t.Fatalf("unexpected events: %+v", got)
	}
	if got[0].Agent != "A" || got[0].Status != "processing" || string(got[0].Payload) != `{"n":1}` {
		t.Fatalf("unexpected event fields: %+v", got[0])
	}
	if got[1].Payload != nil || got[1].Status != "" {
		t.Fatalf("expected empty optional fields: %+v", got[1])
	}

	got, _ = store.GetEvents(ctx, "run_1", 100, nil, 0)
	if len(got) != 1 || got[0].EventID != "e3" {
		t.Fatalf("afterTs filter failed: %+v", got)
	}

	got, _ = store.GetEvents(ctx, "run_1", 0, []string{string(domain.EventKindWarning)}, 0)
	if len(got) != 1 || got[0].EventID != "e2" {
		t.Fatalf("type filter failed: %+v", got)
	}

	got, _ = store.GetEvents(ctx, "run_1", 0, nil, 2)
	if len(got) != 2 {
		t.Fatalf("limit failed: %+v", got)
	}
}

func TestSQLiteStoreEventRequiresRun(t *testing.T) {
	store := newTestStore(t)
	err := store.CreateEvent(context.Background(), &domain.Event{EventID: "e1", RunID: "missing", Ts: 1, Type: domain.EventKindState})
	if err == nil {
		t.Fatal("expected foreign key violation")
	}
}

func TestEventRecorderKeepsFirstStreamingChunk(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	createRun(t, store, "run_1", time.Now())
	rec := NewEventRecorder(store)

	notify := func(status domain.AgentStatus, data any) {
		rec.Notify(domain.ProgressEvent{RunID: "run_1", Kind: domain.EventKindState, Index: 1, AgentName: "A", Status: status, Data: data, Ts: time.Now().UnixMilli()})
	}
	notify(domain.AgentStatusProcessing, nil)
	notify(domain.AgentStatusStreaming, map[string]any{"summary": "o"})
	notify(domain.AgentStatusStreaming, map[string]any{"summary": "ok"})
	notify(domain.AgentStatusCompleted, map[string]any{"summary": "ok"})
	rec.Notify(domain.ProgressEvent{RunID: "run_1", Kind: domain.EventKindWarning, AgentName: "Ghost", Message: "unknown agent"})

	got, err := store.GetEvents(ctx, "run_1", 0, nil, 0)
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 events, got %d: %+v", len(got), got)
	}

	var payload domain.ProgressEvent
	if err := json.Unmarshal(got[1].Payload, &payload); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if payload.Status != domain.AgentStatusStreaming || payload.AgentName != "A" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if got[3].Type != domain.EventKindWarning || got[3].Ts == 0 {
		t.Fatalf("unexpected warning event: %+v", got[3])
	}

	rec.Forget("run_1")
	notify(domain.AgentStatusStreaming, nil)
	got, _ = store.GetEvents(ctx, "run_1", 0, []string{string(domain.EventKindState)}, 0)
	if len(got) != 4 {
		t.Fatalf("expected streaming event after Forget, got %d", len(got))
	}
}
