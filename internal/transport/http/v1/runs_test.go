package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/xiaot623/settle/internal/agent"
	"github.com/xiaot623/settle/internal/config"
	"github.com/xiaot623/settle/internal/domain"
	"github.com/xiaot623/settle/internal/engine"
	"github.com/xiaot623/settle/internal/prompt"
	"github.com/xiaot623/settle/internal/repository"
	"github.com/xiaot623/settle/internal/service"
	"github.com/xiaot623/settle/prompts"
	"github.com/xiaot623/settle/tests/helpers"
)

const testCatalog = `
orchestrator:
  name: OrchestratorAgent
agents:
  - name: VendorIntakeAgent
    stage: Vendor Intake
`

func newTestHandler(t *testing.T, streamer *helpers.ScriptedStreamer) (*Handler, *service.Service, repository.Store) {
	t.Helper()
	cat, err := config.ParseCatalog([]byte(testCatalog))
	if err != nil {
		t.Fatalf("ParseCatalog failed: %v", err)
	}
	db := helpers.NewTestSQLiteStore(t)
	runner := agent.NewRunner(streamer, prompt.NewRenderer(prompts.FS), agent.Settings{APIKey: "server-key", Model: "m"})
	svc := service.New(db, engine.New(runner, cat, nil), cat, &config.Config{}, nil)
	t.Cleanup(svc.Close)
	return NewHandler(svc), svc, db
}

func serve(h *Handler, req *http.Request) *httptest.ResponseRecorder {
	e := echo.New()
	h.RegisterRoutes(e)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func waitIdle(t *testing.T, svc *service.Service) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, active := svc.ActiveRunID(); !active {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("run did not settle")
}

func TestStartRunValidation(t *testing.T) {
	h, _, _ := newTestHandler(t, helpers.NewScriptedStreamer())

	req := httptest.NewRequest(http.MethodPost, "/v1/runs", bytes.NewBufferString(`{"documents":[]}`))
	req.Header.Set("Content-Type", "application/json")
	rec := serve(h, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/runs", bytes.NewBufferString(`{"documents":`))
	req.Header.Set("Content-Type", "application/json")
	rec = serve(h, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", rec.Code)
	}
}

func TestStartRunAccepted(t *testing.T) {
	streamer := helpers.NewScriptedStreamer(
		helpers.Reply(`{"agentPlan":["VendorIntakeAgent"]}`),
		helpers.Reply(`{"summary":"vendor ok"}`),
		helpers.Reply(`{"verdict":"APPROVE"}`),
	)
	h, svc, db := newTestHandler(t, streamer)

	body := `{"run_id":"run_http","documents":[{"filename":"invoice.txt","text":"INV-001"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/runs", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer caller-key")
	rec := serve(h, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		RunID  string `json:"run_id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.RunID != "run_http" || resp.Status != string(domain.RunStatusCreated) {
		t.Fatalf("unexpected response: %+v", resp)
	}

	waitIdle(t, svc)
	run, err := db.GetRun(context.Background(), "run_http")
	if err != nil || run == nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if run.Status != domain.RunStatusDone {
		t.Fatalf("expected DONE, got %s (%s)", run.Status, run.Error)
	}
	for _, ep := range streamer.Endpoints() {
		if ep.APIKey != "caller-key" {
			t.Fatalf("expected caller key to pass through, got %q", ep.APIKey)
		}
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/runs", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec = serve(h, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for reused run id, got %d", rec.Code)
	}
}

func TestGetRun(t *testing.T) {
	h, _, db := newTestHandler(t, helpers.NewScriptedStreamer())
	ctx := context.Background()
	if err := db.CreateRun(ctx, &domain.Run{RunID: "run_1", Status: domain.RunStatusRunning, DocumentCount: 2, StartedAt: time.Now()}); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/v1/runs/run_1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var run domain.Run
	if err := json.Unmarshal(rec.Body.Bytes(), &run); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if run.RunID != "run_1" || run.DocumentCount != 2 {
		t.Fatalf("unexpected run: %+v", run)
	}

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/v1/runs/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestListRuns(t *testing.T) {
	h, _, db := newTestHandler(t, helpers.NewScriptedStreamer())

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/v1/runs", nil))
	if rec.Code != http.StatusOK || !bytes.Contains(rec.Body.Bytes(), []byte(`"runs":[]`)) {
		t.Fatalf("unexpected empty listing: %d %s", rec.Code, rec.Body.String())
	}

	ctx := context.Background()
	now := time.Now()
	for i, id := range []string{"run_a", "run_b", "run_c"} {
		run := &domain.Run{RunID: id, Status: domain.RunStatusDone, StartedAt: now.Add(time.Duration(i) * time.Second)}
		if err := db.CreateRun(ctx, run); err != nil {
			t.Fatalf("CreateRun failed: %v", err)
		}
	}

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/v1/runs?limit=2", nil))
	var resp struct {
		Runs []domain.Run `json:"runs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Runs) != 2 || resp.Runs[0].RunID != "run_c" {
		t.Fatalf("unexpected runs: %+v", resp.Runs)
	}
}

func TestGetRunEvents(t *testing.T) {
	h, _, db := newTestHandler(t, helpers.NewScriptedStreamer())
	ctx := context.Background()
	if err := db.CreateRun(ctx, &domain.Run{RunID: "run_1", Status: domain.RunStatusDone, StartedAt: time.Now()}); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	events := []domain.Event{
		{EventID: "evt_1", RunID: "run_1", Ts: 100, Type: domain.EventKindState, Agent: "OrchestratorAgent"},
		{EventID: "evt_2", RunID: "run_1", Ts: 200, Type: domain.EventKindPlan, Agent: "OrchestratorAgent"},
		{EventID: "evt_3", RunID: "run_1", Ts: 300, Type: domain.EventKindRun},
	}
	for i := range events {
		if err := db.CreateEvent(ctx, &events[i]); err != nil {
			t.Fatalf("CreateEvent failed: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/runs/run_1/events?after_ts=100&types=plan,run&limit=1", nil)
	rec := serve(h, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Events  []domain.Event `json:"events"`
		HasMore bool           `json:"has_more"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Events) != 1 || resp.Events[0].EventID != "evt_2" || !resp.HasMore {
		t.Fatalf("unexpected events: %+v", resp)
	}

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/v1/runs/missing/events", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCancelRunSettled(t *testing.T) {
	h, _, db := newTestHandler(t, helpers.NewScriptedStreamer())
	if err := db.CreateRun(context.Background(), &domain.Run{RunID: "run_1", Status: domain.RunStatusDone, StartedAt: time.Now()}); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	rec := serve(h, httptest.NewRequest(http.MethodPost, "/v1/runs/run_1/cancel", nil))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	rec = serve(h, httptest.NewRequest(http.MethodPost, "/v1/runs/missing/cancel", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestListAgents(t *testing.T) {
	h, _, _ := newTestHandler(t, helpers.NewScriptedStreamer())

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/v1/agents", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp service.AgentCatalog
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Orchestrator.Name != "OrchestratorAgent" || len(resp.Agents) != 1 || resp.Agents[0].StageLabel != "Vendor Intake" {
		t.Fatalf("unexpected catalog: %+v", resp)
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"":               "",
		"Bearer abc":     "abc",
		"bearer  abc ":   "abc",
		"Basic dXNlcjpw": "",
		"Bearer":         "",
	}
	for header, want := range cases {
		if got := bearerToken(header); got != want {
			t.Errorf("bearerToken(%q) = %q, want %q", header, got, want)
		}
	}
}
