package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/xiaot623/settle/internal/domain"
	"github.com/xiaot623/settle/internal/engine"
	"github.com/xiaot623/settle/internal/progress"
)

// StartRunRequest is the input of StartRun.
type StartRunRequest struct {
	// RunID lets a caller subscribe to progress before starting; empty picks one.
	RunID     string
	Documents []domain.Document
	// APIKey is passed through to the model API for this run only.
	APIKey string
}

// StartRun validates the request, records the run and executes it in the
// background. It returns the run id without waiting for the run.
func (s *Service) StartRun(ctx context.Context, req StartRunRequest) (string, error) {
	if len(req.Documents) == 0 {
		return "", ErrNoDocuments
	}
	docs := make([]domain.Document, len(req.Documents))
	for i, d := range req.Documents {
		if d.Filename == "" {
			d.Filename = fmt.Sprintf("document-%d", i+1)
		}
		docs[i] = d
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		return "", ErrRunInProgress
	}

	runID := req.RunID
	if runID == "" {
		runID = engine.NewRunID()
	} else {
		existing, err := s.store.GetRun(ctx, runID)
		if err != nil {
			return "", fmt.Errorf("failed to get run: %w", err)
		}
		if existing != nil {
			return "", ErrRunExists
		}
	}

	run := &domain.Run{
		RunID:         runID,
		Status:        domain.RunStatusCreated,
		DocumentCount: len(docs),
		StartedAt:     time.Now(),
	}
	if err := s.store.CreateRun(ctx, run); err != nil {
		return "", fmt.Errorf("failed to create run: %w", err)
	}

	runCtx, cancel := s.runContext()
	s.active = &activeRun{id: runID, cancel: cancel}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.execute(runCtx, cancel, runID, docs, req.APIKey)
	}()
	return runID, nil
}

// runContext derives the context of one run, bounded by RunTimeout when set.
func (s *Service) runContext() (context.Context, context.CancelFunc) {
	if s.config != nil && s.config.RunTimeout > 0 {
		return context.WithTimeout(s.ctx, s.config.RunTimeout)
	}
	return context.WithCancel(s.ctx)
}

func (s *Service) execute(ctx context.Context, cancel context.CancelFunc, runID string, docs []domain.Document, apiKey string) {
	defer func() {
		cancel()
		s.mu.Lock()
		if s.active != nil && s.active.id == runID {
			s.active = nil
		}
		s.mu.Unlock()
		s.recorder.Forget(runID)
	}()

	if err := s.store.UpdateRunStatus(ctx, runID, domain.RunStatusRunning); err != nil {
		log.Printf("WARN: failed to mark run %s running: %v", runID, err)
	}
	log.Printf("INFO: run %s started with %d documents", runID, len(docs))

	sink := append(progress.MultiSink{s.recorder}, s.sinks...)
	rc, err := s.pipeline.Run(ctx, docs,
		engine.WithRunID(runID),
		engine.WithSink(sink),
		engine.WithAPIKey(apiKey),
	)

	run := summarize(runID, rc, err)
	storeCtx, storeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer storeCancel()
	if updateErr := s.store.UpdateRunCompleted(storeCtx, run); updateErr != nil {
		log.Printf("ERROR: failed to store outcome of run %s: %v", runID, updateErr)
	}
	if s.observer != nil {
		s.observer.ObserveRun(run.Status)
	}

	sink.Notify(domain.ProgressEvent{
		RunID:   runID,
		Kind:    domain.EventKindRun,
		Message: string(run.Status),
		Error:   run.Error,
		Ts:      time.Now().UnixMilli(),
	})
}

// summarize converts the engine outcome into the persisted run record.
func summarize(runID string, rc *domain.RunContext, err error) *domain.Run {
	now := time.Now()
	run := &domain.Run{RunID: runID, Status: domain.RunStatusDone, EndedAt: &now}
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		run.Status = domain.RunStatusCancelled
		run.Error = "run cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		run.Status = domain.RunStatusFailed
		run.Error = "run timed out"
	default:
		run.Status = domain.RunStatusFailed
		run.Error = errorMessage(err)
	}

	if rc == nil {
		return run
	}
	if rc.Plan != nil {
		run.Plan = mustJSON(rc.Plan)
	}
	run.Results = mustJSON(rc.Results)
	if rc.FinalEvaluation != nil {
		run.FinalEvaluation = mustJSON(rc.FinalEvaluation)
	}
	return run
}

// errorMessage prefers the underlying error's message over the run wrapper's.
func errorMessage(err error) string {
	var runErr *engine.RunError
	if errors.As(err, &runErr) && runErr.Err != nil {
		return runErr.Err.Error()
	}
	return err.Error()
}

func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("WARN: failed to encode run data: %v", err)
		return nil
	}
	return data
}

// CancelRun cancels the in-flight run with the given id.
func (s *Service) CancelRun(ctx context.Context, runID string) error {
	s.mu.Lock()
	if s.active != nil && s.active.id == runID {
		s.active.cancel()
		s.mu.Unlock()
		log.Printf("INFO: run %s cancellation requested", runID)
		return nil
	}
	s.mu.Unlock()

	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}
	if run == nil {
		return ErrRunNotFound
	}
	return ErrRunNotActive
}

// ActiveRunID returns the id of the in-flight run, if any.
func (s *Service) ActiveRunID() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return "", false
	}
	return s.active.id, true
}

// MarkInterruptedRuns fails runs left unsettled by a previous process. Nothing
// is resumed; the records are only closed.
func (s *Service) MarkInterruptedRuns(ctx context.Context) (int, error) {
	runs, err := s.store.ListRuns(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to list runs: %w", err)
	}
	active, _ := s.ActiveRunID()
	marked := 0
	for _, r := range runs {
		if r.Status.IsTerminal() || r.RunID == active {
			continue
		}
		now := time.Now()
		if err := s.store.UpdateRunCompleted(ctx, &domain.Run{
			RunID:   r.RunID,
			Status:  domain.RunStatusFailed,
			EndedAt: &now,
			Error:   "interrupted by service restart",
		}); err != nil {
			return marked, fmt.Errorf("failed to close run %s: %w", r.RunID, err)
		}
		marked++
	}
	return marked, nil
}
