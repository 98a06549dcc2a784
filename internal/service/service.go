// Package service runs review pipelines in the background and answers queries
// about them. At most one run is in flight at a time.
package service

import (
	"context"
	"errors"
	"sync"

	"github.com/xiaot623/settle/internal/config"
	"github.com/xiaot623/settle/internal/domain"
	"github.com/xiaot623/settle/internal/engine"
	"github.com/xiaot623/settle/internal/repository"
)

var (
	// ErrRunInProgress is returned when a run is started while another is in flight.
	ErrRunInProgress = errors.New("a run is already in progress")
	// ErrRunExists is returned when a caller-chosen run id is already taken.
	ErrRunExists = errors.New("run id already exists")
	// ErrRunNotFound is returned for unknown run ids.
	ErrRunNotFound = errors.New("run not found")
	// ErrRunNotActive is returned when cancelling a run that has already settled.
	ErrRunNotActive = errors.New("run is not in progress")
	// ErrNoDocuments is returned when a run is started without documents.
	ErrNoDocuments = errors.New("at least one document is required")
)

// Pipeline executes one run to completion.
type Pipeline interface {
	Run(ctx context.Context, docs []domain.Document, opts ...engine.RunOption) (*domain.RunContext, error)
}

// RunObserver is told the outcome of every settled run.
type RunObserver interface {
	ObserveRun(status domain.RunStatus)
}

type activeRun struct {
	id     string
	cancel context.CancelFunc
}

// Service coordinates runs, persistence and progress delivery.
type Service struct {
	store    repository.Store
	pipeline Pipeline
	catalog  *config.Catalog
	config   *config.Config
	recorder *repository.EventRecorder
	observer RunObserver
	sinks    []domain.ProgressSink

	ctx    context.Context
	stop   context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	active *activeRun
}

// New creates a service. observer may be nil; sinks receive every progress event.
func New(store repository.Store, pipeline Pipeline, catalog *config.Catalog, cfg *config.Config, observer RunObserver, sinks ...domain.ProgressSink) *Service {
	ctx, stop := context.WithCancel(context.Background())
	return &Service{
		store:    store,
		pipeline: pipeline,
		catalog:  catalog,
		config:   cfg,
		recorder: repository.NewEventRecorder(store),
		observer: observer,
		sinks:    sinks,
		ctx:      ctx,
		stop:     stop,
	}
}

// Close cancels any in-flight run and waits for it to settle.
func (s *Service) Close() {
	s.stop()
	s.wg.Wait()
}
