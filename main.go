package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"

	"github.com/xiaot623/settle/internal/adapter/llm"
	"github.com/xiaot623/settle/internal/agent"
	"github.com/xiaot623/settle/internal/config"
	"github.com/xiaot623/settle/internal/engine"
	"github.com/xiaot623/settle/internal/hub"
	"github.com/xiaot623/settle/internal/metrics"
	"github.com/xiaot623/settle/internal/policy"
	"github.com/xiaot623/settle/internal/progress"
	"github.com/xiaot623/settle/internal/prompt"
	"github.com/xiaot623/settle/internal/repository"
	"github.com/xiaot623/settle/internal/service"
	handler "github.com/xiaot623/settle/internal/transport/http"
	"github.com/xiaot623/settle/prompts"
)

func main() {
	// Load configuration
	cfg := config.Load()

	catalog, err := config.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		log.Fatalf("Failed to load agent catalog: %v", err)
	}
	model := catalog.Model.WithOverrides(cfg.LLMModel, cfg.LLMTemperature)

	log.Printf("Starting settle...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Database: %s", cfg.DatabaseURL)
	log.Printf("Model API: %s (model %s)", cfg.LLMBaseURL, model.Name)
	log.Printf("Agents: %s", strings.Join(catalog.Names(), ", "))

	// Initialize store
	db, err := repository.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer db.Close()

	// Initialize model client and agent runner
	apiKey := cfg.LLMAPIKey
	if strings.EqualFold(cfg.Mode, llm.ModeMock) && apiKey == "" {
		apiKey = "mock"
	}
	streamer := llm.NewStreamer(cfg.Mode, catalog.Names())
	runner := agent.NewRunner(streamer, prompt.NewRenderer(promptFS(cfg.PromptDir)), agent.Settings{
		BaseURL:     cfg.LLMBaseURL,
		APIKey:      apiKey,
		Model:       model.Name,
		Temperature: model.Temperature,
		Timeout:     cfg.AgentTimeout,
	})

	// Initialize policy engine
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy, cfg.DisabledAgents)
	if err != nil {
		log.Fatalf("Failed to initialize policy engine: %v", err)
	}

	// Progress fan-out
	progressHub := hub.NewHub()
	collector := metrics.New()

	// Initialize service
	svc := service.New(db, engine.New(runner, catalog, policyEngine), catalog, cfg, collector,
		progress.NewLogSink(cfg.LogLevel), progressHub, collector)
	if n, err := svc.MarkInterruptedRuns(ctx); err != nil {
		log.Printf("WARN: failed to close interrupted runs: %v", err)
	} else if n > 0 {
		log.Printf("INFO: closed %d runs interrupted by a previous shutdown", n)
	}

	wsServer := hub.NewServer(hub.ServerConfig{
		PingInterval: cfg.WSPingInterval,
		WriteTimeout: cfg.WSWriteTimeout,
	}, progressHub)
	server := handler.NewServer(svc, wsServer, echo.WrapHandler(collector.Handler()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return progressHub.Run(gctx)
	})
	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		log.Printf("API started on port %d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down settle...")

		// Graceful shutdown
		svc.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Failed to shutdown server gracefully: %v", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("ERROR: %v", err)
	}
	log.Println("settle stopped")
}

// promptFS returns the template directory, or the embedded templates when dir is empty.
func promptFS(dir string) fs.FS {
	if dir == "" {
		return prompts.FS
	}
	return os.DirFS(dir)
}
