package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/c360studio/insurekb/internal/citation"
	"github.com/c360studio/insurekb/internal/config"
	"github.com/c360studio/insurekb/internal/docmodel"
	"github.com/c360studio/insurekb/internal/embedding"
	"github.com/c360studio/insurekb/internal/events"
	"github.com/c360studio/insurekb/internal/extraction"
	"github.com/c360studio/insurekb/internal/graphproj"
	"github.com/c360studio/insurekb/internal/graphrag"
	"github.com/c360studio/insurekb/internal/indexing"
	"github.com/c360studio/insurekb/internal/llm"
	_ "github.com/c360studio/insurekb/internal/llm/providers"
	"github.com/c360studio/insurekb/internal/metrics"
	"github.com/c360studio/insurekb/internal/model"
	"github.com/c360studio/insurekb/internal/pipeline"
	"github.com/c360studio/insurekb/internal/relationship"
	"github.com/c360studio/insurekb/internal/store"
	"github.com/c360studio/insurekb/internal/workflow"
)

// App wires every package of the pipeline into a running instance: one
// Postgres-backed store, one Neo4j driver, the provider-agnostic LLM
// client, the five workflow stages, and the GraphRAG retriever, built
// from a single config.Config the way the teacher's cmd/semspec App
// builds its NATS/storage/tool stack from one config.Config.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	store    *store.Store
	driver   neo4j.DriverWithContext
	metrics  *metrics.Metrics
	registry *model.Registry
	llm      *llm.Client
	embedder embedding.Embedder

	orchestrator *workflow.Orchestrator
	retriever    *graphrag.Retriever
}

// NewApp constructs an App. Nothing here opens a network connection;
// that happens in Start so the CLI can validate flags and config
// before paying connection-setup latency.
func NewApp(cfg *config.Config, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{cfg: cfg, logger: logger}
}

// Start opens the Postgres pool and Neo4j driver and wires every
// service package against them.
func (a *App) Start(ctx context.Context) error {
	st, err := store.New(ctx, a.cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	a.store = st

	driver, err := neo4j.NewDriverWithContext(a.cfg.Neo4j.URI, neo4j.BasicAuth(a.cfg.Neo4j.Username, a.cfg.Neo4j.Password, ""))
	if err != nil {
		st.Close()
		return fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		st.Close()
		return fmt.Errorf("verify neo4j connectivity: %w", err)
	}
	a.driver = driver

	a.metrics = metrics.New("insurekb")
	a.registry = model.NewDefaultRegistry()
	a.llm = llm.NewClient(a.registry, llm.WithLogger(a.logger))
	a.embedder = embedding.NewOllamaEmbedder(a.cfg.Embedding.BaseURL, a.cfg.Embedding.Model, a.cfg.Embedding.Dimension)

	projector := graphproj.New(a.driver)
	if err := projector.EnsureConstraints(ctx); err != nil {
		return fmt.Errorf("ensure graph constraints: %w", err)
	}

	processors := map[docmodel.Stage]workflow.StageProcessor{
		docmodel.StageProcessed:  pipeline.NewProcessedStage(a.store),
		docmodel.StageClassified: pipeline.NewClassifiedStage(a.store),
		docmodel.StageExtracted:  pipeline.NewExtractedStage(a.store, extraction.New(a.llm, a.logger)),
		docmodel.StageEnriched:   pipeline.NewEnrichedStage(a.store, relationship.New(a.llm, a.logger), a.logger),
		docmodel.StageSummarized: pipeline.NewSummarizedStage(a.store, citation.New(a.store, a.embedder), indexing.New(a.store, a.embedder, a.cfg.Embedding.Version, a.logger), projector),
	}

	a.orchestrator = workflow.New(a.store, processors,
		workflow.WithStageTimeout(a.cfg.Workflow.StageTimeout),
		workflow.WithRetryPolicy(workflow.RetryPolicy{
			MaxRetries:        a.cfg.Workflow.MaxRetries,
			BackoffBase:       2 * time.Second,
			BackoffMultiplier: 2.0,
			MaxBackoff:        30 * time.Second,
		}),
	)

	a.retriever = graphrag.New(a.store, a.embedder, a.llm)

	return nil
}

// Shutdown releases the Neo4j driver and Postgres pool.
func (a *App) Shutdown(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if a.driver != nil {
		if err := a.driver.Close(ctx); err != nil {
			a.logger.Warn("close neo4j driver", "error", err)
		}
	}
	if a.store != nil {
		a.store.Close()
	}
}

// RunWorkflow advances the given workflow through every stage,
// streaming progress events to the logger as they're observed.
func (a *App) RunWorkflow(ctx context.Context, workflowID string) error {
	a.metrics.WorkflowsInFlight.Inc()
	defer a.metrics.WorkflowsInFlight.Dec()

	stream := events.New(a.store, workflowID, a.cfg.Workflow.PollInterval, a.logger)

	errCh := make(chan error, 1)
	go func() { errCh <- stream.Run(ctx) }()

	go func() {
		for evt := range stream.Events() {
			a.logger.Info("workflow event", "workflow_id", workflowID, "type", evt.EventType, "data", evt.Data)
		}
	}()

	runErr := a.orchestrator.RunWorkflow(ctx, workflowID)

	if err := <-errCh; err != nil {
		a.logger.Warn("event stream stopped with error", "error", err)
	}
	if dropped := stream.DroppedEvents(); dropped > 0 {
		a.logger.Warn("event stream dropped events", "count", dropped)
	}
	return runErr
}

// Query runs one GraphRAG question against the workflow's knowledge
// base.
func (a *App) Query(ctx context.Context, req graphrag.Request) (*graphrag.Result, error) {
	result, err := a.retriever.Retrieve(ctx, req)
	if err != nil {
		return nil, err
	}
	a.metrics.ObserveRetrievalQuery(string(result.Plan.Intent), result.FallbackMode)
	for stage, d := range result.StageLatencies {
		a.metrics.ObserveRetrievalStage(stage, d)
	}
	return result, nil
}
