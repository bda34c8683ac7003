// Package entrypoint wires the application together and runs the worker
// process: task queue, scheduler and graceful shutdown.
package entrypoint

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mrlokans/attrpipe/internal/catalog"
	"github.com/mrlokans/attrpipe/internal/config"
	"github.com/mrlokans/attrpipe/internal/database"
	"github.com/mrlokans/attrpipe/internal/database/pipelines"
	"github.com/mrlokans/attrpipe/internal/database/runs"
	"github.com/mrlokans/attrpipe/internal/database/values"
	"github.com/mrlokans/attrpipe/internal/engine"
	"github.com/mrlokans/attrpipe/internal/invalidation"
	"github.com/mrlokans/attrpipe/internal/modules"
	"github.com/mrlokans/attrpipe/internal/scheduler"
	"github.com/mrlokans/attrpipe/internal/syncer"
	"github.com/mrlokans/attrpipe/internal/tasks"
)

// App bundles the wired collaborators for reuse by CLI commands.
type App struct {
	Config       *config.Config
	DB           *database.Database
	Values       *values.Repository
	Pipelines    *pipelines.Repository
	Runs         *runs.Repository
	Registry     *modules.Registry
	Engine       *engine.Engine
	Syncer       *syncer.Engine
	Invalidation *invalidation.Service
	TaskClient   *tasks.Client
}

// NewRegistry builds the module registry with all built-in modules. The
// registry is constructed once at startup and injected everywhere; there is
// no global registration.
func NewRegistry(valueRepo *values.Repository, completions modules.CompletionClient) *modules.Registry {
	registry := modules.NewRegistry()
	registry.MustRegister("input_source", modules.NewInputSourceFactory(valueRepo))
	registry.MustRegister("attribute_source", modules.NewAttributeSourceFactory(valueRepo))
	registry.MustRegister("static_source", modules.NewStaticSourceFactory())
	registry.MustRegister("text_transform", modules.NewTextTransformFactory())
	registry.MustRegister("template", modules.NewTemplateFactory())
	registry.MustRegister("llm_rewrite", modules.NewLLMRewriteFactory(completions))
	return registry
}

// NewApp initializes the database and every core collaborator, without
// starting any background processing.
func NewApp(cfg *config.Config) (*App, error) {
	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	valueRepo := values.NewRepository(db.DB)
	registry := NewRegistry(valueRepo, nil)
	pipelineRepo := pipelines.NewRepository(db.DB, registry)
	ledger := runs.NewRepository(db.DB)

	eng := engine.NewEngine(db, pipelineRepo, valueRepo, ledger, registry)
	eng.SetTimeouts(cfg.Engine.BatchTimeout, cfg.Engine.SingleTimeout)

	catalogClient := catalog.NewHTTPClient(cfg.Catalog.BaseURL, cfg.Catalog.Token)
	syncEngine := syncer.NewEngine(db, valueRepo, ledger, catalogClient)
	syncEngine.SetTimeout(cfg.Sync.Timeout)

	return &App{
		Config:    cfg,
		DB:        db,
		Values:    valueRepo,
		Pipelines: pipelineRepo,
		Runs:      ledger,
		Registry:  registry,
		Engine:    eng,
		Syncer:    syncEngine,
	}, nil
}

// Close releases the app's resources.
func (a *App) Close() {
	if a.TaskClient != nil {
		if err := a.TaskClient.Close(); err != nil {
			log.Printf("Error closing task client: %v", err)
		}
	}
	if err := a.DB.Close(); err != nil {
		log.Printf("Error closing database: %v", err)
	}
}

// Run starts the worker process and blocks until SIGINT/SIGTERM.
func Run(cfg *config.Config, version string) {
	log.Printf("Starting attrpipe worker v%s", version)

	app, err := NewApp(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer app.Close()

	var taskCtxCancel context.CancelFunc
	if cfg.Tasks.Enabled {
		taskClient, err := tasks.NewClient(cfg.Database.Path, tasks.Config{
			Workers:         cfg.Tasks.Workers,
			ReleaseAfter:    cfg.Tasks.ReleaseAfter,
			CleanupInterval: cfg.Tasks.CleanupInterval,
		})
		if err != nil {
			log.Fatalf("Failed to initialize task queue: %v", err)
		}
		app.TaskClient = taskClient

		taskClient.Register(
			tasks.NewRunPipelineQueue(app.Engine),
			tasks.NewRecomputeEntityQueue(app.Engine),
			tasks.NewSyncProductsQueue(app.Syncer),
			tasks.NewSyncOptionsQueue(app.Syncer),
		)

		app.Invalidation = invalidation.NewService(app.Pipelines, app.Registry, taskClient)

		var taskCtx context.Context
		taskCtx, taskCtxCancel = context.WithCancel(context.Background())
		go taskClient.Start(taskCtx)
	}

	var pipelineScheduler *scheduler.PipelineScheduler
	if cfg.Scheduler.Enabled && app.TaskClient != nil {
		schedules := make([]scheduler.Schedule, 0)
		for _, entry := range cfg.Scheduler.ParseSchedules() {
			schedules = append(schedules, scheduler.Schedule{PipelineID: entry.PipelineID, Spec: entry.Spec})
		}
		pipelineScheduler = scheduler.NewPipelineScheduler(app.TaskClient, schedules)
		if err := pipelineScheduler.Start(context.Background()); err != nil {
			log.Fatalf("Failed to start pipeline scheduler: %v", err)
		}
	}

	// Wait for interrupt signal to gracefully shut down
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	timeout := time.Duration(cfg.Global.ShutdownTimeoutInSeconds) * time.Second
	log.Printf("Shutting down, waiting up to %v for running tasks", timeout)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if pipelineScheduler != nil {
		pipelineScheduler.Stop()
	}
	if app.TaskClient != nil {
		app.TaskClient.Stop(ctx)
		if taskCtxCancel != nil {
			taskCtxCancel()
		}
	}

	log.Println("Worker exiting")
}
