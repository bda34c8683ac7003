// Package engine executes pipeline module chains over batches of entities
// and records the outcome in the run ledger.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/mrlokans/attrpipe/internal/cast"
	"github.com/mrlokans/attrpipe/internal/database"
	"github.com/mrlokans/attrpipe/internal/database/pipelines"
	"github.com/mrlokans/attrpipe/internal/database/runs"
	"github.com/mrlokans/attrpipe/internal/database/values"
	"github.com/mrlokans/attrpipe/internal/entities"
	"github.com/mrlokans/attrpipe/internal/modules"
)

const (
	// DefaultBatchSize is the number of entities processed per batch.
	DefaultBatchSize = 200

	// DefaultBatchTimeout bounds a full multi-entity run.
	DefaultBatchTimeout = time.Hour

	// DefaultSingleTimeout bounds a single-entity run triggered by an
	// entity save.
	DefaultSingleTimeout = 5 * time.Minute
)

// ExecuteRequest describes one pipeline execution. EntityIDs may be empty
// to target every entity of the pipeline's entity type.
type ExecuteRequest struct {
	PipelineID       uint
	EntityIDs        []uint
	TriggeredBy      entities.TriggeredBy
	TriggerReference string
	BatchSize        int
	MaxEntities      int
}

// Engine runs pipeline chains. One Execute call is single-threaded through
// its batch loop; concurrency happens across runs, not within one.
type Engine struct {
	db        *database.Database
	pipelines *pipelines.Repository
	values    *values.Repository
	ledger    *runs.Repository
	registry  *modules.Registry

	batchTimeout  time.Duration
	singleTimeout time.Duration
}

// NewEngine creates an execution engine with the given collaborators.
func NewEngine(db *database.Database, pipelineRepo *pipelines.Repository, valueRepo *values.Repository, ledger *runs.Repository, registry *modules.Registry) *Engine {
	return &Engine{
		db:            db,
		pipelines:     pipelineRepo,
		values:        valueRepo,
		ledger:        ledger,
		registry:      registry,
		batchTimeout:  DefaultBatchTimeout,
		singleTimeout: DefaultSingleTimeout,
	}
}

// SetTimeouts overrides the run-level timeouts, mainly for tests and
// config-driven tuning.
func (e *Engine) SetTimeouts(batch, single time.Duration) {
	if batch > 0 {
		e.batchTimeout = batch
	}
	if single > 0 {
		e.singleTimeout = single
	}
}

// chainStep is one resolved module of the frozen chain.
type chainStep struct {
	class    string
	module   modules.Module
	settings map[string]any
}

// Execute runs the pipeline over the requested entities and returns the
// completed run record. Entity-level failures are aggregated into the run
// counters; only infrastructure errors are returned as a non-nil error, and
// even then the run record carries the failure before the call returns.
func (e *Engine) Execute(ctx context.Context, req ExecuteRequest) (*entities.PipelineRun, error) {
	pipeline, err := e.pipelines.GetByID(req.PipelineID)
	if err != nil {
		return nil, fmt.Errorf("failed to load pipeline %d: %w", req.PipelineID, err)
	}

	chain, err := e.resolveChain(pipeline)
	if err != nil {
		return nil, err
	}

	target, err := e.db.GetAttributeByID(pipeline.TargetAttributeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load target attribute %d: %w", pipeline.TargetAttributeID, err)
	}

	entityIDs := req.EntityIDs
	if len(entityIDs) == 0 {
		list, err := e.db.GetEntitiesByType(pipeline.EntityTypeID)
		if err != nil {
			return nil, fmt.Errorf("failed to list entities: %w", err)
		}
		for _, entity := range list {
			entityIDs = append(entityIDs, entity.ID)
		}
	}
	if req.MaxEntities > 0 && len(entityIDs) > req.MaxEntities {
		entityIDs = entityIDs[:req.MaxEntities]
	}

	batchSize := req.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	run, err := e.ledger.CreatePipelineRun(pipeline.ID, pipeline.Version, req.TriggeredBy, req.TriggerReference, batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create run record: %w", err)
	}

	timeout := e.batchTimeout
	if len(entityIDs) == 1 {
		timeout = e.singleTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log.Printf("Pipeline run %s: pipeline %d v%d, %d entities, batch size %d",
		run.RunID, pipeline.ID, pipeline.Version, len(entityIDs), batchSize)

	if err := e.runBatches(runCtx, run, chain, target, entityIDs, batchSize); err != nil {
		// Infrastructure error: fail the run, then fail loudly.
		if finishErr := e.ledger.FinishPipelineRun(run, entities.RunStatusFailed, err.Error()); finishErr != nil {
			log.Printf("Pipeline run %s: failed to record failure: %v", run.RunID, finishErr)
		}
		log.Printf("Pipeline run %s: failed: %v", run.RunID, err)
		return run, err
	}

	if err := e.ledger.FinishPipelineRun(run, entities.RunStatusCompleted, ""); err != nil {
		return run, fmt.Errorf("failed to finish run record: %w", err)
	}

	log.Printf("Pipeline run %s: completed (processed=%d failed=%d skipped=%d tokens=%d)",
		run.RunID, run.Processed, run.Failed, run.Skipped, run.TokenUsage)
	return run, nil
}

// ExecuteSingle runs the pipeline for exactly one entity, the path taken by
// dependency invalidation.
func (e *Engine) ExecuteSingle(ctx context.Context, pipelineID, entityID uint, triggeredBy entities.TriggeredBy, triggerReference string) (*entities.PipelineRun, error) {
	return e.Execute(ctx, ExecuteRequest{
		PipelineID:       pipelineID,
		EntityIDs:        []uint{entityID},
		TriggeredBy:      triggeredBy,
		TriggerReference: triggerReference,
		BatchSize:        1,
	})
}

// runBatches drives the batch loop. A returned error is an infrastructure
// failure; entity-level failures only advance the run counters and, via the
// circuit breaker, stop further batches with a clean completed status.
func (e *Engine) runBatches(ctx context.Context, run *entities.PipelineRun, chain []chainStep, target *entities.Attribute, entityIDs []uint, batchSize int) error {
	for start := 0; start < len(entityIDs); start += batchSize {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("run timed out: %w", err)
		}

		end := start + batchSize
		if end > len(entityIDs) {
			end = len(entityIDs)
		}

		hadFailure, err := e.runBatch(ctx, run, chain, target, entityIDs[start:end])
		if err != nil {
			return err
		}

		if err := e.ledger.UpdatePipelineCounters(run); err != nil {
			return fmt.Errorf("failed to update run counters: %w", err)
		}

		// Conservative circuit breaker: a failed entity stops further
		// batches; already-started entities of this batch have completed.
		if hadFailure {
			log.Printf("Pipeline run %s: aborting remaining batches after entity failure", run.RunID)
			return nil
		}
	}
	return nil
}

// runBatch executes the chain for one batch of entities and reports whether
// any entity failed.
func (e *Engine) runBatch(ctx context.Context, run *entities.PipelineRun, chain []chainStep, target *entities.Attribute, entityIDs []uint) (bool, error) {
	active := make([]*modules.ExecContext, 0, len(entityIDs))
	for _, entityID := range entityIDs {
		active = append(active, &modules.ExecContext{
			EntityID:          entityID,
			TargetAttributeID: target.ID,
			PipelineVersion:   run.PipelineVersion,
			Inputs:            map[string]any{},
			Meta:              map[string]string{"run_id": run.RunID},
		})
	}

	hadFailure := false
	for _, step := range chain {
		if len(active) == 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			return hadFailure, fmt.Errorf("run timed out: %w", err)
		}

		for _, ec := range active {
			ec.Settings = step.settings
		}

		results := modules.ProcessAll(ctx, step.module, active)
		if len(results) != len(active) {
			return hadFailure, fmt.Errorf("module %q returned %d results for %d contexts", step.class, len(results), len(active))
		}

		survivors := active[:0]
		for i, result := range results {
			ec := active[i]
			run.TokenUsage += result.TokensUsed

			switch result.Status {
			case modules.StatusOK:
				ec.Inputs[modules.SeedKey] = result.Value
				survivors = append(survivors, ec)
			case modules.StatusSkipped:
				run.Skipped++
			case modules.StatusError:
				run.Failed++
				hadFailure = true
				log.Printf("Pipeline run %s: entity %d failed in module %q: %v",
					run.RunID, ec.EntityID, step.class, result.Err)
			default:
				return hadFailure, fmt.Errorf("module %q returned invalid status %q", step.class, result.Status)
			}
		}
		active = survivors
	}

	// Entities surviving the whole chain get their current slot written.
	for _, ec := range active {
		stored, err := cast.In(target.DataType, ec.Inputs[modules.SeedKey])
		if err != nil {
			run.Failed++
			hadFailure = true
			log.Printf("Pipeline run %s: entity %d produced uncastable value: %v", run.RunID, ec.EntityID, err)
			continue
		}
		if err := e.values.WriteCurrent(ec.EntityID, target.ID, stored); err != nil {
			return hadFailure, fmt.Errorf("failed to write current value for entity %d: %w", ec.EntityID, err)
		}
		run.Processed++
	}

	return hadFailure, nil
}

// resolveChain freezes the pipeline's module chain: constructs each module
// via the registry and decodes its settings JSON.
func (e *Engine) resolveChain(pipeline *entities.Pipeline) ([]chainStep, error) {
	chain := make([]chainStep, 0, len(pipeline.Modules))
	for _, pm := range pipeline.Modules {
		module, err := e.registry.New(pm.ModuleClass)
		if err != nil {
			return nil, fmt.Errorf("pipeline %d position %d: %w", pipeline.ID, pm.Position, err)
		}
		settings, err := DecodeSettings(pm.Settings)
		if err != nil {
			return nil, fmt.Errorf("pipeline %d position %d: %w", pipeline.ID, pm.Position, err)
		}
		chain = append(chain, chainStep{class: pm.ModuleClass, module: module, settings: settings})
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("pipeline %d has no module chain", pipeline.ID)
	}
	return chain, nil
}

// DecodeSettings parses a module's JSON settings column into the map form
// modules consume.
func DecodeSettings(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	var settings map[string]any
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return nil, fmt.Errorf("malformed module settings: %w", err)
	}
	return settings, nil
}
