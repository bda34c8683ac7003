package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/attrpipe/internal/engine"
	"github.com/mrlokans/attrpipe/internal/entities"
)

// RunPipelineTask executes a full pipeline run over a set of entities, or
// over every entity of the pipeline's type when EntityIDs is empty.
type RunPipelineTask struct {
	PipelineID  uint                 `json:"pipeline_id"`
	EntityIDs   []uint               `json:"entity_ids,omitempty"`
	TriggeredBy entities.TriggeredBy `json:"triggered_by"`
	BatchSize   int                  `json:"batch_size,omitempty"`
	MaxEntities int                  `json:"max_entities,omitempty"`
}

// Config returns the queue configuration for pipeline run tasks.
func (t RunPipelineTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "run_pipeline",
		MaxAttempts: 1, // retries are the caller's responsibility
		Timeout:     engine.DefaultBatchTimeout + time.Minute,
		Retention: &backlite.Retention{
			Duration:   24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// RunPipelineProcessor creates a processor function for RunPipelineTask.
func RunPipelineProcessor(eng *engine.Engine) backlite.QueueProcessor[RunPipelineTask] {
	return func(ctx context.Context, task RunPipelineTask) error {
		if eng == nil {
			return fmt.Errorf("engine not configured")
		}

		triggeredBy := task.TriggeredBy
		if triggeredBy == "" {
			triggeredBy = entities.TriggeredByManual
		}

		run, err := eng.Execute(ctx, engine.ExecuteRequest{
			PipelineID:  task.PipelineID,
			EntityIDs:   task.EntityIDs,
			TriggeredBy: triggeredBy,
			BatchSize:   task.BatchSize,
			MaxEntities: task.MaxEntities,
		})
		if err != nil {
			return fmt.Errorf("run pipeline %d: %w", task.PipelineID, err)
		}

		log.Printf("[TASK] Pipeline %d run %s finished: %s (processed=%d failed=%d skipped=%d)",
			task.PipelineID, run.RunID, run.Status, run.Processed, run.Failed, run.Skipped)
		return nil
	}
}

// NewRunPipelineQueue creates a backlite queue for pipeline run tasks.
func NewRunPipelineQueue(eng *engine.Engine) backlite.Queue {
	return backlite.NewQueue(RunPipelineProcessor(eng))
}
