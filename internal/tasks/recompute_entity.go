package tasks

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/attrpipe/internal/engine"
	"github.com/mrlokans/attrpipe/internal/entities"
)

// RecomputeEntityTask re-runs one pipeline for one entity after an input
// attribute of that pipeline changed. Enqueued by the dependency
// invalidation service.
type RecomputeEntityTask struct {
	PipelineID uint `json:"pipeline_id"`
	EntityID   uint `json:"entity_id"`
}

// Config returns the queue configuration for entity recompute tasks.
func (t RecomputeEntityTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "recompute_entity",
		MaxAttempts: 3,
		Backoff:     30 * time.Second,
		Timeout:     engine.DefaultSingleTimeout + time.Minute,
		Retention: &backlite.Retention{
			Duration:   24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// RecomputeEntityProcessor creates a processor function for
// RecomputeEntityTask.
func RecomputeEntityProcessor(eng *engine.Engine) backlite.QueueProcessor[RecomputeEntityTask] {
	return func(ctx context.Context, task RecomputeEntityTask) error {
		if eng == nil {
			return fmt.Errorf("engine not configured")
		}

		run, err := eng.ExecuteSingle(ctx, task.PipelineID, task.EntityID,
			entities.TriggeredByEntitySave, strconv.FormatUint(uint64(task.EntityID), 10))
		if err != nil {
			return fmt.Errorf("recompute entity %d via pipeline %d: %w", task.EntityID, task.PipelineID, err)
		}

		log.Printf("[TASK] Recomputed entity %d via pipeline %d: run %s %s",
			task.EntityID, task.PipelineID, run.RunID, run.Status)
		return nil
	}
}

// NewRecomputeEntityQueue creates a backlite queue for entity recompute
// tasks.
func NewRecomputeEntityQueue(eng *engine.Engine) backlite.Queue {
	return backlite.NewQueue(RecomputeEntityProcessor(eng))
}
