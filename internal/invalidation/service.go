// Package invalidation reacts to attribute-value mutations by re-triggering
// the pipelines that declare the changed attribute as an input.
package invalidation

import (
	"context"
	"log"

	"github.com/mrlokans/attrpipe/internal/database/pipelines"
	"github.com/mrlokans/attrpipe/internal/engine"
	"github.com/mrlokans/attrpipe/internal/entities"
	"github.com/mrlokans/attrpipe/internal/modules"
)

// RunScheduler enqueues a single-entity pipeline re-execution. Implemented
// by the task queue client; at-least-once delivery is fine because current
// writes are idempotent.
type RunScheduler interface {
	ScheduleEntityRecompute(ctx context.Context, pipelineID, entityID uint) error
}

// Service walks pipeline chains to find dependents of a changed attribute.
// The pass is best effort: it does not guarantee exactly-once triggering
// under concurrent writes to the same entity.
type Service struct {
	pipelines *pipelines.Repository
	registry  *modules.Registry
	scheduler RunScheduler
}

// NewService creates a dependency invalidation service.
func NewService(pipelineRepo *pipelines.Repository, registry *modules.Registry, scheduler RunScheduler) *Service {
	return &Service{
		pipelines: pipelineRepo,
		registry:  registry,
		scheduler: scheduler,
	}
}

// AttributeChanged schedules a single-entity run for every pipeline whose
// chain declares the changed attribute as an input. It returns the number
// of runs scheduled. The first declaring module short-circuits its
// pipeline's scan; a module whose declaration call fails is treated as
// declaring no dependencies so one bad settings blob cannot stall the pass.
func (s *Service) AttributeChanged(ctx context.Context, entityID, attributeID uint) (int, error) {
	all, err := s.pipelines.All()
	if err != nil {
		return 0, err
	}

	scheduled := 0
	for _, pipeline := range all {
		if !s.dependsOn(pipeline.ID, pipeline.Modules, attributeID) {
			continue
		}

		if err := s.scheduler.ScheduleEntityRecompute(ctx, pipeline.ID, entityID); err != nil {
			log.Printf("Invalidation: failed to schedule pipeline %d for entity %d: %v", pipeline.ID, entityID, err)
			continue
		}
		scheduled++
		log.Printf("Invalidation: scheduled pipeline %d for entity %d (attribute %d changed)", pipeline.ID, entityID, attributeID)
	}

	return scheduled, nil
}

func (s *Service) dependsOn(pipelineID uint, chain []entities.PipelineModule, attributeID uint) bool {
	for _, pm := range chain {
		module, err := s.registry.New(pm.ModuleClass)
		if err != nil {
			log.Printf("Invalidation: pipeline %d references unknown module %q, skipping module", pipelineID, pm.ModuleClass)
			continue
		}

		settings, err := engine.DecodeSettings(pm.Settings)
		if err != nil {
			log.Printf("Invalidation: pipeline %d module %q has malformed settings, skipping module", pipelineID, pm.ModuleClass)
			continue
		}

		inputs, err := module.InputAttributes(settings)
		if err != nil {
			// Misconfigured settings must not abort the scan of other
			// modules or pipelines.
			log.Printf("Invalidation: pipeline %d module %q failed to declare inputs, skipping module: %v", pipelineID, pm.ModuleClass, err)
			continue
		}

		for _, input := range inputs {
			if input == attributeID {
				return true
			}
		}
	}
	return false
}
