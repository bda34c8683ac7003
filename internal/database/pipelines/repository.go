// Package pipelines provides database operations for pipeline definitions
// and their ordered module chains.
package pipelines

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/mrlokans/attrpipe/internal/entities"
	"github.com/mrlokans/attrpipe/internal/modules"
)

// Repository handles pipeline persistence. Chain composition is validated
// at save time so that malformed chains never reach execution.
type Repository struct {
	db       *gorm.DB
	registry *modules.Registry
}

// NewRepository creates a new pipeline repository. The registry is used to
// resolve module kinds during chain validation.
func NewRepository(db *gorm.DB, registry *modules.Registry) *Repository {
	return &Repository{db: db, registry: registry}
}

// ValidateChain checks the composition rules: at least two modules, a
// source-kind module at position 0, processor-kind modules everywhere else,
// contiguous positions, and every module class known to the registry.
func (r *Repository) ValidateChain(chain []entities.PipelineModule) error {
	if len(chain) < 2 {
		return fmt.Errorf("pipeline chain must have at least 2 modules, got %d", len(chain))
	}

	for i, module := range chain {
		if module.Position != i {
			return fmt.Errorf("pipeline chain positions must be contiguous: expected %d, got %d", i, module.Position)
		}

		kind, err := r.registry.Kind(module.ModuleClass)
		if err != nil {
			return fmt.Errorf("module at position %d: %w", i, err)
		}

		if i == 0 && kind != modules.KindSource {
			return fmt.Errorf("module at position 0 must be a source module, %q is a %s", module.ModuleClass, kind)
		}
		if i > 0 && kind != modules.KindProcessor {
			return fmt.Errorf("module at position %d must be a processor module, %q is a %s", i, module.ModuleClass, kind)
		}
	}

	return nil
}

// Save creates or updates a pipeline together with its module chain. Any
// edit of an existing chain replaces the module list transactionally and
// bumps the pipeline version.
func (r *Repository) Save(pipeline *entities.Pipeline) error {
	if err := r.ValidateChain(pipeline.Modules); err != nil {
		return err
	}

	return r.db.Transaction(func(tx *gorm.DB) error {
		if pipeline.ID == 0 {
			pipeline.Version = 1
			modulesToSave := pipeline.Modules
			pipeline.Modules = nil
			if err := tx.Create(pipeline).Error; err != nil {
				return fmt.Errorf("failed to create pipeline: %w", err)
			}
			pipeline.Modules = modulesToSave
		} else {
			var existing entities.Pipeline
			if err := tx.First(&existing, pipeline.ID).Error; err != nil {
				return fmt.Errorf("failed to load pipeline %d: %w", pipeline.ID, err)
			}
			pipeline.Version = existing.Version + 1

			if err := tx.Where("pipeline_id = ?", pipeline.ID).Delete(&entities.PipelineModule{}).Error; err != nil {
				return fmt.Errorf("failed to clear module chain: %w", err)
			}
			if err := tx.Model(&entities.Pipeline{}).Where("id = ?", pipeline.ID).
				Updates(map[string]any{
					"name":                pipeline.Name,
					"version":             pipeline.Version,
					"entity_type_id":      pipeline.EntityTypeID,
					"target_attribute_id": pipeline.TargetAttributeID,
				}).Error; err != nil {
				return fmt.Errorf("failed to update pipeline: %w", err)
			}
		}

		for i := range pipeline.Modules {
			pipeline.Modules[i].ID = 0
			pipeline.Modules[i].PipelineID = pipeline.ID
			if err := tx.Create(&pipeline.Modules[i]).Error; err != nil {
				return fmt.Errorf("failed to create module at position %d: %w", i, err)
			}
		}

		return nil
	})
}

// GetByID loads a pipeline with its module chain in position order.
func (r *Repository) GetByID(id uint) (*entities.Pipeline, error) {
	var pipeline entities.Pipeline
	err := r.db.Preload("Modules", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	}).First(&pipeline, id).Error
	if err != nil {
		return nil, err
	}
	return &pipeline, nil
}

// GetByTarget returns the one pipeline producing the given attribute.
func (r *Repository) GetByTarget(entityTypeID, targetAttributeID uint) (*entities.Pipeline, error) {
	var pipeline entities.Pipeline
	err := r.db.Preload("Modules", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	}).Where("entity_type_id = ? AND target_attribute_id = ?", entityTypeID, targetAttributeID).
		First(&pipeline).Error
	if err != nil {
		return nil, err
	}
	return &pipeline, nil
}

// All returns every pipeline with its module chain, used by the dependency
// invalidation scan.
func (r *Repository) All() ([]entities.Pipeline, error) {
	var list []entities.Pipeline
	err := r.db.Preload("Modules", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	}).Order("id ASC").Find(&list).Error
	return list, err
}

// Delete removes a pipeline and cascades its module chain.
func (r *Repository) Delete(id uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("pipeline_id = ?", id).Delete(&entities.PipelineModule{}).Error; err != nil {
			return err
		}
		return tx.Delete(&entities.Pipeline{}, id).Error
	})
}
