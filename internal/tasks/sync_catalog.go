package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/attrpipe/internal/entities"
	"github.com/mrlokans/attrpipe/internal/syncer"
)

// SyncProductsTask pushes approved attribute values of an entity type (or a
// single entity when EntityID is set) to the external catalog.
type SyncProductsTask struct {
	EntityTypeID uint                 `json:"entity_type_id"`
	EntityID     uint                 `json:"entity_id,omitempty"`
	TriggeredBy  entities.TriggeredBy `json:"triggered_by"`
	UserID       uint                 `json:"user_id,omitempty"`
}

// Config returns the queue configuration for product sync tasks.
func (t SyncProductsTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "sync_products",
		MaxAttempts: 1, // re-dispatch a new run instead of retrying
		Timeout:     syncer.DefaultTimeout + time.Minute,
		Retention: &backlite.Retention{
			Duration:   24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// SyncProductsProcessor creates a processor function for SyncProductsTask.
func SyncProductsProcessor(eng *syncer.Engine) backlite.QueueProcessor[SyncProductsTask] {
	return func(ctx context.Context, task SyncProductsTask) error {
		if eng == nil {
			return fmt.Errorf("sync engine not configured")
		}

		var entityIDs []uint
		if task.EntityID != 0 {
			entityIDs = []uint{task.EntityID}
		}

		triggeredBy := task.TriggeredBy
		if triggeredBy == "" {
			triggeredBy = entities.TriggeredByManual
		}

		run, err := eng.SyncProducts(ctx, task.EntityTypeID, entityIDs, triggeredBy, task.UserID)
		if err != nil {
			return fmt.Errorf("sync products for type %d: %w", task.EntityTypeID, err)
		}

		log.Printf("[TASK] Product sync run %s finished: %s (created=%d updated=%d failed=%d skipped=%d)",
			run.RunID, run.Status, run.Created, run.Updated, run.Failed, run.Skipped)
		return nil
	}
}

// NewSyncProductsQueue creates a backlite queue for product sync tasks.
func NewSyncProductsQueue(eng *syncer.Engine) backlite.Queue {
	return backlite.NewQueue(SyncProductsProcessor(eng))
}

// SyncOptionsTask pulls authoritative option sets from the external catalog
// for pull-mode enum attributes of an entity type.
type SyncOptionsTask struct {
	EntityTypeID uint                 `json:"entity_type_id"`
	TriggeredBy  entities.TriggeredBy `json:"triggered_by"`
	UserID       uint                 `json:"user_id,omitempty"`
}

// Config returns the queue configuration for option sync tasks.
func (t SyncOptionsTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "sync_options",
		MaxAttempts: 1,
		Timeout:     syncer.DefaultTimeout + time.Minute,
		Retention: &backlite.Retention{
			Duration:   24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// SyncOptionsProcessor creates a processor function for SyncOptionsTask.
func SyncOptionsProcessor(eng *syncer.Engine) backlite.QueueProcessor[SyncOptionsTask] {
	return func(ctx context.Context, task SyncOptionsTask) error {
		if eng == nil {
			return fmt.Errorf("sync engine not configured")
		}

		triggeredBy := task.TriggeredBy
		if triggeredBy == "" {
			triggeredBy = entities.TriggeredByManual
		}

		run, err := eng.SyncOptions(ctx, task.EntityTypeID, triggeredBy, task.UserID)
		if err != nil {
			return fmt.Errorf("sync options for type %d: %w", task.EntityTypeID, err)
		}

		log.Printf("[TASK] Option sync run %s finished: %s (updated=%d failed=%d skipped=%d)",
			run.RunID, run.Status, run.Updated, run.Failed, run.Skipped)
		return nil
	}
}

// NewSyncOptionsQueue creates a backlite queue for option sync tasks.
func NewSyncOptionsQueue(eng *syncer.Engine) backlite.Queue {
	return backlite.NewQueue(SyncOptionsProcessor(eng))
}
