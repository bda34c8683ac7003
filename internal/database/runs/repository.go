// Package runs provides the run ledger: append-only records of pipeline and
// sync executions. A run row is created in status running, finished exactly
// once with a terminal status and final counters, and never mutated again.
package runs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mrlokans/attrpipe/internal/entities"
)

// Repository handles run ledger database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new run ledger repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// CreatePipelineRun opens a pipeline run record and returns it with its
// public run identifier assigned.
func (r *Repository) CreatePipelineRun(pipelineID uint, pipelineVersion int, triggeredBy entities.TriggeredBy, triggerReference string, batchSize int) (*entities.PipelineRun, error) {
	run := &entities.PipelineRun{
		RunID:            uuid.NewString(),
		PipelineID:       pipelineID,
		PipelineVersion:  pipelineVersion,
		TriggeredBy:      triggeredBy,
		TriggerReference: triggerReference,
		Status:           entities.RunStatusRunning,
		BatchSize:        batchSize,
		StartedAt:        time.Now().UTC(),
	}
	if err := r.db.Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

// UpdatePipelineCounters advances the counters of a running pipeline run so
// that pollers see monotonically growing numbers before the terminal write.
func (r *Repository) UpdatePipelineCounters(run *entities.PipelineRun) error {
	return r.db.Model(&entities.PipelineRun{}).Where("id = ?", run.ID).
		Updates(map[string]any{
			"processed":   run.Processed,
			"failed":      run.Failed,
			"skipped":     run.Skipped,
			"token_usage": run.TokenUsage,
		}).Error
}

// FinishPipelineRun appends the terminal status, counters and error summary.
func (r *Repository) FinishPipelineRun(run *entities.PipelineRun, status entities.RunStatus, errorSummary string) error {
	now := time.Now().UTC()
	run.Status = status
	run.ErrorSummary = errorSummary
	run.CompletedAt = &now
	return r.db.Model(&entities.PipelineRun{}).Where("id = ?", run.ID).
		Updates(map[string]any{
			"status":        status,
			"processed":     run.Processed,
			"failed":        run.Failed,
			"skipped":       run.Skipped,
			"token_usage":   run.TokenUsage,
			"error_summary": errorSummary,
			"completed_at":  now,
		}).Error
}

// GetPipelineRun resolves a pipeline run by its public identifier.
func (r *Repository) GetPipelineRun(runID string) (*entities.PipelineRun, error) {
	var run entities.PipelineRun
	err := r.db.Where("run_id = ?", runID).First(&run).Error
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// GetPipelineRunsForPipeline lists a pipeline's runs, newest first.
func (r *Repository) GetPipelineRunsForPipeline(pipelineID uint, limit int) ([]entities.PipelineRun, error) {
	var list []entities.PipelineRun
	query := r.db.Where("pipeline_id = ?", pipelineID).Order("started_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&list).Error
	return list, err
}

// CreateSyncRun opens a sync run record.
func (r *Repository) CreateSyncRun(entityTypeID uint, kind entities.SyncKind, triggeredBy entities.TriggeredBy, userID uint) (*entities.SyncRun, error) {
	run := &entities.SyncRun{
		RunID:        uuid.NewString(),
		EntityTypeID: entityTypeID,
		Kind:         kind,
		TriggeredBy:  triggeredBy,
		UserID:       userID,
		Status:       entities.RunStatusRunning,
		StartedAt:    time.Now().UTC(),
	}
	if err := r.db.Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

// UpdateSyncCounters advances the counters of a running sync run.
func (r *Repository) UpdateSyncCounters(run *entities.SyncRun) error {
	return r.db.Model(&entities.SyncRun{}).Where("id = ?", run.ID).
		Updates(map[string]any{
			"created": run.Created,
			"updated": run.Updated,
			"failed":  run.Failed,
			"skipped": run.Skipped,
		}).Error
}

// FinishSyncRun appends the terminal status, counters and error summary.
func (r *Repository) FinishSyncRun(run *entities.SyncRun, status entities.RunStatus, errorSummary string) error {
	now := time.Now().UTC()
	run.Status = status
	run.ErrorSummary = errorSummary
	run.CompletedAt = &now
	return r.db.Model(&entities.SyncRun{}).Where("id = ?", run.ID).
		Updates(map[string]any{
			"status":        status,
			"created":       run.Created,
			"updated":       run.Updated,
			"failed":        run.Failed,
			"skipped":       run.Skipped,
			"error_summary": errorSummary,
			"completed_at":  now,
		}).Error
}

// GetSyncRun resolves a sync run by its public identifier.
func (r *Repository) GetSyncRun(runID string) (*entities.SyncRun, error) {
	var run entities.SyncRun
	err := r.db.Where("run_id = ?", runID).First(&run).Error
	if err != nil {
		return nil, err
	}
	return &run, nil
}
