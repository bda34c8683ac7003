package entities

import (
	"time"
)

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusPartial   RunStatus = "partial" // sync runs only
	RunStatusFailed    RunStatus = "failed"
)

// Terminal reports whether the status will never change again.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusPartial || s == RunStatusFailed
}

type TriggeredBy string

const (
	TriggeredByManual     TriggeredBy = "manual"
	TriggeredBySchedule   TriggeredBy = "schedule"
	TriggeredByEntitySave TriggeredBy = "entity_save"
)

type SyncKind string

const (
	SyncKindProducts SyncKind = "products"
	SyncKindOptions  SyncKind = "options"
)

// Pipeline is a named, versioned module chain producing the value of one
// target attribute. Exactly one pipeline exists per
// (entity type, target attribute); Version increases on any chain edit.
type Pipeline struct {
	ID                uint   `gorm:"primaryKey" json:"id"`
	EntityTypeID      uint   `gorm:"index:idx_pipeline_type_target,unique" json:"entity_type_id"`
	TargetAttributeID uint   `gorm:"index:idx_pipeline_type_target,unique" json:"target_attribute_id"`
	Name              string `gorm:"size:256" json:"name"`
	Version           int    `gorm:"default:1" json:"version"`

	Modules []PipelineModule `gorm:"foreignKey:PipelineID;constraint:OnDelete:CASCADE" json:"modules,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PipelineModule is one step of a pipeline's ordered chain. Position 0 must
// be a source-kind module, every later position a processor-kind module.
// Settings is the module's config map serialized as JSON.
type PipelineModule struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	PipelineID  uint   `gorm:"index:idx_module_pipeline_pos,unique" json:"pipeline_id"`
	Position    int    `gorm:"index:idx_module_pipeline_pos,unique" json:"position"`
	ModuleClass string `gorm:"size:100" json:"module_class"`
	Settings    string `gorm:"type:text" json:"settings,omitempty"`
}

// PipelineRun is one execution attempt of a pipeline over 1..N entities.
// Rows are append-only audit records: created running, finished once with a
// terminal status and final counters, never touched again.
type PipelineRun struct {
	ID               uint        `gorm:"primaryKey" json:"id"`
	RunID            string      `gorm:"uniqueIndex;size:36" json:"run_id"`
	PipelineID       uint        `gorm:"index" json:"pipeline_id"`
	PipelineVersion  int         `json:"pipeline_version"` // frozen at run start
	TriggeredBy      TriggeredBy `gorm:"size:20" json:"triggered_by"`
	TriggerReference string      `gorm:"size:256" json:"trigger_reference,omitempty"`
	Status           RunStatus   `gorm:"size:20;default:'running'" json:"status"`
	BatchSize        int         `json:"batch_size"`
	Processed        int         `json:"processed"`
	Failed           int         `json:"failed"`
	Skipped          int         `json:"skipped"`
	TokenUsage       int         `json:"token_usage"`
	ErrorSummary     string      `gorm:"type:text" json:"error_summary,omitempty"`
	StartedAt        time.Time   `json:"started_at"`
	CompletedAt      *time.Time  `json:"completed_at,omitempty"`
}

// SyncRun is one execution of the synchronization engine.
type SyncRun struct {
	ID           uint        `gorm:"primaryKey" json:"id"`
	RunID        string      `gorm:"uniqueIndex;size:36" json:"run_id"`
	EntityTypeID uint        `gorm:"index" json:"entity_type_id"`
	Kind         SyncKind    `gorm:"size:20" json:"kind"`
	TriggeredBy  TriggeredBy `gorm:"size:20" json:"triggered_by"`
	UserID       uint        `json:"user_id,omitempty"`
	Status       RunStatus   `gorm:"size:20;default:'running'" json:"status"`
	Created      int         `json:"created"`
	Updated      int         `json:"updated"`
	Failed       int         `json:"failed"`
	Skipped      int         `json:"skipped"`
	ErrorSummary string      `gorm:"type:text" json:"error_summary,omitempty"`
	StartedAt    time.Time   `json:"started_at"`
	CompletedAt  *time.Time  `json:"completed_at,omitempty"`
}

func (Pipeline) TableName() string {
	return "pipelines"
}

func (PipelineModule) TableName() string {
	return "pipeline_modules"
}

func (PipelineRun) TableName() string {
	return "pipeline_runs"
}

func (SyncRun) TableName() string {
	return "sync_runs"
}
