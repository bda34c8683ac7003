package entities

import (
	"time"
)

// AttributeValue is the four-slot value record for one (entity, attribute)
// pair. All slots store the normalized string form produced by the cast
// layer; a NULL slot means "not set". The externally visible value is
// Override if present, else Approved, else Current. A row is pending sync
// when Approved differs from Live.
type AttributeValue struct {
	ID          uint `gorm:"primaryKey" json:"id"`
	EntityID    uint `gorm:"index:idx_value_entity_attr,unique" json:"entity_id"`
	AttributeID uint `gorm:"index:idx_value_entity_attr,unique" json:"attribute_id"`

	Current  *string `gorm:"type:text" json:"current,omitempty"`  // written by pipeline runs
	Approved *string `gorm:"type:text" json:"approved,omitempty"` // written by reviewer action
	Override *string `gorm:"type:text" json:"override,omitempty"` // written by user pinning
	Live     *string `gorm:"type:text" json:"live,omitempty"`     // last value confirmed in the external catalog

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"` // last-write-wins tie break for audit display only
}

// Effective applies the override > approved > current precedence.
func (v *AttributeValue) Effective() *string {
	if v.Override != nil {
		return v.Override
	}
	if v.Approved != nil {
		return v.Approved
	}
	return v.Current
}

// PendingSync reports whether the approved slot has not been confirmed live.
// A row with nothing approved has nothing to sync.
func (v *AttributeValue) PendingSync() bool {
	if v.Approved == nil {
		return false
	}
	if v.Live == nil {
		return true
	}
	return *v.Approved != *v.Live
}

// InputValue is an externally sourced raw value feeding a source module.
// It is independent of the versioned slots: one row per (entity, attribute),
// always writable.
type InputValue struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	EntityID    uint      `gorm:"index:idx_input_entity_attr,unique" json:"entity_id"`
	AttributeID uint      `gorm:"index:idx_input_entity_attr,unique" json:"attribute_id"`
	RawValue    string    `gorm:"type:text" json:"raw_value"`
	SourceTag   string    `gorm:"size:100" json:"source_tag,omitempty"` // e.g., "feed", "manual", "erp"
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (AttributeValue) TableName() string {
	return "attribute_values"
}

func (InputValue) TableName() string {
	return "input_values"
}
