// Package values provides database operations for the versioned attribute
// store: the four-slot value rows and the raw input values feeding source
// modules.
//
// # Usage
//
//	repo := values.NewRepository(db)
//	err := repo.WriteCurrent(entityID, attrID, &computed)
package values

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/mrlokans/attrpipe/internal/entities"
)

// Slot names the four value columns of an attribute value row.
type Slot string

const (
	SlotCurrent  Slot = "current"
	SlotApproved Slot = "approved"
	SlotOverride Slot = "override"
	SlotLive     Slot = "live"
)

// Repository handles all versioned-value database operations. Every slot
// write is an idempotent upsert keyed by (entity, attribute); clearing a
// slot is a write of NULL, never a row delete. Concurrent writers to the
// same slot are last-write-wins on UpdatedAt.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new versioned-value repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Read returns the four-slot row for (entity, attribute). A missing row
// comes back as an empty record, not an error.
func (r *Repository) Read(entityID, attributeID uint) (*entities.AttributeValue, error) {
	var value entities.AttributeValue
	err := r.db.Where("entity_id = ? AND attribute_id = ?", entityID, attributeID).First(&value).Error
	if err == gorm.ErrRecordNotFound {
		return &entities.AttributeValue{EntityID: entityID, AttributeID: attributeID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}

func (r *Repository) WriteCurrent(entityID, attributeID uint, value *string) error {
	return r.writeSlot(entityID, attributeID, SlotCurrent, value)
}

func (r *Repository) WriteApproved(entityID, attributeID uint, value *string) error {
	return r.writeSlot(entityID, attributeID, SlotApproved, value)
}

// WriteOverride pins a manual value. The attribute must allow overriding.
func (r *Repository) WriteOverride(entityID, attributeID uint, value *string) error {
	var attr entities.Attribute
	if err := r.db.First(&attr, attributeID).Error; err != nil {
		return fmt.Errorf("failed to load attribute %d: %w", attributeID, err)
	}
	if attr.Editability != entities.EditabilityOverridable {
		return fmt.Errorf("attribute %q does not allow overrides", attr.Name)
	}
	return r.writeSlot(entityID, attributeID, SlotOverride, value)
}

func (r *Repository) WriteLive(entityID, attributeID uint, value *string) error {
	return r.writeSlot(entityID, attributeID, SlotLive, value)
}

func (r *Repository) writeSlot(entityID, attributeID uint, slot Slot, value *string) error {
	var existing entities.AttributeValue
	result := r.db.Where("entity_id = ? AND attribute_id = ?", entityID, attributeID).First(&existing)

	if result.Error == gorm.ErrRecordNotFound {
		row := entities.AttributeValue{EntityID: entityID, AttributeID: attributeID}
		setSlot(&row, slot, value)
		return r.db.Create(&row).Error
	} else if result.Error != nil {
		return result.Error
	}

	// Update only the one column so writers to different slots of the same
	// row never conflict.
	return r.db.Model(&existing).Update(string(slot), value).Error
}

func setSlot(row *entities.AttributeValue, slot Slot, value *string) {
	switch slot {
	case SlotCurrent:
		row.Current = value
	case SlotApproved:
		row.Approved = value
	case SlotOverride:
		row.Override = value
	case SlotLive:
		row.Live = value
	}
}

// EffectiveValue applies the override > approved > current precedence.
func (r *Repository) EffectiveValue(entityID, attributeID uint) (*string, error) {
	value, err := r.Read(entityID, attributeID)
	if err != nil {
		return nil, err
	}
	return value.Effective(), nil
}

// PendingSyncEntityIDs returns the entities holding at least one of the
// given attributes with an approved value not yet confirmed live. Used for
// sync backlog reporting.
func (r *Repository) PendingSyncEntityIDs(attributeIDs []uint) ([]uint, error) {
	if len(attributeIDs) == 0 {
		return nil, nil
	}
	var ids []uint
	err := r.db.Model(&entities.AttributeValue{}).
		Distinct("entity_id").
		Where("attribute_id IN ?", attributeIDs).
		Where("approved IS NOT NULL AND (live IS NULL OR approved != live)").
		Order("entity_id ASC").
		Pluck("entity_id", &ids).Error
	return ids, err
}

// SetInput upserts the raw externally-sourced value for (entity, attribute).
func (r *Repository) SetInput(entityID, attributeID uint, rawValue, sourceTag string) error {
	var existing entities.InputValue
	result := r.db.Where("entity_id = ? AND attribute_id = ?", entityID, attributeID).First(&existing)

	if result.Error == gorm.ErrRecordNotFound {
		input := entities.InputValue{
			EntityID:    entityID,
			AttributeID: attributeID,
			RawValue:    rawValue,
			SourceTag:   sourceTag,
		}
		return r.db.Create(&input).Error
	} else if result.Error != nil {
		return result.Error
	}

	existing.RawValue = rawValue
	existing.SourceTag = sourceTag
	return r.db.Save(&existing).Error
}

// GetInput retrieves the raw input value for (entity, attribute).
func (r *Repository) GetInput(entityID, attributeID uint) (*entities.InputValue, error) {
	var input entities.InputValue
	err := r.db.Where("entity_id = ? AND attribute_id = ?", entityID, attributeID).First(&input).Error
	if err != nil {
		return nil, err
	}
	return &input, nil
}
