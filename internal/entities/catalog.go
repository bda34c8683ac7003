package entities

import (
	"time"

	"gorm.io/gorm"
)

type DataType string

const (
	DataTypeInteger        DataType = "integer"
	DataTypeText           DataType = "text"
	DataTypeRichText       DataType = "rich_text"
	DataTypeJSON           DataType = "json"
	DataTypeSingleSelect   DataType = "single_select"
	DataTypeMultiSelect    DataType = "multi_select"
	DataTypeReference      DataType = "reference"
	DataTypeReferenceMulti DataType = "reference_multi"
)

// IsEnum reports whether the data type carries an allowed-value option set.
func (d DataType) IsEnum() bool {
	return d == DataTypeSingleSelect || d == DataTypeMultiSelect
}

type Editability string

const (
	EditabilityEditable    Editability = "editable"
	EditabilityOverridable Editability = "overridable"
	EditabilityReadonly    Editability = "readonly"
)

type SyncMode string

const (
	SyncModeNone SyncMode = "none"
	SyncModePush SyncMode = "push" // to external catalog
	SyncModePull SyncMode = "pull" // from external catalog
)

type EntityType struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"uniqueIndex;size:100" json:"name"` // e.g., "product", "category"
	CreatedAt time.Time `json:"created_at"`
}

type Entity struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	EntityTypeID uint           `gorm:"index;->;<-:create" json:"entity_type_id"` // immutable after creation
	ExternalID   string         `gorm:"index;size:256" json:"external_id,omitempty"`
	EntityType   EntityType     `gorm:"foreignKey:EntityTypeID" json:"-"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

type Attribute struct {
	ID           uint        `gorm:"primaryKey" json:"id"`
	EntityTypeID uint        `gorm:"index:idx_attr_type_name,unique" json:"entity_type_id"`
	Name         string      `gorm:"index:idx_attr_type_name,unique;size:100" json:"name"`
	Code         string      `gorm:"size:100" json:"code,omitempty"` // identifier in the external catalog
	DataType     DataType    `gorm:"size:20" json:"data_type"`
	Editability  Editability `gorm:"size:20;default:'editable'" json:"editability"`
	SyncMode     SyncMode    `gorm:"size:10;default:'none'" json:"sync_mode"`

	Options []AttributeOption `gorm:"foreignKey:AttributeID;constraint:OnDelete:CASCADE" json:"options,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AttributeOption is one allowed value of an enum-typed attribute.
// For pull-mode attributes the external catalog owns the full set.
type AttributeOption struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	AttributeID uint   `gorm:"index" json:"attribute_id"`
	Value       string `gorm:"size:256" json:"value"`
	Label       string `gorm:"size:256" json:"label,omitempty"`
	Position    int    `json:"position"`
}

func (EntityType) TableName() string {
	return "entity_types"
}

func (Entity) TableName() string {
	return "entities"
}

func (Attribute) TableName() string {
	return "attributes"
}

func (AttributeOption) TableName() string {
	return "attribute_options"
}
