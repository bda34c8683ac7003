package modules

import (
	"context"
	"errors"
	"fmt"

	"github.com/mitchellh/mapstructure"
	"gorm.io/gorm"

	"github.com/mrlokans/attrpipe/internal/entities"
)

// InputReader provides access to the raw input-value rows.
type InputReader interface {
	GetInput(entityID, attributeID uint) (*entities.InputValue, error)
}

// ValueReader provides the externally visible value of an attribute.
type ValueReader interface {
	EffectiveValue(entityID, attributeID uint) (*string, error)
}

// decodeSettings maps an untyped settings map onto a typed config struct.
func decodeSettings(settings map[string]any, out any) error {
	if err := mapstructure.Decode(settings, out); err != nil {
		return fmt.Errorf("invalid module settings: %w", err)
	}
	return nil
}

// InputSourceModule seeds a chain from the raw input value of an attribute.
// An entity without an input row is skipped unless a default is configured.
type InputSourceModule struct {
	inputs InputReader
}

type inputSourceSettings struct {
	AttributeID uint    `mapstructure:"attribute_id"`
	Default     *string `mapstructure:"default"`
}

// NewInputSourceFactory returns a factory for input_source modules.
func NewInputSourceFactory(inputs InputReader) Factory {
	return func() Module {
		return &InputSourceModule{inputs: inputs}
	}
}

func (m *InputSourceModule) Kind() Kind {
	return KindSource
}

func (m *InputSourceModule) InputAttributes(settings map[string]any) ([]uint, error) {
	// Input values live outside the versioned slots; changing them does not
	// flow through the attribute dependency graph.
	return nil, nil
}

func (m *InputSourceModule) Process(ctx context.Context, ec *ExecContext) Result {
	var cfg inputSourceSettings
	if err := decodeSettings(ec.Settings, &cfg); err != nil {
		return Fail(err)
	}
	if cfg.AttributeID == 0 {
		return Fail(fmt.Errorf("input_source: attribute_id is required"))
	}

	input, err := m.inputs.GetInput(ec.EntityID, cfg.AttributeID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if cfg.Default != nil {
			return OK(*cfg.Default)
		}
		return Skip()
	}
	if err != nil {
		return Fail(fmt.Errorf("input_source: %w", err))
	}

	ec.Inputs["source_tag"] = input.SourceTag
	return OK(input.RawValue)
}

// AttributeSourceModule seeds a chain from another attribute's effective
// value, declaring that attribute as a dependency so edits re-trigger the
// pipeline.
type AttributeSourceModule struct {
	values ValueReader
}

type attributeSourceSettings struct {
	AttributeID uint `mapstructure:"attribute_id"`
}

// NewAttributeSourceFactory returns a factory for attribute_source modules.
func NewAttributeSourceFactory(values ValueReader) Factory {
	return func() Module {
		return &AttributeSourceModule{values: values}
	}
}

func (m *AttributeSourceModule) Kind() Kind {
	return KindSource
}

func (m *AttributeSourceModule) InputAttributes(settings map[string]any) ([]uint, error) {
	var cfg attributeSourceSettings
	if err := decodeSettings(settings, &cfg); err != nil {
		return nil, err
	}
	if cfg.AttributeID == 0 {
		return nil, fmt.Errorf("attribute_source: attribute_id is required")
	}
	return []uint{cfg.AttributeID}, nil
}

func (m *AttributeSourceModule) Process(ctx context.Context, ec *ExecContext) Result {
	var cfg attributeSourceSettings
	if err := decodeSettings(ec.Settings, &cfg); err != nil {
		return Fail(err)
	}
	if cfg.AttributeID == 0 {
		return Fail(fmt.Errorf("attribute_source: attribute_id is required"))
	}

	value, err := m.values.EffectiveValue(ec.EntityID, cfg.AttributeID)
	if err != nil {
		return Fail(fmt.Errorf("attribute_source: %w", err))
	}
	if value == nil {
		return Skip()
	}
	return OK(*value)
}

// StaticSourceModule seeds every entity with the same configured value.
type StaticSourceModule struct{}

type staticSourceSettings struct {
	Value any `mapstructure:"value"`
}

// NewStaticSourceFactory returns a factory for static_source modules.
func NewStaticSourceFactory() Factory {
	return func() Module {
		return &StaticSourceModule{}
	}
}

func (m *StaticSourceModule) Kind() Kind {
	return KindSource
}

func (m *StaticSourceModule) InputAttributes(settings map[string]any) ([]uint, error) {
	return nil, nil
}

func (m *StaticSourceModule) Process(ctx context.Context, ec *ExecContext) Result {
	var cfg staticSourceSettings
	if err := decodeSettings(ec.Settings, &cfg); err != nil {
		return Fail(err)
	}
	if cfg.Value == nil {
		return Fail(fmt.Errorf("static_source: value is required"))
	}
	return OK(cfg.Value)
}
