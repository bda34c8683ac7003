// Package modules defines the pipeline module contract: the polymorphic
// unit of computation a pipeline chain is assembled from, and the registry
// resolving module class identifiers to implementations.
package modules

import (
	"context"
)

// Kind classifies a module within a chain. A chain starts with exactly one
// source module and continues with processor modules.
type Kind string

const (
	KindSource    Kind = "source"
	KindProcessor Kind = "processor"
)

// ResultStatus is the per-entity outcome of one module step.
type ResultStatus string

const (
	StatusOK      ResultStatus = "ok"
	StatusSkipped ResultStatus = "skipped" // entity excluded from output, not a failure
	StatusError   ResultStatus = "error"   // entity marked failed, chain stops for it
)

// SeedKey is the reserved input key under which the source module's value
// travels through the chain. Processors may add further named keys but
// never remove existing ones.
const SeedKey = "value"

// ExecContext carries one entity's state through a module chain. The same
// context is threaded from module N to module N+1.
type ExecContext struct {
	EntityID          uint
	TargetAttributeID uint
	PipelineVersion   int
	Settings          map[string]any // the current module's decoded settings
	Inputs            map[string]any
	Meta              map[string]string
}

// Seed returns the chained value produced by the previous module.
func (ec *ExecContext) Seed() any {
	return ec.Inputs[SeedKey]
}

// Result is the outcome of one module processing one entity.
type Result struct {
	Status     ResultStatus
	Value      any
	Err        error
	TokensUsed int
}

func OK(value any) Result {
	return Result{Status: StatusOK, Value: value}
}

func Skip() Result {
	return Result{Status: StatusSkipped}
}

func Fail(err error) Result {
	return Result{Status: StatusError, Err: err}
}

// Module is one step of a pipeline chain. Implementations must be safe for
// reuse across entities; per-entity state belongs in the ExecContext.
type Module interface {
	// Kind reports whether the module seeds a chain or transforms it.
	Kind() Kind

	// InputAttributes declares which attribute IDs the module reads given
	// its settings, used by the dependency invalidation scan. Declarations
	// are static: no entity data is available here.
	InputAttributes(settings map[string]any) ([]uint, error)

	// Process computes the module's result for a single entity.
	Process(ctx context.Context, ec *ExecContext) Result
}

// BatchModule is implemented by modules with a vectorized workload, e.g.
// batched external calls. The engine falls back to calling Process once per
// context when a module does not implement it.
type BatchModule interface {
	Module
	ProcessBatch(ctx context.Context, ecs []*ExecContext) []Result
}

// ProcessAll runs a module over a batch, using its vectorized path when
// available.
func ProcessAll(ctx context.Context, m Module, ecs []*ExecContext) []Result {
	if batch, ok := m.(BatchModule); ok {
		return batch.ProcessBatch(ctx, ecs)
	}
	results := make([]Result, len(ecs))
	for i, ec := range ecs {
		results[i] = m.Process(ctx, ec)
	}
	return results
}
