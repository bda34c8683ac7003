// Package syncer reconciles locally approved attribute values and option
// sets with the external catalog.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/mrlokans/attrpipe/internal/cast"
	"github.com/mrlokans/attrpipe/internal/catalog"
	"github.com/mrlokans/attrpipe/internal/database"
	"github.com/mrlokans/attrpipe/internal/database/runs"
	"github.com/mrlokans/attrpipe/internal/database/values"
	"github.com/mrlokans/attrpipe/internal/entities"
)

// DefaultTimeout bounds one option or product sync run.
const DefaultTimeout = time.Hour

// Engine drives both sync kinds. Direction is governed by each attribute's
// sync mode: pull-mode option sets are replaced from the catalog, push-mode
// approved values are sent to it.
type Engine struct {
	db      *database.Database
	values  *values.Repository
	ledger  *runs.Repository
	catalog catalog.Client

	timeout time.Duration
}

// NewEngine creates a synchronization engine.
func NewEngine(db *database.Database, valueRepo *values.Repository, ledger *runs.Repository, client catalog.Client) *Engine {
	return &Engine{
		db:      db,
		values:  valueRepo,
		ledger:  ledger,
		catalog: client,
		timeout: DefaultTimeout,
	}
}

// SetTimeout overrides the run-level timeout.
func (e *Engine) SetTimeout(timeout time.Duration) {
	if timeout > 0 {
		e.timeout = timeout
	}
}

// SyncOptions replaces the local allowed-value sets of pull-mode enum
// attributes with the authoritative sets from the catalog. Local edits to
// option lists are overwritten without merge.
func (e *Engine) SyncOptions(ctx context.Context, entityTypeID uint, triggeredBy entities.TriggeredBy, userID uint) (*entities.SyncRun, error) {
	run, err := e.ledger.CreateSyncRun(entityTypeID, entities.SyncKindOptions, triggeredBy, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync run: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	attrs, err := e.db.GetAttributesBySyncMode(entityTypeID, entities.SyncModePull)
	if err != nil {
		return e.abort(run, fmt.Errorf("failed to list pull attributes: %w", err))
	}

	log.Printf("Option sync %s: %d pull-mode attributes for entity type %d", run.RunID, len(attrs), entityTypeID)

	var errs *multierror.Error
	for _, attr := range attrs {
		if err := runCtx.Err(); err != nil {
			return e.abort(run, fmt.Errorf("run timed out: %w", err))
		}

		if !attr.DataType.IsEnum() {
			run.Skipped++
			continue
		}
		if attr.Code == "" {
			log.Printf("Option sync %s: attribute %q has no external code, skipping", run.RunID, attr.Name)
			run.Skipped++
			continue
		}

		options, err := e.catalog.FetchOptions(runCtx, attr.Code)
		if err != nil {
			if errors.Is(err, catalog.ErrUnavailable) {
				return e.abort(run, err)
			}
			run.Failed++
			errs = multierror.Append(errs, fmt.Errorf("attribute %q: %w", attr.Name, err))
			continue
		}

		replacement := make([]entities.AttributeOption, 0, len(options))
		for _, opt := range options {
			replacement = append(replacement, entities.AttributeOption{Value: opt.Value, Label: opt.Label})
		}
		if err := e.db.ReplaceOptions(attr.ID, replacement); err != nil {
			return e.abort(run, fmt.Errorf("failed to replace options of %q: %w", attr.Name, err))
		}

		run.Updated++
		log.Printf("Option sync %s: attribute %q now has %d options", run.RunID, attr.Name, len(replacement))

		if err := e.ledger.UpdateSyncCounters(run); err != nil {
			return e.abort(run, fmt.Errorf("failed to update run counters: %w", err))
		}
	}

	return e.finish(run, errs)
}

// SyncProducts pushes approved push-mode values of the given entities (all
// entities of the type when entityIDs is empty) to the catalog. A single
// entity's failure does not abort the batch. Values already confirmed live
// are not pushed again, so re-running with no local changes performs zero
// external writes.
func (e *Engine) SyncProducts(ctx context.Context, entityTypeID uint, entityIDs []uint, triggeredBy entities.TriggeredBy, userID uint) (*entities.SyncRun, error) {
	run, err := e.ledger.CreateSyncRun(entityTypeID, entities.SyncKindProducts, triggeredBy, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync run: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	attrs, err := e.db.GetAttributesBySyncMode(entityTypeID, entities.SyncModePush)
	if err != nil {
		return e.abort(run, fmt.Errorf("failed to list push attributes: %w", err))
	}

	targets, err := e.resolveEntities(entityTypeID, entityIDs)
	if err != nil {
		return e.abort(run, err)
	}

	log.Printf("Product sync %s: %d entities, %d push-mode attributes", run.RunID, len(targets), len(attrs))

	var errs *multierror.Error
	for _, entity := range targets {
		if err := runCtx.Err(); err != nil {
			return e.abort(run, fmt.Errorf("run timed out: %w", err))
		}

		if len(attrs) == 0 || entity.ExternalID == "" {
			run.Skipped++
			continue
		}

		outgoing, pushedAttrs, hadLive, err := e.collectOutgoing(entity.ID, attrs)
		if err != nil {
			return e.abort(run, err)
		}
		if len(outgoing) == 0 {
			// Everything already live or nothing approved; no external call.
			run.Skipped++
			continue
		}

		if err := e.catalog.PushEntity(runCtx, entity.ExternalID, outgoing); err != nil {
			if errors.Is(err, catalog.ErrUnavailable) {
				return e.abort(run, err)
			}
			run.Failed++
			errs = multierror.Append(errs, fmt.Errorf("entity %d: %w", entity.ID, err))
			continue
		}

		// Acknowledged: close the approved/live gap with exactly what was
		// pushed.
		for _, pushed := range pushedAttrs {
			value := outgoing[pushed.code]
			if err := e.values.WriteLive(entity.ID, pushed.attributeID, &value); err != nil {
				return e.abort(run, fmt.Errorf("failed to write live value for entity %d: %w", entity.ID, err))
			}
		}

		if hadLive {
			run.Updated++
		} else {
			run.Created++
		}

		if err := e.ledger.UpdateSyncCounters(run); err != nil {
			return e.abort(run, fmt.Errorf("failed to update run counters: %w", err))
		}
	}

	return e.finish(run, errs)
}

type pushedAttr struct {
	attributeID uint
	code        string
}

// collectOutgoing gathers the candidate values for one entity: approved
// slot falling back to current, normalized through the cast layer, with
// values equal to live filtered out.
func (e *Engine) collectOutgoing(entityID uint, attrs []entities.Attribute) (map[string]string, []pushedAttr, bool, error) {
	outgoing := make(map[string]string)
	var pushed []pushedAttr
	hadLive := false

	for _, attr := range attrs {
		row, err := e.values.Read(entityID, attr.ID)
		if err != nil {
			return nil, nil, false, fmt.Errorf("failed to read value of attribute %d: %w", attr.ID, err)
		}

		candidate := row.Approved
		if candidate == nil {
			candidate = row.Current
		}
		if candidate == nil {
			continue
		}
		if row.Live != nil {
			hadLive = true
		}

		// Round through the cast layer so legacy storage forms (e.g. a bare
		// scalar in a multi-select slot) go out in canonical shape.
		normalized, err := cast.In(attr.DataType, cast.Out(attr.DataType, candidate))
		if err != nil || normalized == nil {
			normalized = candidate
		}

		if row.Live != nil && *row.Live == *normalized {
			continue // already confirmed live, no external write
		}

		code := attr.Code
		if code == "" {
			code = attr.Name
		}
		outgoing[code] = *normalized
		pushed = append(pushed, pushedAttr{attributeID: attr.ID, code: code})
	}

	return outgoing, pushed, hadLive, nil
}

func (e *Engine) resolveEntities(entityTypeID uint, entityIDs []uint) ([]entities.Entity, error) {
	if len(entityIDs) == 0 {
		list, err := e.db.GetEntitiesByType(entityTypeID)
		if err != nil {
			return nil, fmt.Errorf("failed to list entities: %w", err)
		}
		return list, nil
	}

	targets := make([]entities.Entity, 0, len(entityIDs))
	for _, id := range entityIDs {
		entity, err := e.db.GetEntityByID(id)
		if err != nil {
			return nil, fmt.Errorf("failed to load entity %d: %w", id, err)
		}
		targets = append(targets, *entity)
	}
	return targets, nil
}

// abort fails the whole run, preserving whatever counters accumulated.
func (e *Engine) abort(run *entities.SyncRun, cause error) (*entities.SyncRun, error) {
	if err := e.ledger.FinishSyncRun(run, entities.RunStatusFailed, cause.Error()); err != nil {
		log.Printf("Sync run %s: failed to record failure: %v", run.RunID, err)
	}
	log.Printf("Sync run %s: failed: %v", run.RunID, cause)
	return run, cause
}

// finish resolves the terminal status from the counters: completed with no
// failures, partial when failures mixed with successes, failed when nothing
// succeeded at all.
func (e *Engine) finish(run *entities.SyncRun, errs *multierror.Error) (*entities.SyncRun, error) {
	summary := ""
	if errs != nil {
		summary = errs.Error()
	}

	status := entities.RunStatusCompleted
	if run.Failed > 0 {
		if run.Created+run.Updated > 0 {
			status = entities.RunStatusPartial
		} else {
			status = entities.RunStatusFailed
		}
	}

	if err := e.ledger.FinishSyncRun(run, status, summary); err != nil {
		return run, fmt.Errorf("failed to finish sync run: %w", err)
	}

	log.Printf("Sync run %s: %s (created=%d updated=%d failed=%d skipped=%d)",
		run.RunID, status, run.Created, run.Updated, run.Failed, run.Skipped)
	return run, nil
}
