package syncer

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/attrpipe/internal/catalog"
	"github.com/mrlokans/attrpipe/internal/database"
	"github.com/mrlokans/attrpipe/internal/database/runs"
	"github.com/mrlokans/attrpipe/internal/database/values"
	"github.com/mrlokans/attrpipe/internal/entities"
)

// fakeCatalog records calls and can be programmed with per-entity and
// per-attribute outcomes.
type fakeCatalog struct {
	options     map[string][]catalog.Option
	optionErr   map[string]error
	pushErr     map[string]error
	pushedCalls []pushCall
	fetchCalls  int
}

type pushCall struct {
	externalID string
	values     map[string]string
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		options:   map[string][]catalog.Option{},
		optionErr: map[string]error{},
		pushErr:   map[string]error{},
	}
}

func (f *fakeCatalog) FetchOptions(ctx context.Context, attributeCode string) ([]catalog.Option, error) {
	f.fetchCalls++
	if err := f.optionErr[attributeCode]; err != nil {
		return nil, err
	}
	return f.options[attributeCode], nil
}

func (f *fakeCatalog) PushEntity(ctx context.Context, externalID string, vals map[string]string) error {
	if err := f.pushErr[externalID]; err != nil {
		return err
	}
	copied := make(map[string]string, len(vals))
	for k, v := range vals {
		copied[k] = v
	}
	f.pushedCalls = append(f.pushedCalls, pushCall{externalID: externalID, values: copied})
	return nil
}

type syncEnv struct {
	db      *database.Database
	values  *values.Repository
	ledger  *runs.Repository
	catalog *fakeCatalog
	engine  *Engine
}

func setupTestSync(t *testing.T) (*syncEnv, func()) {
	t.Helper()
	dbPath := "./test_" + t.Name() + ".db"
	db, err := database.NewDatabase(dbPath)
	require.NoError(t, err)

	valueRepo := values.NewRepository(db.DB)
	ledger := runs.NewRepository(db.DB)
	fake := newFakeCatalog()
	eng := NewEngine(db, valueRepo, ledger, fake)

	env := &syncEnv{db: db, values: valueRepo, ledger: ledger, catalog: fake, engine: eng}
	cleanup := func() {
		db.Close()
		os.Remove(dbPath)
	}
	return env, cleanup
}

func strPtr(s string) *string {
	return &s
}

func TestSyncOptions(t *testing.T) {
	env, cleanup := setupTestSync(t)
	defer cleanup()

	et, err := env.db.GetOrCreateEntityType("product")
	require.NoError(t, err)

	color := &entities.Attribute{
		EntityTypeID: et.ID,
		Name:         "color",
		Code:         "color",
		DataType:     entities.DataTypeSingleSelect,
		SyncMode:     entities.SyncModePull,
		Options: []entities.AttributeOption{
			{Value: "red", Label: "Red", Position: 0},
		},
	}
	require.NoError(t, env.db.CreateAttribute(color))

	uncoded := &entities.Attribute{
		EntityTypeID: et.ID,
		Name:         "size",
		DataType:     entities.DataTypeSingleSelect,
		SyncMode:     entities.SyncModePull,
	}
	require.NoError(t, env.db.CreateAttribute(uncoded))

	env.catalog.options["color"] = []catalog.Option{
		{Value: "blue", Label: "Blue"},
		{Value: "black", Label: "Black"},
	}

	t.Run("replaces local options with the catalog set", func(t *testing.T) {
		run, err := env.engine.SyncOptions(context.Background(), et.ID, entities.TriggeredByManual, 0)
		require.NoError(t, err)

		assert.Equal(t, entities.RunStatusCompleted, run.Status)
		assert.Equal(t, 1, run.Updated)
		assert.Equal(t, 1, run.Skipped) // attribute without a code

		loaded, err := env.db.GetAttributeByID(color.ID)
		require.NoError(t, err)
		require.Len(t, loaded.Options, 2)
		assert.Equal(t, "blue", loaded.Options[0].Value)
		assert.Equal(t, "black", loaded.Options[1].Value)
	})

	t.Run("per-attribute fetch failure yields a failed run", func(t *testing.T) {
		env.catalog.optionErr["color"] = fmt.Errorf("attribute gone")

		run, err := env.engine.SyncOptions(context.Background(), et.ID, entities.TriggeredByManual, 0)
		require.NoError(t, err)
		assert.Equal(t, entities.RunStatusFailed, run.Status)
		assert.Equal(t, 1, run.Failed)
		assert.Contains(t, run.ErrorSummary, "attribute gone")
	})

	t.Run("unreachable catalog aborts the run", func(t *testing.T) {
		env.catalog.optionErr["color"] = fmt.Errorf("%w: connection refused", catalog.ErrUnavailable)

		run, err := env.engine.SyncOptions(context.Background(), et.ID, entities.TriggeredByManual, 0)
		require.Error(t, err)
		assert.ErrorIs(t, err, catalog.ErrUnavailable)
		assert.Equal(t, entities.RunStatusFailed, run.Status)
	})
}

func seedPushEntity(t *testing.T, env *syncEnv) (et *entities.EntityType, title *entities.Attribute, entity *entities.Entity) {
	t.Helper()

	et, err := env.db.GetOrCreateEntityType("product")
	require.NoError(t, err)

	title = &entities.Attribute{
		EntityTypeID: et.ID,
		Name:         "title",
		Code:         "display_title",
		DataType:     entities.DataTypeText,
		SyncMode:     entities.SyncModePush,
	}
	require.NoError(t, env.db.CreateAttribute(title))

	entity, err = env.db.CreateEntity(et.ID, "SKU-001")
	require.NoError(t, err)
	return et, title, entity
}

func TestSyncProducts(t *testing.T) {
	env, cleanup := setupTestSync(t)
	defer cleanup()

	et, title, entity := seedPushEntity(t, env)
	require.NoError(t, env.values.WriteApproved(entity.ID, title.ID, strPtr("Blue Shirt")))

	t.Run("first push creates and confirms live", func(t *testing.T) {
		run, err := env.engine.SyncProducts(context.Background(), et.ID, nil, entities.TriggeredByManual, 0)
		require.NoError(t, err)

		assert.Equal(t, entities.RunStatusCompleted, run.Status)
		assert.Equal(t, 1, run.Created)
		assert.Zero(t, run.Updated)

		require.Len(t, env.catalog.pushedCalls, 1)
		call := env.catalog.pushedCalls[0]
		assert.Equal(t, "SKU-001", call.externalID)
		assert.Equal(t, "Blue Shirt", call.values["display_title"])

		row, err := env.values.Read(entity.ID, title.ID)
		require.NoError(t, err)
		require.NotNil(t, row.Live)
		assert.Equal(t, "Blue Shirt", *row.Live)
		assert.False(t, row.PendingSync())
	})

	t.Run("re-running with no changes performs zero external writes", func(t *testing.T) {
		env.catalog.pushedCalls = nil

		run, err := env.engine.SyncProducts(context.Background(), et.ID, nil, entities.TriggeredByManual, 0)
		require.NoError(t, err)

		assert.Equal(t, entities.RunStatusCompleted, run.Status)
		assert.Equal(t, 1, run.Skipped)
		assert.Empty(t, env.catalog.pushedCalls)
	})

	t.Run("a changed approval is pushed as an update", func(t *testing.T) {
		require.NoError(t, env.values.WriteApproved(entity.ID, title.ID, strPtr("Navy Shirt")))
		env.catalog.pushedCalls = nil

		run, err := env.engine.SyncProducts(context.Background(), et.ID, nil, entities.TriggeredByManual, 0)
		require.NoError(t, err)

		assert.Equal(t, 1, run.Updated)
		assert.Zero(t, run.Created)
		require.Len(t, env.catalog.pushedCalls, 1)
		assert.Equal(t, "Navy Shirt", env.catalog.pushedCalls[0].values["display_title"])
	})
}

func TestSyncProductsFallbackAndSkips(t *testing.T) {
	env, cleanup := setupTestSync(t)
	defer cleanup()

	et, title, entity := seedPushEntity(t, env)

	t.Run("current value is pushed when nothing is approved", func(t *testing.T) {
		require.NoError(t, env.values.WriteCurrent(entity.ID, title.ID, strPtr("Computed Title")))

		run, err := env.engine.SyncProducts(context.Background(), et.ID, nil, entities.TriggeredByManual, 0)
		require.NoError(t, err)

		assert.Equal(t, 1, run.Created)
		require.Len(t, env.catalog.pushedCalls, 1)
		assert.Equal(t, "Computed Title", env.catalog.pushedCalls[0].values["display_title"])
	})

	t.Run("entity without an external ID is skipped", func(t *testing.T) {
		unmapped, err := env.db.CreateEntity(et.ID, "")
		require.NoError(t, err)
		require.NoError(t, env.values.WriteApproved(unmapped.ID, title.ID, strPtr("Orphan")))
		env.catalog.pushedCalls = nil

		run, err := env.engine.SyncProducts(context.Background(), et.ID, []uint{unmapped.ID}, entities.TriggeredByManual, 0)
		require.NoError(t, err)

		assert.Equal(t, 1, run.Skipped)
		assert.Empty(t, env.catalog.pushedCalls)
	})
}

func TestSyncProductsPartialAndAbort(t *testing.T) {
	env, cleanup := setupTestSync(t)
	defer cleanup()

	et, title, first := seedPushEntity(t, env)
	second, err := env.db.CreateEntity(et.ID, "SKU-002")
	require.NoError(t, err)

	require.NoError(t, env.values.WriteApproved(first.ID, title.ID, strPtr("First")))
	require.NoError(t, env.values.WriteApproved(second.ID, title.ID, strPtr("Second")))

	t.Run("one rejected entity yields a partial run", func(t *testing.T) {
		env.catalog.pushErr["SKU-002"] = fmt.Errorf("catalog rejected entity SKU-002: bad value")

		run, err := env.engine.SyncProducts(context.Background(), et.ID, nil, entities.TriggeredByManual, 0)
		require.NoError(t, err)

		assert.Equal(t, entities.RunStatusPartial, run.Status)
		assert.Equal(t, 1, run.Created)
		assert.Equal(t, 1, run.Failed)
		assert.Contains(t, run.ErrorSummary, "bad value")

		// The rejected entity stays pending.
		row, err := env.values.Read(second.ID, title.ID)
		require.NoError(t, err)
		assert.True(t, row.PendingSync())
	})

	t.Run("connectivity failure aborts the whole run", func(t *testing.T) {
		env.catalog.pushErr["SKU-002"] = fmt.Errorf("%w: timeout", catalog.ErrUnavailable)

		run, err := env.engine.SyncProducts(context.Background(), et.ID, []uint{second.ID}, entities.TriggeredByManual, 0)
		require.Error(t, err)
		assert.ErrorIs(t, err, catalog.ErrUnavailable)
		assert.Equal(t, entities.RunStatusFailed, run.Status)
	})
}
