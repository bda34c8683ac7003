package values

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrlokans/attrpipe/internal/database"
	"github.com/mrlokans/attrpipe/internal/entities"
)

func setupTestRepo(t *testing.T) (*Repository, *database.Database, func()) {
	t.Helper()
	dbPath := "./test_" + t.Name() + ".db"
	db, err := database.NewDatabase(dbPath)
	require.NoError(t, err)

	cleanup := func() {
		db.Close()
		os.Remove(dbPath)
	}
	return NewRepository(db.DB), db, cleanup
}

func createAttribute(t *testing.T, db *database.Database, name string, editability entities.Editability) *entities.Attribute {
	t.Helper()
	et, err := db.GetOrCreateEntityType("product")
	require.NoError(t, err)
	attr := &entities.Attribute{
		EntityTypeID: et.ID,
		Name:         name,
		DataType:     entities.DataTypeText,
		Editability:  editability,
	}
	require.NoError(t, db.CreateAttribute(attr))
	return attr
}

func strPtr(s string) *string {
	return &s
}

func TestSlotWrites(t *testing.T) {
	repo, db, cleanup := setupTestRepo(t)
	defer cleanup()

	attr := createAttribute(t, db, "title", entities.EditabilityOverridable)

	t.Run("missing row reads as empty record", func(t *testing.T) {
		value, err := repo.Read(1, attr.ID)
		require.NoError(t, err)
		assert.Nil(t, value.Current)
		assert.Nil(t, value.Approved)
		assert.Zero(t, value.ID)
	})

	t.Run("first write creates the row", func(t *testing.T) {
		require.NoError(t, repo.WriteCurrent(1, attr.ID, strPtr("computed")))

		value, err := repo.Read(1, attr.ID)
		require.NoError(t, err)
		require.NotNil(t, value.Current)
		assert.Equal(t, "computed", *value.Current)
	})

	t.Run("writing one slot leaves the others untouched", func(t *testing.T) {
		require.NoError(t, repo.WriteApproved(1, attr.ID, strPtr("reviewed")))

		value, err := repo.Read(1, attr.ID)
		require.NoError(t, err)
		require.NotNil(t, value.Current)
		assert.Equal(t, "computed", *value.Current)
		require.NotNil(t, value.Approved)
		assert.Equal(t, "reviewed", *value.Approved)
	})

	t.Run("rewriting a slot replaces its value", func(t *testing.T) {
		require.NoError(t, repo.WriteCurrent(1, attr.ID, strPtr("recomputed")))

		value, err := repo.Read(1, attr.ID)
		require.NoError(t, err)
		assert.Equal(t, "recomputed", *value.Current)
	})

	t.Run("clearing a slot writes NULL without deleting the row", func(t *testing.T) {
		require.NoError(t, repo.WriteApproved(1, attr.ID, nil))

		value, err := repo.Read(1, attr.ID)
		require.NoError(t, err)
		assert.Nil(t, value.Approved)
		assert.NotZero(t, value.ID)
		assert.Equal(t, "recomputed", *value.Current)
	})
}

func TestEffectivePrecedence(t *testing.T) {
	repo, db, cleanup := setupTestRepo(t)
	defer cleanup()

	attr := createAttribute(t, db, "title", entities.EditabilityOverridable)

	t.Run("no slots set yields nil", func(t *testing.T) {
		effective, err := repo.EffectiveValue(1, attr.ID)
		require.NoError(t, err)
		assert.Nil(t, effective)
	})

	t.Run("current alone is visible", func(t *testing.T) {
		require.NoError(t, repo.WriteCurrent(1, attr.ID, strPtr("current")))

		effective, err := repo.EffectiveValue(1, attr.ID)
		require.NoError(t, err)
		require.NotNil(t, effective)
		assert.Equal(t, "current", *effective)
	})

	t.Run("approved beats current", func(t *testing.T) {
		require.NoError(t, repo.WriteApproved(1, attr.ID, strPtr("approved")))

		effective, err := repo.EffectiveValue(1, attr.ID)
		require.NoError(t, err)
		assert.Equal(t, "approved", *effective)
	})

	t.Run("override beats approved", func(t *testing.T) {
		require.NoError(t, repo.WriteOverride(1, attr.ID, strPtr("pinned")))

		effective, err := repo.EffectiveValue(1, attr.ID)
		require.NoError(t, err)
		assert.Equal(t, "pinned", *effective)
	})

	t.Run("clearing the override falls back to approved", func(t *testing.T) {
		require.NoError(t, repo.WriteOverride(1, attr.ID, nil))

		effective, err := repo.EffectiveValue(1, attr.ID)
		require.NoError(t, err)
		assert.Equal(t, "approved", *effective)
	})
}

func TestWriteOverrideEditability(t *testing.T) {
	repo, db, cleanup := setupTestRepo(t)
	defer cleanup()

	readonly := createAttribute(t, db, "computed_score", entities.EditabilityReadonly)
	editable := createAttribute(t, db, "notes", entities.EditabilityEditable)

	err := repo.WriteOverride(1, readonly.ID, strPtr("forced"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "does not allow overrides")

	err = repo.WriteOverride(1, editable.ID, strPtr("forced"))
	assert.Error(t, err)
}

func TestPendingSync(t *testing.T) {
	repo, db, cleanup := setupTestRepo(t)
	defer cleanup()

	attr := createAttribute(t, db, "title", entities.EditabilityOverridable)

	t.Run("nothing approved means nothing pending", func(t *testing.T) {
		require.NoError(t, repo.WriteCurrent(1, attr.ID, strPtr("computed")))

		ids, err := repo.PendingSyncEntityIDs([]uint{attr.ID})
		require.NoError(t, err)
		assert.Empty(t, ids)
	})

	t.Run("approved without live is pending", func(t *testing.T) {
		require.NoError(t, repo.WriteApproved(1, attr.ID, strPtr("v1")))

		ids, err := repo.PendingSyncEntityIDs([]uint{attr.ID})
		require.NoError(t, err)
		assert.Equal(t, []uint{1}, ids)
	})

	t.Run("matching live clears the backlog", func(t *testing.T) {
		require.NoError(t, repo.WriteLive(1, attr.ID, strPtr("v1")))

		ids, err := repo.PendingSyncEntityIDs([]uint{attr.ID})
		require.NoError(t, err)
		assert.Empty(t, ids)
	})

	t.Run("diverging approved is pending again", func(t *testing.T) {
		require.NoError(t, repo.WriteApproved(1, attr.ID, strPtr("v2")))

		ids, err := repo.PendingSyncEntityIDs([]uint{attr.ID})
		require.NoError(t, err)
		assert.Equal(t, []uint{1}, ids)
	})

	t.Run("empty attribute list yields no work", func(t *testing.T) {
		ids, err := repo.PendingSyncEntityIDs(nil)
		require.NoError(t, err)
		assert.Empty(t, ids)
	})
}

func TestInputValues(t *testing.T) {
	repo, db, cleanup := setupTestRepo(t)
	defer cleanup()

	attr := createAttribute(t, db, "raw_title", entities.EditabilityEditable)

	t.Run("GetInput on missing row returns error", func(t *testing.T) {
		_, err := repo.GetInput(1, attr.ID)
		assert.Error(t, err)
	})

	t.Run("SetInput creates then updates", func(t *testing.T) {
		require.NoError(t, repo.SetInput(1, attr.ID, "Blue Shirt", "feed"))

		input, err := repo.GetInput(1, attr.ID)
		require.NoError(t, err)
		assert.Equal(t, "Blue Shirt", input.RawValue)
		assert.Equal(t, "feed", input.SourceTag)

		require.NoError(t, repo.SetInput(1, attr.ID, "Red Shirt", "erp"))

		updated, err := repo.GetInput(1, attr.ID)
		require.NoError(t, err)
		assert.Equal(t, input.ID, updated.ID)
		assert.Equal(t, "Red Shirt", updated.RawValue)
		assert.Equal(t, "erp", updated.SourceTag)
	})
}
