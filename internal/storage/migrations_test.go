package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tableExists(t *testing.T, store *SQLMetadataStore, name string) bool {
	t.Helper()

	var count int
	err := store.DB().QueryRow(
		"SELECT COUNT(*) FROM information_schema.tables WHERE table_name = $1", name,
	).Scan(&count)
	require.NoError(t, err)

	return count > 0
}

func TestMigrateUpCreatesMetadataTables(t *testing.T) {
	store, cleanup := NewTestDB(t)
	defer cleanup()

	for _, name := range []string{
		"d3_table_metadata",
		"d3_variable_metadata",
		"d3_edition_metadata",
		"d3_variable_groups",
		"d3_variable_group_membership",
	} {
		assert.True(t, tableExists(t, store, name), name)
	}
}

func TestMigrateUpIsIdempotent(t *testing.T) {
	store, cleanup := NewTestDB(t)
	defer cleanup()

	manager := NewMigrationManager(store.DB())
	require.NoError(t, manager.MigrateUp(context.Background()))

	applied, err := manager.GetAppliedMigrations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, applied)
}

func TestNeedsMigration(t *testing.T) {
	store, cleanup := NewTestDB(t)
	defer cleanup()

	ctx := context.Background()
	manager := NewMigrationManager(store.DB())

	needs, current, latest, err := manager.NeedsMigration(ctx)
	require.NoError(t, err)
	assert.False(t, needs)
	assert.Equal(t, 2, current)
	assert.Equal(t, 2, latest)

	require.NoError(t, manager.MigrateDown(ctx, 1))

	needs, current, _, err = manager.NeedsMigration(ctx)
	require.NoError(t, err)
	assert.True(t, needs)
	assert.Equal(t, 1, current)
}

func TestMigrateDown(t *testing.T) {
	store, cleanup := NewTestDB(t)
	defer cleanup()

	ctx := context.Background()
	manager := NewMigrationManager(store.DB())

	require.NoError(t, manager.MigrateDown(ctx, 1))
	assert.False(t, tableExists(t, store, "d3_variable_groups"))
	assert.True(t, tableExists(t, store, "d3_table_metadata"))

	require.NoError(t, manager.MigrateDown(ctx, 0))
	assert.False(t, tableExists(t, store, "d3_table_metadata"))

	status, err := manager.GetMigrationStatus(ctx)
	require.NoError(t, err)
	require.Len(t, status, 2)
	assert.False(t, status[0].Applied)
	assert.False(t, status[1].Applied)

	require.NoError(t, manager.MigrateUp(ctx))
	assert.True(t, tableExists(t, store, "d3_variable_groups"))
}

func TestApplyMigrationTwice(t *testing.T) {
	store, cleanup := NewTestDB(t)
	defer cleanup()

	manager := NewMigrationManager(store.DB())

	err := manager.ApplyMigration(context.Background(), manager.GetMigrations()[0])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already applied")
}

func TestRollbackUnappliedMigration(t *testing.T) {
	store, cleanup := NewTestDB(t)
	defer cleanup()

	ctx := context.Background()
	manager := NewMigrationManager(store.DB())
	require.NoError(t, manager.MigrateDown(ctx, 1))

	err := manager.RollbackMigration(ctx, manager.GetMigrations()[1])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not applied")
}
