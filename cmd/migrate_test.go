package cmd

import (
	"bytes"
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/d3-pipeline/internal/config"
	"github.com/kyleking/d3-pipeline/internal/storage"
)

func openWorkspace(t *testing.T) *sql.DB {
	t.Helper()

	cfg := config.DefaultConfig().Workspace
	cfg.Driver = config.DriverDuckDB
	cfg.Path = ":memory:"

	db, err := storage.Open(context.Background(), cfg, "")
	require.NoError(t, err)

	t.Cleanup(func() { db.Close() })

	return db
}

func TestRunMigrate(t *testing.T) {
	ctx := context.Background()
	db := openWorkspace(t)

	var buf bytes.Buffer
	require.NoError(t, runMigrateWithDB(ctx, &buf, db, migrateOptions{Status: true, Down: -1}))
	assert.Contains(t, buf.String(), "1  pending")
	assert.Contains(t, buf.String(), "2  pending")

	buf.Reset()
	require.NoError(t, runMigrateWithDB(ctx, &buf, db, migrateOptions{Down: -1}))
	assert.Contains(t, buf.String(), "1  applied")
	assert.Contains(t, buf.String(), "2  applied")

	var n int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM d3_table_metadata").Scan(&n))
	assert.Equal(t, 0, n)

	// Applying again is a no-op
	buf.Reset()
	require.NoError(t, runMigrateWithDB(ctx, &buf, db, migrateOptions{Down: -1}))
	assert.Contains(t, buf.String(), "2  applied")

	buf.Reset()
	require.NoError(t, runMigrateWithDB(ctx, &buf, db, migrateOptions{Down: 1}))
	assert.Contains(t, buf.String(), "1  applied")
	assert.Contains(t, buf.String(), "2  pending")
}
