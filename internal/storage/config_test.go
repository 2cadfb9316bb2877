package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/d3-pipeline/internal/config"
	"github.com/kyleking/d3-pipeline/internal/errors"
)

func TestOpenDuckDBFile(t *testing.T) {
	cfg := config.DefaultConfig().Destination
	cfg.Driver = config.DriverDuckDB
	cfg.Path = filepath.Join(t.TempDir(), "nested", "destination.duckdb")

	db, err := Open(context.Background(), cfg, "ignored")
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec("CREATE TABLE probe (id INTEGER)")
	require.NoError(t, err)

	_, err = os.Stat(cfg.Path)
	assert.NoError(t, err)
}

func TestOpenUnsupportedDriver(t *testing.T) {
	cfg := config.DefaultConfig().Workspace
	cfg.Driver = "sqlite"

	_, err := Open(context.Background(), cfg, "")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeConfig))
}

func TestSourceOpenerReturnsExecutor(t *testing.T) {
	cfg := config.DefaultConfig().Source
	cfg.Driver = config.DriverDuckDB
	cfg.Path = ":memory:"

	agg, err := NewSQLSourceOpener(cfg).OpenSource(context.Background(), "edw")
	require.NoError(t, err)
	defer agg.Close()

	rs, err := agg.Aggregate(context.Background(),
		"SELECT '26163' AS geoid, CAST(3 AS BIGINT) AS v1 UNION ALL SELECT '26125', CAST(0 AS BIGINT)",
		[]string{"v1"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"26163", "26125"}, rs.GeoIDs())
}
