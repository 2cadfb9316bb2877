package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"

	"github.com/kyleking/d3-pipeline/internal/config"
	"github.com/kyleking/d3-pipeline/internal/errors"
)

func TestNewAppCommands(t *testing.T) {
	app := NewApp()

	names := make([]string, 0, len(app.Commands))
	for _, c := range app.Commands {
		names = append(names, c.Name)
	}

	assert.Equal(t, []string{"build", "query", "migrate", "config"}, names)
}

func TestGetConfigFromContextDefaults(t *testing.T) {
	cfg := getConfigFromContext(context.Background())
	require.NotNil(t, cfg)
	assert.Equal(t, config.DefaultConfig(), cfg)

	custom := config.DefaultConfig()
	custom.Delivery.DefaultSchema = "d3_past"

	ctx := context.WithValue(context.Background(), configKey, custom)
	assert.Same(t, custom, getConfigFromContext(ctx))
}

func TestPrintError(t *testing.T) {
	var buf bytes.Buffer

	printError(&buf, errors.NewEditionError("b01992", "2019", "is not a valid edition"))

	assert.Contains(t, buf.String(), "Error: metadata: '2019' is not a valid edition for table b01992")
	assert.Contains(t, buf.String(), "  - update d3_edition_metadata to fix")
}

func TestWithConfigLoadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline_config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[delivery]
default_schema = "d3_staging"

[logging]
level = "warn"
`), 0o600))

	var loaded *config.Config

	app := NewApp()
	app.Commands = append(app.Commands, &cli.Command{
		Name: "probe",
		Action: withConfig(func(ctx context.Context, _ *cli.Command) error {
			loaded = getConfigFromContext(ctx)
			return nil
		}),
	})

	require.NoError(t, app.Run(context.Background(), []string{"d3-pipeline", "--config", path, "--verbose", "probe"}))
	require.NotNil(t, loaded)

	assert.Equal(t, "d3_staging", loaded.Delivery.DefaultSchema)
	assert.Equal(t, "debug", loaded.Logging.Level)
}

func TestWithConfigMissingFile(t *testing.T) {
	app := NewApp()

	err := app.Run(context.Background(),
		[]string{"d3-pipeline", "--config", filepath.Join(t.TempDir(), "missing.toml"), "config"})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeConfig))
}
