package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/d3-pipeline/internal/config"
	"github.com/kyleking/d3-pipeline/internal/errors"
)

func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:        "config",
		Usage:       "Display the active configuration",
		Description: `Show the current active configuration including all settings from file, environment variables, and command-line flags. Passwords are masked.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "raw",
				Usage: "Print the configuration as TOML",
			},
			&cli.StringFlag{
				Name:  "init",
				Usage: "Write a default configuration file to `PATH` and exit",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if path := cmd.String("init"); path != "" {
				return runConfigInit(os.Stdout, path)
			}

			return withConfig(func(ctx context.Context, cmd *cli.Command) error {
				return RunConfigWithConfig(os.Stdout, getConfigFromContext(ctx), cmd.Bool("raw"))
			})(ctx, cmd)
		},
	}
}

// runConfigInit writes the default configuration without overwriting an
// existing file
func runConfigInit(w io.Writer, path string) error {
	path = config.ExpandPath(path)

	if _, err := os.Stat(path); err == nil {
		return errors.Newf(errors.ErrTypeConfig, "config file %s already exists", path).
			WithSuggestion("Remove the file or pick another path")
	}

	if err := config.SaveConfig(config.DefaultConfig(), path); err != nil {
		return errors.Wrap(err, errors.ErrTypeConfig, "failed to write config file")
	}

	fmt.Fprintf(w, "Wrote default configuration to %s\n", path)

	return nil
}

// RunConfigWithConfig prints cfg with credentials masked
func RunConfigWithConfig(w io.Writer, cfg *config.Config, raw bool) error {
	if cfg == nil {
		return errors.NewConfigError("failed to load configuration", "")
	}

	cfg = cfg.Masked()

	if raw {
		data, err := cfg.Encode()
		if err != nil {
			return err
		}

		fmt.Fprint(w, data)

		return nil
	}

	fmt.Fprintln(w, "====================")
	fmt.Fprintln(w, "Active Configuration:")

	for _, db := range []struct {
		title string
		cfg   config.DatabaseConfig
	}{
		{"Workspace", cfg.Workspace},
		{"Source", cfg.Source},
		{"Destination", cfg.Destination},
	} {
		fmt.Fprintf(w, "\n%s:\n", db.title)
		fmt.Fprintf(w, "  Driver: %s\n", db.cfg.Driver)

		if db.cfg.Driver == config.DriverDuckDB {
			fmt.Fprintf(w, "  Path: %s\n", db.cfg.Path)
		} else {
			fmt.Fprintf(w, "  Host: %s:%d\n", db.cfg.Host, db.cfg.Port)
			fmt.Fprintf(w, "  User: %s\n", db.cfg.User)
			fmt.Fprintf(w, "  Password: %s\n", db.cfg.Password)
			fmt.Fprintf(w, "  Database: %s\n", db.cfg.DBName)
			fmt.Fprintf(w, "  SSL Mode: %s\n", db.cfg.SSLMode)
		}

		fmt.Fprintf(w, "  Max Connections: %d\n", db.cfg.MaxConnections)
		fmt.Fprintf(w, "  Query Timeout: %s\n", db.cfg.QueryTimeout)
	}

	fmt.Fprintln(w, "\nGeography:")
	fmt.Fprintf(w, "  Lookup Relation: %s\n", cfg.Geography.LookupRelation)
	fmt.Fprintf(w, "  Geometry Column: %s\n", cfg.Geography.GeometryColumn)
	fmt.Fprintf(w, "  Geoid Array Column: %s\n", cfg.Geography.GeoIDArrayColumn)

	fmt.Fprintln(w, "\nSuppression:")
	fmt.Fprintf(w, "  Workers: %d\n", cfg.Suppression.Workers)

	fmt.Fprintln(w, "\nDelivery:")
	fmt.Fprintf(w, "  Default Schema: %s\n", cfg.Delivery.DefaultSchema)
	fmt.Fprintf(w, "  Batch Size: %d\n", cfg.Delivery.BatchSize)

	fmt.Fprintln(w, "\nLogging:")
	fmt.Fprintf(w, "  Level: %s\n", cfg.Logging.Level)
	fmt.Fprintf(w, "  Format: %s\n", cfg.Logging.Format)
	fmt.Fprintf(w, "  Output: %s\n", cfg.Logging.Output)

	if cfg.Logging.Output == "file" {
		fmt.Fprintf(w, "  File: %s\n", cfg.Logging.File)
	}

	fmt.Fprintf(w, "  Add Source: %t\n", cfg.Logging.AddSource)

	return nil
}
