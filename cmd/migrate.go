package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/d3-pipeline/internal/errors"
	"github.com/kyleking/d3-pipeline/internal/logging"
	"github.com/kyleking/d3-pipeline/internal/storage"
)

type migrateOptions struct {
	Status bool
	// Down rolls back to this version when non-negative
	Down int
}

func MigrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create or upgrade the workspace metadata schema",
		Description: `Apply pending migrations to the workspace database that holds the
d3_table_metadata, d3_variable_metadata and d3_edition_metadata tables.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "status",
				Usage: "List migrations without applying them",
			},
			&cli.IntFlag{
				Name:  "down",
				Usage: "Roll back to the given version",
				Value: -1,
			},
		},
		Action: withConfig(func(ctx context.Context, cmd *cli.Command) error {
			cfg := getConfigFromContext(ctx)

			store, err := initializeMetadataStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			return runMigrateWithDB(ctx, os.Stdout, store.DB(), migrateOptions{
				Status: cmd.Bool("status"),
				Down:   int(cmd.Int("down")),
			})
		}),
	}
}

func runMigrateWithDB(ctx context.Context, w io.Writer, db *sql.DB, opts migrateOptions) error {
	manager := storage.NewMigrationManager(db)

	switch {
	case opts.Status:
	case opts.Down >= 0:
		err := logging.LoggerMiddleware(logging.GetLogger(), "migrate_down", func() error {
			return manager.MigrateDown(ctx, opts.Down)
		})
		if err != nil {
			return errors.Wrap(err, errors.ErrTypeDatabase, "failed to roll back migrations")
		}
	default:
		err := logging.LoggerMiddleware(logging.GetLogger(), "migrate_up", func() error {
			return manager.MigrateUp(ctx)
		})
		if err != nil {
			return errors.Wrap(err, errors.ErrTypeDatabase, "failed to apply migrations")
		}
	}

	status, err := manager.GetMigrationStatus(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeDatabase, "failed to read migration status")
	}

	fmt.Fprintln(w, "Workspace Migrations")
	fmt.Fprintln(w, "====================")

	for _, s := range status {
		mark := "pending"
		if s.Applied {
			mark = "applied"
		}

		fmt.Fprintf(w, "%3d  %-8s %s\n", s.Version, mark, s.Description)
	}

	return nil
}
