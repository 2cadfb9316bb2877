package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/d3-pipeline/internal/assembler"
	"github.com/kyleking/d3-pipeline/internal/compose"
	"github.com/kyleking/d3-pipeline/internal/config"
	"github.com/kyleking/d3-pipeline/internal/errors"
	"github.com/kyleking/d3-pipeline/internal/logging"
	"github.com/kyleking/d3-pipeline/internal/storage"
)

func QueryCommand() *cli.Command {
	return &cli.Command{
		Name:  "query",
		Usage: "Print the aggregation SQL for a table without running it",
		Description: `Compose the statement that build would run against the source database.

Examples:
  d3-pipeline query b01980
  d3-pipeline query b01980 --edition 2022`,
		ArgsUsage: " <table>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "edition",
				Aliases: []string{"e"},
				Usage:   "Edition to compose for (default: latest)",
			},
		},
		Action: withConfig(func(ctx context.Context, cmd *cli.Command) error {
			args := cmd.Args()
			if args.Len() != 1 {
				return fmt.Errorf("expected exactly 1 argument, got %d", args.Len())
			}

			return runQuery(ctx, strings.ToLower(strings.TrimSpace(args.First())), cmd.String("edition"))
		}),
	}
}

func runQuery(ctx context.Context, table, edition string) error {
	cfg := getConfigFromContext(ctx)

	store, err := initializeMetadataStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	return runQueryWithStore(ctx, os.Stdout, cfg, table, edition, store)
}

func runQueryWithStore(
	ctx context.Context,
	w io.Writer,
	cfg *config.Config,
	table, edition string,
	store storage.MetadataStore,
) error {
	if table == "" {
		return errors.New(errors.ErrTypeValidation, "table name cannot be empty")
	}

	logging.GetLogger().Debugf("Composing query for %s (edition: %q)", table, edition)

	a := assembler.New(store, nil,
		assembler.WithComposer(newComposer(cfg)),
	)

	query, err := a.Compose(ctx, table, edition)
	if err != nil {
		return err
	}

	fmt.Fprintln(w, query)

	return nil
}

func newComposer(cfg *config.Config) *compose.Composer {
	return compose.New(
		compose.WithLookupRelation(cfg.Geography.LookupRelation),
		compose.WithGeometryColumn(cfg.Geography.GeometryColumn),
		compose.WithGeoIDArrayColumn(cfg.Geography.GeoIDArrayColumn),
	)
}
