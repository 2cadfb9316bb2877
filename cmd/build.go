package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/kyleking/d3-pipeline/internal/assembler"
	"github.com/kyleking/d3-pipeline/internal/config"
	"github.com/kyleking/d3-pipeline/internal/errors"
	"github.com/kyleking/d3-pipeline/internal/formatter"
	"github.com/kyleking/d3-pipeline/internal/logging"
	"github.com/kyleking/d3-pipeline/internal/monitor"
	"github.com/kyleking/d3-pipeline/internal/suppression"
)

const memorySampleInterval = 250 * time.Millisecond

type buildOptions struct {
	Table             string
	Edition           string
	DestinationSchema string
	Hollow            bool
	NoUpdate          bool
	DryRun            bool
	Format            formatter.OutputFormat
	Limit             int
	OnStage           func(assembler.Stage)
	OnDone            func()
}

func BuildCommand() *cli.Command {
	return &cli.Command{
		Name:  "build",
		Usage: "Aggregate, suppress and deliver a table",
		Description: `Build a D3 table from its recipe in the workspace metadata schema.

By default the latest edition is aggregated and delivered to the default
destination schema. A hollow build delivers the table shape with no rows and
requires --destination-schema.

Examples:
  d3-pipeline build b01992
  d3-pipeline build b01992 --edition 2022
  d3-pipeline build b01992 --hollow --destination-schema d3_past
  d3-pipeline build b01992 --dry-run --format csv`,
		ArgsUsage: " <table>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "edition",
				Aliases: []string{"e"},
				Usage:   "Edition to aggregate (default: latest)",
			},
			&cli.StringFlag{
				Name:    "destination-schema",
				Aliases: []string{"s"},
				Usage:   "Schema that receives the table and its _moe companion",
			},
			&cli.BoolFlag{
				Name:  "hollow",
				Usage: "Deliver the table with no rows",
			},
			&cli.BoolFlag{
				Name:  "no-update",
				Usage: "Publish metadata only; leave delivered data untouched",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Print the result instead of delivering it",
			},
			&cli.StringFlag{
				Name:  "format",
				Usage: "Dry-run output format: text or csv",
				Value: string(formatter.FormatText),
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum rows printed by --dry-run (0 for all)",
				Value: 20,
			},
		},
		Action: withConfig(runBuild),
	}
}

func runBuild(ctx context.Context, cmd *cli.Command) error {
	args := cmd.Args()
	if args.Len() != 1 {
		return fmt.Errorf("expected exactly 1 argument, got %d", args.Len())
	}

	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeValidation, "invalid --format")
	}

	opts := buildOptions{
		Table:             strings.ToLower(strings.TrimSpace(args.First())),
		Edition:           cmd.String("edition"),
		DestinationSchema: cmd.String("destination-schema"),
		Hollow:            cmd.Bool("hollow"),
		NoUpdate:          cmd.Bool("no-update"),
		DryRun:            cmd.Bool("dry-run"),
		Format:            format,
		Limit:             int(cmd.Int("limit")),
	}

	cfg := getConfigFromContext(ctx)

	deps, err := initializeStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	opts.OnStage = func(stage assembler.Stage) {
		s.Lock()
		s.Suffix = fmt.Sprintf(" %s %s...", stage, opts.Table)
		s.Unlock()
	}

	opts.OnDone = s.Stop

	s.Start()
	defer s.Stop()

	return runBuildWithDeps(ctx, os.Stdout, cfg, opts, deps)
}

func validateBuildOptions(opts buildOptions) error {
	if opts.Table == "" {
		return errors.New(errors.ErrTypeValidation, "table name cannot be empty")
	}

	if opts.Hollow && opts.Edition != "" {
		return errors.NewConfigError("--hollow cannot be combined with --edition", "edition")
	}

	if opts.NoUpdate && opts.DryRun {
		return errors.NewConfigError("--no-update cannot be combined with --dry-run", "dry-run")
	}

	return nil
}

func runBuildWithDeps(ctx context.Context, w io.Writer, cfg *config.Config, opts buildOptions, deps *pipelineDeps) error {
	if err := validateBuildOptions(opts); err != nil {
		return err
	}

	runID := uuid.New().String()
	logger := logging.GetLogger().WithField("run_id", runID)

	mode := assembler.Live(opts.Edition)
	if opts.Hollow {
		mode = assembler.Hollow()
	}

	hooks := []assembler.Option{
		assembler.WithDeliverer(deps.deliverer),
		assembler.WithPublisher(deps.publisher),
		assembler.WithLogger(logger),
		assembler.WithDefaultSchema(cfg.Delivery.DefaultSchema),
		assembler.WithEngine(suppression.NewEngine(suppression.WithWorkers(cfg.Suppression.Workers))),
		assembler.WithComposer(newComposer(cfg)),
	}
	if opts.OnStage != nil {
		hooks = append(hooks, assembler.WithStageHook(opts.OnStage))
	}

	a := assembler.New(deps.metadata, deps.sources, hooks...)

	mem := monitor.NewMemoryMonitor()
	mem.Start(ctx, memorySampleInterval)

	result, err := a.Run(ctx, assembler.Request{
		Table:             opts.Table,
		Mode:              mode,
		DestinationSchema: opts.DestinationSchema,
		NoUpdate:          opts.NoUpdate,
		DryRun:            opts.DryRun,
	})

	mem.Stop()
	logger.WithFields(mem.Fields()).Debug("Memory usage")

	if opts.OnDone != nil {
		opts.OnDone()
	}

	if err != nil {
		if result != nil {
			logger.WithField("rows", result.Base.Len()).ErrorWithErr("Computed table was not delivered", err)
		}

		return err
	}

	displayBuildResult(w, result, opts)

	return nil
}

func displayBuildResult(w io.Writer, result *assembler.Result, opts buildOptions) {
	source := "hollow"
	if result.Edition != nil {
		source = "edition " + result.Edition.Edition
	}

	switch {
	case opts.NoUpdate:
		fmt.Fprintf(w, "Skipped data update for %s (%s)\n", result.Table.Name, source)
	case opts.DryRun:
		fmt.Fprint(w, formatter.NewFormatter(opts.Limit).Format(result.Base, opts.Format))

		// CSV output stays machine readable
		if opts.Format != formatter.FormatCSV {
			fmt.Fprintf(w, "\nDry run for %s (%s), suppression %s: %s\n",
				result.Table.Name, source, result.Policy, formatter.FormatStats(result.Stats))
		}
	default:
		fmt.Fprintf(w, "Built %s.%s and %s.%s_moe from %s\n",
			result.Schema, result.Table.Name, result.Schema, result.Table.Name, source)
		fmt.Fprintf(w, "Suppression %s: %s\n", result.Policy, formatter.FormatStats(result.Stats))
	}

	if result.Published {
		fmt.Fprintf(w, "Published Census Reporter metadata for %s\n", result.Table.Name)
	}

	if result.MetadataErr != nil {
		fmt.Fprintf(w, "Warning: metadata was not published: %v\n", result.MetadataErr)
	}
}
