package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/kyleking/d3-pipeline/internal/config"
	"github.com/kyleking/d3-pipeline/internal/errors"
	"github.com/kyleking/d3-pipeline/internal/logging"
)

// Set at build time with -ldflags
var (
	version = "dev"
	commit  = "none"
)

type contextKey string

const configKey contextKey = "config"

// NewApp builds the command tree
func NewApp() *cli.Command {
	return &cli.Command{
		Name:    "d3-pipeline",
		Usage:   "Aggregate D3 tables to census geographies and apply disclosure suppression",
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		Description: `d3-pipeline reads table recipes from the workspace metadata schema, aggregates
the source data for an edition to every geoid in the geography lookup, suppresses
small counts and publishes the result with an empty margin-of-error companion.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to pipeline_config.toml",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level: debug, info, warn or error",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Log format: text or json",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Shorthand for --log-level debug",
			},
		},
		Commands: []*cli.Command{
			BuildCommand(),
			QueryCommand(),
			MigrateCommand(),
			ConfigCommand(),
		},
	}
}

// Execute runs the CLI against os.Args
func Execute() error {
	ctx := context.Background()

	err := NewApp().Run(ctx, os.Args)
	if err != nil {
		printError(os.Stderr, err)
	}

	_ = logging.GetLogger().Close()

	return err
}

func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "Error: %v\n", err)

	for _, suggestion := range errors.Suggestions(err) {
		fmt.Fprintf(w, "  - %s\n", suggestion)
	}
}

// withConfig loads configuration from the global flags, initializes the
// logger and stores the config on the context before calling action.
func withConfig(action cli.ActionFunc) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		overrides := map[string]interface{}{
			"log-level":  cmd.String("log-level"),
			"log-format": cmd.String("log-format"),
			"verbose":    cmd.Bool("verbose"),
		}

		cfg, err := config.LoadConfigWithOverrides(cmd.String("config"), overrides)
		if err != nil {
			return err
		}

		if err := logging.InitializeLogger(cfg.Logging); err != nil {
			logging.SetupFallbackLogger()
			logging.GetLogger().WithError(err).Warn("Falling back to default logger")
		}

		return action(context.WithValue(ctx, configKey, cfg), cmd)
	}
}

// getConfigFromContext returns the loaded config, or defaults outside a
// withConfig action
func getConfigFromContext(ctx context.Context) *config.Config {
	if cfg, ok := ctx.Value(configKey).(*config.Config); ok {
		return cfg
	}

	return config.DefaultConfig()
}
