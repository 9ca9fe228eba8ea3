package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Togather-Foundation/recipes/internal/config"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "server",
		Short: "Togather recipes server - recipe ingestion pipeline",
		Long: `Togather recipes server ingests third-party recipe pages into a structured,
quality-classified recipe catalog.

It fetches pages through an external scrape provider, extracts a fixed-shape
recipe with a chat-completion model, classifies the result (validated,
needs_review, removed) and persists it idempotently by canonical URL. Batches
run on a bounded worker pool with durable progress counters, and a reconciler
keeps cached per-owner recipe counts honest.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts, serveOptions{})
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML config file (env vars override it; also CONFIG_FILE)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error) (default: info)")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "log format (json, console) (default: json)")

	root.AddCommand(
		newServeCommand(opts),
		newImportCommand(opts),
		newReconcileCommand(opts),
		newMigrateCommand(opts),
		newTokenCommand(opts),
		newVersionCommand(),
	)
	return root
}

// Execute runs the command tree. Called by main.main.
func Execute() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads file and environment, applies log flags, then validates.
// Commands that never touch tokens skip the JWT requirement.
func loadConfig(opts *globalOptions, requireAuth bool) (config.Config, error) {
	path := opts.configPath
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	cfg, err := config.Read(path)
	if err != nil {
		return config.Config{}, err
	}

	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.Logging.Format = opts.logFormat
	}

	if requireAuth {
		err = cfg.Validate()
	} else {
		err = cfg.ValidateWithoutAuth()
	}
	if err != nil {
		return config.Config{}, fmt.Errorf("config error: %w", err)
	}
	return cfg, nil
}
