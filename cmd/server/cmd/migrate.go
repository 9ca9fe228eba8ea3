package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Togather-Foundation/recipes/internal/config"
	"github.com/Togather-Foundation/recipes/internal/storage/postgres"
)

func newMigrateCommand(opts *globalOptions) *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}
	cmd.PersistentFlags().StringVar(&path, "path", postgres.DefaultMigrationsPath, "migrations directory")

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply schema migrations and River's job tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts, false)
			if err != nil {
				return err
			}
			logger := config.NewLogger(cfg.Logging)

			if err := postgres.MigrateUp(cfg.Database.URL, path); err != nil {
				return err
			}
			logger.Info().Str("path", path).Msg("schema migrations applied")

			pool, err := openPool(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := postgres.MigrateRiver(cmd.Context(), pool); err != nil {
				return err
			}
			logger.Info().Msg("river migrations applied")
			return nil
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps <= 0 {
				return fmt.Errorf("--steps must be > 0")
			}
			cfg, err := loadConfig(opts, false)
			if err != nil {
				return err
			}
			logger := config.NewLogger(cfg.Logging)

			if err := postgres.MigrateDown(cfg.Database.URL, path, steps); err != nil {
				return err
			}
			logger.Info().Int("steps", steps).Msg("schema migrations rolled back")
			return nil
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	cmd.AddCommand(up, down)
	return cmd
}
