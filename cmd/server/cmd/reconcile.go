package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Togather-Foundation/recipes/internal/config"
	"github.com/Togather-Foundation/recipes/internal/reconcile"
	"github.com/Togather-Foundation/recipes/internal/storage/postgres"
)

func newReconcileCommand(opts *globalOptions) *cobra.Command {
	var (
		owner  string
		dryRun bool
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Reconcile cached owner recipe counts",
		Long: `Recompute each owner's recipe_count from the owner_recipes link rows and
overwrite the cached value where it drifted. Link rows are never modified.

Examples:
  # Reconcile every owner
  server reconcile

  # Report drift for one owner without writing
  server reconcile --owner 0b6c... --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ownerID, err := parseOwner(owner)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(opts, false)
			if err != nil {
				return err
			}

			pool, err := openPool(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer pool.Close()

			reconcileOpts := reconcile.Options{DryRun: dryRun}
			if ownerID != nil {
				reconcileOpts.OwnerID = *ownerID
			}
			reconciler := reconcile.New(postgres.NewOwnerRepository(pool), config.NewSlogLogger(cfg.Logging))
			report, err := reconciler.Reconcile(cmd.Context(), reconcileOpts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeIndentedJSON(out, report)
			}
			mode := "applied"
			if report.DryRun {
				mode = "dry run"
			}
			fmt.Fprintf(out, "Reconciliation (%s, %s)\n", report.Scope, mode)
			fmt.Fprintf(out, "  Checked:   %d\n", report.OwnersChecked)
			fmt.Fprintf(out, "  Drifted:   %d\n", report.OwnersDrifted)
			fmt.Fprintf(out, "  Corrected: %d\n", report.OwnersCorrected)
			for _, c := range report.Corrections {
				fmt.Fprintf(out, "  %s: %d -> %d\n", c.Slug, c.Cached, c.Actual)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "limit to one owner id")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report drift without correcting it")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}
