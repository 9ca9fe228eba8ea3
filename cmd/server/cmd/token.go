package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Togather-Foundation/recipes/internal/auth"
)

func newTokenCommand(opts *globalOptions) *cobra.Command {
	var (
		subject string
		role    string
		scopes  []string
		expiry  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Generate a signed API token",
		Long: `Sign a JWT with JWT_SECRET for calling the protected API.

Examples:
  server token --subject ops@example.com
  server token --subject importer --role operator --scope ingest --expiry 720h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts, true)
			if err != nil {
				return err
			}
			if expiry <= 0 {
				expiry = cfg.Auth.JWTExpiry
			}
			token, err := auth.NewJWTManager(cfg.Auth.JWTSecret, expiry, cfg.Auth.Issuer).
				Generate(subject, string(auth.NormalizeRole(role)), scopes...)
			if err != nil {
				return fmt.Errorf("generate token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "token subject, recorded as the reviewer")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleOperator), "role claim (admin, operator, viewer)")
	cmd.Flags().StringSliceVar(&scopes, "scope", []string{auth.ScopeIngest}, "scopes to grant")
	cmd.Flags().DurationVar(&expiry, "expiry", 0, "token lifetime (default: JWT_EXPIRY)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
