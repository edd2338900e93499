package main

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/iliyamo/seat-holding-engine/internal/config"
	"github.com/iliyamo/seat-holding-engine/internal/middleware"
	"github.com/iliyamo/seat-holding-engine/internal/utils"
)

type tokenOptions struct {
	User string
	Role string
	TTL  time.Duration
}

func newTokenCommand() *cobra.Command {
	opts := &tokenOptions{}
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token for local testing",
		Example: `  seat-engine token --user alice
  seat-engine token --user ops --role OPERATOR --ttl 15m`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			switch opts.Role {
			case middleware.RoleCustomer, middleware.RoleOperator:
			default:
				return errors.New("role must be CUSTOMER or OPERATOR")
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ttl := opts.TTL
			if ttl <= 0 {
				ttl = cfg.AccessTTL
			}
			tok, err := utils.NewAccessToken(cfg.JWTSecret, opts.User, opts.Role, ttl)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(tok)
		},
	}
	cmd.Flags().StringVar(&opts.User, "user", "", "subject (user id) of the token (required)")
	cmd.Flags().StringVar(&opts.Role, "role", middleware.RoleCustomer, "CUSTOMER or OPERATOR")
	cmd.Flags().DurationVar(&opts.TTL, "ttl", 0, "token lifetime (default ACCESS_TOKEN_TTL)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
