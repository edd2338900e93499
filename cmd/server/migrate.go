package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iliyamo/seat-holding-engine/internal/app"
	"github.com/iliyamo/seat-holding-engine/internal/config"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the SQL schema for the configured database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			db, dialect, err := app.OpenSQL(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "schema applied (%s)\n", dialect)
			return nil
		},
	}
}
