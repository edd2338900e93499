package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iliyamo/seat-holding-engine/internal/app"
	"github.com/iliyamo/seat-holding-engine/internal/logger"
	"github.com/iliyamo/seat-holding-engine/internal/worker"
)

func newSweepCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired holding rows once and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := app.LoadOptions()
			if err != nil {
				return err
			}
			opts.RateLimit.Enabled = false
			opts.Log, err = logger.New(opts.Config.Env, opts.Config.LogLevel)
			if err != nil {
				return err
			}
			a, err := app.New(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := worker.NewSweeper(a.Engine, opts.Holding.SweepInterval, opts.Log).RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired holding rows\n", n)
			return nil
		},
	}
}
