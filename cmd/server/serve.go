package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iliyamo/seat-holding-engine/internal/app"
	"github.com/iliyamo/seat-holding-engine/internal/config"
	"github.com/iliyamo/seat-holding-engine/internal/logger"
	"github.com/iliyamo/seat-holding-engine/internal/telemetry"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the hygiene sweeper and the booking consumer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	opts, err := app.LoadOptions()
	if err != nil {
		return err
	}
	log, err := logger.New(opts.Config.Env, opts.Config.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	opts.Log = log

	tc, err := config.LoadTelemetryConfig()
	if err != nil {
		return err
	}
	shutdownTracing, err := telemetry.Init(parent, tc, opts.Config.Env)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn("tracer shutdown", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, opts)
	if err != nil {
		log.Error("startup failed", zap.Error(err))
		return err
	}
	defer func() { _ = a.Close() }()

	return a.Run(ctx, ":"+opts.Config.Port)
}
