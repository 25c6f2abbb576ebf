package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/backlog/server"
	"github.com/tailored-agentic-units/backlog/service"
	"github.com/tailored-agentic-units/backlog/telemetry"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the task API over HTTP and Connect RPC",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
}

func runServe(cmd *cobra.Command, _ []string) (err error) {
	ctx := cmd.Context()
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}

	svc, err := service.New(ctx, cfg, service.WithLogger(logger))
	if err != nil {
		return errors.Join(err, shutdownTelemetry(context.Background()))
	}

	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout())
		defer cancel()
		err = errors.Join(err, svc.Close(closeCtx), shutdownTelemetry(closeCtx))
	}()

	logger.Info("Serving triage pipeline",
		"graph", svc.Graph().Name(),
		"capabilities", len(svc.Capabilities()),
		"store", cfg.Store.Driver)

	return server.New(svc, cfg.Server, logger).Run(ctx)
}

func shutdownTimeout() time.Duration {
	if d := time.Duration(cfg.Server.ShutdownTimeout); d > 0 {
		return d
	}
	return 10 * time.Second
}
