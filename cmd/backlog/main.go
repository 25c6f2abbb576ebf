// Command backlog triages work items through the analysis pipeline. It runs
// items locally, serves the HTTP and RPC API, and inspects graph files.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/backlog/observability"
	"github.com/tailored-agentic-units/backlog/service"
)

var (
	configFile string
	graphFile  string
	verbose    bool
	jsonLogs   bool

	logger *slog.Logger
	cfg    *service.Config

	rootCmd = &cobra.Command{
		Use:           "backlog",
		Short:         "Triage work items through a concurrent analysis pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger = newLogger(verbose, jsonLogs)
			slog.SetDefault(logger)
			observability.RegisterObserver("slog", observability.NewSlogObserver(logger))

			loaded, err := service.LoadConfig(configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if graphFile != "" {
				loaded.Graph = graphFile
			}
			cfg = loaded
			return nil
		},
	}
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configFile, "config", "c", "", "path to a YAML or JSON service config")
	flags.StringVarP(&graphFile, "graph", "g", "", "graph definition file (overrides config)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	flags.BoolVar(&jsonLogs, "json-logs", false, "write logs as JSON")

	rootCmd.AddCommand(serveCmd, runCmd, getCmd, batchCmd, validateCmd, planCmd)
}

func newLogger(verbose, asJSON bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if verbose {
		opts.Level = slog.LevelDebug
	}
	if asJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
