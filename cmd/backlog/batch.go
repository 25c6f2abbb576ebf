package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tailored-agentic-units/backlog/orchestrate/state"
	"github.com/tailored-agentic-units/backlog/orchestrate/workflows"
	"github.com/tailored-agentic-units/backlog/service"
)

var batchWorkers int

var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Run every submission in a YAML or JSON list and print a summary",
	Args:  cobra.ExactArgs(1),
	RunE:  runBatch,
}

func init() {
	batchCmd.Flags().IntVarP(&batchWorkers, "workers", "w", 0, "worker count; 0 picks one from the CPU count")
}

func runBatch(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read submissions: %w", err)
	}
	var subs []workflows.Submission
	if err := yaml.Unmarshal(data, &subs); err != nil {
		return fmt.Errorf("parse submissions %s: %w", args[0], err)
	}

	if batchWorkers > 0 {
		cfg.Batch.MaxWorkers = batchWorkers
	}

	svc, err := service.New(cmd.Context(), cfg, service.WithLogger(logger))
	if err != nil {
		return err
	}
	defer svc.Close(cmd.Context())

	result, err := svc.Batch(cmd.Context(), subs, func(completed, total int, final *state.PipelineState) {
		logger.Info("Item finished", "task_id", final.TaskID(), "status", final.Status(), "progress", fmt.Sprintf("%d/%d", completed, total))
	})

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TASK\tSTATUS\tPRIORITY\tWARNINGS")
	for _, final := range result.Results {
		fmt.Fprintf(w, "%s\t%s\t%v\t%d\n", final.TaskID(), final.Status(), priority(final), len(final.Warnings()))
	}
	for _, taskErr := range result.Errors {
		fmt.Fprintf(w, "%s\t%s\t-\t%v\n", taskErr.Item.TaskID, "error", taskErr.Err)
	}
	if flushErr := w.Flush(); flushErr != nil {
		return flushErr
	}
	return err
}

func priority(final *state.PipelineState) any {
	out, ok := final.Output("prioritize")
	if !ok {
		return "-"
	}
	if p, ok := out["priority"]; ok {
		return p
	}
	return "-"
}
