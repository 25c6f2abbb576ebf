package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tailored-agentic-units/backlog/orchestrate/workflows"
	"github.com/tailored-agentic-units/backlog/server"
	"github.com/tailored-agentic-units/backlog/service"
	"github.com/tailored-agentic-units/backlog/store"
)

var (
	runInput  string
	runTaskID string
	remoteURL string
)

var runCmd = &cobra.Command{
	Use:   "run [text...]",
	Short: "Run one item through the pipeline and print its record",
	Long: `Run one item through the pipeline and print its record.

The input is either the positional text, stored under "text", or a YAML or
JSON object read from --input. With --remote the item runs on a backlog
server instead of in-process.`,
	RunE: runRun,
}

var getCmd = &cobra.Command{
	Use:   "get <task-id>",
	Short: "Print the record of a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

func init() {
	runCmd.Flags().StringVarP(&runInput, "input", "i", "", "file holding the input object")
	runCmd.Flags().StringVar(&runTaskID, "id", "", "task id (generated when empty)")

	for _, cmd := range []*cobra.Command{runCmd, getCmd} {
		cmd.Flags().StringVar(&remoteURL, "remote", "", "base URL of a backlog server, e.g. http://localhost:8080")
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	input, err := readInput(runInput, args)
	if err != nil {
		return err
	}
	sub := workflows.Submission{TaskID: runTaskID, Input: input}

	if remoteURL != "" {
		rec, err := newClient().Submit(cmd.Context(), sub)
		if err != nil {
			return fmt.Errorf("remote run: %w", err)
		}
		return printJSON(rec)
	}

	svc, err := service.New(cmd.Context(), cfg, service.WithLogger(logger))
	if err != nil {
		return err
	}
	defer svc.Close(cmd.Context())

	final, err := svc.Submit(cmd.Context(), sub)
	if err != nil {
		return err
	}
	return printJSON(store.NewRecord(final, final.Trace(), time.Now()))
}

func runGet(cmd *cobra.Command, args []string) error {
	if remoteURL != "" {
		rec, err := newClient().Get(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("remote get: %w", err)
		}
		return printJSON(rec)
	}

	s, err := store.New(&cfg.Store, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	rec, err := s.Load(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return printJSON(rec)
}

func readInput(path string, args []string) (map[string]any, error) {
	if path == "" {
		if len(args) == 0 {
			return nil, fmt.Errorf("either text arguments or --input is required")
		}
		return map[string]any{"text": strings.Join(args, " ")}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	var input map[string]any
	if err := yaml.Unmarshal(data, &input); err != nil {
		return nil, fmt.Errorf("parse input %s: %w", path, err)
	}
	if input == nil {
		input = map[string]any{}
	}
	if len(args) > 0 {
		input["text"] = strings.Join(args, " ")
	}
	return input, nil
}

func newClient() *server.TriageClient {
	return server.NewTriageClient(&http.Client{Timeout: 5 * time.Minute}, strings.TrimSuffix(remoteURL, "/"))
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
