package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/backlog/orchestrate/graph"
	"github.com/tailored-agentic-units/backlog/service"
	"github.com/tailored-agentic-units/backlog/store"
)

var validateCmd = &cobra.Command{
	Use:   "validate [graph-file]",
	Short: "Build a graph and bind it to the registered capabilities",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runValidate,
}

var planCmd = &cobra.Command{
	Use:   "plan [graph-file]",
	Short: "Print the execution stages of a graph",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPlan,
}

func graphPath(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return cfg.Graph
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg.Graph = graphPath(args)

	svc, err := service.New(cmd.Context(), cfg,
		service.WithLogger(logger),
		service.WithStore(store.NewMemoryStore()))
	if err != nil {
		return err
	}
	defer svc.Close(cmd.Context())

	g := svc.Graph()
	fmt.Printf("%s: graph %q is valid (%d nodes, %d stages, entry %s, exit %s)\n",
		cfg.Graph, g.Name(), g.Len(), len(g.Stages()), g.Entry(), g.Exit())
	return nil
}

func runPlan(_ *cobra.Command, args []string) error {
	g, err := graph.BuildFile(graphPath(args))
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STAGE\tGROUP\tNODES\tCAPABILITIES")
	for i, stage := range g.Stages() {
		group := "-"
		if stage.Concurrent() {
			group = stage.Group
		}
		caps := make([]string, 0, len(stage.Nodes))
		for _, id := range stage.Nodes {
			n, _ := g.Node(id)
			caps = append(caps, n.Capability)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i+1, group, strings.Join(stage.Nodes, ","), strings.Join(caps, ","))
	}
	return w.Flush()
}
