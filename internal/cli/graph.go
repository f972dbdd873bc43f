package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/deprank/pkg/dag"
	"github.com/matzehuels/deprank/pkg/engine"
	"github.com/matzehuels/deprank/pkg/render"
	"github.com/matzehuels/deprank/pkg/workflow"
)

// graphCommand creates the graph command, which renders the ranked
// dependency graph of a repository.
func (c *CLI) graphCommand() *cobra.Command {
	var (
		refs     refFlags
		output   string
		detailed bool
		color    string
	)

	cmd := &cobra.Command{
		Use:   "graph <repo>",
		Short: "Render the ranked dependency graph of a repository",
		Long: `Graph analyses the repository like run does, without settling, and writes
its dependency graph with nodes shaded by rank. The output format follows the
file extension: .svg renders through Graphviz, anything else is written as DOT.`,
		Example: `  deprank graph github.com/acme/widget -o widget.svg
  deprank graph github.com/acme/widget --detailed -o widget.dot`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if output == "" {
				output = defaultGraphOutput(args[0])
			}

			ctx := withLogger(cmd.Context(), c.Logger)
			rt, w, err := c.execute(ctx, cfg, engine.CreateRequest{Ref: refs.ref(args[0])}, backend{ephemeral: true, dryRun: true})
			if err != nil {
				return err
			}
			defer rt.Close(context.WithoutCancel(ctx))

			g, scores, err := rankedGraph(ctx, rt.Engine, w)
			if err != nil {
				return err
			}
			data, err := encodeGraph(ctx, g, scores, render.Options{Detailed: detailed, Color: color}, output)
			if err != nil {
				return err
			}
			if err := os.WriteFile(output, data, 0644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			printSuccess("Rendered %s", StyleHighlight.Render(w.Ref.Repo))
			printDetail("%d nodes · %d edges", g.NodeCount(), g.EdgeCount())
			printFile(output)
			return nil
		},
	}

	refs.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: <name>.svg)")
	cmd.Flags().BoolVar(&detailed, "detailed", false, "show version, ecosystem and score in node labels")
	cmd.Flags().StringVar(&color, "color", "", "fill colour of the highest ranked node")

	return cmd
}

// rankedGraph loads the persisted graph and node scores of w.
func rankedGraph(ctx context.Context, e *engine.Engine, w *workflow.Workflow) (*dag.Graph, map[string]float64, error) {
	a, err := e.Analysis(ctx, w.ID)
	if err != nil {
		return nil, nil, err
	}
	g, err := dag.Import(a.Graph)
	if err != nil {
		return nil, nil, err
	}
	sc, err := e.Scores(ctx, w.ID)
	if err != nil {
		return nil, nil, err
	}
	scores := make(map[string]float64, len(sc.Nodes))
	for _, s := range sc.Nodes {
		scores[s.Key] = s.Value
	}
	return g, scores, nil
}

func encodeGraph(ctx context.Context, g *dag.Graph, scores map[string]float64, opts render.Options, output string) ([]byte, error) {
	dot := render.ToDOT(g, scores, opts)
	if strings.EqualFold(filepath.Ext(output), ".svg") {
		return render.RenderSVG(ctx, dot)
	}
	return []byte(dot), nil
}

// defaultGraphOutput names the output after the repository.
func defaultGraphOutput(repo string) string {
	name := strings.TrimSuffix(filepath.Base(strings.TrimSuffix(repo, "/")), ".git")
	if name == "" || name == "." || name == "/" {
		name = "graph"
	}
	return name + ".svg"
}
