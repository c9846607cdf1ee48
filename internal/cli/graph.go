package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jasonwhite/brilliant-build/internal/graph"
	"github.com/jasonwhite/brilliant-build/internal/rules"
	"github.com/jasonwhite/brilliant-build/internal/state"
	"github.com/jasonwhite/brilliant-build/internal/syncer"
	"github.com/jasonwhite/brilliant-build/pkg/types"
)

func newGraphCmd() *cobra.Command {
	var changes, cached, full bool
	var edges string

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Render the dependency graph as GraphViz dot",
		RunE: func(cmd *cobra.Command, args []string) error {
			descPath, err := filepath.Abs(flags.file)
			if err != nil {
				return err
			}

			st, err := state.Open(statePath(descPath))
			if err != nil {
				return err
			}
			defer st.Close()

			// Unless rendering from cache, reconcile the description first
			// so the picture matches the rules on disk.
			if !cached {
				rls, data, err := rules.Load(descPath)
				if err != nil {
					return err
				}
				if _, err := syncer.Sync(st, descPath, data, rls, nil); err != nil {
					return err
				}
			}

			filter, err := edgeFilter(edges)
			if err != nil {
				return err
			}

			tx, err := st.Begin()
			if err != nil {
				return err
			}
			defer tx.Rollback()

			g, err := graph.Build(tx)
			if err != nil {
				return err
			}

			if changes {
				roots, err := pendingRoots(tx, g)
				if err != nil {
					return err
				}
				g = g.Subgraph(roots)
			}

			return g.WriteDot(os.Stdout, graph.DotOptions{FullNames: full, EdgeFilter: filter})
		},
	}

	cmd.Flags().BoolVar(&changes, "changes", false, "render only the pending subgraph")
	cmd.Flags().BoolVar(&cached, "cached", false, "render from stored state without re-parsing")
	cmd.Flags().BoolVar(&full, "full", false, "render full resource paths")
	cmd.Flags().StringVar(&edges, "edges", "", "filter edges: explicit, implicit, both")

	return cmd
}

func edgeFilter(edges string) (func(types.EdgeType) bool, error) {
	switch edges {
	case "":
		return nil, nil
	case "explicit":
		return types.EdgeType.HasExplicit, nil
	case "implicit":
		return types.EdgeType.HasImplicit, nil
	case "both":
		return func(t types.EdgeType) bool { return t == types.EdgeBoth }, nil
	}
	return nil, fmt.Errorf("unknown edge filter %q", edges)
}

// pendingRoots resolves the pending sets to graph vertices.
func pendingRoots(tx *state.Tx, g *graph.Graph) ([]graph.Vertex, error) {
	pr, err := tx.PendingResources()
	if err != nil {
		return nil, err
	}
	pt, err := tx.PendingTasks()
	if err != nil {
		return nil, err
	}

	var roots []graph.Vertex
	for _, id := range pr {
		if v := graph.ResourceVertex(id); g.Has(v) {
			roots = append(roots, v)
		}
	}
	for _, id := range pt {
		if v := graph.TaskVertex(id); g.Has(v) {
			roots = append(roots, v)
		}
	}
	return roots, nil
}
