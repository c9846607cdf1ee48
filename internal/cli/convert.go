package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/jasonwhite/brilliant-build/internal/graph"
	"github.com/jasonwhite/brilliant-build/internal/state"
)

// stateDump is the JSON export shape of the stored graph.
type stateDump struct {
	Resources []dumpResource `json:"resources"`
	Tasks     []dumpTask     `json:"tasks"`
	Edges     []dumpEdge     `json:"edges"`
}

type dumpResource struct {
	ID       int64  `json:"id"`
	Path     string `json:"path"`
	Status   string `json:"status"`
	Checksum string `json:"checksum,omitempty"`
}

type dumpTask struct {
	ID           int64      `json:"id"`
	Commands     [][]string `json:"commands"`
	WorkingDir   string     `json:"cwd"`
	Display      string     `json:"display,omitempty"`
	LastExecuted time.Time  `json:"last_executed"`
}

type dumpEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
	Type string `json:"type"`
}

func newConvertCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Export the stored graph",
		Long:  "Export the stored dependency graph as GraphViz dot or as JSON.",
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

			tx, err := st.Begin()
			if err != nil {
				return err
			}
			defer tx.Rollback()

			switch format {
			case "dot":
				g, err := graph.Build(tx)
				if err != nil {
					return err
				}
				return g.WriteDot(os.Stdout, graph.DotOptions{FullNames: true})
			case "json":
				return dumpJSON(tx)
			}
			return fmt.Errorf("unknown format %q", format)
		},
	}

	cmd.Flags().StringVar(&format, "format", "json", "output format: dot, json")
	return cmd
}

func dumpJSON(tx *state.Tx) error {
	var dump stateDump

	resources, err := tx.Resources()
	if err != nil {
		return err
	}
	for _, r := range resources {
		dump.Resources = append(dump.Resources, dumpResource{
			ID:       r.ID,
			Path:     r.Path,
			Status:   r.Status.String(),
			Checksum: fmt.Sprintf("%x", r.Checksum),
		})
	}

	tasks, err := tx.Tasks()
	if err != nil {
		return err
	}
	for _, t := range tasks {
		dump.Tasks = append(dump.Tasks, dumpTask{
			ID:           t.ID,
			Commands:     t.Commands,
			WorkingDir:   t.WorkingDir,
			Display:      t.Display,
			LastExecuted: t.LastExecuted,
		})
	}

	redges, err := tx.ResourceEdges()
	if err != nil {
		return err
	}
	for _, e := range redges {
		dump.Edges = append(dump.Edges, dumpEdge{
			From: fmt.Sprintf("r%d", e.From),
			To:   fmt.Sprintf("t%d", e.To),
			Type: e.Type.String(),
		})
	}
	tedges, err := tx.TaskEdges()
	if err != nil {
		return err
	}
	for _, e := range tedges {
		dump.Edges = append(dump.Edges, dumpEdge{
			From: fmt.Sprintf("t%d", e.From),
			To:   fmt.Sprintf("r%d", e.To),
			Type: e.Type.String(),
		})
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(dump)
}
