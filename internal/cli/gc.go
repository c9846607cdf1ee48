package cli

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jasonwhite/brilliant-build/internal/state"
)

func newGCCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gc",
		Short: "Remove orphaned vertices from the state (experimental)",
		Long: "Remove every vertex with no incoming and no outgoing edges. Such\n" +
			"islands accumulate when rules and implicit dependencies churn.\n" +
			"This command is experimental.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags.file)
			if err != nil {
				return err
			}
			console := NewConsole(cfg.Color)

			descPath, err := filepath.Abs(flags.file)
			if err != nil {
				return err
			}
			st, err := state.Open(statePath(descPath))
			if err != nil {
				return err
			}
			defer st.Close()

			removed := 0
			err = st.WithTx(func(tx *state.Tx) error {
				resources, err := tx.Resources()
				if err != nil {
					return err
				}
				for _, r := range resources {
					island, err := isResourceIsland(tx, r.ID)
					if err != nil {
						return err
					}
					if island {
						if err := tx.RemoveResource(r.ID); err != nil {
							return err
						}
						removed++
					}
				}

				tasks, err := tx.Tasks()
				if err != nil {
					return err
				}
				for _, task := range tasks {
					island, err := isTaskIsland(tx, task.ID)
					if err != nil {
						return err
					}
					if island {
						if err := tx.RemoveTask(task.ID); err != nil {
							return err
						}
						removed++
					}
				}
				return nil
			})
			if err != nil {
				return err
			}

			console.Successf("Removed %d orphaned vertices.", removed)
			return nil
		},
	}
}

// An island has no edges in either direction. The description resource is
// never considered; enumeration already excludes it.
func isResourceIsland(tx *state.Tx, id int64) (bool, error) {
	in, err := tx.ResourceDegreeIn(id)
	if err != nil {
		return false, err
	}
	out, err := tx.ResourceDegreeOut(id)
	if err != nil {
		return false, err
	}
	return in+out == 0, nil
}

func isTaskIsland(tx *state.Tx, id int64) (bool, error) {
	in, err := tx.TaskDegreeIn(id)
	if err != nil {
		return false, err
	}
	out, err := tx.TaskDegreeOut(id)
	if err != nil {
		return false, err
	}
	return in+out == 0, nil
}
