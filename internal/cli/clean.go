package cli

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jasonwhite/brilliant-build/internal/state"
	"github.com/jasonwhite/brilliant-build/pkg/types"
)

func newCleanCmd() *cobra.Command {
	var purge bool

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Delete build outputs",
		Long: "Delete every file produced by a task, as recorded by the stored\n" +
			"task→resource edges, and mark all tasks pending so the next build\n" +
			"regenerates them. With --purge the state file itself is deleted too.",
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
			stPath := statePath(descPath)
			st, err := state.Open(stPath)
			if err != nil {
				return err
			}
			defer st.Close()

			removed := 0
			err = st.WithTx(func(tx *state.Tx) error {
				tasks, err := tx.Tasks()
				if err != nil {
					return err
				}
				for _, task := range tasks {
					outputs, err := tx.TaskOutgoing(task.ID)
					if err != nil {
						return err
					}
					for _, n := range outputs {
						res, err := tx.Resource(n.ID)
						if err != nil {
							return err
						}
						if err := os.Remove(res.Path); err == nil {
							removed++
						} else if !os.IsNotExist(err) {
							return err
						}
						res.Status = types.StatusMissing
						res.Checksum = nil
						if err := tx.UpdateResource(res); err != nil {
							return err
						}
					}
					if err := tx.AddPendingTask(task.ID); err != nil {
						return err
					}
				}
				return nil
			})
			if err != nil {
				return err
			}
			console.Successf("Removed %d outputs.", removed)

			if !purge {
				return nil
			}
			if err := st.Close(); err != nil {
				return err
			}
			for _, suffix := range []string{"", "-wal", "-shm"} {
				if err := os.Remove(stPath + suffix); err != nil && !os.IsNotExist(err) {
					return err
				}
			}
			console.Successf("Removed state file.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&purge, "purge", false, "also delete the state file")
	return cmd
}
