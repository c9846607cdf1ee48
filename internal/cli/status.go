package cli

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jasonwhite/brilliant-build/internal/state"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show pending work and the last build",
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

			tx, err := st.Begin()
			if err != nil {
				return err
			}
			defer tx.Rollback()

			pr, err := tx.PendingResources()
			if err != nil {
				return err
			}
			pt, err := tx.PendingTasks()
			if err != nil {
				return err
			}

			if len(pr) == 0 && len(pt) == 0 {
				console.Successf("Everything is up to date.")
			} else {
				console.Warnf("Pending: %d resources, %d tasks.", len(pr), len(pt))
				for _, id := range pr {
					r, err := tx.Resource(id)
					if err != nil {
						return err
					}
					console.Printf("  resource %s (%s)", r.Path, r.Status)
				}
				for _, id := range pt {
					task, err := tx.Task(id)
					if err != nil {
						return err
					}
					console.Printf("  task %s", task.DisplayName())
				}
			}

			last, err := tx.LastBuild()
			if err == state.ErrNoBuilds {
				console.Printf("No builds recorded.")
				return nil
			}
			if err != nil {
				return err
			}
			console.Printf("Last build: %s, %d tasks run, %d failures.",
				last.StartedAt.Local().Format("2006-01-02 15:04:05"), last.TasksRun, last.Failures)
			return nil
		},
	}
}
