package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jasonwhite/brilliant-build/internal/executor"
	"github.com/jasonwhite/brilliant-build/internal/rules"
	"github.com/jasonwhite/brilliant-build/internal/runner"
	"github.com/jasonwhite/brilliant-build/internal/state"
	"github.com/jasonwhite/brilliant-build/internal/syncer"
	"github.com/jasonwhite/brilliant-build/internal/watch"
	"github.com/jasonwhite/brilliant-build/pkg/types"
)

func newBuildCmd() *cobra.Command {
	var autopilot bool
	var watchDirs []string
	var delayMS int

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Bring outputs into agreement with inputs",
		Long: "Parse the build description, reconcile it with the stored state, and\n" +
			"execute every pending task in dependency order.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig(cmd, flags.file)
			if err != nil {
				return err
			}
			console := NewConsole(cfg.Color)

			if !autopilot {
				return buildOnce(ctx, cfg, console)
			}

			if !cmd.Flags().Changed("delay") && cfg.DelayMS > 0 {
				delayMS = cfg.DelayMS
			}
			if len(watchDirs) == 0 {
				watchDirs = cfg.WatchDirs
			}
			if len(watchDirs) == 0 {
				watchDirs = []string{filepath.Dir(flags.file)}
			}

			// The initial build runs before watching; its failures are
			// reported but keep the autopilot alive.
			if err := buildOnce(ctx, cfg, console); err != nil {
				console.Errorf("%s", err)
			}

			w := &watch.Watcher{
				Dirs:  watchDirs,
				Delay: time.Duration(delayMS) * time.Millisecond,
			}
			err = w.Run(ctx, func(ctx context.Context) error {
				if err := buildOnce(ctx, cfg, console); err != nil {
					console.Errorf("%s", err)
					return err
				}
				return nil
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&autopilot, "autopilot", false, "watch for changes and rebuild automatically")
	cmd.Flags().StringSliceVar(&watchDirs, "watchdir", nil, "directories to watch (default: the description's directory)")
	cmd.Flags().IntVar(&delayMS, "delay", 0, "debounce delay in milliseconds before rebuilding")

	return cmd
}

// buildOnce runs one parse → sync → execute pass and reports the outcome on
// the console.
func buildOnce(ctx context.Context, cfg types.Config, console *Console) error {
	descPath, err := filepath.Abs(flags.file)
	if err != nil {
		return err
	}

	rls, data, err := rules.Load(descPath)
	if err != nil {
		return err
	}

	st, err := state.Open(statePath(descPath))
	if err != nil {
		return err
	}
	defer st.Close()

	if _, err := syncer.Sync(st, descPath, data, rls, nil); err != nil {
		return err
	}

	ex := &executor.Executor{
		Store:   st,
		Runner:  &runner.Depfile{Runner: &runner.Local{}, Root: filepath.Dir(descPath)},
		Workers: cfg.Threads,
		DryRun:  flags.dryrun,
	}
	summary, err := ex.Run(ctx)
	report(console, summary, err)
	return err
}

// report renders a run summary on the console.
func report(console *Console, summary *executor.Summary, err error) {
	if summary == nil {
		return
	}
	if flags.dryrun {
		if len(summary.WouldRun) == 0 {
			console.Printf("Nothing to do.")
			return
		}
		for _, name := range summary.WouldRun {
			console.Printf("would run: %s", name)
		}
		return
	}

	for _, f := range summary.Failures {
		console.Errorf("FAILED %s (exit %d)", f.Display, f.ExitCode)
		if f.Stderr != "" {
			console.Printf("%s", f.Stderr)
		}
	}

	switch {
	case err != nil && len(summary.Failures) == 0:
		// Cycle, interrupt, or store failure: the error prints on exit.
	case len(summary.Failures) > 0:
		console.Errorf("Build failed: %d of %d tasks failed.",
			len(summary.Failures), summary.TasksRun+len(summary.Failures))
	case summary.TasksRun == 0:
		console.Printf("Nothing to do.")
	default:
		console.Successf("Build succeeded: %d tasks run.", summary.TasksRun)
	}
}
