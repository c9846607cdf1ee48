// Package cli implements the bb command-line interface.
package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jasonwhite/brilliant-build/internal/executor"
	"github.com/jasonwhite/brilliant-build/internal/rules"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	file    string
	dryrun  bool
	threads int
	color   string
	verbose bool
}

var flags rootFlags

// NewRootCmd creates the top-level "bb" command with global flags and all
// subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "bb",
		Short: "An incremental, dependency-aware build system",
		Long: "bb executes exactly the tasks required to bring build outputs into\n" +
			"agreement with their inputs, discovering implicit dependencies as tasks\n" +
			"run and recording them so the next build is minimal.",
		// Do not print usage on errors returned by subcommands.
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging()
		},
	}

	root.PersistentFlags().StringVarP(&flags.file, "file", "f", "./BUILD", "path to the build description")
	root.PersistentFlags().BoolVarP(&flags.dryrun, "dryrun", "n", false, "report what would run without running it")
	root.PersistentFlags().IntVarP(&flags.threads, "threads", "j", 0, "worker count (default: number of CPUs)")
	root.PersistentFlags().StringVar(&flags.color, "color", "auto", "colorize output: auto, never, always")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "verbose logging")

	root.AddCommand(newBuildCmd())
	root.AddCommand(newGraphCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newCleanCmd())
	root.AddCommand(newInitCmd())
	root.AddCommand(newConvertCmd())
	root.AddCommand(newGCCmd())
	root.AddCommand(newVersionCmd())

	return root
}

// Execute runs the root command and exits with the appropriate code: 1 for
// task failures, dependency cycles, and build description errors; 2 for every
// other error, including store and filesystem failures and command-line usage
// errors.
func Execute() {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
	os.Exit(exitSuccess)
}

func exitCode(err error) int {
	var berr *executor.BuildError
	var cerr *executor.CycleError
	var derr *rules.DescriptionError
	if errors.As(err, &berr) || errors.As(err, &cerr) || errors.As(err, &derr) {
		return exitUserError
	}
	return exitSysError
}

// setupLogging configures the default slog logger from --verbose.
func setupLogging() error {
	level := slog.LevelWarn
	if flags.verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

// statePath derives the state file location from the description path.
func statePath(descPath string) string {
	return descPath + ".state"
}
