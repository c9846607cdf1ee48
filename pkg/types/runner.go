package types

import "context"

// RunResult is what the platform command runner reports for one task: the
// exit status of the command sequence and the sets of absolute paths the
// process tree was observed reading and writing.
type RunResult struct {
	ExitCode int
	Reads    []string
	Writes   []string
	Display  string
	Stderr   string
}

// Runner executes a task's commands in order inside its working directory.
// A non-nil error means the runner itself failed to operate (spawn failure,
// cancelled context); a command exiting nonzero is reported through ExitCode
// with a nil error. Implementations that cannot trace file accesses return
// empty Reads and Writes.
type Runner interface {
	Run(ctx context.Context, commands [][]string, workingDir string) (RunResult, error)
}
