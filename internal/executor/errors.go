package executor

import (
	"fmt"
	"strings"
)

// TaskFailure reports one task whose command sequence exited nonzero or
// could not be spawned.
type TaskFailure struct {
	TaskID   int64
	Display  string
	ExitCode int
	Stderr   string
}

func (f *TaskFailure) Error() string {
	return fmt.Sprintf("task %q exited %d", f.Display, f.ExitCode)
}

// BuildError aggregates every failure of one run. A single build reports all
// failures together instead of aborting at the first one.
type BuildError struct {
	Failures []*TaskFailure
}

func (e *BuildError) Error() string {
	if len(e.Failures) == 1 {
		return e.Failures[0].Error()
	}
	return fmt.Sprintf("%d tasks failed", len(e.Failures))
}

// CycleError reports dependency cycles that intersect the subgraph about to
// be walked. Every involved vertex is listed.
type CycleError struct {
	Cycles [][]string
}

func (e *CycleError) Error() string {
	parts := make([]string, len(e.Cycles))
	for i, cycle := range e.Cycles {
		parts[i] = strings.Join(cycle, " -> ")
	}
	return "dependency cycle detected: " + strings.Join(parts, "; ")
}
