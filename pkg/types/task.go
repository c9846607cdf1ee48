package types

import (
	"encoding/json"
	"strings"
	"time"
)

// Task is a unit of work: an ordered sequence of argv command lines executed
// in a working directory. Identity is the pair (commands, working directory).
type Task struct {
	ID           int64
	Commands     [][]string
	WorkingDir   string
	Display      string
	LastExecuted time.Time
}

// Key returns the natural key of the task. Two tasks with equal keys are the
// same task regardless of id or display label.
func (t Task) Key() string {
	return t.CommandString() + "\x00" + t.WorkingDir
}

// CommandString returns the JSON encoding of the command list. It is the
// stored form of the commands column and part of the natural key.
func (t Task) CommandString() string {
	b, err := json.Marshal(t.Commands)
	if err != nil {
		// [][]string cannot fail to marshal.
		panic(err)
	}
	return string(b)
}

// ParseCommands decodes a stored command string back into argv vectors.
func ParseCommands(s string) ([][]string, error) {
	var cmds [][]string
	if err := json.Unmarshal([]byte(s), &cmds); err != nil {
		return nil, err
	}
	return cmds, nil
}

// DisplayName returns the display label when set, otherwise a short rendering
// of the first command line.
func (t Task) DisplayName() string {
	if t.Display != "" {
		return t.Display
	}
	if len(t.Commands) == 0 {
		return "(empty)"
	}
	return strings.Join(t.Commands[0], " ")
}

// Validate checks that the task can be ingested: at least one command, none
// of them empty.
func (t Task) Validate() error {
	if len(t.Commands) == 0 {
		return ErrEmptyCommands
	}
	for _, argv := range t.Commands {
		if len(argv) == 0 {
			return ErrEmptyCommands
		}
	}
	return nil
}
