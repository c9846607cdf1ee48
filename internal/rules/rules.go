// Package rules reads a build description into the rule list the syncer
// consumes. A description is a JSON array of rules; each rule names a task
// (one argv or a list of argvs), its declared inputs, and its declared
// outputs. Relative paths resolve against the description's directory.
package rules

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jasonwhite/brilliant-build/pkg/types"
)

// DescriptionError reports a missing, unreadable, or unparsable description.
type DescriptionError struct {
	Path string
	Err  error
}

func (e *DescriptionError) Error() string {
	return fmt.Sprintf("build description %s: %s", e.Path, e.Err)
}

func (e *DescriptionError) Unwrap() error { return e.Err }

// fileRule is the on-disk shape of one rule.
type fileRule struct {
	Inputs  []string        `json:"inputs"`
	Task    json.RawMessage `json:"task"`
	Outputs []string        `json:"outputs"`
	Display string          `json:"display"`
	Cwd     string          `json:"cwd"`
}

// Load reads and parses the description at path. The raw bytes come back
// alongside the rules so the syncer can fingerprint them.
func Load(path string) ([]types.Rule, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, &DescriptionError{Path: path, Err: err}
	}
	rls, err := Parse(data, filepath.Dir(path))
	if err != nil {
		return nil, nil, &DescriptionError{Path: path, Err: err}
	}
	return rls, data, nil
}

// Parse decodes a description. baseDir anchors relative paths and is the
// default working directory of tasks that do not set one.
func Parse(data []byte, baseDir string) ([]types.Rule, error) {
	var raw []fileRule
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	rls := make([]types.Rule, 0, len(raw))
	for i, fr := range raw {
		commands, err := parseCommands(fr.Task)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}

		wd := fr.Cwd
		if wd == "" {
			wd = baseDir
		} else if !filepath.IsAbs(wd) {
			wd = filepath.Join(baseDir, wd)
		}

		r := types.Rule{
			Task: types.Task{
				Commands:   commands,
				WorkingDir: wd,
				Display:    fr.Display,
			},
			Inputs:  absPaths(fr.Inputs, baseDir),
			Outputs: absPaths(fr.Outputs, baseDir),
		}
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		rls = append(rls, r)
	}
	return rls, nil
}

// parseCommands accepts either a single argv ([]string) or a command list
// ([][]string).
func parseCommands(raw json.RawMessage) ([][]string, error) {
	if len(raw) == 0 {
		return nil, types.ErrEmptyCommands
	}
	var multi [][]string
	if err := json.Unmarshal(raw, &multi); err == nil {
		return multi, nil
	}
	var single []string
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, fmt.Errorf("task must be an argv or a list of argvs: %w", err)
	}
	return [][]string{single}, nil
}

func absPaths(paths []string, baseDir string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		if p == "" || filepath.IsAbs(p) {
			out[i] = p
			continue
		}
		out[i] = filepath.Join(baseDir, p)
	}
	return out
}
