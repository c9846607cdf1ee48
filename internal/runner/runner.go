// Package runner provides command runners for the executor. The Local runner
// executes argv sequences with os/exec; it cannot trace file accesses, so its
// observed read and write sets are empty. Depfile wraps Local and folds
// compiler-written dependency files into the observed reads, which is how
// header discovery works on toolchains that support -MD.
package runner

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jasonwhite/brilliant-build/pkg/types"
)

// Local runs commands directly on the host.
type Local struct {
	// Env overrides the process environment when non-nil.
	Env []string
}

var _ types.Runner = (*Local)(nil)

// Run executes the commands in order. The first nonzero exit aborts the
// remainder and is reported through ExitCode; stderr of the failing command
// rides along for diagnostics.
func (l *Local) Run(ctx context.Context, commands [][]string, workingDir string) (types.RunResult, error) {
	var result types.RunResult
	for _, argv := range commands {
		if len(argv) == 0 {
			return result, types.ErrEmptyCommands
		}

		cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
		cmd.Dir = workingDir
		if l.Env != nil {
			cmd.Env = l.Env
		}
		var stderr bytes.Buffer
		cmd.Stderr = &stderr

		err := cmd.Run()
		result.Stderr = stderr.String()
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				result.ExitCode = exitErr.ExitCode()
				return result, nil
			}
			return result, err
		}
	}
	return result, nil
}

// Depfile wraps another runner and, after a successful run, reads make-style
// dependency files produced by the commands (the file named by -MF, or the -o
// output with a .d extension when -MD is present). The prerequisites become
// observed reads.
type Depfile struct {
	Runner types.Runner
	// Root filters observed paths: anything outside it is dropped. Empty
	// means no filtering beyond the device exclusions.
	Root string
}

var _ types.Runner = (*Depfile)(nil)

// Run executes the wrapped runner and augments the result with depfile reads.
func (d *Depfile) Run(ctx context.Context, commands [][]string, workingDir string) (types.RunResult, error) {
	result, err := d.Runner.Run(ctx, commands, workingDir)
	if err != nil || result.ExitCode != 0 {
		return result, err
	}

	seen := make(map[string]bool, len(result.Reads))
	for _, r := range result.Reads {
		seen[r] = true
	}
	for _, argv := range commands {
		depPath := depfilePath(argv)
		if depPath == "" {
			continue
		}
		if !filepath.IsAbs(depPath) {
			depPath = filepath.Join(workingDir, depPath)
		}
		reads, err := parseDepfile(depPath, workingDir)
		if err != nil {
			// A missing depfile is not a build failure; the compiler may
			// not have produced one.
			continue
		}
		for _, r := range reads {
			if d.keep(r) && !seen[r] {
				seen[r] = true
				result.Reads = append(result.Reads, r)
			}
		}
	}
	sort.Strings(result.Reads)
	return result, nil
}

func (d *Depfile) keep(path string) bool {
	if strings.HasPrefix(path, "/dev/") || strings.HasPrefix(path, "/proc/") {
		return false
	}
	if d.Root == "" {
		return true
	}
	rel, err := filepath.Rel(d.Root, path)
	if err != nil {
		return false
	}
	return rel == "." || !strings.HasPrefix(rel, "..")
}

// depfilePath locates the dependency file an argv will write: the -MF
// argument wins, otherwise -MD with -o derives <output>.d.
func depfilePath(argv []string) string {
	var md bool
	var mf, out string
	for i := 0; i < len(argv); i++ {
		switch argv[i] {
		case "-MD", "-MMD":
			md = true
		case "-MF":
			if i+1 < len(argv) {
				mf = argv[i+1]
			}
		case "-o":
			if i+1 < len(argv) {
				out = argv[i+1]
			}
		}
	}
	if mf != "" {
		return mf
	}
	if md && out != "" {
		return strings.TrimSuffix(out, filepath.Ext(out)) + ".d"
	}
	return ""
}

// parseDepfile reads a make-style depfile: "target: prereq prereq \\\n ...".
// Prerequisites resolve against workingDir.
func parseDepfile(path, workingDir string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	text := strings.ReplaceAll(string(data), "\\\n", " ")
	var reads []string
	for _, line := range strings.Split(text, "\n") {
		_, rhs, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		for _, field := range strings.Fields(rhs) {
			p := field
			if !filepath.IsAbs(p) {
				p = filepath.Join(workingDir, p)
			}
			reads = append(reads, p)
		}
	}
	return reads, nil
}
