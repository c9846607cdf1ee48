package cli

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jasonwhite/brilliant-build/internal/executor"
	"github.com/jasonwhite/brilliant-build/pkg/types"
)

// run executes the root command with the given arguments.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

// writeDescription writes a BUILD file with one copy rule and its input.
func writeDescription(t *testing.T) (dir, descPath string) {
	t.Helper()
	dir = t.TempDir()
	descPath = filepath.Join(dir, "BUILD")
	desc := `[{
		"inputs": ["foo.c"],
		"task": ["cp", "foo.c", "foo.o"],
		"outputs": ["foo.o"],
		"display": "copy foo.c"
	}]`
	require.NoError(t, os.WriteFile(descPath, []byte(desc), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "foo.c"), []byte("int main() {}"), 0o644))
	return dir, descPath
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "bb v")
}

func TestInitCommand(t *testing.T) {
	dir := t.TempDir()
	descPath := filepath.Join(dir, "BUILD")

	out, err := run(t, "init", "-f", descPath)
	require.NoError(t, err)
	assert.Contains(t, out, "initialized")

	assert.FileExists(t, descPath)
	assert.FileExists(t, filepath.Join(dir, ".brilliant.yaml"))
	assert.FileExists(t, descPath+".state")

	// init is idempotent.
	_, err = run(t, "init", "-f", descPath)
	assert.NoError(t, err)
}

func TestBuildEndToEnd(t *testing.T) {
	dir, descPath := writeDescription(t)

	_, err := run(t, "build", "-f", descPath)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "foo.o"))
	require.NoError(t, err)
	assert.Equal(t, "int main() {}", string(data))
	assert.FileExists(t, descPath+".state")

	// A second build is a no-op; the output is untouched.
	before, err := os.Stat(filepath.Join(dir, "foo.o"))
	require.NoError(t, err)
	_, err = run(t, "build", "-f", descPath)
	require.NoError(t, err)
	after, err := os.Stat(filepath.Join(dir, "foo.o"))
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime())
}

func TestBuildDryRun(t *testing.T) {
	dir, descPath := writeDescription(t)

	_, err := run(t, "build", "-f", descPath, "--dryrun")
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(dir, "foo.o"), "dry run must not produce outputs")
}

func TestBuildMissingDescription(t *testing.T) {
	_, err := run(t, "build", "-f", filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
	assert.Equal(t, exitUserError, exitCode(err))
}

func TestBuildFailurePropagates(t *testing.T) {
	dir := t.TempDir()
	descPath := filepath.Join(dir, "BUILD")
	desc := `[{"task": ["false"], "outputs": ["never"]}]`
	require.NoError(t, os.WriteFile(descPath, []byte(desc), 0o644))

	_, err := run(t, "build", "-f", descPath)
	var berr *executor.BuildError
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, exitUserError, exitCode(err))
}

func TestStatusCommand(t *testing.T) {
	_, descPath := writeDescription(t)

	_, err := run(t, "build", "-f", descPath)
	require.NoError(t, err)
	_, err = run(t, "status", "-f", descPath)
	assert.NoError(t, err)
}

func TestCleanPurge(t *testing.T) {
	dir, descPath := writeDescription(t)

	_, err := run(t, "build", "-f", descPath)
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(dir, "foo.o"))

	_, err = run(t, "clean", "-f", descPath, "--purge")
	require.NoError(t, err)

	assert.NoFileExists(t, filepath.Join(dir, "foo.o"), "outputs are deleted")
	assert.NoFileExists(t, descPath+".state", "purge deletes the state file")
	assert.FileExists(t, filepath.Join(dir, "foo.c"), "inputs are untouched")
}

func TestCleanWithoutPurgeKeepsState(t *testing.T) {
	dir, descPath := writeDescription(t)

	_, err := run(t, "build", "-f", descPath)
	require.NoError(t, err)
	_, err = run(t, "clean", "-f", descPath)
	require.NoError(t, err)

	assert.NoFileExists(t, filepath.Join(dir, "foo.o"))
	assert.FileExists(t, descPath+".state")

	// The next build regenerates the output.
	_, err = run(t, "build", "-f", descPath)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "foo.o"))
}

func TestGraphCommand(t *testing.T) {
	_, descPath := writeDescription(t)
	_, err := run(t, "build", "-f", descPath)
	require.NoError(t, err)

	_, err = run(t, "graph", "-f", descPath, "--cached")
	assert.NoError(t, err)

	_, err = run(t, "graph", "-f", descPath, "--cached", "--edges", "bogus")
	assert.Error(t, err)
}

func TestConvertCommand(t *testing.T) {
	_, descPath := writeDescription(t)
	_, err := run(t, "build", "-f", descPath)
	require.NoError(t, err)

	_, err = run(t, "convert", "-f", descPath, "--format", "json")
	assert.NoError(t, err)
	_, err = run(t, "convert", "-f", descPath, "--format", "dot")
	assert.NoError(t, err)
	_, err = run(t, "convert", "-f", descPath, "--format", "xml")
	assert.Error(t, err)
}

func TestGCCommand(t *testing.T) {
	_, descPath := writeDescription(t)
	_, err := run(t, "build", "-f", descPath)
	require.NoError(t, err)

	_, err = run(t, "gc", "-f", descPath)
	assert.NoError(t, err)
}

func TestExitCodes(t *testing.T) {
	assert.Equal(t, exitUserError, exitCode(&executor.BuildError{}))
	assert.Equal(t, exitUserError, exitCode(&executor.CycleError{}))
	assert.Equal(t, exitSysError, exitCode(errors.New("disk on fire")))
}

func TestEdgeFilter(t *testing.T) {
	f, err := edgeFilter("explicit")
	require.NoError(t, err)
	assert.True(t, f(types.EdgeExplicit))
	assert.True(t, f(types.EdgeBoth))
	assert.False(t, f(types.EdgeImplicit))

	f, err = edgeFilter("both")
	require.NoError(t, err)
	assert.True(t, f(types.EdgeBoth))
	assert.False(t, f(types.EdgeExplicit))

	f, err = edgeFilter("")
	require.NoError(t, err)
	assert.Nil(t, f)

	_, err = edgeFilter("bogus")
	assert.Error(t, err)
}
