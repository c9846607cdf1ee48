package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jasonwhite/brilliant-build/pkg/types"
)

func TestParse(t *testing.T) {
	data := []byte(`[
		{
			"inputs": ["foo.c"],
			"task": ["gcc", "-c", "foo.c", "-o", "foo.o"],
			"outputs": ["foo.o"],
			"display": "compile foo.c"
		},
		{
			"inputs": ["/abs/main.c"],
			"task": [["cc", "-c", "main.c"], ["strip", "main.o"]],
			"outputs": ["main.o"],
			"cwd": "sub"
		}
	]`)

	rls, err := Parse(data, "/p")
	require.NoError(t, err)
	require.Len(t, rls, 2)

	assert.Equal(t, [][]string{{"gcc", "-c", "foo.c", "-o", "foo.o"}}, rls[0].Task.Commands)
	assert.Equal(t, "/p", rls[0].Task.WorkingDir)
	assert.Equal(t, "compile foo.c", rls[0].Task.Display)
	assert.Equal(t, []string{"/p/foo.c"}, rls[0].Inputs)
	assert.Equal(t, []string{"/p/foo.o"}, rls[0].Outputs)

	assert.Len(t, rls[1].Task.Commands, 2)
	assert.Equal(t, "/p/sub", rls[1].Task.WorkingDir)
	assert.Equal(t, []string{"/abs/main.c"}, rls[1].Inputs)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{name: "not json", data: `{`, want: nil},
		{name: "empty task", data: `[{"task": []}]`, want: types.ErrEmptyCommands},
		{name: "missing task", data: `[{"inputs": ["a"]}]`, want: types.ErrEmptyCommands},
		{name: "empty input path", data: `[{"task": ["true"], "inputs": [""]}]`, want: types.ErrEmptyPath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data), "/p")
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "BUILD")
	require.NoError(t, os.WriteFile(path, []byte(`[{"task": ["true"], "inputs": ["in"], "outputs": ["out"]}]`), 0o644))

	rls, data, err := Load(path)
	require.NoError(t, err)
	require.Len(t, rls, 1)
	assert.NotEmpty(t, data)
	assert.Equal(t, []string{filepath.Join(dir, "in")}, rls[0].Inputs)
}

func TestLoadMissing(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "absent"))
	var derr *DescriptionError
	require.ErrorAs(t, err, &derr)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
