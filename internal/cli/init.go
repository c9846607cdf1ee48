package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jasonwhite/brilliant-build/internal/state"
	"github.com/jasonwhite/brilliant-build/pkg/types"
)

// configFile holds the structure written to .brilliant.yaml.
type configFile struct {
	Threads   int      `yaml:"threads,omitempty"`
	Color     string   `yaml:"color,omitempty"`
	WatchDirs []string `yaml:"watchdirs,omitempty"`
	DelayMS   int      `yaml:"delay_ms,omitempty"`
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize a build directory",
		Long:  "Create an empty build description, a default .brilliant.yaml, and the state file.",
		RunE:  runInit,
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	descPath, err := filepath.Abs(flags.file)
	if err != nil {
		return err
	}

	// An empty description is a valid rule list.
	if _, err := os.Stat(descPath); os.IsNotExist(err) {
		if err := os.WriteFile(descPath, []byte("[]\n"), 0o644); err != nil {
			return fmt.Errorf("write description: %w", err)
		}
	}

	configPath := filepath.Join(filepath.Dir(descPath), "."+configFileName+"."+configFileType)
	if err := writeConfigIfMissing(configPath); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	// Opening the store initializes the schema.
	st, err := state.Open(statePath(descPath))
	if err != nil {
		return fmt.Errorf("initialize state: %w", err)
	}
	if err := st.Close(); err != nil {
		return fmt.Errorf("finalize state: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Build directory initialized successfully")
	return nil
}

// writeConfigIfMissing creates .brilliant.yaml with default values if the
// file does not exist. If it already exists, the function returns nil
// (idempotent).
func writeConfigIfMissing(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	cfg := configFile{
		Color: types.ColorAuto,
	}
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
