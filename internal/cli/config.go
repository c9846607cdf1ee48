package cli

import (
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jasonwhite/brilliant-build/pkg/types"
)

const (
	configFileName = "brilliant"
	configFileType = "yaml"

	cfgKeyThreads   = "threads"
	cfgKeyColor     = "color"
	cfgKeyWatchDirs = "watchdirs"
	cfgKeyDelayMS   = "delay_ms"
)

// loadConfig reads the optional .brilliant.yaml next to the build description
// using Viper, then lets explicitly set flags override it. A missing config
// file is not an error.
func loadConfig(cmd *cobra.Command, descPath string) (types.Config, error) {
	v := viper.New()
	v.SetDefault(cfgKeyThreads, 0)
	v.SetDefault(cfgKeyColor, types.ColorAuto)
	v.SetDefault(cfgKeyDelayMS, 0)
	v.SetConfigName("." + configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(filepath.Dir(descPath))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return types.Config{}, err
		}
	}

	cfg := types.Config{
		Threads:   v.GetInt(cfgKeyThreads),
		Color:     v.GetString(cfgKeyColor),
		WatchDirs: v.GetStringSlice(cfgKeyWatchDirs),
		DelayMS:   v.GetInt(cfgKeyDelayMS),
	}

	if cmd.Flags().Changed("threads") {
		cfg.Threads = flags.threads
	}
	if cmd.Flags().Changed("color") {
		cfg.Color = flags.color
	}

	if err := cfg.Validate(); err != nil {
		return types.Config{}, err
	}
	return cfg, nil
}
