// Command yt2podd runs the yt2pod daemon: the job worker pool, the HTTP API
// and the optional inbox watcher.
package main

import (
	"strings"

	"github.com/spf13/cobra"

	"yt2pod/internal/config"
	"yt2pod/internal/daemonrun"
)

type flags struct {
	configPath    string
	logLevel      string
	development   bool
	skipPreflight bool
}

func newCommand() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:           "yt2podd",
		Short:         "yt2pod ingestion daemon",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(f.configPath)
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, runOptions(f))
		},
	}
	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "Configuration file path")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "Override logging.level")
	cmd.Flags().BoolVar(&f.development, "dev", false, "Include source locations in log output")
	cmd.Flags().BoolVar(&f.skipPreflight, "skip-preflight", false, "Start even when required checks fail")
	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	cfg, _, _, err := config.Load(strings.TrimSpace(path))
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runOptions(f flags) daemonrun.Options {
	return daemonrun.Options{
		LogLevel:      strings.TrimSpace(f.logLevel),
		Development:   f.development,
		SkipPreflight: f.skipPreflight,
	}
}
