package main

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"yt2pod/internal/daemonrun"
	"yt2pod/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		lines     int
		follow    bool
		jobID     int64
		level     string
		component string
		raw       bool
		cliLog    bool
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent daemon log entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if strings.TrimSpace(cfg.Paths.LogDir) == "" {
				return fmt.Errorf("paths.log_dir is not configured")
			}
			name := daemonrun.LogName
			if cliLog {
				name = "yt2pod"
			}
			path := filepath.Join(cfg.Paths.LogDir, name+".log")

			filter := logs.Filter{JobID: jobID, Component: strings.TrimSpace(component)}
			if strings.TrimSpace(level) != "" {
				if err := filter.MinLevel.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
					return fmt.Errorf("invalid --level %q", level)
				}
			} else {
				filter.MinLevel = slog.LevelDebug
			}

			out := cmd.OutOrStdout()
			emit := func(e logs.Entry) { printEntry(out, e, raw) }

			entries, offset, err := logs.Last(path, lines, filter)
			if err != nil {
				return err
			}
			if len(entries) == 0 && !follow {
				fmt.Fprintf(out, "No log entries in %s\n", path)
				return nil
			}
			for _, e := range entries {
				emit(e)
			}
			if !follow {
				return nil
			}
			return logs.Follow(cmd.Context(), path, offset, filter, emit)
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of recent entries to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new entries")
	cmd.Flags().Int64Var(&jobID, "job", 0, "Only show entries for this job id")
	cmd.Flags().StringVar(&level, "level", "", "Minimum level (debug, info, warn, error)")
	cmd.Flags().StringVar(&component, "component", "", "Only show entries from this component")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print the JSON lines unchanged")
	cmd.Flags().BoolVar(&cliLog, "cli", false, "Read the CLI log instead of the daemon log")
	return cmd
}

func printEntry(w io.Writer, e logs.Entry, raw bool) {
	if raw {
		fmt.Fprintln(w, e.Raw)
		return
	}
	fmt.Fprintln(w, logs.Format(e))
}
