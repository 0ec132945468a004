package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"yt2pod/internal/config"
	"yt2pod/internal/daemonctl"
	"yt2pod/internal/daemonrun"
	"yt2pod/internal/jobs"
)

const stopGracePeriod = 15 * time.Second

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run and control the background daemon",
	}

	var skipPreflight bool
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			opts := daemonrun.Options{SkipPreflight: skipPreflight}
			if ctx.logLevelFlag != nil {
				opts.LogLevel = *ctx.logLevelFlag
			}
			return daemonrun.Run(cmd.Context(), cfg, opts)
		},
	}
	runCmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "Start even when required checks fail")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether the daemon is running and the job backlog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			running, pid, err := daemonctl.ProcessInfo(daemonctl.PathsFromConfig(cfg))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Daemon:   %s\n", runningLabel(running, pid))
			if base, err := daemonctl.BaseURL(cfg.Paths.APIBind); err == nil {
				fmt.Fprintf(out, "API:      %s\n", base)
			} else {
				fmt.Fprintln(out, "API:      disabled")
			}
			if cfg.Paths.InboxDir != "" {
				fmt.Fprintf(out, "Inbox:    %s\n", cfg.Paths.InboxDir)
			}
			fmt.Fprintf(out, "Database: %s\n", cfg.DatabasePath())

			return ctx.withRuntime(cmd, func(_ *config.Config, rt *daemonrun.Runtime) error {
				list, err := rt.Tracker.List(cmd.Context(), 0)
				if err != nil {
					return err
				}
				counts := make(map[jobs.Status]int)
				for _, job := range list {
					counts[job.Status]++
				}
				rows := make([][]string, 0, 4)
				for _, status := range []jobs.Status{jobs.StatusPending, jobs.StatusProcessing, jobs.StatusCompleted, jobs.StatusError} {
					rows = append(rows, []string{string(status), strconv.Itoa(counts[status])})
				}
				fmt.Fprint(out, renderTable([]string{"Status", "Jobs"}, rows, []columnAlignment{alignLeft, alignRight}))
				fmt.Fprintln(out)
				return nil
			})
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			result, err := daemonctl.Stop(daemonctl.PathsFromConfig(cfg), stopGracePeriod)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(out, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill {
				fmt.Fprintf(out, "Daemon (pid %d) did not stop within %s and was killed\n", result.PID, stopGracePeriod)
				return nil
			}
			fmt.Fprintf(out, "Daemon (pid %d) stopped\n", result.PID)
			return nil
		},
	}

	daemonCmd.AddCommand(runCmd, statusCmd, stopCmd)
	return daemonCmd
}

func runningLabel(running bool, pid int) string {
	switch {
	case !running:
		return "stopped"
	case pid > 0:
		return fmt.Sprintf("running (pid %d)", pid)
	default:
		return "running"
	}
}
