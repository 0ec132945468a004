package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"yt2pod/internal/api"
	"yt2pod/internal/config"
	"yt2pod/internal/daemonctl"
	"yt2pod/internal/daemonrun"
	"yt2pod/internal/jobs"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect ingestion jobs",
	}
	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var statuses []string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := parseStatuses(statuses)
			if err != nil {
				return err
			}
			return ctx.withRuntime(cmd, func(_ *config.Config, rt *daemonrun.Runtime) error {
				list, err := rt.Tracker.List(cmd.Context(), limit, filter...)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, api.FromJobs(list))
				}
				if len(list) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No jobs")
					return nil
				}
				rows := make([][]string, 0, len(list))
				for _, job := range list {
					rows = append(rows, []string{
						strconv.FormatInt(job.ID, 10),
						string(job.Status),
						stageLabel(job),
						jobLabel(job),
						job.Message,
						job.UpdatedAt.Local().Format(time.DateTime),
					})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Status", "Stage", "Source", "Message", "Updated"},
					rows,
					[]columnAlignment{alignRight},
				))
				fmt.Fprintln(cmd.OutOrStdout())
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of jobs to show (0 for all)")
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Only show jobs with these statuses")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var watch bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid job id %q", args[0])
			}
			if watch {
				return ctx.withClient(func(client *daemonctl.Client) error {
					return client.Watch(cmd.Context(), id, func(job api.Job) {
						fmt.Fprintf(cmd.OutOrStdout(), "%s  %-10s %-12s %5.1f%%  %s\n",
							time.Now().Format(time.TimeOnly), job.Status, job.Progress.Stage, job.Progress.Percent, job.Message)
					})
				})
			}
			return ctx.withRuntime(cmd, func(_ *config.Config, rt *daemonrun.Runtime) error {
				job, err := rt.Tracker.MustGet(cmd.Context(), id)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, api.FromJob(job))
				}
				printJob(cmd, job)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	cmd.Flags().BoolVar(&watch, "watch", false, "Stream live progress from the running daemon")
	return cmd
}

func printJob(cmd *cobra.Command, job *jobs.Job) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Job #%d\n", job.ID)
	fmt.Fprintf(out, "  Kind:      %s\n", job.Kind)
	fmt.Fprintf(out, "  Source:    %s\n", job.Source)
	if job.Title != "" {
		fmt.Fprintf(out, "  Title:     %s\n", job.Title)
	}
	fmt.Fprintf(out, "  Status:    %s\n", job.Status)
	fmt.Fprintf(out, "  Stage:     %s\n", stageLabel(job))
	if job.Message != "" {
		fmt.Fprintf(out, "  Message:   %s\n", job.Message)
	}
	fmt.Fprintf(out, "  Duplicate: %s\n", yesNo(job.Duplicate))
	if len(job.EpisodeGUIDs) > 0 {
		fmt.Fprintf(out, "  Episodes:  %s\n", strings.Join(job.EpisodeGUIDs, ", "))
	}
	if job.CorrelationID != "" {
		fmt.Fprintf(out, "  Request:   %s\n", job.CorrelationID)
	}
	fmt.Fprintf(out, "  Created:   %s\n", job.CreatedAt.Local().Format(time.DateTime))
	fmt.Fprintf(out, "  Updated:   %s\n", job.UpdatedAt.Local().Format(time.DateTime))
}

func stageLabel(job *jobs.Job) string {
	stage := string(job.Progress.Stage)
	if stage == "" {
		return "-"
	}
	if job.Status == jobs.StatusProcessing && job.Progress.Percent > 0 {
		return fmt.Sprintf("%s %.0f%%", stage, job.Progress.Percent)
	}
	return stage
}

func jobLabel(job *jobs.Job) string {
	if job.Title != "" {
		return job.Title
	}
	return job.Source
}

func parseStatuses(values []string) ([]jobs.Status, error) {
	out := make([]jobs.Status, 0, len(values))
	for _, raw := range values {
		status := jobs.Status(strings.ToLower(strings.TrimSpace(raw)))
		switch status {
		case jobs.StatusPending, jobs.StatusProcessing, jobs.StatusCompleted, jobs.StatusError:
			out = append(out, status)
		case "":
		default:
			return nil, errors.New("unknown job status " + strconv.Quote(raw))
		}
	}
	return out, nil
}
