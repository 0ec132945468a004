package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"yt2pod/internal/api"
	"yt2pod/internal/config"
	"yt2pod/internal/daemonctl"
	"yt2pod/internal/daemonrun"
	"yt2pod/internal/jobs"
)

type ingestFlags struct {
	title           string
	viaDaemon       bool
	watch           bool
	waitTranscripts bool
}

func (f *ingestFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.title, "title", "", "Episode title override")
	cmd.Flags().BoolVar(&f.viaDaemon, "daemon", false, "Queue the request on the running daemon instead of processing it here")
	cmd.Flags().BoolVar(&f.watch, "watch", false, "With --daemon, stream job progress until it finishes")
	cmd.Flags().BoolVar(&f.waitTranscripts, "wait-transcripts", false, "Run automatic transcription and wait for it before exiting")
}

func newAddCommand(ctx *commandContext) *cobra.Command {
	var flags ingestFlags
	cmd := &cobra.Command{
		Use:   "add <url>...",
		Short: "Ingest one or more YouTube videos",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.title != "" && len(args) > 1 {
				return errors.New("--title applies to a single url")
			}
			requests := make([]jobs.Request, 0, len(args))
			for _, raw := range args {
				requests = append(requests, jobs.Request{Kind: jobs.KindURL, Source: strings.TrimSpace(raw), Title: flags.title})
			}
			return ingest(cmd, ctx, flags, requests)
		},
	}
	flags.register(cmd)
	return cmd
}

func newUploadCommand(ctx *commandContext) *cobra.Command {
	var flags ingestFlags
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Ingest a local audio or video file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			absPath, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}
			info, err := os.Stat(absPath)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("file does not exist: %s", absPath)
				}
				return fmt.Errorf("inspect file: %w", err)
			}
			if info.IsDir() {
				return fmt.Errorf("%s is a directory", absPath)
			}
			return ingest(cmd, ctx, flags, []jobs.Request{{Kind: jobs.KindUpload, Source: absPath, Title: flags.title}})
		},
	}
	flags.register(cmd)
	return cmd
}

func ingest(cmd *cobra.Command, ctx *commandContext, flags ingestFlags, requests []jobs.Request) error {
	if flags.watch && !flags.viaDaemon {
		return errors.New("--watch requires --daemon")
	}
	if flags.viaDaemon {
		return ctx.withClient(func(client *daemonctl.Client) error {
			return submitToDaemon(cmd, client, flags.watch, requests)
		})
	}
	adjust := func(cfg *config.Config) {
		if disableAutoTranscribe(cfg, flags.waitTranscripts) {
			fmt.Fprintln(cmd.ErrOrStderr(), "Automatic transcription skipped; pass --wait-transcripts or run yt2pod transcript trigger <guid>")
		}
	}
	return ctx.withRuntimeConfig(cmd, adjust, func(cfg *config.Config, rt *daemonrun.Runtime) error {
		return runInProcess(cmd, rt, flags.waitTranscripts, requests)
	})
}

// disableAutoTranscribe turns off automatic transcription unless the caller
// waits for it. Workers still running when the runtime closes are cancelled.
func disableAutoTranscribe(cfg *config.Config, wait bool) bool {
	if wait || !cfg.Transcription.Enabled || !cfg.Transcription.AutoTrigger {
		return false
	}
	cfg.Transcription.AutoTrigger = false
	return true
}

// runInProcess validates every request before creating any job, then runs
// each job to completion.
func runInProcess(cmd *cobra.Command, rt *daemonrun.Runtime, waitTranscripts bool, requests []jobs.Request) error {
	runCtx := cmd.Context()
	if runCtx == nil {
		runCtx = context.Background()
	}
	validated := make([]jobs.Request, 0, len(requests))
	for _, req := range requests {
		next, err := rt.Orchestrator.Validate(req)
		if err != nil {
			return err
		}
		validated = append(validated, next)
	}

	out := cmd.OutOrStdout()
	failed := 0
	for _, req := range validated {
		job, err := rt.Tracker.Create(runCtx, req)
		if err != nil {
			return err
		}
		claimed, err := rt.Tracker.Claim(runCtx, job.ID)
		if err != nil {
			return err
		}
		if !claimed {
			return fmt.Errorf("job #%d was claimed by another process", job.ID)
		}
		if job, err = rt.Tracker.MustGet(runCtx, job.ID); err != nil {
			return err
		}

		events, stop := rt.Tracker.Watch(job.ID)
		printed := make(chan struct{})
		go func() {
			defer close(printed)
			printProgress(cmd.ErrOrStderr(), events)
		}()
		result, runErr := rt.Orchestrator.Run(runCtx, job)
		stop()
		<-printed

		if runErr != nil {
			failed++
			fmt.Fprintf(out, "Job #%d failed: %v\n", job.ID, runErr)
			continue
		}
		fmt.Fprintf(out, "Job #%d completed: %s\n", job.ID, describeResult(result.Added, result.GUIDs, result.Duplicate, result.PublishFailed))
	}

	if waitTranscripts {
		fmt.Fprintln(cmd.ErrOrStderr(), "Waiting for transcriptions to finish...")
		rt.Transcripts.Wait()
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d job(s) failed", failed, len(validated))
	}
	return nil
}

func submitToDaemon(cmd *cobra.Command, client *daemonctl.Client, watch bool, requests []jobs.Request) error {
	runCtx := cmd.Context()
	if runCtx == nil {
		runCtx = context.Background()
	}
	out := cmd.OutOrStdout()
	failed := 0
	for _, req := range requests {
		var (
			resp api.SubmitResponse
			err  error
		)
		switch req.Kind {
		case jobs.KindUpload:
			resp, err = client.Upload(runCtx, req.Source, req.Title)
		default:
			resp, err = client.Submit(runCtx, req.Source, req.Title)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Queued job #%d (%s)\n", resp.JobID, req.Source)
		if !watch {
			continue
		}
		var last api.Job
		err = client.Watch(runCtx, resp.JobID, func(job api.Job) {
			if job.Progress.Stage != last.Progress.Stage || job.Status != last.Status {
				fmt.Fprintf(cmd.ErrOrStderr(), "[job %d] %s %s\n", job.ID, job.Status, job.Progress.Stage)
			}
			last = job
		})
		if err != nil {
			return err
		}
		switch last.Status {
		case string(jobs.StatusError):
			failed++
			fmt.Fprintf(out, "Job #%d failed: %s\n", last.ID, last.Message)
		case string(jobs.StatusCompleted):
			fmt.Fprintf(out, "Job #%d completed: %s\n", last.ID, describeResult(nil, last.EpisodeGUIDs, last.Duplicate, last.Message == jobs.MessagePublishFailed))
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d job(s) failed", failed, len(requests))
	}
	return nil
}

func printProgress(w io.Writer, events <-chan jobs.Job) {
	var stage jobs.Stage
	for job := range events {
		if job.Progress.Stage == stage || job.Status.Terminal() {
			continue
		}
		stage = job.Progress.Stage
		label := job.Title
		if label == "" {
			label = job.Source
		}
		fmt.Fprintf(w, "[job %d] %s: %s\n", job.ID, stage, label)
	}
}

func describeResult(added, guids []string, duplicate, publishFailed bool) string {
	if duplicate {
		return fmt.Sprintf("%s (%s)", jobs.MessageDuplicate, strings.Join(guids, ", "))
	}
	count := len(added)
	if count == 0 {
		count = len(guids)
	}
	summary := fmt.Sprintf("added %d episode(s) (%s)", count, strings.Join(guids, ", "))
	if publishFailed {
		summary += "; " + jobs.MessagePublishFailed
	}
	return summary
}
