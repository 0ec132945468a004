package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"yt2pod/internal/api"
	"yt2pod/internal/config"
	"yt2pod/internal/daemonrun"
	"yt2pod/internal/feed"
	"yt2pod/internal/transcript"
)

func newFeedCommand(ctx *commandContext) *cobra.Command {
	feedCmd := &cobra.Command{
		Use:   "feed",
		Short: "Inspect and maintain the podcast feed",
	}
	feedCmd.AddCommand(newFeedListCommand(ctx))
	feedCmd.AddCommand(newFeedRegenerateCommand(ctx))
	return feedCmd
}

func newFeedListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List feed episodes, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, func(_ *config.Config, rt *daemonrun.Runtime) error {
				episodes := rt.Feed.Snapshot().Newest()
				statuses := map[string]transcript.Status{}
				if records, err := rt.Transcripts.List(cmd.Context()); err == nil {
					for _, rec := range records {
						statuses[rec.GUID] = rec.Status
					}
				}
				statusOf := func(guid string) transcript.Status {
					if s, ok := statuses[guid]; ok {
						return s
					}
					return transcript.StatusNone
				}

				if asJSON {
					out := make([]api.Episode, 0, len(episodes))
					for _, ep := range episodes {
						out = append(out, api.FromEpisode(ep, statusOf(ep.GUID)))
					}
					return writeJSON(cmd, out)
				}
				if len(episodes) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Feed has no episodes")
					return nil
				}
				rows := make([][]string, 0, len(episodes))
				for _, ep := range episodes {
					rows = append(rows, []string{
						ep.GUID,
						ep.Title,
						ep.DurationFormatted,
						ep.PublishedAt.Local().Format(time.DateOnly),
						string(statusOf(ep.GUID)),
					})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"GUID", "Title", "Duration", "Published", "Transcript"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight},
				))
				fmt.Fprintf(cmd.OutOrStdout(), "\n%d episode(s) in %s\n", len(episodes), rt.Feed.Path())
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newFeedRegenerateCommand(ctx *commandContext) *cobra.Command {
	var publishAfter bool
	cmd := &cobra.Command{
		Use:   "regenerate",
		Short: "Rewrite the feed with current channel settings and media URLs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, func(cfg *config.Config, rt *daemonrun.Runtime) error {
				var report feed.RebaseReport
				f, err := rt.Feed.Rewrite(cmd.Context(), func(f *feed.Feed) error {
					report = feed.Rebase(f, cfg.Podcast.MediaBaseURL, cfg.Paths.MediaDir)
					return nil
				})
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Rewrote %s: %d episode(s), %d updated\n", rt.Feed.Path(), len(f.Episodes), report.Updated)
				if len(report.Missing) > 0 {
					fmt.Fprintf(out, "Media missing for: %s\n", strings.Join(report.Missing, ", "))
				}
				if !publishAfter {
					return nil
				}
				if !cfg.PublishEnabled() {
					fmt.Fprintln(out, "Publishing is disabled (publish.mode = manual)")
					return nil
				}
				if err := rt.Publisher.Publish(cmd.Context(), "", []string{rt.Feed.Path()}); err != nil {
					return fmt.Errorf("publish feed: %w", err)
				}
				fmt.Fprintln(out, "Published feed")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&publishAfter, "publish", false, "Publish the rewritten feed")
	return cmd
}
