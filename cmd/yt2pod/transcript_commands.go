package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"yt2pod/internal/api"
	"yt2pod/internal/config"
	"yt2pod/internal/daemonctl"
	"yt2pod/internal/daemonrun"
	"yt2pod/internal/episode"
	"yt2pod/internal/services"
	"yt2pod/internal/transcript"
)

func newTranscriptCommand(ctx *commandContext) *cobra.Command {
	transcriptCmd := &cobra.Command{
		Use:   "transcript",
		Short: "Manage episode transcriptions",
	}
	transcriptCmd.AddCommand(newTranscriptStatusCommand(ctx))
	transcriptCmd.AddCommand(newTranscriptTriggerCommand(ctx))
	transcriptCmd.AddCommand(newTranscriptResetCommand(ctx))
	transcriptCmd.AddCommand(newTranscriptShowCommand(ctx))
	return transcriptCmd
}

func newTranscriptStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status [guid]",
		Short: "Show transcription status for one or all episodes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, func(_ *config.Config, rt *daemonrun.Runtime) error {
				var records []transcript.Record
				if len(args) == 1 {
					rec, err := rt.Transcripts.Status(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					rec.GUID = args[0]
					records = append(records, rec)
				} else {
					list, err := rt.Transcripts.List(cmd.Context())
					if err != nil {
						return err
					}
					records = list
					sort.SliceStable(records, func(i, j int) bool { return records[i].UpdatedAt.After(records[j].UpdatedAt) })
				}
				if asJSON {
					out := make([]api.Transcript, 0, len(records))
					for _, rec := range records {
						out = append(out, api.FromRecord(rec))
					}
					return writeJSON(cmd, out)
				}
				if len(records) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No transcriptions")
					return nil
				}
				rows := make([][]string, 0, len(records))
				for _, rec := range records {
					updated := "-"
					if !rec.UpdatedAt.IsZero() {
						updated = rec.UpdatedAt.Local().Format(time.DateTime)
					}
					rows = append(rows, []string{rec.GUID, string(rec.Status), rec.Error, updated})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"GUID", "Status", "Error", "Updated"}, rows, nil))
				fmt.Fprintln(cmd.OutOrStdout())
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newTranscriptTriggerCommand(ctx *commandContext) *cobra.Command {
	var viaDaemon bool
	cmd := &cobra.Command{
		Use:   "trigger <guid>",
		Short: "Start transcription of a published episode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			guid := strings.TrimSpace(args[0])
			out := cmd.OutOrStdout()
			if viaDaemon {
				return ctx.withClient(func(client *daemonctl.Client) error {
					resp, err := client.TriggerTranscript(cmd.Context(), guid)
					if err != nil {
						return err
					}
					if resp.Started {
						fmt.Fprintf(out, "Transcription of %s started on the daemon\n", guid)
					} else {
						fmt.Fprintf(out, "Transcription of %s already recorded; reset it first to retry\n", guid)
					}
					return nil
				})
			}
			return ctx.withRuntime(cmd, func(cfg *config.Config, rt *daemonrun.Runtime) error {
				current, err := rt.Transcripts.Status(cmd.Context(), guid)
				if err != nil {
					return err
				}
				if current.Status != transcript.StatusNone {
					fmt.Fprintf(out, "Transcription of %s already %s; reset it first to retry\n", guid, current.Status)
					return nil
				}
				ep, ok := findEpisode(rt.Feed.Snapshot().Episodes, guid)
				if !ok {
					return services.Wrap(services.ErrNotFound, "transcript", "trigger", "episode not in feed: "+guid, nil)
				}
				started, err := rt.Transcripts.Trigger(cmd.Context(), guid, ep.AudioURL, cfg.Paths.MediaDir)
				if err != nil {
					return err
				}
				if !started {
					rec, _ := rt.Transcripts.Status(cmd.Context(), guid)
					fmt.Fprintf(out, "Transcription of %s already %s; reset it first to retry\n", guid, rec.Status)
					return nil
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Transcribing %s...\n", guid)
				rt.Transcripts.Wait()
				rec, err := rt.Transcripts.Status(cmd.Context(), guid)
				if err != nil {
					return err
				}
				switch rec.Status {
				case transcript.StatusDone:
					fmt.Fprintf(out, "Transcription of %s done\n", guid)
				case transcript.StatusError:
					return fmt.Errorf("transcription of %s failed: %s", guid, rec.Error)
				default:
					fmt.Fprintf(out, "Transcription of %s interrupted; the daemon resumes it on start\n", guid)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&viaDaemon, "daemon", false, "Ask the running daemon to transcribe instead of waiting here")
	return cmd
}

func newTranscriptResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <guid>",
		Short: "Clear a failed or unsubmitted transcription so it can be triggered again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			guid := strings.TrimSpace(args[0])
			return ctx.withRuntime(cmd, func(_ *config.Config, rt *daemonrun.Runtime) error {
				reset, err := rt.Transcripts.Reset(cmd.Context(), guid)
				if err != nil {
					return err
				}
				if !reset {
					rec, _ := rt.Transcripts.Status(cmd.Context(), guid)
					return fmt.Errorf("transcript %s is %s; only failed or unsubmitted transcriptions can be reset", guid, rec.Status)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Transcript %s reset\n", guid)
				return nil
			})
		},
	}
}

func newTranscriptShowCommand(ctx *commandContext) *cobra.Command {
	var excerpt bool
	cmd := &cobra.Command{
		Use:   "show <guid>",
		Short: "Print a finished transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			guid := strings.TrimSpace(args[0])
			return ctx.withRuntime(cmd, func(_ *config.Config, rt *daemonrun.Runtime) error {
				read := rt.Transcripts.Text
				if excerpt {
					read = rt.Transcripts.Excerpt
				}
				text, err := read(guid)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), text)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&excerpt, "excerpt", false, "Only print the configured excerpt")
	return cmd
}

func findEpisode(episodes []episode.Episode, guid string) (episode.Episode, bool) {
	for _, ep := range episodes {
		if ep.GUID == guid {
			return ep, true
		}
	}
	return episode.Episode{}, false
}
