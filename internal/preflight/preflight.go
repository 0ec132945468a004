package preflight

import (
	"context"
	"strings"

	"yt2pod/internal/config"
	"yt2pod/internal/services"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Optional bool
	Detail   string
}

// RunAll executes all applicable preflight checks for the given config.
// Remote checks are only run when the corresponding feature is enabled.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := CheckBinaries(Requirements(cfg))

	results = append(results,
		CheckDirectoryAccess("Podcast directory", cfg.Paths.PodcastDir),
		CheckDirectoryAccess("Media directory", cfg.Paths.MediaDir),
		CheckDirectoryAccess("Temp directory", cfg.Paths.TempDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
	)
	if cfg.Paths.InboxDir != "" {
		results = append(results, CheckDirectoryAccess("Inbox directory", cfg.Paths.InboxDir))
	}

	switch cfg.Publish.Mode {
	case config.PublishGitHub:
		results = append(results, CheckGitRepo(cfg.Publish.GitRepoDir))
	case config.PublishObjectStore:
		results = append(results, CheckObjectStore(ctx, cfg))
	}

	if cfg.Transcription.Enabled {
		results = append(results, CheckTranscriptionBackend(ctx, cfg.Transcription.BaseURL, cfg.Transcription.APIKey))
	}
	return results
}

// Failed returns a configuration error naming every failed required check,
// or nil when all required checks passed.
func Failed(results []Result) error {
	var failed []string
	for _, r := range results {
		if r.Passed || r.Optional {
			continue
		}
		failed = append(failed, r.Name+": "+r.Detail)
	}
	if len(failed) == 0 {
		return nil
	}
	return services.Wrap(services.ErrConfiguration, "preflight", "check", strings.Join(failed, "; "), nil)
}
