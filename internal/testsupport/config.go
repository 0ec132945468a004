package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"yt2pod/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	podcastDir := filepath.Join(base, "podcast")
	cfgVal.Paths.PodcastDir = podcastDir
	cfgVal.Paths.MediaDir = filepath.Join(podcastDir, "media")
	cfgVal.Paths.RSSFile = filepath.Join(podcastDir, "rss.xml")
	cfgVal.Paths.TempDir = filepath.Join(base, "tmp")
	cfgVal.Paths.TranscriptsDir = filepath.Join(podcastDir, "transcripts")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Podcast.SiteURL = "https://podcast.example.com"
	cfgVal.Podcast.MediaBaseURL = "https://podcast.example.com/media"
	cfgVal.Transcription.PollIntervalSeconds = 1

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithMaxItems sets the feed cap.
func WithMaxItems(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Feed.MaxItems = n
	}
}

// WithMaxSegmentSeconds sets the split threshold.
func WithMaxSegmentSeconds(seconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Segment.MaxSegmentSeconds = seconds
	}
}

// WithTranscription enables the transcription backend at baseURL.
func WithTranscription(baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Transcription.Enabled = true
		b.cfg.Transcription.APIKey = "test-key"
		b.cfg.Transcription.BaseURL = baseURL
	}
}

// WithInbox enables the watch folder under the test base directory.
func WithInbox() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.InboxDir = filepath.Join(b.baseDir, "inbox")
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the default external binaries
// are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"yt-dlp", "ffmpeg", "ffprobe"}
		}
		StubBinaries(b.t, filepath.Join(b.baseDir, "bin"), names...)
	}
}

// StubBinaries writes exit-0 scripts named names into dir and prepends dir
// to PATH for the duration of the test.
func StubBinaries(t testing.TB, dir string, names ...string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir bin dir: %v", err)
	}
	script := []byte("#!/bin/sh\nexit 0\n")
	for _, name := range names {
		target := filepath.Join(dir, name)
		if err := os.WriteFile(target, script, 0o755); err != nil {
			t.Fatalf("write stub %s: %v", name, err)
		}
	}

	oldPath := os.Getenv("PATH")
	if err := os.Setenv("PATH", dir+string(os.PathListSeparator)+oldPath); err != nil {
		t.Fatalf("set PATH: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Setenv("PATH", oldPath)
	})
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
