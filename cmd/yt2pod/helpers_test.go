package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"yt2pod/internal/config"
	"yt2pod/internal/daemonrun"
	"yt2pod/internal/episode"
	"yt2pod/internal/feed"
	"yt2pod/internal/logging"
	"yt2pod/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	homeDir    string
}

func setupCLITestEnv(t *testing.T, mutate ...func(*config.Config)) *cliTestEnv {
	t.Helper()

	homeDir := filepath.Join(t.TempDir(), "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)

	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	for _, fn := range mutate {
		fn(cfg)
	}

	configPath := filepath.Join(homeDir, ".config", "yt2pod", "config.toml")
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return &cliTestEnv{cfg: cfg, configPath: configPath, homeDir: homeDir}
}

// withRuntime seeds state through the same services the CLI uses.
func (e *cliTestEnv) withRuntime(t *testing.T, fn func(*daemonrun.Runtime)) {
	t.Helper()
	rt, err := daemonrun.Build(e.cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer func() { _ = rt.Close(context.Background()) }()
	fn(rt)
}

func (e *cliTestEnv) seedFeed(t *testing.T, guids ...string) {
	t.Helper()
	e.withRuntime(t, func(rt *daemonrun.Runtime) {
		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		_, err := rt.Feed.Update(context.Background(), func(f *feed.Feed) (int, error) {
			added := 0
			for i, guid := range guids {
				added += f.Merge(episode.Episode{
					GUID:              guid,
					Title:             "Episode " + guid,
					SourceLink:        "https://www.youtube.com/watch?v=" + guid,
					AudioURL:          "https://old-cdn.example.com/media/" + guid + ".m4a",
					AudioByteSize:     1024,
					AudioMimeType:     "audio/mp4",
					PublishedAt:       base.Add(time.Duration(i) * time.Hour),
					DurationFormatted: "10:00",
				})
			}
			return added, nil
		})
		if err != nil {
			t.Fatalf("seed feed: %v", err)
		}
	})
}

func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{}
	if env != nil {
		flags = append(flags, "--config", env.configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
