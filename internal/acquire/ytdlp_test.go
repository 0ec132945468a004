package acquire_test

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"yt2pod/internal/acquire"
	"yt2pod/internal/jobs"
	"yt2pod/internal/logging"
	"yt2pod/internal/services"
	"yt2pod/internal/testsupport"
)

func TestMetadataMapsFields(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	var gotArgs []string
	client := acquire.NewYTDLP(cfg, logging.NewNop()).WithRunners(func(_ context.Context, _ string, args ...string) ([]byte, error) {
		gotArgs = args
		return []byte(`{
			"id": "dQw4w9WgXcQ",
			"title": " Long Talk ",
			"description": "About things",
			"duration": 7500.6,
			"upload_date": "20240315",
			"uploader": "Speaker",
			"thumbnail": "https://i.ytimg.com/vi/dQw4w9WgXcQ/maxresdefault.jpg",
			"webpage_url": "https://www.youtube.com/watch?v=dQw4w9WgXcQ"
		}`), nil
	}, nil)

	meta, err := client.Metadata(context.Background(), "https://www.youtube.com/watch?v=dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("Metadata: %v", err)
	}
	if !slices.Contains(gotArgs, "-J") || !slices.Contains(gotArgs, "--no-playlist") {
		t.Fatalf("unexpected args %v", gotArgs)
	}
	if meta.ID != "dQw4w9WgXcQ" || meta.Title != "Long Talk" || meta.DurationSeconds != 7500 || meta.Uploader != "Speaker" {
		t.Fatalf("unexpected metadata %+v", meta)
	}
	if !meta.UploadDate.Equal(time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("UploadDate = %v", meta.UploadDate)
	}
}

func TestMetadataFailureIsExternalToolError(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	client := acquire.NewYTDLP(cfg, logging.NewNop()).WithRunners(func(context.Context, string, ...string) ([]byte, error) {
		return nil, errors.New("ERROR: Video unavailable")
	}, nil)
	_, err := client.Metadata(context.Background(), "https://www.youtube.com/watch?v=dQw4w9WgXcQ")
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestDownloadStreamsProgressAndReturnsPath(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	dir := t.TempDir()
	final := filepath.Join(dir, "dQw4w9WgXcQ.webm")
	client := acquire.NewYTDLP(cfg, logging.NewNop()).WithRunners(nil, func(_ context.Context, _ string, args []string, onLine func(string)) error {
		if !slices.Contains(args, "--newline") {
			t.Errorf("expected --newline in %v", args)
		}
		onLine("[yt2pod]  12.5%|1.20MiB/s|00:40|1000|8000")
		onLine("[yt2pod] 100.0%|1.30MiB/s|00:00|8000|8000")
		onLine("noise that is ignored")
		testsupport.WriteFile(t, final, 32)
		onLine(final)
		return nil
	})

	events := make(chan jobs.ProgressEvent, 8)
	path, err := client.Download(context.Background(), "https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ", dir, events)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if path != final {
		t.Fatalf("path = %s", path)
	}
	close(events)
	var got []jobs.ProgressEvent
	for event := range events {
		got = append(got, event)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %+v", got)
	}
	if got[0].Percent != 12.5 || got[0].Speed != "1.20MiB/s" || got[0].ETA != "00:40" || got[0].Total != "8000" {
		t.Fatalf("unexpected first event %+v", got[0])
	}
	if got[2].Status != jobs.EventFinished || got[2].Percent != 100 {
		t.Fatalf("expected finished event last, got %+v", got[2])
	}
}

func TestDownloadNeverBlocksOnFullChannel(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	dir := t.TempDir()
	client := acquire.NewYTDLP(cfg, logging.NewNop()).WithRunners(nil, func(_ context.Context, _ string, _ []string, onLine func(string)) error {
		for i := 0; i < 100; i++ {
			onLine("[yt2pod] 50.0%|NA|NA|NA|NA")
		}
		testsupport.WriteFile(t, filepath.Join(dir, "abcdefghijk.m4a"), 8)
		return nil
	})
	events := make(chan jobs.ProgressEvent, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range events {
		}
	}()
	path, err := client.Download(context.Background(), "https://youtu.be/abcdefghijk", "abcdefghijk", dir, events)
	close(events)
	<-done
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if filepath.Base(path) != "abcdefghijk.m4a" {
		t.Fatalf("expected glob fallback to find file, got %s", path)
	}
}

func TestParseProgressLine(t *testing.T) {
	event, ok := acquire.ParseProgressLine("[yt2pod]   3.0%|N/A|Unknown|NA|NA")
	if !ok || event.Percent != 3 || event.Speed != "" || event.ETA != "" {
		t.Fatalf("unexpected parse %+v %v", event, ok)
	}
	if _, ok := acquire.ParseProgressLine("[download] 3.0% of 10MiB"); ok {
		t.Fatal("foreign lines must be ignored")
	}
}
