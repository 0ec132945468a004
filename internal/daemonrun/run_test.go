package daemonrun_test

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"yt2pod/internal/daemonrun"
	"yt2pod/internal/jobs"
	"yt2pod/internal/logging"
	"yt2pod/internal/services"
	"yt2pod/internal/testsupport"
	"yt2pod/internal/transcript"
)

func TestBuildWiresRuntime(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	rt, err := daemonrun.Build(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close(context.Background()) })

	if rt.Tracker == nil || rt.Feed == nil || rt.Orchestrator == nil || rt.Transcripts == nil || rt.Publisher == nil {
		t.Fatalf("runtime has missing services: %+v", rt)
	}

	ctx := context.Background()
	req, err := rt.Orchestrator.Validate(jobs.Request{Kind: jobs.KindURL, Source: "https://youtu.be/dQw4w9WgXcQ"})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	job, err := rt.Tracker.Create(ctx, req)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := rt.Tracker.Get(ctx, job.ID)
	if err != nil || got == nil || got.Status != jobs.StatusPending {
		t.Fatalf("expected persisted pending job, got %+v %v", got, err)
	}
}

func TestBuildWithoutTranscriptionRejectsTrigger(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	rt, err := daemonrun.Build(cfg, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close(context.Background()) })

	_, err = rt.Transcripts.Trigger(context.Background(), "abc", "https://podcast.example.com/media/abc.m4a", "")
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	rec, err := rt.Transcripts.Status(context.Background(), "abc")
	if err != nil || rec.Status != transcript.StatusNone {
		t.Fatalf("expected no record, got %+v %v", rec, err)
	}
}

func TestBuildRequiresConfig(t *testing.T) {
	if _, err := daemonrun.Build(nil, nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestRunFailsPreflight(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Acquire.YTDLPBinary = "yt2pod-missing-ytdlp"

	err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{LogLevel: "error"})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected preflight configuration error, got %v", err)
	}
	if !strings.Contains(err.Error(), "yt-dlp") {
		t.Fatalf("expected yt-dlp in error, got %v", err)
	}
}

func TestRunWritesPIDFileUntilCancelled(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- daemonrun.Run(ctx, cfg, daemonrun.Options{LogLevel: "error"})
	}()

	pidPath := daemonrun.PIDPath(cfg)
	testsupport.WaitFor(t, 5*time.Second, func() bool {
		data, err := os.ReadFile(pidPath)
		return err == nil && strings.TrimSpace(string(data)) == strconv.Itoa(os.Getpid())
	})

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if _, err := os.Stat(pidPath); !os.IsNotExist(err) {
		t.Fatalf("expected pid file removed, stat err=%v", err)
	}
}
