package segment_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"yt2pod/internal/segment"
	"yt2pod/internal/services"
)

type fakeCutter struct {
	failAt int
	calls  int
}

func (f *fakeCutter) Cut(_ context.Context, _, output string, _, _ int) error {
	f.calls++
	// Simulate a partially written output before failing.
	if err := os.WriteFile(output, []byte("audio"), 0o644); err != nil {
		return err
	}
	if f.calls == f.failAt {
		return errors.New("ffmpeg exited 1")
	}
	return nil
}

func writeInput(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "episode.m4a")
	if err := os.WriteFile(path, []byte("source"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSplitWritesNamedParts(t *testing.T) {
	input := writeInput(t)
	cutter := &fakeCutter{}
	parts, err := segment.NewSplitter(cutter, nil).Split(context.Background(), input, segment.Plan(90, 60))
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(parts))
	}
	dir := filepath.Dir(input)
	for i, want := range []string{"episode_part1.m4a", "episode_part2.m4a"} {
		if parts[i].Path != filepath.Join(dir, want) {
			t.Fatalf("part %d: unexpected path %s", i, parts[i].Path)
		}
		if _, err := os.Stat(parts[i].Path); err != nil {
			t.Fatalf("part %d missing: %v", i, err)
		}
	}
	if err := segment.Cleanup(parts); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
}

func TestSplitRollsBackOnFailure(t *testing.T) {
	input := writeInput(t)
	cutter := &fakeCutter{failAt: 3}
	_, err := segment.NewSplitter(cutter, nil).Split(context.Background(), input, segment.Plan(150, 60))
	if err == nil {
		t.Fatal("expected split error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool marker, got %v", err)
	}
	matches, _ := filepath.Glob(filepath.Join(filepath.Dir(input), "episode_part*"))
	if len(matches) != 0 {
		t.Fatalf("expected no part files after rollback, found %v", matches)
	}
	if _, err := os.Stat(input); err != nil {
		t.Fatalf("input must be preserved: %v", err)
	}
}

func TestSplitRequiresInput(t *testing.T) {
	_, err := segment.NewSplitter(&fakeCutter{}, nil).Split(context.Background(), filepath.Join(t.TempDir(), "missing.mp3"), segment.Plan(90, 60))
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPartPath(t *testing.T) {
	if got := segment.PartPath("/media/abc.mp3", 3); got != "/media/abc_part3.mp3" {
		t.Fatalf("unexpected part path %s", got)
	}
}
