package ffprobe_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"yt2pod/internal/media/ffprobe"
	"yt2pod/internal/services"
)

func TestInspectDecodesReport(t *testing.T) {
	var gotArgs []string
	run := func(_ context.Context, name string, args ...string) ([]byte, error) {
		gotArgs = append([]string{name}, args...)
		return []byte(`{
			"streams": [{"index": 0, "codec_type": "audio", "codec_name": "aac", "channels": 2}],
			"format": {"duration": "7512.48", "size": "120000000", "format_name": "mov,mp4,m4a"}
		}`), nil
	}
	result, err := ffprobe.InspectWith(context.Background(), run, "", "/media/ep.m4a")
	if err != nil {
		t.Fatalf("InspectWith: %v", err)
	}
	if gotArgs[0] != "ffprobe" || gotArgs[len(gotArgs)-1] != "/media/ep.m4a" {
		t.Fatalf("unexpected command %v", gotArgs)
	}
	if !result.HasAudio() {
		t.Fatal("expected audio stream")
	}
	if result.WholeSeconds() != 7512 {
		t.Fatalf("WholeSeconds = %d", result.WholeSeconds())
	}
	if result.SizeBytes() != 120000000 {
		t.Fatalf("SizeBytes = %d", result.SizeBytes())
	}
}

func TestDurationFallsBackToAudioStream(t *testing.T) {
	result := ffprobe.Result{
		Streams: []ffprobe.Stream{
			{CodecType: "video", Duration: "900"},
			{CodecType: "audio", Duration: "61.5"},
		},
		Format: ffprobe.Format{Duration: "N/A", Size: "-1"},
	}
	if result.DurationSeconds() != 61.5 {
		t.Fatalf("DurationSeconds = %v", result.DurationSeconds())
	}
	if result.SizeBytes() != 0 {
		t.Fatalf("SizeBytes = %d", result.SizeBytes())
	}
}

func TestInspectClassifiesFailures(t *testing.T) {
	failing := func(context.Context, string, ...string) ([]byte, error) {
		return nil, errors.New("exit status 1: no such file")
	}
	_, err := ffprobe.InspectWith(context.Background(), failing, "ffprobe", "/missing.m4a")
	if !errors.Is(err, services.ErrExternalTool) || !strings.Contains(err.Error(), "no such file") {
		t.Fatalf("expected external tool error, got %v", err)
	}

	garbage := func(context.Context, string, ...string) ([]byte, error) { return []byte("not json"), nil }
	if _, err := ffprobe.InspectWith(context.Background(), garbage, "ffprobe", "/a.m4a"); !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected parse failure, got %v", err)
	}
	if _, err := ffprobe.InspectWith(context.Background(), garbage, "ffprobe", " "); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
