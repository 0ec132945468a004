package transcode_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"yt2pod/internal/logging"
	"yt2pod/internal/media/transcode"
	"yt2pod/internal/segment"
	"yt2pod/internal/services"
	"yt2pod/internal/testsupport"
)

var _ segment.Cutter = (*transcode.FFmpeg)(nil)

func TestConvertArgs(t *testing.T) {
	tests := []struct {
		format  string
		bitrate string
		want    []string
	}{
		{"mp3", "192k", []string{"-acodec", "libmp3lame", "-b:a", "192k"}},
		{"mp3", "", []string{"-acodec", "libmp3lame", "-q:a", "2"}},
		{"m4a", "128k", []string{"-acodec", "aac", "-b:a", "128k", "-movflags", "+faststart"}},
	}
	for _, tc := range tests {
		args, err := transcode.ConvertArgs("in.webm", "out."+tc.format, tc.format, tc.bitrate)
		if err != nil {
			t.Fatalf("ConvertArgs(%s): %v", tc.format, err)
		}
		joined := strings.Join(args, " ")
		if !strings.Contains(joined, strings.Join(tc.want, " ")) {
			t.Fatalf("ConvertArgs(%s, %s) = %v, want codec args %v", tc.format, tc.bitrate, args, tc.want)
		}
		if !strings.Contains(joined, "-vn") || !strings.HasSuffix(joined, "-ar 44100 -ac 2 out."+tc.format) {
			t.Fatalf("missing audio-only settings in %v", args)
		}
	}
	if _, err := transcode.ConvertArgs("a", "b", "flac", ""); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for unsupported format, got %v", err)
	}
}

func TestCutArgsUseStreamCopy(t *testing.T) {
	got := transcode.CutArgs("in.m4a", "in_part2.m4a", 3600, 1800)
	want := []string{"-y", "-loglevel", "error", "-i", "in.m4a", "-ss", "3600", "-t", "1800", "-c", "copy", "-map_metadata", "0", "in_part2.m4a"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("CutArgs = %v", got)
	}
}

func TestConvertFailureRemovesPartialOutput(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "media", "ep.m4a")
	ff := transcode.New("ffmpeg", logging.NewNop()).WithRunner(func(_ context.Context, _ string, args ...string) ([]byte, error) {
		testsupport.WriteFile(t, args[len(args)-1], 10)
		return []byte("Invalid data found when processing input"), errors.New("exit status 1")
	})
	err := ff.Convert(context.Background(), filepath.Join(dir, "src.webm"), output, "m4a", "128k")
	if !errors.Is(err, services.ErrExternalTool) || !strings.Contains(err.Error(), "Invalid data") {
		t.Fatalf("expected external tool error with output, got %v", err)
	}
	if _, statErr := os.Stat(output); !os.IsNotExist(statErr) {
		t.Fatalf("partial output should be removed, stat err %v", statErr)
	}
}

func TestNeedsConversion(t *testing.T) {
	if transcode.NeedsConversion("/tmp/a.M4A", "m4a") {
		t.Fatal("matching extension should not need conversion")
	}
	if !transcode.NeedsConversion("/tmp/a.webm", "mp3") {
		t.Fatal("webm to mp3 needs conversion")
	}
}
