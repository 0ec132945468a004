package episode_test

import (
	"testing"

	"yt2pod/internal/episode"
)

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		seconds int
		want    string
	}{
		{0, "00:00"},
		{59, "00:59"},
		{3599, "59:59"},
		{3600, "01:00:00"},
		{7500, "02:05:00"},
		{-5, "00:00"},
	}
	for _, tc := range cases {
		if got := episode.FormatDuration(tc.seconds); got != tc.want {
			t.Fatalf("FormatDuration(%d) = %q, want %q", tc.seconds, got, tc.want)
		}
		if tc.seconds >= 0 {
			if back, ok := episode.ParseDuration(tc.want); !ok || back != tc.seconds {
				t.Fatalf("ParseDuration(%q) = %d, %v", tc.want, back, ok)
			}
		}
	}
}

func TestParseDurationRejectsGarbage(t *testing.T) {
	for _, input := range []string{"", "ab:cd", "1:2:3:4", "-1"} {
		if _, ok := episode.ParseDuration(input); ok {
			t.Fatalf("expected %q to be rejected", input)
		}
	}
	if got, ok := episode.ParseDuration("125"); !ok || got != 125 {
		t.Fatalf("expected bare seconds, got %d %v", got, ok)
	}
}

func TestMimeType(t *testing.T) {
	cases := map[string]string{
		"m4a":  "audio/mp4",
		".mp3": "audio/mpeg",
		"MP3":  "audio/mpeg",
		"xyz":  "application/octet-stream",
	}
	for format, want := range cases {
		if got := episode.MimeType(format); got != want {
			t.Fatalf("MimeType(%q) = %q, want %q", format, got, want)
		}
	}
}
