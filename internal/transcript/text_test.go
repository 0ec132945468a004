package transcript_test

import (
	"errors"
	"strings"
	"testing"

	"yt2pod/internal/services"
	"yt2pod/internal/transcript"
)

func TestReadExcerpt(t *testing.T) {
	dir := t.TempDir()
	long := strings.Repeat("é", 12)
	if err := transcript.WriteText(dir, "long", long); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	if err := transcript.WriteText(dir, "short", "brief"); err != nil {
		t.Fatalf("WriteText: %v", err)
	}

	tests := []struct {
		guid  string
		limit int
		want  string
	}{
		{"long", 5, strings.Repeat("é", 5) + "\n..."},
		{"long", 12, long},
		{"short", 0, "brief"},
	}
	for _, tc := range tests {
		got, err := transcript.ReadExcerpt(dir, tc.guid, tc.limit)
		if err != nil {
			t.Fatalf("ReadExcerpt(%s, %d): %v", tc.guid, tc.limit, err)
		}
		if got != tc.want {
			t.Fatalf("ReadExcerpt(%s, %d) = %q, want %q", tc.guid, tc.limit, got, tc.want)
		}
	}
}

func TestReadTextMissingAndInvalid(t *testing.T) {
	dir := t.TempDir()
	if _, err := transcript.ReadText(dir, "absent"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := transcript.WriteText(dir, "../escape", "x"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
