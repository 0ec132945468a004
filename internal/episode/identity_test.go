package episode_test

import (
	"os"
	"path/filepath"
	"testing"

	"yt2pod/internal/episode"
)

func intPtr(v int) *int { return &v }

func TestDeriveGUID(t *testing.T) {
	if got := episode.DeriveGUID("dQw4w9WgXcQ", nil); got != "dQw4w9WgXcQ" {
		t.Fatalf("expected base id, got %q", got)
	}
	if got := episode.DeriveGUID("dQw4w9WgXcQ", intPtr(2)); got != "dQw4w9WgXcQ_part2" {
		t.Fatalf("unexpected part guid %q", got)
	}
	seen := map[string]bool{episode.DeriveGUID("abc", nil): true}
	for k := 1; k <= 50; k++ {
		guid := episode.DeriveGUID("abc", intPtr(k))
		if seen[guid] {
			t.Fatalf("guid collision for part %d: %s", k, guid)
		}
		seen[guid] = true
	}
}

func TestContentIDIsStableAndShort(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.mp3")
	b := filepath.Join(dir, "renamed.mp3")
	c := filepath.Join(dir, "c.mp3")
	for path, body := range map[string]string{a: "same bytes", b: "same bytes", c: "other bytes"} {
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	idA, err := episode.ContentID(a)
	if err != nil {
		t.Fatalf("ContentID: %v", err)
	}
	idB, _ := episode.ContentID(b)
	idC, _ := episode.ContentID(c)
	if len(idA) != 16 {
		t.Fatalf("expected 16 hex chars, got %q", idA)
	}
	if idA != idB {
		t.Fatalf("identical bytes must collide: %s vs %s", idA, idB)
	}
	if idA == idC {
		t.Fatal("different bytes must not collide")
	}
	if _, err := episode.ContentID(filepath.Join(dir, "missing")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestPartTitleAndDescription(t *testing.T) {
	if got := episode.PartTitle("Talk", 1, 3); got != "Talk (Part 1/3)" {
		t.Fatalf("unexpected title %q", got)
	}
	if got := episode.PartDescription("About", 3, 3); got != "About\n\n(Part 3/3)" {
		t.Fatalf("unexpected description %q", got)
	}
}

func TestTitleFromFilename(t *testing.T) {
	cases := map[string]string{
		"/tmp/my_talk-2024.mp3": "My Talk 2024",
		"interview.final.m4a":   "Interview Final",
		"___.wav":               "Untitled Upload",
	}
	for input, want := range cases {
		if got := episode.TitleFromFilename(input); got != want {
			t.Fatalf("TitleFromFilename(%q) = %q, want %q", input, got, want)
		}
	}
}
