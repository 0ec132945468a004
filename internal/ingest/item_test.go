package ingest_test

import (
	"strings"
	"testing"

	"yt2pod/internal/ingest"
)

func TestPlannedGUIDs(t *testing.T) {
	tests := []struct {
		total int
		max   int
		want  string
	}{
		{total: 45 * 60, max: 3600, want: "base"},
		{total: 3600, max: 3600, want: "base"},
		{total: 125 * 60, max: 3600, want: "base,base_part2,base_part3"},
		{total: 90, max: 60, want: "base,base_part2"},
	}
	for _, tc := range tests {
		got := strings.Join(ingest.PlannedGUIDs("base", tc.total, tc.max), ",")
		if got != tc.want {
			t.Fatalf("PlannedGUIDs(%d, %d) = %s, want %s", tc.total, tc.max, got, tc.want)
		}
	}
}

func TestItemTitles(t *testing.T) {
	single := ingest.SingleItem("/m/a.m4a", 10)
	if single.Title("Talk") != "Talk" || single.GUID("a") != "a" {
		t.Fatalf("single item should not be decorated")
	}
	two := 2
	part := ingest.Item{PartIndex: &two, TotalParts: 3}
	if part.Title("Talk") != "Talk (Part 2/3)" || part.GUID("a") != "a_part2" {
		t.Fatalf("unexpected part decoration %q %q", part.Title("Talk"), part.GUID("a"))
	}
	if part.Description("About") != "About\n\n(Part 2/3)" {
		t.Fatalf("unexpected description %q", part.Description("About"))
	}
}
