package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLogsShowsFilteredDaemonEntries(t *testing.T) {
	env := setupCLITestEnv(t)
	lines := []string{
		`{"time":"2026-03-01T10:00:00Z","level":"INFO","msg":"job claimed","component":"daemon","job_id":1}`,
		`{"time":"2026-03-01T10:00:01Z","level":"INFO","msg":"downloaded","component":"ingest","job_id":2}`,
		`{"time":"2026-03-01T10:00:02Z","level":"ERROR","msg":"transcode failed","component":"ingest","job_id":1}`,
	}
	path := filepath.Join(env.cfg.Paths.LogDir, "yt2podd.log")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	out, _, err := runCLI(t, env, "logs", "--job", "1")
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	requireContains(t, out, "job claimed")
	requireContains(t, out, "transcode failed")
	if strings.Contains(out, "downloaded") {
		t.Fatalf("expected job filter to drop other jobs, got %q", out)
	}

	out, _, err = runCLI(t, env, "logs", "--level", "error", "--raw")
	if err != nil {
		t.Fatalf("logs --level: %v", err)
	}
	if strings.TrimSpace(out) != lines[2] {
		t.Fatalf("unexpected raw output %q", out)
	}
}

func TestLogsEmptyAndInvalidLevel(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, env, "logs")
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	requireContains(t, out, "No log entries")

	if _, _, err := runCLI(t, env, "logs", "--level", "loud"); err == nil {
		t.Fatal("expected invalid level to fail")
	}
}
