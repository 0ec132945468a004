package database_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"yt2pod/internal/database"
)

func TestOpenPathCreatesSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "yt2pod.db")
	db, err := database.OpenPath(path)
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if db.Path() != path {
		t.Fatalf("unexpected path %q", db.Path())
	}
	for _, table := range []string{"jobs", "transcripts", "schema_version"} {
		var count int
		if err := db.QueryRow(context.Background(),
			"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count); err != nil {
			t.Fatalf("query %s: %v", table, err)
		}
		if count != 1 {
			t.Fatalf("expected table %s to exist", table)
		}
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "yt2pod.db")
	db, err := database.OpenPath(path)
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	now := database.FormatTime(time.Now())
	if _, err := db.Exec(context.Background(),
		"INSERT INTO transcripts (guid, status, updated_at) VALUES (?, ?, ?)", "abc", "done", now); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := database.OpenPath(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = reopened.Close() })
	var status string
	if err := reopened.QueryRow(context.Background(), "SELECT status FROM transcripts WHERE guid = ?", "abc").Scan(&status); err != nil {
		t.Fatalf("select: %v", err)
	}
	if status != "done" {
		t.Fatalf("expected persisted status, got %q", status)
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "yt2pod.db")
	db, err := database.OpenPath(path)
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	if _, err := db.Exec(context.Background(), "UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("update version: %v", err)
	}
	_ = db.Close()

	if _, err := database.OpenPath(path); !errors.Is(err, database.ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
}

func TestRetryOnBusyStopsOnOtherErrors(t *testing.T) {
	calls := 0
	want := errors.New("boom")
	err := database.RetryOnBusy(context.Background(), func() error {
		calls++
		return want
	})
	if !errors.Is(err, want) || calls != 1 {
		t.Fatalf("expected single attempt with original error, got %v after %d calls", err, calls)
	}
}

func TestRetryOnBusyRetriesLockedErrors(t *testing.T) {
	calls := 0
	err := database.RetryOnBusy(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("expected success on third attempt, got %v after %d calls", err, calls)
	}
}

func TestTimeHelpers(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 5, time.UTC)
	if got := database.ParseTime(sql.NullString{String: database.FormatTime(ts), Valid: true}); !got.Equal(ts) {
		t.Fatalf("round trip mismatch: %v", got)
	}
	if !database.ParseTime(sql.NullString{}).IsZero() {
		t.Fatal("expected zero time for NULL")
	}
	if database.NullableString("  ") != nil {
		t.Fatal("expected nil for blank string")
	}
}
