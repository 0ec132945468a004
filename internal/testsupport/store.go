package testsupport

import (
	"testing"

	"yt2pod/internal/config"
	"yt2pod/internal/database"
)

// MustOpenDatabase opens the state database for tests and registers cleanup.
func MustOpenDatabase(t testing.TB, cfg *config.Config) *database.DB {
	t.Helper()
	db, err := database.Open(cfg)
	if err != nil {
		t.Fatalf("database.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}
