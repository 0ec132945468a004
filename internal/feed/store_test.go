package feed_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"yt2pod/internal/feed"
)

func newTestStore(t *testing.T, maxItems int) *feed.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rss.xml")
	return feed.NewStore(path, path+".lock", testChannel(), maxItems, nil)
}

func TestStoreUpdateCreatesFeed(t *testing.T) {
	store := newTestStore(t, 10)
	res, err := store.Update(context.Background(), func(f *feed.Feed) (int, error) {
		return f.Merge(sampleEpisode("abc", time.Now())), nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !res.Created || !res.Written || res.Added != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if _, ok := store.ExistingGUIDs()["abc"]; !ok {
		t.Fatal("expected abc in persisted feed")
	}
}

func TestStoreUpdateDuplicateSkipsWrite(t *testing.T) {
	store := newTestStore(t, 10)
	merge := func(f *feed.Feed) (int, error) {
		return f.Merge(sampleEpisode("abc", time.Now())), nil
	}
	if _, err := store.Update(context.Background(), merge); err != nil {
		t.Fatalf("Update: %v", err)
	}
	before, err := os.Stat(store.Path())
	if err != nil {
		t.Fatal(err)
	}
	res, err := store.Update(context.Background(), merge)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if res.Added != 0 || res.Written {
		t.Fatalf("expected duplicate no-op, got %+v", res)
	}
	after, _ := os.Stat(store.Path())
	if !after.ModTime().Equal(before.ModTime()) {
		t.Fatal("duplicate merge must not rewrite the document")
	}
}

func TestStoreUpdatePropagatesMergeError(t *testing.T) {
	store := newTestStore(t, 10)
	want := errors.New("boom")
	if _, err := store.Update(context.Background(), func(*feed.Feed) (int, error) { return 0, want }); !errors.Is(err, want) {
		t.Fatalf("expected merge error, got %v", err)
	}
	if _, err := os.Stat(store.Path()); !os.IsNotExist(err) {
		t.Fatal("failed merge must not create a document")
	}
}

func TestStoreConcurrentUpdatesLoseNothing(t *testing.T) {
	store := newTestStore(t, 0)
	const writers = 16
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.Update(context.Background(), func(f *feed.Feed) (int, error) {
				return f.Merge(sampleEpisode(fmt.Sprintf("g%02d", i), time.Now())), nil
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
	}
	if got := len(store.ExistingGUIDs()); got != writers {
		t.Fatalf("expected %d episodes, got %d", writers, got)
	}
}

func TestStoreUpdateTrims(t *testing.T) {
	store := newTestStore(t, 2)
	for _, guid := range []string{"a", "b", "c"} {
		if _, err := store.Update(context.Background(), func(f *feed.Feed) (int, error) {
			return f.Merge(sampleEpisode(guid, time.Now())), nil
		}); err != nil {
			t.Fatalf("Update: %v", err)
		}
	}
	snapshot := store.Snapshot()
	if len(snapshot.Episodes) != 2 || snapshot.Episodes[0].GUID != "b" {
		t.Fatalf("unexpected episodes %+v", snapshot.Episodes)
	}
}

func TestStoreRewriteRequiresExistingFeed(t *testing.T) {
	store := newTestStore(t, 10)
	if _, err := store.Rewrite(context.Background(), func(*feed.Feed) error { return nil }); err == nil {
		t.Fatal("expected error rewriting a missing feed")
	}
}

func TestStoreUpdateRemovesMediaOfTrimmedEpisodes(t *testing.T) {
	store := newTestStore(t, 2)
	mediaDir := t.TempDir()
	store.SetMediaDir(mediaDir)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, guid := range []string{"g0", "g1", "g2"} {
		if err := os.WriteFile(filepath.Join(mediaDir, guid+".m4a"), []byte("audio"), 0o644); err != nil {
			t.Fatal(err)
		}
		res, err := store.Update(context.Background(), func(f *feed.Feed) (int, error) {
			return f.Merge(sampleEpisode(guid, base.Add(time.Duration(i)*time.Hour))), nil
		})
		if err != nil {
			t.Fatalf("Update %s: %v", guid, err)
		}
		if guid != "g2" && len(res.RemovedMedia) != 0 {
			t.Fatalf("unexpected removal %v", res.RemovedMedia)
		}
		if guid == "g2" {
			want := filepath.Join(mediaDir, "g0.m4a")
			if res.Trimmed != 1 || len(res.RemovedMedia) != 1 || res.RemovedMedia[0] != want {
				t.Fatalf("unexpected trim result %+v", res)
			}
		}
	}

	if _, err := os.Stat(filepath.Join(mediaDir, "g0.m4a")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected trimmed media removed, stat err = %v", err)
	}
	for _, kept := range []string{"g1.m4a", "g2.m4a"} {
		if _, err := os.Stat(filepath.Join(mediaDir, kept)); err != nil {
			t.Fatalf("expected %s kept: %v", kept, err)
		}
	}
}

func TestStoreUpdateWithoutMediaDirKeepsFiles(t *testing.T) {
	store := newTestStore(t, 1)
	mediaDir := t.TempDir()
	media := filepath.Join(mediaDir, "g0.m4a")
	if err := os.WriteFile(media, []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	for _, guid := range []string{"g0", "g1"} {
		res, err := store.Update(context.Background(), func(f *feed.Feed) (int, error) {
			return f.Merge(sampleEpisode(guid, time.Now())), nil
		})
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
		if len(res.RemovedMedia) != 0 {
			t.Fatalf("unexpected removal %v", res.RemovedMedia)
		}
	}
	if _, err := os.Stat(media); err != nil {
		t.Fatalf("media must be kept without a media dir: %v", err)
	}
}
