package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"yt2pod/internal/config"
	"yt2pod/internal/episode"
	"yt2pod/internal/logging"
	"yt2pod/internal/services"
)

const lockRetryDelay = 50 * time.Millisecond

// MergeFunc mutates the loaded feed and returns the number of episodes added.
type MergeFunc func(f *Feed) (int, error)

// UpdateResult summarises one load-merge-persist cycle.
type UpdateResult struct {
	Added   int
	Trimmed int
	Created bool
	Written bool
	GUIDs   map[string]struct{}
	// RemovedMedia lists media files deleted for trimmed episodes.
	RemovedMedia []string
}

// Store serialises every mutation of the feed document. A process mutex
// orders goroutines and a file lock orders processes (CLI and daemon).
type Store struct {
	path     string
	channel  Channel
	maxItems int
	mediaDir string
	mu       sync.Mutex
	lock     *flock.Flock
	logger   *slog.Logger
	now      func() time.Time
}

// NewStore constructs a store for the document at path.
func NewStore(path, lockPath string, channel Channel, maxItems int, logger *slog.Logger) *Store {
	return &Store{
		path:     path,
		channel:  channel,
		maxItems: maxItems,
		lock:     flock.New(lockPath),
		logger:   logging.NewComponentLogger(logger, "feed"),
		now:      time.Now,
	}
}

// NewStoreFromConfig wires a store to the configured RSS file and channel.
func NewStoreFromConfig(cfg *config.Config, logger *slog.Logger) *Store {
	s := NewStore(cfg.Paths.RSSFile, cfg.FeedLockPath(), ChannelFromConfig(cfg), cfg.Feed.MaxItems, logger)
	s.SetMediaDir(cfg.Paths.MediaDir)
	return s
}

// SetMediaDir enables deletion of media files belonging to trimmed episodes.
func (s *Store) SetMediaDir(dir string) { s.mediaDir = dir }

// ChannelFromConfig maps podcast settings onto channel metadata.
func ChannelFromConfig(cfg *config.Config) Channel {
	p := cfg.Podcast
	return Channel{
		Title:        p.Title,
		Description:  p.Description,
		Author:       p.Author,
		OwnerEmail:   p.OwnerEmail,
		Language:     p.Language,
		Category:     p.Category,
		ImageURL:     p.ImageURL,
		Explicit:     p.Explicit,
		SiteURL:      p.SiteURL,
		MediaBaseURL: p.MediaBaseURL,
	}
}

// Path returns the document location.
func (s *Store) Path() string { return s.path }

// Channel returns the configured channel metadata.
func (s *Store) Channel() Channel { return s.channel }

// ExistingGUIDs reads the GUID set without taking the lock; persisted writes
// are atomic renames so readers always see a complete document.
func (s *Store) ExistingGUIDs() map[string]struct{} {
	return ExistingGUIDs(s.path)
}

// Snapshot loads the current document, or an empty feed when none exists.
func (s *Store) Snapshot() *Feed {
	if f, ok := Load(s.path, s.logger); ok {
		return f
	}
	return CreateEmpty(s.channel)
}

// Update runs load-or-create, fn, and persist under the feed lock. Nothing is
// written when fn adds no episodes.
func (s *Store) Update(ctx context.Context, fn MergeFunc) (UpdateResult, error) {
	var result UpdateResult
	unlock, err := s.acquire(ctx)
	if err != nil {
		return result, err
	}
	defer unlock()

	f, ok := Load(s.path, s.logger)
	if !ok {
		f = CreateEmpty(s.channel)
		result.Created = true
	}
	f.Channel = s.channel

	added, err := fn(f)
	if err != nil {
		return result, err
	}
	result.Added = added
	if added == 0 {
		result.GUIDs = f.GUIDs()
		return result, nil
	}

	trimmed := f.TrimOldest(s.maxItems)
	result.Trimmed = len(trimmed)
	f.LastBuildDate = s.now().UTC().Truncate(time.Second)
	if err := Persist(f, s.path, s.maxItems); err != nil {
		return result, services.Wrap(services.ErrTransient, "feed-update", "persist", s.path, err)
	}
	result.Written = true
	result.GUIDs = f.GUIDs()
	result.RemovedMedia = s.removeMedia(f, trimmed)

	attrs := []logging.Attr{
		logging.String("path", s.path),
		logging.Int("added", added),
		logging.Int("episodes", len(f.Episodes)),
	}
	if result.Trimmed > 0 {
		attrs = append(attrs, logging.Int("trimmed", result.Trimmed))
	}
	s.logger.Info("feed updated", logging.Args(attrs...)...)
	return result, nil
}

// Rewrite loads the document, applies fn, and always persists. Used for
// maintenance such as rebasing enclosure URLs.
func (s *Store) Rewrite(ctx context.Context, fn func(f *Feed) error) (*Feed, error) {
	unlock, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	f, ok := Load(s.path, s.logger)
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "feed", "rewrite", "no readable feed at "+s.path, nil)
	}
	f.Channel = s.channel
	if err := fn(f); err != nil {
		return nil, err
	}
	trimmed := f.TrimOldest(s.maxItems)
	f.LastBuildDate = s.now().UTC().Truncate(time.Second)
	if err := Persist(f, s.path, s.maxItems); err != nil {
		return nil, services.Wrap(services.ErrTransient, "feed", "persist", s.path, err)
	}
	s.removeMedia(f, trimmed)
	return f, nil
}

// removeMedia deletes the media files of trimmed episodes that no remaining
// episode still references. Runs only after the document is persisted.
func (s *Store) removeMedia(f *Feed, trimmed []episode.Episode) []string {
	if s.mediaDir == "" || len(trimmed) == 0 {
		return nil
	}
	inUse := make(map[string]struct{}, len(f.Episodes))
	for _, ep := range f.Episodes {
		inUse[mediaName(ep.AudioURL)] = struct{}{}
	}
	var removed []string
	for _, ep := range trimmed {
		name := mediaName(ep.AudioURL)
		if name == "" {
			continue
		}
		if _, ok := inUse[name]; ok {
			continue
		}
		target := filepath.Join(s.mediaDir, name)
		if err := os.Remove(target); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				logging.WarnWithContext(s.logger, "trimmed media not removed", "feed_trim_media",
					logging.String(logging.FieldGUID, ep.GUID),
					logging.String("path", target),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "delete the file manually"),
					logging.String(logging.FieldImpact, "orphaned media stays in the media directory"),
				)
			}
			continue
		}
		removed = append(removed, target)
		s.logger.Info("trimmed media removed", logging.String(logging.FieldGUID, ep.GUID), logging.String("path", target))
	}
	return removed
}

func mediaName(audioURL string) string {
	name := path.Base(strings.TrimSpace(audioURL))
	if name == "" || name == "." || name == "/" {
		return ""
	}
	return name
}

func (s *Store) acquire(ctx context.Context) (func(), error) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	locked, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil || !locked {
		s.mu.Unlock()
		if err == nil {
			err = ctx.Err()
		}
		return nil, services.Wrap(services.ErrTransient, "feed-update", "lock", fmt.Sprintf("acquire %s", s.lock.Path()), err)
	}
	return func() {
		if unlockErr := s.lock.Unlock(); unlockErr != nil {
			s.logger.Warn("feed lock release failed", logging.Error(unlockErr))
		}
		s.mu.Unlock()
	}, nil
}
