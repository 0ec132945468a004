package daemon

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"yt2pod/internal/acquire"
	"yt2pod/internal/config"
	"yt2pod/internal/episode"
	"yt2pod/internal/fileutil"
	"yt2pod/internal/jobs"
	"yt2pod/internal/logging"
	"yt2pod/internal/services"
)

const (
	defaultInboxSettle = 2 * time.Second
	// rejectedDir holds inbox files whose job could not be created.
	rejectedDir = ".rejected"
)

// inboxWatcher turns files dropped into the inbox directory into upload
// jobs once they stop changing.
type inboxWatcher struct {
	dir        string
	stagingDir string
	extensions []string
	settle     time.Duration
	submitter  interface {
		Submit(ctx context.Context, req jobs.Request) (*jobs.Job, error)
	}
	logger *slog.Logger

	watcher *fsnotify.Watcher
	mu      sync.Mutex
	timers  map[string]*time.Timer
	ready   chan string
	done    chan struct{}
}

func newInboxWatcher(cfg *config.Config, d *Daemon, logger *slog.Logger) *inboxWatcher {
	return &inboxWatcher{
		dir:        cfg.Paths.InboxDir,
		stagingDir: filepath.Join(cfg.Paths.TempDir, "uploads"),
		extensions: cfg.Acquire.UploadExtensions,
		settle:     defaultInboxSettle,
		submitter:  d,
		logger:     logging.NewComponentLogger(logger, "inbox"),
		timers:     make(map[string]*time.Timer),
		ready:      make(chan string, 16),
	}
}

func (w *inboxWatcher) start(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "inbox", "start", "create inbox directory", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "inbox", "start", "create watcher", err)
	}
	if err := watcher.Add(w.dir); err != nil {
		_ = watcher.Close()
		return services.Wrap(services.ErrConfiguration, "inbox", "start", "watch "+w.dir, err)
	}
	w.watcher = watcher
	w.done = make(chan struct{})

	go w.loop(ctx)

	entries, err := os.ReadDir(w.dir)
	if err == nil {
		for _, entry := range entries {
			if entry.Type().IsRegular() {
				w.schedule(filepath.Join(w.dir, entry.Name()))
			}
		}
	}
	w.logger.Info("watching inbox", logging.String("dir", w.dir))
	return nil
}

func (w *inboxWatcher) stop() {
	if w.watcher == nil {
		return
	}
	_ = w.watcher.Close()
	<-w.done
	w.mu.Lock()
	for path, timer := range w.timers {
		timer.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()
	w.watcher = nil
}

func (w *inboxWatcher) loop(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				w.schedule(event.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("inbox watcher error", logging.Error(err))
		case path := <-w.ready:
			w.ingest(ctx, path)
		}
	}
}

// schedule (re)arms the settle timer for path; every new write restarts it.
func (w *inboxWatcher) schedule(path string) {
	if strings.HasPrefix(filepath.Base(path), ".") {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.timers[path]; ok {
		timer.Reset(w.settle)
		return
	}
	w.timers[path] = time.AfterFunc(w.settle, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		select {
		case w.ready <- path:
		case <-w.done:
		}
	})
}

func (w *inboxWatcher) ingest(ctx context.Context, path string) {
	logger := w.logger.With(logging.String("file", filepath.Base(path)))
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return
	}
	if err := acquire.ValidateUpload(path, w.extensions); err != nil {
		logging.WarnWithContext(logger, "ignoring inbox file", "inbox_file_rejected",
			logging.String("reason", services.Message(err)),
			logging.String(logging.FieldErrorHint, "drop audio or video files with a supported extension"),
			logging.String(logging.FieldImpact, "file left in the inbox"),
		)
		return
	}

	staged := filepath.Join(w.stagingDir, uuid.NewString()[:8]+"-"+acquire.SanitizeFilename(filepath.Base(path)))
	if err := fileutil.MoveFile(path, staged); err != nil {
		logging.ErrorWithContext(logger, "failed to stage inbox file", "inbox_stage_failed", logging.Error(err))
		return
	}
	job, err := w.submitter.Submit(ctx, jobs.Request{
		Kind:   jobs.KindUpload,
		Source: staged,
		Title:  episode.TitleFromFilename(path),
	})
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			logging.ErrorWithContext(logger, "inbox file rejected", "inbox_submit_failed", logging.Error(err))
		}
		rejected := filepath.Join(w.dir, rejectedDir, filepath.Base(path))
		if moveErr := fileutil.MoveFile(staged, rejected); moveErr != nil {
			_ = os.Remove(staged)
		}
		return
	}
	logger.Info("inbox file queued", logging.Int64(logging.FieldJobID, job.ID))
}
