package transcript

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"yt2pod/internal/config"
	"yt2pod/internal/logging"
	"yt2pod/internal/notifications"
	"yt2pod/internal/services"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultMaxWait      = 3 * time.Hour
	maxPollFailures     = 3

	messageInterruptedBeforeSubmit = "interrupted before submission"
)

// Options tune the worker loop.
type Options struct {
	TranscriptsDir string
	PollInterval   time.Duration
	MaxWait        time.Duration
	ExcerptRunes   int
}

// OptionsFromConfig maps the transcription section onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		TranscriptsDir: cfg.Paths.TranscriptsDir,
		PollInterval:   time.Duration(cfg.Transcription.PollIntervalSeconds) * time.Second,
		MaxWait:        time.Duration(cfg.Transcription.MaxWaitMinutes) * time.Minute,
		ExcerptRunes:   cfg.Transcription.ExcerptChars,
	}
}

// Tracker owns the per-episode transcription state machine
// none -> in_progress -> done|error, with error -> none on Reset.
type Tracker struct {
	store    Store
	backend  Backend
	notifier notifications.Service
	logger   *slog.Logger
	opts     Options

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTracker wires a store and backend. A nil backend makes Trigger fail
// with a configuration error while Status and Reset keep working.
func NewTracker(store Store, backend Backend, opts Options, notifier notifications.Service, logger *slog.Logger) *Tracker {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = defaultMaxWait
	}
	if opts.ExcerptRunes <= 0 {
		opts.ExcerptRunes = DefaultExcerptRunes
	}
	if notifier == nil {
		notifier = notifications.Noop()
	}
	base, cancel := context.WithCancel(context.Background())
	return &Tracker{
		store:    store,
		backend:  backend,
		notifier: notifier,
		logger:   logging.NewComponentLogger(logger, "transcript"),
		opts:     opts,
		base:     base,
		cancel:   cancel,
	}
}

// Status returns the record for guid; absent GUIDs report StatusNone.
func (t *Tracker) Status(ctx context.Context, guid string) (Record, error) {
	return t.store.Get(ctx, guid)
}

// List returns every known record.
func (t *Tracker) List(ctx context.Context) ([]Record, error) {
	return t.store.List(ctx)
}

// Text returns the stored transcript for guid.
func (t *Tracker) Text(guid string) (string, error) {
	return ReadText(t.opts.TranscriptsDir, guid)
}

// Excerpt returns the configured prefix of the stored transcript.
func (t *Tracker) Excerpt(guid string) (string, error) {
	return ReadExcerpt(t.opts.TranscriptsDir, guid, t.opts.ExcerptRunes)
}

// Trigger starts transcription for guid when no record exists yet. It
// reports false without side effects when a record is already present,
// even when no backend is configured. The worker outlives ctx and stops
// only on Shutdown.
func (t *Tracker) Trigger(ctx context.Context, guid, audioURL, localMediaDir string) (bool, error) {
	if err := validGUID(guid); err != nil {
		return false, err
	}
	current, err := t.store.Get(ctx, guid)
	if err != nil {
		return false, err
	}
	if current.Status != StatusNone {
		return false, nil
	}
	if t.backend == nil {
		return false, services.Wrap(services.ErrConfiguration, "transcript", "trigger", "transcription backend not configured", nil)
	}
	if strings.TrimSpace(audioURL) == "" {
		return false, services.Wrap(services.ErrValidation, "transcript", "trigger", "audio url required", nil)
	}
	ok, err := t.store.CompareAndSetStatus(ctx, guid, StatusNone, Record{GUID: guid, Status: StatusInProgress})
	if err != nil || !ok {
		return false, err
	}
	workerID := uuid.NewString()
	logging.WithContext(services.WithGUID(ctx, guid), t.logger).Info("transcription started",
		logging.String("worker_id", workerID),
		logging.String("audio_url", audioURL),
	)
	t.spawn(guid, workerID, func(ctx context.Context, logger *slog.Logger) {
		t.runFromStart(ctx, logger, guid, audioURL, localMediaDir)
	})
	return true, nil
}

// Reset moves a record back to none so it can be triggered again. Errored
// records qualify, as do in_progress records that never received an
// external job id.
func (t *Tracker) Reset(ctx context.Context, guid string) (bool, error) {
	current, err := t.store.Get(ctx, guid)
	if err != nil {
		return false, err
	}
	switch {
	case current.Status == StatusError:
	case current.Status == StatusInProgress && current.ExternalJobID == "":
	default:
		return false, nil
	}
	return t.store.CompareAndSetStatus(ctx, guid, current.Status, Record{GUID: guid, Status: StatusNone})
}

// Resume reattaches to remote jobs left in_progress by a previous process.
// Records that never reached submission are failed. It returns the number
// of resumed workers. Without a backend every record is left untouched.
func (t *Tracker) Resume(ctx context.Context) (int, error) {
	if t.backend == nil {
		return 0, nil
	}
	records, err := t.store.List(ctx)
	if err != nil {
		return 0, err
	}
	resumed := 0
	for _, rec := range records {
		if rec.Status != StatusInProgress {
			continue
		}
		if rec.ExternalJobID == "" {
			if _, err := t.store.CompareAndSetStatus(ctx, rec.GUID, StatusInProgress, Record{
				GUID:   rec.GUID,
				Status: StatusError,
				Error:  messageInterruptedBeforeSubmit,
			}); err != nil {
				return resumed, err
			}
			logging.WarnWithContext(t.logger, "transcription interrupted before submission", "transcript_interrupted",
				logging.String(logging.FieldGUID, rec.GUID),
				logging.String(logging.FieldErrorHint, "reset the transcript and trigger it again"),
				logging.String(logging.FieldImpact, "episode has no transcript"),
			)
			continue
		}
		guid, externalID := rec.GUID, rec.ExternalJobID
		t.spawn(guid, uuid.NewString(), func(ctx context.Context, logger *slog.Logger) {
			t.pollUntilDone(ctx, logger, guid, externalID)
		})
		resumed++
	}
	if resumed > 0 {
		t.logger.Info("resumed transcriptions", logging.Int("count", resumed))
	}
	return resumed, nil
}

// Wait blocks until every running worker has returned.
func (t *Tracker) Wait() {
	t.wg.Wait()
}

// Shutdown cancels running workers and waits for them or for ctx.
// Records already submitted stay in_progress and are picked up by Resume;
// records interrupted before submission return to none.
func (t *Tracker) Shutdown(ctx context.Context) error {
	t.cancel()
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Tracker) spawn(guid, workerID string, fn func(context.Context, *slog.Logger)) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ctx := services.WithGUID(t.base, guid)
		logger := logging.WithContext(ctx, t.logger).With(logging.String("worker_id", workerID))
		defer func() {
			if r := recover(); r != nil {
				t.fail(context.WithoutCancel(ctx), logger, guid, fmt.Sprintf("worker panic: %v", r))
			}
		}()
		fn(ctx, logger)
	}()
}

func (t *Tracker) runFromStart(ctx context.Context, logger *slog.Logger, guid, audioURL, localMediaDir string) {
	source := audioURL
	if local := localMediaPath(localMediaDir, audioURL); local != "" {
		uploaded, err := t.backend.Upload(ctx, local)
		if err != nil {
			if ctx.Err() != nil {
				t.release(ctx, logger, guid)
				return
			}
			logging.WarnWithContext(logger, "audio upload failed; using public url", "transcript_upload_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check transcription api key and network"),
				logging.String(logging.FieldImpact, "backend fetches the public enclosure instead"),
			)
		} else {
			source = uploaded
		}
	}

	externalID, err := t.backend.Submit(ctx, source)
	if err != nil {
		if ctx.Err() != nil {
			t.release(ctx, logger, guid)
			return
		}
		t.fail(ctx, logger, guid, "submit failed: "+services.Message(err))
		return
	}
	ok, err := t.store.CompareAndSetStatus(ctx, guid, StatusInProgress, Record{
		GUID:          guid,
		Status:        StatusInProgress,
		ExternalJobID: externalID,
	})
	if err != nil || !ok {
		logger.Warn("transcript record changed during submission", logging.Error(err))
		return
	}
	logger.Info("transcription submitted", logging.String("external_job_id", externalID))
	t.pollUntilDone(ctx, logger, guid, externalID)
}

func (t *Tracker) pollUntilDone(ctx context.Context, logger *slog.Logger, guid, externalID string) {
	waitCtx, cancel := context.WithTimeout(ctx, t.opts.MaxWait)
	defer cancel()
	ticker := time.NewTicker(t.opts.PollInterval)
	defer ticker.Stop()

	failures := 0
	for {
		result, err := t.backend.Poll(waitCtx, externalID)
		switch {
		case err != nil:
			if waitCtx.Err() != nil {
				break
			}
			failures++
			logger.Warn("transcription poll failed", logging.Error(err), logging.Int("attempt", failures))
			if failures >= maxPollFailures {
				t.fail(ctx, logger, guid, "poll failed: "+services.Message(err))
				return
			}
		case result.Status == RemoteCompleted:
			t.finish(ctx, logger, guid, result.Text)
			return
		case result.Status == RemoteError:
			msg := strings.TrimSpace(result.Error)
			if msg == "" {
				msg = "backend reported an error"
			}
			t.fail(ctx, logger, guid, msg)
			return
		case result.Status == RemoteQueued || result.Status == RemoteProcessing:
			failures = 0
		default:
			t.fail(ctx, logger, guid, fmt.Sprintf("unexpected backend status %q", result.Status))
			return
		}

		select {
		case <-ticker.C:
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				logger.Info("transcription worker stopped; will resume on restart")
				return
			}
			t.fail(ctx, logger, guid, fmt.Sprintf("timed out after %s", t.opts.MaxWait))
			return
		}
	}
}

func (t *Tracker) finish(ctx context.Context, logger *slog.Logger, guid, text string) {
	if err := WriteText(t.opts.TranscriptsDir, guid, text); err != nil {
		t.fail(ctx, logger, guid, "write transcript: "+err.Error())
		return
	}
	ok, err := t.store.CompareAndSetStatus(ctx, guid, StatusInProgress, Record{GUID: guid, Status: StatusDone})
	if err != nil || !ok {
		logger.Warn("transcript finished but record changed", logging.Error(err))
		return
	}
	logger.Info("transcription completed", logging.Int("chars", len([]rune(text))))
	t.notify(ctx, logger, notifications.EventTranscriptCompleted, notifications.Payload{"guid": guid})
}

// release returns a record interrupted before submission to none.
func (t *Tracker) release(ctx context.Context, logger *slog.Logger, guid string) {
	ok, err := t.store.CompareAndSetStatus(context.WithoutCancel(ctx), guid, StatusInProgress, Record{GUID: guid, Status: StatusNone})
	if err != nil || !ok {
		logger.Warn("interrupted transcript not released", logging.Error(err))
		return
	}
	logger.Info("transcription stopped before submission; trigger it again to retry")
}

func (t *Tracker) fail(ctx context.Context, logger *slog.Logger, guid, message string) {
	ctx = context.WithoutCancel(ctx)
	current, err := t.store.Get(ctx, guid)
	if err != nil {
		logger.Error("load transcript record", logging.Error(err))
		return
	}
	ok, err := t.store.CompareAndSetStatus(ctx, guid, StatusInProgress, Record{
		GUID:          guid,
		Status:        StatusError,
		ExternalJobID: current.ExternalJobID,
		Error:         message,
	})
	if err != nil || !ok {
		logger.Warn("transcript failure not recorded", logging.Error(err), logging.String("reason", message))
		return
	}
	logging.ErrorWithContext(logger, "transcription failed", "transcript_failed",
		logging.String("reason", message),
		logging.String(logging.FieldErrorHint, "reset the transcript to retry"),
	)
	t.notify(ctx, logger, notifications.EventTranscriptFailed, notifications.Payload{"guid": guid, "error": message})
}

func (t *Tracker) notify(ctx context.Context, logger *slog.Logger, event notifications.Event, payload notifications.Payload) {
	if err := t.notifier.Publish(context.WithoutCancel(ctx), event, payload); err != nil {
		logger.Debug("notification failed", logging.Error(err))
	}
}

// localMediaPath maps an enclosure URL to the file of the same name in dir,
// returning "" when the file is not present locally.
func localMediaPath(dir, audioURL string) string {
	if strings.TrimSpace(dir) == "" {
		return ""
	}
	name := audioURL
	if parsed, err := url.Parse(audioURL); err == nil && parsed.Path != "" {
		name = parsed.Path
	}
	base := path.Base(name)
	if base == "." || base == "/" || base == "" {
		return ""
	}
	candidate := filepath.Join(dir, base)
	info, err := os.Stat(candidate)
	if err != nil || info.IsDir() {
		return ""
	}
	return candidate
}
