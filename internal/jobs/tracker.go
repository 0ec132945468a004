package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"yt2pod/internal/logging"
	"yt2pod/internal/services"
)

const (
	progressBuffer      = 32
	progressMinStep     = 1.0
	progressMinInterval = 500 * time.Millisecond
	watchBuffer         = 1
)

// Tracker records job lifecycles and fans snapshots out to watchers.
type Tracker struct {
	store  Store
	logger *slog.Logger

	mu       sync.Mutex
	watchers map[int64]map[uint64]chan Job
	nextID   uint64
}

// NewTracker wraps a job store.
func NewTracker(store Store, logger *slog.Logger) *Tracker {
	return &Tracker{
		store:    store,
		logger:   logging.NewComponentLogger(logger, "jobs"),
		watchers: make(map[int64]map[uint64]chan Job),
	}
}

// Create persists a pending job for req.
func (t *Tracker) Create(ctx context.Context, req Request) (*Job, error) {
	correlationID, _ := services.RequestIDFromContext(ctx)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	job, err := t.store.Create(ctx, req, correlationID)
	if err != nil {
		return nil, err
	}
	t.logger.Info("job created",
		logging.Int64(logging.FieldJobID, job.ID),
		logging.String("kind", string(job.Kind)),
		logging.String("source", job.Source),
		logging.String(logging.FieldCorrelationID, correlationID),
	)
	t.publish(ctx, job.ID)
	return job, nil
}

// Get returns the job or nil when it does not exist.
func (t *Tracker) Get(ctx context.Context, id int64) (*Job, error) {
	return t.store.Get(ctx, id)
}

// MustGet returns the job or a not-found error.
func (t *Tracker) MustGet(ctx context.Context, id int64) (*Job, error) {
	job, err := t.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, services.Wrap(services.ErrNotFound, "jobs", "get", fmt.Sprintf("job %d", id), nil)
	}
	return job, nil
}

// List returns recent jobs, newest first.
func (t *Tracker) List(ctx context.Context, limit int, statuses ...Status) ([]*Job, error) {
	return t.store.List(ctx, limit, statuses...)
}

// NextPending returns the oldest job waiting for a worker.
func (t *Tracker) NextPending(ctx context.Context) (*Job, error) {
	return t.store.NextPending(ctx)
}

// Claim moves a pending job to processing for exactly one worker.
func (t *Tracker) Claim(ctx context.Context, id int64) (bool, error) {
	ok, err := t.store.Claim(ctx, id)
	if ok {
		t.publish(ctx, id)
	}
	return ok, err
}

// SetTitle records the resolved source title.
func (t *Tracker) SetTitle(ctx context.Context, id int64, title string) error {
	if err := t.store.SetTitle(ctx, id, title); err != nil {
		return err
	}
	t.publish(ctx, id)
	return nil
}

// Advance records that the job entered stage with the given percent.
func (t *Tracker) Advance(ctx context.Context, id int64, stage Stage, percent float64, message string) error {
	if err := t.store.UpdateProgress(ctx, id, Progress{Stage: stage, Percent: percent}, message); err != nil {
		return err
	}
	logging.WithContext(services.WithStage(services.WithJobID(ctx, id), string(stage)), t.logger).
		Debug("job advanced", logging.Float64("percent", percent))
	t.publish(ctx, id)
	return nil
}

// Complete marks the job completed with the GUIDs it produced.
func (t *Tracker) Complete(ctx context.Context, id int64, guids []string, duplicate bool, message string) error {
	if err := t.store.Complete(ctx, id, guids, duplicate, message); err != nil {
		return err
	}
	t.logger.Info("job completed",
		logging.Int64(logging.FieldJobID, id),
		logging.Strings("guids", guids),
		logging.Bool("duplicate", duplicate),
		logging.String("message", message),
	)
	t.publish(ctx, id)
	return nil
}

// Fail marks the job errored. Failure is terminal; a retry is a new job.
func (t *Tracker) Fail(ctx context.Context, id int64, message string) error {
	if err := t.store.Fail(ctx, id, message); err != nil {
		return err
	}
	logging.ErrorWithContext(t.logger, "job failed", "job_failed",
		logging.Int64(logging.FieldJobID, id),
		logging.String("message", message),
		logging.String(logging.FieldErrorHint, "inspect the job message; resubmit to retry"),
	)
	t.publish(ctx, id)
	return nil
}

// RecoverInterrupted fails jobs a previous process left active.
func (t *Tracker) RecoverInterrupted(ctx context.Context) (int64, error) {
	n, err := t.store.FailActive(ctx, MessageInterruptedRestart)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logging.WarnWithContext(t.logger, "failed jobs interrupted by restart", "jobs_recovered",
			logging.Int64("count", n),
			logging.String(logging.FieldErrorHint, "resubmit the affected sources"),
			logging.String(logging.FieldImpact, "interrupted jobs will not resume"),
		)
	}
	return n, nil
}

// Progress returns a bounded channel for collaborator progress events about
// job id during stage, plus a func that closes the channel and waits for the
// consumer to drain it. Senders never touch tracker state directly.
func (t *Tracker) Progress(ctx context.Context, id int64, stage Stage) (chan<- ProgressEvent, func()) {
	events := make(chan ProgressEvent, progressBuffer)
	done := make(chan struct{})
	ctx = context.WithoutCancel(ctx)

	go func() {
		defer close(done)
		var (
			lastPercent = -progressMinStep
			lastWrite   time.Time
		)
		for ev := range events {
			progress := Progress{Stage: stage, Percent: ev.Percent, Speed: ev.Speed, ETA: ev.ETA}
			message := ""
			switch ev.Status {
			case EventFinished:
				progress.Percent = 100
				progress.Speed, progress.ETA = "", ""
				message = "transfer finished"
			case EventConverting:
				progress.Stage = StageConverting
			default:
				if ev.Percent-lastPercent < progressMinStep && time.Since(lastWrite) < progressMinInterval {
					continue
				}
			}
			if err := t.store.UpdateProgress(ctx, id, progress, message); err != nil {
				t.logger.Debug("progress update dropped", logging.Int64(logging.FieldJobID, id), logging.Error(err))
				continue
			}
			lastPercent = progress.Percent
			lastWrite = time.Now()
			t.publish(ctx, id)
		}
	}()

	var once sync.Once
	return events, func() {
		once.Do(func() {
			close(events)
			<-done
		})
	}
}

// Watch subscribes to snapshots of job id. The returned func unsubscribes and
// closes the channel. Slow watchers only ever see the latest snapshot.
func (t *Tracker) Watch(id int64) (<-chan Job, func()) {
	ch := make(chan Job, watchBuffer)
	t.mu.Lock()
	t.nextID++
	key := t.nextID
	if t.watchers[id] == nil {
		t.watchers[id] = make(map[uint64]chan Job)
	}
	t.watchers[id][key] = ch
	t.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.watchers[id], key)
			if len(t.watchers[id]) == 0 {
				delete(t.watchers, id)
			}
			t.mu.Unlock()
			close(ch)
		})
	}
}

func (t *Tracker) publish(ctx context.Context, id int64) {
	t.mu.Lock()
	subscribers := len(t.watchers[id])
	t.mu.Unlock()
	if subscribers == 0 {
		return
	}
	job, err := t.store.Get(ctx, id)
	if err != nil || job == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, ch := range t.watchers[id] {
		select {
		case ch <- *job:
		default:
			// Replace the stale snapshot with the latest one.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- *job:
			default:
			}
		}
	}
}
