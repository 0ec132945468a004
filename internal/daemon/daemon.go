package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"yt2pod/internal/api"
	"yt2pod/internal/config"
	"yt2pod/internal/feed"
	"yt2pod/internal/ingest"
	"yt2pod/internal/jobs"
	"yt2pod/internal/logging"
	"yt2pod/internal/services"
	"yt2pod/internal/transcript"
)

// Runner validates and executes ingestion jobs.
type Runner interface {
	Validate(req jobs.Request) (jobs.Request, error)
	Run(ctx context.Context, job *jobs.Job) (ingest.Result, error)
}

// Deps are the services the daemon coordinates. Transcripts is optional.
type Deps struct {
	Tracker     *jobs.Tracker
	Runner      Runner
	Feed        *feed.Store
	Transcripts *transcript.Tracker
}

const transcriptShutdownTimeout = 10 * time.Second

// Daemon coordinates the background processing services and enforces
// single-instance execution.
type Daemon struct {
	cfg    *config.Config
	deps   Deps
	logger *slog.Logger

	lockPath string
	lock     *flock.Flock

	pool  *pool
	inbox *inboxWatcher
	api   *api.Server

	running atomic.Bool
	mu      sync.Mutex
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool   `json:"running"`
	PID          int    `json:"pid"`
	Workers      int    `json:"workers"`
	Active       int    `json:"active"`
	Pending      int    `json:"pending"`
	DatabasePath string `json:"database_path"`
	LockFilePath string `json:"lock_file_path"`
	APIAddress   string `json:"api_address,omitempty"`
	InboxDir     string `json:"inbox_dir,omitempty"`
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, deps Deps, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || deps.Tracker == nil || deps.Runner == nil || deps.Feed == nil {
		return nil, errors.New("daemon requires config, job tracker, runner, and feed store")
	}
	logger = logging.NewComponentLogger(logger, "daemon")
	d := &Daemon{
		cfg:      cfg,
		deps:     deps,
		logger:   logger,
		lockPath: cfg.DaemonLockPath(),
		lock:     flock.New(cfg.DaemonLockPath()),
	}
	d.pool = newPool(deps.Tracker, deps.Runner, cfg.Workflow.MaxConcurrentJobs, time.Duration(cfg.Workflow.JobPollInterval)*time.Second, logger)
	if cfg.Paths.InboxDir != "" {
		d.inbox = newInboxWatcher(cfg, d, logger)
	}

	apiDeps := api.Deps{Submitter: d, Jobs: deps.Tracker, Feed: deps.Feed}
	if deps.Transcripts != nil {
		apiDeps.Transcripts = deps.Transcripts
	}
	d.api = api.NewServer(cfg, apiDeps, logger)
	return d, nil
}

// Start acquires the daemon lock, recovers interrupted work, and launches
// the worker pool, API server and inbox watcher.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return services.Wrap(services.ErrConfiguration, "daemon", "start", "another yt2pod daemon instance is already running", nil)
	}

	if _, err := d.deps.Tracker.RecoverInterrupted(ctx); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("recover interrupted jobs: %w", err)
	}
	if d.deps.Transcripts != nil {
		if _, err := d.deps.Transcripts.Resume(ctx); err != nil {
			logging.WarnWithContext(d.logger, "transcript resume failed", "transcript_resume_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the state database"),
				logging.String(logging.FieldImpact, "interrupted transcriptions stay in progress"),
			)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.pool.start(runCtx)

	if err := d.api.Start(runCtx); err != nil {
		d.shutdownLocked()
		return err
	}
	if d.inbox != nil {
		if err := d.inbox.start(runCtx); err != nil {
			d.shutdownLocked()
			return err
		}
	}

	d.running.Store(true)
	d.logger.Info("yt2pod daemon started",
		logging.String("lock", d.lockPath),
		logging.Int("workers", d.pool.size),
		logging.String("api", d.api.Addr()),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock. Jobs
// still running are left for RecoverInterrupted on the next start.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}
	d.shutdownLocked()
	d.running.Store(false)
	d.logger.Info("yt2pod daemon stopped")
}

func (d *Daemon) shutdownLocked() {
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.Stop()
	if d.inbox != nil {
		d.inbox.stop()
	}
	d.pool.stop()
	if d.deps.Transcripts != nil {
		ctx, cancel := context.WithTimeout(context.Background(), transcriptShutdownTimeout)
		if err := d.deps.Transcripts.Shutdown(ctx); err != nil {
			d.logger.Warn("transcript workers did not stop in time", logging.Error(err))
		}
		cancel()
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
}

// Submit validates req, persists it as a pending job and wakes a worker.
// A busy pool leaves the job pending; it is never rejected for load.
func (d *Daemon) Submit(ctx context.Context, req jobs.Request) (*jobs.Job, error) {
	normalized, err := d.deps.Runner.Validate(req)
	if err != nil {
		return nil, err
	}
	job, err := d.deps.Tracker.Create(ctx, normalized)
	if err != nil {
		return nil, err
	}
	d.pool.wake()
	return job, nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Workers:      d.pool.size,
		Active:       d.pool.activeCount(),
		DatabasePath: d.cfg.DatabasePath(),
		LockFilePath: d.lockPath,
		APIAddress:   d.api.Addr(),
	}
	if d.inbox != nil {
		status.InboxDir = d.cfg.Paths.InboxDir
	}
	if pending, err := d.deps.Tracker.List(ctx, 0, jobs.StatusPending); err == nil {
		status.Pending = len(pending)
	}
	return status
}
