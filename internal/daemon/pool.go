package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"yt2pod/internal/jobs"
	"yt2pod/internal/logging"
	"yt2pod/internal/services"
)

const (
	defaultWorkers      = 2
	defaultPollInterval = 5 * time.Second
	errorRetryInterval  = 5 * time.Second
)

// pool runs at most size jobs at once. Workers claim the oldest pending job;
// a wake signal cuts the poll wait short after a submission.
type pool struct {
	tracker      *jobs.Tracker
	runner       Runner
	size         int
	pollInterval time.Duration
	logger       *slog.Logger

	wakeCh chan struct{}
	active atomic.Int32
	wg     sync.WaitGroup
}

func newPool(tracker *jobs.Tracker, runner Runner, size int, pollInterval time.Duration, logger *slog.Logger) *pool {
	if size <= 0 {
		size = defaultWorkers
	}
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &pool{
		tracker:      tracker,
		runner:       runner,
		size:         size,
		pollInterval: pollInterval,
		logger:       logger,
		wakeCh:       make(chan struct{}, size),
	}
}

func (p *pool) start(ctx context.Context) {
	p.wg.Add(p.size)
	for i := 0; i < p.size; i++ {
		workerID := uuid.NewString()[:8]
		go p.work(ctx, p.logger.With(logging.String("worker_id", workerID)))
	}
}

func (p *pool) stop() {
	p.wg.Wait()
}

func (p *pool) wake() {
	select {
	case p.wakeCh <- struct{}{}:
	default:
	}
}

func (p *pool) activeCount() int {
	return int(p.active.Load())
}

func (p *pool) work(ctx context.Context, logger *slog.Logger) {
	defer p.wg.Done()
	for {
		if ctx.Err() != nil {
			return
		}
		job, err := p.tracker.NextPending(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("failed to fetch next job",
				logging.Error(err),
				logging.String(logging.FieldEventType, "job_fetch_failed"),
				logging.String(logging.FieldErrorHint, "check state database access"),
			)
			p.sleep(ctx, errorRetryInterval)
			continue
		}
		if job == nil {
			p.sleep(ctx, p.pollInterval)
			continue
		}
		claimed, err := p.tracker.Claim(ctx, job.ID)
		if err != nil || !claimed {
			continue
		}
		p.run(ctx, logger, job)
	}
}

func (p *pool) run(ctx context.Context, logger *slog.Logger, job *jobs.Job) {
	p.active.Add(1)
	defer p.active.Add(-1)
	logger = logging.WithContext(services.WithJobID(ctx, job.ID), logger)
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(logger, "job worker panicked", "job_panic", logging.Any("panic", r))
			_ = p.tracker.Fail(context.WithoutCancel(ctx), job.ID, fmt.Sprintf("internal error: %v", r))
		}
	}()
	start := time.Now()
	result, err := p.runner.Run(ctx, job)
	if err != nil {
		logger.Info("job finished with error",
			logging.Duration("elapsed", time.Since(start)),
			logging.String("error", services.Message(err)),
		)
		return
	}
	logger.Info("job finished",
		logging.Duration("elapsed", time.Since(start)),
		logging.Int("added", len(result.Added)),
		logging.Bool("duplicate", result.Duplicate),
	)
}

func (p *pool) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-p.wakeCh:
	case <-timer.C:
	}
}
