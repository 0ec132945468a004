package daemon_test

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"yt2pod/internal/config"
	"yt2pod/internal/daemon"
	"yt2pod/internal/feed"
	"yt2pod/internal/ingest"
	"yt2pod/internal/jobs"
	"yt2pod/internal/logging"
	"yt2pod/internal/services"
	"yt2pod/internal/testsupport"
	"yt2pod/internal/transcript"
)

// fakeRunner completes every job, optionally blocking until released.
type fakeRunner struct {
	tracker *jobs.Tracker
	gate    chan struct{}

	mu  sync.Mutex
	ran []jobs.Job
}

func (f *fakeRunner) Validate(req jobs.Request) (jobs.Request, error) {
	if req.Source == "bad" {
		return req, services.Wrap(services.ErrValidation, "starting", "validate", "bad source", nil)
	}
	return req, nil
}

func (f *fakeRunner) Run(ctx context.Context, job *jobs.Job) (ingest.Result, error) {
	f.mu.Lock()
	f.ran = append(f.ran, *job)
	f.mu.Unlock()
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return ingest.Result{}, ctx.Err()
		}
	}
	if err := f.tracker.Complete(ctx, job.ID, []string{"guid"}, false, "Added 1 episode(s)"); err != nil {
		return ingest.Result{}, err
	}
	return ingest.Result{GUIDs: []string{"guid"}, Added: []string{"guid"}}, nil
}

func (f *fakeRunner) runs() []jobs.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]jobs.Job(nil), f.ran...)
}

type fixture struct {
	cfg     *config.Config
	tracker *jobs.Tracker
	runner  *fakeRunner
	daemon  *daemon.Daemon
}

func newFixture(t *testing.T, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	cfg.Workflow.MaxConcurrentJobs = 2
	cfg.Workflow.JobPollInterval = 1
	tracker := jobs.NewTracker(jobs.NewSQLStore(testsupport.MustOpenDatabase(t, cfg)), logging.NewNop())
	runner := &fakeRunner{tracker: tracker}
	return &fixture{
		cfg:     cfg,
		tracker: tracker,
		runner:  runner,
		daemon:  newDaemon(t, cfg, tracker, runner),
	}
}

func newDaemon(t *testing.T, cfg *config.Config, tracker *jobs.Tracker, runner daemon.Runner) *daemon.Daemon {
	t.Helper()
	d, err := daemon.New(cfg, daemon.Deps{
		Tracker:     tracker,
		Runner:      runner,
		Feed:        feed.NewStoreFromConfig(cfg, logging.NewNop()),
		Transcripts: transcript.NewTracker(transcript.NewMemoryStore(), nil, transcript.OptionsFromConfig(cfg), nil, logging.NewNop()),
	}, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Stop)
	return d
}

func (fx *fixture) job(t *testing.T, id int64) *jobs.Job {
	t.Helper()
	job, err := fx.tracker.MustGet(context.Background(), id)
	if err != nil {
		t.Fatalf("MustGet(%d): %v", id, err)
	}
	return job
}

func TestNewRequiresDependencies(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, err := daemon.New(cfg, daemon.Deps{}, logging.NewNop()); err == nil {
		t.Fatal("expected error for missing dependencies")
	}
}

func TestDaemonStartStop(t *testing.T) {
	fx := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := fx.daemon.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	status := fx.daemon.Status(ctx)
	if !status.Running || status.Workers != 2 || status.APIAddress == "" {
		t.Fatalf("unexpected status %+v", status)
	}

	// Second start should fail
	if err := fx.daemon.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	fx.daemon.Stop()
	if fx.daemon.Status(ctx).Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestSecondInstanceIsRejected(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	if err := fx.daemon.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	other := newDaemon(t, fx.cfg, fx.tracker, fx.runner)
	err := other.Start(ctx)
	if err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected lock conflict, got %v", err)
	}

	fx.daemon.Stop()
	if err := other.Start(ctx); err != nil {
		t.Fatalf("Start after release failed: %v", err)
	}
}

func TestStartFailsInterruptedJobs(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	job, err := fx.tracker.Create(ctx, jobs.Request{Kind: jobs.KindURL, Source: "https://www.youtube.com/watch?v=dQw4w9WgXcQ"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if ok, err := fx.tracker.Claim(ctx, job.ID); err != nil || !ok {
		t.Fatalf("Claim = %v, %v", ok, err)
	}

	if err := fx.daemon.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	got := fx.job(t, job.ID)
	if got.Status != jobs.StatusError || got.Message != jobs.MessageInterruptedRestart {
		t.Fatalf("interrupted job = %s %q", got.Status, got.Message)
	}
	if len(fx.runner.runs()) != 0 {
		t.Fatal("interrupted job must not be re-run")
	}
}

func TestSubmitRunsJobThroughPool(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	if err := fx.daemon.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	job, err := fx.daemon.Submit(ctx, jobs.Request{Kind: jobs.KindURL, Source: "https://www.youtube.com/watch?v=dQw4w9WgXcQ"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if job.Status != jobs.StatusPending {
		t.Fatalf("submitted job status = %s, want pending", job.Status)
	}
	testsupport.WaitFor(t, 5*time.Second, func() bool {
		return fx.job(t, job.ID).Status == jobs.StatusCompleted
	})

	if _, err := fx.daemon.Submit(ctx, jobs.Request{Kind: jobs.KindURL, Source: "bad"}); err == nil {
		t.Fatal("expected validation error")
	}
	list, _ := fx.tracker.List(ctx, 0)
	if len(list) != 1 {
		t.Fatalf("invalid submission created a job; have %d jobs", len(list))
	}
}

func TestPoolBoundsConcurrentJobs(t *testing.T) {
	fx := newFixture(t)
	fx.runner.gate = make(chan struct{})
	ctx := context.Background()
	if err := fx.daemon.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	var ids []int64
	for i := 0; i < 4; i++ {
		job, err := fx.daemon.Submit(ctx, jobs.Request{Kind: jobs.KindURL, Source: "https://youtu.be/dQw4w9WgXcQ"})
		if err != nil {
			t.Fatalf("Submit: %v", err)
		}
		ids = append(ids, job.ID)
	}

	testsupport.WaitFor(t, 5*time.Second, func() bool { return fx.daemon.Status(ctx).Active == 2 })
	time.Sleep(100 * time.Millisecond)
	status := fx.daemon.Status(ctx)
	if status.Active != 2 || status.Pending != 2 {
		t.Fatalf("expected 2 active and 2 pending, got %+v", status)
	}
	// The oldest jobs are claimed first.
	for _, run := range fx.runner.runs() {
		if run.ID != ids[0] && run.ID != ids[1] {
			t.Fatalf("job %d ran before older jobs", run.ID)
		}
	}

	close(fx.runner.gate)
	testsupport.WaitFor(t, 5*time.Second, func() bool {
		for _, id := range ids {
			if fx.job(t, id).Status != jobs.StatusCompleted {
				return false
			}
		}
		return true
	})
}

func TestAPIServesSubmissions(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	if err := fx.daemon.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	addr := fx.daemon.Status(ctx).APIAddress
	resp, err := http.Post("http://"+addr+"/api/jobs", "application/json",
		strings.NewReader(`{"url":"https://www.youtube.com/watch?v=dQw4w9WgXcQ"}`))
	if err != nil {
		t.Fatalf("POST /api/jobs: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	var body struct {
		JobID int64 `json:"job_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	testsupport.WaitFor(t, 5*time.Second, func() bool {
		return fx.job(t, body.JobID).Status == jobs.StatusCompleted
	})
}

func TestInboxQueuesDroppedFiles(t *testing.T) {
	fx := newFixture(t, testsupport.WithInbox())
	ctx := context.Background()
	if err := fx.daemon.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	dropped := filepath.Join(fx.cfg.Paths.InboxDir, "Field Recording.mp3")
	testsupport.WriteFile(t, dropped, 1024)
	ignored := filepath.Join(fx.cfg.Paths.InboxDir, "notes.txt")
	testsupport.WriteFile(t, ignored, 10)

	testsupport.WaitFor(t, 10*time.Second, func() bool { return len(fx.runner.runs()) == 1 })
	run := fx.runner.runs()[0]
	if run.Kind != jobs.KindUpload || run.Title != "Field Recording" {
		t.Fatalf("unexpected inbox job %+v", run)
	}
	if !strings.HasPrefix(run.Source, filepath.Join(fx.cfg.Paths.TempDir, "uploads")) {
		t.Fatalf("inbox file not staged under temp dir: %s", run.Source)
	}
	if _, err := os.Stat(dropped); !os.IsNotExist(err) {
		t.Fatalf("dropped file should have been moved, stat err = %v", err)
	}
	if _, err := os.Stat(ignored); err != nil {
		t.Fatalf("unsupported file should stay in the inbox: %v", err)
	}
}
