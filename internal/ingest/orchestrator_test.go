package ingest_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"yt2pod/internal/acquire"
	"yt2pod/internal/config"
	"yt2pod/internal/episode"
	"yt2pod/internal/feed"
	"yt2pod/internal/ingest"
	"yt2pod/internal/jobs"
	"yt2pod/internal/logging"
	"yt2pod/internal/media/ffprobe"
	"yt2pod/internal/services"
	"yt2pod/internal/testsupport"
)

const videoURL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

type fakeAcquirer struct {
	meta      acquire.Metadata
	downloads int
	err       error
}

func (f *fakeAcquirer) Metadata(context.Context, string) (acquire.Metadata, error) {
	return f.meta, nil
}

func (f *fakeAcquirer) Download(_ context.Context, _, videoID, dir string, events chan<- jobs.ProgressEvent) (string, error) {
	f.downloads++
	if f.err != nil {
		return "", f.err
	}
	events <- jobs.ProgressEvent{Status: jobs.EventDownloading, Percent: 50}
	path := filepath.Join(dir, videoID+".webm")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return path, os.WriteFile(path, []byte("webm-bytes"), 0o644)
}

type fakeProber struct {
	seconds int
}

func (f fakeProber) Inspect(_ context.Context, path string) (ffprobe.Result, error) {
	info, err := os.Stat(path)
	if err != nil {
		return ffprobe.Result{}, err
	}
	return ffprobe.Result{Format: ffprobe.Format{
		Duration: strconv.Itoa(f.seconds),
		Size:     strconv.FormatInt(info.Size(), 10),
	}}, nil
}

type fakeTranscoder struct {
	mu        sync.Mutex
	converted []string
	cuts      []string
	failCutAt int
}

func (f *fakeTranscoder) Convert(_ context.Context, _, output, _, _ string) error {
	f.mu.Lock()
	f.converted = append(f.converted, output)
	f.mu.Unlock()
	return os.WriteFile(output, []byte("converted-audio"), 0o644)
}

func (f *fakeTranscoder) Cut(_ context.Context, _, output string, start, duration int) error {
	f.mu.Lock()
	f.cuts = append(f.cuts, output)
	n := len(f.cuts)
	f.mu.Unlock()
	if f.failCutAt > 0 && n == f.failCutAt {
		_ = os.WriteFile(output, []byte("partial"), 0o644)
		return services.Wrap(services.ErrExternalTool, "splitting", "ffmpeg", "cut failed", nil)
	}
	return os.WriteFile(output, []byte(strings.Repeat("p", duration%97+1)), 0o644)
}

type fakePublisher struct {
	pending bool
	err     error
	calls   int
	files   []string
}

func (f *fakePublisher) HasPendingChanges(context.Context) (bool, error) { return f.pending, nil }

func (f *fakePublisher) Publish(_ context.Context, _ string, files []string) error {
	f.calls++
	f.files = files
	return f.err
}

type fakeTranscripts struct {
	mu    sync.Mutex
	guids []string
}

func (f *fakeTranscripts) Trigger(_ context.Context, guid, _, _ string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.guids = append(f.guids, guid)
	return true, nil
}

type harness struct {
	cfg         *config.Config
	tracker     *jobs.Tracker
	feed        *feed.Store
	acquirer    *fakeAcquirer
	transcoder  *fakeTranscoder
	publisher   *fakePublisher
	transcripts *fakeTranscripts
	orch        *ingest.Orchestrator
}

func newHarness(t *testing.T, seconds int, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	h := &harness{
		cfg:     cfg,
		tracker: jobs.NewTracker(jobs.NewSQLStore(testsupport.MustOpenDatabase(t, cfg)), logging.NewNop()),
		feed:    feed.NewStoreFromConfig(cfg, logging.NewNop()),
		acquirer: &fakeAcquirer{meta: acquire.Metadata{
			ID:              "dQw4w9WgXcQ",
			Title:           "Long Talk",
			Description:     "A long conversation",
			DurationSeconds: seconds,
			UploadDate:      time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
			WebpageURL:      videoURL,
		}},
		transcoder:  &fakeTranscoder{},
		publisher:   &fakePublisher{},
		transcripts: &fakeTranscripts{},
	}
	options := ingest.OptionsFromConfig(cfg)
	options.AutoTranscribe = true
	h.orch = ingest.New(ingest.Deps{
		Tracker:     h.tracker,
		Feed:        h.feed,
		Acquirer:    h.acquirer,
		Prober:      fakeProber{seconds: seconds},
		Transcoder:  h.transcoder,
		Publisher:   h.publisher,
		Transcripts: h.transcripts,
	}, options, logging.NewNop())
	return h
}

func (h *harness) submit(t *testing.T, req jobs.Request) *jobs.Job {
	t.Helper()
	req, err := h.orch.Validate(req)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	job, err := h.tracker.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if ok, err := h.tracker.Claim(context.Background(), job.ID); err != nil || !ok {
		t.Fatalf("Claim = %v, %v", ok, err)
	}
	return job
}

func (h *harness) job(t *testing.T, id int64) *jobs.Job {
	t.Helper()
	job, err := h.tracker.Get(context.Background(), id)
	if err != nil || job == nil {
		t.Fatalf("Get job %d = %v, %v", id, job, err)
	}
	return job
}

func (h *harness) episodes(t *testing.T) []episode.Episode {
	t.Helper()
	f, ok := feed.Load(h.cfg.Paths.RSSFile, logging.NewNop())
	if !ok {
		t.Fatal("feed not readable")
	}
	return f.Episodes
}

func TestRunSplitsLongSourceIntoParts(t *testing.T) {
	h := newHarness(t, 125*60, testsupport.WithMaxSegmentSeconds(3600))
	job := h.submit(t, jobs.Request{Kind: jobs.KindURL, Source: videoURL})

	result, err := h.orch.Run(context.Background(), job)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	wantGUIDs := []string{"dQw4w9WgXcQ", "dQw4w9WgXcQ_part2", "dQw4w9WgXcQ_part3"}
	if strings.Join(result.GUIDs, ",") != strings.Join(wantGUIDs, ",") || len(result.Added) != 3 {
		t.Fatalf("unexpected result %+v", result)
	}

	eps := h.episodes(t)
	if len(eps) != 3 {
		t.Fatalf("expected 3 episodes, got %d", len(eps))
	}
	for i, ep := range eps {
		wantTitle := "Long Talk (Part " + strconv.Itoa(i+1) + "/3)"
		if ep.GUID != wantGUIDs[i] || ep.Title != wantTitle {
			t.Fatalf("episode %d = %s %q", i, ep.GUID, ep.Title)
		}
		if !strings.HasSuffix(ep.Description, "(Part "+strconv.Itoa(i+1)+"/3)") {
			t.Fatalf("episode %d description %q", i, ep.Description)
		}
		if !strings.HasPrefix(ep.AudioURL, "https://podcast.example.com/media/dQw4w9WgXcQ_part") || ep.AudioMimeType != "audio/mp4" {
			t.Fatalf("episode %d enclosure %s %s", i, ep.AudioURL, ep.AudioMimeType)
		}
		if _, err := os.Stat(filepath.Join(h.cfg.Paths.MediaDir, filepath.Base(ep.AudioURL))); err != nil {
			t.Fatalf("media file for %s missing: %v", ep.GUID, err)
		}
	}
	if eps[2].DurationFormatted != "05:00" {
		t.Fatalf("remainder part duration %q", eps[2].DurationFormatted)
	}

	job = h.job(t, job.ID)
	if job.Status != jobs.StatusCompleted || job.Duplicate || len(job.EpisodeGUIDs) != 3 {
		t.Fatalf("unexpected job %+v", job)
	}
	if _, err := os.Stat(filepath.Join(h.cfg.Paths.TempDir, "job-"+strconv.FormatInt(job.ID, 10))); !os.IsNotExist(err) {
		t.Fatalf("work directory should be removed, stat err %v", err)
	}
	if len(h.transcripts.guids) != 3 {
		t.Fatalf("expected auto transcription for 3 parts, got %v", h.transcripts.guids)
	}
}

func TestRunSingleItemKeepsBaseGUID(t *testing.T) {
	h := newHarness(t, 45*60, testsupport.WithMaxSegmentSeconds(3600))
	job := h.submit(t, jobs.Request{Kind: jobs.KindURL, Source: "https://youtu.be/dQw4w9WgXcQ"})
	if job.Source != videoURL {
		t.Fatalf("expected canonical source, got %s", job.Source)
	}
	if _, err := h.orch.Run(context.Background(), job); err != nil {
		t.Fatalf("Run: %v", err)
	}
	eps := h.episodes(t)
	if len(eps) != 1 || eps[0].GUID != "dQw4w9WgXcQ" || eps[0].Title != "Long Talk" || eps[0].DurationFormatted != "45:00" {
		t.Fatalf("unexpected episodes %+v", eps)
	}
	if len(h.transcoder.converted) != 1 || len(h.transcoder.cuts) != 0 {
		t.Fatalf("expected one conversion and no cuts, got %v %v", h.transcoder.converted, h.transcoder.cuts)
	}
	if got := h.job(t, job.ID); got.Title != "Long Talk" || got.Message != "Added 1 episode(s)" {
		t.Fatalf("unexpected job %+v", got)
	}
}

func TestRunDuplicateSkipsDownload(t *testing.T) {
	h := newHarness(t, 45*60)
	first := h.submit(t, jobs.Request{Kind: jobs.KindURL, Source: videoURL})
	if _, err := h.orch.Run(context.Background(), first); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	info, err := os.Stat(h.cfg.Paths.RSSFile)
	if err != nil {
		t.Fatalf("stat feed: %v", err)
	}

	second := h.submit(t, jobs.Request{Kind: jobs.KindURL, Source: videoURL})
	result, err := h.orch.Run(context.Background(), second)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if !result.Duplicate || h.acquirer.downloads != 1 {
		t.Fatalf("expected duplicate without download, got %+v downloads=%d", result, h.acquirer.downloads)
	}
	job := h.job(t, second.ID)
	if job.Status != jobs.StatusCompleted || !job.Duplicate || job.Message != jobs.MessageDuplicate {
		t.Fatalf("unexpected duplicate job %+v", job)
	}
	after, _ := os.Stat(h.cfg.Paths.RSSFile)
	if !after.ModTime().Equal(info.ModTime()) {
		t.Fatal("duplicate must not rewrite the feed")
	}
}

func TestRunPartialDuplicateAddsMissingParts(t *testing.T) {
	h := newHarness(t, 125*60, testsupport.WithMaxSegmentSeconds(3600))
	_, err := h.feed.Update(context.Background(), func(f *feed.Feed) (int, error) {
		return f.Merge(episode.Episode{GUID: "dQw4w9WgXcQ", Title: "Earlier import", AudioURL: "https://podcast.example.com/media/dQw4w9WgXcQ.m4a"}), nil
	})
	if err != nil {
		t.Fatalf("seed feed: %v", err)
	}
	job := h.submit(t, jobs.Request{Kind: jobs.KindURL, Source: videoURL})
	result, err := h.orch.Run(context.Background(), job)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if strings.Join(result.Added, ",") != "dQw4w9WgXcQ_part2,dQw4w9WgXcQ_part3" {
		t.Fatalf("unexpected added %v", result.Added)
	}
	if got := h.job(t, job.ID); got.Message != "Added 2 of 3 parts" || got.Duplicate {
		t.Fatalf("unexpected job %+v", got)
	}
	if eps := h.episodes(t); len(eps) != 3 || eps[0].Title != "Earlier import" {
		t.Fatalf("unexpected episodes %+v", eps)
	}
}

func TestRunSplitFailureLeavesNoParts(t *testing.T) {
	h := newHarness(t, 125*60, testsupport.WithMaxSegmentSeconds(3600))
	h.transcoder.failCutAt = 2
	job := h.submit(t, jobs.Request{Kind: jobs.KindURL, Source: videoURL})

	_, err := h.orch.Run(context.Background(), job)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	got := h.job(t, job.ID)
	if got.Status != jobs.StatusError || !strings.Contains(got.Message, "cut failed") {
		t.Fatalf("unexpected job %+v", got)
	}
	entries, _ := os.ReadDir(h.cfg.Paths.MediaDir)
	if len(entries) != 0 {
		t.Fatalf("media dir should be empty, found %d entries", len(entries))
	}
	if _, err := os.Stat(h.cfg.Paths.RSSFile); !os.IsNotExist(err) {
		t.Fatalf("feed must not be created, stat err %v", err)
	}
}

func TestRunPublishFailureStillCompletes(t *testing.T) {
	h := newHarness(t, 600)
	h.publisher.pending = true
	h.publisher.err = errors.New("push rejected")
	job := h.submit(t, jobs.Request{Kind: jobs.KindURL, Source: videoURL})

	result, err := h.orch.Run(context.Background(), job)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.PublishFailed || h.publisher.calls != 1 {
		t.Fatalf("expected failed publish attempt, got %+v calls=%d", result, h.publisher.calls)
	}
	if h.publisher.files[0] != h.cfg.Paths.RSSFile {
		t.Fatalf("feed document should be published, got %v", h.publisher.files)
	}
	got := h.job(t, job.ID)
	if got.Status != jobs.StatusCompleted || got.Message != jobs.MessagePublishFailed {
		t.Fatalf("unexpected job %+v", got)
	}
}

func TestRunUploadUsesContentIDAndRemovesStagedFile(t *testing.T) {
	h := newHarness(t, 300)
	staged := filepath.Join(h.cfg.Paths.TempDir, "uploads", "my_talk-2024.m4a")
	testsupport.WriteFile(t, staged, 512)
	wantID, err := episode.ContentID(staged)
	if err != nil {
		t.Fatalf("ContentID: %v", err)
	}

	job := h.submit(t, jobs.Request{Kind: jobs.KindUpload, Source: staged})
	result, err := h.orch.Run(context.Background(), job)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.GUIDs) != 1 || result.GUIDs[0] != wantID {
		t.Fatalf("expected content id guid %s, got %v", wantID, result.GUIDs)
	}
	eps := h.episodes(t)
	if len(eps) != 1 || eps[0].Title != "My Talk 2024" {
		t.Fatalf("unexpected episodes %+v", eps)
	}
	if len(h.transcoder.converted) != 0 {
		t.Fatal("m4a upload should not be re-encoded")
	}
	if _, err := os.Stat(staged); !os.IsNotExist(err) {
		t.Fatalf("staged upload should be removed, stat err %v", err)
	}
}

func TestRunDownloadFailureFailsJob(t *testing.T) {
	h := newHarness(t, 600)
	h.acquirer.err = services.Wrap(services.ErrExternalTool, "downloading", "yt-dlp download", "yt-dlp failed", errors.New("HTTP Error 403"))
	job := h.submit(t, jobs.Request{Kind: jobs.KindURL, Source: videoURL})
	if _, err := h.orch.Run(context.Background(), job); err == nil {
		t.Fatal("expected error")
	}
	got := h.job(t, job.ID)
	if got.Status != jobs.StatusError || !strings.Contains(got.Message, "403") {
		t.Fatalf("unexpected job %+v", got)
	}
}

func TestValidateRejectsBadInput(t *testing.T) {
	h := newHarness(t, 60)
	tests := []jobs.Request{
		{Kind: jobs.KindURL, Source: "https://vimeo.com/123"},
		{Kind: jobs.KindUpload, Source: filepath.Join(t.TempDir(), "notes.txt")},
		{Kind: jobs.KindUpload, Source: filepath.Join(t.TempDir(), "missing.mp3")},
		{Kind: "torrent", Source: "x"},
	}
	for _, req := range tests {
		if _, err := h.orch.Validate(req); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("Validate(%+v) = %v, want validation error", req, err)
		}
	}
}

func TestRunPublishesRemovalOfTrimmedMedia(t *testing.T) {
	h := newHarness(t, 600, testsupport.WithMaxItems(1))
	h.publisher.pending = true
	oldMedia := filepath.Join(h.cfg.Paths.MediaDir, "old.m4a")
	if err := os.MkdirAll(h.cfg.Paths.MediaDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(oldMedia, []byte("old-audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := h.feed.Update(context.Background(), func(f *feed.Feed) (int, error) {
		return f.Merge(episode.Episode{
			GUID:        "old",
			Title:       "Old Talk",
			AudioURL:    "https://podcast.example.com/media/old.m4a",
			PublishedAt: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		}), nil
	}); err != nil {
		t.Fatalf("seed feed: %v", err)
	}

	job := h.submit(t, jobs.Request{Kind: jobs.KindURL, Source: videoURL})
	if _, err := h.orch.Run(context.Background(), job); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if eps := h.episodes(t); len(eps) != 1 || eps[0].GUID != "dQw4w9WgXcQ" {
		t.Fatalf("unexpected episodes %+v", eps)
	}
	if _, err := os.Stat(oldMedia); !os.IsNotExist(err) {
		t.Fatalf("trimmed media should be removed, stat err %v", err)
	}
	found := false
	for _, file := range h.publisher.files {
		if file == oldMedia {
			found = true
		}
	}
	if !found {
		t.Fatalf("removed media should be published, got %v", h.publisher.files)
	}
}
