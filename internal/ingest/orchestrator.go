package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"yt2pod/internal/acquire"
	"yt2pod/internal/config"
	"yt2pod/internal/episode"
	"yt2pod/internal/feed"
	"yt2pod/internal/fileutil"
	"yt2pod/internal/jobs"
	"yt2pod/internal/logging"
	"yt2pod/internal/media/ffprobe"
	"yt2pod/internal/notifications"
	"yt2pod/internal/publish"
	"yt2pod/internal/segment"
	"yt2pod/internal/services"
)

// Acquirer fetches remote sources.
type Acquirer interface {
	Metadata(ctx context.Context, videoURL string) (acquire.Metadata, error)
	Download(ctx context.Context, videoURL, videoID, dir string, events chan<- jobs.ProgressEvent) (string, error)
}

// Prober reports media duration and size.
type Prober interface {
	Inspect(ctx context.Context, path string) (ffprobe.Result, error)
}

// Transcoder converts audio and cuts parts.
type Transcoder interface {
	segment.Cutter
	Convert(ctx context.Context, input, output, format, bitrate string) error
}

// FeedStore is the serialized feed document.
type FeedStore interface {
	Path() string
	ExistingGUIDs() map[string]struct{}
	Update(ctx context.Context, fn feed.MergeFunc) (feed.UpdateResult, error)
}

// TranscriptTrigger starts transcription of a newly published episode.
type TranscriptTrigger interface {
	Trigger(ctx context.Context, guid, audioURL, localMediaDir string) (bool, error)
}

// Options carries the settings the pipeline reads on every run.
type Options struct {
	TempDir           string
	MediaDir          string
	MediaBaseURL      string
	AudioFormat       string
	AudioBitrate      string
	MaxSegmentSeconds int
	UploadExtensions  []string
	AutoTranscribe    bool
}

// OptionsFromConfig maps cfg onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		TempDir:           cfg.Paths.TempDir,
		MediaDir:          cfg.Paths.MediaDir,
		MediaBaseURL:      cfg.Podcast.MediaBaseURL,
		AudioFormat:       cfg.Feed.AudioFormat,
		AudioBitrate:      cfg.Feed.AudioBitrate,
		MaxSegmentSeconds: cfg.Segment.MaxSegmentSeconds,
		UploadExtensions:  cfg.Acquire.UploadExtensions,
		AutoTranscribe:    cfg.Transcription.Enabled && cfg.Transcription.AutoTrigger,
	}
}

// Deps are the collaborators of an Orchestrator. Publisher, Transcripts and
// Notifier are optional.
type Deps struct {
	Tracker     *jobs.Tracker
	Feed        FeedStore
	Acquirer    Acquirer
	Prober      Prober
	Transcoder  Transcoder
	Publisher   publish.Publisher
	Transcripts TranscriptTrigger
	Notifier    notifications.Service
}

// Result summarizes one completed run.
type Result struct {
	GUIDs         []string
	Added         []string
	Duplicate     bool
	PublishFailed bool
}

// Orchestrator runs the ingestion pipeline for one job at a time; it is
// safe to call Run concurrently for different jobs.
type Orchestrator struct {
	deps     Deps
	opts     Options
	splitter *segment.Splitter
	logger   *slog.Logger
	now      func() time.Time
}

// New builds an orchestrator.
func New(deps Deps, opts Options, logger *slog.Logger) *Orchestrator {
	if deps.Notifier == nil {
		deps.Notifier = notifications.Noop()
	}
	if deps.Publisher == nil {
		deps.Publisher = publish.Noop{}
	}
	if opts.MaxSegmentSeconds <= 0 {
		opts.MaxSegmentSeconds = segment.DefaultMaxSeconds
	}
	logger = logging.NewComponentLogger(logger, "ingest")
	return &Orchestrator{
		deps:     deps,
		opts:     opts,
		splitter: segment.NewSplitter(deps.Transcoder, logger),
		logger:   logger,
		now:      time.Now,
	}
}

// Validate rejects malformed requests before a job is created. URL requests
// come back with the canonical watch URL as their source.
func (o *Orchestrator) Validate(req jobs.Request) (jobs.Request, error) {
	switch req.Kind {
	case jobs.KindURL:
		src, err := acquire.ParseYouTubeURL(req.Source)
		if err != nil {
			return req, err
		}
		req.Source = src.URL()
		return req, nil
	case jobs.KindUpload:
		if err := acquire.ValidateUpload(req.Source, o.opts.UploadExtensions); err != nil {
			return req, err
		}
		info, err := os.Stat(req.Source)
		if err != nil || info.IsDir() {
			return req, services.Wrap(services.ErrValidation, "starting", "upload", "uploaded file not readable: "+req.Source, err)
		}
		if strings.TrimSpace(req.Title) == "" {
			req.Title = episode.TitleFromFilename(req.Source)
		}
		return req, nil
	default:
		return req, services.Wrap(services.ErrValidation, "starting", "validate", fmt.Sprintf("unknown request kind %q", req.Kind), nil)
	}
}

// source is the resolved identity of a request before any media is fetched.
type source struct {
	baseID      string
	title       string
	description string
	link        string
	thumbnail   string
	publishedAt time.Time
	duration    int
	remoteURL   string
	localPath   string
}

// Run executes the pipeline for job, recording every stage on the tracker.
// Any failure marks the job errored; the error is also returned.
func (o *Orchestrator) Run(ctx context.Context, job *jobs.Job) (result Result, err error) {
	ctx = services.WithJobID(ctx, job.ID)
	if job.CorrelationID != "" {
		ctx = services.WithRequestID(ctx, job.CorrelationID)
	}
	logger := logging.WithContext(ctx, o.logger)
	workDir := filepath.Join(o.opts.TempDir, "job-"+strconv.FormatInt(job.ID, 10))
	defer func() {
		if rmErr := os.RemoveAll(workDir); rmErr != nil {
			logger.Debug("work directory cleanup failed", logging.Error(rmErr))
		}
		if job.Kind == jobs.KindUpload && o.ownsUpload(job.Source) {
			_ = os.Remove(job.Source)
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			err = services.Wrap(services.ErrTransient, "ingest", "run", fmt.Sprintf("panic: %v", r), nil)
		}
		if err != nil {
			o.fail(ctx, logger, job, err)
		}
	}()

	logger.Info("ingestion started", logging.String("kind", string(job.Kind)), logging.String("source", job.Source))
	return o.run(ctx, logger, job, workDir)
}

func (o *Orchestrator) run(ctx context.Context, logger *slog.Logger, job *jobs.Job, workDir string) (Result, error) {
	tracker := o.deps.Tracker
	if err := tracker.Advance(ctx, job.ID, jobs.StageStarting, 0, "Validating request"); err != nil {
		return Result{}, err
	}
	req, err := o.Validate(jobs.Request{Kind: job.Kind, Source: job.Source, Title: job.Title})
	if err != nil {
		return Result{}, err
	}
	src, err := o.resolve(ctx, req)
	if err != nil {
		return Result{}, err
	}
	if src.title != job.Title {
		if err := tracker.SetTitle(ctx, job.ID, src.title); err != nil {
			return Result{}, err
		}
	}

	if src.duration > 0 {
		planned := PlannedGUIDs(src.baseID, src.duration, o.opts.MaxSegmentSeconds)
		if containsAll(o.deps.Feed.ExistingGUIDs(), planned) {
			return o.completeDuplicate(ctx, logger, job, src, planned)
		}
	}

	fetched, err := o.fetch(ctx, job, req, src, workDir)
	if err != nil {
		return Result{}, err
	}
	converted, duration, err := o.convert(ctx, job, src, fetched, workDir)
	if err != nil {
		return Result{}, err
	}
	items, err := o.split(ctx, job, converted, duration)
	if err != nil {
		return Result{}, err
	}
	return o.merge(ctx, logger, job, src, items)
}

func (o *Orchestrator) resolve(ctx context.Context, req jobs.Request) (source, error) {
	if req.Kind == jobs.KindURL {
		meta, err := o.deps.Acquirer.Metadata(ctx, req.Source)
		if err != nil {
			return source{}, err
		}
		src := source{
			baseID:      meta.ID,
			title:       meta.Title,
			description: meta.Description,
			link:        meta.WebpageURL,
			thumbnail:   meta.ThumbnailURL,
			publishedAt: meta.UploadDate,
			duration:    meta.DurationSeconds,
			remoteURL:   req.Source,
		}
		if src.baseID == "" {
			parsed, err := acquire.ParseYouTubeURL(req.Source)
			if err != nil {
				return source{}, err
			}
			src.baseID = parsed.VideoID
		}
		if src.link == "" {
			src.link = req.Source
		}
		if strings.TrimSpace(src.description) == "" {
			src.description = src.title
		}
		return src, nil
	}

	baseID, err := episode.ContentID(req.Source)
	if err != nil {
		return source{}, services.Wrap(services.ErrTransient, "starting", "content id", "hash upload", err)
	}
	title := req.Title
	if title == "" {
		title = episode.TitleFromFilename(req.Source)
	}
	src := source{
		baseID:      baseID,
		title:       title,
		description: title,
		publishedAt: o.now().UTC().Truncate(time.Second),
		localPath:   req.Source,
	}
	if probe, err := o.deps.Prober.Inspect(ctx, req.Source); err == nil {
		src.duration = probe.WholeSeconds()
	}
	return src, nil
}

func (o *Orchestrator) fetch(ctx context.Context, job *jobs.Job, req jobs.Request, src source, workDir string) (string, error) {
	tracker := o.deps.Tracker
	if req.Kind == jobs.KindURL {
		if err := tracker.Advance(ctx, job.ID, jobs.StageDownloading, 0, "Downloading audio"); err != nil {
			return "", err
		}
		events, wait := tracker.Progress(ctx, job.ID, jobs.StageDownloading)
		path, err := o.deps.Acquirer.Download(services.WithStage(ctx, string(jobs.StageDownloading)), src.remoteURL, src.baseID, workDir, events)
		wait()
		return path, err
	}
	if err := tracker.Advance(ctx, job.ID, jobs.StageUploading, 0, "Importing upload"); err != nil {
		return "", err
	}
	return acquire.ImportUpload(src.localPath, workDir)
}

func (o *Orchestrator) convert(ctx context.Context, job *jobs.Job, src source, input, workDir string) (string, int, error) {
	format := strings.ToLower(o.opts.AudioFormat)
	if err := o.deps.Tracker.Advance(ctx, job.ID, jobs.StageConverting, 0, "Converting to "+format); err != nil {
		return "", 0, err
	}
	output := filepath.Join(workDir, src.baseID+"."+format)
	if !strings.EqualFold(strings.TrimPrefix(filepath.Ext(input), "."), format) {
		if err := o.deps.Transcoder.Convert(ctx, input, output, format, o.opts.AudioBitrate); err != nil {
			return "", 0, err
		}
	} else if input != output {
		if err := fileutil.MoveFile(input, output); err != nil {
			return "", 0, services.Wrap(services.ErrTransient, "converting", "rename", "stage converted file", err)
		}
	}
	probe, err := o.deps.Prober.Inspect(ctx, output)
	if err != nil {
		return "", 0, err
	}
	duration := probe.WholeSeconds()
	if duration <= 0 {
		duration = src.duration
	}
	if duration <= 0 {
		return "", 0, services.Wrap(services.ErrExternalTool, "converting", "probe", "could not determine audio duration", nil)
	}
	return output, duration, nil
}

func (o *Orchestrator) split(ctx context.Context, job *jobs.Job, input string, duration int) ([]Item, error) {
	if !segment.ShouldSplit(duration, o.opts.MaxSegmentSeconds) {
		return []Item{SingleItem(input, duration)}, nil
	}
	plan := segment.Plan(duration, o.opts.MaxSegmentSeconds)
	msg := fmt.Sprintf("Splitting into %d parts", len(plan))
	if err := o.deps.Tracker.Advance(ctx, job.ID, jobs.StageSplitting, 0, msg); err != nil {
		return nil, err
	}
	parts, err := o.splitter.Split(services.WithStage(ctx, string(jobs.StageSplitting)), input, plan)
	if err != nil {
		return nil, err
	}
	return ItemsFromParts(parts), nil
}

func (o *Orchestrator) merge(ctx context.Context, logger *slog.Logger, job *jobs.Job, src source, items []Item) (Result, error) {
	tracker := o.deps.Tracker
	if err := tracker.Advance(ctx, job.ID, jobs.StageFeedUpdate, 0, "Updating feed"); err != nil {
		return Result{}, err
	}

	existing := o.deps.Feed.ExistingGUIDs()
	var moved []string
	rollback := func() {
		for _, path := range moved {
			_ = os.Remove(path)
		}
	}
	episodes := make([]episode.Episode, 0, len(items))
	result := Result{GUIDs: make([]string, 0, len(items))}
	for _, item := range items {
		guid := item.GUID(src.baseID)
		result.GUIDs = append(result.GUIDs, guid)
		if _, ok := existing[guid]; ok {
			continue
		}
		dest := filepath.Join(o.opts.MediaDir, filepath.Base(item.FilePath))
		if err := fileutil.MoveFile(item.FilePath, dest); err != nil {
			rollback()
			return Result{}, services.Wrap(services.ErrTransient, "feed-update", "move media", dest, err)
		}
		moved = append(moved, dest)
		episodes = append(episodes, o.buildEpisode(src, item, guid, dest))
	}

	update, err := o.deps.Feed.Update(ctx, func(f *feed.Feed) (int, error) {
		result.Added = result.Added[:0]
		added := 0
		for _, ep := range episodes {
			if f.Merge(ep) == 1 {
				added++
				result.Added = append(result.Added, ep.GUID)
			}
		}
		return added, nil
	})
	if err != nil {
		rollback()
		return Result{}, err
	}
	if update.Added == 0 {
		return o.completeDuplicate(ctx, logger, job, src, result.GUIDs)
	}

	message := fmt.Sprintf("Added %d episode(s)", update.Added)
	if update.Added < len(items) {
		message = fmt.Sprintf("Added %d of %d parts", update.Added, len(items))
	}
	addedFiles := make([]string, 0, len(result.Added)+len(update.RemovedMedia)+1)
	addedFiles = append(addedFiles, o.deps.Feed.Path())
	addedFiles = append(addedFiles, update.RemovedMedia...)
	for _, ep := range episodes {
		for _, guid := range result.Added {
			if ep.GUID == guid {
				addedFiles = append(addedFiles, filepath.Join(o.opts.MediaDir, filepath.Base(ep.AudioURL)))
			}
		}
	}
	if failed := o.publish(ctx, logger, job, src.title, addedFiles); failed {
		result.PublishFailed = true
		message = jobs.MessagePublishFailed
	}

	if err := tracker.Complete(ctx, job.ID, result.GUIDs, false, message); err != nil {
		return result, err
	}
	o.notify(ctx, logger, notifications.EventJobCompleted, notifications.Payload{
		"title": src.title,
		"parts": strconv.Itoa(len(result.Added)),
	})
	o.autoTranscribe(ctx, logger, episodes, result.Added)
	return result, nil
}

func (o *Orchestrator) buildEpisode(src source, item Item, guid, mediaPath string) episode.Episode {
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(mediaPath)), ".")
	return episode.Episode{
		GUID:              guid,
		Title:             item.Title(src.title),
		SourceLink:        src.link,
		Description:       item.Description(src.description),
		AudioURL:          feed.EnclosureURL(o.opts.MediaBaseURL, mediaPath),
		AudioByteSize:     fileutil.FileSize(mediaPath),
		AudioMimeType:     episode.MimeType(format),
		PublishedAt:       src.publishedAt,
		DurationFormatted: episode.FormatDuration(item.DurationSeconds),
		ThumbnailURL:      src.thumbnail,
	}
}

// publish reports true when publishing was attempted and failed.
func (o *Orchestrator) publish(ctx context.Context, logger *slog.Logger, job *jobs.Job, label string, files []string) bool {
	pending, err := o.deps.Publisher.HasPendingChanges(ctx)
	if err == nil && !pending {
		return false
	}
	if err == nil {
		if advErr := o.deps.Tracker.Advance(ctx, job.ID, jobs.StagePublishing, 0, "Publishing"); advErr != nil {
			logger.Debug("publishing progress not recorded", logging.Error(advErr))
		}
		err = o.deps.Publisher.Publish(ctx, label, files)
	}
	if err == nil {
		return false
	}
	logging.WarnWithContext(logger, "publish failed; feed saved locally", "publish_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check publisher credentials and rerun publishing"),
		logging.String(logging.FieldImpact, "listeners will not see the episode until published"),
	)
	o.notify(ctx, logger, notifications.EventPublishFailed, notifications.Payload{"error": services.Message(err)})
	return true
}

func (o *Orchestrator) autoTranscribe(ctx context.Context, logger *slog.Logger, episodes []episode.Episode, added []string) {
	if !o.opts.AutoTranscribe || o.deps.Transcripts == nil {
		return
	}
	wanted := make(map[string]struct{}, len(added))
	for _, guid := range added {
		wanted[guid] = struct{}{}
	}
	for _, ep := range episodes {
		if _, ok := wanted[ep.GUID]; !ok {
			continue
		}
		if _, err := o.deps.Transcripts.Trigger(ctx, ep.GUID, ep.AudioURL, o.opts.MediaDir); err != nil {
			logger.Warn("auto transcription not started", logging.String(logging.FieldGUID, ep.GUID), logging.Error(err))
		}
	}
}

func (o *Orchestrator) completeDuplicate(ctx context.Context, logger *slog.Logger, job *jobs.Job, src source, guids []string) (Result, error) {
	if err := o.deps.Tracker.Complete(ctx, job.ID, guids, true, jobs.MessageDuplicate); err != nil {
		return Result{}, err
	}
	logger.Info("source already in feed", logging.String("base_id", src.baseID))
	o.notify(ctx, logger, notifications.EventJobDuplicate, notifications.Payload{"title": src.title})
	return Result{GUIDs: guids, Duplicate: true}, nil
}

func (o *Orchestrator) fail(ctx context.Context, logger *slog.Logger, job *jobs.Job, cause error) {
	message := services.Message(cause)
	if err := o.deps.Tracker.Fail(context.WithoutCancel(ctx), job.ID, message); err != nil {
		logger.Error("could not record job failure", logging.Error(err), logging.String("cause", message))
	}
	o.notify(ctx, logger, notifications.EventJobFailed, notifications.Payload{
		"job_id": strconv.FormatInt(job.ID, 10),
		"error":  message,
	})
}

func (o *Orchestrator) notify(ctx context.Context, logger *slog.Logger, event notifications.Event, payload notifications.Payload) {
	if err := o.deps.Notifier.Publish(context.WithoutCancel(ctx), event, payload); err != nil {
		logger.Debug("notification failed", logging.Error(err))
	}
}

// ownsUpload reports whether path was staged under the temp dir by the API
// or inbox and may be deleted once the job ends.
func (o *Orchestrator) ownsUpload(path string) bool {
	if o.opts.TempDir == "" {
		return false
	}
	rel, err := filepath.Rel(o.opts.TempDir, path)
	return err == nil && !strings.HasPrefix(rel, "..") && rel != "."
}

func containsAll(set map[string]struct{}, guids []string) bool {
	for _, guid := range guids {
		if _, ok := set[guid]; !ok {
			return false
		}
	}
	return len(guids) > 0
}
