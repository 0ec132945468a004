package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"yt2pod/internal/acquire"
	"yt2pod/internal/config"
	"yt2pod/internal/daemon"
	"yt2pod/internal/database"
	"yt2pod/internal/feed"
	"yt2pod/internal/ingest"
	"yt2pod/internal/jobs"
	"yt2pod/internal/logging"
	"yt2pod/internal/media/ffprobe"
	"yt2pod/internal/media/transcode"
	"yt2pod/internal/notifications"
	"yt2pod/internal/preflight"
	"yt2pod/internal/publish"
	"yt2pod/internal/transcript"
)

// LogName is the base name of the daemon's rotated log file.
const LogName = "yt2podd"

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// SkipPreflight starts even when required checks fail.
	SkipPreflight bool
}

// Runtime is the set of services shared by the daemon and the CLI.
type Runtime struct {
	DB           *database.DB
	Tracker      *jobs.Tracker
	Feed         *feed.Store
	Orchestrator *ingest.Orchestrator
	Transcripts  *transcript.Tracker
	Notifier     notifications.Service
	Publisher    publish.Publisher
}

// Build opens the state database and wires the ingestion pipeline. The
// caller owns the runtime and must Close it.
func Build(cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	db, err := database.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	publisher, err := publish.New(cfg, logger)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create publisher: %w", err)
	}

	notifier := notifications.NewService(cfg)
	tracker := jobs.NewTracker(jobs.NewSQLStore(db), logger)
	feedStore := feed.NewStoreFromConfig(cfg, logger)

	var backend transcript.Backend
	if cfg.Transcription.Enabled {
		backend = transcript.NewAssemblyAIFromConfig(cfg)
	}
	transcripts := transcript.NewTracker(
		transcript.NewSQLStore(db),
		backend,
		transcript.OptionsFromConfig(cfg),
		notifier,
		logger,
	)

	orchestrator := ingest.New(ingest.Deps{
		Tracker:     tracker,
		Feed:        feedStore,
		Acquirer:    acquire.NewYTDLP(cfg, logger),
		Prober:      ffprobe.Prober{Binary: cfg.FFprobeBinary()},
		Transcoder:  transcode.NewFromConfig(cfg, logger),
		Publisher:   publisher,
		Transcripts: transcripts,
		Notifier:    notifier,
	}, ingest.OptionsFromConfig(cfg), logger)

	return &Runtime{
		DB:           db,
		Tracker:      tracker,
		Feed:         feedStore,
		Orchestrator: orchestrator,
		Transcripts:  transcripts,
		Notifier:     notifier,
		Publisher:    publisher,
	}, nil
}

// Close stops transcript workers and closes the database.
func (r *Runtime) Close(ctx context.Context) error {
	if r == nil {
		return nil
	}
	var errs []error
	if r.Transcripts != nil {
		if err := r.Transcripts.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop transcript workers: %w", err))
		}
	}
	if r.DB != nil {
		if err := r.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}

// PIDPath is where the running daemon records its process id.
func PIDPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.StateDir, LogName+".pid")
}

// Run starts the yt2pod daemon and blocks until a signal or ctx ends it.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	logPath := ""
	if cfg.Paths.LogDir != "" {
		logPath = filepath.Join(cfg.Paths.LogDir, LogName+".log")
	}
	logger, err := logging.New(logging.Options{
		Level:       firstNonEmpty(opts.LogLevel, cfg.Logging.Level),
		Format:      cfg.Logging.Format,
		FilePath:    logPath,
		MaxSizeMB:   cfg.Logging.MaxSizeMB,
		MaxBackups:  cfg.Logging.MaxBackups,
		MaxAgeDays:  cfg.Logging.RetentionDays,
		Compress:    cfg.Logging.Compress,
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logDependencySnapshot(logger, cfg)
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "*.log*", Keep: []string{logPath}},
	)

	if err := checkPreflight(signalCtx, logger, cfg, opts.SkipPreflight); err != nil {
		return err
	}

	rt, err := Build(cfg, logger)
	if err != nil {
		logger.Error("build runtime", logging.Error(err))
		return err
	}
	defer func() {
		if closeErr := rt.Close(context.Background()); closeErr != nil {
			logger.Warn("runtime close failed", logging.Error(closeErr))
		}
	}()

	d, err := daemon.New(cfg, daemon.Deps{
		Tracker:     rt.Tracker,
		Runner:      rt.Orchestrator,
		Feed:        rt.Feed,
		Transcripts: rt.Transcripts,
	}, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check configuration and state database access"),
			logging.String(logging.FieldImpact, "no jobs will be processed"),
		)
		return err
	}
	defer d.Stop()

	pidPath := PIDPath(cfg)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	status := d.Status(signalCtx)
	logger.Info("yt2pod daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.Int("workers", status.Workers),
		logging.String("api_address", status.APIAddress),
		logging.String("inbox_dir", status.InboxDir),
	)

	<-signalCtx.Done()
	logger.Info("yt2pod daemon shutting down", logging.String(logging.FieldEventType, "daemon_stopping"))
	return nil
}

func checkPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config, skip bool) error {
	results := preflight.RunAll(ctx, cfg)
	for _, r := range results {
		if r.Passed {
			logger.Debug("preflight check passed", logging.String("check", r.Name), logging.String("detail", r.Detail))
			continue
		}
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.Bool("optional", r.Optional),
			logging.String(logging.FieldErrorHint, "run yt2pod config check for details"),
		)
	}
	err := preflight.Failed(results)
	if err == nil || skip {
		return nil
	}
	return err
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	ytdlp := cfg.Acquire.YTDLPBinary
	ffmpeg := cfg.FFmpegBinary()
	ffprobeBin := cfg.FFprobeBinary()
	logger.Info("dependency snapshot",
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Bool("ytdlp_available", binaryAvailable(ytdlp)),
		logging.String("ytdlp_binary", ytdlp),
		logging.Bool("ffmpeg_available", binaryAvailable(ffmpeg)),
		logging.String("ffmpeg_binary", ffmpeg),
		logging.Bool("ffprobe_available", binaryAvailable(ffprobeBin)),
		logging.String("ffprobe_binary", ffprobeBin),
		logging.String("publish_mode", cfg.Publish.Mode),
		logging.Bool("transcription_enabled", cfg.Transcription.Enabled),
		logging.Bool("transcription_key_present", strings.TrimSpace(cfg.Transcription.APIKey) != ""),
		logging.Bool("ntfy_enabled", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
	)
}

func binaryAvailable(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	_, err := exec.LookPath(name)
	return err == nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
