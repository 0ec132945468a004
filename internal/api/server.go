package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"yt2pod/internal/config"
	"yt2pod/internal/feed"
	"yt2pod/internal/jobs"
	"yt2pod/internal/logging"
	"yt2pod/internal/services"
	"yt2pod/internal/transcript"
)

// Submitter validates a request and persists it as a pending job.
type Submitter interface {
	Submit(ctx context.Context, req jobs.Request) (*jobs.Job, error)
}

// JobReader exposes job lookups and live snapshots.
type JobReader interface {
	Get(ctx context.Context, id int64) (*jobs.Job, error)
	List(ctx context.Context, limit int, statuses ...jobs.Status) ([]*jobs.Job, error)
	Watch(id int64) (<-chan jobs.Job, func())
}

// Transcripts is the transcript tracker surface used by the API.
type Transcripts interface {
	Status(ctx context.Context, guid string) (transcript.Record, error)
	List(ctx context.Context) ([]transcript.Record, error)
	Trigger(ctx context.Context, guid, audioURL, localMediaDir string) (bool, error)
	Text(guid string) (string, error)
}

// FeedReader returns the current feed document.
type FeedReader interface {
	Snapshot() *feed.Feed
}

// Deps are the collaborators served over HTTP. Transcripts is optional.
type Deps struct {
	Submitter   Submitter
	Jobs        JobReader
	Transcripts Transcripts
	Feed        FeedReader
}

const defaultListLimit = 50

// Server is the HTTP API of the daemon.
type Server struct {
	cfg    *config.Config
	deps   Deps
	logger *slog.Logger
	router *mux.Router

	listener net.Listener
	server   *http.Server
}

// NewServer wires the routes. It returns nil when no bind address is
// configured.
func NewServer(cfg *config.Config, deps Deps, logger *slog.Logger) *Server {
	if cfg == nil || strings.TrimSpace(cfg.Paths.APIBind) == "" {
		return nil
	}
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logging.NewComponentLogger(logger, "api-server"),
	}
	s.router = s.routes()
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()
	router.Use(requestIDMiddleware, s.logMiddleware)
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusNotFound, "not found")
	})

	protected := router.PathPrefix("/api").Subrouter()
	protected.Use(authMiddleware(s.cfg.Paths.APIToken))
	protected.HandleFunc("/jobs", s.handleSubmit).Methods(http.MethodPost)
	protected.HandleFunc("/jobs", s.handleListJobs).Methods(http.MethodGet)
	protected.HandleFunc("/jobs/{id:[0-9]+}", s.handleGetJob).Methods(http.MethodGet)
	protected.HandleFunc("/jobs/{id:[0-9]+}/events", s.handleJobEvents).Methods(http.MethodGet)
	protected.HandleFunc("/transcripts/{guid}", s.handleTranscriptStatus).Methods(http.MethodGet)
	protected.HandleFunc("/transcripts/{guid}", s.handleTranscriptTrigger).Methods(http.MethodPost)
	protected.HandleFunc("/transcripts/{guid}/text", s.handleTranscriptText).Methods(http.MethodGet)
	protected.HandleFunc("/episodes", s.handleEpisodes).Methods(http.MethodGet)
	protected.HandleFunc("/config", s.handleConfig).Methods(http.MethodGet)
	return router
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the bound listener address once started.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Start listens on the configured address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.cfg.Paths.APIBind)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "api", "listen", fmt.Sprintf("bind %s", s.cfg.Paths.APIBind), err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Stop shuts the server down, waiting briefly for in-flight requests.
func (s *Server) Stop() {
	if s == nil || s.server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps a classified error onto its HTTP status.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := services.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logging.WithContext(r.Context(), s.logger).Error("request failed",
			logging.String("path", r.URL.Path),
			logging.Error(err),
		)
	}
	s.writeError(w, status, services.Message(err))
}
