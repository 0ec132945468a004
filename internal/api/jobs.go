package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"yt2pod/internal/acquire"
	"yt2pod/internal/episode"
	"yt2pod/internal/jobs"
	"yt2pod/internal/logging"
	"yt2pod/internal/services"
)

const (
	multipartMemory    = 32 << 20
	maxJSONBody        = 64 << 10
	defaultUploadLimit = 2048
)

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	var (
		req jobs.Request
		err error
	)
	if mediaType == "multipart/form-data" {
		req, err = s.stageUpload(w, r)
	} else {
		req, err = decodeURLRequest(r)
	}
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	job, err := s.deps.Submitter.Submit(r.Context(), req)
	if err != nil {
		if req.Kind == jobs.KindUpload {
			_ = os.Remove(req.Source)
		}
		s.writeServiceError(w, r, err)
		return
	}
	logging.WithContext(services.WithJobID(r.Context(), job.ID), s.logger).Info("job accepted",
		logging.String("kind", string(job.Kind)),
		logging.String("source", job.Source),
	)
	s.writeJSON(w, http.StatusAccepted, SubmitResponse{JobID: job.ID, Status: string(job.Status)})
}

func decodeURLRequest(r *http.Request) (jobs.Request, error) {
	var body SubmitRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(&body); err != nil {
		return jobs.Request{}, services.Wrap(services.ErrValidation, "api", "submit", "invalid JSON body", err)
	}
	if strings.TrimSpace(body.URL) == "" {
		return jobs.Request{}, services.Wrap(services.ErrValidation, "api", "submit", "url is required", nil)
	}
	return jobs.Request{Kind: jobs.KindURL, Source: strings.TrimSpace(body.URL), Title: strings.TrimSpace(body.Title)}, nil
}

// stageUpload stores the multipart "file" part under TempDir/uploads. The
// staged file belongs to the job from then on.
func (s *Server) stageUpload(w http.ResponseWriter, r *http.Request) (jobs.Request, error) {
	limitMB := s.cfg.Acquire.MaxUploadMegabyte
	if limitMB <= 0 {
		limitMB = defaultUploadLimit
	}
	r.Body = http.MaxBytesReader(w, r.Body, int64(limitMB)<<20)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return jobs.Request{}, services.Wrap(services.ErrValidation, "api", "upload", fmt.Sprintf("upload exceeds %d MB", limitMB), nil)
		}
		return jobs.Request{}, services.Wrap(services.ErrValidation, "api", "upload", "invalid multipart body", err)
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		return jobs.Request{}, services.Wrap(services.ErrValidation, "api", "upload", "multipart field \"file\" is required", err)
	}
	defer file.Close()

	if err := acquire.ValidateUpload(header.Filename, s.cfg.Acquire.UploadExtensions); err != nil {
		return jobs.Request{}, err
	}

	dir := filepath.Join(s.cfg.Paths.TempDir, "uploads")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return jobs.Request{}, services.Wrap(services.ErrConfiguration, "api", "upload", "create upload directory", err)
	}
	dst := filepath.Join(dir, uuid.NewString()[:8]+"-"+acquire.SanitizeFilename(filepath.Base(header.Filename)))
	out, err := os.Create(dst)
	if err != nil {
		return jobs.Request{}, services.Wrap(services.ErrTransient, "api", "upload", "create staged file", err)
	}
	if _, err := io.Copy(out, file); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return jobs.Request{}, services.Wrap(services.ErrTransient, "api", "upload", "store upload", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return jobs.Request{}, services.Wrap(services.ErrTransient, "api", "upload", "store upload", err)
	}

	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		title = episode.TitleFromFilename(header.Filename)
	}
	return jobs.Request{Kind: jobs.KindUpload, Source: dst, Title: title}, nil
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := defaultListLimit
	if value := strings.TrimSpace(query.Get("limit")); value != "" {
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	var statuses []jobs.Status
	for _, value := range query["status"] {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			statuses = append(statuses, jobs.Status(trimmed))
		}
	}
	list, err := s.deps.Jobs.List(r.Context(), limit, statuses...)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, JobListResponse{Jobs: FromJobs(list)})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r)
	if !ok {
		return
	}
	job, err := s.deps.Jobs.Get(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if job == nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	s.writeJSON(w, http.StatusOK, FromJob(job))
}

func (s *Server) jobID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid job id")
		return 0, false
	}
	return id, true
}
