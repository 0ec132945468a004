package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"yt2pod/internal/episode"
	"yt2pod/internal/transcript"
)

func (s *Server) transcripts(w http.ResponseWriter) (Transcripts, bool) {
	if s.deps.Transcripts == nil {
		s.writeError(w, http.StatusServiceUnavailable, "transcription disabled")
		return nil, false
	}
	return s.deps.Transcripts, true
}

func (s *Server) handleTranscriptStatus(w http.ResponseWriter, r *http.Request) {
	tracker, ok := s.transcripts(w)
	if !ok {
		return
	}
	guid := mux.Vars(r)["guid"]
	rec, err := tracker.Status(r.Context(), guid)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if rec.GUID == "" {
		rec.GUID = guid
	}
	s.writeJSON(w, http.StatusOK, FromRecord(rec))
}

func (s *Server) handleTranscriptTrigger(w http.ResponseWriter, r *http.Request) {
	tracker, ok := s.transcripts(w)
	if !ok {
		return
	}
	guid := mux.Vars(r)["guid"]
	rec, err := tracker.Status(r.Context(), guid)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if rec.Status != transcript.StatusNone {
		s.writeJSON(w, http.StatusOK, TriggerResponse{GUID: guid, Started: false})
		return
	}
	ep, found := s.findEpisode(guid)
	if !found {
		s.writeError(w, http.StatusNotFound, "episode not in feed")
		return
	}
	started, err := tracker.Trigger(r.Context(), guid, ep.AudioURL, s.cfg.Paths.MediaDir)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	status := http.StatusOK
	if started {
		status = http.StatusAccepted
	}
	s.writeJSON(w, status, TriggerResponse{GUID: guid, Started: started})
}

func (s *Server) handleTranscriptText(w http.ResponseWriter, r *http.Request) {
	tracker, ok := s.transcripts(w)
	if !ok {
		return
	}
	guid := mux.Vars(r)["guid"]
	text, err := tracker.Text(guid)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, TranscriptText{GUID: guid, Text: text})
}

func (s *Server) handleEpisodes(w http.ResponseWriter, r *http.Request) {
	statuses := map[string]transcript.Status{}
	if s.deps.Transcripts != nil {
		records, err := s.deps.Transcripts.List(r.Context())
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		for _, rec := range records {
			statuses[rec.GUID] = rec.Status
		}
	}
	newest := s.deps.Feed.Snapshot().Newest()
	out := make([]Episode, 0, len(newest))
	for _, ep := range newest {
		out = append(out, FromEpisode(ep, statuses[ep.GUID]))
	}
	s.writeJSON(w, http.StatusOK, EpisodeListResponse{Episodes: out})
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, ConfigResponse{
		Title:         s.cfg.Podcast.Title,
		SiteURL:       s.cfg.Podcast.SiteURL,
		FeedURL:       s.cfg.FeedURL(),
		AudioFormat:   s.cfg.Feed.AudioFormat,
		Transcription: s.deps.Transcripts != nil,
	})
}

func (s *Server) findEpisode(guid string) (episode.Episode, bool) {
	for _, ep := range s.deps.Feed.Snapshot().Episodes {
		if ep.GUID == guid {
			return ep, true
		}
	}
	return episode.Episode{}, false
}
