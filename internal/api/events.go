package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"yt2pod/internal/jobs"
	"yt2pod/internal/logging"
	"yt2pod/internal/services"
)

const (
	eventWriteTimeout = 10 * time.Second
	eventPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handleJobEvents streams job snapshots over a websocket until the job
// reaches a terminal status or the client goes away.
func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r)
	if !ok {
		return
	}
	// Subscribe before the initial read so no transition is missed.
	updates, unsubscribe := s.deps.Jobs.Watch(id)
	defer unsubscribe()

	current, err := s.deps.Jobs.Get(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if current == nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", logging.Error(err))
		return
	}
	defer conn.Close()

	logger := logging.WithContext(services.WithJobID(r.Context(), id), s.logger)
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	send := func(job jobs.Job) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
		if err := conn.WriteJSON(FromJob(&job)); err != nil {
			logger.Debug("job event write failed", logging.Error(err))
			return false
		}
		return true
	}

	if !send(*current) {
		return
	}
	if current.Status.Terminal() {
		s.closeEvents(conn)
		return
	}

	ticker := time.NewTicker(eventPingInterval)
	defer ticker.Stop()
	for {
		select {
		case job, ok := <-updates:
			if !ok {
				return
			}
			if !send(job) {
				return
			}
			if job.Status.Terminal() {
				s.closeEvents(conn)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(eventWriteTimeout)); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) closeEvents(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(eventWriteTimeout))
}
