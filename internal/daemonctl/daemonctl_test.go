package daemonctl_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"yt2pod/internal/api"
	"yt2pod/internal/daemonctl"
	"yt2pod/internal/daemonrun"
	"yt2pod/internal/testsupport"
)

func TestBaseURL(t *testing.T) {
	cases := []struct {
		bind    string
		want    string
		wantErr bool
	}{
		{bind: "127.0.0.1:7070", want: "http://127.0.0.1:7070"},
		{bind: ":7070", want: "http://127.0.0.1:7070"},
		{bind: "0.0.0.0:8080", want: "http://127.0.0.1:8080"},
		{bind: "[::]:8080", want: "http://127.0.0.1:8080"},
		{bind: "podcast.lan:9000", want: "http://podcast.lan:9000"},
		{bind: "", wantErr: true},
		{bind: "no-port", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.bind, func(t *testing.T) {
			got, err := daemonctl.BaseURL(tc.bind)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil || got != tc.want {
				t.Fatalf("BaseURL(%q) = %q, %v; want %q", tc.bind, got, err, tc.want)
			}
		})
	}
}

func TestClientSubmitAndJob(t *testing.T) {
	router := mux.NewRouter()
	router.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req api.SubmitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":"url is required"}`)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(api.SubmitResponse{JobID: 7, Status: "pending"})
	}).Methods(http.MethodPost)
	router.HandleFunc("/api/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		if mux.Vars(r)["id"] != "7" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"error":"job not found"}`)
			return
		}
		_ = json.NewEncoder(w).Encode(api.Job{ID: 7, Status: "completed", EpisodeGUIDs: []string{"abc"}})
	}).Methods(http.MethodGet)
	srv := httptest.NewServer(router)
	defer srv.Close()

	client := daemonctl.NewClientForURL(srv.URL, "secret")
	ctx := context.Background()

	resp, err := client.Submit(ctx, "https://youtu.be/abc", "")
	if err != nil || resp.JobID != 7 {
		t.Fatalf("Submit = %+v, %v", resp, err)
	}

	_, err = client.Submit(ctx, "", "")
	var apiErr *daemonctl.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadRequest || apiErr.Message != "url is required" {
		t.Fatalf("expected decoded 400, got %v", err)
	}

	job, err := client.Job(ctx, 7)
	if err != nil || job.Status != "completed" || len(job.EpisodeGUIDs) != 1 {
		t.Fatalf("Job = %+v, %v", job, err)
	}
	if _, err := client.Job(ctx, 8); !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}

	unauthorized := daemonctl.NewClientForURL(srv.URL, "")
	if _, err := unauthorized.Submit(ctx, "https://youtu.be/abc", ""); !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestClientUploadSendsMultipart(t *testing.T) {
	var gotTitle, gotName, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		gotTitle = r.FormValue("title")
		file, header, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		gotName, gotBody = header.Filename, string(data)
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(api.SubmitResponse{JobID: 3, Status: "pending"})
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "memo.m4a")
	if err := os.WriteFile(path, []byte("audio-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	resp, err := daemonctl.NewClientForURL(srv.URL, "").Upload(context.Background(), path, "Voice Memo")
	if err != nil || resp.JobID != 3 {
		t.Fatalf("Upload = %+v, %v", resp, err)
	}
	if gotTitle != "Voice Memo" || gotName != "memo.m4a" || gotBody != "audio-bytes" {
		t.Fatalf("unexpected upload title=%q name=%q body=%q", gotTitle, gotName, gotBody)
	}
}

func TestClientWatchStreamsUntilClose(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/api/jobs/5/events") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, status := range []string{"pending", "processing", "completed"} {
			if err := conn.WriteJSON(api.Job{ID: 5, Status: status}); err != nil {
				return
			}
		}
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished"))
	}))
	defer srv.Close()

	var seen []string
	err := daemonctl.NewClientForURL(srv.URL, "").Watch(context.Background(), 5, func(job api.Job) {
		seen = append(seen, job.Status)
	})
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if strings.Join(seen, ",") != "pending,processing,completed" {
		t.Fatalf("unexpected statuses %v", seen)
	}

	err = daemonctl.NewClientForURL(srv.URL, "").Watch(context.Background(), 6, nil)
	var apiErr *daemonctl.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown job, got %v", err)
	}
}

func TestNewClientRequiresBind(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = ""
	if _, err := daemonctl.NewClient(cfg); !errors.Is(err, daemonctl.ErrAPIDisabled) {
		t.Fatalf("expected ErrAPIDisabled, got %v", err)
	}
}

func TestProcessInfoFollowsLock(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	paths := daemonctl.PathsFromConfig(cfg)
	if paths.PIDPath != daemonrun.PIDPath(cfg) {
		t.Fatalf("unexpected pid path %q", paths.PIDPath)
	}

	running, _, err := daemonctl.ProcessInfo(paths)
	if err != nil || running {
		t.Fatalf("expected no daemon, got running=%v err=%v", running, err)
	}
	if _, err := daemonctl.Stop(paths, time.Second); !errors.Is(err, daemonctl.ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}

	lock := flock.New(paths.LockPath)
	if ok, err := lock.TryLock(); err != nil || !ok {
		t.Fatalf("TryLock = %v, %v", ok, err)
	}
	t.Cleanup(func() { _ = lock.Unlock() })
	if err := os.WriteFile(paths.PIDPath, []byte(strconv.Itoa(4242)+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	running, pid, err := daemonctl.ProcessInfo(paths)
	if err != nil || !running || pid != 4242 {
		t.Fatalf("ProcessInfo = %v, %d, %v", running, pid, err)
	}
	if err := daemonctl.WaitForShutdown(paths.LockPath, 300*time.Millisecond); err == nil {
		t.Fatal("expected timeout while lock is held")
	}

	_ = lock.Unlock()
	if err := daemonctl.WaitForShutdown(paths.LockPath, time.Second); err != nil {
		t.Fatalf("expected shutdown after unlock: %v", err)
	}
}

func TestClientTriggerTranscript(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/transcripts/abc_part2" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"error":"episode not in feed"}`)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(api.TriggerResponse{GUID: "abc_part2", Started: true})
	}))
	defer srv.Close()

	client := daemonctl.NewClientForURL(srv.URL, "")
	resp, err := client.TriggerTranscript(context.Background(), "abc_part2")
	if err != nil || !resp.Started {
		t.Fatalf("TriggerTranscript = %+v, %v", resp, err)
	}
	_, err = client.TriggerTranscript(context.Background(), "missing")
	var apiErr *daemonctl.APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "episode not in feed" {
		t.Fatalf("expected decoded 404, got %v", err)
	}
}
