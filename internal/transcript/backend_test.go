package transcript_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"yt2pod/internal/testsupport"
	"yt2pod/internal/transcript"
)

func TestAssemblyAIRoundTrip(t *testing.T) {
	var uploadedBytes int
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/upload", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("authorization") != "secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		data, _ := io.ReadAll(r.Body)
		uploadedBytes = len(data)
		_ = json.NewEncoder(w).Encode(map[string]string{"upload_url": "https://cdn.assembly/abc"})
	})
	mux.HandleFunc("/v2/transcript", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["audio_url"] != "https://cdn.assembly/abc" || body["punctuate"] != true || body["format_text"] != true {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "tx-1", "status": "queued"})
	})
	mux.HandleFunc("/v2/transcript/tx-1", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "completed", "text": "spoken words", "error": nil})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := transcript.NewAssemblyAI(server.URL+"/", "secret", 5*time.Second)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "ep.m4a")
	testsupport.WriteFile(t, path, 128)

	uploadURL, err := client.Upload(ctx, path)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if uploadedBytes != 128 {
		t.Fatalf("expected 128 uploaded bytes, got %d", uploadedBytes)
	}
	id, err := client.Submit(ctx, uploadURL)
	if err != nil || id != "tx-1" {
		t.Fatalf("Submit = %q, %v", id, err)
	}
	result, err := client.Poll(ctx, id)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if result.Status != transcript.RemoteCompleted || result.Text != "spoken words" {
		t.Fatalf("unexpected poll result %+v", result)
	}
}

func TestAssemblyAIReportsHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "invalid api key", http.StatusUnauthorized)
	}))
	defer server.Close()

	client := transcript.NewAssemblyAI(server.URL, "wrong", time.Second)
	if _, err := client.Submit(context.Background(), "https://example.com/a.m4a"); err == nil {
		t.Fatal("expected error for 401 response")
	}
}
