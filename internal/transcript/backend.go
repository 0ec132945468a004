package transcript

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"yt2pod/internal/config"
	"yt2pod/internal/services"
)

// Remote job states reported by a Backend.
const (
	RemoteQueued     = "queued"
	RemoteProcessing = "processing"
	RemoteCompleted  = "completed"
	RemoteError      = "error"
)

// PollResult is one status observation of a remote transcription job.
type PollResult struct {
	Status string
	Text   string
	Error  string
}

// Backend is the external speech-to-text service.
type Backend interface {
	Upload(ctx context.Context, path string) (string, error)
	Submit(ctx context.Context, audioURL string) (string, error)
	Poll(ctx context.Context, jobID string) (PollResult, error)
}

// AssemblyAI talks to the AssemblyAI v2 REST API.
type AssemblyAI struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewAssemblyAI builds a client. A zero timeout leaves the http.Client default.
func NewAssemblyAI(baseURL, apiKey string, timeout time.Duration) *AssemblyAI {
	return &AssemblyAI{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// NewAssemblyAIFromConfig builds a client from the transcription section.
func NewAssemblyAIFromConfig(cfg *config.Config) *AssemblyAI {
	return NewAssemblyAI(
		cfg.Transcription.BaseURL,
		cfg.Transcription.APIKey,
		time.Duration(cfg.Transcription.RequestTimeout)*time.Second,
	)
}

// Upload streams a local file to the backend and returns its hosted URL.
func (a *AssemblyAI) Upload(ctx context.Context, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer file.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v2/upload", file)
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	var out struct {
		UploadURL string `json:"upload_url"`
	}
	if err := a.do(req, "upload", &out); err != nil {
		return "", err
	}
	if out.UploadURL == "" {
		return "", services.Wrap(services.ErrTransient, "transcript", "upload", "response missing upload_url", nil)
	}
	return out.UploadURL, nil
}

// Submit starts a transcription of audioURL and returns the remote job id.
func (a *AssemblyAI) Submit(ctx context.Context, audioURL string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"audio_url":   audioURL,
		"punctuate":   true,
		"format_text": true,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v2/transcript", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var out struct {
		ID string `json:"id"`
	}
	if err := a.do(req, "submit", &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", services.Wrap(services.ErrTransient, "transcript", "submit", "response missing id", nil)
	}
	return out.ID, nil
}

// Poll fetches the current state of a remote job.
func (a *AssemblyAI) Poll(ctx context.Context, jobID string) (PollResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/v2/transcript/"+jobID, nil)
	if err != nil {
		return PollResult{}, fmt.Errorf("build poll request: %w", err)
	}
	var out struct {
		Status string  `json:"status"`
		Text   *string `json:"text"`
		Error  *string `json:"error"`
	}
	if err := a.do(req, "poll", &out); err != nil {
		return PollResult{}, err
	}
	result := PollResult{Status: out.Status}
	if out.Text != nil {
		result.Text = *out.Text
	}
	if out.Error != nil {
		result.Error = *out.Error
	}
	return result, nil
}

func (a *AssemblyAI) do(req *http.Request, op string, out any) error {
	req.Header.Set("authorization", a.apiKey)
	resp, err := a.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "transcript", op, "request failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return services.Wrap(services.ErrTransient, "transcript", op, "read response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := strings.TrimSpace(string(data))
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return services.Wrap(
			services.ErrTransient,
			"transcript",
			op,
			fmt.Sprintf("backend returned %d: %s", resp.StatusCode, snippet),
			nil,
		)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return services.Wrap(services.ErrTransient, "transcript", op, "decode response", err)
	}
	return nil
}
