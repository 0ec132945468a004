package daemonctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"yt2pod/internal/api"
	"yt2pod/internal/config"
)

const defaultRequestTimeout = 30 * time.Second

// ErrAPIDisabled indicates that paths.api_bind is empty.
var ErrAPIDisabled = errors.New("daemon api disabled (paths.api_bind is empty)")

// APIError is a non-2xx response from the daemon.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("daemon api: status %d", e.Status)
	}
	return fmt.Sprintf("daemon api: %s (status %d)", e.Message, e.Status)
}

// Client talks to a running daemon over its HTTP API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	dialer  *websocket.Dialer
}

// NewClient targets the API configured in cfg.
func NewClient(cfg *config.Config) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	base, err := BaseURL(cfg.Paths.APIBind)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL: base,
		token:   strings.TrimSpace(cfg.Paths.APIToken),
		http:    &http.Client{Timeout: defaultRequestTimeout},
		dialer:  websocket.DefaultDialer,
	}, nil
}

// NewClientForURL targets an explicit base URL such as an httptest server.
func NewClientForURL(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: defaultRequestTimeout},
		dialer:  websocket.DefaultDialer,
	}
}

// BaseURL turns a listen address into a loopback-reachable http URL.
func BaseURL(bind string) (string, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return "", ErrAPIDisabled
	}
	host, port, err := net.SplitHostPort(bind)
	if err != nil {
		return "", fmt.Errorf("parse paths.api_bind %q: %w", bind, err)
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port), nil
}

// Submit queues a URL job.
func (c *Client) Submit(ctx context.Context, videoURL, title string) (api.SubmitResponse, error) {
	body, err := json.Marshal(api.SubmitRequest{URL: videoURL, Title: title})
	if err != nil {
		return api.SubmitResponse{}, err
	}
	var resp api.SubmitResponse
	err = c.do(ctx, http.MethodPost, "/api/jobs", "application/json", bytes.NewReader(body), &resp)
	return resp, err
}

// Upload sends a local audio or video file as an upload job.
func (c *Client) Upload(ctx context.Context, path, title string) (api.SubmitResponse, error) {
	file, err := os.Open(path)
	if err != nil {
		return api.SubmitResponse{}, fmt.Errorf("open upload: %w", err)
	}
	defer file.Close()

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	go func() {
		err := func() error {
			if title != "" {
				if err := writer.WriteField("title", title); err != nil {
					return err
				}
			}
			part, err := writer.CreateFormFile("file", filepath.Base(path))
			if err != nil {
				return err
			}
			if _, err := io.Copy(part, file); err != nil {
				return err
			}
			return writer.Close()
		}()
		pw.CloseWithError(err)
	}()

	var resp api.SubmitResponse
	uploadClient := *c
	uploadClient.http = &http.Client{}
	err = uploadClient.do(ctx, http.MethodPost, "/api/jobs", writer.FormDataContentType(), pr, &resp)
	return resp, err
}

// Job fetches a single job.
func (c *Client) Job(ctx context.Context, id int64) (api.Job, error) {
	var job api.Job
	err := c.do(ctx, http.MethodGet, "/api/jobs/"+strconv.FormatInt(id, 10), "", nil, &job)
	return job, err
}

// Jobs lists recent jobs.
func (c *Client) Jobs(ctx context.Context, limit int) ([]api.Job, error) {
	var resp api.JobListResponse
	path := "/api/jobs"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	if err := c.do(ctx, http.MethodGet, path, "", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// TriggerTranscript asks the daemon to transcribe the episode guid.
func (c *Client) TriggerTranscript(ctx context.Context, guid string) (api.TriggerResponse, error) {
	var resp api.TriggerResponse
	err := c.do(ctx, http.MethodPost, "/api/transcripts/"+url.PathEscape(guid), "", nil, &resp)
	return resp, err
}

// Watch streams snapshots of job id to fn until the job reaches a terminal
// state, the daemon closes the stream, or ctx ends.
func (c *Client) Watch(ctx context.Context, id int64, fn func(api.Job)) error {
	target, err := url.Parse(c.baseURL + "/api/jobs/" + strconv.FormatInt(id, 10) + "/events")
	if err != nil {
		return err
	}
	switch target.Scheme {
	case "https":
		target.Scheme = "wss"
	default:
		target.Scheme = "ws"
	}
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	conn, resp, err := c.dialer.DialContext(ctx, target.String(), header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return decodeError(resp)
		}
		return fmt.Errorf("connect to daemon: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		var job api.Job
		if err := conn.ReadJSON(&job); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read job events: %w", err)
		}
		if fn != nil {
			fn(job)
		}
	}
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("connect to daemon: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode daemon response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, &payload); err != nil || payload.Error == "" {
		payload.Error = strings.TrimSpace(string(data))
	}
	return &APIError{Status: resp.StatusCode, Message: payload.Error}
}
