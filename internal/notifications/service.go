package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"yt2pod/internal/config"
)

const userAgent = "yt2pod/1.0"

// Event identifies a notification-worthy milestone.
type Event string

const (
	EventJobCompleted        Event = "job_completed"
	EventJobDuplicate        Event = "job_duplicate"
	EventJobFailed           Event = "job_failed"
	EventPublishFailed       Event = "publish_failed"
	EventTranscriptCompleted Event = "transcript_completed"
	EventTranscriptFailed    Event = "transcript_failed"
	EventTest                Event = "test"
)

// Payload carries event fields keyed by name.
type Payload map[string]string

// Service publishes events. Implementations must be safe for concurrent use.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	if !strings.Contains(topic, "://") {
		topic = "https://ntfy.sh/" + strings.TrimPrefix(topic, "/")
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventJobCompleted:        cfg.Notifications.JobCompleted,
			EventJobDuplicate:        cfg.Notifications.JobCompleted,
			EventJobFailed:           cfg.Notifications.JobFailed,
			EventPublishFailed:       cfg.Notifications.JobFailed,
			EventTranscriptCompleted: cfg.Notifications.Transcripts,
			EventTranscriptFailed:    cfg.Notifications.Transcripts,
			EventTest:                true,
		},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if !n.enabled[event] {
		return nil
	}
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	get := func(key string) string { return strings.TrimSpace(payload[key]) }
	switch event {
	case EventJobCompleted:
		body := fmt.Sprintf("🎧 New episode: %s", get("title"))
		if parts := get("parts"); parts != "" && parts != "1" {
			body = fmt.Sprintf("%s (%s parts)", body, parts)
		}
		return message{title: "yt2pod - Episode Added", body: body, tags: []string{"yt2pod", "episode", "added"}}, true
	case EventJobDuplicate:
		return message{
			title: "yt2pod - Already in Feed",
			body:  fmt.Sprintf("Skipped duplicate: %s", get("title")),
			tags:  []string{"yt2pod", "episode", "duplicate"},
		}, true
	case EventJobFailed:
		return message{
			title:    "yt2pod - Job Failed",
			body:     fmt.Sprintf("❌ Job %s failed: %s", get("job_id"), get("error")),
			tags:     []string{"yt2pod", "error", "alert"},
			priority: "high",
		}, true
	case EventPublishFailed:
		return message{
			title:    "yt2pod - Publish Failed",
			body:     fmt.Sprintf("Feed saved locally but not published: %s", get("error")),
			tags:     []string{"yt2pod", "publish", "warning"},
			priority: "high",
		}, true
	case EventTranscriptCompleted:
		return message{
			title: "yt2pod - Transcript Ready",
			body:  fmt.Sprintf("📝 Transcript ready: %s", get("guid")),
			tags:  []string{"yt2pod", "transcript", "completed"},
		}, true
	case EventTranscriptFailed:
		return message{
			title: "yt2pod - Transcript Failed",
			body:  fmt.Sprintf("Transcript failed for %s: %s", get("guid"), get("error")),
			tags:  []string{"yt2pod", "transcript", "error"},
		}, true
	case EventTest:
		return message{
			title:    "yt2pod - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"yt2pod", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }

// Noop returns a service that drops every event.
func Noop() Service { return noopService{} }
