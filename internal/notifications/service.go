package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"animate3d/internal/config"
)

const userAgent = "animate3d/0.1.0"

// Event names a notification-worthy job lifecycle milestone.
type Event string

const (
	EventJobSubmitted     Event = "job_submitted"
	EventJobCompleted     Event = "job_completed"
	EventJobFailed        Event = "job_failed"
	EventJobTimedOut      Event = "job_timed_out"
	EventBatchCompleted   Event = "batch_completed"
	EventDownloadFinished Event = "download_finished"
	EventError            Event = "error"
	EventTest             Event = "test"
)

// Payload carries event fields. Keys are event specific.
type Payload map[string]any

// Service publishes job events.
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

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:  topic,
		client:    &http.Client{Timeout: timeout},
		completed: cfg.Notifications.JobCompleted,
		failed:    cfg.Notifications.JobFailed,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint  string
	client    *http.Client
	completed bool
	failed    bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := n.format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) format(event Event, payload Payload) (message, bool) {
	rid := payloadString(payload, "rid")
	switch event {
	case EventJobCompleted:
		if !n.completed {
			return message{}, false
		}
		body := fmt.Sprintf("✅ Animation ready: %s", rid)
		if name := payloadString(payload, "name"); name != "" {
			body = fmt.Sprintf("✅ Animation ready: %s (%s)", name, rid)
		}
		return message{
			title: "animate3d - Job Complete",
			body:  body,
			tags:  []string{"animate3d", "job", "completed"},
		}, true
	case EventJobFailed:
		if !n.failed {
			return message{}, false
		}
		body := fmt.Sprintf("❌ Job %s failed", rid)
		if reason := payloadString(payload, "error"); reason != "" {
			body = fmt.Sprintf("%s: %s", body, reason)
		}
		return message{
			title:    "animate3d - Job Failed",
			body:     body,
			tags:     []string{"animate3d", "job", "failed"},
			priority: "high",
		}, true
	case EventJobTimedOut:
		if !n.failed {
			return message{}, false
		}
		body := fmt.Sprintf("⏱️ Job %s timed out", rid)
		if after := payloadString(payload, "after"); after != "" {
			body = fmt.Sprintf("%s after %s", body, after)
		}
		return message{
			title:    "animate3d - Job Timed Out",
			body:     body,
			tags:     []string{"animate3d", "job", "timeout"},
			priority: "high",
		}, true
	case EventBatchCompleted:
		succeeded := payloadInt(payload, "succeeded")
		failedCount := payloadInt(payload, "failed")
		duration := payloadDuration(payload, "duration")
		title := "animate3d - Batch Complete"
		body := fmt.Sprintf("Batch complete: %d jobs finished in %s", succeeded, duration)
		if failedCount > 0 {
			title = "animate3d - Batch Complete (with errors)"
			body = fmt.Sprintf("Batch complete: %d succeeded, %d failed in %s", succeeded, failedCount, duration)
		}
		return message{
			title: title,
			body:  body,
			tags:  []string{"animate3d", "batch", "completed"},
		}, true
	case EventError:
		var b strings.Builder
		b.WriteString("❌ Error")
		if label := payloadString(payload, "context"); label != "" {
			b.WriteString(" with ")
			b.WriteString(label)
		}
		b.WriteString(": ")
		if reason := payloadString(payload, "error"); reason != "" {
			b.WriteString(reason)
		} else {
			b.WriteString("unknown")
		}
		return message{
			title:    "animate3d - Error",
			body:     b.String(),
			tags:     []string{"animate3d", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "animate3d - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"animate3d", "test"},
			priority: "low",
		}, true
	default:
		// Submission and download events are logged locally only.
		return message{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
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

func payloadString(p Payload, key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case error:
		return strings.TrimSpace(t.Error())
	case fmt.Stringer:
		return strings.TrimSpace(t.String())
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func payloadInt(p Payload, key string) int {
	switch t := p[key].(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	}
	return 0
}

func payloadDuration(p Payload, key string) string {
	d, _ := p[key].(time.Duration)
	d = d.Round(time.Second)
	if d <= 0 {
		return "0s"
	}
	return d.String()
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
