// Package notify posts alerts about new reviews to chat integrations.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/buppyai/puppy-station/internal/fleet"
	"github.com/buppyai/puppy-station/internal/store"
)

// Notifier sends a message to its default target.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, message string) error
}

// SlackWebhook sends messages to a Slack channel via incoming webhook URL.
type SlackWebhook struct {
	WebhookURL string
	Channel    string // optional override
	Username   string // optional
	HTTPClient *http.Client
}

func (s SlackWebhook) Name() string { return "slack" }

func (s SlackWebhook) Notify(ctx context.Context, message string) error {
	if s.WebhookURL == "" {
		return fmt.Errorf("slack webhook URL not set")
	}
	payload := map[string]any{"text": message}
	if s.Channel != "" {
		payload["channel"] = s.Channel
	}
	if s.Username != "" {
		payload["username"] = s.Username
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	hc := s.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("slack webhook returned %d", resp.StatusCode)
	}
	return nil
}

const (
	queueSize   = 32
	sendTimeout = 10 * time.Second
)

// ReviewAlerts is a fleet.Listener that forwards new reviews at or above MinPriority to a
// Notifier. OnChange only enqueues; Run does the sending, so a slow webhook never holds the
// fleet write lock. Alerts beyond the queue are dropped and logged.
type ReviewAlerts struct {
	Notifier    Notifier
	MinPriority store.Priority
	Log         *slog.Logger

	queue chan string
}

// NewReviewAlerts returns alerts for reviews ranked at or above minPriority (empty means high).
func NewReviewAlerts(n Notifier, minPriority store.Priority, log *slog.Logger) *ReviewAlerts {
	if minPriority == "" {
		minPriority = store.PriorityHigh
	}
	if log == nil {
		log = slog.Default()
	}
	return &ReviewAlerts{Notifier: n, MinPriority: minPriority, Log: log, queue: make(chan string, queueSize)}
}

var _ fleet.Listener = (*ReviewAlerts)(nil)

func (r *ReviewAlerts) OnChange(c fleet.StateChange) {
	if c.Kind != fleet.KindReview || c.Review == nil {
		return
	}
	if c.Review.Priority.Rank() > r.MinPriority.Rank() {
		return
	}
	msg := Format(*c.Review)
	select {
	case r.queue <- msg:
	default:
		r.Log.Warn("review alert dropped, queue full", "review", c.Review.ID)
	}
}

// Format renders the alert text for a review.
func Format(rv store.Review) string {
	return fmt.Sprintf(":rotating_light: [%s] review #%d from %s: %s", rv.Priority, rv.ID, rv.AgentID, rv.Question)
}

// Run sends queued alerts until ctx is done.
func (r *ReviewAlerts) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-r.queue:
			sctx, cancel := context.WithTimeout(ctx, sendTimeout)
			if err := r.Notifier.Notify(sctx, msg); err != nil {
				r.Log.Warn("review alert failed", "notifier", r.Notifier.Name(), "err", err)
			}
			cancel()
		}
	}
}
