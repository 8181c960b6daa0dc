package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/buppyai/puppy-station/internal/fleet"
	"github.com/buppyai/puppy-station/internal/store"
)

func TestSlackWebhook_Notify(t *testing.T) {
	got := make(chan map[string]any, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method: %s", r.Method)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		got <- body
	}))
	defer srv.Close()

	c := SlackWebhook{WebhookURL: srv.URL, Channel: "#fleet"}
	if err := c.Notify(context.Background(), "hello"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	body := <-got
	if body["text"] != "hello" || body["channel"] != "#fleet" {
		t.Fatalf("payload = %v", body)
	}
}

func TestSlackWebhook_errors(t *testing.T) {
	if err := (SlackWebhook{}).Notify(context.Background(), "msg"); err == nil {
		t.Fatal("expected error when webhook URL empty")
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()
	if err := (SlackWebhook{WebhookURL: srv.URL}).Notify(context.Background(), "msg"); err == nil {
		t.Fatal("expected error on 403")
	}
}

type captured struct{ ch chan string }

func (c captured) Name() string { return "test" }
func (c captured) Notify(_ context.Context, msg string) error {
	c.ch <- msg
	return nil
}

func TestReviewAlertsFiltersByPriority(t *testing.T) {
	t.Parallel()
	n := captured{ch: make(chan string, 8)}
	alerts := NewReviewAlerts(n, "", nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go alerts.Run(ctx)

	review := func(id int64, p store.Priority) fleet.StateChange {
		return fleet.StateChange{Kind: fleet.KindReview, Review: &store.Review{ID: id, AgentID: "fishy", Question: "restart db?", Priority: p}}
	}
	alerts.OnChange(review(1, store.PriorityLow))
	alerts.OnChange(review(2, store.PriorityMedium))
	alerts.OnChange(fleet.StateChange{Kind: fleet.KindReviewResolved, Review: &store.Review{ID: 3, Priority: store.PriorityHigh}})
	alerts.OnChange(review(4, store.PriorityHigh))

	select {
	case msg := <-n.ch:
		if !strings.Contains(msg, "#4") || !strings.Contains(msg, "fishy") {
			t.Fatalf("alert = %q", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no alert sent")
	}
	select {
	case msg := <-n.ch:
		t.Fatalf("unexpected alert %q", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestReviewAlertsNeverBlocks(t *testing.T) {
	t.Parallel()
	alerts := NewReviewAlerts(captured{ch: make(chan string)}, store.PriorityLow, nil)
	// No Run loop: the queue fills and further alerts are dropped instead of blocking.
	for i := 0; i < queueSize*2; i++ {
		alerts.OnChange(fleet.StateChange{Kind: fleet.KindReview, Review: &store.Review{ID: int64(i), Priority: store.PriorityHigh}})
	}
	if len(alerts.queue) != queueSize {
		t.Fatalf("queue = %d", len(alerts.queue))
	}
}
