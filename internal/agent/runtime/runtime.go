// Package runtime runs a local agent process and relays what it reports to the station.
// The process writes one JSON event per stdout line; other lines pass through untouched.
package runtime

import (
	"context"
	"time"

	"github.com/buppyai/puppy-station/pkg/models"
)

// Event types with a dedicated meaning. Any other type is logged as an activity of that type.
const (
	EventTask   = "task"
	EventStatus = "status"
	EventReview = "review"
)

// Event is one line of agent output, e.g.
//
//	{"type":"file_update","description":"Edited main.go","data":{"path":"main.go"}}
//	{"type":"review","description":"Deploy to prod?","priority":"high"}
type Event struct {
	Type        string         `json:"type"`
	Description string         `json:"description"`
	Priority    string         `json:"priority,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// Reporter receives relayed events for one agent; *mcp.Toolkit implements it.
type Reporter interface {
	Log(ctx context.Context, typ, description string, metadata map[string]any) (*models.Activity, error)
	StartTask(ctx context.Context, task string) error
	SetStatus(ctx context.Context, status string) error
	AskReview(ctx context.Context, question, priority string) (*models.Review, error)
}

// Relay forwards ev to r.
func Relay(ctx context.Context, r Reporter, ev Event) error {
	switch ev.Type {
	case EventTask:
		return r.StartTask(ctx, ev.Description)
	case EventStatus:
		return r.SetStatus(ctx, ev.Description)
	case EventReview:
		_, err := r.AskReview(ctx, ev.Description, ev.Priority)
		return err
	default:
		md := ev.Data
		if !ev.Timestamp.IsZero() {
			md = make(map[string]any, len(ev.Data)+1)
			for k, v := range ev.Data {
				md[k] = v
			}
			md["reported_at"] = ev.Timestamp.UTC().Format(time.RFC3339Nano)
		}
		_, err := r.Log(ctx, ev.Type, ev.Description, md)
		return err
	}
}
