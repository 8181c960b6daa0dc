package mcp

import (
	"context"
	"testing"

	"github.com/buppyai/puppy-station/pkg/models"
)

type recordingAPI struct {
	agent    string
	priority string
	task     string
	status   string
	activity models.ActivityRequest
}

func (r *recordingAPI) LogActivity(_ context.Context, agentID string, req models.ActivityRequest) (*models.Activity, error) {
	r.agent, r.activity = agentID, req
	return &models.Activity{ID: 1, AgentID: agentID, Type: req.Type, Description: req.Description}, nil
}

func (r *recordingAPI) UpdateTask(_ context.Context, agentID, task string) (*models.AgentUpdate, error) {
	r.agent, r.task = agentID, task
	return &models.AgentUpdate{}, nil
}

func (r *recordingAPI) UpdateStatus(_ context.Context, agentID, status string) (*models.AgentUpdate, error) {
	r.agent, r.status = agentID, status
	return &models.AgentUpdate{}, nil
}

func (r *recordingAPI) AddReview(_ context.Context, agentID, question, priority string) (*models.Review, error) {
	r.agent, r.priority = agentID, priority
	return &models.Review{ID: 5, AgentID: agentID, Question: question, Priority: priority}, nil
}

func TestToolkitBakesInAgent(t *testing.T) {
	ctx := context.Background()
	api := &recordingAPI{}
	tk := &Toolkit{API: api, AgentID: "fishy"}

	if _, err := tk.Log(ctx, "command", "go test", map[string]any{"pkg": "./..."}); err != nil {
		t.Fatal(err)
	}
	if api.agent != "fishy" || api.activity.Type != "command" || api.activity.Metadata["pkg"] != "./..." {
		t.Fatalf("log: %+v", api)
	}
	if err := tk.StartTask(ctx, "tests"); err != nil || api.task != "tests" {
		t.Fatalf("task: %v %+v", err, api)
	}
	if err := tk.SetStatus(ctx, "idle"); err != nil || api.status != "idle" {
		t.Fatalf("status: %v %+v", err, api)
	}
	r, err := tk.AskReview(ctx, "merge?", "")
	if err != nil || r.Priority != models.PriorityMedium || api.agent != "fishy" {
		t.Fatalf("review: %v %+v", err, r)
	}
}

func TestToolkitRequiresAgent(t *testing.T) {
	tk := &Toolkit{API: &recordingAPI{}}
	if _, err := tk.Log(context.Background(), "command", "x", nil); err == nil {
		t.Fatal("expected error without agent id")
	}
	if err := tk.StartTask(context.Background(), "x"); err == nil {
		t.Fatal("expected error without agent id")
	}
}
