package mcp

import (
	"context"
	"errors"

	"github.com/buppyai/puppy-station/pkg/models"
)

// API is the subset of the server API a toolkit needs. *client.Client implements it.
type API interface {
	LogActivity(ctx context.Context, agentID string, req models.ActivityRequest) (*models.Activity, error)
	UpdateTask(ctx context.Context, agentID, task string) (*models.AgentUpdate, error)
	UpdateStatus(ctx context.Context, agentID, status string) (*models.AgentUpdate, error)
	AddReview(ctx context.Context, agentID, question, priority string) (*models.Review, error)
}

// Toolkit exposes the reporting calls of one agent. The agent id is baked into every call so
// a wrapped agent process cannot report as another fleet member.
type Toolkit struct {
	API     API
	AgentID string
}

var errNoAgent = errors.New("toolkit: agent id is required")

// Log appends an activity record for this agent.
func (t *Toolkit) Log(ctx context.Context, typ, description string, metadata map[string]any) (*models.Activity, error) {
	if t.AgentID == "" {
		return nil, errNoAgent
	}
	return t.API.LogActivity(ctx, t.AgentID, models.ActivityRequest{Type: typ, Description: description, Metadata: metadata})
}

// StartTask sets this agent's current task, which also marks it busy.
func (t *Toolkit) StartTask(ctx context.Context, task string) error {
	if t.AgentID == "" {
		return errNoAgent
	}
	_, err := t.API.UpdateTask(ctx, t.AgentID, task)
	return err
}

// SetStatus sets this agent's status; idle clears the current task.
func (t *Toolkit) SetStatus(ctx context.Context, status string) error {
	if t.AgentID == "" {
		return errNoAgent
	}
	_, err := t.API.UpdateStatus(ctx, t.AgentID, status)
	return err
}

// AskReview queues a question for a human. An empty priority means medium.
func (t *Toolkit) AskReview(ctx context.Context, question, priority string) (*models.Review, error) {
	if t.AgentID == "" {
		return nil, errNoAgent
	}
	if priority == "" {
		priority = models.PriorityMedium
	}
	return t.API.AddReview(ctx, t.AgentID, question, priority)
}
