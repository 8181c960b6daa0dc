package store

import "context"

// Writer is the only way to mutate agents, activities, and reviews.
// Every method is atomic: it either applies fully (including its paired activity
// record and retention trim) or leaves no trace.
type Writer interface {
	// CreateAgent provisions a new agent with status idle. ErrConflict if the id exists.
	CreateAgent(ctx context.Context, a NewAgent) (Agent, error)
	// LogActivity appends one record and refreshes the owning agent's updated_at.
	LogActivity(ctx context.Context, a NewActivity) (Activity, error)
	// UpdateAgentTask sets current_task, forces status active, and logs a task_update record.
	UpdateAgentTask(ctx context.Context, agentID, task string) (Agent, Activity, error)
	// UpdateAgentStatus sets status and logs a status_change record.
	UpdateAgentStatus(ctx context.Context, agentID string, status AgentStatus) (Agent, Activity, error)
	// AddReview inserts a pending review and logs a review_created record.
	AddReview(ctx context.Context, r NewReview) (Review, Activity, error)
	// ResolveReview marks a pending review resolved and logs a review_resolved record.
	// ErrNotFound if missing, ErrAlreadyResolved if it was resolved before.
	ResolveReview(ctx context.Context, reviewID int64) (Review, Activity, error)
	// SeedFleet creates the given agents, skipping ids that already exist.
	SeedFleet(ctx context.Context, agents []NewAgent) error
}

// Reader assembles the projections consumers render. It never mutates.
type Reader interface {
	// ListAgents returns every agent ordered by name.
	ListAgents(ctx context.Context) ([]Agent, error)
	GetAgent(ctx context.Context, id string) (Agent, error)
	// RecentActivities returns the newest records across all agents (timestamp DESC, id DESC).
	// limit <= 0 uses the store's default limit.
	RecentActivities(ctx context.Context, limit int) ([]Activity, error)
	// AgentActivities is RecentActivities restricted to one agent. ErrNotFound for unknown agents.
	AgentActivities(ctx context.Context, agentID string, limit int) ([]Activity, error)
	// PendingReviews returns pending reviews by priority rank, then created_at DESC.
	PendingReviews(ctx context.Context) ([]Review, error)
	// GetReview returns a review in any status.
	GetReview(ctx context.Context, id int64) (Review, error)
	// Projections returns ListAgents, PendingReviews and RecentActivities(limit) read from one
	// consistent view of the store.
	Projections(ctx context.Context, limit int) (Projections, error)
}

// Projections is everything a snapshot renders.
type Projections struct {
	Agents     []Agent
	Reviews    []Review
	Activities []Activity
}

// Store is the persistence contract for the fleet.
// Implementations: the SQLite store in this package and *postgres.Store.
type Store interface {
	Writer
	Reader
	Close() error
}
