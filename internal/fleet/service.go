// Package fleet is the single mutation surface over the store. Every successful write is
// followed, in commit order, by its StateChanges stamped with a strictly increasing sequence.
package fleet

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/buppyai/puppy-station/internal/otel"
	"github.com/buppyai/puppy-station/internal/store"
	"github.com/buppyai/puppy-station/pkg/models"
	"github.com/google/uuid"
)

// Service wraps a store.Store. Writes are serialized; reads pass straight through.
type Service struct {
	st    store.Store
	log   *slog.Logger
	epoch string

	// mu covers the store write and the emission of its changes, so sequence order is commit order.
	mu        sync.Mutex
	seq       atomic.Uint64
	listeners []Listener
}

// New returns a Service over st. A nil logger uses slog.Default().
func New(st store.Store, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{st: st, log: log, epoch: uuid.NewString()}
}

// AddListener registers l for every subsequent change.
func (s *Service) AddListener(l Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

// Epoch identifies this Service instance. Sequences restart from 0 under a new epoch.
func (s *Service) Epoch() string { return s.epoch }

// Seq is the sequence of the last emitted change (0 before any write).
func (s *Service) Seq() uint64 { return s.seq.Load() }

// Store returns the underlying store for read-only callers such as metrics gauges.
func (s *Service) Store() store.Reader { return s.st }

// emit must be called with mu held.
func (s *Service) emit(ctx context.Context, changes ...StateChange) {
	for _, c := range changes {
		c.Seq = s.seq.Add(1)
		var actType string
		if c.Activity != nil {
			actType = string(c.Activity.Type)
		}
		otel.RecordStateChange(ctx, string(c.Kind), actType)
		for _, l := range s.listeners {
			l.OnChange(c)
		}
	}
}

func activityChange(a store.Activity) StateChange {
	return StateChange{Kind: KindActivity, AgentID: a.AgentID, Activity: &a}
}

// CreateAgent provisions an agent and emits agent.
func (s *Service) CreateAgent(ctx context.Context, in store.NewAgent) (store.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.st.CreateAgent(ctx, in)
	if err != nil {
		return store.Agent{}, err
	}
	s.log.Info("agent created", "agent", a.ID)
	s.emit(ctx, StateChange{Kind: KindAgent, AgentID: a.ID, Agent: &a})
	return a, nil
}

// SeedFleet creates missing agents from the seed list. Agents that already exist are left alone.
func (s *Service) SeedFleet(ctx context.Context, agents []store.NewAgent) error {
	existing, err := s.st.ListAgents(ctx)
	if err != nil {
		return err
	}
	have := make(map[string]bool, len(existing))
	for _, a := range existing {
		have[a.ID] = true
	}
	for _, a := range agents {
		if have[a.ID] {
			continue
		}
		if _, err := s.CreateAgent(ctx, a); err != nil && !isConflict(err) {
			return err
		}
	}
	return nil
}

// LogActivity appends one record and emits activity.
func (s *Service) LogActivity(ctx context.Context, in store.NewActivity) (store.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.st.LogActivity(ctx, in)
	if err != nil {
		return store.Activity{}, err
	}
	s.emit(ctx, activityChange(a))
	return a, nil
}

// UpdateAgentTask sets the task and emits task_update then activity.
func (s *Service) UpdateAgentTask(ctx context.Context, agentID, task string) (store.Agent, store.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, act, err := s.st.UpdateAgentTask(ctx, agentID, task)
	if err != nil {
		return store.Agent{}, store.Activity{}, err
	}
	s.emit(ctx, StateChange{Kind: KindTaskUpdate, AgentID: a.ID, Agent: &a}, activityChange(act))
	return a, act, nil
}

// UpdateAgentStatus sets the status and emits status_update then activity.
func (s *Service) UpdateAgentStatus(ctx context.Context, agentID string, status store.AgentStatus) (store.Agent, store.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, act, err := s.st.UpdateAgentStatus(ctx, agentID, status)
	if err != nil {
		return store.Agent{}, store.Activity{}, err
	}
	s.emit(ctx, StateChange{Kind: KindStatusUpdate, AgentID: a.ID, Agent: &a}, activityChange(act))
	return a, act, nil
}

// AddReview queues a review and emits review then activity.
func (s *Service) AddReview(ctx context.Context, in store.NewReview) (store.Review, store.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, act, err := s.st.AddReview(ctx, in)
	if err != nil {
		return store.Review{}, store.Activity{}, err
	}
	otel.RecordReviewEvent(ctx, "created")
	s.log.Info("review created", "review", r.ID, "agent", r.AgentID, "priority", r.Priority)
	s.emit(ctx, StateChange{Kind: KindReview, AgentID: r.AgentID, Review: &r}, activityChange(act))
	return r, act, nil
}

// ResolveReview resolves a pending review and emits review-resolved then activity.
// A second resolve fails with store.ErrAlreadyResolved and emits nothing.
func (s *Service) ResolveReview(ctx context.Context, id int64) (store.Review, store.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, act, err := s.st.ResolveReview(ctx, id)
	if err != nil {
		return store.Review{}, store.Activity{}, err
	}
	otel.RecordReviewEvent(ctx, "resolved")
	s.log.Info("review resolved", "review", r.ID, "agent", r.AgentID)
	s.emit(ctx, StateChange{Kind: KindReviewResolved, AgentID: r.AgentID, Review: &r}, activityChange(act))
	return r, act, nil
}

func (s *Service) ListAgents(ctx context.Context) ([]store.Agent, error) { return s.st.ListAgents(ctx) }

func (s *Service) GetAgent(ctx context.Context, id string) (store.Agent, error) {
	return s.st.GetAgent(ctx, id)
}

func (s *Service) RecentActivities(ctx context.Context, limit int) ([]store.Activity, error) {
	return s.st.RecentActivities(ctx, limit)
}

func (s *Service) AgentActivities(ctx context.Context, agentID string, limit int) ([]store.Activity, error) {
	return s.st.AgentActivities(ctx, agentID, limit)
}

func (s *Service) PendingReviews(ctx context.Context) ([]store.Review, error) {
	return s.st.PendingReviews(ctx)
}

func (s *Service) GetReview(ctx context.Context, id int64) (store.Review, error) {
	return s.st.GetReview(ctx, id)
}

// Snapshot returns the full state. Its Seq is read before the store, so every change up to
// Seq is reflected; later changes may be too. The three projections come from one read
// transaction and always agree with each other.
func (s *Service) Snapshot(ctx context.Context, activityLimit int) (models.Snapshot, error) {
	seq := s.Seq()
	p, err := s.st.Projections(ctx, activityLimit)
	if err != nil {
		return models.Snapshot{}, err
	}
	return models.Snapshot{
		Epoch:      s.epoch,
		Seq:        seq,
		Agents:     AgentModels(p.Agents),
		Reviews:    ReviewModels(p.Reviews),
		Activities: ActivityModels(p.Activities),
	}, nil
}

// Counts feeds the pending-review and agents-by-status gauges.
func (s *Service) Counts(ctx context.Context) (int64, map[string]int64, error) {
	reviews, err := s.st.PendingReviews(ctx)
	if err != nil {
		return 0, nil, err
	}
	agents, err := s.st.ListAgents(ctx)
	if err != nil {
		return 0, nil, err
	}
	byStatus := map[string]int64{}
	for _, a := range agents {
		byStatus[string(a.Status)]++
	}
	return int64(len(reviews)), byStatus, nil
}
