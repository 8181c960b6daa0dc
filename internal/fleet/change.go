package fleet

import (
	"github.com/buppyai/puppy-station/internal/store"
	"github.com/buppyai/puppy-station/pkg/models"
)

// Kind tags a StateChange; the values double as push message types.
type Kind string

const (
	KindAgent          Kind = models.MsgAgent
	KindActivity       Kind = models.MsgActivity
	KindTaskUpdate     Kind = models.MsgTaskUpdate
	KindStatusUpdate   Kind = models.MsgStatusUpdate
	KindReview         Kind = models.MsgReview
	KindReviewResolved Kind = models.MsgReviewResolved
)

// StateChange describes one committed mutation. Exactly one of Agent, Activity, Review is set.
type StateChange struct {
	Seq      uint64
	Kind     Kind
	AgentID  string
	Agent    *store.Agent
	Activity *store.Activity
	Review   *store.Review
}

// Payload returns the wire form of the changed entity.
func (c StateChange) Payload() any {
	switch {
	case c.Agent != nil:
		return AgentModel(*c.Agent)
	case c.Activity != nil:
		return ActivityModel(*c.Activity)
	case c.Review != nil:
		return ReviewModel(*c.Review)
	}
	return nil
}

// Listener observes state changes. OnChange runs while the fleet write lock is held and must not block.
type Listener interface {
	OnChange(StateChange)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(StateChange)

func (f ListenerFunc) OnChange(c StateChange) { f(c) }

// Publisher accepts wire payloads for fan-out; *broadcast.Hub implements it.
type Publisher interface {
	Publish(kind string, seq uint64, data any)
}

// PublishTo forwards every change to p.
func PublishTo(p Publisher) Listener {
	return ListenerFunc(func(c StateChange) {
		p.Publish(string(c.Kind), c.Seq, c.Payload())
	})
}

func AgentModel(a store.Agent) models.Agent {
	return models.Agent{
		ID:          a.ID,
		Name:        a.Name,
		Emoji:       a.Emoji,
		Role:        a.Role,
		Model:       a.Model,
		Status:      string(a.Status),
		CurrentTask: a.CurrentTask,
		UpdatedAt:   a.UpdatedAt,
	}
}

func ActivityModel(a store.Activity) models.Activity {
	meta := map[string]any(a.Metadata)
	if meta == nil {
		meta = map[string]any{}
	}
	return models.Activity{
		ID:          a.ID,
		AgentID:     a.AgentID,
		Type:        string(a.Type),
		Description: a.Description,
		Metadata:    meta,
		Timestamp:   a.Timestamp,
	}
}

func ReviewModel(r store.Review) models.Review {
	return models.Review{
		ID:         r.ID,
		AgentID:    r.AgentID,
		Question:   r.Question,
		Priority:   string(r.Priority),
		Status:     string(r.Status),
		CreatedAt:  r.CreatedAt,
		ResolvedAt: r.ResolvedAt,
	}
}

func AgentModels(in []store.Agent) []models.Agent {
	out := make([]models.Agent, 0, len(in))
	for _, a := range in {
		out = append(out, AgentModel(a))
	}
	return out
}

func ActivityModels(in []store.Activity) []models.Activity {
	out := make([]models.Activity, 0, len(in))
	for _, a := range in {
		out = append(out, ActivityModel(a))
	}
	return out
}

func ReviewModels(in []store.Review) []models.Review {
	out := make([]models.Review, 0, len(in))
	for _, r := range in {
		out = append(out, ReviewModel(r))
	}
	return out
}
