package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Default bounds for the activity log.
const (
	DefaultPerAgentRetention = 50
	DefaultGlobalRetention   = 1000
	DefaultLimit             = 20
)

// Options tunes retention and query limits. Zero values take the defaults;
// a negative GlobalRetention disables the global bound.
type Options struct {
	PerAgentRetention int
	GlobalRetention   int
	DefaultLimit      int
}

// WithDefaults fills zero fields.
func (o Options) WithDefaults() Options {
	if o.PerAgentRetention <= 0 {
		o.PerAgentRetention = DefaultPerAgentRetention
	}
	if o.GlobalRetention == 0 {
		o.GlobalRetention = DefaultGlobalRetention
	}
	if o.DefaultLimit <= 0 {
		o.DefaultLimit = DefaultLimit
	}
	return o
}

// Limit resolves a caller-supplied limit.
func (o Options) Limit(n int) int {
	if n <= 0 {
		return o.DefaultLimit
	}
	return n
}

// PriorityRankSQL orders reviews by rank; shared by both SQL dialects.
const PriorityRankSQL = `CASE priority WHEN 'high' THEN 1 WHEN 'medium' THEN 2 WHEN 'low' THEN 3 ELSE 4 END`

// Clock hands out non-decreasing UTC timestamps for inserts. Safe for concurrent use.
type Clock struct {
	mu   sync.Mutex
	last time.Time
	Now  func() time.Time
}

// Observe raises the floor to t (e.g. the newest timestamp found on open).
func (c *Clock) Observe(t time.Time) {
	c.mu.Lock()
	if t.After(c.last) {
		c.last = t
	}
	c.mu.Unlock()
}

// Next returns max(now, last issued).
func (c *Clock) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	t := now().UTC()
	if t.Before(c.last) {
		t = c.last
	}
	c.last = t
	return t
}

// ToNanos and FromNanos convert the on-disk timestamp representation.
func ToNanos(t time.Time) int64 { return t.UTC().UnixNano() }

func FromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

// ValidateNewAgent trims and checks provisioning input.
func ValidateNewAgent(a NewAgent) (NewAgent, error) {
	a.ID = strings.TrimSpace(a.ID)
	a.Name = strings.TrimSpace(a.Name)
	if a.ID == "" {
		return a, fmt.Errorf("%w: agent id required", ErrValidation)
	}
	if a.Name == "" {
		a.Name = a.ID
	}
	return a, nil
}

// ValidateNewActivity checks required fields and normalizes metadata to a non-nil map.
func ValidateNewActivity(a NewActivity) (NewActivity, error) {
	a.AgentID = strings.TrimSpace(a.AgentID)
	a.Type = ActivityType(strings.TrimSpace(string(a.Type)))
	a.Description = strings.TrimSpace(a.Description)
	switch {
	case a.AgentID == "":
		return a, fmt.Errorf("%w: agent id required", ErrValidation)
	case a.Type == "":
		return a, fmt.Errorf("%w: activity type required", ErrValidation)
	case a.Description == "":
		return a, fmt.Errorf("%w: description required", ErrValidation)
	}
	if a.Metadata == nil {
		a.Metadata = Metadata{}
	}
	return a, nil
}

// ValidateNewReview checks the question and resolves the default priority.
func ValidateNewReview(r NewReview) (NewReview, error) {
	r.AgentID = strings.TrimSpace(r.AgentID)
	r.Question = strings.TrimSpace(r.Question)
	if r.AgentID == "" {
		return r, fmt.Errorf("%w: agent id required", ErrValidation)
	}
	if r.Question == "" {
		return r, fmt.Errorf("%w: question required", ErrValidation)
	}
	p, err := ParsePriority(string(r.Priority))
	if err != nil {
		return r, err
	}
	r.Priority = p
	return r, nil
}

// ValidateTask rejects an empty task description.
func ValidateTask(task string) (string, error) {
	task = strings.TrimSpace(task)
	if task == "" {
		return "", fmt.Errorf("%w: task required", ErrValidation)
	}
	return task, nil
}

// TaskActivity is the record paired with UpdateAgentTask.
func TaskActivity(agentID, task string) NewActivity {
	return NewActivity{
		AgentID:     agentID,
		Type:        TypeTaskUpdate,
		Description: "Started working on: " + task,
		Metadata:    Metadata{"task": task},
	}
}

// StatusActivity is the record paired with UpdateAgentStatus.
func StatusActivity(agentID string, prev, next AgentStatus) NewActivity {
	return NewActivity{
		AgentID:     agentID,
		Type:        TypeStatusChange,
		Description: fmt.Sprintf("Status changed from %s to %s", prev, next),
		Metadata:    Metadata{"status": string(next), "previous": string(prev)},
	}
}

// ReviewCreatedActivity is the record paired with AddReview.
func ReviewCreatedActivity(r Review) NewActivity {
	return NewActivity{
		AgentID:     r.AgentID,
		Type:        TypeReviewCreated,
		Description: "Requested review: " + r.Question,
		Metadata:    Metadata{"review_id": r.ID, "priority": string(r.Priority)},
	}
}

// ReviewResolvedActivity is the record paired with ResolveReview.
func ReviewResolvedActivity(r Review) NewActivity {
	return NewActivity{
		AgentID:     r.AgentID,
		Type:        TypeReviewResolved,
		Description: "Review resolved: " + r.Question,
		Metadata:    Metadata{"review_id": r.ID, "priority": string(r.Priority)},
	}
}

// EncodeMetadata and DecodeMetadata convert the JSON column.
func EncodeMetadata(m Metadata) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("%w: metadata is not JSON-encodable: %v", ErrValidation, err)
	}
	return string(b), nil
}

func DecodeMetadata(s string) Metadata {
	m := Metadata{}
	if s == "" {
		return m
	}
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return Metadata{}
	}
	return m
}
