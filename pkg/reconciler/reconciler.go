// Package reconciler keeps a viewer's state converged with the server by merging two paths:
// push messages applied as they arrive, and full snapshots polled on a timer. Every entity
// remembers the sequence it was last applied at, so a stale poll never overwrites a newer push
// and a late push never overwrites a newer snapshot.
package reconciler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/buppyai/puppy-station/pkg/models"
)

const (
	DefaultPollInterval = 5 * time.Second
	DefaultBackoff      = 3 * time.Second
)

// Stream is an open push connection; *client.Stream implements it.
type Stream interface {
	Next(ctx context.Context) (models.Message, error)
	Close() error
}

// View names one independently rendered part of the state.
type View int

const (
	ViewAgents View = iota
	ViewReviews
	ViewActivities
	ViewSystem
	ViewConnection
)

func (v View) String() string {
	switch v {
	case ViewAgents:
		return "agents"
	case ViewReviews:
		return "reviews"
	case ViewActivities:
		return "activities"
	case ViewSystem:
		return "system"
	case ViewConnection:
		return "connection"
	}
	return fmt.Sprintf("view(%d)", int(v))
}

// State is what a renderer draws. Slices are in display order and owned by the receiver.
type State struct {
	Epoch      string
	Seq        uint64
	Connected  bool
	Agents     []models.Agent    // by name
	Reviews    []models.Review   // pending only, highest priority first
	Activities []models.Activity // newest first, at most ActivityLimit
	System     *models.SystemMetrics
}

// Renderer receives the views that changed since the previous render. Render runs with the
// reconciler locked and must not call back into it.
type Renderer interface {
	Render(changed []View, s State)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(changed []View, s State)

func (f RendererFunc) Render(changed []View, s State) { f(changed, s) }

// Config wires the reconciler to its transports.
type Config struct {
	// Poll fetches a full snapshot (e.g. client.Snapshot).
	Poll func(ctx context.Context) (models.Snapshot, error)
	// Dial opens a push stream (e.g. client.Stream).
	Dial          func(ctx context.Context) (Stream, error)
	Renderer      Renderer
	PollInterval  time.Duration
	Backoff       time.Duration
	ActivityLimit int
	Log           *slog.Logger
}

type agentEntry struct {
	v   models.Agent
	seq uint64
}

// reviewEntry keeps resolved reviews as tombstones until a snapshot at or past their
// sequence confirms them gone; a stale poll would otherwise bring them back.
type reviewEntry struct {
	v        models.Review
	seq      uint64
	resolved bool
}

type activityEntry struct {
	v   models.Activity
	seq uint64
}

// Reconciler is safe for concurrent use; Run drives it, or callers apply updates directly.
type Reconciler struct {
	cfg Config

	mu         sync.Mutex
	epoch      string
	seq        uint64
	connected  bool
	agents     map[string]agentEntry
	reviews    map[int64]reviewEntry
	activities map[int64]activityEntry
	system     *models.SystemMetrics
	rendered   State
	hasRender  bool
}

// New returns a reconciler with defaults filled in.
func New(cfg Config) *Reconciler {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.ActivityLimit <= 0 {
		cfg.ActivityLimit = models.DefaultActivityLimit
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	r := &Reconciler{cfg: cfg}
	r.resetLocked()
	return r
}

func (r *Reconciler) resetLocked() {
	r.seq = 0
	r.agents = make(map[string]agentEntry)
	r.reviews = make(map[int64]reviewEntry)
	r.activities = make(map[int64]activityEntry)
}

// State returns the current merged state.
func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stateLocked()
}

// ApplySnapshot merges a full snapshot (init or poll). For each entity the snapshot wins only
// when the entity was last applied at or before the snapshot's sequence; entities missing from
// the snapshot are dropped under the same condition. A snapshot from a new epoch replaces
// everything.
func (r *Reconciler) ApplySnapshot(s models.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applySnapshotLocked(s)
	r.renderLocked()
}

func (r *Reconciler) applySnapshotLocked(s models.Snapshot) {
	if s.Epoch != "" && r.epoch != "" && s.Epoch != r.epoch {
		r.cfg.Log.Info("server restarted, resetting view", "old_epoch", r.epoch, "new_epoch", s.Epoch)
		r.resetLocked()
	}
	if s.Epoch != "" {
		r.epoch = s.Epoch
	}

	seen := make(map[string]bool, len(s.Agents))
	for _, a := range s.Agents {
		seen[a.ID] = true
		if cur, ok := r.agents[a.ID]; !ok || cur.seq <= s.Seq {
			r.agents[a.ID] = agentEntry{v: a, seq: s.Seq}
		}
	}
	for id, cur := range r.agents {
		if !seen[id] && cur.seq <= s.Seq {
			delete(r.agents, id)
		}
	}

	seenRv := make(map[int64]bool, len(s.Reviews))
	for _, rv := range s.Reviews {
		seenRv[rv.ID] = true
		if cur, ok := r.reviews[rv.ID]; !ok || cur.seq <= s.Seq {
			r.reviews[rv.ID] = reviewEntry{v: rv, seq: s.Seq}
		}
	}
	for id, cur := range r.reviews {
		if !seenRv[id] && cur.seq <= s.Seq {
			delete(r.reviews, id)
		}
	}

	seenAct := make(map[int64]bool, len(s.Activities))
	for _, a := range s.Activities {
		seenAct[a.ID] = true
		if cur, ok := r.activities[a.ID]; !ok || cur.seq <= s.Seq {
			r.activities[a.ID] = activityEntry{v: a, seq: s.Seq}
		}
	}
	for id, cur := range r.activities {
		if !seenAct[id] && cur.seq <= s.Seq {
			delete(r.activities, id)
		}
	}

	if s.Seq > r.seq {
		r.seq = s.Seq
	}
}

// ApplyMessage applies one push message in O(1). Messages at or below an entity's last
// applied sequence are ignored. Unknown message types are ignored.
func (r *Reconciler) ApplyMessage(m models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.applyMessageLocked(m); err != nil {
		return err
	}
	r.renderLocked()
	return nil
}

func (r *Reconciler) applyMessageLocked(m models.Message) error {
	switch m.Type {
	case models.MsgInit:
		var s models.Snapshot
		if err := json.Unmarshal(m.Data, &s); err != nil {
			return fmt.Errorf("decode %s: %w", m.Type, err)
		}
		if s.Epoch == "" && s.Seq < r.seq {
			// Without an epoch, a lower init sequence can only mean a restart.
			r.resetLocked()
		}
		r.applySnapshotLocked(s)
		return nil

	case models.MsgAgent, models.MsgTaskUpdate, models.MsgStatusUpdate:
		var a models.Agent
		if err := json.Unmarshal(m.Data, &a); err != nil {
			return fmt.Errorf("decode %s: %w", m.Type, err)
		}
		if cur, ok := r.agents[a.ID]; ok && m.Seq <= cur.seq {
			return nil
		}
		r.agents[a.ID] = agentEntry{v: a, seq: m.Seq}

	case models.MsgActivity:
		var a models.Activity
		if err := json.Unmarshal(m.Data, &a); err != nil {
			return fmt.Errorf("decode %s: %w", m.Type, err)
		}
		if _, ok := r.activities[a.ID]; ok {
			return nil
		}
		r.activities[a.ID] = activityEntry{v: a, seq: m.Seq}
		if len(r.activities) > 2*r.cfg.ActivityLimit {
			r.pruneActivitiesLocked()
		}

	case models.MsgReview, models.MsgReviewResolved:
		var rv models.Review
		if err := json.Unmarshal(m.Data, &rv); err != nil {
			return fmt.Errorf("decode %s: %w", m.Type, err)
		}
		if cur, ok := r.reviews[rv.ID]; ok && m.Seq <= cur.seq {
			return nil
		}
		resolved := m.Type == models.MsgReviewResolved || rv.Status == models.ReviewResolved
		r.reviews[rv.ID] = reviewEntry{v: rv, seq: m.Seq, resolved: resolved}

	case models.MsgSystem:
		var sm models.SystemMetrics
		if err := json.Unmarshal(m.Data, &sm); err != nil {
			return fmt.Errorf("decode %s: %w", m.Type, err)
		}
		r.system = &sm
		return nil

	default:
		return nil
	}
	if m.Seq > r.seq {
		r.seq = m.Seq
	}
	return nil
}

// pruneActivitiesLocked forgets records that can no longer be displayed.
func (r *Reconciler) pruneActivitiesLocked() {
	all := make([]models.Activity, 0, len(r.activities))
	for _, e := range r.activities {
		all = append(all, e.v)
	}
	sortActivities(all)
	for _, a := range all[r.cfg.ActivityLimit:] {
		delete(r.activities, a.ID)
	}
}

func sortActivities(acts []models.Activity) {
	sort.Slice(acts, func(i, j int) bool {
		a, b := acts[i], acts[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.After(b.Timestamp)
		}
		return a.ID > b.ID
	})
}

func (r *Reconciler) setConnected(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected = v
	r.renderLocked()
}

func (r *Reconciler) stateLocked() State {
	s := State{Epoch: r.epoch, Seq: r.seq, Connected: r.connected}

	s.Agents = make([]models.Agent, 0, len(r.agents))
	for _, e := range r.agents {
		s.Agents = append(s.Agents, e.v)
	}
	sort.Slice(s.Agents, func(i, j int) bool {
		if s.Agents[i].Name != s.Agents[j].Name {
			return s.Agents[i].Name < s.Agents[j].Name
		}
		return s.Agents[i].ID < s.Agents[j].ID
	})

	s.Reviews = make([]models.Review, 0, len(r.reviews))
	for _, e := range r.reviews {
		if !e.resolved {
			s.Reviews = append(s.Reviews, e.v)
		}
	}
	sort.Slice(s.Reviews, func(i, j int) bool {
		a, b := s.Reviews[i], s.Reviews[j]
		if ra, rb := models.PriorityRank(a.Priority), models.PriorityRank(b.Priority); ra != rb {
			return ra < rb
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})

	s.Activities = make([]models.Activity, 0, len(r.activities))
	for _, e := range r.activities {
		s.Activities = append(s.Activities, e.v)
	}
	sortActivities(s.Activities)
	if len(s.Activities) > r.cfg.ActivityLimit {
		s.Activities = s.Activities[:r.cfg.ActivityLimit]
	}

	if r.system != nil {
		sm := *r.system
		s.System = &sm
	}
	return s
}

// renderLocked hands the renderer only the views that differ from the last render.
func (r *Reconciler) renderLocked() {
	s := r.stateLocked()
	var changed []View
	first := !r.hasRender
	prev := r.rendered
	if first || !agentsEqual(prev.Agents, s.Agents) {
		changed = append(changed, ViewAgents)
	}
	if first || !reviewsEqual(prev.Reviews, s.Reviews) {
		changed = append(changed, ViewReviews)
	}
	if first || !activitiesEqual(prev.Activities, s.Activities) {
		changed = append(changed, ViewActivities)
	}
	if first || !systemEqual(prev.System, s.System) {
		changed = append(changed, ViewSystem)
	}
	if first || prev.Connected != s.Connected {
		changed = append(changed, ViewConnection)
	}
	r.rendered = s
	r.hasRender = true
	if len(changed) == 0 || r.cfg.Renderer == nil {
		return
	}
	r.cfg.Renderer.Render(changed, r.stateLocked())
}

// Run polls and streams until ctx is done. Poll and push failures are logged and retried
// forever; only one dial is ever in flight.
func (r *Reconciler) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	if r.cfg.Poll != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.pollLoop(ctx)
		}()
	}
	if r.cfg.Dial != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.pushLoop(ctx)
		}()
	}
	wg.Wait()
	return ctx.Err()
}

// PollOnce fetches and applies one snapshot.
func (r *Reconciler) PollOnce(ctx context.Context) error {
	s, err := r.cfg.Poll(ctx)
	if err != nil {
		return err
	}
	r.ApplySnapshot(s)
	return nil
}

func (r *Reconciler) pollLoop(ctx context.Context) {
	t := time.NewTicker(r.cfg.PollInterval)
	defer t.Stop()
	for {
		if err := r.PollOnce(ctx); err != nil && ctx.Err() == nil {
			r.cfg.Log.Debug("poll failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (r *Reconciler) pushLoop(ctx context.Context) {
	for ctx.Err() == nil {
		if err := r.consume(ctx); err != nil && ctx.Err() == nil {
			r.cfg.Log.Debug("push stream ended", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(r.cfg.Backoff):
		}
	}
}

func (r *Reconciler) consume(ctx context.Context) error {
	st, err := r.cfg.Dial(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()
	r.setConnected(true)
	defer r.setConnected(false)
	for {
		m, err := st.Next(ctx)
		if err != nil {
			return err
		}
		if err := r.ApplyMessage(m); err != nil {
			r.cfg.Log.Warn("bad push message", "type", m.Type, "err", err)
		}
	}
}
