package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/buppyai/puppy-station/pkg/models"
)

var t0 = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func msg(t *testing.T, kind string, seq uint64, data any) models.Message {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatal(err)
	}
	return models.Message{Type: kind, Seq: seq, TS: t0, Data: raw}
}

func strp(s string) *string { return &s }

func agent(id, status string, task *string) models.Agent {
	return models.Agent{ID: id, Name: id, Status: status, CurrentTask: task, UpdatedAt: t0}
}

func review(id int64, p string, created time.Time) models.Review {
	return models.Review{ID: id, AgentID: "buppy", Question: "q", Priority: p, Status: models.ReviewPending, CreatedAt: created}
}

func activity(id int64, ts time.Time) models.Activity {
	return models.Activity{ID: id, AgentID: "buppy", Type: "command", Description: "x", Timestamp: ts}
}

type renders struct {
	mu    sync.Mutex
	calls [][]View
	last  State
}

func (r *renders) Render(changed []View, s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, changed)
	r.last = s
}

func (r *renders) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func TestPushAppliesInOrderAndIgnoresStale(t *testing.T) {
	t.Parallel()
	r := New(Config{})
	r.ApplySnapshot(models.Snapshot{Epoch: "e1", Seq: 3, Agents: []models.Agent{agent("buppy", "idle", nil)}})

	if err := r.ApplyMessage(msg(t, models.MsgTaskUpdate, 5, agent("buppy", "active", strp("ship it")))); err != nil {
		t.Fatal(err)
	}
	// A late duplicate of an older change must not win.
	if err := r.ApplyMessage(msg(t, models.MsgStatusUpdate, 4, agent("buppy", "busy", nil))); err != nil {
		t.Fatal(err)
	}
	s := r.State()
	if s.Seq != 5 || s.Agents[0].Status != "active" || *s.Agents[0].CurrentTask != "ship it" {
		t.Fatalf("state = %+v", s)
	}
}

func TestStalePollNeverRevertsPush(t *testing.T) {
	t.Parallel()
	r := New(Config{})
	r.ApplySnapshot(models.Snapshot{Epoch: "e1", Seq: 10, Agents: []models.Agent{agent("kitty", "idle", nil)}})

	// Poll reads seq 10 and starts its queries; meanwhile push delivers seq 11 and 12.
	stale := models.Snapshot{Epoch: "e1", Seq: 10, Agents: []models.Agent{agent("kitty", "idle", nil)}}
	_ = r.ApplyMessage(msg(t, models.MsgStatusUpdate, 11, agent("kitty", "busy", nil)))
	_ = r.ApplyMessage(msg(t, models.MsgActivity, 12, activity(7, t0)))
	r.ApplySnapshot(stale)

	s := r.State()
	if s.Agents[0].Status != "busy" {
		t.Fatalf("stale poll reverted agent: %+v", s.Agents[0])
	}
	if len(s.Activities) != 1 || s.Activities[0].ID != 7 {
		t.Fatalf("stale poll dropped pushed activity: %+v", s.Activities)
	}

	// A newer poll that no longer lists the activity (trimmed) removes it.
	r.ApplySnapshot(models.Snapshot{Epoch: "e1", Seq: 12, Agents: []models.Agent{agent("kitty", "busy", nil)}})
	if got := r.State().Activities; len(got) != 0 {
		t.Fatalf("activities = %+v", got)
	}
}

func TestResolvedReviewNotResurrected(t *testing.T) {
	t.Parallel()
	r := New(Config{})
	rv := review(1, "high", t0)
	r.ApplySnapshot(models.Snapshot{Epoch: "e1", Seq: 2, Reviews: []models.Review{rv}})

	resolved := rv
	resolved.Status = models.ReviewResolved
	_ = r.ApplyMessage(msg(t, models.MsgReviewResolved, 3, resolved))
	if got := r.State().Reviews; len(got) != 0 {
		t.Fatalf("resolved review still pending: %+v", got)
	}

	// Poll started before the resolve still lists it as pending.
	r.ApplySnapshot(models.Snapshot{Epoch: "e1", Seq: 2, Reviews: []models.Review{rv}})
	if got := r.State().Reviews; len(got) != 0 {
		t.Fatalf("stale poll resurrected review: %+v", got)
	}
	r.ApplySnapshot(models.Snapshot{Epoch: "e1", Seq: 3})
	r.mu.Lock()
	tombstones := len(r.reviews)
	r.mu.Unlock()
	if tombstones != 0 {
		t.Fatalf("tombstone kept after confirming snapshot")
	}
}

func TestReviewOrdering(t *testing.T) {
	t.Parallel()
	r := New(Config{})
	r.ApplySnapshot(models.Snapshot{Epoch: "e1"})
	_ = r.ApplyMessage(msg(t, models.MsgReview, 1, review(1, "low", t0)))
	_ = r.ApplyMessage(msg(t, models.MsgReview, 3, review(2, "high", t0.Add(time.Second))))
	_ = r.ApplyMessage(msg(t, models.MsgReview, 5, review(3, "medium", t0.Add(2*time.Second))))
	_ = r.ApplyMessage(msg(t, models.MsgReview, 7, review(4, "high", t0.Add(3*time.Second))))

	var ids []int64
	for _, rv := range r.State().Reviews {
		ids = append(ids, rv.ID)
	}
	want := []int64{4, 2, 3, 1}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("order = %v, want %v", ids, want)
		}
	}
}

func TestRenderOnlyChangedViews(t *testing.T) {
	t.Parallel()
	rec := &renders{}
	r := New(Config{Renderer: rec})
	snap := models.Snapshot{
		Epoch:      "e1",
		Seq:        4,
		Agents:     []models.Agent{agent("buppy", "idle", nil)},
		Reviews:    []models.Review{review(1, "medium", t0)},
		Activities: []models.Activity{activity(1, t0)},
	}
	r.ApplySnapshot(snap)
	if rec.count() != 1 || len(rec.calls[0]) != 5 {
		t.Fatalf("first render = %v", rec.calls)
	}

	// Identical poll: nothing to draw.
	r.ApplySnapshot(snap)
	if rec.count() != 1 {
		t.Fatalf("identical snapshot re-rendered: %v", rec.calls[1:])
	}

	_ = r.ApplyMessage(msg(t, models.MsgActivity, 5, activity(2, t0.Add(time.Second))))
	if rec.count() != 2 || len(rec.calls[1]) != 1 || rec.calls[1][0] != ViewActivities {
		t.Fatalf("activity render = %v", rec.calls)
	}
	if rec.last.Activities[0].ID != 2 {
		t.Fatalf("newest activity = %+v", rec.last.Activities[0])
	}

	// Duplicate push of the same activity changes nothing.
	_ = r.ApplyMessage(msg(t, models.MsgActivity, 5, activity(2, t0.Add(time.Second))))
	if rec.count() != 2 {
		t.Fatalf("duplicate push re-rendered")
	}

	_ = r.ApplyMessage(msg(t, models.MsgSystem, 0, models.SystemMetrics{CPUPercent: 3}))
	if rec.count() != 3 || rec.calls[2][0] != ViewSystem {
		t.Fatalf("system render = %v", rec.calls)
	}
}

func TestActivityLimitAndPrune(t *testing.T) {
	t.Parallel()
	r := New(Config{ActivityLimit: 3})
	for i := int64(1); i <= 10; i++ {
		_ = r.ApplyMessage(msg(t, models.MsgActivity, uint64(i), activity(i, t0.Add(time.Duration(i)*time.Second))))
	}
	s := r.State()
	if len(s.Activities) != 3 || s.Activities[0].ID != 10 || s.Activities[2].ID != 8 {
		t.Fatalf("activities = %+v", s.Activities)
	}
	r.mu.Lock()
	kept := len(r.activities)
	r.mu.Unlock()
	if kept > 6 {
		t.Fatalf("kept %d activities", kept)
	}
}

func TestNewEpochResets(t *testing.T) {
	t.Parallel()
	r := New(Config{})
	r.ApplySnapshot(models.Snapshot{Epoch: "e1", Seq: 50, Agents: []models.Agent{agent("buppy", "busy", nil), agent("ghost", "idle", nil)}})

	// After a restart sequences start over; the new init must win outright.
	init := models.Snapshot{Epoch: "e2", Seq: 2, Agents: []models.Agent{agent("buppy", "idle", nil)}}
	if err := r.ApplyMessage(msg(t, models.MsgInit, 2, init)); err != nil {
		t.Fatal(err)
	}
	s := r.State()
	if s.Epoch != "e2" || s.Seq != 2 || len(s.Agents) != 1 || s.Agents[0].Status != "idle" {
		t.Fatalf("state = %+v", s)
	}
	_ = r.ApplyMessage(msg(t, models.MsgStatusUpdate, 3, agent("buppy", "active", nil)))
	if r.State().Agents[0].Status != "active" {
		t.Fatal("push after restart ignored")
	}
}

func TestBadMessage(t *testing.T) {
	t.Parallel()
	r := New(Config{})
	if err := r.ApplyMessage(models.Message{Type: models.MsgActivity, Seq: 1, Data: json.RawMessage(`"nope"`)}); err == nil {
		t.Fatal("expected decode error")
	}
	if err := r.ApplyMessage(models.Message{Type: "mystery", Seq: 2, Data: json.RawMessage(`{}`)}); err != nil {
		t.Fatalf("unknown type: %v", err)
	}
}

// fakeStream replays msgs then fails.
type fakeStream struct {
	msgs   chan models.Message
	closed atomic.Bool
}

func (f *fakeStream) Next(ctx context.Context) (models.Message, error) {
	select {
	case <-ctx.Done():
		return models.Message{}, ctx.Err()
	case m, ok := <-f.msgs:
		if !ok {
			return models.Message{}, errors.New("connection lost")
		}
		return m, nil
	}
}

func (f *fakeStream) Close() error {
	f.closed.Store(true)
	return nil
}

func TestRunReconnectsOneDialAtATime(t *testing.T) {
	t.Parallel()
	var dials, inFlight, maxInFlight atomic.Int32
	streams := make(chan *fakeStream, 4)

	dial := func(ctx context.Context) (Stream, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		if n > maxInFlight.Load() {
			maxInFlight.Store(n)
		}
		if dials.Add(1) == 1 {
			return nil, errors.New("refused")
		}
		s := &fakeStream{msgs: make(chan models.Message, 4)}
		streams <- s
		return s, nil
	}
	polls := atomic.Int32{}
	poll := func(ctx context.Context) (models.Snapshot, error) {
		polls.Add(1)
		return models.Snapshot{}, errors.New("server down")
	}

	r := New(Config{Dial: dial, Poll: poll, Backoff: 10 * time.Millisecond, PollInterval: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	var first *fakeStream
	select {
	case first = <-streams:
	case <-time.After(2 * time.Second):
		t.Fatal("never redialed after failure")
	}
	first.msgs <- msg(t, models.MsgInit, 1, models.Snapshot{Epoch: "e1", Seq: 1, Agents: []models.Agent{agent("fishy", "idle", nil)}})
	first.msgs <- msg(t, models.MsgStatusUpdate, 2, agent("fishy", "busy", nil))
	close(first.msgs)

	select {
	case <-streams:
	case <-time.After(2 * time.Second):
		t.Fatal("never reconnected after stream loss")
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v", err)
	}

	if maxInFlight.Load() != 1 {
		t.Fatalf("concurrent dials = %d", maxInFlight.Load())
	}
	if !first.closed.Load() {
		t.Fatal("lost stream not closed")
	}
	if polls.Load() == 0 {
		t.Fatal("poll loop never ran")
	}
	s := r.State()
	if len(s.Agents) != 1 || s.Agents[0].Status != "busy" {
		t.Fatalf("state = %+v", s)
	}
}

func TestPollOnceConvergesWithoutPush(t *testing.T) {
	t.Parallel()
	rec := &renders{}
	r := New(Config{
		Renderer: rec,
		Poll: func(context.Context) (models.Snapshot, error) {
			return models.Snapshot{Epoch: "e1", Seq: 9, Reviews: []models.Review{review(5, "high", t0)}}, nil
		},
	})
	if err := r.PollOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := r.PollOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if rec.count() != 1 || len(rec.last.Reviews) != 1 {
		t.Fatalf("renders = %d, state = %+v", rec.count(), rec.last)
	}
}
