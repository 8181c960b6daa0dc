package simulator

import (
	"context"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/buppyai/puppy-station/internal/store"
)

type fakeFleet struct {
	mu     sync.Mutex
	agents []store.Agent
	logged []store.NewActivity
}

func (f *fakeFleet) ListAgents(context.Context) ([]store.Agent, error) { return f.agents, nil }

func (f *fakeFleet) LogActivity(_ context.Context, in store.NewActivity) (store.Activity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logged = append(f.logged, in)
	return store.Activity{ID: int64(len(f.logged)), AgentID: in.AgentID, Type: in.Type, Description: in.Description}, nil
}

func (f *fakeFleet) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.logged)
}

func TestTickPicksKnownAgent(t *testing.T) {
	t.Parallel()
	f := &fakeFleet{agents: []store.Agent{{ID: "buppy"}, {ID: "kitty"}}}
	s := &Simulator{Fleet: f, Rand: rand.New(rand.NewPCG(1, 2))}
	for i := 0; i < 20; i++ {
		a, err := s.Tick(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if a.AgentID != "buppy" && a.AgentID != "kitty" {
			t.Fatalf("agent = %q", a.AgentID)
		}
		if a.Description == "" || strings.Contains(a.Description, "%") {
			t.Fatalf("description = %q", a.Description)
		}
	}
	if f.logged[0].Metadata["simulated"] != true {
		t.Fatalf("metadata = %v", f.logged[0].Metadata)
	}
}

func TestTickNoAgents(t *testing.T) {
	t.Parallel()
	f := &fakeFleet{}
	if _, err := (&Simulator{Fleet: f}).Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.count() != 0 {
		t.Fatal("logged without agents")
	}
}

func TestRunTicks(t *testing.T) {
	t.Parallel()
	f := &fakeFleet{agents: []store.Agent{{ID: "fishy"}}}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		(&Simulator{Fleet: f, Interval: 10 * time.Millisecond}).Run(ctx)
		close(done)
	}()
	deadline := time.Now().Add(2 * time.Second)
	for f.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
	if f.count() < 3 {
		t.Fatalf("ticks = %d", f.count())
	}
}
