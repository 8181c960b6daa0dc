// Package simulator generates synthetic activity so an idle fleet still shows signs of life.
package simulator

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/buppyai/puppy-station/internal/store"
)

const DefaultInterval = 30 * time.Second

// Fleet is what the simulator needs from *fleet.Service.
type Fleet interface {
	ListAgents(ctx context.Context) ([]store.Agent, error)
	LogActivity(ctx context.Context, in store.NewActivity) (store.Activity, error)
}

type template struct {
	typ  store.ActivityType
	text string
}

var templates = []template{
	{store.TypeCommand, "Ran go test ./%s/..."},
	{store.TypeCommand, "Ran golangci-lint on %s"},
	{store.TypeFileUpdate, "Edited %s/handler.go"},
	{store.TypeFileUpdate, "Refactored %s/store.go"},
	{store.TypeCommand, "Opened a pull request for %s"},
	{store.TypeSystem, "Synced %s dependencies"},
}

var areas = []string{"api", "store", "dashboard", "watcher", "client", "docs"}

// Simulator logs one random activity every Interval.
type Simulator struct {
	Fleet    Fleet
	Interval time.Duration
	Log      *slog.Logger
	Rand     *rand.Rand // nil uses the global source
}

// Run ticks until ctx is done.
func (s *Simulator) Run(ctx context.Context) {
	if s.Interval <= 0 {
		s.Interval = DefaultInterval
	}
	if s.Log == nil {
		s.Log = slog.Default()
	}
	t := time.NewTicker(s.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := s.Tick(ctx); err != nil {
				s.Log.Warn("simulated activity failed", "err", err)
			}
		}
	}
}

// Tick logs one activity for a random agent. With no agents it does nothing.
func (s *Simulator) Tick(ctx context.Context) (store.Activity, error) {
	agents, err := s.Fleet.ListAgents(ctx)
	if err != nil || len(agents) == 0 {
		return store.Activity{}, err
	}
	a := agents[s.intN(len(agents))]
	tpl := templates[s.intN(len(templates))]
	return s.Fleet.LogActivity(ctx, store.NewActivity{
		AgentID:     a.ID,
		Type:        tpl.typ,
		Description: fmt.Sprintf(tpl.text, areas[s.intN(len(areas))]),
		Metadata:    store.Metadata{"simulated": true},
	})
}

func (s *Simulator) intN(n int) int {
	if s.Rand != nil {
		return s.Rand.IntN(n)
	}
	return rand.IntN(n)
}
