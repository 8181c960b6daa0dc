package daemon

import (
	"context"
	"log/slog"
	"sync"

	"github.com/buppyai/puppy-station/internal/config"
	"github.com/buppyai/puppy-station/internal/simulator"
	"github.com/buppyai/puppy-station/internal/store"
	"github.com/buppyai/puppy-station/internal/sysmetrics"
	"github.com/buppyai/puppy-station/internal/watcher"
)

// RunProducers starts the background writers (file watcher, simulator), the host sampler,
// and the review alert sender. The returned func blocks until they have all exited after ctx
// is cancelled.
func (d *Daemon) RunProducers(ctx context.Context) (wait func()) {
	var wg sync.WaitGroup
	goRun := func(name string, fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			slog.Debug("producer started", "producer", name)
			fn(ctx)
		}()
	}

	cfg := d.Config
	if len(cfg.Watch.Paths) > 0 {
		rules := watchRules(cfg.Watch.Rules)
		if len(rules) == 0 {
			rules = d.agentWatchRules(ctx)
		}
		w := &watcher.Watcher{
			Paths:    cfg.Watch.Paths,
			Rules:    rules,
			Debounce: cfg.Watch.Debounce.Std(),
			Sink:     d.Fleet,
			Log:      slog.Default().With("producer", "watcher"),
		}
		goRun("watcher", func(ctx context.Context) {
			if err := w.Run(ctx); err != nil {
				slog.Error("file watcher stopped", "err", err)
			}
		})
	}
	if cfg.Simulator.Enabled {
		sim := &simulator.Simulator{
			Fleet:    d.Fleet,
			Interval: cfg.Simulator.Interval.Std(),
			Log:      slog.Default().With("producer", "simulator"),
		}
		goRun("simulator", sim.Run)
	}
	if cfg.Metrics.Enabled {
		s := &sysmetrics.Sampler{
			Hub:      d.Hub,
			Interval: cfg.Metrics.Interval.Std(),
			Log:      slog.Default().With("producer", "sysmetrics"),
		}
		goRun("sysmetrics", s.Run)
	}
	if d.alerts != nil {
		goRun("notify", d.alerts.Run)
	}
	return wg.Wait
}

func watchRules(in []config.WatchRule) []watcher.Rule {
	out := make([]watcher.Rule, 0, len(in))
	for _, r := range in {
		out = append(out, watcher.Rule{Match: r.Match, Agent: r.Agent, Type: store.ActivityType(r.Type)})
	}
	return out
}

// agentWatchRules is the fallback when no watch.rules are configured: a change under any
// directory named after an agent, e.g. src/buppy/main.go, is logged for that agent.
func (d *Daemon) agentWatchRules(ctx context.Context) []watcher.Rule {
	agents, err := d.Fleet.ListAgents(ctx)
	if err != nil {
		slog.Warn("watcher: list agents for default rules", "err", err)
		return nil
	}
	rules := make([]watcher.Rule, 0, len(agents))
	for _, a := range agents {
		rules = append(rules, watcher.Rule{Match: "/" + a.ID + "/", Agent: a.ID, Type: store.TypeFileUpdate})
	}
	return rules
}
