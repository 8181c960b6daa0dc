// Package watcher turns file-system changes into activity records. A changed path is mapped to an
// agent and activity type by the first rule whose Match substring it contains.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/buppyai/puppy-station/internal/store"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces bursts of events on one path.
const DefaultDebounce = 500 * time.Millisecond

// ActivityLogger is the write entry point; *fleet.Service implements it.
type ActivityLogger interface {
	LogActivity(ctx context.Context, in store.NewActivity) (store.Activity, error)
}

// Rule maps paths containing Match to Agent. An empty Type means file_update.
type Rule struct {
	Match string
	Agent string
	Type  store.ActivityType
}

var skipDirs = map[string]bool{".git": true, "node_modules": true, "vendor": true}

// Watcher watches Paths recursively.
type Watcher struct {
	Paths    []string
	Rules    []Rule
	Debounce time.Duration
	Sink     ActivityLogger
	Log      *slog.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
	fsw     *fsnotify.Watcher
}

// Match returns the first rule matching path.
func (w *Watcher) Match(path string) (Rule, bool) {
	p := filepath.ToSlash(path)
	for _, r := range w.Rules {
		if r.Match != "" && strings.Contains(p, r.Match) {
			if r.Type == "" {
				r.Type = store.TypeFileUpdate
			}
			return r, true
		}
	}
	return Rule{}, false
}

// Run watches until ctx is done. It returns early only if the watcher cannot be created.
func (w *Watcher) Run(ctx context.Context) error {
	if w.Log == nil {
		w.Log = slog.Default()
	}
	if w.Debounce <= 0 {
		w.Debounce = DefaultDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.fsw = fsw
	w.pending = make(map[string]*time.Timer)
	w.mu.Unlock()

	for _, p := range w.Paths {
		if err := w.addRecursive(p); err != nil {
			w.Log.Warn("watch path failed", "path", p, "err", err)
		}
	}
	w.Log.Info("file watcher started", "paths", w.Paths, "rules", len(w.Rules))

	defer w.stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.Log.Warn("file watcher error", "err", err)
		}
	}
}

func (w *Watcher) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for p, t := range w.pending {
		t.Stop()
		delete(w.pending, p)
	}
	_ = w.fsw.Close()
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && skipDirs[d.Name()] {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if !skipDirs[filepath.Base(ev.Name)] {
				if err := w.addRecursive(ev.Name); err != nil {
					w.Log.Debug("watch new dir failed", "path", ev.Name, "err", err)
				}
			}
			return
		}
	}
	if ev.Op == fsnotify.Chmod {
		return
	}
	rule, ok := w.Match(ev.Name)
	if !ok {
		return
	}
	w.schedule(ctx, ev, rule)
}

// schedule debounces per path; the last event of a burst wins.
func (w *Watcher) schedule(ctx context.Context, ev fsnotify.Event, rule Rule) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[ev.Name]; ok {
		t.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(w.Debounce, func() {
		if !w.expire(ev.Name, &t) || ctx.Err() != nil {
			return
		}
		w.fire(ctx, ev, rule)
	})
	w.pending[ev.Name] = t
}

// expire clears the pending entry for name if it is still *t. It reports false when a later
// event has already replaced the timer, in which case that newer timer owns the path. t is
// read under the lock because schedule assigns it while holding it.
func (w *Watcher) expire(name string, t **time.Timer) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending[name] != *t {
		return false
	}
	delete(w.pending, name)
	return true
}

func (w *Watcher) fire(ctx context.Context, ev fsnotify.Event, rule Rule) {
	in := store.NewActivity{
		AgentID:     rule.Agent,
		Type:        rule.Type,
		Description: verb(ev.Op) + " " + filepath.Base(ev.Name),
		Metadata:    store.Metadata{"path": ev.Name, "op": ev.Op.String()},
	}
	if _, err := w.Sink.LogActivity(ctx, in); err != nil {
		w.Log.Warn("watcher log activity failed", "path", ev.Name, "agent", rule.Agent, "err", err)
	}
}

func verb(op fsnotify.Op) string {
	switch {
	case op.Has(fsnotify.Remove):
		return "Deleted"
	case op.Has(fsnotify.Rename):
		return "Renamed"
	case op.Has(fsnotify.Create):
		return "Created"
	default:
		return "Modified"
	}
}
