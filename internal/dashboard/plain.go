package dashboard

import (
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/buppyai/puppy-station/pkg/reconciler"
)

// Plain writes one line per change, for pipes and logs. Activities print once each,
// oldest first; agents print only when they differ from the last line written for them.
type Plain struct {
	w          io.Writer
	epoch      string
	lastAct    int64
	agentLines map[string]string
	reviews    int
	connected  *bool
}

// NewPlain returns a Plain renderer writing to w.
func NewPlain(w io.Writer) *Plain {
	return &Plain{w: w, agentLines: make(map[string]string), reviews: -1}
}

// Render implements reconciler.Renderer.
func (p *Plain) Render(changed []reconciler.View, s reconciler.State) {
	if s.Epoch != p.epoch {
		p.epoch = s.Epoch
		p.lastAct = 0
	}
	for _, v := range changed {
		switch v {
		case reconciler.ViewConnection:
			if p.connected == nil || *p.connected != s.Connected {
				c := s.Connected
				p.connected = &c
				if c {
					fmt.Fprintf(p.w, "-- connected (seq %d)\n", s.Seq)
				} else {
					fmt.Fprintln(p.w, "-- disconnected, polling")
				}
			}
		case reconciler.ViewAgents:
			for _, a := range s.Agents {
				task := "-"
				if a.CurrentTask != nil {
					task = *a.CurrentTask
				}
				line := fmt.Sprintf("agent %s %s %s", a.ID, a.Status, task)
				if p.agentLines[a.ID] != line {
					p.agentLines[a.ID] = line
					fmt.Fprintln(p.w, line)
				}
			}
		case reconciler.ViewReviews:
			if len(s.Reviews) != p.reviews {
				p.reviews = len(s.Reviews)
				fmt.Fprintf(p.w, "reviews pending=%d\n", p.reviews)
			}
			for _, r := range s.Reviews {
				fmt.Fprintf(p.w, "  #%d %s %s: %s\n", r.ID, r.Priority, r.AgentID, r.Question)
			}
		case reconciler.ViewActivities:
			acts := slices.Clone(s.Activities)
			slices.Reverse(acts)
			for _, a := range acts {
				if a.ID <= p.lastAct {
					continue
				}
				p.lastAct = a.ID
				fmt.Fprintf(p.w, "%s %s %s %s\n", a.Timestamp.Local().Format(time.TimeOnly), a.AgentID, a.Type, a.Description)
			}
		case reconciler.ViewSystem:
			if s.System != nil {
				fmt.Fprintln(p.w, systemLine(s.System))
			}
		}
	}
}
