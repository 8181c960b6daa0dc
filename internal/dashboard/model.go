// Package dashboard renders reconciler state in the terminal, either as a Bubble Tea program
// or as plain line output when stdout is not a TTY.
package dashboard

import (
	"fmt"
	"strings"
	"time"

	"github.com/buppyai/puppy-station/pkg/models"
	"github.com/buppyai/puppy-station/pkg/reconciler"
	tea "github.com/charmbracelet/bubbletea"
)

// StateMsg carries a reconciler render into the Bubble Tea loop.
type StateMsg struct {
	Changed []reconciler.View
	State   reconciler.State
}

// Model is the Bubble Tea model for the fleet dashboard.
type Model struct {
	state    reconciler.State
	width    int
	height   int
	styles   Styles
	quitting bool
}

// New returns an empty dashboard model.
func New() Model {
	return Model{styles: NewStyles(DefaultTheme())}
}

// Sender returns a Renderer that forwards every render to p.
func Sender(p *tea.Program) reconciler.Renderer {
	return reconciler.RendererFunc(func(changed []reconciler.View, s reconciler.State) {
		p.Send(StateMsg{Changed: changed, State: s})
	})
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd { return nil }

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StateMsg:
		m.state = msg.State
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(m.renderStatusBar())
	sb.WriteString("\n\n")
	sb.WriteString(m.renderAgents())
	sb.WriteString("\n")
	sb.WriteString(m.renderReviews())
	sb.WriteString("\n")
	sb.WriteString(m.renderActivities())
	if m.state.System != nil {
		sb.WriteString("\n")
		sb.WriteString(m.styles.Muted.Render(systemLine(m.state.System)))
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	sb.WriteString(m.styles.Muted.Render("q: quit"))
	return sb.String()
}

func (m Model) renderStatusBar() string {
	conn := m.styles.Offline.Render("● offline")
	if m.state.Connected {
		conn = m.styles.Online.Render("● live")
	}
	return fmt.Sprintf("%s  %s  seq %d  agents %d  pending %d",
		m.styles.Title.Render("puppy-station"), conn, m.state.Seq, len(m.state.Agents), len(m.state.Reviews))
}

func (m Model) renderAgents() string {
	var sb strings.Builder
	sb.WriteString(m.styles.Section.Render("Agents"))
	sb.WriteString("\n")
	if len(m.state.Agents) == 0 {
		sb.WriteString(m.styles.Muted.Render("  no agents"))
		sb.WriteString("\n")
		return sb.String()
	}
	for _, a := range m.state.Agents {
		st, ok := m.styles.Status[a.Status]
		status := a.Status
		if ok {
			status = st.Render(fmt.Sprintf("%-6s", a.Status))
		}
		task := "-"
		if a.CurrentTask != nil {
			task = *a.CurrentTask
		}
		fmt.Fprintf(&sb, "  %s %-10s %s  %s\n", a.Emoji, truncate(a.Name, 10), status, truncate(task, m.textWidth(30)))
	}
	return sb.String()
}

func (m Model) renderReviews() string {
	var sb strings.Builder
	sb.WriteString(m.styles.Section.Render("Pending reviews"))
	sb.WriteString("\n")
	if len(m.state.Reviews) == 0 {
		sb.WriteString(m.styles.Muted.Render("  queue empty"))
		sb.WriteString("\n")
		return sb.String()
	}
	for _, r := range m.state.Reviews {
		prio := r.Priority
		if st, ok := m.styles.Prio[r.Priority]; ok {
			prio = st.Render(fmt.Sprintf("%-6s", r.Priority))
		}
		fmt.Fprintf(&sb, "  #%-4d %s %-8s %s\n", r.ID, prio, r.AgentID, truncate(r.Question, m.textWidth(30)))
	}
	return sb.String()
}

func (m Model) renderActivities() string {
	var sb strings.Builder
	sb.WriteString(m.styles.Section.Render("Activity"))
	sb.WriteString("\n")
	if len(m.state.Activities) == 0 {
		sb.WriteString(m.styles.Muted.Render("  nothing yet"))
		sb.WriteString("\n")
		return sb.String()
	}
	for _, a := range m.state.Activities {
		fmt.Fprintf(&sb, "  %s %-8s %-15s %s\n", m.styles.Muted.Render(a.Timestamp.Local().Format(time.TimeOnly)),
			a.AgentID, a.Type, truncate(a.Description, m.textWidth(40)))
	}
	return sb.String()
}

// textWidth is the room left for free text after fixed columns of width used.
func (m Model) textWidth(used int) int {
	if m.width <= used+10 {
		return 60
	}
	return m.width - used
}

func systemLine(s *models.SystemMetrics) string {
	return fmt.Sprintf("cpu %.1f%%  mem %.1f%%  load %.2f %.2f %.2f  up %s",
		s.CPUPercent, s.MemUsedPercent, s.Load1, s.Load5, s.Load15,
		(time.Duration(s.UptimeSeconds) * time.Second).String())
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 1 || len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
