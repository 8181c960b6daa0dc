package dashboard

import "github.com/charmbracelet/lipgloss"

// Theme defines the colors of the dashboard.
type Theme struct {
	Primary lipgloss.Color
	Success lipgloss.Color
	Warning lipgloss.Color
	Error   lipgloss.Color
	Muted   lipgloss.Color
}

// DefaultTheme returns the default terminal palette.
func DefaultTheme() Theme {
	return Theme{
		Primary: lipgloss.Color("12"),  // Blue
		Success: lipgloss.Color("10"),  // Green
		Warning: lipgloss.Color("11"),  // Yellow
		Error:   lipgloss.Color("9"),   // Red
		Muted:   lipgloss.Color("240"), // Gray
	}
}

// Styles are the lipgloss styles derived from a Theme.
type Styles struct {
	Title   lipgloss.Style
	Section lipgloss.Style
	Muted   lipgloss.Style
	Online  lipgloss.Style
	Offline lipgloss.Style
	Status  map[string]lipgloss.Style
	Prio    map[string]lipgloss.Style
}

// NewStyles builds Styles for t.
func NewStyles(t Theme) Styles {
	return Styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Section: lipgloss.NewStyle().Bold(true).Underline(true),
		Muted:   lipgloss.NewStyle().Foreground(t.Muted),
		Online:  lipgloss.NewStyle().Foreground(t.Success),
		Offline: lipgloss.NewStyle().Foreground(t.Error),
		Status: map[string]lipgloss.Style{
			"active": lipgloss.NewStyle().Foreground(t.Success),
			"busy":   lipgloss.NewStyle().Foreground(t.Warning),
			"idle":   lipgloss.NewStyle().Foreground(t.Muted),
		},
		Prio: map[string]lipgloss.Style{
			"high":   lipgloss.NewStyle().Bold(true).Foreground(t.Error),
			"medium": lipgloss.NewStyle().Foreground(t.Warning),
			"low":    lipgloss.NewStyle().Foreground(t.Muted),
		},
	}
}
