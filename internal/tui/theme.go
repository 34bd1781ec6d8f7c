package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/barline/internal/block"
	"github.com/mattjoyce/barline/internal/config"
)

// Theme centralizes the preview styling. Widget styles come from the bar
// theme so the preview shows the colors the bar would.
type Theme struct {
	States    map[block.State]lipgloss.Style
	Separator lipgloss.Style
	Title     lipgloss.Style
	Dim       lipgloss.Style
	Error     lipgloss.Style
	Border    lipgloss.Style
	PulseOn   lipgloss.Style
	PulseOff  lipgloss.Style
}

func stateStyle(fg, bg string) lipgloss.Style {
	s := lipgloss.NewStyle().Padding(0, 1)
	if fg != "" {
		s = s.Foreground(lipgloss.Color(fg))
	}
	if bg != "" {
		s = s.Background(lipgloss.Color(bg))
	}
	return s
}

// NewTheme derives preview styles from the bar theme.
func NewTheme(t config.ThemeConfig) Theme {
	purple := lipgloss.Color("#874BFD")

	return Theme{
		States: map[block.State]lipgloss.Style{
			block.StateIdle:     stateStyle(t.IdleFg, t.IdleBg),
			block.StateInfo:     stateStyle(t.InfoFg, t.InfoBg),
			block.StateGood:     stateStyle(t.GoodFg, t.GoodBg),
			block.StateWarning:  stateStyle(t.WarningFg, t.WarningBg),
			block.StateCritical: stateStyle(t.CriticalFg, t.CriticalBg),
		},
		Separator: lipgloss.NewStyle().Foreground(lipgloss.Color("#666666")),
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1),
		Dim:   lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		Error: lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")),
		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(purple),
		PulseOn:  lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")),
		PulseOff: lipgloss.NewStyle().Foreground(lipgloss.Color("#444444")),
	}
}

// Widget renders one widget in its state's style.
func (t Theme) Widget(w block.Widget) string {
	style, ok := t.States[w.State]
	if !ok {
		style = t.States[block.StateIdle]
	}
	return style.Render(w.FullText())
}
