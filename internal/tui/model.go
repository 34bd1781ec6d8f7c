// Package tui renders the bar in a terminal for previewing a config.
//
// The preview runs the same dispatcher as the real bar. Snapshots arrive
// through Bridge and keys are turned into clicks and signals.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/barline/internal/block"
	"github.com/mattjoyce/barline/internal/signals"
)

type keyMap struct {
	Click      key.Binding
	RightClick key.Binding
	Scroll     key.Binding
	Refresh    key.Binding
	Help       key.Binding
	Quit       key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Click, k.Refresh, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Click, k.RightClick, k.Scroll},
		{k.Refresh},
		{k.Help, k.Quit},
	}
}

func defaultKeyMap() keyMap {
	return keyMap{
		Click: key.NewBinding(
			key.WithKeys("1", "2", "3", "4", "5", "6", "7", "8", "9"),
			key.WithHelp("1-9", "left click block"),
		),
		RightClick: key.NewBinding(
			key.WithKeys("!", "@", "#", "$", "%", "^", "&", "*", "("),
			key.WithHelp("shift+1-9", "right click block"),
		),
		Scroll: key.NewBinding(
			key.WithKeys("up", "down"),
			key.WithHelp("↑/↓", "scroll selected block"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh all"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "more keys"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// shiftDigits maps the shifted number row back to block positions.
var shiftDigits = map[string]int{
	"!": 1, "@": 2, "#": 3, "$": 4, "%": 5, "^": 6, "&": 7, "*": 8, "(": 9,
}

type snapshotMsg [][]block.Widget

type tickMsg time.Time

// Model is the bubbletea model for the preview.
type Model struct {
	theme Theme
	keys  keyMap
	help  help.Model

	names    []string
	snapshot [][]block.Widget
	selected int

	clicks  chan<- block.Click
	signals chan<- signals.Signal

	pulse    Pulse
	updates  int
	lastEmit time.Time
	status   string
	width    int
	now      func() time.Time
}

// NewModel builds a preview model. names are the configured block types in
// bar order. Either channel may be nil to disable that input.
func NewModel(theme Theme, names []string, clicks chan<- block.Click, sigs chan<- signals.Signal) Model {
	return Model{
		theme:   theme,
		keys:    defaultKeyMap(),
		help:    help.New(),
		names:   names,
		clicks:  clicks,
		signals: sigs,
		now:     time.Now,
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) Init() tea.Cmd {
	return tick()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case snapshotMsg:
		m.snapshot = msg
		m.updates++
		m.lastEmit = m.now()
		m.pulse.OnEmit(m.lastEmit)
		return m, nil

	case tickMsg:
		m.pulse.Decay(time.Time(msg))
		return m, tick()
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll

	case key.Matches(msg, m.keys.Click):
		n := int(msg.String()[0] - '0')
		m.selected = n - 1
		m.click(n-1, block.ButtonLeft)

	case key.Matches(msg, m.keys.RightClick):
		n := shiftDigits[msg.String()]
		m.selected = n - 1
		m.click(n-1, block.ButtonRight)

	case key.Matches(msg, m.keys.Scroll):
		button := block.ButtonWheelUp
		if msg.String() == "down" {
			button = block.ButtonWheelDown
		}
		m.click(m.selected, button)

	case key.Matches(msg, m.keys.Refresh):
		m.signal(signals.Signal{Kind: signals.RefreshAll})
	}
	return m, nil
}

// click never blocks the UI. A full channel drops the click.
func (m *Model) click(id int, button block.Button) {
	if m.clicks == nil {
		return
	}
	if id < 0 || id >= len(m.names) {
		m.status = fmt.Sprintf("no block %d", id+1)
		return
	}
	select {
	case m.clicks <- block.Click{ID: id, Button: button}:
		m.status = fmt.Sprintf("clicked %d (%s) button %d", id+1, m.names[id], button)
	default:
		m.status = "click dropped: dispatcher busy"
	}
}

func (m *Model) signal(sig signals.Signal) {
	if m.signals == nil {
		return
	}
	select {
	case m.signals <- sig:
		m.status = "sent " + sig.String()
	default:
		m.status = "signal dropped: dispatcher busy"
	}
}

func (m Model) View() string {
	var b strings.Builder

	header := fmt.Sprintf("%s %s  updates: %d",
		m.theme.Title.Render("barline preview"),
		m.pulse.Render(m.theme),
		m.updates,
	)
	if !m.lastEmit.IsZero() {
		header += m.theme.Dim.Render("  last: " + m.lastEmit.Format("15:04:05"))
	}
	b.WriteString(header)
	b.WriteString("\n\n")

	b.WriteString(m.theme.Border.Render(m.renderBar()))
	b.WriteString("\n\n")
	b.WriteString(m.renderBlocks())

	if m.status != "" {
		b.WriteString("\n")
		b.WriteString(m.theme.Dim.Render(m.status))
	}
	b.WriteString("\n\n")
	b.WriteString(m.help.View(m.keys))

	return lipgloss.NewStyle().Margin(1, 2).Render(b.String())
}

func (m Model) renderBar() string {
	if len(m.snapshot) == 0 {
		return m.theme.Dim.Render("waiting for blocks...")
	}
	var parts []string
	for _, widgets := range m.snapshot {
		for _, w := range widgets {
			parts = append(parts, m.theme.Widget(w))
		}
	}
	if len(parts) == 0 {
		return m.theme.Dim.Render("(all blocks hidden)")
	}
	return strings.Join(parts, m.theme.Separator.Render("|"))
}

func (m Model) renderBlocks() string {
	var lines []string
	for i, name := range m.names {
		marker := " "
		if i == m.selected {
			marker = ">"
		}
		line := fmt.Sprintf("%s %d %-12s", marker, i+1, name)
		switch {
		case i >= len(m.snapshot):
			line += m.theme.Dim.Render(" pending")
		case len(m.snapshot[i]) == 0:
			line += m.theme.Dim.Render(" hidden")
		default:
			var texts []string
			for _, w := range m.snapshot[i] {
				texts = append(texts, w.FullText())
			}
			line += " " + strings.Join(texts, " ")
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
