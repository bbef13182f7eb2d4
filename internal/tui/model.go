// Package tui renders the live connection feed in the terminal: a tab
// strip cycled with the arrow keys and a per-tab view of the traffic.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/flowdeck/flowdeck/internal/tabs"
	"github.com/flowdeck/flowdeck/internal/traffic"
)

var (
	tabStyle = lipgloss.NewStyle().
			Padding(0, 2).
			Foreground(lipgloss.Color("245"))
	activeTabStyle = lipgloss.NewStyle().
			Padding(0, 2).
			Bold(true).
			Foreground(lipgloss.Color("39")).
			Underline(true)
	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			MarginTop(1)
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))
)

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Model is the bubbletea model for the flowdeck terminal viewer.
type Model struct {
	tracker *traffic.Tracker
	ring    tabs.Ring
	active  string
	table   table.Model
	width   int
	height  int
}

// New creates a TUI over the tracker, cycling the given view tabs.
func New(tracker *traffic.Tracker, viewTabs []string) Model {
	ring := tabs.NewRing(viewTabs...)

	t := table.New(
		table.WithColumns(connectionColumns(100)),
		table.WithFocused(true),
		table.WithHeight(15),
	)

	return Model{
		tracker: tracker,
		ring:    ring,
		active:  ring.Next(""), // first tab
		table:   t,
	}
}

func connectionColumns(width int) []table.Column {
	w := width / 6
	return []table.Column{
		{Title: "Source", Width: w},
		{Title: "Host", Width: w + 8},
		{Title: "Rule", Width: w + 8},
		{Title: "Chain", Width: w + 8},
		{Title: "Up", Width: w / 2},
		{Title: "Down", Width: w / 2},
	}
}

func (m Model) Init() tea.Cmd {
	return tick()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "right", "l", "tab":
			m.active = m.ring.Next(m.active)
			return m, nil
		case "left", "h", "shift+tab":
			m.active = m.ring.Prev(m.active)
			return m, nil
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetColumns(connectionColumns(max(msg.Width-10, 60)))
		m.table.SetHeight(max(msg.Height-8, 5))
		return m, nil
	case tickMsg:
		m.refreshRows()
		return m, tick()
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *Model) refreshRows() {
	snap := m.tracker.Snapshot()
	rows := make([]table.Row, 0, len(snap.Connections))
	for _, c := range snap.Connections {
		rows = append(rows, table.Row{
			c.SourceLabel(),
			c.Host,
			c.RuleLabel(),
			strings.Join(c.Chains, " → "),
			fmt.Sprintf("%d", c.Upload),
			fmt.Sprintf("%d", c.Download),
		})
	}
	m.table.SetRows(rows)
}

func (m Model) View() string {
	var b strings.Builder

	var tabLine []string
	for _, key := range m.ring.Keys() {
		if key == m.active {
			tabLine = append(tabLine, activeTabStyle.Render(key))
		} else {
			tabLine = append(tabLine, tabStyle.Render(key))
		}
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, tabLine...))
	b.WriteString("\n\n")

	switch m.active {
	case "flow":
		b.WriteString(m.flowView())
	default:
		b.WriteString(m.table.View())
	}

	snap := m.tracker.Snapshot()
	b.WriteString(statusStyle.Render(fmt.Sprintf(
		"\n%d connections  ↑%d ↓%d   ←/→ switch tab  q quit",
		len(snap.Connections), snap.UploadTotal, snap.DownloadTotal,
	)))
	return b.String()
}

// flowView prints the aggregated graph as indented edge lists per layer.
func (m Model) flowView() string {
	g := m.tracker.Graph()
	if g.Empty() {
		return statusStyle.Render("no active connections")
	}

	names := make(map[int]string, len(g.Nodes))
	for _, n := range g.Nodes {
		names[n.ID] = n.Name
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render("source → rule → chain exit → chain entry"))
	b.WriteString("\n\n")
	for _, e := range g.Edges {
		b.WriteString(fmt.Sprintf("  %s → %s  ×%d\n", names[e.Source], names[e.Target], e.Weight))
	}
	return b.String()
}
