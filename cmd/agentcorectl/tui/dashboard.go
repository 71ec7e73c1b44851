package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/agentcore/core"
	"github.com/pithecene-io/agentcore/metrics"
	"github.com/pithecene-io/agentcore/supervisor"
)

// refreshInterval is how often the dashboard polls a fresh Snapshot.
const refreshInterval = 500 * time.Millisecond

// Snapshot is a point-in-time view of everything the dashboard renders:
// supervisor occupancy, its metrics, and every registered remote's sync
// status.
type Snapshot struct {
	Supervisor supervisor.Stats
	Metrics    metrics.Snapshot
	Remotes    []core.RemoteStatus
}

type tickMsg time.Time

type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(key.WithKeys("q", "ctrl+c")),
}

// DashboardModel is the Bubble Tea model backing `agentcorectl status --tui`:
// a tea.Model polling a Supervisor+Sync stats snapshot on a ticker, a direct
// generalization of a single-shot stats render to a live-refreshing one.
type DashboardModel struct {
	fetch    func() Snapshot
	snapshot Snapshot
	width    int
	height   int
	quitting bool
}

// NewDashboardModel creates a dashboard model that calls fetch for each
// refresh tick.
func NewDashboardModel(fetch func() Snapshot) DashboardModel {
	return DashboardModel{fetch: fetch, snapshot: fetch()}
}

// Init implements tea.Model.
func (m DashboardModel) Init() tea.Cmd {
	return tickCmd()
}

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update implements tea.Model.
func (m DashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		m.snapshot = m.fetch()
		return m, tickCmd()
	}

	return m, nil
}

// View implements tea.Model.
func (m DashboardModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("agentcorectl — live status"))
	b.WriteString("\n\n")
	b.WriteString(m.renderSupervisor())
	b.WriteString("\n\n")
	b.WriteString(m.renderRemotes())
	b.WriteString("\n")
	b.WriteString(HelpStyle.Render("Press q or Ctrl+C to quit"))
	return b.String()
}

func (m DashboardModel) renderSupervisor() string {
	s := m.snapshot.Supervisor
	boxes := []string{
		statBox("Active", s.ActiveCount, highlightColor),
		statBox("Pending", s.PendingCount, warningColor),
		statBox("Limit", s.ConcurrencyLimit, primaryColor),
		statBox("Completed", int(m.snapshot.Metrics.QueriesCompleted), successColor),
		statBox("Failed", int(m.snapshot.Metrics.QueriesFailed), errorColor),
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, boxes...)
}

func (m DashboardModel) renderRemotes() string {
	if len(m.snapshot.Remotes) == 0 {
		return LabelStyle.Render("Remotes:") + ValueStyle.Render(" none registered")
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Remotes"))
	b.WriteString("\n")
	for _, r := range m.snapshot.Remotes {
		state := "disconnected"
		if r.Connected {
			state = "connected"
		}
		line := fmt.Sprintf("%s  %s", LabelStyle.Render(r.Key), ConnectionStyle(r.Connected).Render(state))
		if r.LastError != "" {
			line += "  " + ErrorStyle.Render(r.LastError)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func statBox(label string, value int, color lipgloss.Color) string {
	boxStyle := StatBoxStyle.BorderForeground(color)
	valueStr := StatValueStyle.Foreground(color).Render(fmt.Sprintf("%d", value))
	labelStr := StatLabelStyle.Render(label)
	content := lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr)
	return boxStyle.Render(content)
}

// RunDashboard runs the live dashboard until the user quits.
func RunDashboard(fetch func() Snapshot) error {
	model := NewDashboardModel(fetch)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
