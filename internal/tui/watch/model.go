package watch

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/labelgw/internal/events"
)

const maxEventLog = 50

// Model is the BubbleTea model for the watch TUI.
type Model struct {
	stream *stream

	width  int
	height int

	health   HealthState
	board    *Board
	eventLog []events.Event
	jobs     table.Model

	ticker   Ticker
	activity Activity
	theme    Theme

	lastError string
}

// New creates a watch model for the service at apiURL. apiKey may be empty
// when the service runs without authentication.
func New(apiURL, apiKey string) *Model {
	return &Model{
		stream: newStream(apiURL, apiKey),
		board:  NewBoard(),
		jobs:   newJobTable(80),
		ticker: NewTicker(),
		theme:  NewDefaultTheme(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.stream.subscribe(),
		m.stream.next(),
		m.stream.fetchHealth,
		tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) }),
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.jobs, cmd = m.jobs.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.jobs = newJobTable(msg.Width - 6)
		m.jobs.SetRows(m.board.Rows(time.Now()))

	case tickMsg:
		m.ticker.Tick()
		// Elapsed time of in-flight jobs moves every second.
		m.jobs.SetRows(m.board.Rows(time.Time(msg)))
		return m, tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })

	case eventMsg:
		e := events.Event(msg)

		m.eventLog = append([]events.Event{e}, m.eventLog...)
		if len(m.eventLog) > maxEventLog {
			m.eventLog = m.eventLog[:maxEventLog]
		}
		m.activity.OnEvent(e.At)
		m.board.Apply(e)
		m.jobs.SetRows(m.board.Rows(time.Now()))

		m.health.Connected = true
		m.lastError = ""
		return m, m.stream.next()

	case healthMsg:
		m.health.Status = msg.Status
		m.health.Version = msg.Version
		m.health.DryRun = msg.DryRun
		m.health.UptimeSeconds = msg.UptimeSeconds
		m.health.Connected = true
		m.health.LastCheck = time.Now()
		m.lastError = ""
		return m, tea.Tick(5*time.Second, func(time.Time) tea.Msg {
			return m.stream.fetchHealth()
		})

	case sseDisconnectedMsg:
		m.health.Connected = false
		m.lastError = "event stream disconnected, reconnecting..."
		if msg.err != nil {
			m.lastError = fmt.Sprintf("event stream: %v, reconnecting...", msg.err)
		}
		// The pending next() keeps waiting on the shared channel and picks
		// up events from the new subscription.
		return m, tea.Tick(3*time.Second, func(time.Time) tea.Msg { return reconnectMsg{} })

	case reconnectMsg:
		return m, m.stream.subscribe()

	case errMsg:
		m.lastError = msg.Error()
		return m, tea.Tick(5*time.Second, func(time.Time) tea.Msg {
			return m.stream.fetchHealth()
		})
	}

	return m, nil
}

func (m Model) View() string {
	if m.width == 0 {
		return "Connecting to labelgw..."
	}

	header := renderHeader(m.health, m.ticker, m.activity, m.board, m.theme, m.width)
	jobs := m.theme.Border.Width(m.width - 4).Render(lipgloss.JoinVertical(lipgloss.Left,
		m.theme.Title.Render("PRINT JOBS"),
		m.jobs.View(),
	))
	eventStream := renderEventStream(m.eventLog, m.theme, m.width)

	parts := []string{header, jobs, eventStream}
	if m.lastError != "" {
		parts = append(parts, m.theme.StatusFailed.Render(" ⚠ "+m.lastError))
	}
	parts = append(parts, m.theme.Dim.Render(" [q] Quit • [↑/↓] Scroll jobs"))

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}
