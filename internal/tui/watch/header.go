package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// HealthState tracks service health from /health polling.
type HealthState struct {
	Status        string
	Version       string
	DryRun        bool
	UptimeSeconds int64
	Connected     bool
	LastCheck     time.Time
}

// Ticker alternates frames once per second so a frozen UI is obvious.
type Ticker struct {
	frames []string
	index  int
}

func NewTicker() Ticker {
	return Ticker{frames: []string{"⟲", "⟳"}}
}

func (t *Ticker) Tick() { t.index = (t.index + 1) % len(t.frames) }

func (t Ticker) Current() string { return t.frames[t.index] }

// Activity lights five dots on each event and fades one every two seconds.
type Activity struct {
	lastEvent time.Time
}

func (a *Activity) OnEvent(at time.Time) { a.lastEvent = at }

func (a Activity) LastEvent() time.Time { return a.lastEvent }

func (a Activity) dots(now time.Time) int {
	if a.lastEvent.IsZero() {
		return 0
	}
	lit := 5 - int(now.Sub(a.lastEvent)/(2*time.Second))
	if lit < 0 {
		return 0
	}
	return lit
}

func (a Activity) Render(theme Theme, now time.Time) string {
	lit := a.dots(now)
	var b strings.Builder
	for i := range 5 {
		if i < lit {
			b.WriteString(theme.TickerActive.Render("●"))
		} else {
			b.WriteString(theme.TickerInactive.Render("○"))
		}
	}
	return b.String()
}

func renderHeader(health HealthState, ticker Ticker, activity Activity, board *Board, theme Theme, width int) string {
	innerWidth := width - 4
	now := time.Now()

	statusText := theme.StatusOK.Render("HEALTHY")
	if !health.Connected {
		statusText = theme.StatusFailed.Render("CONNECTING")
	} else if health.Status != "healthy" && health.Status != "" {
		statusText = theme.StatusFailed.Render(strings.ToUpper(health.Status))
	}

	mode := theme.StatusRunning.Render("LIVE")
	if health.DryRun {
		mode = theme.StatusDryRun.Render("DRY RUN")
	}

	lastEvent := "never"
	if !activity.LastEvent().IsZero() {
		lastEvent = formatDuration(now.Sub(activity.LastEvent())) + " ago"
	}

	titleText := fmt.Sprintf(" LABELGW WATCH %s", theme.Highlight.Render(ticker.Current()))
	clock := theme.Dim.Render(now.Format("15:04:05"))
	pad := innerWidth - lipgloss.Width(titleText) - lipgloss.Width(clock) - 4
	if pad < 1 {
		pad = 1
	}
	titleLine := titleText + strings.Repeat(" ", pad) + clock + " "

	statsLine := fmt.Sprintf(" %s  %s  v%s  up %s",
		statusText, mode, health.Version,
		formatDuration(time.Duration(health.UptimeSeconds)*time.Second),
	)
	activityLine := fmt.Sprintf(" Last event: %s %s", lastEvent, activity.Render(theme, now))

	content := lipgloss.JoinVertical(lipgloss.Left,
		titleLine,
		statsLine,
		summaryLine(board, theme),
		activityLine,
	)
	return theme.Border.Width(innerWidth).Render(content)
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
