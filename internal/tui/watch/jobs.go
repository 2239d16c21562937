package watch

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"

	"github.com/mattjoyce/labelgw/internal/events"
)

const maxRecentJobs = 20

// JobState tracks one print job seen on the event stream.
type JobState struct {
	ID       string
	Label    string
	DryRun   bool
	Status   string // printing, succeeded, failed, timed_out
	Error    string
	Filename string
	Started  time.Time
	Duration time.Duration
}

// Board aggregates job state from print events.
type Board struct {
	active map[string]*JobState
	recent []*JobState // newest first
	counts map[string]int
}

func NewBoard() *Board {
	return &Board{
		active: make(map[string]*JobState),
		counts: make(map[string]int),
	}
}

// Apply folds one event into the board.
func (b *Board) Apply(e events.Event) {
	switch e.Type {
	case events.TypePrintStarted:
		var d events.PrintStarted
		if json.Unmarshal(e.Data, &d) != nil || d.JobID == "" {
			return
		}
		b.active[d.JobID] = &JobState{
			ID:      d.JobID,
			Label:   d.Label,
			DryRun:  d.DryRun,
			Status:  "printing",
			Started: e.At,
		}

	case events.TypePrintCompleted:
		var d events.PrintCompleted
		if json.Unmarshal(e.Data, &d) != nil || d.JobID == "" {
			return
		}
		job, ok := b.active[d.JobID]
		if !ok {
			// Started before we connected.
			job = &JobState{ID: d.JobID, Started: e.At}
		}
		delete(b.active, d.JobID)
		job.Status = d.Status
		job.Error = d.Error
		job.Filename = d.Filename
		job.Duration = time.Duration(d.DurationMS) * time.Millisecond

		b.counts[d.Status]++
		b.recent = append([]*JobState{job}, b.recent...)
		if len(b.recent) > maxRecentJobs {
			b.recent = b.recent[:maxRecentJobs]
		}
	}
}

// Active returns the number of in-flight jobs.
func (b *Board) Active() int { return len(b.active) }

// Count returns how many jobs finished with status.
func (b *Board) Count(status string) int { return b.counts[status] }

// Rows renders in-flight jobs followed by recent ones as table rows.
func (b *Board) Rows(now time.Time) []table.Row {
	rows := make([]table.Row, 0, len(b.active)+len(b.recent))
	for _, job := range b.active {
		rows = append(rows, jobRow(job, now.Sub(job.Started).Round(time.Millisecond)))
	}
	for _, job := range b.recent {
		rows = append(rows, jobRow(job, job.Duration))
	}
	return rows
}

func jobRow(job *JobState, elapsed time.Duration) table.Row {
	id := job.ID
	if len(id) > 8 {
		id = id[:8]
	}
	detail := job.Error
	if detail == "" {
		detail = job.Filename
	}
	mode := "live"
	if job.DryRun {
		mode = "dry"
	}
	return table.Row{id, job.Label, mode, job.Status, elapsed.String(), detail}
}

func newJobTable(width int) table.Model {
	detailWidth := width - 8 - 8 - 6 - 12 - 10 - 16
	if detailWidth < 10 {
		detailWidth = 10
	}
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "JOB", Width: 8},
			{Title: "LABEL", Width: 8},
			{Title: "MODE", Width: 6},
			{Title: "STATUS", Width: 12},
			{Title: "TIME", Width: 10},
			{Title: "DETAIL", Width: detailWidth},
		}),
		table.WithHeight(maxRecentJobs/2),
	)
	return t
}

func summaryLine(b *Board, theme Theme) string {
	return fmt.Sprintf(" %s %d  %s %d  %s %d  %s %d",
		theme.StatusRunning.Render("printing"), b.Active(),
		theme.StatusOK.Render("ok"), b.Count("succeeded"),
		theme.StatusFailed.Render("failed"), b.Count("failed"),
		theme.StatusFailed.Render("timed out"), b.Count("timed_out"),
	)
}
