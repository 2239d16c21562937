package journal

import (
	"errors"
	"time"
)

type Status string

const (
	StatusQueued    Status = "queued"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusTimedOut  Status = "timed_out"
)

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusTimedOut
}

var ErrJobNotFound = errors.New("job not found")

// Entry is one print job as recorded in the journal.
type Entry struct {
	ID          string         `json:"id"`
	Label       string         `json:"label"`
	Model       string         `json:"model"`
	PrinterURI  string         `json:"printer_uri"`
	Driver      string         `json:"driver"`
	DryRun      bool           `json:"dry_run"`
	Digest      string         `json:"digest"`
	SizeBytes   int            `json:"size_bytes"`
	Status      Status         `json:"status"`
	Filename    *string        `json:"filename,omitempty"`
	Error       *string        `json:"error,omitempty"`
	ExitCode    *int           `json:"exit_code,omitempty"`
	Stderr      *string        `json:"stderr,omitempty"`
	Duration    *time.Duration `json:"duration_ns,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

type RecordRequest struct {
	ID         string
	Label      string
	Model      string
	PrinterURI string
	Driver     string
	DryRun     bool
	Digest     string
	SizeBytes  int
}

// Completion carries the terminal state of a job.
type Completion struct {
	Status   Status
	Filename string
	Error    string
	ExitCode *int
	Stderr   string
	Duration time.Duration
}

// ListFilter narrows List. Zero values mean no filter; Limit defaults to 50.
type ListFilter struct {
	Status Status
	Label  string
	Limit  int
}
