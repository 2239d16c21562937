package api

import "time"

// PrintRequest is the JSON body for POST /print. Pointers distinguish a
// missing field from an empty one.
type PrintRequest struct {
	ImageData *string `json:"image_data"`
	LabelType *string `json:"label_type"`
}

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status        string `json:"status"`
	DryRun        bool   `json:"dry_run"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// RootResponse is returned by GET /.
type RootResponse struct {
	Service      string `json:"service"`
	Version      string `json:"version"`
	DryRun       bool   `json:"dry_run"`
	PrinterModel string `json:"printer_model"`
	TapeSize     string `json:"tape_size"`
	Driver       string `json:"driver"`
	Note         string `json:"note"`
}

// LabelResponse describes one supported label size.
type LabelResponse struct {
	Identifier    string `json:"identifier"`
	TapeSize      [2]int `json:"tape_size_mm"`
	DotsPrintable [2]int `json:"dots_printable"`
	FormFactor    string `json:"form_factor"`
}

// JobResponse is returned by GET /jobs/{jobID} and listed by GET /jobs.
type JobResponse struct {
	JobID       string     `json:"job_id"`
	Label       string     `json:"label"`
	Model       string     `json:"model"`
	Driver      string     `json:"driver"`
	DryRun      bool       `json:"dry_run"`
	Digest      string     `json:"digest"`
	SizeBytes   int        `json:"size_bytes"`
	Status      string     `json:"status"`
	Filename    *string    `json:"filename,omitempty"`
	Error       *string    `json:"error,omitempty"`
	ExitCode    *int       `json:"exit_code,omitempty"`
	DurationMS  *int64     `json:"duration_ms,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// JobListResponse is returned by GET /jobs.
type JobListResponse struct {
	Jobs []JobResponse `json:"jobs"`
}
