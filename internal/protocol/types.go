package protocol

import "time"

// Version is the only protocol version the worker understands.
const Version = 1

// Response status values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Request is the envelope the executor writes to a print worker's stdin.
// Everything the worker needs travels by value; it shares no memory with the
// service process.
type Request struct {
	Protocol   int       `json:"protocol"`
	JobID      string    `json:"job_id"`
	Driver     string    `json:"driver"` // native | brother_ql
	ImagePath  string    `json:"image_path"`
	Label      string    `json:"label"`
	Model      string    `json:"model"`
	PrinterURI string    `json:"printer_uri"`
	Options    Options   `json:"options"`
	DeadlineAt time.Time `json:"deadline_at"`
}

// Options carries the raster conversion knobs.
type Options struct {
	Threshold     float64 `json:"threshold"`
	Rotate        string  `json:"rotate"`
	HighQuality   bool    `json:"high_quality"`
	Cut           bool    `json:"cut"`
	Backend       string  `json:"backend,omitempty"`
	BrotherQLPath string  `json:"brother_ql_path,omitempty"`
}

// Response is the single envelope a worker writes to stdout before exiting.
type Response struct {
	Status string `json:"status"` // ok | error
	Error  string `json:"error,omitempty"`
}
