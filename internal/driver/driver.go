// Package driver wraps the Brother QL printer driver: raster conversion of a
// label image and delivery of the command stream to the device.
//
// A driver is a pure adapter. It keeps no state between calls, never retries,
// and reports every failure as a single *Error.
package driver

import (
	"context"
	"errors"
	"fmt"
)

// Job is everything a driver needs to print one label.
type Job struct {
	ImagePath  string
	Label      string
	Model      string
	PrinterURI string
	Options    Options
}

// Options tunes raster conversion and, for the vendor CLI, the USB backend.
type Options struct {
	Threshold     float64 // percent, 0..100
	Rotate        string  // auto | 0 | 90 | 180 | 270
	HighQuality   bool
	Cut           bool
	Backend       string
	BrotherQLPath string
}

// Driver renders an image into printer instructions and sends them.
type Driver interface {
	RenderAndSend(ctx context.Context, job Job) error
}

// Kind classifies a driver failure.
type Kind string

const (
	KindImage  Kind = "image"
	KindLabel  Kind = "label"
	KindModel  Kind = "model"
	KindDevice Kind = "device"
)

// Error is the single error value a driver returns. Its message is the
// human-readable reason reported back to the caller.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind) + " error"
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// IsKind reports whether err is a driver *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var de *Error
	return errors.As(err, &de) && de.Kind == kind
}

// Names lists the drivers New can build.
var Names = []string{"native", "brother_ql"}

// New returns the driver registered under name.
func New(name string) (Driver, error) {
	switch name {
	case "", "native":
		return &Native{}, nil
	case "brother_ql":
		return &BrotherQL{}, nil
	default:
		return nil, fmt.Errorf("unknown driver %q", name)
	}
}
