package dispatch

import (
	"context"
	"fmt"
	"time"
)

// DecodeError reports an unusable request. Nothing was touched.
type DecodeError struct {
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// DriverError reports a print the worker could not complete.
type DriverError struct {
	Reason   string
	ExitCode int
	Err      error
}

func (e *DriverError) Error() string { return e.Reason }

func (e *DriverError) Unwrap() error { return e.Err }

// TimeoutError reports a worker that was killed at its deadline.
type TimeoutError struct {
	After time.Duration
}

func (e *TimeoutError) Error() string { return "Printing timed out" }

func (e *TimeoutError) Unwrap() error { return context.DeadlineExceeded }

// IOError reports local filesystem or locking trouble around a print.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
