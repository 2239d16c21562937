package executor

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/mattjoyce/labelgw/internal/driver"
	"github.com/mattjoyce/labelgw/internal/log"
	"github.com/mattjoyce/labelgw/internal/protocol"
)

// DriverFactory resolves a driver by name. driver.New satisfies it.
type DriverFactory func(name string) (driver.Driver, error)

// Worker exit codes.
const (
	ExitPrinted     = 0
	ExitFailed      = 1
	ExitUnreachable = 2 // could not even write the response
)

// RunWorker is the body of the worker process: read one request from in,
// drive the printer, write one response to out. The returned value is the
// process exit code. Callers must keep logging off out.
func RunWorker(in io.Reader, out io.Writer, newDriver DriverFactory) int {
	logger := log.WithComponent("worker")

	resp := &protocol.Response{Status: protocol.StatusOK}
	code := ExitPrinted

	if err := runJob(in, newDriver); err != nil {
		logger.Error("print failed", "error", err)
		resp = &protocol.Response{Status: protocol.StatusError, Error: err.Error()}
		code = ExitFailed
	}

	if err := protocol.EncodeResponse(out, resp); err != nil {
		logger.Error("failed to write response", "error", err)
		return ExitUnreachable
	}
	return code
}

func runJob(in io.Reader, newDriver DriverFactory) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("print worker panic: %v", r)
		}
	}()

	req, err := protocol.DecodeRequest(in)
	if err != nil {
		return err
	}
	logger := log.WithJob(req.JobID).With("component", "worker")

	drv, err := newDriver(req.Driver)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if !req.DeadlineAt.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, req.DeadlineAt)
		defer cancel()
	}

	start := time.Now()
	logger.Debug("rendering label", "driver", req.Driver, "label", req.Label, "model", req.Model)
	if err := drv.RenderAndSend(ctx, driver.Job{
		ImagePath:  req.ImagePath,
		Label:      req.Label,
		Model:      req.Model,
		PrinterURI: req.PrinterURI,
		Options: driver.Options{
			Threshold:     req.Options.Threshold,
			Rotate:        req.Options.Rotate,
			HighQuality:   req.Options.HighQuality,
			Cut:           req.Options.Cut,
			Backend:       req.Options.Backend,
			BrotherQLPath: req.Options.BrotherQLPath,
		},
	}); err != nil {
		return err
	}
	logger.Info("label sent to printer", "duration_ms", time.Since(start).Milliseconds())
	return nil
}
