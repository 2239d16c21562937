package dispatch

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/mattjoyce/labelgw/internal/config"
	"github.com/mattjoyce/labelgw/internal/events"
	"github.com/mattjoyce/labelgw/internal/executor"
	"github.com/mattjoyce/labelgw/internal/journal"
	"github.com/mattjoyce/labelgw/internal/lock"
	"github.com/mattjoyce/labelgw/internal/log"
	"github.com/mattjoyce/labelgw/internal/protocol"
	"github.com/mattjoyce/labelgw/internal/spool"
)

const (
	spoolFileName = "label.png"
	maxLabelLen   = 32

	messagePrinted = "Label sent to printer"
)

var labelPattern = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// Request is one print call as received from a client.
type Request struct {
	ImageData string // base64, optionally a data: URL
	Label     string // label-size tag, e.g. "62" or "29x90"
}

// Result describes a successful dispatch.
type Result struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	DryRun   bool   `json:"dry_run"`
	Filename string `json:"filename,omitempty"`
	JobID    string `json:"job_id"`
	Digest   string `json:"digest"`
}

// PrintJob is the validated form of a Request. Image is never mutated.
type PrintJob struct {
	ID         string
	Image      []byte
	Label      string
	Model      string
	PrinterURI string
	Digest     string
}

// Deps are the collaborators of a Service. Journal and Events are optional;
// Lock is only used when printer.serialize is set.
type Deps struct {
	Runner  Runner
	Spool   *spool.Manager
	Output  *spool.OutputStore
	Lock    *lock.DeviceLock
	Journal Journal
	Events  Publisher
}

// Service dispatches print requests.
type Service struct {
	cfg     *config.Config
	runner  Runner
	spool   *spool.Manager
	output  *spool.OutputStore
	lock    *lock.DeviceLock
	journal Journal
	events  Publisher
	logger  *slog.Logger

	newID func() string
	now   func() time.Time
}

// New wires a Service from cfg. The config is read, never modified.
func New(cfg *config.Config, deps Deps) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if cfg.DryRun {
		if deps.Output == nil {
			return nil, fmt.Errorf("dry run requires an output store")
		}
	} else {
		if deps.Runner == nil {
			return nil, fmt.Errorf("live printing requires a runner")
		}
		if deps.Spool == nil {
			return nil, fmt.Errorf("live printing requires a spool")
		}
		if cfg.Printer.Serialize && deps.Lock == nil {
			return nil, fmt.Errorf("printer.serialize requires a device lock")
		}
	}

	return &Service{
		cfg:     cfg,
		runner:  deps.Runner,
		spool:   deps.Spool,
		output:  deps.Output,
		lock:    deps.Lock,
		journal: deps.Journal,
		events:  deps.Events,
		logger:  log.WithComponent("dispatch"),
		newID:   uuid.NewString,
		now:     time.Now,
	}, nil
}

// DryRun reports whether the service persists labels instead of printing.
func (s *Service) DryRun() bool { return s.cfg.DryRun }

// Dispatch validates req and either persists the image (dry run) or prints it
// through the executor. The returned error is one of *DecodeError,
// *DriverError, *TimeoutError or *IOError.
func (s *Service) Dispatch(ctx context.Context, req Request) (*Result, error) {
	job, err := s.prepare(req)
	if err != nil {
		return nil, err
	}

	logger := s.logger.With("job_id", job.ID, "label", job.Label, "dry_run", s.cfg.DryRun)
	// The journal must see the outcome even if the client has gone away.
	bg := context.WithoutCancel(ctx)

	recorded := s.record(bg, job, logger)
	s.publish(events.TypePrintStarted, events.PrintStarted{
		JobID:  job.ID,
		Label:  job.Label,
		DryRun: s.cfg.DryRun,
		Digest: job.Digest,
	})

	start := s.now()
	var (
		res *Result
		out *executor.Outcome
	)
	if s.cfg.DryRun {
		res, err = s.saveDryRun(ctx, job)
	} else {
		res, out, err = s.printLive(ctx, job, logger)
	}
	elapsed := s.now().Sub(start)

	completion := completionFor(res, out, err, elapsed)
	if recorded {
		if cerr := s.journal.Complete(bg, job.ID, completion); cerr != nil {
			logger.Warn("failed to complete journal entry", "error", cerr)
		}
	}
	s.publish(events.TypePrintCompleted, events.PrintCompleted{
		JobID:      job.ID,
		Status:     string(completion.Status),
		Error:      completion.Error,
		Filename:   completion.Filename,
		DurationMS: elapsed.Milliseconds(),
	})

	if err != nil {
		logger.Error("print failed", "error", err, "status", completion.Status, "duration_ms", elapsed.Milliseconds())
		return nil, err
	}
	logger.Info("print succeeded", "filename", res.Filename, "duration_ms", elapsed.Milliseconds())
	return res, nil
}

// prepare performs every check that can fail without side effects.
func (s *Service) prepare(req Request) (*PrintJob, error) {
	if err := validateLabel(req.Label); err != nil {
		return nil, &DecodeError{Field: "label_type", Err: err}
	}
	image, err := decodeImage(req.ImageData)
	if err != nil {
		return nil, &DecodeError{Field: "image_data", Err: err}
	}

	sum := blake3.Sum256(image)
	return &PrintJob{
		ID:         s.newID(),
		Image:      image,
		Label:      req.Label,
		Model:      s.cfg.Printer.Model,
		PrinterURI: s.cfg.Printer.URI,
		Digest:     hex.EncodeToString(sum[:]),
	}, nil
}

func (s *Service) saveDryRun(ctx context.Context, job *PrintJob) (*Result, error) {
	path, err := s.output.Save(ctx, job.Label, job.Image)
	if err != nil {
		return nil, &IOError{Op: "save label", Err: err}
	}
	return &Result{
		Status:   "success",
		Message:  fmt.Sprintf("Label saved to %s (dry run mode)", path),
		DryRun:   true,
		Filename: filepath.Base(path),
		JobID:    job.ID,
		Digest:   job.Digest,
	}, nil
}

func (s *Service) printLive(ctx context.Context, job *PrintJob, logger *slog.Logger) (*Result, *executor.Outcome, error) {
	_, imagePath, err := s.spool.Materialize(ctx, job.ID, spoolFileName, job.Image)
	if err != nil {
		return nil, nil, &IOError{Op: "spool label", Err: err}
	}
	defer func() {
		if err := s.spool.Remove(job.ID); err != nil {
			logger.Warn("failed to remove spool", "error", err)
		}
	}()

	if s.cfg.Printer.Serialize {
		lctx, cancel := context.WithTimeout(ctx, s.cfg.Printer.LockTimeout)
		release, err := s.lock.Acquire(lctx)
		cancel()
		if err != nil {
			if errors.Is(err, lock.ErrLocked) {
				return nil, nil, &IOError{Op: "printer busy", Err: err}
			}
			return nil, nil, &IOError{Op: "lock printer", Err: err}
		}
		defer release()
	}

	p := s.cfg.Printer
	out := s.runner.Run(&protocol.Request{
		JobID:      job.ID,
		Driver:     p.Driver,
		ImagePath:  imagePath,
		Label:      job.Label,
		Model:      job.Model,
		PrinterURI: job.PrinterURI,
		Options: protocol.Options{
			Threshold:     p.Threshold,
			Rotate:        p.Rotate,
			HighQuality:   p.HighQuality,
			Cut:           p.Cut,
			Backend:       p.Backend,
			BrotherQLPath: p.BrotherQLPath,
		},
	})

	switch out.Status {
	case executor.StatusSuccess:
		return &Result{
			Status:  "success",
			Message: messagePrinted,
			DryRun:  false,
			JobID:   job.ID,
			Digest:  job.Digest,
		}, &out, nil
	case executor.StatusTimeout:
		return nil, &out, &TimeoutError{After: p.Timeout}
	default:
		reason := out.Reason
		if reason == "" {
			reason = fmt.Sprintf("print worker exited with code %d", out.ExitCode)
		}
		return nil, &out, &DriverError{Reason: reason, ExitCode: out.ExitCode}
	}
}

func (s *Service) record(ctx context.Context, job *PrintJob, logger *slog.Logger) bool {
	if s.journal == nil {
		return false
	}
	err := s.journal.Record(ctx, journal.RecordRequest{
		ID:         job.ID,
		Label:      job.Label,
		Model:      job.Model,
		PrinterURI: job.PrinterURI,
		Driver:     s.cfg.Printer.Driver,
		DryRun:     s.cfg.DryRun,
		Digest:     job.Digest,
		SizeBytes:  len(job.Image),
	})
	if err != nil {
		logger.Warn("failed to record journal entry", "error", err)
		return false
	}
	return true
}

func (s *Service) publish(eventType string, data any) {
	if s.events != nil {
		s.events.Publish(eventType, data)
	}
}

func completionFor(res *Result, out *executor.Outcome, err error, elapsed time.Duration) journal.Completion {
	c := journal.Completion{Duration: elapsed}
	if out != nil {
		code := out.ExitCode
		c.ExitCode = &code
		c.Stderr = out.Stderr
	}

	var timeoutErr *TimeoutError
	switch {
	case err == nil:
		c.Status = journal.StatusSucceeded
		c.Filename = res.Filename
	case errors.As(err, &timeoutErr):
		c.Status = journal.StatusTimedOut
		c.Error = err.Error()
	default:
		c.Status = journal.StatusFailed
		c.Error = err.Error()
	}
	return c
}

func validateLabel(label string) error {
	switch {
	case label == "":
		return errors.New("label_type is required")
	case len(label) > maxLabelLen:
		return fmt.Errorf("label_type longer than %d characters", maxLabelLen)
	case !labelPattern.MatchString(label):
		return fmt.Errorf("label_type %q must be alphanumeric, e.g. 62 or 29x90", label)
	}
	return nil
}

// decodeImage accepts standard padded base64, optionally wrapped in a
// data: URL and broken across lines.
func decodeImage(data string) ([]byte, error) {
	s := strings.TrimSpace(data)
	if strings.HasPrefix(s, "data:") {
		i := strings.Index(s, ";base64,")
		if i < 0 {
			return nil, errors.New("data URL is not base64 encoded")
		}
		s = s[i+len(";base64,"):]
	}
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, s)

	if s == "" {
		return nil, errors.New("image is empty")
	}
	image, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(image) == 0 {
		return nil, errors.New("image is empty")
	}
	return image, nil
}
