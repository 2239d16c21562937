package executor

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/mattjoyce/labelgw/internal/log"
	"github.com/mattjoyce/labelgw/internal/protocol"
)

const (
	// maxStderrBytes caps the amount of stderr captured from a worker.
	maxStderrBytes = 64 * 1024

	// maxStdoutBytes caps stdout; a response envelope is a few hundred bytes.
	maxStdoutBytes = 1024 * 1024

	// pipeDrainDelay bounds how long Wait may block on pipes after the worker
	// exits (e.g. a grandchild still holding stdout).
	pipeDrainDelay = 2 * time.Second

	// DefaultTimeout is the wall-clock budget of one print.
	DefaultTimeout = 30 * time.Second

	// TimeoutReason is the failure message reported for a killed worker.
	TimeoutReason = "Printing timed out"
)

// Status is the kind of an Outcome.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusTimeout Status = "timeout"
)

// Outcome is the single result of one isolated print.
type Outcome struct {
	Status   Status
	Reason   string // empty on success
	ExitCode int    // -1 when the worker never exited on its own
	Stderr   string
	Duration time.Duration
}

// OK reports whether the print succeeded.
func (o Outcome) OK() bool { return o.Status == StatusSuccess }

// Executor spawns one worker process per job.
type Executor struct {
	command []string
	timeout time.Duration
	logger  *slog.Logger
}

// New creates an Executor that runs command (argv) for each job and kills it
// after timeout.
func New(command []string, timeout time.Duration) (*Executor, error) {
	if len(command) == 0 || strings.TrimSpace(command[0]) == "" {
		return nil, fmt.Errorf("worker command is empty")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Executor{
		command: append([]string(nil), command...),
		timeout: timeout,
		logger:  log.WithComponent("executor"),
	}, nil
}

// Timeout returns the per-job deadline.
func (e *Executor) Timeout() time.Duration { return e.timeout }

// Run executes req in a fresh worker process and blocks until the worker
// finishes or the timeout expires. It always returns exactly one Outcome.
func (e *Executor) Run(req *protocol.Request) Outcome {
	started := time.Now()
	logger := e.logger.With("job_id", req.JobID)

	r := *req
	r.Protocol = protocol.Version
	r.DeadlineAt = started.Add(e.timeout).UTC()

	h, err := newHandle(e.command, &r)
	if err != nil {
		logger.Error("failed to prepare print worker", "error", err)
		return failure(err.Error(), -1, "", started)
	}

	logger.Debug("spawning print worker", "command", e.command[0], "timeout", e.timeout)
	if err := h.start(); err != nil {
		logger.Error("failed to start print worker", "error", err)
		return failure(err.Error(), -1, "", started)
	}

	timer := time.NewTimer(e.timeout)
	defer timer.Stop()

	select {
	case <-timer.C:
		logger.Warn("print worker timed out, killing process group", "pid", h.pid(), "timeout", e.timeout)
		h.kill()
		<-h.done
		return Outcome{
			Status:   StatusTimeout,
			Reason:   TimeoutReason,
			ExitCode: -1,
			Stderr:   h.stderr.String(),
			Duration: time.Since(started),
		}
	case waitErr := <-h.done:
		out := h.outcome(waitErr)
		out.Duration = time.Since(started)
		if out.OK() {
			logger.Info("print worker succeeded", "duration_ms", out.Duration.Milliseconds())
		} else {
			logger.Warn("print worker failed", "reason", out.Reason, "exit_code", out.ExitCode)
		}
		return out
	}
}

func failure(reason string, code int, stderr string, started time.Time) Outcome {
	return Outcome{
		Status:   StatusFailure,
		Reason:   reason,
		ExitCode: code,
		Stderr:   stderr,
		Duration: time.Since(started),
	}
}

// handle is the ExecutionHandle for one job: the process, its pipes and the
// channel that reports its exit. It is never reused.
type handle struct {
	cmd    *exec.Cmd
	stdout cappedBuffer
	stderr cappedBuffer
	done   chan error
}

func newHandle(command []string, req *protocol.Request) (*handle, error) {
	var stdin bytes.Buffer
	if err := protocol.EncodeRequest(&stdin, req); err != nil {
		return nil, fmt.Errorf("encode print request: %w", err)
	}

	h := &handle{
		stdout: cappedBuffer{limit: maxStdoutBytes},
		stderr: cappedBuffer{limit: maxStderrBytes},
		done:   make(chan error, 1),
	}

	cmd := exec.Command(command[0], command[1:]...)
	cmd.Stdin = &stdin
	cmd.Stdout = &h.stdout
	cmd.Stderr = &h.stderr
	// Own process group so a kill also reaches anything the driver spawned.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.WaitDelay = pipeDrainDelay
	h.cmd = cmd

	return h, nil
}

func (h *handle) start() error {
	if err := h.cmd.Start(); err != nil {
		return fmt.Errorf("start print worker: %w", err)
	}
	go func() {
		h.done <- h.cmd.Wait()
	}()
	return nil
}

func (h *handle) pid() int {
	if h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

// kill SIGKILLs the worker's whole process group.
func (h *handle) kill() {
	pid := h.pid()
	if pid <= 0 {
		return
	}
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		_ = h.cmd.Process.Kill()
	}
}

// outcome maps a finished worker to an Outcome. The worker's own message wins
// over anything derived from the exit status.
func (h *handle) outcome(waitErr error) Outcome {
	stderr := h.stderr.String()

	exitCode := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			if errors.Is(waitErr, exec.ErrWaitDelay) && h.cmd.ProcessState != nil {
				exitCode = h.cmd.ProcessState.ExitCode()
			} else {
				return Outcome{Status: StatusFailure, Reason: fmt.Sprintf("wait for print worker: %v", waitErr), ExitCode: -1, Stderr: stderr}
			}
		} else {
			exitCode = exitErr.ExitCode()
		}
	}

	resp, _, decodeErr := protocol.DecodeResponseLenient(bytes.NewReader(h.stdout.Bytes()))

	switch {
	case decodeErr == nil && resp.Status == protocol.StatusError:
		return Outcome{Status: StatusFailure, Reason: resp.Error, ExitCode: exitCode, Stderr: stderr}
	case exitCode != 0:
		reason := lastStderrLine(stderr)
		if reason == "" {
			reason = exitReason(h.cmd.ProcessState, exitCode)
		}
		return Outcome{Status: StatusFailure, Reason: reason, ExitCode: exitCode, Stderr: stderr}
	case decodeErr != nil:
		return Outcome{Status: StatusFailure, Reason: fmt.Sprintf("print worker returned no result: %v", decodeErr), ExitCode: exitCode, Stderr: stderr}
	default:
		return Outcome{Status: StatusSuccess, ExitCode: 0, Stderr: stderr}
	}
}

// lastStderrLine returns the last plain-text line a crashed worker wrote to
// stderr. Structured log lines are skipped.
func lastStderrLine(stderr string) string {
	lines := strings.Split(stderr, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" || strings.HasPrefix(line, "{") {
			continue
		}
		return line
	}
	return ""
}

func exitReason(state *os.ProcessState, code int) string {
	if state != nil {
		if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return fmt.Sprintf("print worker terminated by signal: %v", ws.Signal())
		}
	}
	return fmt.Sprintf("print worker exited with code %d", code)
}

// cappedBuffer keeps the first limit bytes written and silently drops the rest
// so a chatty worker can never block on a full pipe.
type cappedBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	if room := c.limit - c.buf.Len(); room > 0 {
		if len(p) > room {
			c.buf.Write(p[:room])
		} else {
			c.buf.Write(p)
		}
	}
	return len(p), nil
}

func (c *cappedBuffer) Bytes() []byte  { return c.buf.Bytes() }
func (c *cappedBuffer) String() string { return c.buf.String() }
