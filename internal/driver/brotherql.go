package driver

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strconv"
	"strings"
)

const defaultBrotherQLPath = "brother_ql"

// BrotherQL delegates conversion and sending to the vendor brother_ql CLI.
// The CLI's last stderr line becomes the error message.
type BrotherQL struct{}

var _ Driver = (*BrotherQL)(nil)

// RenderAndSend runs `brother_ql ... print` for job.
func (b *BrotherQL) RenderAndSend(ctx context.Context, job Job) error {
	if _, ok := LookupLabel(job.Label); !ok {
		return newError(KindLabel, "unsupported label size %q", job.Label)
	}

	path := job.Options.BrotherQLPath
	if path == "" {
		path = defaultBrotherQLPath
	}

	cmd := exec.CommandContext(ctx, path, brotherQLArgs(job)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}

	if msg := lastLine(stderr.String()); msg != "" {
		return newError(KindDevice, "%s", msg)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return newError(KindDevice, "brother_ql exited with code %d", exitErr.ExitCode())
	}
	return newError(KindDevice, "run brother_ql: %v", err)
}

func brotherQLArgs(job Job) []string {
	backend := job.Options.Backend
	if backend == "" {
		backend = "pyusb"
	}
	rotate := job.Options.Rotate
	if rotate == "" {
		rotate = "auto"
	}

	args := []string{
		"-b", backend,
		"-m", job.Model,
		"-p", job.PrinterURI,
		"print",
		"-l", job.Label,
		"-r", rotate,
		"-t", strconv.FormatFloat(job.Options.Threshold, 'f', -1, 64),
	}
	if !job.Options.HighQuality {
		args = append(args, "--lq")
	}
	if !job.Options.Cut {
		args = append(args, "--no-cut")
	}
	return append(args, job.ImagePath)
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}
