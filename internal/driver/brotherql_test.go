package driver

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeBrotherQL(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "brother_ql")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestBrotherQLSuccess(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args")
	cli := fakeBrotherQL(t, "#!/bin/sh\necho \"$@\" > "+argsFile+"\n")

	job := Job{
		ImagePath:  "/spool/job/label.png",
		Label:      "29x90",
		Model:      "QL-700",
		PrinterURI: "usb://0x04f9:0x209b",
		Options:    Options{Threshold: 70, Rotate: "auto", HighQuality: true, Cut: true, BrotherQLPath: cli},
	}
	require.NoError(t, (&BrotherQL{}).RenderAndSend(context.Background(), job))

	got, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Equal(t,
		"-b pyusb -m QL-700 -p usb://0x04f9:0x209b print -l 29x90 -r auto -t 70 /spool/job/label.png",
		strings.TrimSpace(string(got)))
}

func TestBrotherQLArgsFlags(t *testing.T) {
	args := brotherQLArgs(Job{
		ImagePath: "a.png", Label: "62", Model: "QL-800", PrinterURI: "file:///dev/usb/lp0",
		Options: Options{Threshold: 55.5, Rotate: "90", Backend: "linux_kernel"},
	})
	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-b linux_kernel")
	assert.Contains(t, joined, "-r 90")
	assert.Contains(t, joined, "-t 55.5")
	assert.Contains(t, joined, "--lq")
	assert.Contains(t, joined, "--no-cut")
	assert.Equal(t, "a.png", args[len(args)-1])
}

func TestBrotherQLFailureUsesStderr(t *testing.T) {
	cli := fakeBrotherQL(t, "#!/bin/sh\necho 'Traceback (most recent call last):' >&2\necho 'bad handle' >&2\nexit 1\n")

	err := (&BrotherQL{}).RenderAndSend(context.Background(), Job{
		ImagePath: "x.png", Label: "62", Model: "QL-700", PrinterURI: "usb://0x04f9:0x209b",
		Options: Options{BrotherQLPath: cli},
	})
	require.Error(t, err)
	assert.Equal(t, "bad handle", err.Error())
	assert.True(t, IsKind(err, KindDevice))
}

func TestBrotherQLSilentFailure(t *testing.T) {
	cli := fakeBrotherQL(t, "#!/bin/sh\nexit 3\n")

	err := (&BrotherQL{}).RenderAndSend(context.Background(), Job{
		ImagePath: "x.png", Label: "62", Model: "QL-700", PrinterURI: "usb://0x04f9:0x209b",
		Options: Options{BrotherQLPath: cli},
	})
	require.Error(t, err)
	assert.Equal(t, "brother_ql exited with code 3", err.Error())
}

func TestBrotherQLMissingBinary(t *testing.T) {
	err := (&BrotherQL{}).RenderAndSend(context.Background(), Job{
		ImagePath: "x.png", Label: "62", Model: "QL-700",
		Options: Options{BrotherQLPath: filepath.Join(t.TempDir(), "missing")},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run brother_ql")
}

func TestBrotherQLRejectsUnknownLabel(t *testing.T) {
	err := (&BrotherQL{}).RenderAndSend(context.Background(), Job{Label: "63"})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindLabel))
}
