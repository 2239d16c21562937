package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/mattjoyce/labelgw/internal/driver"
	"github.com/mattjoyce/labelgw/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDriver behaves according to the job's label so one factory serves every
// scenario, including the re-exec'd helper process.
type fakeDriver struct {
	got *driver.Job
}

func (f *fakeDriver) RenderAndSend(ctx context.Context, job driver.Job) error {
	if f.got != nil {
		*f.got = job
	}
	switch job.Label {
	case "bad":
		return errors.New("bad handle")
	case "panic":
		panic("usb backend exploded")
	case "hang":
		time.Sleep(time.Minute)
	}
	return nil
}

func fakeFactory(name string) (driver.Driver, error) {
	if name == "cups" {
		return nil, fmt.Errorf("unknown driver %q", name)
	}
	return &fakeDriver{}, nil
}

func encodedRequest(t *testing.T, label string) *bytes.Buffer {
	t.Helper()
	req := testRequest(label)
	req.Protocol = protocol.Version
	var buf bytes.Buffer
	require.NoError(t, protocol.EncodeRequest(&buf, req))
	return &buf
}

func decodeOut(t *testing.T, out *bytes.Buffer) *protocol.Response {
	t.Helper()
	resp, err := protocol.DecodeResponse(out)
	require.NoError(t, err)
	return resp
}

func TestRunWorkerSuccess(t *testing.T) {
	var got driver.Job
	factory := func(string) (driver.Driver, error) { return &fakeDriver{got: &got}, nil }

	var out bytes.Buffer
	code := RunWorker(encodedRequest(t, "62"), &out, factory)

	assert.Equal(t, ExitPrinted, code)
	assert.Equal(t, protocol.StatusOK, decodeOut(t, &out).Status)
	assert.Equal(t, "62", got.Label)
	assert.Equal(t, "QL-700", got.Model)
	assert.Equal(t, "/spool/job-1/label.png", got.ImagePath)
	assert.Equal(t, 70.0, got.Options.Threshold)
	assert.True(t, got.Options.Cut)
}

func TestRunWorkerDriverError(t *testing.T) {
	var out bytes.Buffer
	code := RunWorker(encodedRequest(t, "bad"), &out, fakeFactory)

	assert.Equal(t, ExitFailed, code)
	resp := decodeOut(t, &out)
	assert.Equal(t, protocol.StatusError, resp.Status)
	assert.Equal(t, "bad handle", resp.Error)
}

func TestRunWorkerRecoversPanic(t *testing.T) {
	var out bytes.Buffer
	code := RunWorker(encodedRequest(t, "panic"), &out, fakeFactory)

	assert.Equal(t, ExitFailed, code)
	assert.Equal(t, "print worker panic: usb backend exploded", decodeOut(t, &out).Error)
}

func TestRunWorkerUnknownDriver(t *testing.T) {
	req := testRequest("62")
	req.Protocol = protocol.Version
	req.Driver = "cups"
	var in, out bytes.Buffer
	require.NoError(t, protocol.EncodeRequest(&in, req))

	code := RunWorker(&in, &out, fakeFactory)
	assert.Equal(t, ExitFailed, code)
	assert.Contains(t, decodeOut(t, &out).Error, `unknown driver "cups"`)
}

func TestRunWorkerBadRequest(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "garbage", input: "not json", want: "failed to decode request"},
		{name: "wrong protocol", input: `{"protocol":9,"image_path":"a.png","label":"62"}`, want: "unsupported protocol version"},
		{name: "no image", input: `{"protocol":1,"label":"62"}`, want: "image_path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			code := RunWorker(strings.NewReader(tt.input), &out, fakeFactory)
			assert.Equal(t, ExitFailed, code)
			assert.Contains(t, decodeOut(t, &out).Error, tt.want)
		})
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestRunWorkerUnwritableStdout(t *testing.T) {
	code := RunWorker(encodedRequest(t, "62"), failingWriter{}, fakeFactory)
	assert.Equal(t, ExitUnreachable, code)
}

func TestRunWorkerPassesDeadline(t *testing.T) {
	var seen time.Time
	factory := func(string) (driver.Driver, error) {
		return driverFunc(func(ctx context.Context, _ driver.Job) error {
			seen, _ = ctx.Deadline()
			return nil
		}), nil
	}

	req := testRequest("62")
	req.Protocol = protocol.Version
	req.DeadlineAt = time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	var in, out bytes.Buffer
	require.NoError(t, protocol.EncodeRequest(&in, req))

	require.Equal(t, ExitPrinted, RunWorker(&in, &out, factory))
	assert.True(t, seen.Equal(req.DeadlineAt), "deadline %v, want %v", seen, req.DeadlineAt)
}

type driverFunc func(ctx context.Context, job driver.Job) error

func (f driverFunc) RenderAndSend(ctx context.Context, job driver.Job) error { return f(ctx, job) }
