package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mattjoyce/labelgw/internal/dispatch"
	"github.com/mattjoyce/labelgw/internal/events"
	"github.com/mattjoyce/labelgw/internal/journal"
)

// mockDispatcher implements Dispatcher for testing
type mockDispatcher struct {
	dispatchFunc func(ctx context.Context, req dispatch.Request) (*dispatch.Result, error)

	mu    sync.Mutex
	calls []dispatch.Request
}

func (m *mockDispatcher) Dispatch(ctx context.Context, req dispatch.Request) (*dispatch.Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()
	if m.dispatchFunc == nil {
		return &dispatch.Result{Status: "success", Message: "Label sent to printer", JobID: "job-1"}, nil
	}
	return m.dispatchFunc(ctx, req)
}

func (m *mockDispatcher) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// mockJobs implements JobStore for testing
type mockJobs struct {
	getFunc  func(ctx context.Context, id string) (*journal.Entry, error)
	listFunc func(ctx context.Context, f journal.ListFilter) ([]journal.Entry, error)
}

func (m *mockJobs) Get(ctx context.Context, id string) (*journal.Entry, error) {
	return m.getFunc(ctx, id)
}

func (m *mockJobs) List(ctx context.Context, f journal.ListFilter) ([]journal.Entry, error) {
	return m.listFunc(ctx, f)
}

const testAPIKey = "test-key-123"

func newTestServer(d *mockDispatcher, jobs JobStore) *Server {
	config := Config{
		Listen:       "localhost:8000",
		APIKey:       testAPIKey,
		ServiceName:  "labelgw",
		Version:      "2.0.0",
		DryRun:       true,
		PrinterModel: "QL-700",
		TapeSize:     "62",
		Driver:       "native",
	}
	return New(config, d, jobs, events.NewHub(10), slog.Default())
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	s.setupRoutes().ServeHTTP(rr, req)
	return rr
}

func printRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/print", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	return req
}

func decodeDetail(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return resp.Detail
}

func TestHandleRoot(t *testing.T) {
	server := newTestServer(&mockDispatcher{}, nil)

	rr := serve(server, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp RootResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Service != "labelgw" || resp.Version != "2.0.0" {
		t.Fatalf("unexpected service info: %+v", resp)
	}
	if !resp.DryRun {
		t.Fatalf("expected dry_run true")
	}
	if resp.PrinterModel != "QL-700" || resp.TapeSize != "62" {
		t.Fatalf("unexpected printer info: %+v", resp)
	}
	if resp.Note != rootNote {
		t.Fatalf("unexpected note %q", resp.Note)
	}
}

func TestHandleHealth_NoAuth(t *testing.T) {
	server := newTestServer(&mockDispatcher{}, nil)

	rr := serve(server, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp HealthResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "healthy" {
		t.Fatalf("expected status healthy, got %q", resp.Status)
	}
	if !resp.DryRun {
		t.Fatalf("expected dry_run true")
	}
	if resp.Version != "2.0.0" {
		t.Fatalf("expected version 2.0.0, got %q", resp.Version)
	}
	if resp.UptimeSeconds < 0 {
		t.Fatalf("expected non-negative uptime_seconds")
	}
}

func TestHandleLabels(t *testing.T) {
	server := newTestServer(&mockDispatcher{}, nil)

	rr := serve(server, httptest.NewRequest(http.MethodGet, "/labels", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp struct {
		Labels []LabelResponse `json:"labels"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	var found bool
	for _, l := range resp.Labels {
		if l.Identifier == "62" {
			found = true
			if l.TapeSize[0] != 62 {
				t.Fatalf("expected 62mm tape, got %v", l.TapeSize)
			}
			if l.FormFactor != "endless" {
				t.Fatalf("expected endless form factor, got %q", l.FormFactor)
			}
		}
	}
	if !found {
		t.Fatalf("label 62 missing from catalogue: %+v", resp.Labels)
	}
}

func TestHandlePrint_Success(t *testing.T) {
	d := &mockDispatcher{
		dispatchFunc: func(ctx context.Context, req dispatch.Request) (*dispatch.Result, error) {
			return &dispatch.Result{
				Status:   "success",
				Message:  "Label saved to /out/label_62_x.png (dry run mode)",
				DryRun:   true,
				Filename: "label_62_x.png",
				JobID:    "job-1",
				Digest:   "abc",
			}, nil
		},
	}
	server := newTestServer(d, nil)

	rr := serve(server, printRequest(`{"image_data":"aGVsbG8=","label_type":"62"}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp dispatch.Result
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "success" || resp.Filename != "label_62_x.png" || !resp.DryRun {
		t.Fatalf("unexpected result: %+v", resp)
	}

	if d.callCount() != 1 {
		t.Fatalf("expected 1 dispatch, got %d", d.callCount())
	}
	if got := d.calls[0]; got.ImageData != "aGVsbG8=" || got.Label != "62" {
		t.Fatalf("unexpected dispatch request: %+v", got)
	}
}

func TestHandlePrint_DispatchError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "driver",
			err:  &dispatch.DriverError{Reason: "bad handle", ExitCode: 1},
			want: "Failed to print label: bad handle",
		},
		{
			name: "timeout",
			err:  &dispatch.TimeoutError{After: 30 * time.Second},
			want: "Failed to print label: Printing timed out",
		},
		{
			name: "decode",
			err:  &dispatch.DecodeError{Field: "image_data", Err: errors.New("illegal base64 data at input byte 4")},
			want: "Failed to print label: invalid image_data: illegal base64 data at input byte 4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &mockDispatcher{
				dispatchFunc: func(ctx context.Context, req dispatch.Request) (*dispatch.Result, error) {
					return nil, tt.err
				},
			}
			server := newTestServer(d, nil)

			rr := serve(server, printRequest(`{"image_data":"aGVsbG8=","label_type":"62"}`))
			if rr.Code != http.StatusInternalServerError {
				t.Fatalf("expected status 500, got %d", rr.Code)
			}
			if got := decodeDetail(t, rr); got != tt.want {
				t.Fatalf("expected detail %q, got %q", tt.want, got)
			}
		})
	}
}

func TestHandlePrint_BadRequest(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "empty body", body: "", want: "request body is empty"},
		{name: "invalid json", body: "{not json", want: "invalid JSON body"},
		{name: "missing image", body: `{"label_type":"62"}`, want: "image_data is required"},
		{name: "missing label", body: `{"image_data":"aGVsbG8="}`, want: "label_type is required"},
		{name: "wrong type", body: `{"image_data":1,"label_type":"62"}`, want: "invalid JSON body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &mockDispatcher{}
			server := newTestServer(d, nil)

			rr := serve(server, printRequest(tt.body))
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", rr.Code)
			}
			if got := decodeDetail(t, rr); !strings.Contains(got, tt.want) {
				t.Fatalf("expected detail containing %q, got %q", tt.want, got)
			}
			if d.callCount() != 0 {
				t.Fatalf("expected no dispatch for a bad request")
			}
		})
	}
}

func TestHandlePrint_BodyTooLarge(t *testing.T) {
	d := &mockDispatcher{}
	server := newTestServer(d, nil)
	server.config.MaxBodyBytes = 64

	body := `{"image_data":"` + strings.Repeat("A", 128) + `","label_type":"62"}`
	rr := serve(server, printRequest(body))
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected status 413, got %d", rr.Code)
	}
	if d.callCount() != 0 {
		t.Fatalf("expected no dispatch for an oversized body")
	}
}

func TestHandlePrint_Unauthorized(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{name: "missing", header: ""},
		{name: "wrong key", header: "Bearer nope"},
		{name: "wrong scheme", header: "Basic " + testAPIKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &mockDispatcher{}
			server := newTestServer(d, nil)

			req := httptest.NewRequest(http.MethodPost, "/print", strings.NewReader(`{"image_data":"aGVsbG8=","label_type":"62"}`))
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := serve(server, req)
			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("expected status 401, got %d", rr.Code)
			}
			if rr.Header().Get("WWW-Authenticate") == "" {
				t.Fatalf("expected WWW-Authenticate header")
			}
			if d.callCount() != 0 {
				t.Fatalf("expected no dispatch without auth")
			}
		})
	}
}

func TestHandlePrint_AuthDisabled(t *testing.T) {
	d := &mockDispatcher{}
	server := newTestServer(d, nil)
	server.config.APIKey = ""

	req := httptest.NewRequest(http.MethodPost, "/print", strings.NewReader(`{"image_data":"aGVsbG8=","label_type":"62"}`))
	rr := serve(server, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
}

func TestHandleGetJob_Success(t *testing.T) {
	filename := "label_62_x.png"
	code := 0
	dur := 1500 * time.Millisecond
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	jobs := &mockJobs{
		getFunc: func(ctx context.Context, id string) (*journal.Entry, error) {
			return &journal.Entry{
				ID:        id,
				Label:     "62",
				Model:     "QL-700",
				Driver:    "native",
				DryRun:    true,
				Digest:    "abc",
				SizeBytes: 10,
				Status:    journal.StatusSucceeded,
				Filename:  &filename,
				ExitCode:  &code,
				Duration:  &dur,
				CreatedAt: created,
			}, nil
		},
	}
	server := newTestServer(&mockDispatcher{}, jobs)

	req := httptest.NewRequest(http.MethodGet, "/jobs/job-42", nil)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	rr := serve(server, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp JobResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.JobID != "job-42" || resp.Status != "succeeded" {
		t.Fatalf("unexpected job: %+v", resp)
	}
	if resp.DurationMS == nil || *resp.DurationMS != 1500 {
		t.Fatalf("expected duration_ms 1500, got %v", resp.DurationMS)
	}
	if resp.Filename == nil || *resp.Filename != filename {
		t.Fatalf("expected filename %q, got %v", filename, resp.Filename)
	}
}

func TestHandleGetJob_NotFound(t *testing.T) {
	jobs := &mockJobs{
		getFunc: func(ctx context.Context, id string) (*journal.Entry, error) {
			return nil, journal.ErrJobNotFound
		},
	}
	server := newTestServer(&mockDispatcher{}, jobs)

	req := httptest.NewRequest(http.MethodGet, "/jobs/missing", nil)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	rr := serve(server, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestHandleGetJob_StoreError(t *testing.T) {
	jobs := &mockJobs{
		getFunc: func(ctx context.Context, id string) (*journal.Entry, error) {
			return nil, errors.New("database is locked")
		},
	}
	server := newTestServer(&mockDispatcher{}, jobs)

	req := httptest.NewRequest(http.MethodGet, "/jobs/job-1", nil)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	rr := serve(server, req)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rr.Code)
	}
	if got := decodeDetail(t, rr); strings.Contains(got, "locked") {
		t.Fatalf("store error leaked to client: %q", got)
	}
}

func TestHandleListJobs(t *testing.T) {
	var seen journal.ListFilter
	jobs := &mockJobs{
		listFunc: func(ctx context.Context, f journal.ListFilter) ([]journal.Entry, error) {
			seen = f
			return []journal.Entry{
				{ID: "b", Label: "62", Status: journal.StatusFailed},
				{ID: "a", Label: "62", Status: journal.StatusFailed},
			}, nil
		},
	}
	server := newTestServer(&mockDispatcher{}, jobs)

	req := httptest.NewRequest(http.MethodGet, "/jobs?status=failed&label=62&limit=5", nil)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	rr := serve(server, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	if seen.Status != journal.StatusFailed || seen.Label != "62" || seen.Limit != 5 {
		t.Fatalf("unexpected filter: %+v", seen)
	}

	var resp JobListResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Jobs) != 2 || resp.Jobs[0].JobID != "b" {
		t.Fatalf("unexpected jobs: %+v", resp.Jobs)
	}
}

func TestHandleListJobs_BadFilter(t *testing.T) {
	jobs := &mockJobs{
		listFunc: func(ctx context.Context, f journal.ListFilter) ([]journal.Entry, error) {
			t.Fatalf("list must not be called for a bad filter")
			return nil, nil
		},
	}
	server := newTestServer(&mockDispatcher{}, jobs)

	for _, query := range []string{"status=printing", "limit=0", "limit=abc"} {
		req := httptest.NewRequest(http.MethodGet, "/jobs?"+query, nil)
		req.Header.Set("Authorization", "Bearer "+testAPIKey)
		rr := serve(server, req)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected status 400, got %d", query, rr.Code)
		}
	}
}

func TestHandleJobs_JournalDisabled(t *testing.T) {
	server := newTestServer(&mockDispatcher{}, nil)

	for _, path := range []string{"/jobs", "/jobs/job-1"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer "+testAPIKey)
		rr := serve(server, req)
		if rr.Code != http.StatusNotFound {
			t.Fatalf("%s: expected status 404, got %d", path, rr.Code)
		}
	}
}

type streamWriter struct {
	mu     sync.Mutex
	header http.Header
	status int
	buf    bytes.Buffer
}

func newStreamWriter() *streamWriter {
	return &streamWriter{header: make(http.Header)}
}

func (w *streamWriter) Header() http.Header { return w.header }

func (w *streamWriter) WriteHeader(statusCode int) {
	w.mu.Lock()
	w.status = statusCode
	w.mu.Unlock()
}

func (w *streamWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func (w *streamWriter) Flush() {}

func (w *streamWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

func waitForStream(w *streamWriter, want string) bool {
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(w.String(), want) {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func TestHandleEvents_Unauthorized(t *testing.T) {
	server := newTestServer(&mockDispatcher{}, nil)

	rr := serve(server, httptest.NewRequest(http.MethodGet, "/events", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestHandleEvents_ReplaysAndStreams(t *testing.T) {
	server := newTestServer(&mockDispatcher{}, nil)
	server.events.Publish(events.TypePrintStarted, events.PrintStarted{JobID: "job-1", Label: "62"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)

	w := newStreamWriter()
	router := server.setupRoutes()

	done := make(chan struct{})
	go func() {
		router.ServeHTTP(w, req)
		close(done)
	}()

	if !waitForStream(w, "event: print.started\n") {
		t.Fatalf("expected buffered event in stream, got: %q", w.String())
	}

	// Wait for the live subscription before publishing.
	deadline := time.Now().Add(time.Second)
	for server.events.Subscribers() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	server.events.Publish(events.TypePrintCompleted, events.PrintCompleted{JobID: "job-1", Status: "succeeded"})
	if !waitForStream(w, `"status":"succeeded"`) {
		t.Fatalf("expected live event in stream, got: %q", w.String())
	}
	if !strings.Contains(w.String(), "id: 2\n") {
		t.Fatalf("expected id 2 in stream, got: %q", w.String())
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("stream did not exit after context cancel")
	}
}

func TestHandleEvents_LastEventID(t *testing.T) {
	server := newTestServer(&mockDispatcher{}, nil)
	server.events.Publish(events.TypePrintStarted, events.PrintStarted{JobID: "old"})
	server.events.Publish(events.TypePrintStarted, events.PrintStarted{JobID: "new"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	req.Header.Set("Last-Event-ID", "1")

	w := newStreamWriter()
	done := make(chan struct{})
	go func() {
		server.setupRoutes().ServeHTTP(w, req)
		close(done)
	}()

	if !waitForStream(w, `"job_id":"new"`) {
		t.Fatalf("expected replay after id 1, got: %q", w.String())
	}
	if strings.Contains(w.String(), `"job_id":"old"`) {
		t.Fatalf("event 1 replayed despite Last-Event-ID: %q", w.String())
	}

	cancel()
	<-done
}

func TestHandleEvents_KeepAlive(t *testing.T) {
	server := newTestServer(&mockDispatcher{}, nil)
	server.sseKeepAlive = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)

	w := newStreamWriter()
	done := make(chan struct{})
	go func() {
		server.setupRoutes().ServeHTTP(w, req)
		close(done)
	}()

	if !waitForStream(w, ": keep-alive\n\n") {
		t.Fatalf("expected keep-alive comment, got: %q", w.String())
	}

	cancel()
	<-done
}

func TestHandleEvents_Disabled(t *testing.T) {
	server := New(Config{}, &mockDispatcher{}, nil, nil, slog.Default())

	rr := serve(server, httptest.NewRequest(http.MethodGet, "/events", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestParseLastEventID(t *testing.T) {
	tests := map[string]int64{"": 0, "7": 7, "-3": 0, "abc": 0}
	for in, want := range tests {
		if got := parseLastEventID(in); got != want {
			t.Errorf("parseLastEventID(%q) = %d, want %d", in, got, want)
		}
	}
}
