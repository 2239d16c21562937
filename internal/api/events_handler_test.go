package api

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mattjoyce/labelgw/internal/events"
)

func TestHandleEvents_OutlivesWriteTimeout(t *testing.T) {
	server := newTestServer(&mockDispatcher{}, nil)
	server.sseKeepAlive = 50 * time.Millisecond

	const writeTimeout = 200 * time.Millisecond
	ts := httptest.NewUnstartedServer(server.Handler())
	ts.Config.WriteTimeout = writeTimeout
	ts.Start()
	defer ts.Close()

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/events", nil)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("GET /events failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}

	reader := bufio.NewReader(resp.Body)
	start := time.Now()
	keepAlives := 0
	for time.Since(start) < 4*writeTimeout {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("stream ended after %s: %v", time.Since(start).Round(time.Millisecond), err)
		}
		if line == ": keep-alive\n" {
			keepAlives++
		}
	}
	if keepAlives == 0 {
		t.Fatalf("expected keep-alives on a long-lived stream")
	}
}

func TestHandleEvents_NoGapWhileConnecting(t *testing.T) {
	hub := events.NewHub(100)
	config := Config{APIKey: testAPIKey, Version: "2.0.0"}
	server := New(config, &mockDispatcher{}, nil, hub, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)

	w := newStreamWriter()
	done := make(chan struct{})

	const n = 50
	published := make(chan struct{})
	go func() {
		defer close(published)
		for i := 0; i < n; i++ {
			hub.Publish(events.TypePrintStarted, events.PrintStarted{JobID: fmt.Sprintf("job-%d", i)})
		}
	}()
	go func() {
		server.setupRoutes().ServeHTTP(w, req)
		close(done)
	}()

	<-published
	if !waitForStream(w, fmt.Sprintf("id: %d\n", n)) {
		t.Fatalf("expected every event in stream, got: %q", w.String())
	}
	cancel()
	<-done

	stream := w.String()
	last := -1
	for id := 1; id <= n; id++ {
		marker := fmt.Sprintf("id: %d\n", id)
		if c := strings.Count(stream, marker); c != 1 {
			t.Fatalf("event %d delivered %d times", id, c)
		}
		pos := strings.Index(stream, marker)
		if pos < last {
			t.Fatalf("event %d delivered out of order", id)
		}
		last = pos
	}
}

func TestWriteTimeoutCoversLockWait(t *testing.T) {
	server := New(Config{PrintTimeout: 30 * time.Second, LockTimeout: 2 * time.Minute}, &mockDispatcher{}, nil, nil, slog.Default())
	if got, want := server.writeTimeout(), 3*time.Minute; got != want {
		t.Fatalf("writeTimeout() = %s, want %s", got, want)
	}

	server = New(Config{}, &mockDispatcher{}, nil, nil, slog.Default())
	if got, want := server.writeTimeout(), time.Minute; got != want {
		t.Fatalf("writeTimeout() without serialization = %s, want %s", got, want)
	}
}
