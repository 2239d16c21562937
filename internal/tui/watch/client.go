package watch

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/labelgw/internal/events"
)

type eventMsg events.Event

type healthMsg struct {
	Status        string `json:"status"`
	DryRun        bool   `json:"dry_run"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

type tickMsg time.Time

type errMsg error

type sseDisconnectedMsg struct{ err error }
type reconnectMsg struct{}

// stream remembers the last event ID so a reconnect resumes where the
// previous connection stopped.
type stream struct {
	apiURL string
	apiKey string
	lastID atomic.Int64
	out    chan events.Event
}

func newStream(apiURL, apiKey string) *stream {
	return &stream{
		apiURL: strings.TrimRight(apiURL, "/"),
		apiKey: apiKey,
		out:    make(chan events.Event, 100),
	}
}

func (s *stream) newRequest(path string) (*http.Request, error) {
	req, err := http.NewRequest(http.MethodGet, s.apiURL+path, nil)
	if err != nil {
		return nil, err
	}
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
	return req, nil
}

// subscribe connects to /events and feeds s.out until the connection drops.
func (s *stream) subscribe() tea.Cmd {
	return func() tea.Msg {
		req, err := s.newRequest("/events")
		if err != nil {
			return errMsg(err)
		}
		if id := s.lastID.Load(); id > 0 {
			req.Header.Set("Last-Event-ID", strconv.FormatInt(id, 10))
		}

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return sseDisconnectedMsg{err: err}
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return sseDisconnectedMsg{err: fmt.Errorf("/events: %s", resp.Status)}
		}

		err = readSSE(resp.Body, func(ev events.Event) {
			s.lastID.Store(ev.ID)
			s.out <- ev
		})
		return sseDisconnectedMsg{err: err}
	}
}

// next waits for the next event from the stream.
func (s *stream) next() tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-s.out)
	}
}

// fetchHealth queries /health.
func (s *stream) fetchHealth() tea.Msg {
	req, err := s.newRequest("/health")
	if err != nil {
		return errMsg(err)
	}
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return errMsg(err)
	}
	defer resp.Body.Close()

	var h healthMsg
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return errMsg(err)
	}
	return h
}

// readSSE parses a text/event-stream body, calling emit for each complete
// event. Comment lines are skipped. It returns when r is exhausted.
func readSSE(r io.Reader, emit func(events.Event)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var cur events.Event
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data.Len() > 0 {
				cur.Data = json.RawMessage(data.String())
				cur.At = time.Now()
				emit(cur)
			}
			cur = events.Event{}
			data.Reset()
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "id: "):
			if id, err := strconv.ParseInt(line[4:], 10, 64); err == nil {
				cur.ID = id
			}
		case strings.HasPrefix(line, "event: "):
			cur.Type = line[7:]
		case strings.HasPrefix(line, "data: "):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(line[6:])
		}
	}
	return scanner.Err()
}
