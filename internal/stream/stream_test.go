package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kuangren777/llm-roundtable/internal/testutil"
)

// collector records callback invocations in order.
type collector struct {
	mu        sync.Mutex
	events    []Event
	errors    []error
	completes []Event
}

func (c *collector) options(terminal ...string) Options {
	return Options{
		Terminal: terminal,
		OnEvent: func(ev Event) {
			c.mu.Lock()
			c.events = append(c.events, ev)
			c.mu.Unlock()
		},
		OnError: func(err error) {
			c.mu.Lock()
			c.errors = append(c.errors, err)
			c.mu.Unlock()
		},
		OnComplete: func(ev Event) {
			c.mu.Lock()
			c.completes = append(c.completes, ev)
			c.mu.Unlock()
		},
	}
}

func (c *collector) snapshot() (events []Event, errs []error, completes []Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event(nil), c.events...),
		append([]error(nil), c.errors...),
		append([]Event(nil), c.completes...)
}

func openAndWait(t *testing.T, url string, opts Options) {
	t.Helper()
	h := Open(context.Background(), nil, Request{Method: http.MethodPost, URL: url}, opts)
	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not finish")
	}
}

func TestOpenDeliversEventsInOrder(t *testing.T) {
	var c collector
	srv := httptest.NewServer(testutil.StreamHandler(
		testutil.SSEFrame(t, map[string]any{"event_type": "phase_change", "phase": "discussing"}),
		testutil.SSEFrame(t, map[string]any{"event_type": "message", "agent_name": "Alice", "content": "hello"}),
		testutil.SSEFrame(t, map[string]any{"event_type": "complete"}),
	))
	defer srv.Close()

	openAndWait(t, srv.URL, c.options(EventComplete))

	events, errs, completes := c.snapshot()
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Type != EventPhaseChange || events[0].Phase != "discussing" {
		t.Errorf("events[0] = %+v, want phase_change/discussing", events[0])
	}
	if events[1].Type != EventMessage || events[1].AgentName != "Alice" || events[1].Content != "hello" {
		t.Errorf("events[1] = %+v, want message from Alice", events[1])
	}
	if len(completes) != 1 || completes[0].Type != EventComplete {
		t.Errorf("completes = %+v, want one complete event", completes)
	}
}

func TestOpenErrorEventStopsStream(t *testing.T) {
	var c collector
	srv := httptest.NewServer(testutil.StreamHandler(
		testutil.SSEFrame(t, map[string]any{"event_type": "message", "content": "one"}),
		testutil.SSEFrame(t, map[string]any{"event_type": "error", "content": "provider exploded"}),
		testutil.SSEFrame(t, map[string]any{"event_type": "message", "content": "never seen"}),
	))
	defer srv.Close()

	openAndWait(t, srv.URL, c.options(EventComplete))

	events, errs, completes := c.snapshot()
	if len(events) != 1 || events[0].Content != "one" {
		t.Errorf("events = %+v, want only the first message", events)
	}
	if len(errs) != 1 || errs[0].Error() != "provider exploded" {
		t.Errorf("errors = %v, want [provider exploded]", errs)
	}
	if len(completes) != 0 {
		t.Errorf("completes = %+v, want none", completes)
	}
}

func TestOpenSkipsMalformedFrames(t *testing.T) {
	var c collector
	srv := httptest.NewServer(testutil.StreamHandler(
		"data: {not json at all\n\n",
		testutil.SSEFrame(t, map[string]any{"event_type": "message", "content": "survives"}),
		"data:\n\n",
		": comment line\n",
		testutil.SSEFrame(t, map[string]any{"event_type": "complete"}),
	))
	defer srv.Close()

	openAndWait(t, srv.URL, c.options(EventComplete))

	events, errs, completes := c.snapshot()
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(events) != 1 || events[0].Content != "survives" {
		t.Errorf("events = %+v, want the one valid message", events)
	}
	if len(completes) != 1 {
		t.Errorf("completes = %+v, want one", completes)
	}
}

func TestOpenReassemblesChunkedFrames(t *testing.T) {
	frame := testutil.SSEFrame(t, map[string]any{"event_type": "message", "agent_name": "Bob", "content": "split"})
	half := len(frame) / 2

	var c collector
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		_, _ = w.Write([]byte(frame[:half]))
		flusher.Flush()
		_, _ = w.Write([]byte(frame[half:]))
		flusher.Flush()
		_, _ = w.Write([]byte(testutil.SSEFrame(t, map[string]any{"event_type": "complete"})))
	}))
	defer srv.Close()

	openAndWait(t, srv.URL, c.options(EventComplete))

	events, errs, _ := c.snapshot()
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(events) != 1 || events[0].AgentName != "Bob" || events[0].Content != "split" {
		t.Errorf("events = %+v, want reassembled message from Bob", events)
	}
}

func TestOpenNonOKStatus(t *testing.T) {
	var c collector
	srv := httptest.NewServer(testutil.ErrorHandler(http.StatusConflict, "discussion is already running"))
	defer srv.Close()

	openAndWait(t, srv.URL, c.options(EventComplete))

	_, errs, _ := c.snapshot()
	if len(errs) != 1 {
		t.Fatalf("errors = %v, want exactly one", errs)
	}
	if !strings.Contains(errs[0].Error(), "status 409") {
		t.Errorf("error = %v, want status 409 mentioned", errs[0])
	}
}

func TestOpenCancelSuppressesError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		_, _ = w.Write([]byte(testutil.SSEFrame(t, map[string]any{"event_type": "message", "content": "first"})))
		flusher.Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	// Cancel only once the client has dispatched the first event, so the
	// cancellation cannot race the flushed frame out of the scan loop.
	var c collector
	delivered := make(chan struct{})
	var once sync.Once
	opts := c.options(EventComplete)
	inner := opts.OnEvent
	opts.OnEvent = func(ev Event) {
		inner(ev)
		once.Do(func() { close(delivered) })
	}

	h := Open(context.Background(), nil, Request{Method: http.MethodPost, URL: srv.URL}, opts)

	select {
	case <-delivered:
	case <-time.After(5 * time.Second):
		t.Fatal("first event never dispatched")
	}
	h.Cancel()

	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not stop after cancel")
	}

	events, errs, completes := c.snapshot()
	if len(events) != 1 {
		t.Errorf("events = %+v, want the pre-cancel message", events)
	}
	if len(errs) != 0 {
		t.Errorf("errors = %v, want none after cancellation", errs)
	}
	if len(completes) != 0 {
		t.Errorf("completes = %+v, want none", completes)
	}
}

func TestOpenSilentEndIsNotAnError(t *testing.T) {
	var c collector
	srv := httptest.NewServer(testutil.StreamHandler(
		testutil.SSEFrame(t, map[string]any{"event_type": "message", "content": "only"}),
	))
	defer srv.Close()

	openAndWait(t, srv.URL, c.options(EventComplete))

	events, errs, completes := c.snapshot()
	if len(events) != 1 {
		t.Errorf("events = %+v, want one", events)
	}
	if len(errs) != 0 {
		t.Errorf("errors = %v, want none for a clean close", errs)
	}
	if len(completes) != 0 {
		t.Errorf("completes = %+v, want none without a terminal event", completes)
	}
}

func TestSummaryTarget(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
		want int
	}{
		{"message_id preferred", Event{MessageID: 501, RoundNumber: 3}, 501},
		{"legacy round_number fallback", Event{RoundNumber: 42}, 42},
		{"neither", Event{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ev.SummaryTarget(); got != tt.want {
				t.Errorf("SummaryTarget() = %d, want %d", got, tt.want)
			}
		})
	}
}
