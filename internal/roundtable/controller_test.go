package roundtable

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kuangren777/llm-roundtable/internal/api"
	"github.com/kuangren777/llm-roundtable/internal/event"
	"github.com/kuangren777/llm-roundtable/internal/livestate"
	"github.com/kuangren777/llm-roundtable/internal/testutil"
)

const waitTimeout = 5 * time.Second

// backend is a fake server. It serves discussion snapshots from a mutable
// map and lets tests register handlers for everything else.
type backend struct {
	mu      sync.Mutex
	details map[int]api.DiscussionDetail
	calls   map[string]int
	routes  map[string]http.HandlerFunc
	srv     *httptest.Server
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	b := &backend{
		details: make(map[int]api.DiscussionDetail),
		calls:   make(map[string]int),
		routes:  make(map[string]http.HandlerFunc),
	}
	b.srv = httptest.NewServer(b)
	t.Cleanup(b.srv.Close)
	return b
}

func (b *backend) handle(key string, h http.HandlerFunc) {
	b.mu.Lock()
	b.routes[key] = h
	b.mu.Unlock()
}

func (b *backend) setDetail(d api.DiscussionDetail) {
	b.mu.Lock()
	b.details[d.ID] = d
	b.mu.Unlock()
}

func (b *backend) callCount(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[key]
}

func (b *backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := r.Method + " " + r.URL.Path
	b.mu.Lock()
	b.calls[key]++
	h := b.routes[key]
	b.mu.Unlock()
	if h != nil {
		h(w, r)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/discussions/")
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/discussions/":
		b.mu.Lock()
		list := make([]api.Discussion, 0, len(b.details))
		for _, d := range b.details {
			list = append(list, d.Discussion)
		}
		b.mu.Unlock()
		writeJSON(w, list)

	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/observer/history"):
		writeJSON(w, []api.ObserverMessage{})

	case r.Method == http.MethodGet && !strings.Contains(rest, "/"):
		id, err := strconv.Atoi(rest)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		b.mu.Lock()
		d, ok := b.details[id]
		b.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			writeJSON(w, map[string]string{"detail": "discussion not found"})
			return
		}
		writeJSON(w, d)

	default:
		w.WriteHeader(http.StatusNotFound)
		writeJSON(w, map[string]string{"detail": "no handler for " + key})
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// recorder buffers every published event so tests can wait for specific
// milestones without sleeping.
type recorder struct {
	ch chan event.Event
}

func record(bus *event.Bus) *recorder {
	r := &recorder{ch: make(chan event.Event, 256)}
	bus.SubscribeAll(func(ev event.Event) {
		select {
		case r.ch <- ev:
		default:
		}
	})
	return r
}

func (r *recorder) waitFor(t *testing.T, what string, pred func(event.Event) bool) {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case ev := <-r.ch:
			if pred(ev) {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		}
	}
}

func (r *recorder) waitStatus(t *testing.T, status Status) {
	t.Helper()
	r.waitFor(t, fmt.Sprintf("status %s", status), func(ev event.Event) bool {
		se, ok := ev.(event.DiscussionStatusEvent)
		return ok && se.Status == string(status)
	})
}

func newTestController(t *testing.T, b *backend, opts ...ControllerOption) (*Controller, *recorder, *livestate.Store) {
	t.Helper()
	bus := event.NewBus()
	live := livestate.NewStore("")
	rec := record(bus)
	client := api.NewClient(b.srv.URL)
	c := NewController(client, bus, live, opts...)
	return c, rec, live
}

func waitingDetail(id int) api.DiscussionDetail {
	return api.DiscussionDetail{
		Discussion: api.Discussion{
			ID:     id,
			Topic:  "should the service be rewritten",
			Status: api.StatusWaitingInput,
			Agents: []api.AgentConfig{
				{ID: 1, Name: "Moderator", Role: api.RoleHost, Provider: "openai", Model: "gpt-4o"},
				{ID: 2, Name: "Alice", Role: api.RolePanelist, Provider: "openai", Model: "gpt-4o"},
				{ID: 3, Name: "Nitpick", Role: api.RoleCritic, Provider: "openai", Model: "gpt-4o"},
			},
		},
	}
}

func frame(t *testing.T, fields map[string]any) string {
	t.Helper()
	return testutil.SSEFrame(t, fields)
}

func TestSelectLoadsSnapshot(t *testing.T) {
	b := newBackend(t)
	d := waitingDetail(42)
	d.Messages = []api.Message{
		{ID: 10, AgentName: "Moderator", AgentRole: api.RoleHost, Content: "welcome", RoundNumber: 1},
	}
	b.setDetail(d)

	c, rec, _ := newTestController(t, b)
	if err := c.Select(context.Background(), 42); err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	rec.waitStatus(t, StatusLoading)

	v := c.View()
	if v.DiscussionID != 42 || v.Status != StatusWaitingInput {
		t.Errorf("view = id %d status %s, want 42 waiting_input", v.DiscussionID, v.Status)
	}
	if v.Topic != "should the service be rewritten" {
		t.Errorf("Topic = %q", v.Topic)
	}
	if len(v.Messages) != 1 || v.Messages[0].ID != 10 {
		t.Errorf("messages = %+v, want the snapshot message", v.Messages)
	}
	if len(v.Agents) != 3 {
		t.Errorf("agents = %d, want 3", len(v.Agents))
	}
	if obs := c.Observer(); obs == nil || obs.DiscussionID() != 42 {
		t.Error("observer session not scoped to the selected discussion")
	}
}

func TestSelectLoadFailure(t *testing.T) {
	b := newBackend(t)
	c, rec, _ := newTestController(t, b)

	if err := c.Select(context.Background(), 99); err == nil {
		t.Fatal("Select() error = nil, want load failure for unknown discussion")
	}
	rec.waitStatus(t, StatusError)

	v := c.View()
	if v.Status != StatusError || v.Err == "" {
		t.Errorf("view = status %s err %q, want error with message", v.Status, v.Err)
	}
}

func TestRunStreamReconciliation(t *testing.T) {
	b := newBackend(t)
	b.setDetail(waitingDetail(42))

	c, rec, _ := newTestController(t, b)
	if err := c.Select(context.Background(), 42); err != nil {
		t.Fatalf("Select() error = %v", err)
	}

	b.handle("POST /api/discussions/42/run", testutil.StreamHandler(
		frame(t, map[string]any{
			"event_type": "llm_progress", "agent_name": "Alice",
			"chars_received": 128, "llm_status": "streaming",
			"phase": "discussing", "content": "I think the rewrite",
		}),
		frame(t, map[string]any{
			"event_type": "message", "message_id": 501,
			"agent_name": "Alice", "agent_role": "panelist",
			"content": "I think the rewrite is premature.", "phase": "discussing", "round_number": 1,
		}),
		frame(t, map[string]any{"event_type": "phase_change", "phase": "reflecting"}),
		frame(t, map[string]any{"event_type": "complete"}),
	))

	// The authoritative snapshot the terminal reconciliation fetches.
	done := waitingDetail(42)
	done.Status = api.StatusCompleted
	done.Title = "Rewrite debate"
	done.Messages = []api.Message{
		{ID: 501, AgentName: "Alice", AgentRole: api.RolePanelist, Content: "I think the rewrite is premature.", RoundNumber: 1, Phase: "discussing"},
	}
	b.setDetail(done)

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	rec.waitStatus(t, StatusCompleted)

	v := c.View()
	if v.Status != StatusCompleted {
		t.Errorf("Status = %s, want completed", v.Status)
	}
	if len(v.Messages) != 1 || v.Messages[0].ID != 501 {
		t.Fatalf("messages = %+v, want exactly the finalized message 501", v.Messages)
	}
	if len(v.Progress) != 0 || len(v.Streaming) != 0 {
		t.Errorf("progress/streaming = %v / %v, want both empty after completion", v.Progress, v.Streaming)
	}
	// Select plus exactly one terminal reconciliation fetch.
	if got := b.callCount("GET /api/discussions/42"); got != 2 {
		t.Errorf("snapshot fetches = %d, want 2", got)
	}
}

func TestRunStreamErrorEvent(t *testing.T) {
	b := newBackend(t)
	b.setDetail(waitingDetail(42))

	c, rec, _ := newTestController(t, b)
	if err := c.Select(context.Background(), 42); err != nil {
		t.Fatalf("Select() error = %v", err)
	}

	b.handle("POST /api/discussions/42/run", testutil.StreamHandler(
		frame(t, map[string]any{
			"event_type": "llm_progress", "agent_name": "Alice",
			"chars_received": 12, "llm_status": "streaming",
		}),
		frame(t, map[string]any{"event_type": "error", "content": "model quota exceeded"}),
	))

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	rec.waitStatus(t, StatusError)

	v := c.View()
	if v.Status != StatusError || v.Err != "model quota exceeded" {
		t.Errorf("view = status %s err %q, want error with server message", v.Status, v.Err)
	}
	if len(v.Progress) != 0 || len(v.Streaming) != 0 {
		t.Errorf("progress/streaming survive an error, want both cleared")
	}
}

func TestPhaseChangePrunesByRole(t *testing.T) {
	b := newBackend(t)
	b.setDetail(waitingDetail(42))

	release := make(chan struct{})
	b.handle("POST /api/discussions/42/run", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, fr := range []string{
			frame(t, map[string]any{
				"event_type": "llm_progress", "agent_name": "Alice",
				"chars_received": 256, "llm_status": "streaming",
				"phase": "discussing", "content": "the panel take so far",
			}),
			frame(t, map[string]any{
				"event_type": "llm_progress", "agent_name": "Nitpick",
				"chars_received": 64, "llm_status": "streaming",
				"phase": "reflecting", "content": "early critique",
			}),
			frame(t, map[string]any{"event_type": "phase_change", "phase": "reflecting"}),
		} {
			_, _ = w.Write([]byte(fr))
		}
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		select {
		case <-r.Context().Done():
		case <-release:
		}
	})
	defer close(release)

	c, rec, _ := newTestController(t, b)
	if err := c.Select(context.Background(), 42); err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	rec.waitFor(t, "phase change to reflecting", func(ev event.Event) bool {
		pe, ok := ev.(event.PhaseChangedEvent)
		return ok && pe.Phase == PhaseReflecting
	})

	// Reflecting belongs to the critic: the panelist's in-flight state is
	// pruned, the critic's survives.
	v := c.View()
	if _, ok := v.Progress["Alice"]; ok {
		t.Error("panelist progress survived the change into reflecting")
	}
	if _, ok := v.Streaming["Alice"]; ok {
		t.Error("panelist streaming text survived the change into reflecting")
	}
	if p, ok := v.Progress["Nitpick"]; !ok || p.Chars != 64 {
		t.Errorf("Progress[Nitpick] = %+v, want retained with 64 chars", p)
	}
	if v.Streaming["Nitpick"] != "early critique" {
		t.Errorf("Streaming[Nitpick] = %q, want the critic's partial text", v.Streaming["Nitpick"])
	}
	if v.Phase != PhaseReflecting {
		t.Errorf("Phase = %q, want %q", v.Phase, PhaseReflecting)
	}
}

func TestSelectRestoresLiveStateAndPolls(t *testing.T) {
	b := newBackend(t)
	d := waitingDetail(42)
	d.Status = api.StatusDiscussing
	b.setDetail(d)

	c, rec, live := newTestController(t, b, WithPollInterval(25*time.Millisecond))
	phase := "discussing"
	live.Persist(42, livestate.Patch{
		Phase:     &phase,
		Progress:  map[string]livestate.Progress{"Alice": {Chars: 512, Status: "streaming", Phase: "discussing"}},
		Streaming: map[string]string{"Alice": "restored partial text"},
	})

	if err := c.Select(context.Background(), 42); err != nil {
		t.Fatalf("Select() error = %v", err)
	}

	v := c.View()
	if v.Status != StatusRunning {
		t.Fatalf("Status = %s, want running", v.Status)
	}
	if v.Phase != "discussing" || v.Streaming["Alice"] != "restored partial text" {
		t.Errorf("restored view = phase %q streaming %v, want persisted live-state", v.Phase, v.Streaming)
	}

	// The server finishes the round; the poll picks it up and stops.
	d.Status = api.StatusWaitingInput
	b.setDetail(d)
	rec.waitStatus(t, StatusWaitingInput)

	if snap := live.Read(42); snap != nil {
		t.Errorf("live snapshot = %+v after the run ended, want removed", snap)
	}
}

func TestSelectSupersedesRunningStream(t *testing.T) {
	b := newBackend(t)
	b.setDetail(waitingDetail(42))
	b.setDetail(waitingDetail(43))

	release := make(chan struct{})
	b.handle("POST /api/discussions/42/run", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(frame(t, map[string]any{
			"event_type": "llm_progress", "agent_name": "Alice",
			"chars_received": 64, "llm_status": "streaming",
		})))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		select {
		case <-r.Context().Done():
		case <-release:
		}
	})
	defer close(release)

	c, rec, _ := newTestController(t, b)
	if err := c.Select(context.Background(), 42); err != nil {
		t.Fatalf("Select(42) error = %v", err)
	}
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	rec.waitFor(t, "progress for Alice", func(ev event.Event) bool {
		pe, ok := ev.(event.ProgressEvent)
		return ok && pe.AgentName == "Alice"
	})

	if err := c.Select(context.Background(), 43); err != nil {
		t.Fatalf("Select(43) error = %v", err)
	}
	rec.waitFor(t, "status for 43", func(ev event.Event) bool {
		se, ok := ev.(event.DiscussionStatusEvent)
		return ok && se.DiscussionID == 43 && se.Status != string(StatusLoading)
	})

	v := c.View()
	if v.DiscussionID != 43 {
		t.Fatalf("DiscussionID = %d, want 43", v.DiscussionID)
	}
	if len(v.Progress) != 0 || len(v.Streaming) != 0 || v.Err != "" {
		t.Errorf("view carries state from the superseded discussion: %+v", v)
	}
}

func TestStopPausesDiscussion(t *testing.T) {
	b := newBackend(t)
	b.setDetail(waitingDetail(42))
	b.handle("POST /api/discussions/42/stop", func(w http.ResponseWriter, r *http.Request) {})
	b.handle("POST /api/discussions/42/run", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	})

	c, rec, _ := newTestController(t, b)
	if err := c.Select(context.Background(), 42); err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	rec.waitStatus(t, StatusRunning)

	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	rec.waitStatus(t, StatusWaitingInput)

	if v := c.View(); v.Status != StatusWaitingInput {
		t.Errorf("Status = %s, want waiting_input", v.Status)
	}
	if got := b.callCount("POST /api/discussions/42/stop"); got != 1 {
		t.Errorf("stop calls = %d, want 1", got)
	}
}

func TestEnsureAttachedSupersedesPoll(t *testing.T) {
	b := newBackend(t)
	d := waitingDetail(42)
	d.Status = api.StatusDiscussing
	b.setDetail(d)

	release := make(chan struct{})
	b.handle("POST /api/discussions/42/run", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		select {
		case <-r.Context().Done():
		case <-release:
		}
	})
	defer close(release)

	c, _, _ := newTestController(t, b, WithPollInterval(20*time.Millisecond))
	if err := c.Select(context.Background(), 42); err != nil {
		t.Fatalf("Select() error = %v", err)
	}

	c.mu.Lock()
	polling := c.pollStop != nil
	c.mu.Unlock()
	if !polling {
		t.Fatal("poll fallback not started for a running discussion")
	}

	if err := c.EnsureAttached(context.Background()); err != nil {
		t.Fatalf("EnsureAttached() error = %v", err)
	}

	c.mu.Lock()
	attached := c.handle != nil
	polling = c.pollStop != nil
	c.mu.Unlock()
	if !attached {
		t.Error("EnsureAttached() left no stream handle")
	}
	if polling {
		t.Error("poll fallback still running alongside a live stream")
	}

	// A second call must not stack another attachment.
	if err := c.EnsureAttached(context.Background()); err != nil {
		t.Errorf("EnsureAttached() repeat error = %v", err)
	}
}

func TestStreamEndWithoutTerminalFallsBackToPoll(t *testing.T) {
	b := newBackend(t)
	b.setDetail(waitingDetail(42))

	c, rec, _ := newTestController(t, b, WithPollInterval(25*time.Millisecond))
	if err := c.Select(context.Background(), 42); err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	rec.waitStatus(t, StatusWaitingInput)

	// The stream dies mid-run: one progress frame, then the connection
	// closes with no terminal event. Server-side the run keeps going.
	b.handle("POST /api/discussions/42/run", testutil.StreamHandler(
		frame(t, map[string]any{
			"event_type": "llm_progress", "agent_name": "Alice",
			"chars_received": 64, "llm_status": "streaming", "phase": "discussing",
		}),
	))
	running := waitingDetail(42)
	running.Status = api.StatusDiscussing
	b.setDetail(running)

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	rec.waitStatus(t, StatusRunning)

	// Once the dead stream is noticed the poll fallback takes over and
	// keeps reconciling snapshots.
	rec.waitFor(t, "poll reconciliation after the stream died", func(ev event.Event) bool {
		_, ok := ev.(event.TranscriptEvent)
		return ok && b.callCount("GET /api/discussions/42") >= 2
	})

	c.mu.Lock()
	handleSet := c.handle != nil
	polling := c.pollStop != nil
	c.mu.Unlock()
	if handleSet {
		t.Error("dead stream handle still held after the connection closed")
	}
	if !polling {
		t.Error("poll fallback not restarted after the stream ended")
	}

	// With the handle released, reattachment works again.
	if err := c.EnsureAttached(context.Background()); err != nil {
		t.Fatalf("EnsureAttached() error = %v", err)
	}
	rec.waitFor(t, "second run attachment", func(event.Event) bool {
		return b.callCount("POST /api/discussions/42/run") == 2
	})

	// The server eventually finishes; the poll lands the final status.
	b.setDetail(waitingDetail(42))
	rec.waitStatus(t, StatusWaitingInput)
}

func TestRunWithoutSelection(t *testing.T) {
	b := newBackend(t)
	c, _, _ := newTestController(t, b)

	if err := c.Run(context.Background()); err != ErrNoDiscussion {
		t.Errorf("Run() error = %v, want ErrNoDiscussion", err)
	}
	if err := c.Stop(context.Background()); err != ErrNoDiscussion {
		t.Errorf("Stop() error = %v, want ErrNoDiscussion", err)
	}
	if err := c.EnsureAttached(context.Background()); err != nil {
		t.Errorf("EnsureAttached() error = %v, want nil no-op", err)
	}
}

func TestParseEventTime(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time { return fixed }

	tests := []struct {
		in   string
		want time.Time
	}{
		{"2026-03-01T10:30:00Z", time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)},
		{"2026-03-01T10:30:00.500000", time.Date(2026, 3, 1, 10, 30, 0, 500000000, time.UTC)},
		{"", fixed},
		{"not-a-time", fixed},
	}
	for _, tt := range tests {
		if got := parseEventTime(tt.in, now); !got.Equal(tt.want) {
			t.Errorf("parseEventTime(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestProjectStatus(t *testing.T) {
	tests := []struct {
		in   api.DiscussionStatus
		want Status
	}{
		{api.StatusCreated, StatusReady},
		{api.StatusPlanning, StatusRunning},
		{api.StatusDiscussing, StatusRunning},
		{api.StatusReflecting, StatusRunning},
		{api.StatusSynthesizing, StatusRunning},
		{api.StatusWaitingInput, StatusWaitingInput},
		{api.StatusCompleted, StatusCompleted},
		{api.StatusFailed, StatusError},
		{"someday_new_status", StatusReady},
	}
	for _, tt := range tests {
		if got := projectStatus(tt.in); got != tt.want {
			t.Errorf("projectStatus(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}
