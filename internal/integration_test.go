package internal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/kuangren777/llm-roundtable/internal/api"
	"github.com/kuangren777/llm-roundtable/internal/config"
	"github.com/kuangren777/llm-roundtable/internal/event"
	"github.com/kuangren777/llm-roundtable/internal/livestate"
	"github.com/kuangren777/llm-roundtable/internal/roundtable"
	"github.com/kuangren777/llm-roundtable/internal/testutil"
)

// TestDiscussionLifecycle drives the full client stack against a fake
// backend: select a discussion, submit user input, consume the run stream
// through one cycle, then complete the discussion manually. Everything is
// wired the way the open command wires it.
func TestDiscussionLifecycle(t *testing.T) {
	var (
		mu     sync.Mutex
		detail = api.DiscussionDetail{
			Discussion: api.Discussion{
				ID:     7,
				Topic:  "is the cache worth its complexity",
				Status: api.StatusWaitingInput,
				Agents: []api.AgentConfig{
					{ID: 1, Name: "Moderator", Role: api.RoleHost, Provider: "openai", Model: "gpt-4o"},
					{ID: 2, Name: "Bob", Role: api.RolePanelist, Provider: "openai", Model: "gpt-4o"},
				},
			},
		}
	)
	setDetail := func(d api.DiscussionDetail) {
		mu.Lock()
		detail = d
		mu.Unlock()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/discussions/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		mu.Lock()
		d := detail
		mu.Unlock()
		if r.URL.Path == "/api/discussions/" {
			_ = json.NewEncoder(w).Encode([]api.Discussion{d.Discussion})
			return
		}
		_ = json.NewEncoder(w).Encode(d)
	})
	mux.HandleFunc("/api/discussions/7/observer/history", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]api.ObserverMessage{})
	})
	mux.HandleFunc("/api/discussions/7/user-input",
		testutil.JSONHandler(api.UserInputResponse{ID: 801, Content: "what about invalidation?"}))
	mux.HandleFunc("/api/discussions/7/complete", func(w http.ResponseWriter, r *http.Request) {})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	frames := []string{
		testutil.SSEFrame(t, map[string]any{"event_type": "phase_change", "phase": "discussing"}),
		testutil.SSEFrame(t, map[string]any{
			"event_type": "llm_progress", "agent_name": "Bob",
			"chars_received": 40, "llm_status": "streaming",
			"phase": "discussing", "content": "Invalidation is the hard part",
		}),
		testutil.SSEFrame(t, map[string]any{
			"event_type": "message", "message_id": 802,
			"agent_name": "Bob", "agent_role": "panelist",
			"content": "Invalidation is the hard part of any cache.",
			"phase":   "discussing", "round_number": 1,
		}),
		testutil.SSEFrame(t, map[string]any{"event_type": "cycle_complete"}),
	}
	mux.HandleFunc("/api/discussions/7/run", testutil.StreamHandler(frames...))

	cfg := config.Default()
	cfg.Server.BaseURL = srv.URL
	client := api.NewClient(cfg.Server.BaseURL, api.WithTimeout(cfg.Server.RequestTimeout()))
	bus := event.NewBus()
	live := livestate.NewStore(t.TempDir())

	statuses := make(chan string, 64)
	bus.Subscribe(event.TypeDiscussionStatus, func(ev event.Event) {
		if se, ok := ev.(event.DiscussionStatusEvent); ok {
			select {
			case statuses <- se.Status:
			default:
			}
		}
	})

	ctrl := roundtable.NewController(client, bus, live,
		roundtable.WithPollInterval(cfg.Server.PollInterval()),
		roundtable.WithSummaryCooldowns(cfg.Summary.ErrorCooldown(), cfg.Summary.RunningCooldown()),
	)

	waitStatus := func(want string) {
		t.Helper()
		deadline := time.After(5 * time.Second)
		for {
			select {
			case got := <-statuses:
				if got == want {
					return
				}
			case <-deadline:
				t.Fatalf("timed out waiting for status %s", want)
			}
		}
	}

	if err := ctrl.Select(context.Background(), 7); err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if v := ctrl.View(); v.Status != roundtable.StatusWaitingInput {
		t.Fatalf("Status after load = %s, want waiting_input", v.Status)
	}

	// The terminal reconciliation snapshot: one cycle ran, the server holds
	// both the user input and the panelist reply.
	after := detail
	after.Messages = []api.Message{
		{ID: 801, AgentName: "user", AgentRole: api.RoleUser, Content: "what about invalidation?", RoundNumber: 1},
		{ID: 802, AgentName: "Bob", AgentRole: api.RolePanelist, Content: "Invalidation is the hard part of any cache.", RoundNumber: 1},
	}
	after.CurrentRound = 1
	setDetail(after)

	// Submitting input starts the run; the cycle ends back in waiting_input.
	if err := ctrl.SubmitInput(context.Background(), "what about invalidation?"); err != nil {
		t.Fatalf("SubmitInput() error = %v", err)
	}
	waitStatus(string(roundtable.StatusRunning))
	waitStatus(string(roundtable.StatusWaitingInput))

	v := ctrl.View()
	if len(v.Messages) != 2 {
		t.Fatalf("messages = %d, want 2 after one cycle", len(v.Messages))
	}
	if v.Messages[0].ID != 801 || v.Messages[1].ID != 802 {
		t.Errorf("message ids = %d, %d, want 801, 802", v.Messages[0].ID, v.Messages[1].ID)
	}
	if len(v.Progress) != 0 || len(v.Streaming) != 0 {
		t.Errorf("progress/streaming = %v / %v, want cleared after the cycle", v.Progress, v.Streaming)
	}
	if snap := live.Read(7); snap != nil {
		t.Errorf("live snapshot = %+v after the cycle, want removed", snap)
	}

	// Done deliberating: finish the discussion.
	done := after
	done.Status = api.StatusCompleted
	done.Title = "Cache complexity verdict"
	setDetail(done)

	if err := ctrl.CompleteNow(context.Background()); err != nil {
		t.Fatalf("CompleteNow() error = %v", err)
	}
	waitStatus(string(roundtable.StatusCompleted))

	if v := ctrl.View(); v.Status != roundtable.StatusCompleted || v.Title != "Cache complexity verdict" {
		t.Errorf("final view = status %s title %q, want completed with title", v.Status, v.Title)
	}
}
