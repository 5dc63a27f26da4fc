package roundtable

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/kuangren777/llm-roundtable/internal/api"
	"github.com/kuangren777/llm-roundtable/internal/event"
	"github.com/kuangren777/llm-roundtable/internal/testutil"
)

func TestSummaryEligible(t *testing.T) {
	long := strings.Repeat("x", minSummaryLength)
	justShort := strings.Repeat("x", minSummaryLength-1)

	tests := []struct {
		name string
		msg  Message
		want bool
	}{
		{
			name: "long confirmed message",
			msg:  Message{Message: api.Message{ID: 1, Content: long}},
			want: true,
		},
		{
			name: "one character short",
			msg:  Message{Message: api.Message{ID: 1, Content: justShort}},
			want: false,
		},
		{
			name: "multibyte runes count as characters",
			msg:  Message{Message: api.Message{ID: 1, Content: strings.Repeat("语", minSummaryLength)}},
			want: true,
		},
		{
			name: "already summarized",
			msg:  Message{Message: api.Message{ID: 1, Content: long, Summary: "short version"}},
			want: false,
		},
		{
			name: "pending optimistic insert",
			msg:  Message{LocalID: "tmp", Message: api.Message{Content: long}},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := summaryEligible(tt.msg); got != tt.want {
				t.Errorf("summaryEligible() = %v, want %v", got, tt.want)
			}
		})
	}
}

func longMessageDetail(id int) api.DiscussionDetail {
	d := waitingDetail(id)
	d.Messages = []api.Message{
		{ID: 900, AgentName: "Alice", AgentRole: api.RolePanelist,
			Content: strings.Repeat("a detailed argument. ", 30)},
	}
	return d
}

func TestMaybeSummarizeAppliesStreamedSummaries(t *testing.T) {
	b := newBackend(t)
	b.setDetail(longMessageDetail(42))
	b.handle("POST /api/discussions/42/summarize", testutil.StreamHandler(
		frame(t, map[string]any{"event_type": "summary_progress", "content": "summarizing 1 message", "message_id": 900}),
		frame(t, map[string]any{"event_type": "summary_chunk", "content": "Alice argues ", "message_id": 900}),
		frame(t, map[string]any{"event_type": "summary_chunk", "content": "for caution.", "message_id": 900}),
		frame(t, map[string]any{"event_type": "summary_done", "content": "Alice argues for caution.", "message_id": 900}),
		frame(t, map[string]any{"event_type": "summary_complete"}),
	))

	c, rec, _ := newTestController(t, b)
	if err := c.Select(context.Background(), 42); err != nil {
		t.Fatalf("Select() error = %v", err)
	}

	if !c.MaybeSummarize(context.Background()) {
		t.Fatal("MaybeSummarize() = false, want a run started")
	}
	// A second call while the first is in flight must not start another.
	if c.MaybeSummarize(context.Background()) {
		t.Error("MaybeSummarize() = true while active, want false")
	}

	// The terminal summary_complete clears the active flag.
	rec.waitFor(t, "summarizer to finish", func(event.Event) bool {
		return !c.SummaryView().Active
	})

	v := c.View()
	if len(v.Messages) != 1 || v.Messages[0].Summary != "Alice argues for caution." {
		t.Errorf("message summary = %q, want the finalized summary", v.Messages[0].Summary)
	}
	sv := c.SummaryView()
	if len(sv.Buffers) != 0 {
		t.Errorf("buffers = %v after summary_done, want discarded", sv.Buffers)
	}
}

func TestMaybeSummarizeGuards(t *testing.T) {
	b := newBackend(t)
	d := waitingDetail(42)
	d.Messages = []api.Message{
		{ID: 1, AgentName: "Alice", AgentRole: api.RolePanelist, Content: "too short"},
	}
	b.setDetail(d)

	c, _, _ := newTestController(t, b)
	if c.MaybeSummarize(context.Background()) {
		t.Error("MaybeSummarize() = true without a selection, want false")
	}

	if err := c.Select(context.Background(), 42); err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if c.MaybeSummarize(context.Background()) {
		t.Error("MaybeSummarize() = true with no eligible message, want false")
	}
}

func TestMaybeSummarizeErrorCooldown(t *testing.T) {
	b := newBackend(t)
	b.setDetail(longMessageDetail(42))
	b.handle("POST /api/discussions/42/summarize", testutil.ErrorHandler(
		http.StatusInternalServerError, "summarizer unavailable",
	))

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c, rec, _ := newTestController(t, b,
		WithClock(func() time.Time { return clock }),
		WithSummaryCooldowns(30*time.Second, 20*time.Second),
	)
	if err := c.Select(context.Background(), 42); err != nil {
		t.Fatalf("Select() error = %v", err)
	}

	if !c.MaybeSummarize(context.Background()) {
		t.Fatal("MaybeSummarize() = false, want the first attempt started")
	}
	rec.waitFor(t, "summarizer failure", func(event.Event) bool {
		return !c.SummaryView().Active
	})

	// Inside the cooldown window nothing restarts.
	clock = clock.Add(10 * time.Second)
	if c.MaybeSummarize(context.Background()) {
		t.Error("MaybeSummarize() = true inside the error cooldown, want false")
	}

	// Past the window the retry goes through.
	clock = clock.Add(25 * time.Second)
	if !c.MaybeSummarize(context.Background()) {
		t.Error("MaybeSummarize() = false after the cooldown elapsed, want a retry")
	}
}

func TestMaybeSummarizeStreamEndWithoutTerminal(t *testing.T) {
	b := newBackend(t)
	b.setDetail(longMessageDetail(42))
	b.handle("POST /api/discussions/42/summarize", testutil.StreamHandler(
		frame(t, map[string]any{"event_type": "summary_progress", "content": "summarizing 1/1", "message_id": 900}),
	))

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c, rec, _ := newTestController(t, b,
		WithClock(func() time.Time { return clock }),
		WithSummaryCooldowns(30*time.Second, 20*time.Second),
	)
	if err := c.Select(context.Background(), 42); err != nil {
		t.Fatalf("Select() error = %v", err)
	}

	if !c.MaybeSummarize(context.Background()) {
		t.Fatal("MaybeSummarize() = false, want the attempt started")
	}
	// The stream closes with no summary_complete; the summarizer must
	// release rather than stay active forever.
	rec.waitFor(t, "summarizer release", func(event.Event) bool {
		return !c.SummaryView().Active
	})

	// The drop arms the error cooldown; past it the retry goes through.
	clock = clock.Add(35 * time.Second)
	if !c.MaybeSummarize(context.Background()) {
		t.Error("MaybeSummarize() = false after the stream dropped, want a retry")
	}
}

func TestSummaryPerMessageErrorKeepsStreamAlive(t *testing.T) {
	b := newBackend(t)
	b.setDetail(longMessageDetail(42))
	b.handle("POST /api/discussions/42/summarize", testutil.StreamHandler(
		frame(t, map[string]any{"event_type": "summary_error", "content": "context too long", "message_id": 900}),
		frame(t, map[string]any{"event_type": "summary_complete"}),
	))

	c, rec, _ := newTestController(t, b)
	if err := c.Select(context.Background(), 42); err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if !c.MaybeSummarize(context.Background()) {
		t.Fatal("MaybeSummarize() = false, want a run started")
	}
	rec.waitFor(t, "summarizer to finish", func(event.Event) bool {
		return !c.SummaryView().Active
	})

	if v := c.View(); v.Messages[0].Summary != "" {
		t.Errorf("Summary = %q after a per-message failure, want empty", v.Messages[0].Summary)
	}
	if v := c.View(); v.Status == StatusError {
		t.Error("a summarizer failure must not fail the discussion")
	}
}

func TestSummaryTargetLegacyFallback(t *testing.T) {
	b := newBackend(t)
	b.setDetail(longMessageDetail(42))
	// An older server carries the message id in round_number.
	b.handle("POST /api/discussions/42/summarize", testutil.StreamHandler(
		frame(t, map[string]any{"event_type": "summary_done", "content": "compressed", "round_number": 900}),
		frame(t, map[string]any{"event_type": "summary_complete"}),
	))

	c, rec, _ := newTestController(t, b)
	if err := c.Select(context.Background(), 42); err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if !c.MaybeSummarize(context.Background()) {
		t.Fatal("MaybeSummarize() = false, want a run started")
	}
	rec.waitFor(t, "summarizer to finish", func(event.Event) bool {
		return !c.SummaryView().Active
	})

	if v := c.View(); v.Messages[0].Summary != "compressed" {
		t.Errorf("Summary = %q, want the legacy-addressed summary applied", v.Messages[0].Summary)
	}
}
