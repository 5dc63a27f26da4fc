package roundtable

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/kuangren777/llm-roundtable/internal/event"
	"github.com/kuangren777/llm-roundtable/internal/stream"
)

const (
	// minSummaryLength is the content length (in characters) at which a
	// finalized message becomes eligible for background summarization.
	minSummaryLength = 200

	// summaryErrorCooldown suppresses auto-retry storms after a failed
	// summarization run.
	summaryErrorCooldown = 30 * time.Second

	// summaryRunningCooldown spaces out summarization attempts while the
	// discussion itself is actively generating.
	summaryRunningCooldown = 20 * time.Second
)

// summaryState is the summarization sub-session. It shares the controller
// mutex because summaries merge back into the finalized message list.
type summaryState struct {
	active        bool
	progressText  string
	currentMsgID  int
	buffers       map[int]string
	lastErrorAt   time.Time
	lastRunningAt time.Time

	errorCooldown   time.Duration
	runningCooldown time.Duration

	seq    uint64
	handle *stream.Handle
}

// SummaryView is a copied snapshot of the summarizer state for rendering.
type SummaryView struct {
	Active           bool
	ProgressText     string
	CurrentMessageID int
	Buffers          map[int]string
}

// SummaryView returns the current summarizer state.
func (c *Controller) SummaryView() SummaryView {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := SummaryView{
		Active:           c.sum.active,
		ProgressText:     c.sum.progressText,
		CurrentMessageID: c.sum.currentMsgID,
		Buffers:          make(map[int]string, len(c.sum.buffers)),
	}
	for k, b := range c.sum.buffers {
		v.Buffers[k] = b
	}
	return v
}

// resetSummaryLocked wipes the summarizer and returns the handle to cancel
// once the lock is released.
func (c *Controller) resetSummaryLocked() *stream.Handle {
	h := c.sum.handle
	c.sum.handle = nil
	c.sum.seq++
	c.sum.active = false
	c.sum.progressText = ""
	c.sum.currentMsgID = 0
	c.sum.buffers = nil
	return h
}

// summaryEligible reports whether a message should be compressed: long
// enough, server-confirmed, and not yet summarized.
func summaryEligible(m Message) bool {
	return m.Confirmed() && m.Summary == "" && utf8.RuneCountInString(m.Content) >= minSummaryLength
}

// MaybeSummarize starts a background summarization run when every guard
// passes: the discussion is in a summarizable status, at least one
// eligible message exists, nothing is already in flight, neither cooldown
// is armed, and no agent is mid-generation (summaries must not compete
// with the live discussion for the same call budget). Reports whether a
// run was started.
func (c *Controller) MaybeSummarize(ctx context.Context) bool {
	c.mu.Lock()
	if c.id == 0 || c.sum.active {
		c.mu.Unlock()
		return false
	}
	switch c.status {
	case StatusRunning, StatusCompleted, StatusWaitingInput:
	default:
		c.mu.Unlock()
		return false
	}

	eligible := false
	for _, m := range c.messages {
		if summaryEligible(m) {
			eligible = true
			break
		}
	}
	if !eligible {
		c.mu.Unlock()
		return false
	}

	now := c.now()
	if !c.sum.lastErrorAt.IsZero() && now.Sub(c.sum.lastErrorAt) < c.sum.errorCooldown {
		c.mu.Unlock()
		return false
	}
	if c.status == StatusRunning {
		if !c.sum.lastRunningAt.IsZero() && now.Sub(c.sum.lastRunningAt) < c.sum.runningCooldown {
			c.mu.Unlock()
			return false
		}
		for _, p := range c.progress {
			if p.Status == stream.LLMStreaming || p.Status == stream.LLMWaiting {
				c.mu.Unlock()
				return false
			}
		}
		c.sum.lastRunningAt = now
	}

	id := c.id
	gen := c.gen
	c.sum.active = true
	c.sum.progressText = ""
	c.sum.buffers = make(map[int]string)
	c.sum.seq++
	seq := c.sum.seq

	req := c.client.SummarizeRequest(id)
	c.sum.handle = stream.Open(ctx, c.streamHC, stream.Request(req), stream.Options{
		Terminal: []string{stream.EventSummaryComplete},
		OnEvent: func(ev stream.Event) {
			c.onSummaryEvent(gen, seq, ev)
		},
		OnError: func(err error) {
			c.onSummaryError(gen, seq, err)
		},
		OnComplete: func(ev stream.Event) {
			c.onSummaryComplete(gen, seq)
		},
	})
	h := c.sum.handle
	c.mu.Unlock()

	go c.watchSummaryEnd(gen, seq, h)
	c.log.Info("summarization started", "discussion_id", id)
	c.publish(event.SummaryEvent{DiscussionID: id})
	return true
}

func (c *Controller) onSummaryEvent(gen, seq uint64, ev stream.Event) {
	c.mu.Lock()
	if c.gen != gen || c.sum.seq != seq || !c.sum.active {
		c.mu.Unlock()
		return
	}
	id := c.id
	target := ev.SummaryTarget()

	var evs []event.Event
	switch ev.Type {
	case stream.EventSummaryProgress:
		c.sum.progressText = ev.Content
		c.sum.currentMsgID = target
		evs = append(evs, event.SummaryEvent{DiscussionID: id, MessageID: target})

	case stream.EventSummaryChunk:
		// Chunks are deltas; the full summary only arrives with
		// summary_done.
		c.sum.currentMsgID = target
		c.sum.buffers[target] += ev.Content
		evs = append(evs, event.SummaryEvent{DiscussionID: id, MessageID: target})

	case stream.EventSummaryDone:
		// The finalized summary is authoritative; its streaming buffer is
		// discarded so the two are never shown together.
		if idx := c.indexOfLocked(target); idx >= 0 {
			c.messages[idx].Summary = ev.Content
		}
		delete(c.sum.buffers, target)
		evs = append(evs,
			event.SummaryEvent{DiscussionID: id, MessageID: target},
			event.TranscriptEvent{DiscussionID: id},
		)

	case stream.EventSummaryError:
		// Per-message failure: surface it, arm the cooldown, let the
		// server continue with the remaining messages.
		c.sum.progressText = ev.Content
		c.sum.lastErrorAt = c.now()
		delete(c.sum.buffers, target)
		evs = append(evs, event.SummaryEvent{DiscussionID: id, MessageID: target})
	}
	c.mu.Unlock()
	c.publish(evs...)
}

func (c *Controller) onSummaryError(gen, seq uint64, err error) {
	c.mu.Lock()
	if c.gen != gen || c.sum.seq != seq || !c.sum.active {
		c.mu.Unlock()
		return
	}
	id := c.id
	c.sum.lastErrorAt = c.now()
	c.sum.progressText = err.Error()
	h := c.sum.handle
	c.sum.handle = nil
	c.sum.active = false
	c.sum.buffers = nil
	c.mu.Unlock()

	if h != nil {
		h.Cancel()
	}
	c.log.Warn("summarization failed", "discussion_id", id, "error", err)
	c.publish(event.SummaryEvent{DiscussionID: id})
}

// watchSummaryEnd releases the summarizer when the stream's read loop
// exits without a terminal or error event, so a dropped connection can
// never leave summarization stuck active.
func (c *Controller) watchSummaryEnd(gen, seq uint64, h *stream.Handle) {
	<-h.Done()
	c.mu.Lock()
	if c.gen != gen || c.sum.seq != seq || c.sum.handle != h {
		c.mu.Unlock()
		return
	}
	id := c.id
	c.sum.lastErrorAt = c.now()
	c.sum.active = false
	c.sum.progressText = ""
	c.sum.currentMsgID = 0
	c.sum.buffers = nil
	c.sum.handle = nil
	c.mu.Unlock()

	c.log.Warn("summarization stream ended without terminal event", "discussion_id", id)
	c.publish(event.SummaryEvent{DiscussionID: id})
}

func (c *Controller) onSummaryComplete(gen, seq uint64) {
	c.mu.Lock()
	if c.gen != gen || c.sum.seq != seq || !c.sum.active {
		c.mu.Unlock()
		return
	}
	id := c.id
	c.sum.active = false
	c.sum.progressText = ""
	c.sum.currentMsgID = 0
	c.sum.buffers = nil
	c.sum.handle = nil
	c.mu.Unlock()

	c.publish(event.SummaryEvent{DiscussionID: id})
}
