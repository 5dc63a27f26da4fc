package roundtable

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kuangren777/llm-roundtable/internal/api"
	"github.com/kuangren777/llm-roundtable/internal/event"
	"github.com/kuangren777/llm-roundtable/internal/stream"
)

// Observer sub-session errors.
var (
	ErrIncompleteSelection = errors.New("roundtable: observer model selection is incomplete")
	ErrObserverBusy        = errors.New("roundtable: observer is already streaming a reply")
)

// ObserverSession is the independent side-chat with the observer persona.
// It shares the discussion's context server-side but is its own ordering
// domain: its stream is opened, cancelled and erred independently of the
// main run stream. One session exists per selected discussion and dies
// with the selection.
type ObserverSession struct {
	c  *Controller
	id int // discussion id

	mu        sync.Mutex
	history   []api.ObserverMessage
	buffer    string // accumulating reply; chunks are deltas
	streaming bool
	handle    *stream.Handle
	seq       uint64
}

// ObserverView is a copied snapshot for rendering.
type ObserverView struct {
	History   []api.ObserverMessage
	Buffer    string
	Streaming bool
}

func newObserverSession(c *Controller, discussionID int) *ObserverSession {
	return &ObserverSession{c: c, id: discussionID}
}

// DiscussionID returns the discussion this session is scoped to.
func (o *ObserverSession) DiscussionID() int {
	return o.id
}

// View returns a copied snapshot of the observer state.
func (o *ObserverSession) View() ObserverView {
	o.mu.Lock()
	defer o.mu.Unlock()
	v := ObserverView{
		History:   make([]api.ObserverMessage, len(o.history)),
		Buffer:    o.buffer,
		Streaming: o.streaming,
	}
	copy(v.History, o.history)
	return v
}

func (o *ObserverSession) setHistory(history []api.ObserverMessage) {
	o.mu.Lock()
	o.history = history
	o.mu.Unlock()
}

// Send submits one observer chat turn. The input must be non-empty and the
// model selection fully resolved; both are local validation failures, not
// server round-trips. The user's turn appears immediately; the reply
// accumulates delta chunks until the terminal done event finalizes it into
// the history.
func (o *ObserverSession) Send(ctx context.Context, text string, sel ModelSelection) error {
	if text == "" {
		return ErrEmptyInput
	}
	if !sel.Complete() {
		return ErrIncompleteSelection
	}

	req, err := o.c.client.ObserverChat(o.id, api.ObserverChatRequest{
		Content:    text,
		ProviderID: sel.ProviderID,
		Provider:   sel.Provider,
		Model:      sel.Model,
	})
	if err != nil {
		return err
	}

	o.mu.Lock()
	if o.streaming {
		o.mu.Unlock()
		return ErrObserverBusy
	}
	o.history = append(o.history, api.ObserverMessage{
		Role:      "user",
		Content:   text,
		CreatedAt: o.c.now(),
	})
	o.buffer = ""
	o.streaming = true
	o.seq++
	seq := o.seq
	o.handle = stream.Open(ctx, o.c.streamHC, stream.Request(req), stream.Options{
		Terminal: []string{stream.EventDone},
		OnEvent: func(ev stream.Event) {
			o.onEvent(seq, ev)
		},
		OnError: func(err error) {
			o.onError(seq, err)
		},
		OnComplete: func(ev stream.Event) {
			o.onComplete(seq)
		},
	})
	h := o.handle
	o.mu.Unlock()

	go o.watchStreamEnd(seq, h)
	o.c.publish(event.ObserverEvent{DiscussionID: o.id})
	return nil
}

// watchStreamEnd unblocks the session when the reply stream closes
// without a done or error event; the partial buffer is annotated the
// same way a transport error would be.
func (o *ObserverSession) watchStreamEnd(seq uint64, h *stream.Handle) {
	<-h.Done()
	o.mu.Lock()
	if o.seq != seq || o.handle != h || !o.streaming {
		o.mu.Unlock()
		return
	}
	o.buffer += "\n[error: stream ended unexpectedly]"
	o.streaming = false
	o.handle = nil
	o.mu.Unlock()
	o.c.publish(event.ObserverEvent{DiscussionID: o.id})
}

func (o *ObserverSession) onEvent(seq uint64, ev stream.Event) {
	if ev.Type != stream.EventChunk {
		return
	}
	o.mu.Lock()
	if o.seq != seq || !o.streaming {
		o.mu.Unlock()
		return
	}
	o.buffer += ev.Content
	o.mu.Unlock()
	o.c.publish(event.ObserverEvent{DiscussionID: o.id})
}

// onError annotates the visible buffer inline and stops streaming without
// finalizing a message.
func (o *ObserverSession) onError(seq uint64, err error) {
	o.mu.Lock()
	if o.seq != seq || !o.streaming {
		o.mu.Unlock()
		return
	}
	o.buffer += fmt.Sprintf("\n[error: %v]", err)
	o.streaming = false
	o.handle = nil
	o.mu.Unlock()
	o.c.publish(event.ObserverEvent{DiscussionID: o.id})
}

// onComplete turns the accumulated buffer into one finalized observer
// message.
func (o *ObserverSession) onComplete(seq uint64) {
	o.mu.Lock()
	if o.seq != seq || !o.streaming {
		o.mu.Unlock()
		return
	}
	o.history = append(o.history, api.ObserverMessage{
		Role:      "observer",
		Content:   o.buffer,
		CreatedAt: o.c.now(),
	})
	o.buffer = ""
	o.streaming = false
	o.handle = nil
	o.mu.Unlock()
	o.c.publish(event.ObserverEvent{DiscussionID: o.id})
}

// Clear cancels any active stream and empties the history. The server-side
// deletion is best-effort: local history clears regardless.
func (o *ObserverSession) Clear(ctx context.Context) {
	o.mu.Lock()
	h := o.handle
	o.handle = nil
	o.seq++
	o.history = nil
	o.buffer = ""
	o.streaming = false
	o.mu.Unlock()

	if h != nil {
		h.Cancel()
	}
	if err := o.c.client.ClearObserverHistory(ctx, o.id); err != nil {
		o.c.log.Warn("clear observer history failed", "discussion_id", o.id, "error", err)
	}
	o.c.publish(event.ObserverEvent{DiscussionID: o.id})
}

// detach cancels the stream when the discussion selection changes.
func (o *ObserverSession) detach() {
	o.mu.Lock()
	h := o.handle
	o.handle = nil
	o.seq++
	o.streaming = false
	o.mu.Unlock()
	if h != nil {
		h.Cancel()
	}
}
