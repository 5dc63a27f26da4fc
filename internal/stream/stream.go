// Package stream implements the cancellable client for the backend's
// newline-delimited "data:"-framed JSON event streams. One primitive serves
// the discussion run, the summarizer and the observer chat; each call site
// supplies its own terminal event set and callbacks.
package stream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	dataPrefix = "data:"

	// maxLineSize bounds a single frame. Streamed messages carry whole
	// cumulative texts, so frames can get large.
	maxLineSize = 2 * 1024 * 1024
)

// defaultClient carries no timeout: streams are long-lived by design and
// are ended by cancellation or server close.
var defaultClient = &http.Client{}

// Options configures one stream attachment.
type Options struct {
	// Terminal lists the event types that complete this stream's useful
	// lifetime. The first one seen triggers OnComplete; the reader keeps
	// draining until the server closes.
	Terminal []string

	// OnEvent receives every non-terminal, non-error event in arrival
	// order, including unknown types.
	OnEvent func(Event)

	// OnError receives transport failures and server "error" events. It is
	// never invoked for cancellation.
	OnError func(error)

	// OnComplete receives the first terminal event.
	OnComplete func(Event)
}

// Handle controls one open stream.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Cancel stops the stream. Safe to call more than once; events already
// dispatched are unaffected and no error callback results from the
// cancellation itself.
func (h *Handle) Cancel() {
	h.cancel()
}

// Done is closed once the read loop has fully exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Request describes the streaming endpoint invocation.
type Request struct {
	Method string
	URL    string
	Body   []byte
}

// Open issues the streaming request and returns immediately with a handle.
// All callbacks fire from a single background goroutine, preserving server
// emission order within the stream. A nil client uses a timeout-free
// default.
func Open(ctx context.Context, client *http.Client, req Request, opts Options) *Handle {
	if client == nil {
		client = defaultClient
	}

	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(h.done)
		run(ctx, client, req, opts)
	}()

	return h
}

func run(ctx context.Context, client *http.Client, req Request, opts Options) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		reportError(ctx, opts, fmt.Errorf("stream: create request: %w", err))
		return
	}
	httpReq.Header.Set("Accept", "text/event-stream")
	if len(req.Body) > 0 {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		reportError(ctx, opts, fmt.Errorf("stream: connect: %w", err))
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		reportError(ctx, opts, fmt.Errorf("stream: request failed: status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(detail))))
		return
	}

	terminal := make(map[string]bool, len(opts.Terminal))
	for _, t := range opts.Terminal {
		terminal[t] = true
	}

	completed := false

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, dataPrefix))
		if payload == "" {
			continue
		}

		var ev Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			// One corrupt frame must not take the stream down.
			continue
		}

		switch {
		case terminal[ev.Type]:
			if !completed {
				completed = true
				if opts.OnComplete != nil {
					opts.OnComplete(ev)
				}
			}
			// Keep draining: the server is expected to close after a
			// terminal event, but that is its decision, not ours.
		case ev.Type == EventError:
			reportError(ctx, opts, errors.New(ev.Content))
			return
		default:
			if opts.OnEvent != nil {
				opts.OnEvent(ev)
			}
		}
	}

	if err := scanner.Err(); err != nil && !completed {
		reportError(ctx, opts, fmt.Errorf("stream: read: %w", err))
	}
	// A clean end without a terminal event is not a failure; callers must
	// tolerate silently ended streams.
}

// reportError forwards an error unless the stream was cancelled.
// Cancellation is expected, not a fault.
func reportError(ctx context.Context, opts Options, err error) {
	if ctx.Err() != nil {
		return
	}
	if opts.OnError != nil {
		opts.OnError(err)
	}
}
