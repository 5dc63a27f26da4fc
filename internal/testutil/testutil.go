// Package testutil provides fake-backend helpers for roundtable tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
)

// SSEFrame encodes one event as a server-sent frame: "data: {json}\n\n".
// Values can be any JSON-encodable payload, typically map[string]any with
// an event_type key.
func SSEFrame(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshaling frame: %v", err)
	}
	return fmt.Sprintf("data: %s\n\n", data)
}

// StreamHandler returns a handler that writes the given pre-formatted
// frames in order, flushing after each, then closes the stream.
func StreamHandler(frames ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, _ := w.(http.Flusher)
		for _, frame := range frames {
			_, _ = w.Write([]byte(frame))
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

// JSONHandler returns a handler that responds 200 with the JSON encoding
// of v.
func JSONHandler(v any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}
}

// ErrorHandler returns a handler that responds with a FastAPI-style
// {"detail": ...} error body.
func ErrorHandler(status int, detail string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
	}
}
