// Package roundtable implements the client-side state machine for a live
// discussion: it reconciles the streamed run events, live-state snapshots,
// poll-fallback refreshes and REST snapshots into one consistent view of
// what a discussion is doing right now.
//
// Controller owns the main discussion state and the poll fallback.
// ObserverSession and the summarizer are layered sub-sessions with their
// own streams; the three streams are independent ordering domains and are
// cancellable independently.
//
// All state mutation happens under a single mutex; bus notifications are
// published after the mutex is released so subscribers may call back into
// the controller's read methods.
package roundtable
