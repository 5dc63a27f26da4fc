package stream

// Event is one decoded frame from a backend event stream. Every stream
// (discussion run, summarization, observer chat) shares this envelope;
// fields absent from a frame stay zero. Unknown event types are delivered
// through OnEvent so callers can ignore them safely.
type Event struct {
	Type          string `json:"event_type"`
	AgentName     string `json:"agent_name"`
	AgentRole     string `json:"agent_role"`
	Content       string `json:"content"`
	Phase         string `json:"phase"`
	RoundNumber   int    `json:"round_number"`
	CycleIndex    int    `json:"cycle_index"`
	MessageID     int    `json:"message_id"`
	CharsReceived int    `json:"chars_received"`
	LLMStatus     string `json:"llm_status"`
	CreatedAt     string `json:"created_at"`
}

// Discussion-run stream event types.
const (
	EventPhaseChange   = "phase_change"
	EventMessage       = "message"
	EventLLMProgress   = "llm_progress"
	EventError         = "error"
	EventComplete      = "complete"
	EventCycleComplete = "cycle_complete"
)

// Summarization stream event types. summary_chunk content is a delta and is
// appended; the message it belongs to travels in message_id, with
// round_number as a legacy fallback carrier.
const (
	EventSummaryProgress = "summary_progress"
	EventSummaryChunk    = "summary_chunk"
	EventSummaryDone     = "summary_done"
	EventSummaryComplete = "summary_complete"
	EventSummaryError    = "summary_error"
)

// Observer-chat stream event types. chunk content is a delta.
const (
	EventChunk = "chunk"
	EventDone  = "done"
)

// SummaryTarget returns the id of the message a summarization event refers
// to. Older servers carried it in round_number.
func (e Event) SummaryTarget() int {
	if e.MessageID != 0 {
		return e.MessageID
	}
	return e.RoundNumber
}

// LLM progress statuses reported in llm_progress events.
const (
	LLMWaiting   = "waiting"
	LLMStreaming = "streaming"
	LLMDone      = "done"
)
