package event

// Event is the interface all bus events implement.
type Event interface {
	// EventType returns a dotted identifier used for subscription routing,
	// e.g. "discussion.status".
	EventType() string
}

// Event type identifiers.
const (
	TypeDiscussionStatus = "discussion.status"
	TypePhaseChanged     = "discussion.phase"
	TypeMessageAppended  = "discussion.message"
	TypeTranscript       = "discussion.transcript"
	TypeProgress         = "discussion.progress"
	TypeListChanged      = "discussion.list"
	TypeObserver         = "observer.updated"
	TypeSummary          = "summary.updated"
)

// DiscussionStatusEvent reports a client-status transition for a
// discussion, including the error text when the status is an error.
type DiscussionStatusEvent struct {
	DiscussionID int
	Status       string
	Err          string
}

func (e DiscussionStatusEvent) EventType() string { return TypeDiscussionStatus }

// PhaseChangedEvent reports a workflow phase transition.
type PhaseChangedEvent struct {
	DiscussionID int
	Phase        string
}

func (e PhaseChangedEvent) EventType() string { return TypePhaseChanged }

// MessageAppendedEvent reports one new finalized message.
type MessageAppendedEvent struct {
	DiscussionID int
	MessageID    int
	AgentName    string
}

func (e MessageAppendedEvent) EventType() string { return TypeMessageAppended }

// TranscriptEvent reports a wholesale transcript change (snapshot load,
// poll refresh, truncation, reset). Subscribers should re-read the
// controller's view.
type TranscriptEvent struct {
	DiscussionID int
}

func (e TranscriptEvent) EventType() string { return TypeTranscript }

// ProgressEvent reports that per-agent streaming progress or content
// changed.
type ProgressEvent struct {
	DiscussionID int
	AgentName    string
}

func (e ProgressEvent) EventType() string { return TypeProgress }

// ListChangedEvent reports that the discussion list (sidebar badges)
// should be refreshed.
type ListChangedEvent struct{}

func (e ListChangedEvent) EventType() string { return TypeListChanged }

// ObserverEvent reports observer sub-session activity: new history turns
// or streaming buffer growth.
type ObserverEvent struct {
	DiscussionID int
}

func (e ObserverEvent) EventType() string { return TypeObserver }

// SummaryEvent reports summarization sub-session activity for one message.
type SummaryEvent struct {
	DiscussionID int
	MessageID    int
}

func (e SummaryEvent) EventType() string { return TypeSummary }
