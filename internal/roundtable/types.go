package roundtable

import (
	"github.com/kuangren777/llm-roundtable/internal/api"
	"github.com/kuangren777/llm-roundtable/internal/livestate"
)

// Status is the client-side projection of a discussion's lifecycle. It is
// coarser than the server status: the four server-side workflow states all
// project onto StatusRunning.
type Status string

const (
	StatusLoading      Status = "loading"
	StatusReady        Status = "ready"
	StatusRunning      Status = "running"
	StatusWaitingInput Status = "waiting_input"
	StatusCompleted    Status = "completed"
	StatusError        Status = "error"
)

// projectStatus maps a server status onto the client status.
func projectStatus(s api.DiscussionStatus) Status {
	switch {
	case s == api.StatusCompleted:
		return StatusCompleted
	case s == api.StatusWaitingInput:
		return StatusWaitingInput
	case s == api.StatusFailed:
		return StatusError
	case s == api.StatusCreated:
		return StatusReady
	case s.Running():
		return StatusRunning
	}
	return StatusReady
}

// Message is a finalized utterance plus the client-side pending identity.
// A message is optimistic until the server confirms it: while pending it
// carries a LocalID and no server ID, so a temporary marker can never
// collide with a legitimate server id.
type Message struct {
	api.Message

	// LocalID tags an optimistic insert awaiting server confirmation.
	// Empty once confirmed.
	LocalID string
}

// Confirmed reports whether the message is server-persisted and
// authoritative.
func (m Message) Confirmed() bool {
	return m.LocalID == "" && m.ID > 0
}

// Workflow phases emitted by the server.
const (
	PhasePlanning         = "planning"
	PhaseDiscussing       = "discussing"
	PhaseReflecting       = "reflecting"
	PhaseSynthesizing     = "synthesizing"
	PhaseRoundSummary     = "round_summary"
	PhaseNextStepPlanning = "next_step_planning"
)

// phaseOwner returns the agent role expected to be generating during a
// phase. Phases outside the known set have no owner, so a phase change
// into them prunes all streaming state.
func phaseOwner(phase string) (api.AgentRole, bool) {
	switch phase {
	case PhasePlanning, PhaseSynthesizing, PhaseRoundSummary, PhaseNextStepPlanning:
		return api.RoleHost, true
	case PhaseDiscussing:
		return api.RolePanelist, true
	case PhaseReflecting:
		return api.RoleCritic, true
	}
	return "", false
}

// View is a copied, lock-free snapshot of the controller state for
// rendering.
type View struct {
	DiscussionID int
	Status       Status
	Err          string

	Topic        string
	Title        string
	Mode         api.DiscussionMode
	Phase        string
	CurrentRound int
	MaxRounds    int
	FinalSummary string

	Agents    []api.AgentConfig
	Messages  []Message
	Progress  map[string]livestate.Progress
	Streaming map[string]string
}

// ModelSelection is a fully resolved provider+model choice for the
// observer chat. All three fields must be present before a send.
type ModelSelection struct {
	ProviderID int
	Provider   string
	Model      string
}

// Complete reports whether every part of the selection is set.
func (s ModelSelection) Complete() bool {
	return s.ProviderID != 0 && s.Provider != "" && s.Model != ""
}
