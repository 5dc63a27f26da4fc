package api

import "time"

// DiscussionStatus is the server-authoritative lifecycle status of a
// discussion. The client projects it onto a coarser local status; see the
// roundtable package.
type DiscussionStatus string

const (
	StatusCreated      DiscussionStatus = "created"
	StatusPlanning     DiscussionStatus = "planning"
	StatusDiscussing   DiscussionStatus = "discussing"
	StatusReflecting   DiscussionStatus = "reflecting"
	StatusSynthesizing DiscussionStatus = "synthesizing"
	StatusWaitingInput DiscussionStatus = "waiting_input"
	StatusCompleted    DiscussionStatus = "completed"
	StatusFailed       DiscussionStatus = "failed"
)

// Running reports whether the status means the server-side workflow is
// actively executing.
func (s DiscussionStatus) Running() bool {
	switch s {
	case StatusPlanning, StatusDiscussing, StatusReflecting, StatusSynthesizing:
		return true
	}
	return false
}

// DiscussionMode determines how agents are generated server-side.
// Opaque to the client beyond selection at creation time.
type DiscussionMode string

const (
	ModeAuto       DiscussionMode = "auto"
	ModeDebate     DiscussionMode = "debate"
	ModeBrainstorm DiscussionMode = "brainstorm"
	ModeSequential DiscussionMode = "sequential"
	ModeCustom     DiscussionMode = "custom"
)

// AgentRole identifies which seat an agent occupies in the workflow.
type AgentRole string

const (
	RoleHost     AgentRole = "host"
	RolePanelist AgentRole = "panelist"
	RoleCritic   AgentRole = "critic"
	RoleUser     AgentRole = "user"
)

// NormalizeRole maps arbitrary role strings onto the known enum, degrading
// unknown values to panelist so a forward-compatible server cannot break
// rendering.
func NormalizeRole(s string) AgentRole {
	switch AgentRole(s) {
	case RoleHost, RolePanelist, RoleCritic, RoleUser:
		return AgentRole(s)
	}
	return RolePanelist
}

// Discussion is one debate session as returned by the list endpoint.
type Discussion struct {
	ID           int              `json:"id"`
	Topic        string           `json:"topic"`
	Title        string           `json:"title,omitempty"`
	Mode         DiscussionMode   `json:"mode"`
	Status       DiscussionStatus `json:"status"`
	CurrentRound int              `json:"current_round"`
	MaxRounds    int              `json:"max_rounds"`
	FinalSummary string           `json:"final_summary,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
	Agents       []AgentConfig    `json:"agents,omitempty"`
}

// DiscussionDetail is the full snapshot: discussion plus messages and
// attached materials.
type DiscussionDetail struct {
	Discussion
	Messages  []Message  `json:"messages"`
	Materials []Material `json:"materials,omitempty"`
}

// AgentConfig is one participant in a discussion.
type AgentConfig struct {
	ID       int       `json:"id"`
	Name     string    `json:"name"`
	Role     AgentRole `json:"role"`
	Persona  string    `json:"persona,omitempty"`
	Provider string    `json:"provider"`
	Model    string    `json:"model"`
	BaseURL  string    `json:"base_url,omitempty"`
}

// Message is one finalized utterance, server-persisted and authoritative
// once it carries a positive id.
type Message struct {
	ID          int       `json:"id"`
	AgentName   string    `json:"agent_name"`
	AgentRole   AgentRole `json:"agent_role"`
	Content     string    `json:"content"`
	Summary     string    `json:"summary,omitempty"`
	RoundNumber int       `json:"round_number"`
	CycleIndex  int       `json:"cycle_index"`
	Phase       string    `json:"phase,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Material is a reference document attached to a discussion. The client
// only lists materials; upload happens elsewhere.
type Material struct {
	ID       int    `json:"id"`
	Filename string `json:"filename"`
	FileType string `json:"file_type"`
	MimeType string `json:"mime_type,omitempty"`
	Status   string `json:"status,omitempty"`
}

// ObserverMessage is one turn of the observer side-chat. Independent of the
// main Message history.
type ObserverMessage struct {
	ID        int       `json:"id"`
	Role      string    `json:"role"` // "user" | "observer"
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Provider is a configured LLM backend with its nested models.
type Provider struct {
	ID       int       `json:"id"`
	Name     string    `json:"name"`
	Provider string    `json:"provider"`
	BaseURL  string    `json:"base_url,omitempty"`
	Models   []Model   `json:"models,omitempty"`
	Created  time.Time `json:"created_at"`
}

// Model is one model offered by a provider.
type Model struct {
	ID    int    `json:"id"`
	Model string `json:"model"`
	Name  string `json:"name,omitempty"`
}

// Setting is a key/value system setting (e.g. the observer or summary model
// selection).
type Setting struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// CreateDiscussionRequest creates a new discussion.
type CreateDiscussionRequest struct {
	Topic     string         `json:"topic"`
	Mode      DiscussionMode `json:"mode,omitempty"`
	MaxRounds int            `json:"max_rounds,omitempty"`
	Agents    []AgentConfig  `json:"agents,omitempty"`
}

// UserInputResponse confirms a submitted user message.
type UserInputResponse struct {
	ID      int    `json:"id"`
	Content string `json:"content"`
}

// TruncateResponse reports how many messages a truncation removed.
type TruncateResponse struct {
	Deleted int `json:"deleted_count"`
}

// AgentUpdate carries partial agent edits. Nil fields are left unchanged.
type AgentUpdate struct {
	Name     *string `json:"name,omitempty"`
	Persona  *string `json:"persona,omitempty"`
	Provider *string `json:"provider,omitempty"`
	Model    *string `json:"model,omitempty"`
	APIKey   *string `json:"api_key,omitempty"`
	BaseURL  *string `json:"base_url,omitempty"`
}

// ProviderUpdate carries partial provider edits.
type ProviderUpdate struct {
	Name     *string `json:"name,omitempty"`
	Provider *string `json:"provider,omitempty"`
	APIKey   *string `json:"api_key,omitempty"`
	BaseURL  *string `json:"base_url,omitempty"`
}

// ObserverChatRequest starts one observer chat turn. The provider/model
// selection must be fully resolved before sending; the client validates
// this locally.
type ObserverChatRequest struct {
	Content    string `json:"content"`
	ProviderID int    `json:"provider_id"`
	Provider   string `json:"provider"`
	Model      string `json:"model"`
}
