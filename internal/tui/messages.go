package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kuangren777/llm-roundtable/internal/event"
	"github.com/kuangren777/llm-roundtable/internal/roundtable"
)

// Messages

type tickMsg time.Time

// stateMsg carries a bus event into the Bubbletea update loop. The
// controller has already applied the change; the model re-reads its views.
type stateMsg struct {
	event event.Event
}

type errMsg struct {
	err error
}

type infoMsg struct {
	text string
}

// selectedMsg reports that a discussion selection round-trip finished.
type selectedMsg struct {
	id int
}

// observerModelMsg carries the resolved observer model selection fetched
// at startup.
type observerModelMsg struct {
	sel roundtable.ModelSelection
}

// Commands

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
