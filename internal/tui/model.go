package tui

import (
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"

	"github.com/kuangren777/llm-roundtable/internal/api"
	"github.com/kuangren777/llm-roundtable/internal/config"
	"github.com/kuangren777/llm-roundtable/internal/logging"
	"github.com/kuangren777/llm-roundtable/internal/roundtable"
)

// inputMode identifies which component owns the keyboard.
type inputMode int

const (
	modeNormal inputMode = iota
	modeCompose
	modeObserver
	modeCommand
)

// confirmKind identifies what a pending :y confirmation will execute.
type confirmKind int

const (
	confirmNone confirmKind = iota
	confirmTopic
	confirmDelete
)

// pendingConfirm is a destructive action awaiting :y.
type pendingConfirm struct {
	kind  confirmKind
	topic string
	id    int // discussion to delete
	count int // messages that will be deleted
}

// Model is the Bubbletea model for the roundtable TUI.
type Model struct {
	ctrl   *roundtable.Controller
	client *api.Client
	cfg    *config.Config
	log    *logging.Logger

	width  int
	height int
	ready  bool

	// Sidebar cursor into the controller's discussion list.
	listCursor int

	transcript viewport.Model
	// follow keeps the transcript pinned to the bottom while content grows.
	follow bool

	mode          inputMode
	composer      textarea.Model
	observerInput textarea.Model
	showObserver  bool
	observerSel   roundtable.ModelSelection

	commandBuffer string
	confirm       *pendingConfirm

	showHelp     bool
	infoMessage  string
	errorMessage string
	quitting     bool
}

// NewModel creates the initial TUI model.
func NewModel(ctrl *roundtable.Controller, client *api.Client, cfg *config.Config, log *logging.Logger) Model {
	composer := textarea.New()
	composer.Placeholder = "Your input to the discussion..."
	composer.ShowLineNumbers = false
	composer.SetHeight(3)

	observerInput := textarea.New()
	observerInput.Placeholder = "Ask the observer..."
	observerInput.ShowLineNumbers = false
	observerInput.SetHeight(2)

	return Model{
		ctrl:          ctrl,
		client:        client,
		cfg:           cfg,
		log:           log.WithComponent("tui"),
		follow:        true,
		composer:      composer,
		observerInput: observerInput,
	}
}

// cursorDiscussion returns the discussion under the sidebar cursor, or nil.
func (m *Model) cursorDiscussion() *api.Discussion {
	list := m.ctrl.Discussions()
	if m.listCursor < 0 || m.listCursor >= len(list) {
		return nil
	}
	d := list[m.listCursor]
	return &d
}

// clampCursor keeps the sidebar cursor inside the list after refreshes.
func (m *Model) clampCursor() {
	n := len(m.ctrl.Discussions())
	if m.listCursor >= n {
		m.listCursor = n - 1
	}
	if m.listCursor < 0 {
		m.listCursor = 0
	}
}

// Layout constants
const (
	sidebarMinWidth = 20
	observerWidth   = 40

	// Vertical chrome around the transcript viewport: header (2) +
	// progress area (2) + composer (4) + status bar (1) + borders (2).
	contentHeightOffset = 11
)

// sidebarWidth returns the effective sidebar width for the terminal size.
func (m *Model) sidebarWidth() int {
	w := m.cfg.TUI.SidebarWidth
	if m.width < 90 {
		w = sidebarMinWidth
	}
	return w
}

// contentWidth returns the transcript panel width.
func (m *Model) contentWidth() int {
	w := m.width - m.sidebarWidth() - 4
	if m.showObserver {
		w -= observerWidth
	}
	if w < 20 {
		w = 20
	}
	return w
}

// resize recomputes component dimensions after a terminal resize.
func (m *Model) resize() {
	cw := m.contentWidth()
	ch := m.height - contentHeightOffset
	if ch < 5 {
		ch = 5
	}
	if !m.ready {
		m.transcript = viewport.New(cw, ch)
		m.ready = true
	} else {
		m.transcript.Width = cw
		m.transcript.Height = ch
	}
	m.composer.SetWidth(cw)
	m.observerInput.SetWidth(observerWidth - 4)
}
