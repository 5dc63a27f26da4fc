package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kuangren777/llm-roundtable/internal/api"
	"github.com/kuangren777/llm-roundtable/internal/event"
	"github.com/kuangren777/llm-roundtable/internal/roundtable"
)

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tick(),
		m.cmdRefreshList(),
		m.cmdResolveObserverModel(),
	)
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeypress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.refreshTranscript()
		return m, nil

	case tickMsg:
		// The summarizer guards its own cadence; the tick only offers it
		// an opportunity.
		return m, tea.Batch(tick(), m.cmdMaybeSummarize())

	case stateMsg:
		return m.handleStateEvent(msg.event)

	case selectedMsg:
		m.follow = true
		m.refreshTranscript()
		m.transcript.GotoBottom()
		if m.cfg.TUI.AutoAttach {
			return m, m.cmdEnsureAttached()
		}
		return m, nil

	case observerModelMsg:
		m.observerSel = msg.sel
		return m, nil

	case infoMsg:
		m.infoMessage = msg.text
		m.errorMessage = ""
		return m, nil

	case errMsg:
		if msg.err != nil {
			m.errorMessage = msg.err.Error()
		}
		return m, nil
	}

	return m, nil
}

// handleStateEvent reacts to one controller bus event.
func (m Model) handleStateEvent(ev event.Event) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch ev.(type) {
	case event.ListChangedEvent:
		m.clampCursor()

	case event.MessageAppendedEvent:
		m.refreshTranscript()
		cmds = append(cmds, m.cmdMaybeSummarize())

	case event.DiscussionStatusEvent, event.PhaseChangedEvent,
		event.TranscriptEvent, event.ProgressEvent, event.SummaryEvent:
		m.refreshTranscript()

	case event.ObserverEvent:
		// Observer panel renders straight from the session view.
	}

	if m.follow {
		m.transcript.GotoBottom()
	}
	if len(cmds) == 0 {
		return m, nil
	}
	return m, tea.Batch(cmds...)
}

// handleKeypress processes keyboard input
func (m Model) handleKeypress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.mode {
	case modeCompose:
		return m.handleComposeInput(msg)
	case modeObserver:
		return m.handleObserverInput(msg)
	case modeCommand:
		return m.handleCommandInput(msg)
	}

	// Normal mode - clear transient info on most actions
	m.infoMessage = ""

	switch msg.String() {
	case ":":
		m.mode = modeCommand
		m.commandBuffer = ""
		return m, nil

	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "?":
		m.showHelp = !m.showHelp
		return m, nil

	case "J", "shift+down":
		if n := len(m.ctrl.Discussions()); n > 0 {
			m.listCursor = (m.listCursor + 1) % n
		}
		return m, nil

	case "K", "shift+up":
		if n := len(m.ctrl.Discussions()); n > 0 {
			m.listCursor = (m.listCursor - 1 + n) % n
		}
		return m, nil

	case "enter":
		if d := m.cursorDiscussion(); d != nil {
			return m, m.cmdSelect(d.ID)
		}
		return m, nil

	case "i":
		if m.ctrl.View().DiscussionID == 0 {
			m.infoMessage = "Select a discussion first"
			return m, nil
		}
		m.mode = modeCompose
		m.composer.Reset()
		return m, m.composer.Focus()

	case "o":
		m.showObserver = !m.showObserver
		m.resize()
		m.refreshTranscript()
		return m, nil

	case "O":
		if m.ctrl.Observer() == nil {
			m.infoMessage = "Select a discussion first"
			return m, nil
		}
		m.showObserver = true
		m.resize()
		m.mode = modeObserver
		m.observerInput.Reset()
		return m, m.observerInput.Focus()

	case "r":
		return m, m.cmdRun(false)

	case "s":
		return m, m.cmdStop()

	case "j", "down":
		m.follow = false
		m.transcript.LineDown(1)
		return m, nil

	case "k", "up":
		m.follow = false
		m.transcript.LineUp(1)
		return m, nil

	case "ctrl+d":
		m.follow = false
		m.transcript.HalfViewDown()
		return m, nil

	case "ctrl+u":
		m.follow = false
		m.transcript.HalfViewUp()
		return m, nil

	case "g":
		m.follow = false
		m.transcript.GotoTop()
		return m, nil

	case "G":
		m.follow = true
		m.transcript.GotoBottom()
		return m, nil

	case "esc":
		m.showHelp = false
		m.confirm = nil
		return m, nil
	}

	return m, nil
}

// handleComposeInput handles keystrokes while composing user input.
func (m Model) handleComposeInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.mode = modeNormal
		m.composer.Blur()
		return m, nil

	case tea.KeyEnter:
		// Plain Enter submits; Alt+Enter inserts a newline.
		if msg.Alt {
			m.composer.InsertString("\n")
			return m, nil
		}
		text := m.composer.Value()
		m.mode = modeNormal
		m.composer.Blur()
		m.composer.Reset()
		return m, m.cmdSubmitInput(text)
	}

	var cmd tea.Cmd
	m.composer, cmd = m.composer.Update(msg)
	return m, cmd
}

// handleObserverInput handles keystrokes while typing an observer message.
func (m Model) handleObserverInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.mode = modeNormal
		m.observerInput.Blur()
		return m, nil

	case tea.KeyEnter:
		if msg.Alt {
			m.observerInput.InsertString("\n")
			return m, nil
		}
		text := m.observerInput.Value()
		m.mode = modeNormal
		m.observerInput.Blur()
		m.observerInput.Reset()
		return m, m.cmdObserverSend(text)
	}

	var cmd tea.Cmd
	m.observerInput, cmd = m.observerInput.Update(msg)
	return m, cmd
}

// handleCommandInput handles keystrokes when in command mode (after pressing ':')
func (m Model) handleCommandInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.mode = modeNormal
		m.commandBuffer = ""
		return m, nil

	case tea.KeyEnter:
		m.mode = modeNormal
		cmd := m.commandBuffer
		m.commandBuffer = ""
		return m.executeCommand(cmd)

	case tea.KeyBackspace, tea.KeyDelete:
		if len(m.commandBuffer) > 0 {
			m.commandBuffer = m.commandBuffer[:len(m.commandBuffer)-1]
		}
		if len(m.commandBuffer) == 0 {
			m.mode = modeNormal
		}
		return m, nil

	case tea.KeySpace:
		m.commandBuffer += " "
		return m, nil

	case tea.KeyRunes:
		m.commandBuffer += string(msg.Runes)
		return m, nil
	}

	return m, nil
}

// executeCommand parses and executes a vim-style command
func (m Model) executeCommand(cmd string) (tea.Model, tea.Cmd) {
	cmd = strings.TrimSpace(cmd)
	if cmd == "" {
		return m, nil
	}

	m.infoMessage = ""
	m.errorMessage = ""

	verb, arg, _ := strings.Cut(cmd, " ")
	arg = strings.TrimSpace(arg)

	switch verb {
	// Discussion control
	case "s", "start", "run":
		return m, m.cmdRun(false)
	case "single":
		return m, m.cmdRun(true)
	case "x", "stop":
		return m, m.cmdStop()
	case "R", "reset":
		m.confirm = nil
		return m, m.cmdReset()
	case "done", "complete":
		return m, m.cmdComplete()

	// Discussion management
	case "n", "new":
		if arg == "" {
			m.errorMessage = "Usage: :new <topic>"
			return m, nil
		}
		return m, m.cmdCreate(arg)
	case "D", "delete":
		if d := m.cursorDiscussion(); d != nil {
			m.confirm = &pendingConfirm{kind: confirmDelete, id: d.ID}
			m.infoMessage = fmt.Sprintf("Delete discussion %d and everything in it? :y to confirm, Esc to cancel.", d.ID)
			return m, nil
		}
		m.infoMessage = "No discussion under cursor"
		return m, nil
	case "topic":
		if arg == "" {
			m.errorMessage = "Usage: :topic <new topic>"
			return m, nil
		}
		return m.tryEditTopic(arg, false)
	case "y", "yes":
		return m.confirmPending()

	// Observer
	case "o", "observer":
		m.showObserver = !m.showObserver
		m.resize()
		m.refreshTranscript()
		return m, nil
	case "clear":
		return m, m.cmdObserverClear()

	// Utility
	case "l", "list":
		return m, m.cmdRefreshList()
	case "h", "help":
		m.showHelp = !m.showHelp
		return m, nil
	case "q", "quit":
		m.quitting = true
		return m, tea.Quit

	default:
		m.errorMessage = fmt.Sprintf("Unknown command: %s (type :h for help)", cmd)
		return m, nil
	}
}

// tryEditTopic attempts a topic rewrite, prompting for confirmation when
// the edit would truncate the transcript.
func (m Model) tryEditTopic(topic string, confirmed bool) (tea.Model, tea.Cmd) {
	err := m.ctrl.EditTopic(context.Background(), topic, confirmed)
	switch {
	case errors.Is(err, roundtable.ErrConfirmTruncate):
		count := len(m.ctrl.View().Messages)
		m.confirm = &pendingConfirm{kind: confirmTopic, topic: topic, count: count}
		m.infoMessage = fmt.Sprintf("Rewriting the topic deletes all %d messages. :y to confirm, Esc to cancel.", count)
		return m, nil
	case err != nil:
		m.errorMessage = err.Error()
		return m, nil
	}
	m.infoMessage = "Topic updated; discussion restarted"
	return m, nil
}

// confirmPending executes the action a previous command deferred for :y.
func (m Model) confirmPending() (tea.Model, tea.Cmd) {
	if m.confirm == nil {
		m.infoMessage = "Nothing to confirm"
		return m, nil
	}
	pending := *m.confirm
	m.confirm = nil

	switch pending.kind {
	case confirmTopic:
		return m.tryEditTopic(pending.topic, true)
	case confirmDelete:
		return m, m.cmdDelete(pending.id)
	}
	return m, nil
}

// Commands. Each runs one controller operation off the update loop; the
// result comes back as a message, and state changes arrive via the bus.

func (m Model) cmdRefreshList() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		if err := ctrl.RefreshList(context.Background()); err != nil {
			return errMsg{err}
		}
		return nil
	}
}

func (m Model) cmdResolveObserverModel() tea.Cmd {
	client := m.client
	return func() tea.Msg {
		return observerModelMsg{sel: resolveObserverModel(context.Background(), client)}
	}
}

func (m Model) cmdSelect(id int) tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		if err := ctrl.Select(context.Background(), id); err != nil {
			return errMsg{err}
		}
		return selectedMsg{id: id}
	}
}

func (m Model) cmdEnsureAttached() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		if err := ctrl.EnsureAttached(context.Background()); err != nil {
			return errMsg{err}
		}
		return nil
	}
}

func (m Model) cmdRun(singleRound bool) tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		var err error
		if singleRound {
			err = ctrl.RunSingleRound(context.Background())
		} else {
			err = ctrl.Run(context.Background())
		}
		if err != nil {
			return errMsg{err}
		}
		return nil
	}
}

func (m Model) cmdStop() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		if err := ctrl.Stop(context.Background()); err != nil {
			return errMsg{err}
		}
		return infoMsg{text: "Discussion paused"}
	}
}

func (m Model) cmdReset() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		if err := ctrl.Reset(context.Background()); err != nil {
			return errMsg{err}
		}
		return infoMsg{text: "Discussion reset"}
	}
}

func (m Model) cmdComplete() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		if err := ctrl.CompleteNow(context.Background()); err != nil {
			return errMsg{err}
		}
		return infoMsg{text: "Discussion completed"}
	}
}

func (m Model) cmdCreate(topic string) tea.Cmd {
	client := m.client
	ctrl := m.ctrl
	return func() tea.Msg {
		d, err := client.CreateDiscussion(context.Background(), api.CreateDiscussionRequest{Topic: topic})
		if err != nil {
			return errMsg{err}
		}
		if err := ctrl.RefreshList(context.Background()); err != nil {
			return errMsg{err}
		}
		if err := ctrl.Select(context.Background(), d.ID); err != nil {
			return errMsg{err}
		}
		return selectedMsg{id: d.ID}
	}
}

func (m Model) cmdDelete(id int) tea.Cmd {
	client := m.client
	ctrl := m.ctrl
	return func() tea.Msg {
		if err := client.DeleteDiscussion(context.Background(), id); err != nil {
			return errMsg{err}
		}
		if err := ctrl.RefreshList(context.Background()); err != nil {
			return errMsg{err}
		}
		return infoMsg{text: fmt.Sprintf("Deleted discussion %d", id)}
	}
}

func (m Model) cmdSubmitInput(text string) tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		if err := ctrl.SubmitInput(context.Background(), text); err != nil {
			if errors.Is(err, roundtable.ErrEmptyInput) {
				return nil
			}
			return errMsg{err}
		}
		return nil
	}
}

func (m Model) cmdObserverSend(text string) tea.Cmd {
	obs := m.ctrl.Observer()
	sel := m.observerSel
	return func() tea.Msg {
		if obs == nil {
			return errMsg{roundtable.ErrNoDiscussion}
		}
		if err := obs.Send(context.Background(), text, sel); err != nil {
			if errors.Is(err, roundtable.ErrEmptyInput) {
				return nil
			}
			return errMsg{err}
		}
		return nil
	}
}

func (m Model) cmdObserverClear() tea.Cmd {
	obs := m.ctrl.Observer()
	return func() tea.Msg {
		if obs == nil {
			return errMsg{roundtable.ErrNoDiscussion}
		}
		obs.Clear(context.Background())
		return infoMsg{text: "Observer history cleared"}
	}
}

func (m Model) cmdMaybeSummarize() tea.Cmd {
	if !m.cfg.Summary.Enabled {
		return nil
	}
	ctrl := m.ctrl
	return func() tea.Msg {
		ctrl.MaybeSummarize(context.Background())
		return nil
	}
}
