package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/kuangren777/llm-roundtable/internal/tui/styles"
	"github.com/kuangren777/llm-roundtable/internal/util"
)

// View renders the whole screen
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelp()
	}

	columns := []string{m.renderSidebar(), m.renderMain()}
	if m.showObserver {
		columns = append(columns, m.renderObserver())
	}

	return lipgloss.JoinHorizontal(lipgloss.Top, columns...)
}

// renderMain renders the center column: header, transcript, progress,
// composer and status bar.
func (m Model) renderMain() string {
	v := m.ctrl.View()
	cw := m.contentWidth()

	var b strings.Builder
	b.WriteString(m.renderHeader(cw) + "\n")
	b.WriteString(styles.ContentBox.Width(cw).Render(m.transcript.View()) + "\n")

	if progress := m.renderProgress(); progress != "" {
		b.WriteString(util.TruncateANSI(progress, cw) + "\n")
	} else {
		b.WriteString("\n")
	}

	if m.mode == modeCompose {
		b.WriteString(m.composer.View() + "\n")
		b.WriteString(styles.HelpBar.Render("Enter: send  Alt+Enter: newline  Esc: cancel") + "\n")
	} else if v.Status == "waiting_input" {
		b.WriteString(styles.Warning.Render("Waiting for your input — press i") + "\n\n")
	} else {
		b.WriteString("\n\n")
	}

	b.WriteString(m.renderStatusBar(cw))
	return b.String()
}

// renderHeader renders the title line and the run state line.
func (m Model) renderHeader(width int) string {
	v := m.ctrl.View()

	if v.DiscussionID == 0 {
		return styles.Title.Render("Roundtable") + "\n" +
			styles.Subtitle.Render("no discussion selected")
	}

	label := v.Title
	if label == "" {
		label = v.Topic
	}
	title := styles.Title.Render(util.TruncateANSI(label, width-20))

	badge := styles.StatusBadge.
		Background(styles.StatusColor(string(v.Status))).
		Foreground(styles.TextColor).
		Render(string(v.Status))

	info := badge + styles.Subtitle.Render(fmt.Sprintf("%s mode", v.Mode))
	if v.Phase != "" {
		info += styles.Subtitle.Render(fmt.Sprintf("  phase: %s", v.Phase))
	}
	if v.MaxRounds > 0 {
		info += styles.Subtitle.Render(fmt.Sprintf("  round %d/%d", v.CurrentRound, v.MaxRounds))
	}
	if v.Err != "" {
		info += "  " + styles.ErrorMessage.Render(util.TruncateString(v.Err, 60))
	}

	return title + "\n" + info
}

// renderStatusBar renders the bottom line: command prompt, messages, or
// the key hint bar.
func (m Model) renderStatusBar(width int) string {
	switch {
	case m.mode == modeCommand:
		return styles.CommandPrompt.Render(":" + m.commandBuffer + "█")
	case m.errorMessage != "":
		return styles.ErrorMessage.Render(util.TruncateString(m.errorMessage, width))
	case m.infoMessage != "":
		return styles.InfoMessage.Render(util.TruncateString(m.infoMessage, width))
	}
	return styles.HelpBar.Render("J/K: discussions  Enter: open  i: input  r: run  s: stop  o: observer  :: command  ?: help  q: quit")
}

// renderHelp renders the full-screen help overlay.
func (m Model) renderHelp() string {
	help := `
  Roundtable keys

  Navigation
    J / K, Shift+↓ / Shift+↑   move between discussions
    Enter                      open the discussion under the cursor
    j / k, ↓ / ↑               scroll the transcript
    Ctrl+D / Ctrl+U            scroll half a page
    g / G                      jump to top / bottom (G re-enables follow)

  Discussion
    i                          compose input to the discussion
    r                          run (attach the live stream)
    s                          stop after the current phase
    o / O                      toggle / focus the observer panel

  Commands (:)
    :new <topic>               create and open a discussion
    :single                    run exactly one round
    :stop  :reset  :complete   lifecycle control
    :topic <text>              rewrite the topic (restarts from scratch)
    :delete                    delete the discussion under the cursor
    :clear                     clear the observer history
    :y                         confirm a pending destructive action
    :q                         quit

  ? or Esc closes this help.
`
	return styles.ContentBox.Width(m.width - 4).Render(help)
}
