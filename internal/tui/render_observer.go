package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/kuangren777/llm-roundtable/internal/tui/styles"
)

// renderObserver renders the observer chat side panel.
func (m *Model) renderObserver() string {
	var b strings.Builder
	b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(styles.RoleObserver).Render("Observer") + "\n\n")

	obs := m.ctrl.Observer()
	if obs == nil {
		b.WriteString(styles.Muted.Render("Select a discussion to chat with the observer."))
	} else {
		v := obs.View()
		wrap := lipgloss.NewStyle().Width(observerWidth - 4)

		for _, turn := range v.History {
			var name string
			if turn.Role == "user" {
				name = styles.AgentName.Foreground(styles.RoleUser).Render("You")
			} else {
				name = styles.AgentName.Foreground(styles.RoleObserver).Render("Observer")
			}
			b.WriteString(name + "\n")
			b.WriteString(wrap.Render(turn.Content) + "\n\n")
		}

		if v.Streaming {
			b.WriteString(styles.AgentName.Foreground(styles.RoleObserver).Render("Observer") +
				" " + styles.PendingMarker.Render("▌") + "\n")
			b.WriteString(wrap.Render(styles.StreamingText.Render(v.Buffer)) + "\n")
		}

		if !m.observerSel.Complete() {
			b.WriteString("\n" + styles.Warning.Render("No observer model configured."))
		}
	}

	b.WriteString("\n" + m.observerInput.View())
	b.WriteString("\n" + styles.HelpBar.Render("O: type  :clear  o: hide"))

	height := m.height - 2
	if height < 3 {
		height = 3
	}
	return styles.ObserverBox.Width(observerWidth).Height(height).Render(b.String())
}
