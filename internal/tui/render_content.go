package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/kuangren777/llm-roundtable/internal/api"
	"github.com/kuangren777/llm-roundtable/internal/livestate"
	"github.com/kuangren777/llm-roundtable/internal/roundtable"
	"github.com/kuangren777/llm-roundtable/internal/tui/styles"
)

// summaryDisplayThreshold is the content length above which the transcript
// shows the generated summary instead of the full text, when one exists.
const summaryDisplayThreshold = 600

// refreshTranscript rebuilds the viewport content from the controller
// views. Called whenever a bus event or resize invalidates the rendering.
func (m *Model) refreshTranscript() {
	if !m.ready {
		return
	}
	m.transcript.SetContent(m.renderTranscript())
}

// renderTranscript renders finalized messages followed by the in-flight
// streaming buffers.
func (m *Model) renderTranscript() string {
	v := m.ctrl.View()
	sum := m.ctrl.SummaryView()
	width := m.transcript.Width

	if v.DiscussionID == 0 {
		return styles.Muted.Render("No discussion selected. Use Shift+J/K and Enter to pick one, or :new <topic>.")
	}

	var b strings.Builder
	wrap := lipgloss.NewStyle().Width(width)

	for i, msg := range v.Messages {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(m.renderMessage(msg, sum, wrap))
	}

	if len(v.Streaming) > 0 {
		names := make([]string, 0, len(v.Streaming))
		for name := range v.Streaming {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			if len(v.Messages) > 0 || b.Len() > 0 {
				b.WriteString("\n")
			}
			role := roleOf(v.Agents, name)
			header := styles.AgentName.Foreground(styles.RoleColor(role)).Render(name) +
				" " + styles.PendingMarker.Render("▌")
			b.WriteString(header + "\n")
			b.WriteString(wrap.Render(styles.StreamingText.Render(v.Streaming[name])) + "\n")
		}
	}

	if v.FinalSummary != "" {
		b.WriteString("\n" + styles.Title.Render("Final Summary") + "\n")
		b.WriteString(wrap.Render(v.FinalSummary) + "\n")
	}

	return b.String()
}

// renderMessage renders one finalized message, preferring the generated
// summary for long content when enabled.
func (m *Model) renderMessage(msg roundtable.Message, sum roundtable.SummaryView, wrap lipgloss.Style) string {
	color := styles.RoleColor(string(msg.AgentRole))
	header := styles.AgentName.Foreground(color).Render(msg.AgentName)
	if msg.Phase != "" {
		header += " " + styles.Subtitle.Render(fmt.Sprintf("(%s, round %d)", msg.Phase, msg.RoundNumber))
	} else if msg.RoundNumber > 0 {
		header += " " + styles.Subtitle.Render(fmt.Sprintf("(round %d)", msg.RoundNumber))
	}
	if !msg.Confirmed() {
		header += " " + styles.PendingMarker.Render("(sending...)")
	}

	content := msg.Content
	if m.cfg.TUI.ShowSummaries && len(content) > summaryDisplayThreshold {
		switch {
		case msg.Summary != "":
			content = msg.Summary + " " + styles.Muted.Render("[summarized]")
		case sum.CurrentMessageID == msg.ID && sum.Active:
			if buf := sum.Buffers[msg.ID]; buf != "" {
				content = buf + " " + styles.PendingMarker.Render("▌")
			}
		}
	}

	return header + "\n" + wrap.Render(content) + "\n"
}

// renderProgress renders the per-agent generation status line shown under
// the transcript while a discussion runs.
func (m *Model) renderProgress() string {
	v := m.ctrl.View()
	if len(v.Progress) == 0 {
		return ""
	}

	names := make([]string, 0, len(v.Progress))
	for name := range v.Progress {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, renderProgressEntry(name, v.Progress[name]))
	}
	return strings.Join(parts, "   ")
}

// renderProgressEntry formats one agent's progress as "name status chars".
func renderProgressEntry(name string, p livestate.Progress) string {
	var badge string
	switch p.Status {
	case "streaming":
		badge = styles.Secondary.Render("●")
	case "done":
		badge = styles.Primary.Render("✓")
	default: // waiting
		badge = styles.Muted.Render("○")
	}
	label := fmt.Sprintf("%s %s", badge, name)
	if p.Chars > 0 {
		label += styles.Muted.Render(fmt.Sprintf(" %s", formatChars(p.Chars)))
	}
	return label
}

// formatChars renders a character count compactly (842, 1.2k, 10k).
func formatChars(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 10000 {
		return fmt.Sprintf("%.1fk", float64(n)/1000)
	}
	return fmt.Sprintf("%dk", n/1000)
}

// roleOf resolves an agent name to its configured role; unknown names
// render muted.
func roleOf(agents []api.AgentConfig, name string) string {
	for _, a := range agents {
		if a.Name == name {
			return string(a.Role)
		}
	}
	return ""
}
