package tui

import (
	"fmt"
	"strings"

	"github.com/kuangren777/llm-roundtable/internal/api"
	"github.com/kuangren777/llm-roundtable/internal/tui/styles"
	"github.com/kuangren777/llm-roundtable/internal/util"
)

// renderSidebar renders the discussion list panel.
func (m *Model) renderSidebar() string {
	width := m.sidebarWidth()
	inner := width - 4 // border + padding
	list := m.ctrl.Discussions()
	activeID := m.ctrl.View().DiscussionID

	var b strings.Builder
	b.WriteString(styles.Title.Render("Discussions") + "\n")

	if len(list) == 0 {
		b.WriteString(styles.Muted.Render("(none — :new <topic>)"))
	}

	for i, d := range list {
		line := fmt.Sprintf("%s %s", statusGlyph(d.Status), util.Preview(discussionLabel(d), inner-2))
		switch {
		case d.ID == activeID:
			line = styles.SidebarItemActive.Render(line)
		case i == m.listCursor:
			line = styles.SidebarItemCursor.Render("› " + line)
		default:
			line = styles.SidebarItem.Render("  " + line)
		}
		b.WriteString(line + "\n")
	}

	height := m.height - 2
	if height < 3 {
		height = 3
	}
	return styles.SidebarBox.Width(width).Height(height).Render(b.String())
}

// discussionLabel prefers the generated title, falling back to the topic.
func discussionLabel(d api.Discussion) string {
	if d.Title != "" {
		return d.Title
	}
	if d.Topic != "" {
		return d.Topic
	}
	return fmt.Sprintf("discussion %d", d.ID)
}

// statusGlyph maps a server status to a one-cell sidebar marker.
func statusGlyph(s api.DiscussionStatus) string {
	switch {
	case s.Running():
		return styles.Secondary.Render("●")
	case s == api.StatusWaitingInput:
		return styles.Warning.Render("◐")
	case s == api.StatusCompleted:
		return styles.Primary.Render("✓")
	case s == api.StatusFailed:
		return styles.Error.Render("✗")
	}
	return styles.Muted.Render("○")
}
