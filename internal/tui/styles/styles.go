// Package styles defines the shared lipgloss styles for the TUI.
package styles

import "github.com/charmbracelet/lipgloss"

var (
	// Colors - all colors meet WCAG AA contrast (4.5:1) on both black and dark surfaces
	PrimaryColor   = lipgloss.Color("#A78BFA") // Purple
	SecondaryColor = lipgloss.Color("#10B981") // Green
	WarningColor   = lipgloss.Color("#F59E0B") // Amber
	ErrorColor     = lipgloss.Color("#F87171") // Red
	MutedColor     = lipgloss.Color("#9CA3AF") // Gray
	TextColor      = lipgloss.Color("#F9FAFB") // Light text
	BorderColor    = lipgloss.Color("#6B7280") // Gray

	// Convenience styles for colors
	Primary   = lipgloss.NewStyle().Foreground(PrimaryColor)
	Secondary = lipgloss.NewStyle().Foreground(SecondaryColor)
	Warning   = lipgloss.NewStyle().Foreground(WarningColor)
	Error     = lipgloss.NewStyle().Foreground(ErrorColor)
	Muted     = lipgloss.NewStyle().Foreground(MutedColor)
	Text      = lipgloss.NewStyle().Foreground(TextColor)

	// Agent role colors
	RoleHost     = lipgloss.Color("#A78BFA") // Purple
	RolePanelist = lipgloss.Color("#60A5FA") // Blue
	RoleCritic   = lipgloss.Color("#FB923C") // Orange
	RoleUser     = lipgloss.Color("#10B981") // Green
	RoleObserver = lipgloss.Color("#F472B6") // Pink

	// Discussion status colors
	StatusRunning      = lipgloss.Color("#10B981") // Green
	StatusReady        = lipgloss.Color("#9CA3AF") // Gray
	StatusWaitingInput = lipgloss.Color("#F59E0B") // Amber
	StatusCompleted    = lipgloss.Color("#A78BFA") // Purple
	StatusError        = lipgloss.Color("#F87171") // Red

	// Base styles
	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(PrimaryColor)

	Subtitle = lipgloss.NewStyle().
			Foreground(MutedColor).
			Italic(true)

	StatusBadge = lipgloss.NewStyle().
			Padding(0, 1).
			MarginRight(1)

	// Sidebar styles
	SidebarBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(BorderColor).
			Padding(0, 1)

	SidebarItemActive = lipgloss.NewStyle().
				Bold(true).
				Foreground(TextColor).
				Background(PrimaryColor)

	SidebarItemCursor = lipgloss.NewStyle().
				Bold(true).
				Foreground(PrimaryColor)

	SidebarItem = lipgloss.NewStyle().
			Foreground(MutedColor)

	// Transcript styles
	ContentBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(BorderColor).
			Padding(0, 1)

	AgentName = lipgloss.NewStyle().
			Bold(true)

	StreamingText = lipgloss.NewStyle().
			Foreground(MutedColor).
			Italic(true)

	PendingMarker = lipgloss.NewStyle().
			Foreground(WarningColor)

	// Observer panel styles
	ObserverBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(RoleObserver).
			Padding(0, 1)

	// Status bar styles
	HelpBar = lipgloss.NewStyle().
		Foreground(MutedColor)

	InfoMessage = lipgloss.NewStyle().
			Foreground(SecondaryColor)

	ErrorMessage = lipgloss.NewStyle().
			Foreground(ErrorColor).
			Bold(true)

	CommandPrompt = lipgloss.NewStyle().
			Foreground(TextColor).
			Bold(true)
)

// RoleColor returns the display color for an agent role name.
func RoleColor(role string) lipgloss.Color {
	switch role {
	case "host":
		return RoleHost
	case "panelist":
		return RolePanelist
	case "critic":
		return RoleCritic
	case "user":
		return RoleUser
	case "observer":
		return RoleObserver
	}
	return MutedColor
}

// StatusColor returns the display color for a client discussion status.
func StatusColor(status string) lipgloss.Color {
	switch status {
	case "running":
		return StatusRunning
	case "waiting_input":
		return StatusWaitingInput
	case "completed":
		return StatusCompleted
	case "error":
		return StatusError
	}
	return StatusReady
}
