package console

import "charm.land/lipgloss/v2"

// Color palette - Purple + Cyan/Teal
var (
	ColorPrimary   = lipgloss.Color("#7C3AED") // Purple
	ColorSecondary = lipgloss.Color("#06B6D4") // Cyan
	ColorBorder    = lipgloss.Color("#374151") // Dark gray
	ColorText      = lipgloss.Color("#F9FAFB") // Light text
	ColorTextMuted = lipgloss.Color("#B0B8C4") // Muted text
	ColorUser      = lipgloss.Color("#A78BFA") // Light purple for user messages
	ColorAssistant = lipgloss.Color("#22D3EE") // Bright cyan for assistant messages
	ColorError     = lipgloss.Color("#EF4444") // Red for errors
	ColorSystem    = lipgloss.Color("#F59E0B") // Amber for bridge notices
)

// Header and status bar
var (
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorText).
			Background(ColorPrimary).
			Padding(0, 1)

	StatusStyle = lipgloss.NewStyle().
			Foreground(ColorTextMuted).
			Padding(0, 1)
)

// Transcript
var (
	UserLabelStyle = lipgloss.NewStyle().
			Foreground(ColorUser).
			Bold(true)

	AssistantLabelStyle = lipgloss.NewStyle().
				Foreground(ColorAssistant).
				Bold(true)

	ErrorLabelStyle = lipgloss.NewStyle().
			Foreground(ColorError).
			Bold(true)

	SystemLabelStyle = lipgloss.NewStyle().
				Foreground(ColorSystem).
				Bold(true)

	MessageStyle = lipgloss.NewStyle().
			Foreground(ColorText)

	ErrorTextStyle = lipgloss.NewStyle().
			Foreground(ColorError)

	SystemTextStyle = lipgloss.NewStyle().
			Foreground(ColorSystem).
			Italic(true)

	InlineCodeStyle = lipgloss.NewStyle().
			Foreground(ColorSecondary)

	InputStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(0, 1)
)
