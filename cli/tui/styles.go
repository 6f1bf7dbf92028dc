// Package tui provides Bubble Tea views for the concierge CLI.
//
// TUI rules:
//   - TUI is opt-in only (--tui flag)
//   - TUI is read-only (inspect only)
//   - TUI renders the same payloads as the non-TUI output
package tui

import "github.com/charmbracelet/lipgloss"

// Color palette.
var (
	primaryColor   = lipgloss.Color("#7C3AED") // Purple
	successColor   = lipgloss.Color("#10B981") // Green
	warningColor   = lipgloss.Color("#F59E0B") // Amber
	errorColor     = lipgloss.Color("#EF4444") // Red
	mutedColor     = lipgloss.Color("#6B7280") // Gray
	highlightColor = lipgloss.Color("#3B82F6") // Blue
)

// Styles for TUI components.
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	LabelStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Width(14)

	ValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF"))

	UserStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(highlightColor)

	AssistantStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	// CardStyle frames artifact cards under an assistant message.
	CardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(successColor).
			Padding(0, 1).
			MarginLeft(2)

	SelectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(highlightColor)

	HelpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			MarginTop(1)
)

// OutcomeStyle colors a turn outcome.
func OutcomeStyle(outcome string) lipgloss.Style {
	switch outcome {
	case "done":
		return lipgloss.NewStyle().Foreground(successColor)
	case "canceled", "timeout":
		return lipgloss.NewStyle().Foreground(warningColor)
	case "error":
		return lipgloss.NewStyle().Foreground(errorColor)
	default:
		return ValueStyle
	}
}
