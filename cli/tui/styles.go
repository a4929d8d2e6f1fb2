// Package tui provides the Bubble Tea terminal UI for xrayview.
//
// The UI draws view.Page values built from workflow snapshots. It holds
// no analysis state of its own beyond fetched image metadata.
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/xrayview/view"
)

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
	// TitleStyle for the page title.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	// SectionStyle for panel headings.
	SectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(highlightColor)

	// LabelStyle for field labels.
	LabelStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	// ValueStyle for field values.
	ValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF"))

	// SuccessStyle for loaded images and findings.
	SuccessStyle = lipgloss.NewStyle().
			Foreground(successColor)

	// WarningStyle for notes and pending work.
	WarningStyle = lipgloss.NewStyle().
			Foreground(warningColor)

	// ErrorStyle for error messages.
	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(errorColor)

	// ButtonStyle for the upload button.
	ButtonStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(primaryColor).
			Padding(0, 2)

	// ButtonDisabledStyle for the upload button while busy.
	ButtonDisabledStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#D1D5DB")).
				Background(mutedColor).
				Padding(0, 2)

	// BoxStyle for bordered panels.
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(0, 1)

	// ModalStyle for blocking advisories.
	ModalStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(warningColor).
			Padding(1, 3)

	// HelpStyle for help text.
	HelpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			MarginTop(1)
)

// ReportStyle returns the style for a report panel branch.
func ReportStyle(kind view.ReportKind) lipgloss.Style {
	switch kind {
	case view.ReportKindError:
		return ErrorStyle
	case view.ReportKindGenerating:
		return WarningStyle
	case view.ReportKindEmpty:
		return LabelStyle
	default:
		return ValueStyle
	}
}
