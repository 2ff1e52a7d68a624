// Package ui holds the terminal presentation helpers shared by the CLI:
// a small color palette, bordered panels for summaries, a fixed-width
// table, and a line spinner for the analysis wait.
package ui

import "github.com/charmbracelet/lipgloss"

var (
	// Palette
	ColorPrimary   = lipgloss.Color("205") // pink, ids and accents
	ColorSecondary = lipgloss.Color("241") // gray, metadata and borders
	ColorSuccess   = lipgloss.Color("42")
	ColorError     = lipgloss.Color("160")
	ColorWarning   = lipgloss.Color("214")
	ColorText      = lipgloss.Color("252")
	ColorCyan      = lipgloss.Color("87")

	// Base styles
	StyleTitle   = lipgloss.NewStyle().Foreground(ColorText).Bold(true)
	StyleSubtle  = lipgloss.NewStyle().Foreground(ColorSecondary)
	StylePrimary = lipgloss.NewStyle().Foreground(ColorPrimary)
	StyleSuccess = lipgloss.NewStyle().Foreground(ColorSuccess)
	StyleError   = lipgloss.NewStyle().Foreground(ColorError)
)

// Icon returns a styled icon string
func Icon(icon string, style lipgloss.Style) string {
	return style.Render(icon)
}
