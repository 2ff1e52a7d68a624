package ui

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// IsInteractive reports whether the session has a terminal on both ends.
// Spinners, headers, and the picker stay out of piped or scripted runs.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// RenderPageHeader prints the bordered command header with an optional
// one-line subtitle underneath.
func RenderPageHeader(title, subtitle string) {
	style := lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorPrimary).
		Padding(0, 1).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorSecondary).
		MarginBottom(1)

	fmt.Println(style.Render(title))
	if subtitle != "" {
		fmt.Printf("  %s\n", StyleSubtle.Render(subtitle))
	}
}

// Panel is a bordered box with an optional bold title, used for the
// config, index, and diagnostics summaries.
type Panel struct {
	Title       string
	Content     string
	BorderColor lipgloss.Color
}

// NewPanel creates a panel with the default gray border.
func NewPanel(title, content string) *Panel {
	return &Panel{Title: title, Content: content, BorderColor: ColorSecondary}
}

// WithBorderColor sets the border color and returns the panel.
func (p *Panel) WithBorderColor(color lipgloss.Color) *Panel {
	p.BorderColor = color
	return p
}

// Render returns the styled panel as a string.
func (p *Panel) Render() string {
	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(p.BorderColor).
		Padding(0, 1)

	content := p.Content
	if p.Title != "" {
		titleStyle := lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary)
		content = titleStyle.Render(p.Title) + "\n" + p.Content
	}
	return style.Render(content)
}

// RenderPanel renders a panel with the default border.
func RenderPanel(title, content string) string {
	return NewPanel(title, content).Render()
}

// RenderInfoPanel renders a panel with a cyan border.
func RenderInfoPanel(title, content string) string {
	return NewPanel(title, content).WithBorderColor(ColorCyan).Render()
}

// RenderWarningPanel renders a panel with an orange border.
func RenderWarningPanel(title, content string) string {
	return NewPanel(title, content).WithBorderColor(ColorWarning).Render()
}

// Truncate shortens s to maxLen characters, adding an ellipsis when it cuts.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return s
	}
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
