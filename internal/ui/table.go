package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Table renders rows in fixed-width columns with a styled header, the
// format the teams listing uses. Cells wider than MaxWidth are cut with
// an ellipsis.
type Table struct {
	Headers  []string
	Rows     [][]string
	MaxWidth int // max width per column, 0 means fit to content
}

// ColumnWidths sizes each column to its widest header or cell, capped at
// MaxWidth when set.
func (t *Table) ColumnWidths() []int {
	widths := make([]int, len(t.Headers))
	for i, h := range t.Headers {
		widths[i] = len(h)
	}
	for _, row := range t.Rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}
	if t.MaxWidth > 0 {
		for i := range widths {
			if widths[i] > t.MaxWidth {
				widths[i] = t.MaxWidth
			}
		}
	}
	return widths
}

// Render outputs the table to a string.
func (t *Table) Render() string {
	if len(t.Headers) == 0 {
		return ""
	}

	widths := t.ColumnWidths()
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(ColorPrimary)
	cellStyle := lipgloss.NewStyle().Foreground(ColorText)

	var sb strings.Builder
	writeRow(&sb, t.Headers, widths, headerStyle, "  ")

	rule := make([]string, len(widths))
	for i, w := range widths {
		rule[i] = strings.Repeat("─", w)
	}
	writeRow(&sb, rule, widths, StyleSubtle, "──")

	for _, row := range t.Rows {
		cells := make([]string, len(t.Headers))
		for i := range t.Headers {
			if i < len(row) {
				cells[i] = clipCell(row[i], widths[i])
			}
		}
		writeRow(&sb, cells, widths, cellStyle, "  ")
	}
	return sb.String()
}

// writeRow pads each cell to its column width, styles it, and emits one
// line with the given joiner.
func writeRow(sb *strings.Builder, cells []string, widths []int, style lipgloss.Style, join string) {
	styled := make([]string, len(cells))
	for i, c := range cells {
		styled[i] = style.Render(padRight(c, widths[i]))
	}
	sb.WriteString(" " + strings.Join(styled, join) + "\n")
}

// clipCell cuts val to width with a trailing ellipsis, degrading to a
// bare ellipsis when the column is a single character wide.
func clipCell(val string, width int) string {
	if len(val) <= width {
		return val
	}
	if width >= 2 {
		return val[:width-1] + "…"
	}
	if width == 1 {
		return "…"
	}
	return val
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
