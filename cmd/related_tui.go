package cmd

// Interactive mode for the related command: enter a seed id, browse the
// ranked neighbors, select one for details.

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/seedwise/kindred/internal/engine"
	"github.com/seedwise/kindred/internal/fetcher"
	"github.com/seedwise/kindred/internal/ui"
)

type relatedModel struct {
	textInput textinput.Model
	list      list.Model
	p         *pipeline
	ctx       context.Context
	strategy  fetcher.Strategy

	seedID    int
	report    *engine.Report
	err       error
	analyzing bool
	selected  *engine.Result

	width  int
	height int
}

type relatedItem struct {
	result engine.Result
}

func (i relatedItem) Title() string {
	return fmt.Sprintf("#%d %s", i.result.WorkItemID, ui.Truncate(i.result.Item.Title, 60))
}

func (i relatedItem) Description() string {
	return fmt.Sprintf("%.3f · %s · %s · %s",
		i.result.Score, i.result.Item.WorkItemType, i.result.Item.State, i.result.Item.AreaPath)
}

func (i relatedItem) FilterValue() string {
	return i.result.Item.Title
}

type analysisMsg struct {
	report *engine.Report
	err    error
}

func runRelatedInteractive(ctx context.Context, p *pipeline, strategy fetcher.Strategy) error {
	ti := textinput.New()
	ti.Placeholder = "Enter a work item id..."
	ti.Focus()
	ti.CharLimit = 12
	ti.Width = 30

	delegate := list.NewDefaultDelegate()
	l := list.New([]list.Item{}, delegate, 80, 15)
	l.Title = "Related Work Items"
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(true)

	m := relatedModel{
		textInput: ti,
		list:      l,
		p:         p,
		ctx:       ctx,
		strategy:  strategy,
		width:     80,
		height:    24,
	}

	prog := tea.NewProgram(m, tea.WithAltScreen())
	finalModel, err := prog.Run()
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	// Show the selected result after exit so it survives the alt screen.
	if fm, ok := finalModel.(relatedModel); ok && fm.selected != nil {
		fmt.Println()
		renderResultDetails(fm.selected)
	}

	return nil
}

func (m relatedModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m relatedModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "enter":
			if m.textInput.Focused() {
				id, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(m.textInput.Value()), "#"))
				if err != nil || id <= 0 {
					m.err = fmt.Errorf("work item id must be a positive integer")
					break
				}
				m.seedID = id
				m.err = nil
				m.analyzing = true
				return m, m.doAnalyze
			}
			if item, ok := m.list.SelectedItem().(relatedItem); ok {
				m.selected = &item.result
				return m, tea.Quit
			}
		case "tab":
			if m.textInput.Focused() && m.report != nil && len(m.report.Ranked) > 0 {
				m.textInput.Blur()
			} else {
				m.textInput.Focus()
			}
		case "esc":
			if !m.textInput.Focused() {
				m.textInput.Focus()
			} else {
				return m, tea.Quit
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width-4, msg.Height-10)

	case analysisMsg:
		m.analyzing = false
		m.err = msg.err
		m.report = msg.report

		var items []list.Item
		if msg.report != nil {
			items = make([]list.Item, len(msg.report.Ranked))
			for i, r := range msg.report.Ranked {
				items[i] = relatedItem{result: r}
			}
		}
		m.list.SetItems(items)
		if len(items) > 0 {
			m.textInput.Blur()
		}
	}

	var cmd tea.Cmd
	if m.textInput.Focused() {
		m.textInput, cmd = m.textInput.Update(msg)
		cmds = append(cmds, cmd)
	} else {
		m.list, cmd = m.list.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m relatedModel) doAnalyze() tea.Msg {
	report, err := analyzeSeed(m.ctx, m.p, m.seedID, m.strategy)
	if err != nil {
		return analysisMsg{err: fmt.Errorf("%s", userMessageFor(err))}
	}
	return analysisMsg{report: report}
}

func (m relatedModel) View() string {
	var b strings.Builder

	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(ui.ColorPrimary).
		Render("🔗 Kindred Related")
	b.WriteString(header)
	b.WriteString("\n\n")

	inputStyle := lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(ui.ColorSecondary).
		Padding(0, 1)
	b.WriteString(inputStyle.Render(m.textInput.View()))
	b.WriteString("\n\n")

	switch {
	case m.analyzing:
		b.WriteString(fmt.Sprintf("⏳ Analyzing #%d...\n\n", m.seedID))
	case m.err != nil:
		b.WriteString(fmt.Sprintf("❌ %v\n\n", m.err))
	case m.report != nil && len(m.report.Ranked) > 0:
		d := m.report.Diagnostics
		b.WriteString(fmt.Sprintf("📊 %d result(s) from %d candidates, threshold %.2f (Tab to navigate, Enter to select)\n\n",
			len(m.report.Ranked), d.CandidateCount, d.Threshold))
		b.WriteString(m.list.View())
	case m.report != nil:
		b.WriteString("No related work items cleared the threshold.\n")
	}

	b.WriteString("\n")
	footer := lipgloss.NewStyle().Foreground(ui.ColorSecondary).Render(
		"Enter: analyze/select • Tab: toggle focus • Esc: back/quit • Ctrl+C: quit",
	)
	b.WriteString(footer)

	return b.String()
}

func renderResultDetails(r *engine.Result) {
	fmt.Println("Selected work item:")
	fmt.Printf("  Id:        %s\n", ui.StyleTitle.Render(fmt.Sprintf("#%d", r.WorkItemID)))
	fmt.Printf("  Title:     %s\n", r.Item.Title)
	fmt.Printf("  Type:      %s\n", r.Item.WorkItemType)
	fmt.Printf("  State:     %s\n", r.Item.State)
	fmt.Printf("  Area:      %s\n", r.Item.AreaPath)
	if r.Item.Tags != "" {
		fmt.Printf("  Tags:      %s\n", r.Item.Tags)
	}
	score := fmt.Sprintf("%.3f", r.Score)
	if r.ExactTitle {
		score += " (near-identical title)"
	}
	fmt.Printf("  Score:     %s\n", score)
	if len(r.Hints) > 0 {
		fmt.Printf("  Signals:   %s\n", strings.Join(r.Hints, ", "))
	}
	if r.Item.Description != "" {
		desc := strings.Join(strings.Fields(r.Item.Description), " ")
		fmt.Printf("  About:     %s\n", ui.Truncate(desc, 200))
	}
}
