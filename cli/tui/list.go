package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/pithecene-io/concierge/archive"
)

// ListModel browses archived conversation summaries.
type ListModel struct {
	items    []archive.Summary
	cursor   int
	quitting bool
}

// NewListModel creates a list over items.
func NewListModel(items []archive.Summary) ListModel {
	return ListModel{items: items}
}

// Cursor returns the selected row.
func (m ListModel) Cursor() int {
	return m.cursor
}

// Init implements tea.Model.
func (m ListModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m ListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, keys.Down):
			if m.cursor < len(m.items)-1 {
				m.cursor++
			}
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m ListModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render(fmt.Sprintf("Archived conversations (%d)", len(m.items))))
	b.WriteString("\n")
	if len(m.items) == 0 {
		b.WriteString(HelpStyle.Render("(no conversations)"))
	}
	for i, s := range m.items {
		prefix := "  "
		id := ValueStyle.Render(s.ID)
		if i == m.cursor {
			prefix = "> "
			id = SelectedStyle.Render(s.ID)
		}
		fmt.Fprintf(&b, "%s%s  %s  %3d msgs  %s\n",
			prefix, id, LabelStyle.Render(s.Day), s.Messages,
			OutcomeStyle(s.LastOutcome).Render(s.LastOutcome))
	}
	b.WriteString(HelpStyle.Render("↑/↓ move • q quit"))
	return b.String()
}
