package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/pithecene-io/concierge/archive"
	"github.com/pithecene-io/concierge/types"
)

// View names a TUI screen.
type View string

// Supported views.
const (
	ViewConversation  View = "inspect_conversation"
	ViewConversations View = "inspect_conversations"
)

// IsSupported reports whether view has a TUI.
func IsSupported(view View) bool {
	switch view {
	case ViewConversation, ViewConversations:
		return true
	default:
		return false
	}
}

// Run opens the TUI for view in the alternate screen and blocks until the
// user quits.
func Run(view View, data any) error {
	model, err := NewModel(view, data)
	if err != nil {
		return err
	}
	_, err = tea.NewProgram(model, tea.WithAltScreen()).Run()
	return err
}

// NewModel builds the model for view, checking the payload type.
func NewModel(view View, data any) (tea.Model, error) {
	switch view {
	case ViewConversation:
		conv, ok := data.(*types.Conversation)
		if !ok {
			return nil, fmt.Errorf("%s: expected *types.Conversation, got %T", view, data)
		}
		return NewTranscriptModel(conv), nil
	case ViewConversations:
		list, ok := data.([]archive.Summary)
		if !ok {
			return nil, fmt.Errorf("%s: expected []archive.Summary, got %T", view, data)
		}
		return NewListModel(list), nil
	default:
		return nil, fmt.Errorf("TUI mode is not supported for %s", view)
	}
}

// keyMap defines key bindings.
type keyMap struct {
	Quit key.Binding
	Up   key.Binding
	Down key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "esc", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
}
