package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/concierge/artifact"
	"github.com/pithecene-io/concierge/types"
)

const (
	defaultWidth  = 80
	defaultHeight = 24
	chromeHeight  = 4 // title + help
)

// TranscriptModel is a scrollable view of one conversation.
type TranscriptModel struct {
	conv     *types.Conversation
	viewport viewport.Model
	quitting bool
}

// NewTranscriptModel creates a transcript viewer sized for a default
// terminal; the first WindowSizeMsg resizes it.
func NewTranscriptModel(conv *types.Conversation) TranscriptModel {
	m := TranscriptModel{conv: conv, viewport: viewport.New(defaultWidth, defaultHeight-chromeHeight)}
	m.viewport.SetContent(RenderTranscript(conv, defaultWidth))
	return m
}

// Init implements tea.Model.
func (m TranscriptModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m TranscriptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-chromeHeight, 1)
		m.viewport.SetContent(RenderTranscript(m.conv, msg.Width))
		return m, nil
	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m TranscriptModel) View() string {
	if m.quitting {
		return ""
	}
	title := TitleStyle.Render("Conversation " + m.conv.ID)
	help := HelpStyle.Render(fmt.Sprintf("↑/↓ scroll • %3.f%% • q quit", m.viewport.ScrollPercent()*100))
	return title + "\n" + m.viewport.View() + "\n" + help
}

// RenderTranscript renders the displayable messages of conv with artifact
// cards, wrapped to width.
func RenderTranscript(conv *types.Conversation, width int) string {
	msgs := conv.Displayable()
	if len(msgs) == 0 {
		return HelpStyle.Render("(no messages)")
	}

	body := lipgloss.NewStyle().Width(max(width-4, 20))
	var b strings.Builder
	for _, msg := range msgs {
		if msg.Role == types.RoleUser {
			b.WriteString(UserStyle.Render("You"))
		} else {
			b.WriteString(AssistantStyle.Render("Assistant"))
		}
		b.WriteString("  ")
		b.WriteString(LabelStyle.Render(msg.CreatedAt.Format("15:04:05")))
		b.WriteString("\n")
		if msg.Content != "" {
			b.WriteString(body.Render(msg.Content))
			b.WriteString("\n")
		}
		for _, card := range cards(msg.Artifacts) {
			b.WriteString(CardStyle.Render(card))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func cards(arts []types.Artifact) []string {
	var out []string
	for _, kind := range artifact.Classify(arts) {
		var b strings.Builder
		switch kind {
		case artifact.KindProductCarousel:
			b.WriteString(TitleStyle.UnsetMarginBottom().Render("Products"))
			for _, p := range artifact.ExtractProducts(arts) {
				fmt.Fprintf(&b, "\n%s %s", ValueStyle.Render(p.Name), LabelStyle.UnsetWidth().Render(fmt.Sprintf("%.2f", p.Price)))
			}
		case artifact.KindCart:
			c := artifact.ExtractCart(arts)
			b.WriteString(TitleStyle.UnsetMarginBottom().Render("Cart"))
			for _, it := range c.Items {
				fmt.Fprintf(&b, "\n%dx %s", it.Quantity, it.Name)
			}
			fmt.Fprintf(&b, "\n%s %.2f", LabelStyle.Render("Subtotal:"), c.Subtotal)
		case artifact.KindOrderList:
			b.WriteString(TitleStyle.UnsetMarginBottom().Render("Orders"))
			for _, o := range artifact.ExtractOrders(arts) {
				fmt.Fprintf(&b, "\n%s %s %.2f", o.OrderNumber, OutcomeStyle("").Render(o.Status), o.Total)
			}
		case artifact.KindOrderConfirmation:
			d := artifact.ExtractOrderDetail(arts)
			b.WriteString(TitleStyle.UnsetMarginBottom().Render("Order placed"))
			fmt.Fprintf(&b, "\n%s %s", LabelStyle.Render("Number:"), d.OrderNumber)
			fmt.Fprintf(&b, "\n%s %.2f", LabelStyle.Render("Total:"), d.Total)
			if city := d.ShippingAddress.City; city != "" {
				fmt.Fprintf(&b, "\n%s %s", LabelStyle.Render("Ship to:"), city)
			}
		}
		out = append(out, b.String())
	}
	return out
}
