package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/concierge/artifact"
	"github.com/pithecene-io/concierge/types"
)

var (
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#3B82F6"))
	assistantStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	statusStyle    = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("#6B7280"))
	cardStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
)

// Transcript writes every displayable message of conv as plain chat text,
// followed by a summary card per artifact kind. Placeholders are skipped.
func (r *Renderer) Transcript(conv *types.Conversation) error {
	for _, m := range conv.Displayable() {
		if err := r.Message(m); err != nil {
			return err
		}
	}
	return nil
}

// Message writes one chat bubble.
func (r *Renderer) Message(m types.Message) error {
	var b strings.Builder
	b.WriteString(r.style(roleStyle(m.Role), roleLabel(m.Role)+":"))
	if m.Content != "" {
		b.WriteString(" ")
		b.WriteString(m.Content)
	}
	b.WriteString("\n")
	for _, line := range Cards(m.Artifacts) {
		b.WriteString("  ")
		b.WriteString(r.style(cardStyle, line))
		b.WriteString("\n")
	}
	_, err := io.WriteString(r.out, b.String())
	return err
}

// Status writes a progress line such as "... Searching products".
func (r *Renderer) Status(text string) error {
	_, err := fmt.Fprintln(r.out, r.style(statusStyle, "... "+text))
	return err
}

func (r *Renderer) style(s lipgloss.Style, text string) string {
	if r.noColor {
		return text
	}
	return s.Render(text)
}

// Cards summarizes the renderable artifacts of a message, one line per
// product, cart, order or confirmation.
func Cards(artifacts []types.Artifact) []string {
	var lines []string
	for _, kind := range artifact.Classify(artifacts) {
		switch kind {
		case artifact.KindProductCarousel:
			products := artifact.ExtractProducts(artifacts)
			lines = append(lines, fmt.Sprintf("[products] %d result(s)", len(products)))
			for _, p := range products {
				lines = append(lines, "  "+ProductLine(p))
			}
		case artifact.KindCart:
			cart := artifact.ExtractCart(artifacts)
			lines = append(lines, fmt.Sprintf("[cart] %d item(s), subtotal %s", cart.TotalItems, Price(cart.Subtotal)))
			for _, it := range cart.Items {
				lines = append(lines, fmt.Sprintf("  %dx %s %s", it.Quantity, it.Name, Price(it.Price)))
			}
		case artifact.KindOrderList:
			orders := artifact.ExtractOrders(artifacts)
			lines = append(lines, fmt.Sprintf("[orders] %d order(s)", len(orders)))
			for _, o := range orders {
				lines = append(lines, fmt.Sprintf("  %s %s %s", o.OrderNumber, o.Status, Price(o.Total)))
			}
		case artifact.KindOrderConfirmation:
			d := artifact.ExtractOrderDetail(artifacts)
			lines = append(lines, fmt.Sprintf("[order placed] %s %s total %s", d.OrderNumber, d.Status, Price(d.Total)))
		}
	}
	return lines
}

// ProductLine formats one product for a carousel card.
func ProductLine(p types.ProductData) string {
	var b strings.Builder
	b.WriteString(p.Name)
	if p.Brand != "" {
		fmt.Fprintf(&b, " (%s)", p.Brand)
	}
	b.WriteString(" ")
	b.WriteString(Price(p.Price))
	if p.OriginalPrice != nil && *p.OriginalPrice > p.Price {
		fmt.Fprintf(&b, " was %s", Price(*p.OriginalPrice))
	}
	if p.Stock != nil && *p.Stock == 0 {
		b.WriteString(" out of stock")
	}
	return b.String()
}

// Price formats an amount with two decimals.
func Price(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

func roleLabel(r types.Role) string {
	if r == types.RoleUser {
		return "you"
	}
	return "assistant"
}

func roleStyle(r types.Role) lipgloss.Style {
	if r == types.RoleUser {
		return userStyle
	}
	return assistantStyle
}
