package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/betbot/perpdesk/internal/desk"
	"github.com/betbot/perpdesk/internal/domain"
)

var (
	accent       = lipgloss.Color("39")
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(accent)
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(accent).Padding(0, 1)
	focusStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("226"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	upStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	downStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	successStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("46"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
)

func panel(width int, content string) string {
	return lipgloss.NewStyle().
		Width(width).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(accent).
		Padding(0, 1).
		Render(content)
}

func (m model) View() string {
	v := m.view
	availableWidth := m.width - 4
	if availableWidth < 72 {
		availableWidth = 72
	}
	leftWidth := availableWidth/2 - 1
	rightWidth := availableWidth/2 - 1

	left := lipgloss.JoinVertical(lipgloss.Left,
		panel(leftWidth, renderMarket(v, leftWidth)),
		panel(leftWidth, m.renderForm(leftWidth)),
	)
	right := panel(rightWidth, m.renderOrders(rightWidth))

	content := lipgloss.JoinHorizontal(lipgloss.Top, left, "  ", right)
	return lipgloss.JoinVertical(lipgloss.Left,
		renderHeader(v),
		content,
		m.renderStatus(),
		mutedStyle.Render(m.helpLine()),
	)
}

func renderHeader(v desk.View) string {
	state := "idle"
	switch {
	case v.Submitting:
		state = "submitting..."
	case v.Loading:
		state = "syncing..."
	}
	return headerStyle.Render(fmt.Sprintf("perpdesk | %s | %s | %s",
		v.Selected(), state, time.Now().Format("15:04:05")))
}

func renderMarket(v desk.View, width int) string {
	var lines []string
	lines = append(lines, titleStyle.Render("Market"))
	lines = append(lines, strings.Repeat("─", max(width-4, 1)))

	snap := v.Market
	if snap == nil {
		lines = append(lines, mutedStyle.Render("no market data yet"))
		return strings.Join(lines, "\n")
	}
	stale := ""
	if snap.Instrument != v.Selected() {
		stale = mutedStyle.Render(" (previous instrument)")
	}
	lines = append(lines, fmt.Sprintf("%s%s", titleStyle.Render(snap.Instrument.String()), stale))
	lines = append(lines, fmt.Sprintf("Price:  %s", formatPrice(snap.Price)))
	lines = append(lines, fmt.Sprintf("Bid:    %s   Ask: %s   Spread: %s",
		formatPrice(snap.Bid), formatPrice(snap.Ask), formatPrice(snap.Spread())))

	change := fmt.Sprintf("%s%%", snap.Change24h.StringFixed(2))
	if snap.Change24h.IsNegative() {
		change = downStyle.Render(change)
	} else {
		change = upStyle.Render("+" + change)
	}
	lines = append(lines, fmt.Sprintf("24h:    %s   Vol: %s", change, formatVolume(snap.Volume24h)))
	if !snap.FetchedAt.IsZero() {
		lines = append(lines, mutedStyle.Render("updated "+snap.FetchedAt.Format("15:04:05")))
	}
	return strings.Join(lines, "\n")
}

func (m model) renderForm(width int) string {
	f := m.view.Form
	var lines []string
	lines = append(lines, titleStyle.Render("Order"))
	lines = append(lines, strings.Repeat("─", max(width-4, 1)))

	for i, field := range domain.FormFields {
		label, value := fieldLabel(field), fieldValue(f, field)
		editable := field != domain.FieldPrice || f.PriceEditable()
		if !editable {
			value = "market"
		}
		line := fmt.Sprintf("%-10s %s", label, value)
		switch {
		case i == m.focus:
			line = focusStyle.Render("> " + line)
		case !editable:
			line = mutedStyle.Render("  " + line)
		default:
			line = "  " + line
		}
		lines = append(lines, line)
	}
	if m.confirming {
		lines = append(lines, "", focusStyle.Render(confirmPrompt(f)+" (y/n)"))
	}
	return strings.Join(lines, "\n")
}

func fieldLabel(field domain.FormField) string {
	switch field {
	case domain.FieldInstrument:
		return "Coin"
	case domain.FieldSide:
		return "Side"
	case domain.FieldOrderType:
		return "Type"
	case domain.FieldLeverage:
		return "Leverage"
	case domain.FieldSize:
		return "Size"
	case domain.FieldPrice:
		return "Price"
	}
	return string(field)
}

func fieldValue(f domain.OrderForm, field domain.FormField) string {
	switch field {
	case domain.FieldInstrument:
		return "‹ " + f.Instrument.String() + " ›"
	case domain.FieldSide:
		if f.Side == domain.SideLong {
			return upStyle.Render("‹ LONG ›")
		}
		return downStyle.Render("‹ SHORT ›")
	case domain.FieldOrderType:
		return "‹ " + strings.ToUpper(string(f.OrderType)) + " ›"
	case domain.FieldLeverage:
		return fmt.Sprintf("‹ %dx ›", f.Leverage)
	case domain.FieldSize:
		return inputBox(f.Size)
	case domain.FieldPrice:
		return inputBox(f.Price)
	}
	return ""
}

func inputBox(s string) string {
	if s == "" {
		return mutedStyle.Render("[      ]")
	}
	return "[" + s + "]"
}

func confirmPrompt(f domain.OrderForm) string {
	side := "LONG"
	if f.Side == domain.SideShort {
		side = "SHORT"
	}
	if f.OrderType == domain.OrderTypeMarket {
		return fmt.Sprintf("Place %s %s %s at market, %dx?", side, f.Size, f.Instrument, f.Leverage)
	}
	return fmt.Sprintf("Place %s %s %s @ %s, %dx?", side, f.Size, f.Instrument, f.Price, f.Leverage)
}

func (m model) renderOrders(width int) string {
	v := m.view
	var lines []string
	lines = append(lines, titleStyle.Render(fmt.Sprintf("Open Orders (%d)", len(v.Orders))))
	lines = append(lines, strings.Repeat("─", max(width-4, 1)))
	if len(v.Orders) == 0 {
		lines = append(lines, mutedStyle.Render("no open orders"))
		return strings.Join(lines, "\n")
	}

	focused := m.focusedField() == ""
	for i, o := range v.Orders {
		price := "market"
		if o.Price.Valid {
			price = formatPrice(o.Price.Decimal)
		}
		side := upStyle.Render(fmt.Sprintf("%-5s", o.Side.Label()))
		if o.Side != domain.OrderSideBuy {
			side = downStyle.Render(fmt.Sprintf("%-5s", o.Side.Label()))
		}
		line := fmt.Sprintf("%-5s %s %10s @ %-12s #%s", o.Instrument, side, o.Size.String(), price, o.OrderID)
		if v.IsCancelling(o.OrderID) {
			line += mutedStyle.Render(" cancelling...")
		}
		if focused && i == m.orderCursor {
			line = focusStyle.Render("> ") + line
		} else {
			line = "  " + line
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (m model) renderStatus() string {
	s := m.view.Status
	if s == nil {
		return ""
	}
	if s.Kind == domain.StatusSuccess {
		return successStyle.Render("✓ " + s.Text)
	}
	return errorStyle.Render("✗ " + s.Text)
}

func (m model) helpLine() string {
	if m.focusedField() == "" {
		return "tab: form  ↑/↓: select  x: cancel order  r: refresh  q: quit"
	}
	return "tab/↑/↓: field  ←/→: change  enter: submit  ctrl+r: refresh  ctrl+c: quit"
}

func formatPrice(d decimal.Decimal) string {
	switch {
	case d.Abs().GreaterThanOrEqual(decimal.NewFromInt(1000)):
		return d.StringFixed(2)
	case d.Abs().GreaterThanOrEqual(decimal.NewFromInt(1)):
		return d.StringFixed(3)
	default:
		return d.StringFixed(5)
	}
}

func formatVolume(d decimal.Decimal) string {
	switch {
	case d.GreaterThanOrEqual(decimal.NewFromInt(1_000_000)):
		return d.Div(decimal.NewFromInt(1_000_000)).StringFixed(2) + "M"
	case d.GreaterThanOrEqual(decimal.NewFromInt(1_000)):
		return d.Div(decimal.NewFromInt(1_000)).StringFixed(1) + "K"
	default:
		return d.StringFixed(0)
	}
}
