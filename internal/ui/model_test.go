package ui

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/perpdesk/internal/desk"
	"github.com/betbot/perpdesk/internal/domain"
	"github.com/betbot/perpdesk/internal/gateway"
)

type harness struct {
	t     *testing.T
	m     model
	gw    *gateway.MockGateway
	d     *desk.Desk
	quits int
	subs  []domain.Instrument
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	gw := gateway.NewMockGateway()
	for _, inst := range domain.SupportedInstruments {
		gw.SetMarket(domain.MarketSnapshot{Instrument: inst, Price: decimal.NewFromInt(100)})
	}
	h := &harness{t: t, gw: gw, d: desk.New(gw, desk.Options{DefaultLeverage: 1})}
	opts.Quit = func() { h.quits++ }
	opts.OnInstrumentSelected = func(inst domain.Instrument) { h.subs = append(h.subs, inst) }
	h.m = New(context.Background(), h.d, opts).(model)
	next, _ := h.m.Update(tea.WindowSizeMsg{Width: 200, Height: 50})
	h.m = next.(model)
	return h
}

// press 发送按键，并同步执行返回的命令（批处理除外）
func (h *harness) press(keys ...tea.KeyMsg) tea.Msg {
	h.t.Helper()
	var last tea.Msg
	for _, k := range keys {
		next, cmd := h.m.Update(k)
		h.m = next.(model)
		if cmd != nil {
			last = cmd()
			if done, ok := last.(opDoneMsg); ok {
				next, _ = h.m.Update(done)
				h.m = next.(model)
			}
		}
	}
	return last
}

func key(s string) tea.KeyMsg {
	switch s {
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "shift+tab":
		return tea.KeyMsg{Type: tea.KeyShiftTab}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "left":
		return tea.KeyMsg{Type: tea.KeyLeft}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "backspace":
		return tea.KeyMsg{Type: tea.KeyBackspace}
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func (h *harness) focusOn(field domain.FormField) {
	h.t.Helper()
	for i := 0; i < len(domain.FormFields)+1; i++ {
		if h.m.focusedField() == field {
			return
		}
		h.press(key("tab"))
	}
	h.t.Fatalf("field %s not reachable", field)
}

func TestModel_InstrumentCyclingSelectsAndSyncs(t *testing.T) {
	h := newHarness(t, Options{})
	require.Equal(t, domain.FieldInstrument, h.m.focusedField())

	h.press(key("right"))
	assert.Equal(t, domain.InstrumentETH, h.d.View().Selected())
	assert.Equal(t, 1, h.gw.CallCount("GetMarket"))
	assert.Equal(t, []domain.Instrument{domain.InstrumentETH}, h.subs)

	h.press(key("left"), key("left"))
	assert.Equal(t, domain.InstrumentLINK, h.m.view.Selected())
	assert.Equal(t, 3, h.gw.CallCount("GetMarket"))
}

func TestModel_EditFields(t *testing.T) {
	h := newHarness(t, Options{})

	h.focusOn(domain.FieldSide)
	h.press(key("right"))
	assert.Equal(t, domain.SideShort, h.m.view.Form.Side)

	h.focusOn(domain.FieldLeverage)
	h.press(key("left"))
	assert.Equal(t, 1, h.m.view.Form.Leverage, "clamped at 1")
	h.press(tea.KeyMsg{Type: tea.KeyPgUp})
	assert.Equal(t, 11, h.m.view.Form.Leverage)

	h.focusOn(domain.FieldSize)
	h.press(key("1"), key("."), key("5"), key("q"), key("a"))
	assert.Equal(t, "1.5", h.m.view.Form.Size)
	assert.Equal(t, 0, h.quits, "q types into text fields instead of quitting")
	h.press(key("backspace"))
	assert.Equal(t, "1.", h.m.view.Form.Size)
	assert.Equal(t, 0, h.gw.CallCount("GetMarket"), "edits never sync")
}

func TestModel_MarketOrderSkipsPrice(t *testing.T) {
	h := newHarness(t, Options{})
	h.focusOn(domain.FieldOrderType)
	h.press(key("right"))
	require.Equal(t, domain.OrderTypeMarket, h.m.view.Form.OrderType)

	for i := 0; i < len(domain.FormFields)+1; i++ {
		h.press(key("tab"))
		assert.NotEqual(t, domain.FieldPrice, h.m.focusedField())
	}
	assert.Contains(t, h.m.View(), "market")
}

func TestModel_SubmitWithConfirmation(t *testing.T) {
	h := newHarness(t, Options{ConfirmOrders: true})
	h.focusOn(domain.FieldSize)
	h.press(key("2"))
	h.focusOn(domain.FieldPrice)
	h.press(key("9"), key("9"))

	h.press(key("enter"))
	assert.True(t, h.m.confirming)
	assert.Contains(t, h.m.View(), "Place LONG 2 BTC @ 99")

	h.press(key("n"))
	assert.False(t, h.m.confirming)
	assert.Equal(t, 0, h.gw.CallCount("CreateOrder"))

	h.press(key("enter"), key("y"))
	assert.Equal(t, 1, h.gw.CallCount("CreateOrder"))
	require.NotNil(t, h.m.view.Status)
	assert.Equal(t, domain.MsgOrderPlaced, h.m.view.Status.Text)
	assert.Equal(t, "", h.m.view.Form.Size)
	assert.Contains(t, h.m.View(), "Order placed successfully!")
}

func TestModel_SubmitValidationShowsMessage(t *testing.T) {
	h := newHarness(t, Options{})
	h.press(key("enter"))
	assert.Equal(t, 0, h.gw.CallCount("CreateOrder"))
	require.NotNil(t, h.m.view.Status)
	assert.Equal(t, domain.ErrorMessage(domain.MsgRequiredFields), *h.m.view.Status)
}

func TestModel_CancelFromOrderList(t *testing.T) {
	h := newHarness(t, Options{})
	h.gw.SetOrders([]domain.OpenOrder{
		{Instrument: domain.InstrumentBTC, OrderID: "1", Side: domain.OrderSideBuy, Size: decimal.NewFromInt(1)},
		{Instrument: domain.InstrumentETH, OrderID: "2", Side: domain.OrderSideSell, Size: decimal.NewFromInt(2)},
	})
	h.press(key("r"))
	require.Len(t, h.m.view.Orders, 2)
	assert.Contains(t, h.m.View(), "Open Orders (2)")

	h.press(key("shift+tab"))
	require.Equal(t, domain.FormField(""), h.m.focusedField())
	h.press(key("down"), key("x"))

	assert.Equal(t, []domain.OrderID{"2"}, h.gw.Cancelled)
	assert.Len(t, h.m.view.Orders, 1)
	assert.Equal(t, 0, h.m.orderCursor)
	assert.Equal(t, domain.MsgOrderCancelled, h.m.view.Status.Text)
}

func TestModel_Quit(t *testing.T) {
	h := newHarness(t, Options{})
	msg := h.press(key("ctrl+c"))
	assert.Equal(t, 1, h.quits)
	assert.IsType(t, tea.QuitMsg{}, msg)
}

func TestModel_ChangeMsgRefreshesView(t *testing.T) {
	h := newHarness(t, Options{})
	require.NoError(t, h.d.SetField(context.Background(), domain.FieldSize, "7"))
	assert.Equal(t, "", h.m.view.Form.Size)

	next, cmd := h.m.Update(changeMsg{})
	h.m = next.(model)
	assert.Equal(t, "7", h.m.view.Form.Size)
	assert.NotNil(t, cmd)
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "45000.50", formatPrice(decimal.RequireFromString("45000.5")))
	assert.Equal(t, "14.500", formatPrice(decimal.RequireFromString("14.5")))
	assert.Equal(t, "0.85000", formatPrice(decimal.RequireFromString("0.85")))
	assert.Equal(t, "1.25M", formatVolume(decimal.NewFromInt(1_250_000)))
	assert.Equal(t, "12.3K", formatVolume(decimal.NewFromInt(12_300)))
}

func TestModel_RefreshKeyAndTick(t *testing.T) {
	h := newHarness(t, Options{RefreshInterval: time.Minute})

	h.press(key("r"))
	assert.Equal(t, 1, h.gw.CallCount("GetMarket"))

	// 文本框里 r 不触发刷新，ctrl+r 仍然可以
	h.focusOn(domain.FieldSize)
	h.press(key("r"))
	assert.Equal(t, 1, h.gw.CallCount("GetMarket"))
	h.press(tea.KeyMsg{Type: tea.KeyCtrlR})
	assert.Equal(t, 2, h.gw.CallCount("GetMarket"))

	_, cmd := h.m.Update(tickMsg(time.Now()))
	assert.NotNil(t, cmd, "tick schedules a refresh and the next tick")
}

// send 只投递消息，返回命令但不执行
func (h *harness) send(msg tea.Msg) tea.Cmd {
	h.t.Helper()
	next, cmd := h.m.Update(msg)
	h.m = next.(model)
	return cmd
}

func TestModel_QuickInstrumentPressesOutOfOrder(t *testing.T) {
	h := newHarness(t, Options{})

	cmd1 := h.send(key("right"))
	cmd2 := h.send(key("right"))
	require.NotNil(t, cmd1)
	require.NotNil(t, cmd2)
	assert.Equal(t, domain.InstrumentSOL, h.d.View().Selected(), "selection lands before any command runs")

	h.send(cmd2())
	h.send(cmd1())

	v := h.d.View()
	assert.Equal(t, domain.InstrumentSOL, v.Selected())
	assert.Equal(t, domain.InstrumentSOL, h.m.view.Selected())
	require.NotNil(t, v.Market)
	assert.Equal(t, domain.InstrumentSOL, v.Market.Instrument)
	assert.Equal(t, []domain.Instrument{domain.InstrumentSOL}, h.subs)
	assert.Equal(t, 1, h.gw.CallCount("GetMarket"))
}

func TestModel_ChangeBetweenInstrumentPresses(t *testing.T) {
	h := newHarness(t, Options{})

	cmd1 := h.send(key("right"))
	h.send(changeMsg{})
	cmd2 := h.send(key("right"))
	h.send(cmd1())
	h.send(cmd2())

	assert.Equal(t, domain.InstrumentSOL, h.d.View().Selected())
	assert.Equal(t, domain.InstrumentSOL, h.m.view.Selected())
	assert.Equal(t, domain.InstrumentSOL, h.subs[len(h.subs)-1])
	require.NotNil(t, h.d.View().Market)
	assert.Equal(t, domain.InstrumentSOL, h.d.View().Market.Instrument)
}
