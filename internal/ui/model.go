// Package ui 是下单台的终端界面（bubbletea）。只读取 desk.View 并派发操作，
// 不持有任何业务状态；每个远端操作都在独立的 tea.Cmd 里执行，互不阻塞。
package ui

import (
	"context"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/betbot/perpdesk/internal/desk"
	"github.com/betbot/perpdesk/internal/domain"
)

var modelLog = logrus.WithField("component", "ui.model")

// Desk UI 需要的操作集合（*desk.Desk 实现）
type Desk interface {
	View() desk.View
	Changes() <-chan struct{}
	SetInstrument(inst domain.Instrument) error
	Sync(ctx context.Context, inst domain.Instrument) (desk.SyncResult, error)
	SetField(ctx context.Context, field domain.FormField, value string) error
	Submit(ctx context.Context) error
	Cancel(ctx context.Context, inst domain.Instrument, id domain.OrderID) error
	Refresh(ctx context.Context) error
}

// Options 界面行为
type Options struct {
	ConfirmOrders   bool
	RefreshInterval time.Duration // 0 表示不定时刷新
	// OnInstrumentSelected 选中标的后回调（用于切换行情推送订阅）
	OnInstrumentSelected func(domain.Instrument)
	// Quit 退出时调用；默认给自己发 SIGINT，让主程序走统一的优雅退出链路
	Quit func()
}

type changeMsg struct{}

type tickMsg time.Time

type opDoneMsg struct {
	op  string
	err error
}

type model struct {
	ctx  context.Context
	desk Desk
	opts Options

	// selectMu 串行化选择命令里的“检查当前标的 + 切换订阅”
	selectMu *sync.Mutex

	view        desk.View
	focus       int // domain.FormFields 下标；等于 len(FormFields) 时焦点在挂单列表
	orderCursor int
	confirming  bool
	width       int
	height      int
}

// New 创建界面模型
func New(ctx context.Context, d Desk, opts Options) tea.Model {
	if opts.Quit == nil {
		opts.Quit = func() {
			// Bubble Tea 会拦截 Ctrl+C，外层主程序收不到 SIGINT，这里主动补发一次
			_ = unix.Kill(os.Getpid(), unix.SIGINT)
		}
	}
	return model{
		ctx:      ctx,
		desk:     d,
		opts:     opts,
		selectMu: &sync.Mutex{},
		view:     d.View(),
	}
}

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		m.waitForChange(),
		m.selectCmd(m.view.Selected()),
	}
	if m.opts.RefreshInterval > 0 {
		cmds = append(cmds, m.tick())
	}
	return tea.Batch(cmds...)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case changeMsg:
		m.refreshView()
		return m, m.waitForChange()
	case tickMsg:
		return m, tea.Batch(m.refreshCmd(), m.tick())
	case opDoneMsg:
		if msg.err != nil {
			modelLog.WithField("op", msg.op).WithError(msg.err).Debug("operation finished with error")
		}
		m.refreshView()
		return m, nil
	}
	return m, nil
}

func (m *model) refreshView() {
	m.view = m.desk.View()
	if n := len(m.view.Orders); m.orderCursor >= n {
		m.orderCursor = max(n-1, 0)
	}
	if m.focusedField() == domain.FieldPrice && !m.view.Form.PriceEditable() {
		m.focus = m.nextFocus(m.focus, -1)
	}
}

func (m model) focusedField() domain.FormField {
	if m.focus < len(domain.FormFields) {
		return domain.FormFields[m.focus]
	}
	return ""
}

// nextFocus 循环移动焦点，跳过不可编辑的价格字段
func (m model) nextFocus(from, step int) int {
	n := len(domain.FormFields) + 1
	f := from
	for i := 0; i < n; i++ {
		f = ((f+step)%n + n) % n
		if f < len(domain.FormFields) && domain.FormFields[f] == domain.FieldPrice && !m.view.Form.PriceEditable() {
			continue
		}
		return f
	}
	return from
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if key == "ctrl+c" {
		return m.quit()
	}

	if m.confirming {
		switch key {
		case "y", "Y", "enter":
			m.confirming = false
			return m, m.submitCmd()
		case "n", "N", "esc":
			m.confirming = false
		}
		return m, nil
	}

	switch key {
	case "q":
		if !m.isTextField() {
			return m.quit()
		}
	case "tab", "down":
		if key == "tab" || m.focusedField() != "" {
			m.focus = m.nextFocus(m.focus, 1)
			return m, nil
		}
	case "shift+tab", "up":
		if key == "shift+tab" || m.focusedField() != "" {
			m.focus = m.nextFocus(m.focus, -1)
			return m, nil
		}
	case "r", "ctrl+r":
		if !m.isTextField() || key == "ctrl+r" {
			return m, m.refreshCmd()
		}
	case "enter":
		if m.focusedField() != "" {
			if m.opts.ConfirmOrders {
				m.confirming = true
				return m, nil
			}
			return m, m.submitCmd()
		}
	}

	if m.focusedField() == "" {
		return m.handleOrdersKey(key)
	}
	return m.handleFieldKey(msg)
}

func (m model) handleOrdersKey(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "up", "k":
		if m.orderCursor > 0 {
			m.orderCursor--
		} else {
			m.focus = m.nextFocus(m.focus, -1)
		}
	case "down", "j":
		if m.orderCursor < len(m.view.Orders)-1 {
			m.orderCursor++
		}
	case "x", "c", "delete":
		if m.orderCursor < len(m.view.Orders) {
			o := m.view.Orders[m.orderCursor]
			return m, m.cancelCmd(o.Instrument, o.OrderID)
		}
	}
	return m, nil
}

func (m model) handleFieldKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	form := m.view.Form
	field := m.focusedField()
	key := msg.String()

	step := 0
	switch key {
	case "left", "h":
		step = -1
	case "right", "l":
		step = 1
	}

	switch field {
	case domain.FieldInstrument:
		if step != 0 {
			// 标的在按键处理中立即写入，后台只做同步和订阅
			next := form.Instrument.Next(step)
			if err := m.desk.SetInstrument(next); err != nil {
				modelLog.WithError(err).Warn("instrument change rejected")
				return m, nil
			}
			m.view = m.desk.View()
			return m, m.selectCmd(next)
		}
	case domain.FieldSide:
		if step != 0 {
			m.setField(field, string(form.Side.Opposite()))
		}
	case domain.FieldOrderType:
		if step != 0 {
			next := domain.OrderTypeMarket
			if form.OrderType == domain.OrderTypeMarket {
				next = domain.OrderTypeLimit
			}
			m.setField(field, string(next))
		}
	case domain.FieldLeverage:
		switch {
		case step != 0:
			m.setField(field, strconv.Itoa(form.Leverage+step))
		case key == "pgup":
			m.setField(field, strconv.Itoa(form.Leverage+10))
		case key == "pgdown":
			m.setField(field, strconv.Itoa(form.Leverage-10))
		}
	case domain.FieldSize:
		if v, ok := editText(form.Size, msg); ok {
			m.setField(field, v)
		}
	case domain.FieldPrice:
		if v, ok := editText(form.Price, msg); ok {
			m.setField(field, v)
		}
	}
	return m, nil
}

func (m *model) setField(field domain.FormField, value string) {
	if err := m.desk.SetField(m.ctx, field, value); err != nil {
		modelLog.WithError(err).Debug("field edit rejected")
	}
	m.view = m.desk.View()
}

func (m model) isTextField() bool {
	f := m.focusedField()
	return f == domain.FieldSize || f == domain.FieldPrice
}

// editText 数字输入框：只接受数字和小数点，支持退格
func editText(cur string, msg tea.KeyMsg) (string, bool) {
	switch msg.Type {
	case tea.KeyBackspace:
		if cur == "" {
			return cur, false
		}
		r := []rune(cur)
		return string(r[:len(r)-1]), true
	case tea.KeyCtrlU:
		return "", cur != ""
	case tea.KeyRunes:
		s := string(msg.Runes)
		if strings.Trim(s, "0123456789.") != "" {
			return cur, false
		}
		return cur + s, true
	}
	return cur, false
}

func (m model) quit() (tea.Model, tea.Cmd) {
	m.opts.Quit()
	return m, tea.Quit
}

func (m model) waitForChange() tea.Cmd {
	ch := m.desk.Changes()
	return func() tea.Msg {
		<-ch
		return changeMsg{}
	}
}

func (m model) tick() tea.Cmd {
	return tea.Tick(m.opts.RefreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// selectCmd 对已写入的标的做同步和订阅。执行时选择已经变化的命令直接放弃，
// 由更新的那次选择负责，乱序执行也不会切回旧标的。
func (m model) selectCmd(inst domain.Instrument) tea.Cmd {
	d, ctx, hook, mu := m.desk, m.ctx, m.opts.OnInstrumentSelected, m.selectMu
	return func() tea.Msg {
		mu.Lock()
		if d.View().Selected() != inst {
			mu.Unlock()
			return opDoneMsg{op: "select"}
		}
		if hook != nil {
			hook(inst)
		}
		mu.Unlock()
		_, err := d.Sync(ctx, inst)
		return opDoneMsg{op: "select", err: err}
	}
}

func (m model) refreshCmd() tea.Cmd {
	d, ctx := m.desk, m.ctx
	return func() tea.Msg {
		return opDoneMsg{op: "refresh", err: d.Refresh(ctx)}
	}
}

func (m model) submitCmd() tea.Cmd {
	d, ctx := m.desk, m.ctx
	return func() tea.Msg {
		return opDoneMsg{op: "submit", err: d.Submit(ctx)}
	}
}

func (m model) cancelCmd(inst domain.Instrument, id domain.OrderID) tea.Cmd {
	d, ctx := m.desk, m.ctx
	return func() tea.Msg {
		return opDoneMsg{op: "cancel", err: d.Cancel(ctx, inst, id)}
	}
}
