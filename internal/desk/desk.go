// Package desk 是下单/同步状态机：持有视图状态，对外暴露选择标的、编辑表单、
// 提交、撤单、刷新等操作。所有远端交互都经过 ports.Gateway。
package desk

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/betbot/perpdesk/internal/domain"
	"github.com/betbot/perpdesk/internal/metrics"
	"github.com/betbot/perpdesk/internal/ports"
	"github.com/betbot/perpdesk/pkg/sigchan"
)

var deskLog = logrus.WithField("component", "desk")

// Options desk 行为配置
type Options struct {
	DefaultLeverage int
	// CancelClosedAsSuccess 撤单被拒后重新同步，若订单已不在挂单列表中则按成功处理
	CancelClosedAsSuccess bool
}

// View 某一时刻的视图快照，调用方可随意持有，不会被后续修改影响
type View struct {
	Form       domain.OrderForm
	Market     *domain.MarketSnapshot
	Orders     []domain.OpenOrder
	Status     *domain.StatusMessage
	Loading    bool
	Submitting bool
	Cancelling []domain.OrderID
}

// Selected 当前选中的标的
func (v View) Selected() domain.Instrument {
	return v.Form.Instrument
}

// IsCancelling 该订单是否正在撤单
func (v View) IsCancelling(id domain.OrderID) bool {
	for _, c := range v.Cancelling {
		if c == id {
			return true
		}
	}
	return false
}

// Desk 视图状态的唯一持有者
type Desk struct {
	gw   ports.Gateway
	opts Options

	mu         sync.Mutex
	form       domain.OrderForm
	market     *domain.MarketSnapshot
	orders     []domain.OpenOrder
	syncing    int    // 未结束的同步周期数
	submitting int    // 未结束的下单数
	cancelling map[domain.OrderID]int
	lastSeq    uint64 // 最近发出的同步序号
	appliedSeq uint64 // 最近写入过任一部分结果的同步序号
	pushSeq    uint64 // 最近一次推送到达时已发出的同步序号

	notifier *Notifier
	changed  *sigchan.Chan
}

func New(gw ports.Gateway, opts Options) *Desk {
	d := &Desk{
		gw:         gw,
		opts:       opts,
		form:       domain.NewOrderForm(opts.DefaultLeverage),
		orders:     []domain.OpenOrder{},
		cancelling: make(map[domain.OrderID]int),
		changed:    sigchan.New(1),
	}
	d.notifier = NewNotifier(d.changed.Emit)
	return d
}

// Changes 每次状态变化后收到信号（多次变化可能合并为一次）
func (d *Desk) Changes() <-chan struct{} {
	return d.changed.C()
}

// View 返回当前视图的拷贝
func (d *Desk) View() View {
	d.mu.Lock()
	defer d.mu.Unlock()

	v := View{
		Form:       d.form,
		Orders:     append([]domain.OpenOrder(nil), d.orders...),
		Status:     d.notifier.Current(),
		Loading:    d.syncing > 0,
		Submitting: d.submitting > 0,
	}
	if d.market != nil {
		m := *d.market
		v.Market = &m
	}
	for id := range d.cancelling {
		v.Cancelling = append(v.Cancelling, id)
	}
	return v
}

// SelectInstrument 切换标的并触发一次同步（即使标的没有变化）。
// 返回值是同步的结果；同步失败同时会体现在提示里。
func (d *Desk) SelectInstrument(ctx context.Context, inst domain.Instrument) error {
	if err := d.SetInstrument(inst); err != nil {
		return err
	}
	_, err := d.Sync(ctx, inst)
	return err
}

// SetInstrument 只修改表单里的标的，不发起同步。
// 界面在按键处理中同步调用它，再把 Sync 放到后台执行。
func (d *Desk) SetInstrument(inst domain.Instrument) error {
	if !inst.IsSupported() {
		return fmt.Errorf("unsupported instrument %q", inst)
	}
	d.mu.Lock()
	d.form.Instrument = inst
	d.mu.Unlock()
	d.changed.Emit()

	deskLog.WithField("instrument", inst).Debug("instrument selected")
	return nil
}

// SetField 修改表单的一个字段。instrument 字段等同于 SelectInstrument。
// 非法值返回错误，表单保持不变。
func (d *Desk) SetField(ctx context.Context, field domain.FormField, value string) error {
	if field == domain.FieldInstrument {
		inst, err := domain.ParseInstrument(value)
		if err != nil {
			return err
		}
		return d.SelectInstrument(ctx, inst)
	}

	d.mu.Lock()
	next, err := d.form.WithField(field, value)
	if err == nil {
		d.form = next
	}
	d.mu.Unlock()
	if err != nil {
		return err
	}
	d.changed.Emit()
	return nil
}

// Refresh 对当前标的做一次同步
func (d *Desk) Refresh(ctx context.Context) error {
	_, err := d.Sync(ctx, d.selected())
	return err
}

func (d *Desk) selected() domain.Instrument {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.form.Instrument
}

// OnMarketUpdate 推送行情：只有与当前选中标的一致时才整体替换快照。
// 推送不占用同步序号；推送到达前已发出的同步，其行情结果不再覆盖推送，
// 之后发出的同步照常覆盖。
func (d *Desk) OnMarketUpdate(ctx context.Context, snap domain.MarketSnapshot) {
	d.mu.Lock()
	if snap.Instrument != d.form.Instrument {
		d.mu.Unlock()
		metrics.MarketPushIgnore.Add(1)
		deskLog.WithField("instrument", snap.Instrument).Debug("push for unselected instrument dropped")
		return
	}
	d.market = &snap
	d.pushSeq = d.lastSeq
	d.mu.Unlock()
	metrics.MarketPushes.Add(1)
	d.changed.Emit()
}
