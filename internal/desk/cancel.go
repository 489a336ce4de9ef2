package desk

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/betbot/perpdesk/internal/domain"
	"github.com/betbot/perpdesk/internal/metrics"
)

// Cancel 撤销一个挂单。成功后同步一次；失败时挂单列表不变。
//
// 开启 CancelClosedAsSuccess 时，远端拒绝撤单后会重新同步：
// 订单已不在最新挂单列表中（已成交或已撤）则按成功处理。传输失败从不改判。
func (d *Desk) Cancel(ctx context.Context, inst domain.Instrument, id domain.OrderID) error {
	entry := deskLog.WithFields(logrus.Fields{"instrument": inst, "oid": id})

	d.mu.Lock()
	d.cancelling[id]++
	d.mu.Unlock()
	d.changed.Emit()

	err := d.gw.CancelOrder(ctx, inst, id)

	d.mu.Lock()
	if d.cancelling[id]--; d.cancelling[id] <= 0 {
		delete(d.cancelling, id)
	}
	d.mu.Unlock()

	if err == nil {
		entry.Info("order cancelled")
		metrics.OrdersCancelled.Add(1)
		d.notifier.Raise(domain.SuccessMessage(domain.MsgOrderCancelled))
		_, _ = d.Sync(ctx, d.selected())
		return nil
	}

	var re *domain.RemoteError
	if d.opts.CancelClosedAsSuccess && errors.As(err, &re) {
		res, _ := d.Sync(ctx, d.selected())
		if res.OrdersErr == nil && res.Orders != nil && !domain.ContainsOrder(res.Orders, id) {
			entry.WithField("remote", re.Message).Info("order already closed, cancel treated as success")
			metrics.OrdersCancelled.Add(1)
			d.notifier.Raise(domain.SuccessMessage(domain.MsgOrderCancelled))
			return nil
		}
	}

	entry.WithError(err).Warn("cancel failed")
	d.notifier.Raise(domain.ErrorMessage(domain.MsgCancelFailed))
	return err
}
