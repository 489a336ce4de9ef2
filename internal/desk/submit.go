package desk

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/betbot/perpdesk/internal/domain"
	"github.com/betbot/perpdesk/internal/metrics"
)

// Submit 校验当前表单并下单。
//
// 本地校验失败返回 *domain.ValidationError，不发起网络请求。
// 下单成功后清空数量和价格（其余字段保留）并同步一次；
// 失败时表单不变，提示使用远端消息，没有则使用 "Failed to place order"。不自动重试。
func (d *Desk) Submit(ctx context.Context) error {
	d.mu.Lock()
	form := d.form
	d.mu.Unlock()

	req, err := form.BuildOrderRequest()
	if err != nil {
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			deskLog.WithField("reason", ve.Reason).Info("order rejected locally")
			d.notifier.Raise(domain.ErrorMessage(ve.Reason))
		}
		return err
	}

	entry := deskLog.WithFields(logrus.Fields{
		"instrument": req.Instrument,
		"is_buy":     req.IsBuy,
		"size":       req.Size.String(),
		"order_type": req.OrderType,
		"leverage":   form.Leverage,
	})
	if req.LimitPrice.Valid {
		entry = entry.WithField("limit_px", req.LimitPrice.Decimal.String())
	}

	d.mu.Lock()
	d.submitting++
	d.mu.Unlock()
	d.changed.Emit()

	err = d.gw.CreateOrder(ctx, req)

	d.mu.Lock()
	d.submitting--
	if err == nil {
		d.form = d.form.ClearedAfterSubmit()
	}
	d.mu.Unlock()

	if err != nil {
		entry.WithError(err).Warn("order failed")
		d.notifier.Raise(domain.ErrorMessage(submitFailureText(err)))
		return err
	}

	entry.Info("order placed")
	metrics.OrdersPlaced.Add(1)
	d.notifier.Raise(domain.SuccessMessage(domain.MsgOrderPlaced))
	_, _ = d.Sync(ctx, d.selected())
	return nil
}

func submitFailureText(err error) string {
	var re *domain.RemoteError
	if errors.As(err, &re) && re.Message != "" {
		return re.Message
	}
	return domain.MsgOrderFailed
}
