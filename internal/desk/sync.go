package desk

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/perpdesk/internal/domain"
	"github.com/betbot/perpdesk/internal/metrics"
	"github.com/betbot/perpdesk/pkg/syncgroup"
)

// SyncResult 一次同步周期的结果
type SyncResult struct {
	Seq           uint64
	Market        *domain.MarketSnapshot // 拉取失败时为 nil
	Orders        []domain.OpenOrder     // 拉取失败时为 nil
	MarketErr     error
	OrdersErr     error
	MarketApplied bool
	OrdersApplied bool
}

// Sync 并发拉取行情和挂单，各自独立应用。
//
// 每个周期带单调递增的序号。结果只有在序号不小于最近一次写入过结果的
// 序号时才会写入，所以新周期的挂单写入后，旧周期迟到的行情也会被丢弃，
// 界面不会出现两个周期拼在一起的数据。行情结果还要求标的仍是当前选中的。
// 任一部分失败时提示 "Failed to fetch trading data"（每个周期最多一次），
// 已被更新周期取代的周期失败时不提示。
func (d *Desk) Sync(ctx context.Context, inst domain.Instrument) (SyncResult, error) {
	d.mu.Lock()
	d.lastSeq++
	seq := d.lastSeq
	d.syncing++
	d.mu.Unlock()
	d.changed.Emit()
	metrics.SyncCycles.Add(1)

	entry := deskLog.WithFields(logrus.Fields{"seq": seq, "instrument": inst})
	start := time.Now()
	res := SyncResult{Seq: seq}
	entry.Debug("sync start")

	sg := syncgroup.NewSyncGroup()
	sg.Add(func() {
		snap, err := d.gw.GetMarket(ctx, inst)
		if err != nil {
			res.MarketErr = err
			return
		}
		res.Market = snap
		res.MarketApplied = d.applyMarket(seq, snap)
	})
	sg.Add(func() {
		orders, err := d.gw.GetOpenOrders(ctx)
		if err != nil {
			res.OrdersErr = err
			return
		}
		if orders == nil {
			orders = []domain.OpenOrder{}
		}
		res.Orders = orders
		res.OrdersApplied = d.applyOrders(seq, orders)
	})
	sg.Run()
	sg.Wait()

	failed := res.MarketErr != nil || res.OrdersErr != nil

	d.mu.Lock()
	d.syncing--
	superseded := seq < d.lastSeq
	d.mu.Unlock()

	if failed {
		if superseded {
			entry.WithFields(logrus.Fields{
				"market_err": res.MarketErr,
				"orders_err": res.OrdersErr,
			}).Debug("superseded sync failed, not reported")
		} else {
			entry.WithFields(logrus.Fields{
				"market_err": res.MarketErr,
				"orders_err": res.OrdersErr,
			}).Warn("sync failed")
			metrics.SyncFailures.Add(1)
			d.notifier.Raise(domain.ErrorMessage(domain.MsgFetchFailed))
		}
	} else {
		entry.WithField("elapsed", time.Since(start)).Debug("sync done")
	}
	d.changed.Emit()

	return res, errors.Join(res.MarketErr, res.OrdersErr)
}

func (d *Desk) applyMarket(seq uint64, snap *domain.MarketSnapshot) bool {
	d.mu.Lock()
	if seq < d.appliedSeq || seq <= d.pushSeq || snap.Instrument != d.form.Instrument {
		fields := logrus.Fields{
			"seq":        seq,
			"applied":    d.appliedSeq,
			"push":       d.pushSeq,
			"instrument": snap.Instrument,
			"selected":   d.form.Instrument,
		}
		d.mu.Unlock()
		metrics.StaleDiscards.Add(1)
		deskLog.WithFields(fields).Debug("stale market result discarded")
		return false
	}
	d.appliedSeq = seq
	m := *snap
	d.market = &m
	d.mu.Unlock()
	d.changed.Emit()
	return true
}

func (d *Desk) applyOrders(seq uint64, orders []domain.OpenOrder) bool {
	d.mu.Lock()
	if seq < d.appliedSeq {
		applied := d.appliedSeq
		d.mu.Unlock()
		metrics.StaleDiscards.Add(1)
		deskLog.WithFields(logrus.Fields{"seq": seq, "applied": applied}).Debug("stale orders result discarded")
		return false
	}
	d.appliedSeq = seq
	d.orders = append([]domain.OpenOrder(nil), orders...)
	d.mu.Unlock()
	d.changed.Emit()
	return true
}
