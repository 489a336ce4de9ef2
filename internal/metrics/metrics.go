package metrics

import "expvar"

// 网关调用按 op 计数
var (
	GatewayCalls  = expvar.NewMap("gateway_calls")
	GatewayErrors = expvar.NewMap("gateway_errors")
)

var (
	SyncCycles       = expvar.NewInt("sync_cycles")
	SyncFailures     = expvar.NewInt("sync_failures")
	StaleDiscards    = expvar.NewInt("sync_stale_discards")
	OrdersPlaced     = expvar.NewInt("orders_placed")
	OrdersCancelled  = expvar.NewInt("orders_cancelled")
	MarketPushes     = expvar.NewInt("market_pushes")
	MarketPushIgnore = expvar.NewInt("market_pushes_ignored")
)

// ObserveGatewayCall 记录一次网关调用；err 非空时同时计入错误
func ObserveGatewayCall(op string, err error) {
	GatewayCalls.Add(op, 1)
	if err != nil {
		GatewayErrors.Add(op, 1)
	}
}
