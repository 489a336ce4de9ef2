package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Side 表单方向（开多/开空）
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// ParseSide 解析表单方向
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToLower(strings.TrimSpace(s))) {
	case SideLong:
		return SideLong, nil
	case SideShort:
		return SideShort, nil
	}
	return "", fmt.Errorf("invalid side %q", s)
}

// IsBuy long 即买入
func (s Side) IsBuy() bool { return s == SideLong }

// Opposite 反向
func (s Side) Opposite() Side {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

// OrderType 订单类型
type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

// ParseOrderType 解析订单类型
func ParseOrderType(s string) (OrderType, error) {
	switch OrderType(strings.ToLower(strings.TrimSpace(s))) {
	case OrderTypeLimit:
		return OrderTypeLimit, nil
	case OrderTypeMarket:
		return OrderTypeMarket, nil
	}
	return "", fmt.Errorf("invalid order type %q", s)
}

// OrderSide 远端订单方向
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Label 展示用：buy 显示为 LONG，sell 显示为 SHORT
func (s OrderSide) Label() string {
	if s == OrderSideBuy {
		return "LONG"
	}
	return "SHORT"
}

// OrderID 远端订单 ID。远端可能返回数字或字符串，统一按字符串保存。
type OrderID string

// UnmarshalJSON 同时接受 JSON 数字和字符串
func (id *OrderID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = OrderID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("order id: %w", err)
	}
	*id = OrderID(n.String())
	return nil
}

// MarshalJSON 纯数字 ID 以数字输出，其余以字符串输出
func (id OrderID) MarshalJSON() ([]byte, error) {
	if id.isNumeric() {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id OrderID) isNumeric() bool {
	if id == "" {
		return false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (id OrderID) String() string { return string(id) }

// OpenOrder 远端报告的挂单
type OpenOrder struct {
	Instrument Instrument          `json:"coin"`
	OrderID    OrderID             `json:"oid"`
	Side       OrderSide           `json:"side"`
	Size       decimal.Decimal     `json:"size"`
	Price      decimal.NullDecimal `json:"price"`
	OrderType  OrderType           `json:"order_type"`
	Status     string              `json:"status"`
}

// ContainsOrder 列表中是否存在指定 ID 的订单
func ContainsOrder(orders []OpenOrder, id OrderID) bool {
	for _, o := range orders {
		if o.OrderID == id {
			return true
		}
	}
	return false
}

// OrderRequest 下单请求（线上格式与远端 API 一致）
type OrderRequest struct {
	Instrument Instrument
	IsBuy      bool
	Size       decimal.Decimal
	LimitPrice decimal.NullDecimal // 仅限价单有效
	OrderType  OrderType
	ReduceOnly bool
}

type orderRequestWire struct {
	Coin       Instrument   `json:"coin"`
	IsBuy      bool         `json:"is_buy"`
	Sz         json.Number  `json:"sz"`
	LimitPx    *json.Number `json:"limit_px"`
	OrderType  OrderType    `json:"order_type"`
	ReduceOnly bool         `json:"reduce_only"`
}

// MarshalJSON 数量和价格以 JSON 数字输出，市价单 limit_px 为 null
func (r OrderRequest) MarshalJSON() ([]byte, error) {
	w := orderRequestWire{
		Coin:       r.Instrument,
		IsBuy:      r.IsBuy,
		Sz:         json.Number(r.Size.String()),
		OrderType:  r.OrderType,
		ReduceOnly: r.ReduceOnly,
	}
	if r.LimitPrice.Valid {
		px := json.Number(r.LimitPrice.Decimal.String())
		w.LimitPx = &px
	}
	return json.Marshal(w)
}

// UnmarshalJSON 供测试桩服务端解析请求
func (r *OrderRequest) UnmarshalJSON(b []byte) error {
	var w orderRequestWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	size, err := decimal.NewFromString(w.Sz.String())
	if err != nil {
		return fmt.Errorf("sz: %w", err)
	}
	*r = OrderRequest{
		Instrument: w.Coin,
		IsBuy:      w.IsBuy,
		Size:       size,
		OrderType:  w.OrderType,
		ReduceOnly: w.ReduceOnly,
	}
	if w.LimitPx != nil {
		px, err := decimal.NewFromString(w.LimitPx.String())
		if err != nil {
			return fmt.Errorf("limit_px: %w", err)
		}
		r.LimitPrice = decimal.NewNullDecimal(px)
	}
	return nil
}
