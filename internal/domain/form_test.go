package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderForm_WithFieldLeavesOriginalUntouched(t *testing.T) {
	f := NewOrderForm(1)
	g, err := f.WithField(FieldSide, "SHORT")
	require.NoError(t, err)
	assert.Equal(t, SideShort, g.Side)
	assert.Equal(t, SideLong, f.Side)

	h, err := g.WithField(FieldLeverage, "abc")
	require.Error(t, err)
	assert.Equal(t, g, h)
}

func TestOrderForm_LeverageClamp(t *testing.T) {
	f := NewOrderForm(77)
	assert.Equal(t, MaxLeverage, f.Leverage)
	assert.Equal(t, MinLeverage, NewOrderForm(0).Leverage)
	assert.Equal(t, 25, NewOrderForm(25).Leverage)

	g, err := f.WithField(FieldLeverage, " 12 ")
	require.NoError(t, err)
	assert.Equal(t, 12, g.Leverage)
}

func TestOrderForm_ClearedAfterSubmit(t *testing.T) {
	f := OrderForm{Instrument: InstrumentAVAX, Side: SideShort, OrderType: OrderTypeLimit, Size: "1", Price: "2", Leverage: 9}
	g := f.ClearedAfterSubmit()
	assert.Equal(t, OrderForm{Instrument: InstrumentAVAX, Side: SideShort, OrderType: OrderTypeLimit, Leverage: 9}, g)
}

func TestOrderForm_BuildOrderRequest(t *testing.T) {
	cases := []struct {
		name   string
		form   OrderForm
		reason string
	}{
		{"empty size", OrderForm{OrderType: OrderTypeLimit, Price: "1"}, MsgRequiredFields},
		{"limit without price", OrderForm{OrderType: OrderTypeLimit, Size: "1"}, MsgRequiredFields},
		{"whitespace size", OrderForm{OrderType: OrderTypeMarket, Size: "  "}, MsgRequiredFields},
		{"size not a number", OrderForm{OrderType: OrderTypeMarket, Size: "1e"}, MsgInvalidSize},
		{"negative size", OrderForm{OrderType: OrderTypeMarket, Size: "-0.1"}, MsgInvalidSize},
		{"zero price", OrderForm{OrderType: OrderTypeLimit, Size: "1", Price: "0.000"}, MsgInvalidPrice},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.form.BuildOrderRequest()
			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tc.reason, ve.Reason)
		})
	}

	market := OrderForm{Instrument: InstrumentETH, Side: SideShort, OrderType: OrderTypeMarket, Size: "2.5", Price: "garbage", Leverage: 3}
	req, err := market.BuildOrderRequest()
	require.NoError(t, err, "price is ignored for market orders")
	assert.False(t, req.IsBuy)
	assert.False(t, req.LimitPrice.Valid)
	assert.True(t, req.Size.Equal(decimal.RequireFromString("2.5")))
}

func TestOrderRequest_WireFormat(t *testing.T) {
	limit := OrderForm{Instrument: InstrumentBTC, Side: SideLong, OrderType: OrderTypeLimit, Size: "0.5", Price: "50000", Leverage: 5}
	req, err := limit.BuildOrderRequest()
	require.NoError(t, err)
	b, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"coin":"BTC","is_buy":true,"sz":0.5,"limit_px":50000,"order_type":"limit","reduce_only":false}`, string(b))

	market := OrderForm{Instrument: InstrumentSOL, Side: SideShort, OrderType: OrderTypeMarket, Size: "3"}
	req, err = market.BuildOrderRequest()
	require.NoError(t, err)
	b, err = json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"coin":"SOL","is_buy":false,"sz":3,"limit_px":null,"order_type":"market","reduce_only":false}`, string(b))

	var back OrderRequest
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, InstrumentSOL, back.Instrument)
	assert.False(t, back.LimitPrice.Valid)
}

func TestOpenOrder_AcceptsNumericAndStringIDs(t *testing.T) {
	var orders []OpenOrder
	err := json.Unmarshal([]byte(`[
		{"coin":"BTC","oid":1234567,"side":"buy","size":0.5,"price":50000,"order_type":"limit","status":"pending"},
		{"coin":"ETH","oid":"9b2f-uuid","side":"sell","size":"2","price":null,"order_type":"market","status":"pending"}
	]`), &orders)
	require.NoError(t, err)
	require.Len(t, orders, 2)

	assert.Equal(t, OrderID("1234567"), orders[0].OrderID)
	assert.Equal(t, "LONG", orders[0].Side.Label())
	assert.True(t, orders[0].Price.Valid)
	assert.Equal(t, OrderID("9b2f-uuid"), orders[1].OrderID)
	assert.Equal(t, "SHORT", orders[1].Side.Label())
	assert.False(t, orders[1].Price.Valid)

	b, err := json.Marshal(orders[0].OrderID)
	require.NoError(t, err)
	assert.Equal(t, "1234567", string(b))
	b, err = json.Marshal(orders[1].OrderID)
	require.NoError(t, err)
	assert.Equal(t, `"9b2f-uuid"`, string(b))
}

func TestInstrument(t *testing.T) {
	inst, err := ParseInstrument(" matic ")
	require.NoError(t, err)
	assert.Equal(t, InstrumentMATIC, inst)

	_, err = ParseInstrument("DOGE")
	assert.Error(t, err)

	assert.Equal(t, InstrumentETH, InstrumentBTC.Next(1))
	assert.Equal(t, InstrumentLINK, InstrumentBTC.Next(-1))
	assert.Equal(t, InstrumentBTC, InstrumentLINK.Next(1))
}
