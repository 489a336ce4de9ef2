package domain

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	MinLeverage = 1
	MaxLeverage = 50
)

// FormField 表单字段名
type FormField string

const (
	FieldInstrument FormField = "instrument"
	FieldSide       FormField = "side"
	FieldOrderType  FormField = "orderType"
	FieldSize       FormField = "size"
	FieldPrice      FormField = "price"
	FieldLeverage   FormField = "leverage"
)

// FormFields 字段顺序（UI 焦点切换顺序）
var FormFields = []FormField{
	FieldInstrument,
	FieldSide,
	FieldOrderType,
	FieldLeverage,
	FieldSize,
	FieldPrice,
}

// OrderForm 用户正在编辑的下单参数。
// 值类型，所有修改都返回新表单，调用方决定何时替换。
type OrderForm struct {
	Instrument Instrument
	Side       Side
	OrderType  OrderType
	Size       string // 用户输入的原始字符串，提交时才校验
	Price      string // 仅限价单使用
	Leverage   int
}

// NewOrderForm 默认表单：BTC / long / limit
func NewOrderForm(leverage int) OrderForm {
	return OrderForm{
		Instrument: InstrumentBTC,
		Side:       SideLong,
		OrderType:  OrderTypeLimit,
		Leverage:   ClampLeverage(leverage),
	}
}

// ClampLeverage 杠杆限制在 [1,50]
func ClampLeverage(n int) int {
	if n < MinLeverage {
		return MinLeverage
	}
	if n > MaxLeverage {
		return MaxLeverage
	}
	return n
}

// PriceEditable 市价单价格字段不可编辑、不提交
func (f OrderForm) PriceEditable() bool {
	return f.OrderType == OrderTypeLimit
}

// WithField 只修改一个字段，非法值返回错误且表单不变
func (f OrderForm) WithField(field FormField, value string) (OrderForm, error) {
	switch field {
	case FieldInstrument:
		inst, err := ParseInstrument(value)
		if err != nil {
			return f, err
		}
		f.Instrument = inst
	case FieldSide:
		side, err := ParseSide(value)
		if err != nil {
			return f, err
		}
		f.Side = side
	case FieldOrderType:
		ot, err := ParseOrderType(value)
		if err != nil {
			return f, err
		}
		f.OrderType = ot
	case FieldSize:
		f.Size = value
	case FieldPrice:
		f.Price = value
	case FieldLeverage:
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return f, fmt.Errorf("leverage must be an integer: %q", value)
		}
		f.Leverage = ClampLeverage(n)
	default:
		return f, fmt.Errorf("unknown form field %q", field)
	}
	return f, nil
}

// ClearedAfterSubmit 下单成功后清空数量和价格，其余字段保持
func (f OrderForm) ClearedAfterSubmit() OrderForm {
	f.Size = ""
	f.Price = ""
	return f
}

// BuildOrderRequest 提交前的本地校验并生成下单请求。
// 只检查表单本身，不发起任何网络调用。
func (f OrderForm) BuildOrderRequest() (OrderRequest, error) {
	size := strings.TrimSpace(f.Size)
	price := strings.TrimSpace(f.Price)
	if size == "" || (f.OrderType == OrderTypeLimit && price == "") {
		return OrderRequest{}, &ValidationError{Reason: MsgRequiredFields}
	}

	sz, err := parsePositive(size)
	if err != nil {
		return OrderRequest{}, &ValidationError{Field: string(FieldSize), Reason: MsgInvalidSize}
	}

	req := OrderRequest{
		Instrument: f.Instrument,
		IsBuy:      f.Side.IsBuy(),
		Size:       sz,
		OrderType:  f.OrderType,
		ReduceOnly: false,
	}
	if f.OrderType == OrderTypeLimit {
		px, err := parsePositive(price)
		if err != nil {
			return OrderRequest{}, &ValidationError{Field: string(FieldPrice), Reason: MsgInvalidPrice}
		}
		req.LimitPrice = decimal.NewNullDecimal(px)
	}
	return req, nil
}

func parsePositive(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("%s is not positive", s)
	}
	return d, nil
}
