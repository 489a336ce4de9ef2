package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Instrument 可交易标的（币种符号）
type Instrument string

const (
	InstrumentBTC   Instrument = "BTC"
	InstrumentETH   Instrument = "ETH"
	InstrumentSOL   Instrument = "SOL"
	InstrumentAVAX  Instrument = "AVAX"
	InstrumentMATIC Instrument = "MATIC"
	InstrumentLINK  Instrument = "LINK"
)

// SupportedInstruments 支持的标的（固定集合，顺序即 UI 展示顺序）
var SupportedInstruments = []Instrument{
	InstrumentBTC,
	InstrumentETH,
	InstrumentSOL,
	InstrumentAVAX,
	InstrumentMATIC,
	InstrumentLINK,
}

// ParseInstrument 解析标的符号（大小写不敏感），不在支持集合内返回错误
func ParseInstrument(s string) (Instrument, error) {
	sym := Instrument(strings.ToUpper(strings.TrimSpace(s)))
	if sym.IsSupported() {
		return sym, nil
	}
	return "", fmt.Errorf("unsupported instrument %q", s)
}

// IsSupported 是否在支持集合内
func (i Instrument) IsSupported() bool {
	for _, s := range SupportedInstruments {
		if s == i {
			return true
		}
	}
	return false
}

// Next 返回支持集合中的下一个（循环），step 为负时向前
func (i Instrument) Next(step int) Instrument {
	n := len(SupportedInstruments)
	idx := 0
	for k, s := range SupportedInstruments {
		if s == i {
			idx = k
			break
		}
	}
	return SupportedInstruments[((idx+step)%n+n)%n]
}

func (i Instrument) String() string { return string(i) }

// MarketSnapshot 行情快照。每次成功拉取整体替换，不做字段级合并。
type MarketSnapshot struct {
	Instrument Instrument      `json:"coin"`
	Price      decimal.Decimal `json:"price"`
	Bid        decimal.Decimal `json:"bid"`
	Ask        decimal.Decimal `json:"ask"`
	Change24h  decimal.Decimal `json:"change_24h"`
	Volume24h  decimal.Decimal `json:"volume_24h"`

	// FetchedAt 本地接收时间（远端时间戳格式不统一，不解析）
	FetchedAt time.Time `json:"-"`
}

// Spread 买卖价差
func (m MarketSnapshot) Spread() decimal.Decimal {
	return m.Ask.Sub(m.Bid)
}

// Coin 远端币种目录条目
type Coin struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}
