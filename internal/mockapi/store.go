package mockapi

import (
	"math/rand"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/betbot/perpdesk/internal/domain"
)

// 基准价格（启动时的中间价）
var basePrices = map[domain.Instrument]float64{
	domain.InstrumentBTC:   45000,
	domain.InstrumentETH:   3200,
	domain.InstrumentSOL:   100,
	domain.InstrumentAVAX:  35,
	domain.InstrumentMATIC: 0.85,
	domain.InstrumentLINK:  14.5,
}

// 币种目录（比可交易集合多，与真实接口一致）
var coinCatalog = []domain.Coin{
	{Symbol: "BTC", Name: "Bitcoin"},
	{Symbol: "ETH", Name: "Ethereum"},
	{Symbol: "SOL", Name: "Solana"},
	{Symbol: "AVAX", Name: "Avalanche"},
	{Symbol: "MATIC", Name: "Polygon"},
	{Symbol: "LINK", Name: "Chainlink"},
	{Symbol: "UNI", Name: "Uniswap"},
	{Symbol: "AAVE", Name: "Aave"},
}

type quote struct {
	price     float64
	open24h   float64
	volume24h float64
}

type storedOrder struct {
	oid       string
	numeric   bool
	seq       int64
	coin      domain.Instrument
	isBuy     bool
	size      decimal.Decimal
	price     decimal.NullDecimal
	orderType domain.OrderType
}

// store 桩服务的内存状态：行情随机游走 + 挂单表
type store struct {
	mu      sync.Mutex
	rng     *rand.Rand
	quotes  map[domain.Instrument]*quote
	orders  map[string]*storedOrder
	nextOID int64
	seq     int64
	uuidIDs bool
}

func newStore(seed int64, uuidIDs bool) *store {
	s := &store{
		rng:     rand.New(rand.NewSource(seed)),
		quotes:  make(map[domain.Instrument]*quote, len(basePrices)),
		orders:  make(map[string]*storedOrder),
		nextOID: 1000000,
		uuidIDs: uuidIDs,
	}
	for inst, px := range basePrices {
		s.quotes[inst] = &quote{price: px, open24h: px, volume24h: 100000 + s.rng.Float64()*900000}
	}
	return s
}

// tick 所有币种价格随机游走一步（±0.2%）
func (s *store) tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range s.quotes {
		q.price *= 1 + (s.rng.Float64()-0.5)*0.004
		q.volume24h += s.rng.Float64() * 1000
	}
}

func (s *store) market(inst domain.Instrument) (marketWire, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.quotes[inst]
	if !ok {
		return marketWire{}, false
	}
	return marketWire{
		Coin:      inst.String(),
		Price:     q.price,
		Bid:       q.price * 0.999,
		Ask:       q.price * 1.001,
		Change24h: (q.price - q.open24h) / q.open24h * 100,
		Volume24h: q.volume24h,
		// 与真实服务一致：不带时区的 ISO 时间
		Timestamp: time.Now().UTC().Format("2006-01-02T15:04:05.000000"),
	}, true
}

// place 限价单进入挂单表；市价单立即成交，不出现在挂单里
func (s *store) place(req domain.OrderRequest) orderWire {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	o := &storedOrder{
		seq:       s.seq,
		coin:      req.Instrument,
		isBuy:     req.IsBuy,
		size:      req.Size,
		price:     req.LimitPrice,
		orderType: req.OrderType,
	}
	if s.uuidIDs {
		o.oid = uuid.NewString()
	} else {
		s.nextOID++
		o.oid = strconv.FormatInt(s.nextOID, 10)
		o.numeric = true
	}

	status := "filled"
	if req.OrderType == domain.OrderTypeLimit {
		s.orders[o.oid] = o
		status = "pending"
	}
	return o.wire(status)
}

// cancel 返回订单是否存在并已删除
func (s *store) cancel(inst domain.Instrument, oid string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[oid]
	if !ok || o.coin != inst {
		return false
	}
	delete(s.orders, oid)
	return true
}

// fill 模拟成交：订单从挂单表消失
func (s *store) fill(oid string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[oid]; !ok {
		return false
	}
	delete(s.orders, oid)
	return true
}

func (s *store) openOrders() []orderWire {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]*storedOrder, 0, len(s.orders))
	for _, o := range s.orders {
		list = append(list, o)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].seq < list[j].seq })

	out := make([]orderWire, 0, len(list))
	for _, o := range list {
		out = append(out, o.wire("pending"))
	}
	return out
}

func (o *storedOrder) wire(status string) orderWire {
	w := orderWire{
		Coin:          o.coin.String(),
		Side:          string(domain.OrderSideSell),
		Size:          o.size.InexactFloat64(),
		OrderType:     string(o.orderType),
		Status:        status,
		RemainingSize: o.size.InexactFloat64(),
	}
	if o.isBuy {
		w.Side = string(domain.OrderSideBuy)
	}
	if o.numeric {
		n, _ := strconv.ParseInt(o.oid, 10, 64)
		w.OID = n
	} else {
		w.OID = o.oid
	}
	if o.price.Valid {
		px := o.price.Decimal.InexactFloat64()
		w.Price = &px
	}
	return w
}
