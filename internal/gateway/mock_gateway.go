package gateway

import (
	"context"
	"strconv"
	"sync"

	"github.com/betbot/perpdesk/internal/domain"
	"github.com/betbot/perpdesk/internal/ports"
)

var _ ports.Gateway = (*MockGateway)(nil)

// MockGateway is an in-memory gateway for testing.
type MockGateway struct {
	mu sync.RWMutex

	// Response data
	Markets map[domain.Instrument]*domain.MarketSnapshot
	Orders  []domain.OpenOrder
	Coins   []domain.Coin

	// Recorded mutations
	Created   []domain.OrderRequest
	Cancelled []domain.OrderID

	// Call tracking
	Calls map[string]int

	// Error injection
	ErrorOnNext map[string]error

	// Hook runs before every call without the lock held; it may block.
	// A non-nil return fails the call with that error.
	Hook func(ctx context.Context, method string, instrument domain.Instrument) error

	nextOID int
}

// NewMockGateway creates a new mock gateway
func NewMockGateway() *MockGateway {
	return &MockGateway{
		Markets:     make(map[domain.Instrument]*domain.MarketSnapshot),
		Calls:       make(map[string]int),
		ErrorOnNext: make(map[string]error),
		nextOID:     1000,
	}
}

func (m *MockGateway) trackCall(ctx context.Context, name string, instrument domain.Instrument) error {
	m.mu.Lock()
	m.Calls[name]++
	hook := m.Hook
	m.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, name, instrument); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.ErrorOnNext[name]; ok {
		delete(m.ErrorOnNext, name)
		return err
	}
	return nil
}

// CallCount returns how many times method was called.
func (m *MockGateway) CallCount(name string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Calls[name]
}

// FailNext makes the next call of method fail with err.
func (m *MockGateway) FailNext(name string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ErrorOnNext[name] = err
}

// SetMarket sets the snapshot returned for an instrument.
func (m *MockGateway) SetMarket(snap domain.MarketSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Markets[snap.Instrument] = &snap
}

// SetOrders replaces the open order list.
func (m *MockGateway) SetOrders(orders []domain.OpenOrder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Orders = append([]domain.OpenOrder(nil), orders...)
}

// SetHook installs the per-call hook.
func (m *MockGateway) SetHook(h func(ctx context.Context, method string, instrument domain.Instrument) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Hook = h
}

// CreatedOrders returns a copy of every accepted order request.
func (m *MockGateway) CreatedOrders() []domain.OrderRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.OrderRequest(nil), m.Created...)
}

func (m *MockGateway) GetMarket(ctx context.Context, instrument domain.Instrument) (*domain.MarketSnapshot, error) {
	if err := m.trackCall(ctx, "GetMarket", instrument); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.Markets[instrument]
	if !ok {
		return nil, &domain.RemoteError{Op: opGetMarket, StatusCode: 500, Message: "no market data for " + instrument.String()}
	}
	cp := *snap
	return &cp, nil
}

func (m *MockGateway) GetOpenOrders(ctx context.Context) ([]domain.OpenOrder, error) {
	if err := m.trackCall(ctx, "GetOpenOrders", ""); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.OpenOrder{}, m.Orders...), nil
}

// CreateOrder records the request; limit orders become open orders.
func (m *MockGateway) CreateOrder(ctx context.Context, req domain.OrderRequest) error {
	if err := m.trackCall(ctx, "CreateOrder", req.Instrument); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Created = append(m.Created, req)
	if req.OrderType == domain.OrderTypeLimit {
		m.nextOID++
		side := domain.OrderSideSell
		if req.IsBuy {
			side = domain.OrderSideBuy
		}
		m.Orders = append(m.Orders, domain.OpenOrder{
			Instrument: req.Instrument,
			OrderID:    domain.OrderID(strconv.Itoa(m.nextOID)),
			Side:       side,
			Size:       req.Size,
			Price:      req.LimitPrice,
			OrderType:  req.OrderType,
			Status:     "pending",
		})
	}
	return nil
}

// CancelOrder removes the order, or rejects like the real API when it is unknown.
func (m *MockGateway) CancelOrder(ctx context.Context, instrument domain.Instrument, orderID domain.OrderID) error {
	if err := m.trackCall(ctx, "CancelOrder", instrument); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, o := range m.Orders {
		if o.OrderID == orderID && o.Instrument == instrument {
			m.Orders = append(m.Orders[:i:i], m.Orders[i+1:]...)
			m.Cancelled = append(m.Cancelled, orderID)
			return nil
		}
	}
	return &domain.RemoteError{Op: opCancelOrder, StatusCode: 200, Message: domain.MsgCancelFailed}
}

func (m *MockGateway) ListCoins(ctx context.Context) ([]domain.Coin, error) {
	if err := m.trackCall(ctx, "ListCoins", ""); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.Coin(nil), m.Coins...), nil
}
