package ports

import (
	"context"

	"github.com/betbot/perpdesk/internal/domain"
)

// Small capability interfaces shared across layers (desk/ui/stream).

type MarketGetter interface {
	GetMarket(ctx context.Context, instrument domain.Instrument) (*domain.MarketSnapshot, error)
}

type OpenOrderLister interface {
	GetOpenOrders(ctx context.Context) ([]domain.OpenOrder, error)
}

type OrderPlacer interface {
	CreateOrder(ctx context.Context, req domain.OrderRequest) error
}

type OrderCanceler interface {
	CancelOrder(ctx context.Context, instrument domain.Instrument, orderID domain.OrderID) error
}

// Gateway is everything the desk needs from the remote trading API.
//
// Errors are *domain.RemoteError (remote said no, message may be empty) or
// *domain.TransportError (network / decoding). Callers use errors.As.
type Gateway interface {
	MarketGetter
	OpenOrderLister
	OrderPlacer
	OrderCanceler
}
