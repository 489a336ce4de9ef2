package ports

import (
	"context"

	"github.com/betbot/perpdesk/internal/domain"
)

// MarketUpdateHandler receives pushed market snapshots (serial delivery).
//
// NOTE: defined here so internal/stream does not import internal/desk.
type MarketUpdateHandler interface {
	OnMarketUpdate(ctx context.Context, snap domain.MarketSnapshot)
}
