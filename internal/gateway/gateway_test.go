package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/perpdesk/internal/domain"
	"github.com/betbot/perpdesk/internal/mockapi"
	"github.com/betbot/perpdesk/pkg/config"
)

func newStubbed(t *testing.T, cfg mockapi.Config) (*Client, *mockapi.Server) {
	t.Helper()
	srv := mockapi.New(cfg)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Close()
	})
	c := New(config.GatewayConfig{BaseURL: ts.URL + "/api", Timeout: 2 * time.Second})
	return c, srv
}

func newRaw(t *testing.T, h http.HandlerFunc, cfg config.GatewayConfig) *Client {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	cfg.BaseURL = ts.URL
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Second
	}
	return New(cfg)
}

func limitOrder(inst domain.Instrument, isBuy bool, sz, px string) domain.OrderRequest {
	return domain.OrderRequest{
		Instrument: inst,
		IsBuy:      isBuy,
		Size:       decimal.RequireFromString(sz),
		LimitPrice: decimal.NewNullDecimal(decimal.RequireFromString(px)),
		OrderType:  domain.OrderTypeLimit,
	}
}

func TestClient_GetMarket(t *testing.T) {
	c, _ := newStubbed(t, mockapi.Config{})

	snap, err := c.GetMarket(context.Background(), domain.InstrumentETH)
	require.NoError(t, err)
	assert.Equal(t, domain.InstrumentETH, snap.Instrument)
	assert.True(t, snap.Price.IsPositive())
	assert.True(t, snap.Ask.GreaterThan(snap.Bid))
	assert.False(t, snap.FetchedAt.IsZero())
}

func TestClient_GetMarketUnsupportedIsRemoteError(t *testing.T) {
	c, _ := newStubbed(t, mockapi.Config{})

	_, err := c.GetMarket(context.Background(), domain.Instrument("DOGE"))
	var re *domain.RemoteError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, http.StatusInternalServerError, re.StatusCode)
	assert.Contains(t, re.Message, "DOGE")
}

func TestClient_OrderRoundTrip(t *testing.T) {
	c, _ := newStubbed(t, mockapi.Config{})
	ctx := context.Background()

	require.NoError(t, c.CreateOrder(ctx, limitOrder(domain.InstrumentBTC, true, "0.25", "44000")))
	require.NoError(t, c.CreateOrder(ctx, domain.OrderRequest{
		Instrument: domain.InstrumentSOL,
		Size:       decimal.RequireFromString("2"),
		OrderType:  domain.OrderTypeMarket,
	}))

	orders, err := c.GetOpenOrders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	o := orders[0]
	assert.Equal(t, domain.InstrumentBTC, o.Instrument)
	assert.Equal(t, domain.OrderSideBuy, o.Side)
	assert.True(t, o.Size.Equal(decimal.RequireFromString("0.25")))
	require.True(t, o.Price.Valid)
	assert.True(t, o.Price.Decimal.Equal(decimal.NewFromInt(44000)))
	assert.NotEmpty(t, o.OrderID)

	require.NoError(t, c.CancelOrder(ctx, o.Instrument, o.OrderID))

	err = c.CancelOrder(ctx, o.Instrument, o.OrderID)
	var re *domain.RemoteError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "Failed to cancel order", re.Message)

	orders, err = c.GetOpenOrders(ctx)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestClient_StringOrderIDs(t *testing.T) {
	c, _ := newStubbed(t, mockapi.Config{UUIDOrderIDs: true})
	ctx := context.Background()

	require.NoError(t, c.CreateOrder(ctx, limitOrder(domain.InstrumentLINK, false, "10", "15.5")))
	orders, err := c.GetOpenOrders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Len(t, orders[0].OrderID.String(), 36)
	assert.Equal(t, domain.OrderSideSell, orders[0].Side)
	require.NoError(t, c.CancelOrder(ctx, domain.InstrumentLINK, orders[0].OrderID))
}

func TestClient_ErrorTaxonomy(t *testing.T) {
	c, srv := newStubbed(t, mockapi.Config{})
	ctx := context.Background()

	srv.InjectFault(mockapi.RouteCreateOrder, mockapi.Fault{Status: http.StatusInternalServerError, Detail: "Insufficient margin"})
	err := c.CreateOrder(ctx, limitOrder(domain.InstrumentBTC, true, "1", "1"))
	var re *domain.RemoteError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "Insufficient margin", re.Message)

	srv.InjectFault(mockapi.RouteOpenOrders, mockapi.Fault{Reject: "Exchange unavailable"})
	_, err = c.GetOpenOrders(ctx)
	require.True(t, errors.As(err, &re))
	assert.Equal(t, http.StatusOK, re.StatusCode)
	assert.Equal(t, "Exchange unavailable", re.Message)
}

func TestClient_NonJSONErrorHasNoMessage(t *testing.T) {
	c := newRaw(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}, config.GatewayConfig{})

	err := c.CreateOrder(context.Background(), limitOrder(domain.InstrumentBTC, true, "1", "1"))
	var re *domain.RemoteError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, http.StatusBadGateway, re.StatusCode)
	assert.Empty(t, re.Message)
}

func TestClient_TransportErrors(t *testing.T) {
	c := newRaw(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success": tru`))
	}, config.GatewayConfig{})

	_, err := c.GetOpenOrders(context.Background())
	var te *domain.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, opGetOpenOrders, te.Op)

	dead := httptest.NewServer(http.NotFoundHandler())
	url := dead.URL
	dead.Close()
	c = New(config.GatewayConfig{BaseURL: url, Timeout: time.Second})
	_, err = c.GetMarket(context.Background(), domain.InstrumentBTC)
	require.True(t, errors.As(err, &te))
}

func TestClient_HeadersAndNoRetryOnWrites(t *testing.T) {
	var gets, posts int32
	var reqID, auth atomic.Value
	c := newRaw(t, func(w http.ResponseWriter, r *http.Request) {
		reqID.Store(r.Header.Get("X-Request-ID"))
		auth.Store(r.Header.Get("Authorization"))
		if r.Method == http.MethodPost {
			atomic.AddInt32(&posts, 1)
		} else {
			atomic.AddInt32(&gets, 1)
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}, config.GatewayConfig{RetryCount: 2, APIToken: "secret"})

	err := c.CreateOrder(context.Background(), limitOrder(domain.InstrumentBTC, true, "1", "1"))
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&posts))
	assert.Len(t, reqID.Load().(string), 36)
	assert.Equal(t, "Bearer secret", auth.Load())

	_, err = c.GetOpenOrders(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&gets))
}

func TestClient_ListCoinsCached(t *testing.T) {
	c, srv := newStubbed(t, mockapi.Config{})

	coins, err := c.ListCoins(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, coins)
	assert.Equal(t, "BTC", coins[0].Symbol)

	_, err = c.ListCoins(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, srv.Hits(mockapi.RouteCoins))
}

func TestClient_RateLimitRespectsContext(t *testing.T) {
	c := newRaw(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"message":"ok","data":[]}`))
	}, config.GatewayConfig{RateLimit: 1})

	_, err := c.GetOpenOrders(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.GetOpenOrders(ctx)
	var te *domain.TransportError
	require.True(t, errors.As(err, &te))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_OrderWritesHaveTheirOwnBucket(t *testing.T) {
	srv := mockapi.New(mockapi.Config{})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Close()
	})
	c := New(config.GatewayConfig{BaseURL: ts.URL + "/api", Timeout: 2 * time.Second, RateLimit: 1})

	_, err := c.GetOpenOrders(context.Background())
	require.NoError(t, err)

	// 读令牌已耗尽，下单仍能立即发出
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, c.CreateOrder(ctx, limitOrder(domain.InstrumentBTC, true, "0.01", "50000")))

	_, err = c.GetOpenOrders(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
