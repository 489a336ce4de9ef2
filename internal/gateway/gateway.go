// Package gateway talks to the remote trading API over HTTP+JSON.
//
// Every call returns typed results or one of two error kinds:
// *domain.RemoteError when the remote answered but rejected the request, and
// *domain.TransportError when no usable answer arrived.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/betbot/perpdesk/internal/domain"
	"github.com/betbot/perpdesk/internal/metrics"
	"github.com/betbot/perpdesk/internal/ports"
	"github.com/betbot/perpdesk/pkg/cache"
	"github.com/betbot/perpdesk/pkg/config"
	"github.com/betbot/perpdesk/pkg/ratelimit"
	sdkhttp "github.com/betbot/perpdesk/pkg/sdk/http"
)

var gatewayLog = logrus.WithField("component", "gateway")

const (
	opGetMarket     = "get_market"
	opGetOpenOrders = "get_open_orders"
	opCreateOrder   = "create_order"
	opCancelOrder   = "cancel_order"
	opListCoins     = "list_coins"

	coinCatalogTTL = 10 * time.Minute
)

var _ ports.Gateway = (*Client)(nil)

// envelope is the remote API's response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Client is the HTTP implementation of ports.Gateway.
type Client struct {
	http    *sdkhttp.Client
	limiter *ratelimit.RateLimitManager
	token   string
	coins   *cache.InMemoryCache[string, []domain.Coin]
}

// New builds a client from gateway configuration.
//
// With a positive rate limit, order writes draw from their own bucket so
// that background polling can never starve order entry.
func New(cfg config.GatewayConfig) *Client {
	limiter := ratelimit.NewRateLimitManager(cfg.RateLimit)
	if cfg.RateLimit > 0 {
		writes := ratelimit.PerSecond(cfg.RateLimit)
		limiter.SetLimiter(opCreateOrder, writes)
		limiter.SetLimiter(opCancelOrder, writes)
	}
	return &Client{
		http: sdkhttp.NewClient(sdkhttp.Options{
			BaseURL:    cfg.BaseURL,
			Timeout:    cfg.Timeout,
			RetryCount: cfg.RetryCount,
			UserAgent:  "perpdesk/1.0",
		}),
		limiter: limiter,
		token:   cfg.APIToken,
		coins:   cache.NewInMemoryCache[string, []domain.Coin](coinCatalogTTL),
	}
}

// GetMarket fetches the current snapshot for one instrument.
func (c *Client) GetMarket(ctx context.Context, instrument domain.Instrument) (*domain.MarketSnapshot, error) {
	path := "/market/" + url.PathEscape(instrument.String())
	env, err := c.call(ctx, opGetMarket, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, &domain.TransportError{Op: opGetMarket, Err: errors.New("response has no market data")}
	}

	var snap domain.MarketSnapshot
	if err := json.Unmarshal(env.Data, &snap); err != nil {
		return nil, &domain.TransportError{Op: opGetMarket, Err: errors.Wrap(err, "decode market data")}
	}
	if snap.Instrument == "" || strings.EqualFold(snap.Instrument.String(), instrument.String()) {
		snap.Instrument = instrument
	}
	snap.FetchedAt = time.Now()
	return &snap, nil
}

// GetOpenOrders fetches every open order across instruments.
func (c *Client) GetOpenOrders(ctx context.Context) ([]domain.OpenOrder, error) {
	env, err := c.call(ctx, opGetOpenOrders, http.MethodGet, "/orders/open", nil)
	if err != nil {
		return nil, err
	}
	orders := []domain.OpenOrder{}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return orders, nil
	}
	if err := json.Unmarshal(env.Data, &orders); err != nil {
		return nil, &domain.TransportError{Op: opGetOpenOrders, Err: errors.Wrap(err, "decode open orders")}
	}
	return orders, nil
}

// CreateOrder submits one order. It is never retried.
func (c *Client) CreateOrder(ctx context.Context, req domain.OrderRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return &domain.TransportError{Op: opCreateOrder, Err: errors.Wrap(err, "encode order")}
	}
	_, err = c.call(ctx, opCreateOrder, http.MethodPost, "/orders", body)
	return err
}

// CancelOrder cancels one order by instrument and id.
func (c *Client) CancelOrder(ctx context.Context, instrument domain.Instrument, orderID domain.OrderID) error {
	path := fmt.Sprintf("/orders/%s/%s", url.PathEscape(instrument.String()), url.PathEscape(orderID.String()))
	_, err := c.call(ctx, opCancelOrder, http.MethodDelete, path, nil)
	return err
}

// ListCoins returns the remote coin catalog, cached for a few minutes.
func (c *Client) ListCoins(ctx context.Context) ([]domain.Coin, error) {
	if coins, ok := c.coins.Get("all"); ok {
		return coins, nil
	}
	env, err := c.call(ctx, opListCoins, http.MethodGet, "/coins", nil)
	if err != nil {
		return nil, err
	}
	var coins []domain.Coin
	if err := json.Unmarshal(env.Data, &coins); err != nil {
		return nil, &domain.TransportError{Op: opListCoins, Err: errors.Wrap(err, "decode coins")}
	}
	c.coins.Set("all", coins, 0)
	return coins, nil
}

// call performs one request and maps the outcome onto the error taxonomy.
func (c *Client) call(ctx context.Context, op, method, path string, body []byte) (env *envelope, err error) {
	defer func() { metrics.ObserveGatewayCall(op, err) }()

	if err := c.limiter.Wait(ctx, op); err != nil {
		return nil, &domain.TransportError{Op: op, Err: errors.Wrap(err, "rate limit wait")}
	}

	reqID := uuid.NewString()
	opts := &sdkhttp.RequestOptions{
		Headers: map[string]string{"X-Request-ID": reqID},
	}
	if c.token != "" {
		opts.Headers["Authorization"] = "Bearer " + c.token
	}
	if body != nil {
		opts.Data = body
	}

	entry := gatewayLog.WithFields(logrus.Fields{"op": op, "request_id": reqID})
	start := time.Now()
	resp, err := c.http.DoRequest(ctx, method, path, opts)
	if err != nil {
		entry.WithError(err).Warn("request failed")
		return nil, &domain.TransportError{Op: op, Err: err}
	}
	entry = entry.WithFields(logrus.Fields{"status": resp.StatusCode(), "elapsed": time.Since(start)})

	if herr := sdkhttp.ParseHTTPError(resp, nil); herr != nil {
		var httpErr *sdkhttp.HTTPError
		if errors.As(herr, &httpErr) {
			entry.Warnf("non-2xx response: %s", httpErr.Detail())
			return nil, &domain.RemoteError{Op: op, StatusCode: httpErr.StatusCode, Message: httpErr.Detail()}
		}
		return nil, &domain.TransportError{Op: op, Err: herr}
	}

	env = &envelope{}
	if err := json.Unmarshal(resp.Body(), env); err != nil {
		entry.WithError(err).Warn("undecodable response")
		return nil, &domain.TransportError{Op: op, Err: errors.Wrap(err, "decode envelope")}
	}
	if !env.Success {
		entry.Warnf("remote rejected: %s", env.Message)
		return nil, &domain.RemoteError{Op: op, StatusCode: resp.StatusCode(), Message: env.Message}
	}
	entry.Debug("ok")
	return env, nil
}
