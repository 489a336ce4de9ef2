package mockapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Detail  string          `json:"detail"`
}

func newTestServer(t *testing.T, cfg Config) (*Server, *httptest.Server) {
	t.Helper()
	s := New(cfg)
	ts := httptest.NewServer(s.Router())
	t.Cleanup(func() {
		ts.Close()
		_ = s.Close()
	})
	return s, ts
}

func do(t *testing.T, method, url, body string) (int, envelope) {
	t.Helper()
	var rd *bytes.Reader
	if body != "" {
		rd = bytes.NewReader([]byte(body))
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func TestServer_MarketAndCoins(t *testing.T) {
	_, ts := newTestServer(t, Config{})

	code, env := do(t, http.MethodGet, ts.URL+"/api/market/eth", "")
	require.Equal(t, http.StatusOK, code)
	require.True(t, env.Success)
	var m marketWire
	require.NoError(t, json.Unmarshal(env.Data, &m))
	assert.Equal(t, "ETH", m.Coin)
	assert.Greater(t, m.Ask, m.Bid)
	assert.NotContains(t, m.Timestamp, "Z")

	code, env = do(t, http.MethodGet, ts.URL+"/api/market/DOGE", "")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Contains(t, env.Detail, "DOGE")

	code, env = do(t, http.MethodGet, ts.URL+"/api/coins", "")
	require.Equal(t, http.StatusOK, code)
	var coins []map[string]string
	require.NoError(t, json.Unmarshal(env.Data, &coins))
	assert.Len(t, coins, 8)
}

func TestServer_OrderLifecycle(t *testing.T) {
	_, ts := newTestServer(t, Config{})

	code, env := do(t, http.MethodPost, ts.URL+"/api/orders",
		`{"coin":"BTC","is_buy":true,"sz":0.5,"limit_px":44000,"order_type":"limit","reduce_only":false}`)
	require.Equal(t, http.StatusOK, code)
	require.True(t, env.Success)
	var placed map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &placed))
	oid := fmt.Sprintf("%.0f", placed["oid"].(float64))

	code, env = do(t, http.MethodPost, ts.URL+"/api/orders",
		`{"coin":"ETH","is_buy":false,"sz":1,"limit_px":null,"order_type":"market","reduce_only":false}`)
	require.Equal(t, http.StatusOK, code)
	require.True(t, env.Success)

	_, env = do(t, http.MethodGet, ts.URL+"/api/orders/open", "")
	var open []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &open))
	require.Len(t, open, 1, "market orders fill immediately")
	assert.Equal(t, "buy", open[0]["side"])
	assert.Equal(t, "BTC", open[0]["coin"])

	_, env = do(t, http.MethodDelete, ts.URL+"/api/orders/ETH/"+oid, "")
	assert.False(t, env.Success, "wrong instrument")

	_, env = do(t, http.MethodDelete, ts.URL+"/api/orders/BTC/"+oid, "")
	assert.True(t, env.Success)
	assert.Equal(t, "Order cancelled successfully", env.Message)

	_, env = do(t, http.MethodDelete, ts.URL+"/api/orders/BTC/"+oid, "")
	assert.False(t, env.Success)
	assert.Equal(t, "Failed to cancel order", env.Message)
}

func TestServer_RejectsBadOrders(t *testing.T) {
	_, ts := newTestServer(t, Config{})

	code, env := do(t, http.MethodPost, ts.URL+"/api/orders",
		`{"coin":"BTC","is_buy":true,"sz":1,"limit_px":null,"order_type":"limit","reduce_only":false}`)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Contains(t, env.Detail, "limit_px")

	code, _ = do(t, http.MethodPost, ts.URL+"/api/orders", `{"coin":"BTC","sz":"abc"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
}

func TestServer_UUIDOrderIDsAndFill(t *testing.T) {
	s, ts := newTestServer(t, Config{UUIDOrderIDs: true})

	_, env := do(t, http.MethodPost, ts.URL+"/api/orders",
		`{"coin":"SOL","is_buy":false,"sz":3,"limit_px":120,"order_type":"limit","reduce_only":false}`)
	var placed map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &placed))
	oid, ok := placed["oid"].(string)
	require.True(t, ok)

	assert.True(t, s.FillOrder(oid))
	assert.False(t, s.FillOrder(oid))

	_, env = do(t, http.MethodGet, ts.URL+"/api/orders/open", "")
	assert.JSONEq(t, `[]`, string(env.Data))
}

func TestServer_FaultInjection(t *testing.T) {
	s, ts := newTestServer(t, Config{})

	s.InjectFault(RouteOpenOrders, Fault{Status: http.StatusInternalServerError, Detail: "db down"})
	code, env := do(t, http.MethodGet, ts.URL+"/api/orders/open", "")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "db down", env.Detail)

	s.InjectFault(RouteOpenOrders, Fault{Reject: "nope"})
	code, env = do(t, http.MethodGet, ts.URL+"/api/orders/open", "")
	assert.Equal(t, http.StatusOK, code)
	assert.False(t, env.Success)
	assert.Equal(t, "nope", env.Message)

	code, env = do(t, http.MethodGet, ts.URL+"/api/orders/open", "")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)
	assert.Equal(t, 3, s.Hits(RouteOpenOrders))
}

func TestServer_WebsocketPush(t *testing.T) {
	_, ts := newTestServer(t, Config{PushInterval: 20 * time.Millisecond})

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(wsMessage{Type: "subscribe_market", Coin: "SOL"}))
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var msg wsMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "market_update", msg.Type)
	assert.Equal(t, "SOL", msg.Coin)
	require.NotNil(t, msg.Data)
	assert.Equal(t, "SOL", msg.Data.Coin)
}
