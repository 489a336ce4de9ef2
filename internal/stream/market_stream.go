// Package stream 订阅远端 websocket 行情推送（subscribe_market / market_update），
// 把收到的快照交给 ports.MarketUpdateHandler。推送只是同步的补充，断线自动重连。
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/betbot/perpdesk/internal/domain"
	"github.com/betbot/perpdesk/internal/ports"
)

var marketLog = logrus.WithField("component", "market_stream")

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultMaxReconnectWait = 30 * time.Second
	writeWait               = 10 * time.Second
)

// Config 推送客户端配置
type Config struct {
	URL              string
	HandshakeTimeout time.Duration
	MaxReconnectWait time.Duration
	Header           http.Header
}

type message struct {
	Type string          `json:"type"`
	Coin string          `json:"coin,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// MarketStream 行情推送客户端。同一时刻只订阅一个标的。
type MarketStream struct {
	cfg     Config
	handler ports.MarketUpdateHandler

	connMu sync.Mutex
	conn   *websocket.Conn

	subMu sync.RWMutex
	sub   domain.Instrument

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// WSURLFromBase 由 REST 基础地址推导推送地址：http(s)://host/api → ws(s)://host/api/ws
func WSURLFromBase(base string) (string, error) {
	u, err := url.Parse(strings.TrimSuffix(base, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path += "/ws"
	return u.String(), nil
}

func NewMarketStream(cfg Config, handler ports.MarketUpdateHandler) *MarketStream {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.MaxReconnectWait <= 0 {
		cfg.MaxReconnectWait = defaultMaxReconnectWait
	}
	return &MarketStream{cfg: cfg, handler: handler}
}

// Start 建立首个连接并启动读循环；首次连接失败直接返回错误
func (s *MarketStream) Start(ctx context.Context) error {
	if err := s.connect(ctx); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go s.run(ctx)
	marketLog.Infof("行情推送已连接: %s", s.cfg.URL)
	return nil
}

// Stop 关闭连接并等待读循环退出
func (s *MarketStream) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.connMu.Lock()
	if s.conn != nil {
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = s.conn.Close()
	}
	s.connMu.Unlock()
	s.wg.Wait()
}

// Subscribe 切换推送标的（重连后自动恢复）
func (s *MarketStream) Subscribe(inst domain.Instrument) error {
	s.subMu.Lock()
	s.sub = inst
	s.subMu.Unlock()
	return s.send(message{Type: "subscribe_market", Coin: inst.String()})
}

// Subscribed 当前订阅的标的
func (s *MarketStream) Subscribed() domain.Instrument {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	return s.sub
}

func (s *MarketStream) send(msg message) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("未连接")
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(msg)
}

func (s *MarketStream) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: s.cfg.HandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, s.cfg.URL, s.cfg.Header)
	if err != nil {
		return fmt.Errorf("连接失败: %w", err)
	}
	s.connMu.Lock()
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.conn = conn
	s.connMu.Unlock()

	if inst := s.Subscribed(); inst != "" {
		if err := s.send(message{Type: "subscribe_market", Coin: inst.String()}); err != nil {
			return fmt.Errorf("重新订阅失败: %w", err)
		}
	}
	return nil
}

func (s *MarketStream) run(ctx context.Context) {
	defer s.wg.Done()
	for {
		s.readLoop(ctx)
		if ctx.Err() != nil {
			return
		}
		if !s.reconnect(ctx) {
			return
		}
	}
}

func (s *MarketStream) readLoop(ctx context.Context) {
	s.connMu.Lock()
	conn := s.conn
	s.connMu.Unlock()
	if conn == nil {
		return
	}
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				marketLog.WithError(err).Warn("行情推送读取失败")
			}
			return
		}
		s.handleMessage(ctx, data)
	}
}

func (s *MarketStream) handleMessage(ctx context.Context, data []byte) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		marketLog.WithError(err).Debug("无法解析的推送消息")
		return
	}
	if msg.Type != "market_update" || len(msg.Data) == 0 {
		return
	}
	var snap domain.MarketSnapshot
	if err := json.Unmarshal(msg.Data, &snap); err != nil {
		marketLog.WithError(err).Debug("无法解析的行情数据")
		return
	}
	if snap.Instrument == "" {
		snap.Instrument = domain.Instrument(strings.ToUpper(msg.Coin))
	}
	snap.FetchedAt = time.Now()
	s.handler.OnMarketUpdate(ctx, snap)
}

// reconnect 指数退避重连，ctx 结束时返回 false
func (s *MarketStream) reconnect(ctx context.Context) bool {
	wait := time.Second
	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(wait):
		}
		if err := s.connect(ctx); err != nil {
			marketLog.WithError(err).Warnf("重连失败 (第 %d 次)", attempt)
			wait *= 2
			if wait > s.cfg.MaxReconnectWait {
				wait = s.cfg.MaxReconnectWait
			}
			continue
		}
		marketLog.Infof("行情推送已重连 (第 %d 次)", attempt)
		return true
	}
}
