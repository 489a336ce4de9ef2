package mockapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/betbot/perpdesk/internal/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const wsWriteWait = 10 * time.Second

// wsConn 一个推送连接；同一时刻只推送最近一次订阅的币种
type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	subMu     sync.Mutex
	subCancel context.CancelFunc
}

func (w *wsConn) writeJSON(v any) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return w.conn.WriteJSON(v)
}

func (s *Server) handleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		mockLog.WithError(err).Warn("websocket upgrade failed")
		return
	}
	wc := &wsConn{conn: conn}
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		wc.subMu.Lock()
		if wc.subCancel != nil {
			wc.subCancel()
		}
		wc.subMu.Unlock()
		_ = conn.Close()
	}()

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				mockLog.WithError(err).Debug("websocket read")
			}
			return
		}
		switch msg.Type {
		case "subscribe_market":
			inst, err := domain.ParseInstrument(msg.Coin)
			if err != nil {
				inst = domain.InstrumentBTC
			}
			s.subscribeMarket(ctx, wc, inst)
		default:
			mockLog.Debugf("unknown websocket message type %q", msg.Type)
		}
	}
}

func (s *Server) subscribeMarket(parent context.Context, wc *wsConn, inst domain.Instrument) {
	ctx, cancel := context.WithCancel(parent)

	wc.subMu.Lock()
	if wc.subCancel != nil {
		wc.subCancel()
	}
	wc.subCancel = cancel
	wc.subMu.Unlock()

	go func() {
		t := time.NewTicker(s.cfg.PushInterval)
		defer t.Stop()
		for {
			m, ok := s.store.market(inst)
			if !ok {
				return
			}
			if err := wc.writeJSON(wsMessage{Type: "market_update", Coin: inst.String(), Data: &m}); err != nil {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
		}
	}()
}
