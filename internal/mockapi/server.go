// Package mockapi 是远端交易接口的本地桩服务，用于开发和测试。
// 路由、响应包装和错误格式与真实服务保持一致。
package mockapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/betbot/perpdesk/internal/domain"
)

var mockLog = logrus.WithField("component", "mockapi")

// 路由名（故障注入用）
const (
	RouteMarket      = "market"
	RouteOpenOrders  = "orders_open"
	RouteCreateOrder = "orders_create"
	RouteCancelOrder = "orders_cancel"
	RouteCoins       = "coins"
)

// Config 桩服务配置
type Config struct {
	Seed         int64         // 行情随机游走种子
	PushInterval time.Duration // websocket 行情推送间隔，默认 5s
	TickInterval time.Duration // 行情后台跳动间隔，0 表示不跳动
	UUIDOrderIDs bool          // true 时订单 ID 为 uuid 字符串，否则为整数
}

// Fault 一次性故障：Status 非 0 返回该状态码和 {"detail": Detail}；
// 否则返回 200 + success=false + Reject
type Fault struct {
	Status int
	Detail string
	Reject string
	Delay  time.Duration
}

type Server struct {
	cfg   Config
	store *store

	faultsMu sync.Mutex
	faults   map[string]Fault
	hits     map[string]int

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

func New(cfg Config) *Server {
	if cfg.PushInterval <= 0 {
		cfg.PushInterval = 5 * time.Second
	}
	if cfg.Seed == 0 {
		cfg.Seed = 1
	}
	s := &Server{
		cfg:    cfg,
		store:  newStore(cfg.Seed, cfg.UUIDOrderIDs),
		faults: make(map[string]Fault),
		hits:   make(map[string]int),
	}
	s.startBackground()
	return s
}

func (s *Server) startBackground() {
	if s.cfg.TickInterval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel
	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		t := time.NewTicker(s.cfg.TickInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.store.tick()
			}
		}
	}()
}

func (s *Server) Close() error {
	if s.bgCancel != nil {
		s.bgCancel()
		s.bgWG.Wait()
	}
	return nil
}

// InjectFault 为指定路由注入一次性故障
func (s *Server) InjectFault(route string, f Fault) {
	s.faultsMu.Lock()
	defer s.faultsMu.Unlock()
	s.faults[route] = f
}

// Hits 路由被调用的次数
func (s *Server) Hits(route string) int {
	s.faultsMu.Lock()
	defer s.faultsMu.Unlock()
	return s.hits[route]
}

// FillOrder 模拟订单成交（从挂单中移除）
func (s *Server) FillOrder(oid string) bool {
	return s.store.fill(oid)
}

// Tick 手动推动一次行情
func (s *Server) Tick() {
	s.store.tick()
}

func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	api := r.Group("/api")
	api.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "perpdesk mock API is running"})
	})
	api.GET("/coins", s.route(RouteCoins, s.handleCoins))
	api.GET("/market/:coin", s.route(RouteMarket, s.handleMarket))
	api.GET("/ws", s.handleWS)

	orders := api.Group("/orders")
	orders.GET("/open", s.route(RouteOpenOrders, s.handleOpenOrders))
	orders.POST("", s.route(RouteCreateOrder, s.handleCreateOrder))
	orders.DELETE("/:coin/:oid", s.route(RouteCancelOrder, s.handleCancelOrder))

	return r
}

// route 记录调用次数并应用注入的故障
func (s *Server) route(name string, h gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.faultsMu.Lock()
		s.hits[name]++
		f, ok := s.faults[name]
		delete(s.faults, name)
		s.faultsMu.Unlock()

		if ok {
			if f.Delay > 0 {
				select {
				case <-time.After(f.Delay):
				case <-c.Request.Context().Done():
					return
				}
			}
			if f.Status != 0 {
				c.JSON(f.Status, gin.H{"detail": f.Detail})
				return
			}
			if f.Reject != "" {
				c.JSON(http.StatusOK, apiResponse{Success: false, Message: f.Reject})
				return
			}
		}
		h(c)
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		mockLog.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"request_id": c.GetHeader("X-Request-ID"),
			"elapsed":    time.Since(start),
		}).Debug("request")
	}
}

func serverError(c *gin.Context, err error) {
	c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
}

func (s *Server) handleCoins(c *gin.Context) {
	c.JSON(http.StatusOK, apiResponse{
		Success: true,
		Message: "Available coins retrieved successfully",
		Data:    coinCatalog,
	})
}

func (s *Server) handleMarket(c *gin.Context) {
	inst, err := domain.ParseInstrument(c.Param("coin"))
	if err != nil {
		serverError(c, err)
		return
	}
	m, ok := s.store.market(inst)
	if !ok {
		serverError(c, errors.New("no market data for "+inst.String()))
		return
	}
	c.JSON(http.StatusOK, apiResponse{
		Success: true,
		Message: "Market data retrieved successfully",
		Data:    m,
	})
}

func (s *Server) handleOpenOrders(c *gin.Context) {
	c.JSON(http.StatusOK, apiResponse{
		Success: true,
		Message: "Open orders retrieved successfully",
		Data:    s.store.openOrders(),
	})
}

func (s *Server) handleCreateOrder(c *gin.Context) {
	var req domain.OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}
	if err := validateOrder(req); err != nil {
		serverError(c, err)
		return
	}
	placed := s.store.place(req)
	c.JSON(http.StatusOK, apiResponse{
		Success: true,
		Message: "Order placed successfully",
		Data:    placed,
	})
}

func validateOrder(req domain.OrderRequest) error {
	if _, err := domain.ParseInstrument(req.Instrument.String()); err != nil {
		return err
	}
	if !req.Size.IsPositive() {
		return errors.New("size must be positive")
	}
	switch req.OrderType {
	case domain.OrderTypeLimit:
		if !req.LimitPrice.Valid || !req.LimitPrice.Decimal.IsPositive() {
			return errors.New("limit order requires a positive limit_px")
		}
	case domain.OrderTypeMarket:
	default:
		return errors.New("unknown order_type " + string(req.OrderType))
	}
	return nil
}

func (s *Server) handleCancelOrder(c *gin.Context) {
	inst, err := domain.ParseInstrument(c.Param("coin"))
	if err != nil {
		serverError(c, err)
		return
	}
	oid := strings.TrimSpace(c.Param("oid"))
	if s.store.cancel(inst, oid) {
		c.JSON(http.StatusOK, apiResponse{Success: true, Message: "Order cancelled successfully"})
		return
	}
	c.JSON(http.StatusOK, apiResponse{Success: false, Message: "Failed to cancel order"})
}
