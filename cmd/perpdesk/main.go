package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/betbot/perpdesk/internal/desk"
	"github.com/betbot/perpdesk/internal/domain"
	"github.com/betbot/perpdesk/internal/gateway"
	"github.com/betbot/perpdesk/internal/metrics"
	"github.com/betbot/perpdesk/internal/stream"
	"github.com/betbot/perpdesk/internal/ui"
	"github.com/betbot/perpdesk/pkg/config"
	"github.com/betbot/perpdesk/pkg/logger"
	"github.com/betbot/perpdesk/pkg/shutdown"
)

func main() {
	// .env 可选，不存在时直接使用真实环境变量
	_ = godotenv.Load()

	configPath := flag.String("config", "", "配置文件路径（支持 .yaml, .yml, .json）")
	baseURL := flag.String("base-url", "", "覆盖 gateway.base_url")
	logLevel := flag.String("log-level", "", "覆盖日志级别 (debug/info/warn/error)")
	noConfirm := flag.Bool("no-confirm", false, "下单前不再确认")
	flag.Parse()

	path := *configPath
	if path == "" {
		// 未指定时尝试默认位置，都不存在则只用环境变量和默认值
		if p, ok := firstExistingFile("yml/perpdesk.yaml", "yml/perpdesk.yml"); ok {
			path = p
		}
	}
	// 命令行参数在校验前覆盖，文件里的错误值可以被参数纠正
	cfg, err := config.LoadFromFileWithOptions(path, config.LoadOptions{
		Overrides: func(c *config.Config) {
			if *baseURL != "" {
				c.Gateway.BaseURL = *baseURL
			}
			if *logLevel != "" {
				c.LogLevel = *logLevel
			}
			if *noConfirm {
				c.Trading.ConfirmOrders = false
			}
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 终端归 TUI 所有，日志只写文件
	if err := logger.Init(logger.Config{
		Level:          cfg.LogLevel,
		OutputFile:     cfg.LogFile,
		MaxSize:        50,
		MaxBackups:     3,
		MaxAge:         7,
		DisableConsole: true,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	logrus.Infof("perpdesk 启动: config=%q base_url=%s confirm=%v stream=%v", path, cfg.Gateway.BaseURL, cfg.Trading.ConfirmOrders, cfg.UI.MarketStream)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownMgr := shutdown.NewManager()

	if cfg.DebugAddr != "" {
		if _, err := metrics.StartAsync(ctx, cfg.DebugAddr); err != nil {
			logrus.Warnf("调试服务启动失败: %v", err)
		}
	}

	gw := gateway.New(cfg.Gateway)
	go logCoinCatalog(ctx, gw)
	d := desk.New(gw, desk.Options{
		DefaultLeverage:       cfg.Trading.DefaultLeverage,
		CancelClosedAsSuccess: cfg.Trading.CancelClosedAsSuccess,
	})

	uiOpts := ui.Options{
		ConfirmOrders:   cfg.Trading.ConfirmOrders,
		RefreshInterval: cfg.UI.RefreshInterval,
	}

	if cfg.UI.MarketStream {
		if ms := startMarketStream(ctx, cfg, d); ms != nil {
			uiOpts.OnInstrumentSelected = func(inst domain.Instrument) {
				if err := ms.Subscribe(inst); err != nil {
					logrus.Warnf("切换行情订阅失败: %s: %v", inst, err)
				}
			}
			shutdownMgr.OnShutdown("market_stream", func(context.Context) error {
				ms.Stop()
				return nil
			})
		}
	}

	program := tea.NewProgram(ui.New(ctx, d, uiOpts), tea.WithAltScreen(), tea.WithContext(ctx))

	go func() {
		<-ctx.Done()
		program.Quit()
	}()

	if _, err := program.Run(); err != nil && ctx.Err() == nil {
		logrus.Errorf("界面异常退出: %v", err)
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	shutdownMgr.Shutdown(shutdownCtx)

	logrus.Info("perpdesk 已退出")
	_ = logger.Close()
}

func firstExistingFile(paths ...string) (string, bool) {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p, true
		}
	}
	return "", false
}

// startMarketStream 行情推送是增强项，连不上只记录日志，界面仍靠轮询同步
func startMarketStream(ctx context.Context, cfg *config.Config, d *desk.Desk) *stream.MarketStream {
	wsURL, err := stream.WSURLFromBase(cfg.Gateway.BaseURL)
	if err != nil {
		logrus.Warnf("无法推导行情推送地址: %v", err)
		return nil
	}
	header := http.Header{}
	if cfg.Gateway.APIToken != "" {
		header.Set("Authorization", "Bearer "+cfg.Gateway.APIToken)
	}
	ms := stream.NewMarketStream(stream.Config{URL: wsURL, Header: header}, d)
	if err := ms.Start(ctx); err != nil {
		logrus.Warnf("行情推送连接失败，仅使用轮询: %v", err)
		return nil
	}
	if err := ms.Subscribe(d.View().Selected()); err != nil {
		logrus.Warnf("订阅行情失败: %v", err)
	}
	return ms
}

// logCoinCatalog 启动时探测一次远端，结果只写日志
func logCoinCatalog(ctx context.Context, gw *gateway.Client) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	coins, err := gw.ListCoins(ctx)
	if err != nil {
		logrus.Warnf("获取币种目录失败: %v", err)
		return
	}
	supported := 0
	for _, c := range coins {
		if _, err := domain.ParseInstrument(c.Symbol); err == nil {
			supported++
		}
	}
	logrus.Infof("远端币种目录: %d 个，其中可交易 %d 个", len(coins), supported)
}
