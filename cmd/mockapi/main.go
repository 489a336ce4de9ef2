package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/betbot/perpdesk/internal/mockapi"
	"github.com/betbot/perpdesk/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	getenv := func(key, def string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return def
	}

	var (
		listenAddr = flag.String("listen", getenv("MOCKAPI_LISTEN", ":8001"), "HTTP listen address")
		seed       = flag.Int64("seed", 1, "random walk seed for quotes")
		tick       = flag.Duration("tick", time.Second, "quote tick interval (0 disables)")
		push       = flag.Duration("push", 5*time.Second, "websocket push interval")
		uuidIDs    = flag.Bool("uuid-ids", false, "issue uuid order ids instead of integers")
		logLevel   = flag.String("log-level", getenv("LOG_LEVEL", "info"), "log level")
	)
	flag.Parse()

	if err := logger.Init(logger.Config{Level: *logLevel}); err != nil {
		logrus.Fatalf("init logger failed: %v", err)
	}
	if *logLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := mockapi.New(mockapi.Config{
		Seed:         *seed,
		PushInterval: *push,
		TickInterval: *tick,
		UUIDOrderIDs: *uuidIDs,
	})
	defer srv.Close()

	httpSrv := &http.Server{
		Addr:              *listenAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logrus.Infof("mock trading api listening on %s (base url http://localhost%s/api)", *listenAddr, *listenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Errorf("http server error: %v", err)
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	<-stopCh

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(ctx)

	logrus.Info("mock trading api stopped")
}
