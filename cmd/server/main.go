package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"roofline/internal/cache"
	"roofline/internal/clock"
	"roofline/internal/config"
	"roofline/internal/infrastructure/logger"
	"roofline/internal/infrastructure/metrics"
	"roofline/internal/infrastructure/mysql"
	"roofline/internal/infrastructure/rabbitmq"
	"roofline/internal/infrastructure/redis"
	"roofline/internal/ledger"
	costctrl "roofline/internal/ledger/controller"
	"roofline/internal/lock"
	"roofline/internal/order"
	"roofline/internal/order/service"
	"roofline/internal/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	zapLogger, err := logger.New(cfg.Log.Level)
	if err != nil {
		log.Fatalf("creating logger: %v", err)
	}
	defer zapLogger.Sync()

	ctx := context.Background()
	clk := clock.SystemClock{}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	var db *sql.DB
	if cfg.Store.Driver == config.StoreDriverMySQL {
		db, err = mysql.NewConnection(ctx, cfg.Database)
		if err != nil {
			zapLogger.Fatal("connecting to database", zap.Error(err))
		}
		defer db.Close()
		zapLogger.Info("database connected", zap.String("host", cfg.Database.Host), zap.String("name", cfg.Database.Name))
	} else {
		zapLogger.Warn("using in-memory store, data is lost on restart")
	}

	var (
		resultCache service.ResultCache = cache.NewMemoryCache(cfg.Cache.Freshness, clk)
		locker      lock.Locker
	)
	if cfg.Redis.Enabled() {
		client, err := redis.NewClient(cfg.Redis)
		if err != nil {
			zapLogger.Fatal("connecting to redis", zap.Error(err))
		}
		defer client.Close()
		resultCache = cache.NewRedisCache(client, cfg.Cache.Freshness, clk, zapLogger)
		locker = lock.NewRedisLocker(client)
		zapLogger.Info("redis connected", zap.String("addr", cfg.Redis.Addr))
	}

	var publisher service.EventPublisher = rabbitmq.NopPublisher{}
	if cfg.RabbitMQ.Enabled() {
		p, err := rabbitmq.NewPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, zapLogger)
		if err != nil {
			zapLogger.Fatal("connecting to rabbitmq", zap.Error(err))
		}
		defer p.Close()
		publisher = p
		zapLogger.Info("rabbitmq connected", zap.String("exchange", cfg.RabbitMQ.Exchange))
	}

	costLedger := ledger.NewModule(db, cfg, clk, m, zapLogger)

	orderModule := order.NewModule(order.Dependencies{
		DB:        db,
		Ledger:    costLedger,
		Cache:     resultCache,
		Publisher: publisher,
		Locker:    locker,
		Clock:     clk,
		Metrics:   m,
	}, cfg, zapLogger)

	costCtrl := costctrl.NewCostController(costLedger, orderModule.Tier1Configured, zapLogger)
	metricsHandler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	router := server.NewRouter(orderModule.Controller, costCtrl, metricsHandler, zapLogger)
	srv := server.New(cfg.Server.Port, cfg.Poller.CheckWaitTimeout, router, zapLogger)

	zapLogger.Info("broker configured",
		zap.Bool("liveMode", cfg.EagleView.LiveMode),
		zap.Bool("tier1Configured", orderModule.Tier1Configured),
		zap.Int("dailyOrderLimit", cfg.EagleView.DailyOrderLimit),
		zap.String("store", cfg.Store.Driver),
	)

	if err := orderModule.Sweeper.Start(ctx); err != nil {
		zapLogger.Fatal("starting status sweeper", zap.Error(err))
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := srv.Start(); err != nil {
			zapLogger.Fatal("server error", zap.Error(err))
		}
	}()

	<-quit
	zapLogger.Info("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("server shutdown failed", zap.Error(err))
	}
	if err := orderModule.Sweeper.Stop(shutdownCtx); err != nil {
		zapLogger.Error("status sweeper did not stop in time", zap.Error(err))
	}

	zapLogger.Info("server stopped gracefully")
}
