package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BarBuddy-CapStone/BarBuddy-BE-sub003/internal/api"
	"github.com/BarBuddy-CapStone/BarBuddy-BE-sub003/internal/api/handler"
	apimiddleware "github.com/BarBuddy-CapStone/BarBuddy-BE-sub003/internal/api/middleware"
	"github.com/BarBuddy-CapStone/BarBuddy-BE-sub003/internal/application"
	"github.com/BarBuddy-CapStone/BarBuddy-BE-sub003/internal/config"
	"github.com/BarBuddy-CapStone/BarBuddy-BE-sub003/internal/hub"
	"github.com/BarBuddy-CapStone/BarBuddy-BE-sub003/internal/infrastructure/kafka"
	"github.com/BarBuddy-CapStone/BarBuddy-BE-sub003/internal/infrastructure/memory"
	"github.com/BarBuddy-CapStone/BarBuddy-BE-sub003/internal/infrastructure/postgres"
	redisinfra "github.com/BarBuddy-CapStone/BarBuddy-BE-sub003/internal/infrastructure/redis"
	"github.com/BarBuddy-CapStone/BarBuddy-BE-sub003/internal/pkg/logger"
	"github.com/BarBuddy-CapStone/BarBuddy-BE-sub003/internal/pkg/metrics"
	"github.com/BarBuddy-CapStone/BarBuddy-BE-sub003/internal/worker"
)

func main() {
	defer logger.Sync()

	cfg := config.Load()
	m := metrics.Init()

	// PostgreSQL
	db, err := postgres.NewConnection(&cfg.Database)
	if err != nil {
		logger.Error("DB接続に失敗", zap.Error(err))
		os.Exit(1)
	}
	defer db.Close()

	migrationsPath := os.Getenv("MIGRATIONS_PATH")
	if migrationsPath == "" {
		migrationsPath = "migrations"
	}
	if err := postgres.RunMigrations(db.DB, migrationsPath); err != nil {
		logger.Error("マイグレーションに失敗", zap.Error(err))
		os.Exit(1)
	}

	// Redis（スナップショットキャッシュ用、接続不可でも起動は続行）
	var cache *redisinfra.AvailabilityCache
	redisClient := redisinfra.NewClient(&cfg.Redis)
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
	if err := redisinfra.Ping(pingCtx, redisClient); err != nil {
		logger.Warn("Redis接続に失敗（キャッシュなしで継続）", zap.Error(err))
		redisClient.Close()
	} else {
		cache = redisinfra.NewAvailabilityCache(redisClient)
		defer redisClient.Close()
	}
	pingCancel()

	// コアコンポーネント
	store := memory.NewHoldStore(cfg.Hold.TTL)
	eventHub := hub.NewHub(cfg.Hold.SubscriberBuffer, m)
	bookingRepo := postgres.NewBookingRepository(db)

	service := application.NewReservationService(
		store, bookingRepo, eventHub, cache, m, cfg.Hold.FinalizeTimeout,
	)

	// 期限切れ掃除ワーカー
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	sweeper := worker.NewHoldSweeper(store, eventHub, cfg.Hold.SweepInterval, m)
	go sweeper.Start(rootCtx)

	// Kafka中継（設定がある場合のみ）
	var relay *kafka.EventRelay
	if cfg.Kafka.Enabled() {
		relay = kafka.NewEventRelay(&cfg.Kafka, eventHub)
		go relay.Start(rootCtx)
		logger.Info("Kafkaイベント中継を開始",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic),
		)
	}

	// Echo セットアップ
	e := echo.New()
	e.HideBanner = true
	e.Validator = api.NewValidator()
	e.HTTPErrorHandler = api.CustomHTTPErrorHandler
	apimiddleware.SetupMiddleware(e)
	e.Use(apimiddleware.PrometheusMiddleware(m))

	holdHandler := handler.NewHoldHandler(service)
	bookingHandler := handler.NewBookingHandler(service)
	eventsHandler := handler.NewEventsHandler(eventHub)
	healthHandler := handler.NewHealthHandler()

	v1 := e.Group("/api/v1")
	v1.GET("/health", healthHandler.Check)
	v1.POST("/holds", holdHandler.Create)
	v1.DELETE("/holds", holdHandler.Release)
	v1.GET("/branches/:branch_id/holds", holdHandler.ListHeld)
	v1.GET("/branches/:branch_id/availability", holdHandler.Availability)
	v1.GET("/branches/:branch_id/events", eventsHandler.Stream)
	v1.POST("/bookings", bookingHandler.Finalize)
	v1.GET("/bookings", bookingHandler.GetHolderBookings)
	v1.GET("/bookings/:id", bookingHandler.GetByID)
	v1.POST("/bookings/:id/cancel", bookingHandler.Cancel)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()), apimiddleware.MetricsBasicAuth())

	// サーバー起動
	go func() {
		logger.Info("サーバーを起動", zap.String("port", cfg.Server.Port))
		if err := e.Start(":" + cfg.Server.Port); err != nil && err != http.ErrServerClosed {
			logger.Error("サーバー起動エラー", zap.Error(err))
			os.Exit(1)
		}
	}()

	// シグナル待機
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("サーバーをシャットダウンしています...")

	// 新規リクエストの受付を止めてから、ワーカーとハブを畳む
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("サーバーシャットダウンエラー", zap.Error(err))
	}

	sweeper.Stop()
	if relay != nil {
		relay.Stop()
	}
	eventHub.Close()
	rootCancel()

	logger.Info("サーバーが正常にシャットダウンしました")
}
