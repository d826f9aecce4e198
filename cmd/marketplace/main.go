package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketplace/config"
	"marketplace/internal/api"
	"marketplace/internal/broker"
	"marketplace/internal/router"
	"marketplace/internal/service"
	"marketplace/internal/store"
	"marketplace/internal/transport"
	"marketplace/internal/util"
	"marketplace/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting marketplace",
		zap.String("marketplace_id", cfg.Server.MarketplaceID),
		zap.Strings("sellers", cfg.Saga.SellerEndpoints))

	if cfg.Observ.JaegerEndpoint != "" {
		tp, err := util.InitTracer("marketplace", cfg.Observ.JaegerEndpoint)
		if err != nil {
			log.Fatalf("Failed to initialize tracer: %v", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				logger.Error("Error shutting down tracer", zap.Error(err))
			}
		}()
	}

	metrics := util.NewMetrics(prometheus.DefaultRegisterer)

	var client transport.Client = transport.NewTCPClient(cfg.Saga.SendTimeout, cfg.Saga.CallTimeout)
	if cfg.Breaker.Enabled {
		client = transport.NewBreaker(client, cfg.Breaker.MaxFailures, cfg.Breaker.OpenTimeout)
		logger.Info("Seller circuit breaker enabled",
			zap.Uint32("max_failures", cfg.Breaker.MaxFailures),
			zap.Duration("open_timeout", cfg.Breaker.OpenTimeout))
	}

	sellerRouter, err := router.New(cfg.Saga.SellerEndpoints)
	if err != nil {
		log.Fatalf("Failed to build seller router: %v", err)
	}

	sellers := service.NewSellerClient(client, cfg.Saga.CallTimeout, metrics)
	coordinator := service.NewSagaCoordinator(sellerRouter, sellers, service.CoordinatorConfig{
		MaxConcurrency: cfg.Saga.MaxConcurrency,
		OrderTimeout:   cfg.Saga.OrderTimeout,
	})

	var (
		recorder service.ReconciliationRecorder
		cases    api.CaseLister
	)
	if cfg.Database.URL != "" {
		db, err := store.NewStore(cfg.Database.URL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
		if err := db.EnsureSchema(context.Background()); err != nil {
			log.Fatalf("Failed to prepare database: %v", err)
		}
		recorder, cases = db, db
		logger.Info("Reconciliation store connected")
	}

	var publisher service.OutcomePublisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrderEvents)
		defer producer.Close()
		publisher = broker.NewEventPublisher(producer)
		logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicOrderEvents))
	}

	orderService := service.NewOrderService(coordinator, publisher, recorder, metrics, service.OrderServiceConfig{
		MarketplaceID: cfg.Server.MarketplaceID,
		MaxOrderItems: cfg.Saga.MaxOrderItems,
	})
	healthChecker := service.NewHealthChecker(cfg.Saga.SellerEndpoints, sellers)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var orderWorker *worker.OrderWorker
	if len(cfg.Kafka.Brokers) > 0 {
		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrderRequests, cfg.Kafka.ConsumerGroup)
		orderWorker = worker.NewOrderWorker(consumer, orderService)
		go func() {
			if err := orderWorker.Start(workerCtx); err != nil {
				logger.Error("Order worker error", zap.Error(err))
			}
		}()
	}

	if cfg.Simulation.Orders > 0 {
		sim := worker.NewSimulator(orderService, worker.SimulatorConfig{
			Orders:   cfg.Simulation.Orders,
			Interval: cfg.Simulation.Interval,
			Products: cfg.Simulation.Products,
		})
		go func() {
			if err := sim.Run(workerCtx); err != nil && workerCtx.Err() == nil {
				logger.Error("Simulation error", zap.Error(err))
			}
		}()
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	handler := api.NewHandler(orderService, healthChecker, cases)
	handler.SetupRoutes(engine)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: engine,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down marketplace")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if orderWorker != nil {
		_ = orderWorker.Stop()
	}

	stats := orderService.Stats()
	logger.Info("Marketplace exited",
		zap.Int64("total_orders", stats.Total),
		zap.Int64("completed", stats.Completed),
		zap.Int64("failed", stats.Failed),
		zap.Int64("inconsistent", stats.Inconsistent))
}
