package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketplace/config"
	"marketplace/internal/ledger"
	"marketplace/internal/redisclient"
	"marketplace/internal/seller"
	"marketplace/internal/transport"
	"marketplace/internal/util"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "configs/seller-1.yaml", "path to the seller YAML config")
	flag.Parse()

	cfg, err := config.LoadSeller(*configPath)
	if err != nil {
		log.Fatalf("Failed to load seller config: %v", err)
	}

	if err := util.InitLogger(cfg.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger().Named("seller").With(zap.String("seller_id", cfg.ID))
	logger.Info("Starting seller",
		zap.String("listen", cfg.Listen),
		zap.String("backend", cfg.Backend))

	if cfg.JaegerEndpoint != "" {
		tp, err := util.InitTracer("seller-"+cfg.ID, cfg.JaegerEndpoint)
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

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	inventory, closeLedger, err := openLedger(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open ledger: %v", err)
	}
	defer closeLedger()

	metrics := util.NewMetrics(prometheus.DefaultRegisterer)
	svc := seller.NewService(cfg.ID, inventory, metrics)
	if err := svc.LogInventory(ctx); err != nil {
		logger.Warn("Failed to log inventory", zap.Error(err))
	}

	var handler transport.Handler = svc
	faults := seller.FaultConfig{
		CrashProbability:   cfg.CrashProbability,
		LostAckProbability: cfg.LostAckProbability,
		AvgLatency:         cfg.AvgLatency(),
	}
	if faults.Enabled() {
		handler = seller.NewFaultInjector(svc, faults, time.Now().UnixNano())
		logger.Info("Fault injection enabled",
			zap.Float64("crash_probability", faults.CrashProbability),
			zap.Float64("lost_ack_probability", faults.LostAckProbability),
			zap.Duration("avg_latency", faults.AvgLatency))
	}

	janitor := seller.NewJanitor(inventory, cfg.ReservationTTL, cfg.JanitorInterval, metrics)
	go janitor.Run(ctx)

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server error", zap.Error(err))
			}
		}()
		defer metricsSrv.Close()
	}

	srv, err := transport.Listen(cfg.Listen, handler)
	if err != nil {
		log.Fatalf("Failed to start seller: %v", err)
	}
	logger.Info("Seller listening", zap.String("addr", srv.Addr()))

	if err := srv.Serve(ctx); err != nil {
		logger.Error("Seller server error", zap.Error(err))
		os.Exit(1)
	}

	if err := svc.LogInventory(context.Background()); err != nil {
		logger.Warn("Failed to log inventory", zap.Error(err))
	}
	logger.Info("Seller exited")
}

// openLedger builds the configured backend and seeds it with the configured stock
func openLedger(ctx context.Context, cfg *config.SellerConfig) (ledger.Ledger, func(), error) {
	if cfg.Backend != config.BackendRedis {
		return ledger.NewMemory(cfg.Products), func() {}, nil
	}

	client, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.ID, cfg.ReservationTTL)
	if err != nil {
		return nil, nil, err
	}
	for product, total := range cfg.Products {
		if err := client.InitInventory(ctx, product, total); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
	}
	return client, func() { _ = client.Close() }, nil
}
