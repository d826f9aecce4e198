package worker

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"marketplace/internal/models"
	"marketplace/internal/service"
	"marketplace/internal/util"

	"go.uber.org/zap"
)

// SimulatorConfig controls generated traffic
type SimulatorConfig struct {
	Orders      int
	Interval    time.Duration
	Products    []string
	MaxQuantity int
	Seed        int64
}

// Simulator places random orders at a fixed pace
type Simulator struct {
	orders OrderPlacer
	cfg    SimulatorConfig
	rng    *rand.Rand
	logger *zap.Logger
}

// NewSimulator creates a new order simulator
func NewSimulator(orders OrderPlacer, cfg SimulatorConfig) *Simulator {
	if cfg.MaxQuantity <= 0 {
		cfg.MaxQuantity = 3
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	return &Simulator{
		orders: orders,
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		logger: util.GetLogger().Named("simulator"),
	}
}

// Run places cfg.Orders orders, one per interval, and returns early if ctx is done
func (s *Simulator) Run(ctx context.Context) error {
	if len(s.cfg.Products) == 0 {
		return fmt.Errorf("simulator has no products")
	}

	s.logger.Info("Starting order simulation",
		zap.Int("orders", s.cfg.Orders),
		zap.Duration("interval", s.cfg.Interval),
		zap.Strings("products", s.cfg.Products))

	completed := 0
	for i := 0; i < s.cfg.Orders; i++ {
		req := s.randomRequest(i)
		outcome, err := s.orders.CreateOrder(ctx, req)
		if err != nil {
			s.logger.Warn("Simulated order rejected", zap.Error(err))
		} else if outcome.Outcome == models.OutcomeCompleted {
			completed++
		}

		if i == s.cfg.Orders-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.Interval):
		}
	}

	s.logger.Info("Order simulation finished",
		zap.Int("orders", s.cfg.Orders),
		zap.Int("completed", completed))
	return nil
}

// randomRequest picks between one and all products, each with a random quantity
func (s *Simulator) randomRequest(i int) *service.CreateOrderRequest {
	products := append([]string(nil), s.cfg.Products...)
	s.rng.Shuffle(len(products), func(a, b int) { products[a], products[b] = products[b], products[a] })

	n := 1 + s.rng.Intn(len(products))
	items := make([]models.LineItem, 0, n)
	for _, product := range products[:n] {
		items = append(items, models.LineItem{Product: product, Quantity: 1 + s.rng.Intn(s.cfg.MaxQuantity)})
	}
	return &service.CreateOrderRequest{
		CustomerRef: fmt.Sprintf("sim-customer-%d", i),
		Items:       items,
	}
}
