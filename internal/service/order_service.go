package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"marketplace/internal/models"
	"marketplace/internal/protocol"
	"marketplace/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrInvalidOrder = errors.New("invalid order")

// OutcomePublisher announces terminal orders, e.g. on Kafka
type OutcomePublisher interface {
	PublishOutcome(ctx context.Context, outcome *models.OrderOutcome) error
}

// ReconciliationRecorder keeps partial commits for an operator to resolve
type ReconciliationRecorder interface {
	RecordInconsistency(ctx context.Context, outcome *models.OrderOutcome) error
}

// OrderServiceConfig holds order intake settings
type OrderServiceConfig struct {
	MarketplaceID string
	MaxOrderItems int
}

// OrderService validates incoming orders and runs them through the saga
type OrderService struct {
	coordinator *SagaCoordinator
	publisher   OutcomePublisher
	recorder    ReconciliationRecorder
	metrics     MetricsSink
	cfg         OrderServiceConfig
	logger      *zap.Logger
}

// NewOrderService creates a new order service. publisher and recorder may be nil.
func NewOrderService(
	coordinator *SagaCoordinator,
	publisher OutcomePublisher,
	recorder ReconciliationRecorder,
	metrics MetricsSink,
	cfg OrderServiceConfig,
) *OrderService {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if cfg.MarketplaceID == "" {
		cfg.MarketplaceID = "MP-DEFAULT"
	}
	if id := SanitizeMarketplaceID(cfg.MarketplaceID); id != cfg.MarketplaceID {
		util.GetLogger().Warn("Marketplace id contains protocol delimiters, replacing them",
			zap.String("configured", cfg.MarketplaceID),
			zap.String("used", id))
		cfg.MarketplaceID = id
	}
	if cfg.MaxOrderItems <= 0 {
		cfg.MaxOrderItems = 50
	}
	return &OrderService{
		coordinator: coordinator,
		publisher:   publisher,
		recorder:    recorder,
		metrics:     metrics,
		cfg:         cfg,
		logger:      util.GetLogger(),
	}
}

// CreateOrderRequest represents a request to place an order
type CreateOrderRequest struct {
	CustomerRef string            `json:"customer_ref"`
	Items       []models.LineItem `json:"items" binding:"required,min=1"`
}

// CreateOrder validates req and runs the saga to completion. Only validation
// errors are returned; seller failures are part of the outcome.
func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*models.OrderOutcome, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder")
	defer span.End()

	if err := s.Validate(req); err != nil {
		s.logger.Warn("Order rejected", zap.Error(err))
		return nil, err
	}

	order := models.NewOrder(s.NewOrderID(), req.CustomerRef, req.Items)
	s.logger.Info("Order created",
		zap.String("order_id", order.ID),
		zap.String("customer_ref", order.CustomerRef),
		zap.Int("items", order.TotalItems()))

	outcome := s.coordinator.PlaceOrder(ctx, order)
	s.metrics.ObserveOrder(outcome)

	if s.publisher != nil {
		if err := s.publisher.PublishOutcome(ctx, outcome); err != nil {
			s.logger.Error("Failed to publish order outcome",
				zap.String("order_id", outcome.OrderID),
				zap.Error(err))
		}
	}

	if outcome.Inconsistent && s.recorder != nil {
		if err := s.recorder.RecordInconsistency(ctx, outcome); err != nil {
			s.logger.Error("Failed to record reconciliation case",
				zap.String("order_id", outcome.OrderID),
				zap.Error(err))
		}
	}

	stats := s.metrics.Snapshot()
	s.logger.Info("Order statistics",
		zap.Int64("total", stats.Total),
		zap.Int64("completed", stats.Completed),
		zap.Int64("failed", stats.Failed),
		zap.Int64("inconsistent", stats.Inconsistent),
		zap.Float64("avg_latency_ms", stats.AvgLatencyMs))

	return outcome, nil
}

// Validate checks an order before any seller is contacted
func (s *OrderService) Validate(req *CreateOrderRequest) error {
	if req == nil || len(req.Items) == 0 {
		return fmt.Errorf("%w: order has no line items", ErrInvalidOrder)
	}

	total := 0
	for _, item := range req.Items {
		if !protocol.ValidProductName(item.Product) {
			return fmt.Errorf("%w: bad product name %q", ErrInvalidOrder, item.Product)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: quantity for %s must be positive", ErrInvalidOrder, item.Product)
		}
		total += item.Quantity
	}

	if total > s.cfg.MaxOrderItems {
		return fmt.Errorf("%w: %d items exceeds the limit of %d", ErrInvalidOrder, total, s.cfg.MaxOrderItems)
	}
	return nil
}

// SanitizeMarketplaceID replaces characters that would break the seller protocol,
// since the marketplace id is embedded in every order id
func SanitizeMarketplaceID(id string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(":;\n\r", r) {
			return '-'
		}
		return r
	}, id)
}

// NewOrderID returns <marketplaceId>-<unixMillis>-<8 hex chars>
func (s *OrderService) NewOrderID() string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return fmt.Sprintf("%s-%d-%s", s.cfg.MarketplaceID, time.Now().UnixMilli(), suffix)
}

// Stats returns the running order statistics
func (s *OrderService) Stats() util.Stats {
	return s.metrics.Snapshot()
}
