package worker

import (
	"context"
	"errors"

	"marketplace/internal/broker"
	"marketplace/internal/models"
	"marketplace/internal/service"
	"marketplace/internal/util"

	"go.uber.org/zap"
)

// OrderPlacer runs one order through the saga. *service.OrderService implements it.
type OrderPlacer interface {
	CreateOrder(ctx context.Context, req *service.CreateOrderRequest) (*models.OrderOutcome, error)
}

// OrderWorker turns ORDER_REQUESTED events into sagas
type OrderWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	orders       OrderPlacer
	logger       *zap.Logger
}

// NewOrderWorker creates a new order worker
func NewOrderWorker(consumer *broker.Consumer, orders OrderPlacer) *OrderWorker {
	w := &OrderWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		orders:       orders,
		logger:       util.GetLogger(),
	}
	w.eventHandler.OnOrderRequested(w.handleOrderRequested)
	return w
}

// Start starts the worker
func (w *OrderWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting order worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *OrderWorker) Stop() error {
	w.logger.Info("Stopping order worker")
	return w.consumer.Close()
}

func (w *OrderWorker) handleOrderRequested(ctx context.Context, event *models.OrderRequestedEvent) error {
	outcome, err := w.orders.CreateOrder(ctx, &service.CreateOrderRequest{
		CustomerRef: event.CustomerRef,
		Items:       event.Items,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidOrder) {
			// redelivery cannot fix it
			w.logger.Warn("Dropping invalid order request",
				zap.String("event_id", event.EventID),
				zap.Error(err))
			return nil
		}
		return err
	}

	w.logger.Info("Order request processed",
		zap.String("event_id", event.EventID),
		zap.String("order_id", outcome.OrderID),
		zap.String("outcome", string(outcome.Outcome)))
	return nil
}
