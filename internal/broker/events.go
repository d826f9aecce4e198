package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"marketplace/internal/models"
	"marketplace/internal/util"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing order outcome events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishOutcome publishes ORDER_COMPLETED, ORDER_FAILED or ORDER_INCONSISTENT
func (ep *EventPublisher) PublishOutcome(ctx context.Context, outcome *models.OrderOutcome) error {
	event := &models.OrderOutcomeEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeFor(outcome),
			Timestamp: time.Now(),
		},
		OrderID:      outcome.OrderID,
		CustomerRef:  outcome.CustomerRef,
		Outcome:      outcome.Outcome,
		Reason:       outcome.Reason,
		Inconsistent: outcome.Inconsistent,
		Records:      outcome.Records,
	}
	return ep.producer.PublishEvent(ctx, "order-"+outcome.OrderID, event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onOrderRequested func(context.Context, *models.OrderRequestedEvent) error
	logger           *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnOrderRequested registers a handler for ORDER_REQUESTED events
func (eh *EventHandler) OnOrderRequested(handler func(context.Context, *models.OrderRequestedEvent) error) {
	eh.onOrderRequested = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeOrderRequested:
		if eh.onOrderRequested != nil {
			var event models.OrderRequestedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal OrderRequested event: %w", err)
			}
			return eh.onOrderRequested(ctx, &event)
		}

	default:
		eh.logger.Debug("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
