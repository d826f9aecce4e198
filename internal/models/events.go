package models

import "time"

// Event types
const (
	EventTypeOrderRequested    = "ORDER_REQUESTED"
	EventTypeOrderCompleted    = "ORDER_COMPLETED"
	EventTypeOrderFailed       = "ORDER_FAILED"
	EventTypeOrderInconsistent = "ORDER_INCONSISTENT"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderRequestedEvent asks the marketplace to run a saga for a new order
type OrderRequestedEvent struct {
	BaseEvent
	CustomerRef string     `json:"customer_ref"`
	Items       []LineItem `json:"items"`
}

// OrderOutcomeEvent is published once a saga is terminal
type OrderOutcomeEvent struct {
	BaseEvent
	OrderID      string              `json:"order_id"`
	CustomerRef  string              `json:"customer_ref"`
	Outcome      Outcome             `json:"outcome"`
	Reason       string              `json:"reason,omitempty"`
	Inconsistent bool                `json:"inconsistent"`
	Records      []ReservationRecord `json:"records"`
}

// EventTypeFor picks the event type matching an outcome
func EventTypeFor(outcome *OrderOutcome) string {
	switch {
	case outcome.Inconsistent:
		return EventTypeOrderInconsistent
	case outcome.Outcome == OutcomeCompleted:
		return EventTypeOrderCompleted
	default:
		return EventTypeOrderFailed
	}
}
