package models

import (
	"errors"
	"fmt"
	"time"
)

// LineItem is one (product, quantity) pair of an order
type LineItem struct {
	Product  string `json:"product"`
	Quantity int    `json:"quantity"`
}

// LineItemAssignment binds a line item to the seller responsible for it
type LineItemAssignment struct {
	LineItem
	Seller string `json:"seller"`
}

// Order represents a multi-item customer order
type Order struct {
	ID          string         `json:"id"`
	CustomerRef string         `json:"customer_ref"`
	Items       map[string]int `json:"items"`
	CreatedAt   time.Time      `json:"created_at"`
	State       OrderState     `json:"state"`
}

// NewOrder creates an order in the CREATED state
func NewOrder(id, customerRef string, items []LineItem) *Order {
	o := &Order{
		ID:          id,
		CustomerRef: customerRef,
		Items:       make(map[string]int, len(items)),
		CreatedAt:   time.Now(),
		State:       OrderStateCreated,
	}
	for _, item := range items {
		o.Items[item.Product] += item.Quantity
	}
	return o
}

// LineItems returns the order's items as a slice
func (o *Order) LineItems() []LineItem {
	items := make([]LineItem, 0, len(o.Items))
	for product, qty := range o.Items {
		items = append(items, LineItem{Product: product, Quantity: qty})
	}
	return items
}

// TotalItems returns the sum of all quantities
func (o *Order) TotalItems() int {
	total := 0
	for _, qty := range o.Items {
		total += qty
	}
	return total
}

// OrderState is the coordinator view of an order
type OrderState string

// Order states
const (
	OrderStateCreated            OrderState = "CREATED"
	OrderStateReserving          OrderState = "RESERVING"
	OrderStateAllConfirmed       OrderState = "ALL_CONFIRMED"
	OrderStatePartiallyConfirmed OrderState = "PARTIALLY_CONFIRMED"
	OrderStateAnyRejected        OrderState = "ANY_REJECTED"
	OrderStateCommitting         OrderState = "COMMITTING"
	OrderStateRollingBack        OrderState = "ROLLING_BACK"
	OrderStateCompleted          OrderState = "COMPLETED"
	OrderStateFailed             OrderState = "FAILED"
)

var ErrInvalidTransition = errors.New("invalid order state transition")

var orderTransitions = map[OrderState][]OrderState{
	OrderStateCreated:            {OrderStateReserving},
	OrderStateReserving:          {OrderStateAllConfirmed, OrderStatePartiallyConfirmed, OrderStateAnyRejected},
	OrderStateAllConfirmed:       {OrderStateCommitting},
	OrderStatePartiallyConfirmed: {OrderStateRollingBack},
	OrderStateAnyRejected:        {OrderStateRollingBack},
	OrderStateCommitting:         {OrderStateCompleted, OrderStateRollingBack},
	OrderStateRollingBack:        {OrderStateFailed},
}

// IsTerminal reports whether no further transition is allowed
func (s OrderState) IsTerminal() bool {
	return s == OrderStateCompleted || s == OrderStateFailed
}

// Transition moves the order to next if the state machine allows it
func (o *Order) Transition(next OrderState) error {
	for _, allowed := range orderTransitions[o.State] {
		if allowed == next {
			o.State = next
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.State, next)
}

// ReservationStatus tracks one seller's part of an order
type ReservationStatus string

// Reservation statuses. The first four belong to the reserve phase.
const (
	ReservationPending      ReservationStatus = "PENDING"
	ReservationConfirmed    ReservationStatus = "CONFIRMED"
	ReservationRejected     ReservationStatus = "REJECTED"
	ReservationTimedOut     ReservationStatus = "TIMED_OUT"
	ReservationCommitted    ReservationStatus = "COMMITTED"
	ReservationCommitFailed ReservationStatus = "COMMIT_FAILED"
	ReservationRolledBack   ReservationStatus = "ROLLED_BACK"
)

// ReservationRecord is the coordinator-held record for one seller of one order
type ReservationRecord struct {
	Seller string            `json:"seller"`
	Items  []LineItem        `json:"items"`
	Status ReservationStatus `json:"status"`
	// Detail holds the raw reply or the communication error
	Detail string `json:"detail,omitempty"`
	// Acknowledged is false when a cancel was sent but no ROLLED_BACK reply arrived
	Acknowledged bool          `json:"acknowledged"`
	Latency      time.Duration `json:"latency_ns"`
}

// Outcome is the terminal result of a saga
type Outcome string

const (
	OutcomeCompleted Outcome = "COMPLETED"
	OutcomeFailed    Outcome = "FAILED"
)

// OrderOutcome is returned to the client once the saga is terminal
type OrderOutcome struct {
	OrderID     string     `json:"order_id"`
	CustomerRef string     `json:"customer_ref"`
	Outcome     Outcome    `json:"outcome"`
	State       OrderState `json:"state"`
	Reason      string     `json:"reason,omitempty"`
	// Inconsistent flags a partial commit that the protocol could not heal
	Inconsistent bool                `json:"inconsistent"`
	Records      []ReservationRecord `json:"records"`
	Duration     time.Duration       `json:"duration_ns"`
}

// Sellers returns the endpoints whose records have the given status
func (o *OrderOutcome) Sellers(status ReservationStatus) []string {
	var sellers []string
	for _, r := range o.Records {
		if r.Status == status {
			sellers = append(sellers, r.Seller)
		}
	}
	return sellers
}

// StockLevel is one ledger entry as seen by a seller
type StockLevel struct {
	Total    int `json:"total"`
	Reserved int `json:"reserved"`
}

// Available returns total minus reserved
func (s StockLevel) Available() int {
	return s.Total - s.Reserved
}
