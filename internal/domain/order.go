package domain

import (
	"time"

	"github.com/google/uuid"
)

// OrderSide is the direction of a simulated order.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// OrderStatus is the lifecycle state of a simulated order.
// Transitions are monotonic: Created -> Filled | Rejected. A terminal
// status never regresses.
type OrderStatus string

const (
	OrderStatusCreated  OrderStatus = "CREATED"
	OrderStatusFilled   OrderStatus = "FILLED"
	OrderStatusRejected OrderStatus = "REJECTED"
)

// IsTerminal reports whether the status permits no further transitions.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusFilled || s == OrderStatusRejected
}

// SimulatedOrder is an order accepted by the mock exchange.
type SimulatedOrder struct {
	ID             uuid.UUID
	Instrument     string
	Side           OrderSide
	RequestedPrice float64
	Size           float64
	FillPrice      float64
	Fee            float64
	Status         OrderStatus
	RejectReason   string
	Timestamp      time.Time // simulated time at creation
}

// Transition moves the order to a new status, enforcing monotonicity.
func (o *SimulatedOrder) Transition(next OrderStatus) error {
	if o.Status.IsTerminal() {
		return &OrderTransitionError{OrderID: o.ID, From: o.Status, To: next}
	}
	o.Status = next
	return nil
}
