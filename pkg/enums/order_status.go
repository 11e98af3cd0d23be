package enums

import "fmt"

// OrderStatus is the fulfillment state of an order.
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "pending"
	OrderStatusConfirmed       OrderStatus = "confirmed"
	OrderStatusProcessing      OrderStatus = "processing"
	OrderStatusShipped         OrderStatus = "shipped"
	OrderStatusDelivered       OrderStatus = "delivered"
	OrderStatusCompleted       OrderStatus = "completed"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusRefundRequested OrderStatus = "refund_requested"
	OrderStatusRefunded        OrderStatus = "refunded"
	OrderStatusDisputed        OrderStatus = "disputed"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCompleted,
	OrderStatusCancelled,
	OrderStatusRefundRequested,
	OrderStatusRefunded,
	OrderStatusDisputed,
}

// orderTransitions is the legal transition graph. Every status mutation must
// consult it; anything absent is an illegal edge.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:         {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed:       {OrderStatusProcessing, OrderStatusShipped, OrderStatusCancelled},
	OrderStatusProcessing:      {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:         {OrderStatusDelivered, OrderStatusRefundRequested, OrderStatusDisputed},
	OrderStatusDelivered:       {OrderStatusCompleted, OrderStatusRefundRequested, OrderStatusDisputed},
	OrderStatusCompleted:       {OrderStatusRefundRequested, OrderStatusDisputed},
	OrderStatusRefundRequested: {OrderStatusRefunded, OrderStatusCompleted},
	OrderStatusRefunded:        {},
	OrderStatusCancelled:       {},
	OrderStatusDisputed:        {},
}

// String implements fmt.Stringer.
func (o OrderStatus) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OrderStatus.
func (o OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == o {
			return true
		}
	}
	return false
}

// CanTransitionTo reports whether the edge from the receiver to target exists
// in the order state machine.
func (o OrderStatus) CanTransitionTo(target OrderStatus) bool {
	for _, candidate := range orderTransitions[o] {
		if candidate == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions leave this status.
func (o OrderStatus) IsTerminal() bool {
	return len(orderTransitions[o]) == 0
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
