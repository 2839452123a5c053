package enums

import "fmt"

// OrderStatus tracks fulfillment of an order materialized from a payment.
type OrderStatus string

const (
	OrderStatusPending          OrderStatus = "PENDING"
	OrderStatusProcessing       OrderStatus = "PROCESSING"
	OrderStatusOnHold           OrderStatus = "ON_HOLD"
	OrderStatusShipped          OrderStatus = "SHIPPED"
	OrderStatusPartiallyShipped OrderStatus = "PARTIALLY_SHIPPED"
	OrderStatusDelivered        OrderStatus = "DELIVERED"
	OrderStatusCancelled        OrderStatus = "CANCELLED"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusOnHold,
	OrderStatusShipped,
	OrderStatusPartiallyShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending: {OrderStatusProcessing, OrderStatusOnHold, OrderStatusCancelled},
	OrderStatusProcessing: {
		OrderStatusShipped,
		OrderStatusPartiallyShipped,
		OrderStatusDelivered,
		OrderStatusOnHold,
		OrderStatusCancelled,
	},
	OrderStatusOnHold:           {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusShipped:          {OrderStatusDelivered},
	OrderStatusPartiallyShipped: {OrderStatusDelivered},
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

// IsTerminal reports whether the order can no longer change.
func (o OrderStatus) IsTerminal() bool {
	return o == OrderStatusDelivered || o == OrderStatusCancelled
}

// CanTransitionTo reports whether o -> next is a permitted order transition.
func (o OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, candidate := range orderTransitions[o] {
		if candidate == next {
			return true
		}
	}
	return false
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
