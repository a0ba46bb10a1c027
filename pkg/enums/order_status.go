package enums

import "fmt"

// OrderStatus tracks the lifecycle of an order record.
type OrderStatus string

const (
	OrderStatusUnpaid           OrderStatus = "unpaid"
	OrderStatusAwaitingDelivery OrderStatus = "awaiting_delivery"
	OrderStatusAwaitingReceipt  OrderStatus = "awaiting_receipt"
	OrderStatusAwaitingComment  OrderStatus = "awaiting_comment"
	OrderStatusFinished         OrderStatus = "finished"
	OrderStatusCanceled         OrderStatus = "canceled"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusUnpaid,
	OrderStatusAwaitingDelivery,
	OrderStatusAwaitingReceipt,
	OrderStatusAwaitingComment,
	OrderStatusFinished,
	OrderStatusCanceled,
}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known OrderStatus.
func (s OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == s {
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
