package enums

import "fmt"

// PayMethod is the buyer-selected settlement method for an order.
type PayMethod string

const (
	PayMethodCashOnDelivery PayMethod = "cash_on_delivery"
	PayMethodAlipay         PayMethod = "alipay"
)

var validPayMethods = []PayMethod{
	PayMethodCashOnDelivery,
	PayMethodAlipay,
}

// String implements fmt.Stringer.
func (p PayMethod) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PayMethod.
func (p PayMethod) IsValid() bool {
	for _, candidate := range validPayMethods {
		if candidate == p {
			return true
		}
	}
	return false
}

// InitialOrderStatus returns the status a freshly placed order starts in.
// Cash on delivery skips the payment step.
func (p PayMethod) InitialOrderStatus() OrderStatus {
	if p == PayMethodCashOnDelivery {
		return OrderStatusAwaitingDelivery
	}
	return OrderStatusUnpaid
}

// ParsePayMethod converts raw input into a PayMethod.
func ParsePayMethod(value string) (PayMethod, error) {
	for _, candidate := range validPayMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid pay method %q", value)
}
