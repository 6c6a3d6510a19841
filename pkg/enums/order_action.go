package enums

import "fmt"

// OrderAction names a single entry in the order audit trail.
type OrderAction string

const (
	OrderActionCreated           OrderAction = "created"
	OrderActionConfirmed         OrderAction = "confirmed"
	OrderActionPickedUp          OrderAction = "picked_up"
	OrderActionDelivered         OrderAction = "delivered"
	OrderActionCustomerConfirmed OrderAction = "customer_confirmed"
	OrderActionCODCompleted      OrderAction = "cod_completed"
	OrderActionReturned          OrderAction = "returned"
	OrderActionCancelled         OrderAction = "cancelled"
	OrderActionRefunded          OrderAction = "refunded"
	OrderActionPaymentCompleted  OrderAction = "payment_completed"
	OrderActionPaymentFailed     OrderAction = "payment_failed"
	OrderActionPaymentCancelled  OrderAction = "payment_cancelled"
	OrderActionPaymentExpired    OrderAction = "payment_expired"
)

var validOrderActions = []OrderAction{
	OrderActionCreated,
	OrderActionConfirmed,
	OrderActionPickedUp,
	OrderActionDelivered,
	OrderActionCustomerConfirmed,
	OrderActionCODCompleted,
	OrderActionReturned,
	OrderActionCancelled,
	OrderActionRefunded,
	OrderActionPaymentCompleted,
	OrderActionPaymentFailed,
	OrderActionPaymentCancelled,
	OrderActionPaymentExpired,
}

// String implements fmt.Stringer.
func (a OrderAction) String() string {
	return string(a)
}

// IsValid reports whether the value is a known OrderAction.
func (a OrderAction) IsValid() bool {
	for _, candidate := range validOrderActions {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOrderAction converts raw input into an OrderAction.
func ParseOrderAction(value string) (OrderAction, error) {
	for _, candidate := range validOrderActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order action %q", value)
}
