package enums

import "fmt"

// PaymentMethod distinguishes how an order is settled.
type PaymentMethod string

const (
	// PaymentMethodCash is pay-on-delivery, settled physically by the shipper.
	PaymentMethodCash PaymentMethod = "cash"
	// PaymentMethodMoMo is captured electronically through the MoMo gateway.
	PaymentMethodMoMo PaymentMethod = "momo"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodCash,
	PaymentMethodMoMo,
}

// String implements fmt.Stringer.
func (m PaymentMethod) String() string {
	return string(m)
}

// IsValid reports whether the value is a known PaymentMethod.
func (m PaymentMethod) IsValid() bool {
	for _, candidate := range validPaymentMethods {
		if candidate == m {
			return true
		}
	}
	return false
}

// IsPrepaid reports whether money is captured before the order ships.
func (m PaymentMethod) IsPrepaid() bool {
	return m == PaymentMethodMoMo
}

// ParsePaymentMethod converts raw input into a PaymentMethod.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	for _, candidate := range validPaymentMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}
