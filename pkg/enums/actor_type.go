package enums

import "fmt"

// ActorType identifies who performed an order transition.
type ActorType string

const (
	ActorTypeSystem         ActorType = "system"
	ActorTypeAdmin          ActorType = "admin"
	ActorTypeCustomer       ActorType = "customer"
	ActorTypeShipper        ActorType = "shipper"
	ActorTypePaymentGateway ActorType = "payment_gateway"
)

var validActorTypes = []ActorType{
	ActorTypeSystem,
	ActorTypeAdmin,
	ActorTypeCustomer,
	ActorTypeShipper,
	ActorTypePaymentGateway,
}

// String implements fmt.Stringer.
func (a ActorType) String() string {
	return string(a)
}

// IsValid reports whether the value is a known ActorType.
func (a ActorType) IsValid() bool {
	for _, candidate := range validActorTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseActorType converts raw input into an ActorType.
func ParseActorType(value string) (ActorType, error) {
	for _, candidate := range validActorTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid actor type %q", value)
}
