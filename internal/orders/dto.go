package orders

import (
	"github.com/google/uuid"

	"github.com/nmtruong/fulfillment-backend/internal/cart"
	"github.com/nmtruong/fulfillment-backend/pkg/db/models"
	"github.com/nmtruong/fulfillment-backend/pkg/enums"
)

// CreateInput captures a checkout request. Lines must match the user's
// server-side cart exactly. ShippingFee is resolved by the caller from the
// chosen shipping method.
type CreateInput struct {
	UserID           uuid.UUID
	AddressID        uuid.UUID
	ShippingMethodID uuid.UUID
	Lines            []cart.Line
	PaymentMethod    enums.PaymentMethod
	CouponCode       *string
	ShippingFee      int64
	Note             *string
}

// CreateResult returns the created order plus, for gateway payments, the
// provider's redirect surfaces.
type CreateResult struct {
	Order     *models.Order
	PayURL    string
	Deeplink  string
	QRCodeURL string
}

// ActionInput carries the shared fields of a workflow action.
type ActionInput struct {
	OrderID   uuid.UUID
	ActorID   uuid.UUID
	ActorType enums.ActorType
	Note      *string
}

// PickupInput adds the courier handoff fields.
type PickupInput struct {
	ActionInput
	TrackingNumber string
	ShippedBy      string
}

// ReturnInput adds the customer-stated reason.
type ReturnInput struct {
	ActionInput
	Reason string
}

// CancelInput adds the cancellation reason.
type CancelInput struct {
	ActionInput
	Reason string
}

// Detail is the read model for a single order: the aggregate plus the
// actions currently permitted by the state machine.
type Detail struct {
	Order            *models.Order
	AvailableActions []enums.OrderAction
}
