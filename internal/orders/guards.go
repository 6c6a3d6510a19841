package orders

import (
	"time"

	"github.com/nmtruong/fulfillment-backend/pkg/db/models"
	"github.com/nmtruong/fulfillment-backend/pkg/enums"
	pkgerrors "github.com/nmtruong/fulfillment-backend/pkg/errors"
)

// allowedFrom is the transition table. An action invoked from any other
// state fails before anything is written.
var allowedFrom = map[enums.OrderAction][]enums.OrderStatus{
	enums.OrderActionConfirmed:         {enums.OrderStatusPendingConfirmation},
	enums.OrderActionPickedUp:          {enums.OrderStatusPendingPickup},
	enums.OrderActionDelivered:         {enums.OrderStatusShipping},
	enums.OrderActionCustomerConfirmed: {enums.OrderStatusDelivered},
	enums.OrderActionCODCompleted:      {enums.OrderStatusDelivered},
	enums.OrderActionReturned: {
		enums.OrderStatusShipping,
		enums.OrderStatusDelivered,
		enums.OrderStatusCustomerConfirmed,
	},
	enums.OrderActionCancelled: {
		enums.OrderStatusPendingConfirmation,
		enums.OrderStatusPendingPickup,
	},
}

func guardState(order *models.Order, action enums.OrderAction) error {
	for _, status := range allowedFrom[action] {
		if order.Status == status {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict, string(action)+" not allowed from "+order.Status.String()).
		WithDetails(map[string]any{"order_id": order.ID, "status": order.Status})
}

// withinReturnWindow reports whether a return is still permitted. The
// window starts at delivery; an order still in transit has no delivery
// date yet and stays returnable.
func withinReturnWindow(order *models.Order, now time.Time, window time.Duration) bool {
	if order.DeliveredDate == nil {
		return true
	}
	return !now.After(order.DeliveredDate.Add(window))
}

// availableActions lists what the state machine currently permits. The
// same predicates guard the mutating operations, so this read model never
// advertises an action that would be rejected.
func (s *service) availableActions(order *models.Order, now time.Time) []enums.OrderAction {
	payment := order.CurrentPayment()

	var actions []enums.OrderAction
	switch order.Status {
	case enums.OrderStatusPendingConfirmation:
		if payment == nil || !payment.Method.IsPrepaid() || payment.Status == enums.PaymentStatusCompleted {
			actions = append(actions, enums.OrderActionConfirmed)
		}
		actions = append(actions, enums.OrderActionCancelled)
	case enums.OrderStatusPendingPickup:
		actions = append(actions, enums.OrderActionPickedUp, enums.OrderActionCancelled)
	case enums.OrderStatusShipping:
		actions = append(actions, enums.OrderActionDelivered)
		if withinReturnWindow(order, now, s.returnWindow) {
			actions = append(actions, enums.OrderActionReturned)
		}
	case enums.OrderStatusDelivered:
		actions = append(actions, enums.OrderActionCustomerConfirmed)
		if payment != nil && !payment.Method.IsPrepaid() && payment.Status == enums.PaymentStatusPending {
			actions = append(actions, enums.OrderActionCODCompleted)
		}
		if withinReturnWindow(order, now, s.returnWindow) {
			actions = append(actions, enums.OrderActionReturned)
		}
	case enums.OrderStatusCustomerConfirmed:
		if withinReturnWindow(order, now, s.returnWindow) {
			actions = append(actions, enums.OrderActionReturned)
		}
	}
	return actions
}
