package orders

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nmtruong/fulfillment-backend/api/responses"
	"github.com/nmtruong/fulfillment-backend/api/validators"
	"github.com/nmtruong/fulfillment-backend/internal/cart"
	internalorders "github.com/nmtruong/fulfillment-backend/internal/orders"
	"github.com/nmtruong/fulfillment-backend/pkg/enums"
	pkgerrors "github.com/nmtruong/fulfillment-backend/pkg/errors"
	"github.com/nmtruong/fulfillment-backend/pkg/logger"
	"github.com/nmtruong/fulfillment-backend/pkg/pagination"
)

type createLineRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
}

type createRequest struct {
	UserID           string              `json:"user_id" validate:"required,uuid"`
	AddressID        string              `json:"address_id" validate:"required,uuid"`
	ShippingMethodID string              `json:"shipping_method_id" validate:"required,uuid"`
	PaymentMethod    string              `json:"payment_method" validate:"required,oneof=cash momo"`
	ShippingFee      int64               `json:"shipping_fee" validate:"min=0"`
	CouponCode       *string             `json:"coupon_code,omitempty"`
	Note             *string             `json:"note,omitempty"`
	Items            []createLineRequest `json:"items" validate:"required,min=1,dive"`
}

type actionRequest struct {
	ActorID string  `json:"actor_id" validate:"required,uuid"`
	Note    *string `json:"note,omitempty"`
}

type pickupRequest struct {
	actionRequest
	TrackingNumber string `json:"tracking_number" validate:"required"`
	ShippedBy      string `json:"shipped_by" validate:"required"`
}

type reasonRequest struct {
	actionRequest
	Reason string `json:"reason" validate:"required"`
}

// Create places an order from the caller's active cart snapshot. For
// gateway payments the provider redirect surfaces come back alongside the
// order.
func Create(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		var req createRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		userID, err := uuid.Parse(req.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id"))
			return
		}
		addressID, err := uuid.Parse(req.AddressID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid address id"))
			return
		}
		shippingMethodID, err := uuid.Parse(req.ShippingMethodID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid shipping method id"))
			return
		}
		method, err := enums.ParsePaymentMethod(req.PaymentMethod)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method"))
			return
		}

		lines := make([]cart.Line, 0, len(req.Items))
		for _, item := range req.Items {
			productID, err := uuid.Parse(item.ProductID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id"))
				return
			}
			lines = append(lines, cart.Line{ProductID: productID, Qty: item.Quantity})
		}

		result, err := svc.Create(r.Context(), internalorders.CreateInput{
			UserID:           userID,
			AddressID:        addressID,
			ShippingMethodID: shippingMethodID,
			Lines:            lines,
			PaymentMethod:    method,
			CouponCode:       req.CouponCode,
			ShippingFee:      req.ShippingFee,
			Note:             req.Note,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payload := map[string]any{"order": result.Order}
		if result.PayURL != "" {
			payload["pay_url"] = result.PayURL
			payload["deeplink"] = result.Deeplink
			payload["qr_code_url"] = result.QRCodeURL
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, payload)
	}
}

// Confirm moves a paid (or pay-on-delivery) order into the pickup queue.
func Confirm(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		input, ok := decodeAction(w, r, svc, logg, enums.ActorTypeAdmin)
		if !ok {
			return
		}
		if err := svc.Confirm(r.Context(), input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": string(enums.OrderStatusPendingPickup)})
	}
}

// Pickup records the courier handoff.
func Pickup(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req pickupRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actorID, err := uuid.Parse(req.ActorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid actor id"))
			return
		}

		input := internalorders.PickupInput{
			ActionInput: internalorders.ActionInput{
				OrderID:   orderID,
				ActorID:   actorID,
				ActorType: enums.ActorTypeAdmin,
				Note:      req.Note,
			},
			TrackingNumber: req.TrackingNumber,
			ShippedBy:      req.ShippedBy,
		}
		if err := svc.Pickup(r.Context(), input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": string(enums.OrderStatusShipping)})
	}
}

// Deliver marks the shipment as handed to the customer.
func Deliver(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		input, ok := decodeAction(w, r, svc, logg, enums.ActorTypeShipper)
		if !ok {
			return
		}
		if err := svc.Deliver(r.Context(), input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": string(enums.OrderStatusDelivered)})
	}
}

// CustomerConfirm lets the order's owner acknowledge receipt.
func CustomerConfirm(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		input, ok := decodeAction(w, r, svc, logg, enums.ActorTypeCustomer)
		if !ok {
			return
		}
		if err := svc.CustomerConfirm(r.Context(), input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": string(enums.OrderStatusCustomerConfirmed)})
	}
}

// CompleteCODPayment settles a pay-on-delivery payment collected in cash.
func CompleteCODPayment(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		input, ok := decodeAction(w, r, svc, logg, enums.ActorTypeShipper)
		if !ok {
			return
		}
		if err := svc.CompleteCODPayment(r.Context(), input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"payment_status": string(enums.PaymentStatusCompleted)})
	}
}

// Return starts the return flow: stock restoration plus refund when the
// payment was captured.
func Return(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		input, reason, ok := decodeReason(w, r, svc, logg)
		if !ok {
			return
		}
		if err := svc.Return(r.Context(), internalorders.ReturnInput{ActionInput: input, Reason: reason}); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": string(enums.OrderStatusReturned)})
	}
}

// Cancel aborts an order that has not shipped yet.
func Cancel(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		input, reason, ok := decodeReason(w, r, svc, logg)
		if !ok {
			return
		}
		if err := svc.Cancel(r.Context(), internalorders.CancelInput{ActionInput: input, Reason: reason}); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": string(enums.OrderStatusCancelled)})
	}
}

// Detail returns the order aggregate plus the actions its current state
// permits.
func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		detail, err := svc.GetDetail(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"order":             detail.Order,
			"available_actions": detail.AvailableActions,
		})
	}
}

// List pages through a user's orders, newest first.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		rawUserID := strings.TrimSpace(r.URL.Query().Get("user_id"))
		if rawUserID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "user_id is required"))
			return
		}
		userID, err := uuid.Parse(rawUserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user_id"))
			return
		}

		params, err := parsePageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, next, err := svc.ListByUser(r.Context(), userID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"orders": list, "next_cursor": next})
	}
}

// Events pages through the order's audit trail, newest first.
func Events(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := parsePageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		events, next, err := svc.ListEvents(r.Context(), orderID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"events": events, "next_cursor": next})
	}
}

func parseOrderID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	orderID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id")
	}
	return orderID, nil
}

func parsePageParams(r *http.Request) (pagination.Params, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{
		Limit:  limit,
		Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
	}, nil
}

func decodeAction(w http.ResponseWriter, r *http.Request, svc internalorders.Service, logg *logger.Logger, actorType enums.ActorType) (internalorders.ActionInput, bool) {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
		return internalorders.ActionInput{}, false
	}

	orderID, err := parseOrderID(r)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return internalorders.ActionInput{}, false
	}

	var req actionRequest
	if err := validators.DecodeJSONBody(r, &req); err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return internalorders.ActionInput{}, false
	}
	actorID, err := uuid.Parse(req.ActorID)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid actor id"))
		return internalorders.ActionInput{}, false
	}

	return internalorders.ActionInput{
		OrderID:   orderID,
		ActorID:   actorID,
		ActorType: actorType,
		Note:      req.Note,
	}, true
}

func decodeReason(w http.ResponseWriter, r *http.Request, svc internalorders.Service, logg *logger.Logger) (internalorders.ActionInput, string, bool) {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
		return internalorders.ActionInput{}, "", false
	}

	orderID, err := parseOrderID(r)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return internalorders.ActionInput{}, "", false
	}

	var req reasonRequest
	if err := validators.DecodeJSONBody(r, &req); err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return internalorders.ActionInput{}, "", false
	}
	actorID, err := uuid.Parse(req.ActorID)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid actor id"))
		return internalorders.ActionInput{}, "", false
	}

	// Actor type is derived inside the orchestrator from order ownership.
	return internalorders.ActionInput{
		OrderID: orderID,
		ActorID: actorID,
		Note:    req.Note,
	}, req.Reason, true
}
