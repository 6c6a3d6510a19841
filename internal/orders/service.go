package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nmtruong/fulfillment-backend/internal/auditlog"
	"github.com/nmtruong/fulfillment-backend/internal/payments"
	"github.com/nmtruong/fulfillment-backend/pkg/db/models"
	"github.com/nmtruong/fulfillment-backend/pkg/enums"
	pkgerrors "github.com/nmtruong/fulfillment-backend/pkg/errors"
	"github.com/nmtruong/fulfillment-backend/pkg/logger"
	"github.com/nmtruong/fulfillment-backend/pkg/momo"
	"github.com/nmtruong/fulfillment-backend/pkg/pagination"
)

// Service drives an order through its lifecycle. Every mutating operation
// locks the order row, evaluates its guard, and commits the order, payment,
// inventory, and audit writes as one transaction.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*CreateResult, error)
	Confirm(ctx context.Context, input ActionInput) error
	Pickup(ctx context.Context, input PickupInput) error
	Deliver(ctx context.Context, input ActionInput) error
	CustomerConfirm(ctx context.Context, input ActionInput) error
	CompleteCODPayment(ctx context.Context, input ActionInput) error
	Return(ctx context.Context, input ReturnInput) error
	Cancel(ctx context.Context, input CancelInput) error
	GetDetail(ctx context.Context, orderID uuid.UUID) (*Detail, error)
	ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Order, string, error)
	ListEvents(ctx context.Context, orderID uuid.UUID, params pagination.Params) ([]models.OrderLogEvent, string, error)
}

// ServiceParams bundles the orchestrator's dependencies.
type ServiceParams struct {
	DB           *gorm.DB
	Repo         Repository
	Payments     payments.Repository
	Tx           TxRunner
	Stock        StockLedger
	Carts        CartVerifier
	Gateway      Gateway
	Audit        auditlog.Recorder
	Discounts    DiscountCalculator
	Clock        Clock
	Logger       *logger.Logger
	ReturnWindow time.Duration
}

type service struct {
	db           *gorm.DB
	repo         Repository
	payments     payments.Repository
	tx           TxRunner
	stock        StockLedger
	carts        CartVerifier
	gateway      Gateway
	audit        auditRecorder
	discounts    DiscountCalculator
	clock        Clock
	logg         *logger.Logger
	returnWindow time.Duration
}

// NewService builds the order lifecycle service.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.DB == nil:
		return nil, fmt.Errorf("database handle required")
	case params.Repo == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Payments == nil:
		return nil, fmt.Errorf("payments repository required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Stock == nil:
		return nil, fmt.Errorf("stock ledger required")
	case params.Carts == nil:
		return nil, fmt.Errorf("cart verifier required")
	case params.Gateway == nil:
		return nil, fmt.Errorf("payment gateway required")
	case params.Audit == nil:
		return nil, fmt.Errorf("audit recorder required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	if params.Discounts == nil {
		params.Discounts = NoDiscount()
	}
	if params.Clock == nil {
		params.Clock = SystemClock()
	}
	if params.ReturnWindow <= 0 {
		params.ReturnWindow = 7 * 24 * time.Hour
	}
	return &service{
		db:           params.DB,
		repo:         params.Repo,
		payments:     params.Payments,
		tx:           params.Tx,
		stock:        params.Stock,
		carts:        params.Carts,
		gateway:      params.Gateway,
		audit:        params.Audit,
		discounts:    params.Discounts,
		clock:        params.Clock,
		logg:         params.Logger,
		returnWindow: params.ReturnWindow,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*CreateResult, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if input.AddressID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "address id required")
	}
	if input.ShippingMethodID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping method id required")
	}
	if len(input.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order needs at least one line")
	}
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown payment method")
	}
	if input.ShippingFee < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping fee cannot be negative")
	}

	var result CreateResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.carts.Verify(ctx, tx, input.UserID, input.Lines); err != nil {
			return err
		}

		var subtotal int64
		lineItems := make([]models.OrderLineItem, 0, len(input.Lines))
		for _, line := range input.Lines {
			product, err := s.stock.FindProduct(ctx, tx, line.ProductID)
			if err != nil {
				return err
			}
			if err := s.stock.Decrement(ctx, tx, line.ProductID, line.Qty); err != nil {
				return err
			}
			lineTotal := product.Price * int64(line.Qty)
			subtotal += lineTotal
			lineItems = append(lineItems, models.OrderLineItem{
				ID:          uuid.New(),
				ProductID:   product.ID,
				ProductName: product.Name,
				Qty:         line.Qty,
				UnitPrice:   product.Price,
				LineTotal:   lineTotal,
			})
		}

		var discount int64
		if input.CouponCode != nil && *input.CouponCode != "" {
			var err error
			discount, err = s.discounts.Discount(ctx, *input.CouponCode, subtotal)
			if err != nil {
				return err
			}
			if discount < 0 || discount > subtotal {
				return pkgerrors.New(pkgerrors.CodeValidation, "discount out of range")
			}
		}
		total := subtotal - discount + input.ShippingFee

		now := s.clock.Now().UTC()
		order := &models.Order{
			ID:               uuid.New(),
			UserID:           input.UserID,
			AddressID:        input.AddressID,
			ShippingMethodID: input.ShippingMethodID,
			Status:           enums.OrderStatusPendingConfirmation,
			Subtotal:         subtotal,
			DiscountAmount:   discount,
			ShippingFee:      input.ShippingFee,
			TotalAmount:      total,
			CouponCode:       input.CouponCode,
			Note:             input.Note,
			OrderedDate:      now,
		}
		repo := s.repo.WithTx(tx)
		if err := repo.Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		for i := range lineItems {
			lineItems[i].OrderID = order.ID
		}
		if err := repo.CreateLineItems(ctx, lineItems); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create line items")
		}
		order.Items = lineItems

		payment := &models.Payment{
			ID:      uuid.New(),
			OrderID: order.ID,
			Method:  input.PaymentMethod,
			Status:  enums.PaymentStatusPending,
			Amount:  total,
		}
		if input.PaymentMethod.IsPrepaid() {
			ref := gatewayOrderRef(payment.ID)
			payment.GatewayOrderRef = &ref
			intent, err := s.gateway.CreatePayment(ctx, momo.CreatePaymentParams{
				OrderRef:  ref,
				RequestID: uuid.NewString(),
				Amount:    total,
				OrderInfo: "Order " + order.ID.String(),
			})
			if err != nil {
				return err
			}
			if raw, err := json.Marshal(intent); err == nil {
				payment.GatewayResponseRaw = raw
			}
			result.PayURL = intent.PayURL
			result.Deeplink = intent.Deeplink
			result.QRCodeURL = intent.QRCodeURL
		}
		if err := s.payments.WithTx(tx).Create(ctx, payment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment")
		}
		order.Payments = []models.Payment{*payment}

		if _, err := s.audit.Append(ctx, tx, auditlog.Entry{
			OrderID:   order.ID,
			ToStatus:  enums.OrderStatusPendingConfirmation,
			Action:    enums.OrderActionCreated,
			ActorType: enums.ActorTypeCustomer,
			ActorID:   &input.UserID,
			Note:      input.Note,
			Metadata: map[string]any{
				"line_count":   len(lineItems),
				"total_amount": total,
			},
		}); err != nil {
			return err
		}

		if err := s.carts.Clear(ctx, tx, input.UserID); err != nil {
			return err
		}

		result.Order = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithOrderID(ctx, result.Order.ID.String())
	s.logg.Info(logCtx, "order created")
	return &result, nil
}

func (s *service) Confirm(ctx context.Context, input ActionInput) error {
	return s.transition(ctx, input.OrderID, func(tx *gorm.DB, order *models.Order) error {
		if err := guardState(order, enums.OrderActionConfirmed); err != nil {
			return err
		}
		payment := order.CurrentPayment()
		if payment != nil && payment.Method.IsPrepaid() && payment.Status != enums.PaymentStatusCompleted {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "prepaid order cannot be confirmed before payment completes").
				WithDetails(map[string]any{"payment_status": payment.Status})
		}

		if err := s.repo.WithTx(tx).Update(ctx, order.ID, map[string]any{
			"status": enums.OrderStatusPendingPickup,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		return s.appendTransition(ctx, tx, order, enums.OrderStatusPendingPickup, enums.OrderActionConfirmed, input, nil)
	})
}

func (s *service) Pickup(ctx context.Context, input PickupInput) error {
	if input.TrackingNumber == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "tracking number required")
	}
	if input.ShippedBy == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "courier name required")
	}
	return s.transition(ctx, input.OrderID, func(tx *gorm.DB, order *models.Order) error {
		if err := guardState(order, enums.OrderActionPickedUp); err != nil {
			return err
		}
		now := s.clock.Now().UTC()
		if err := s.repo.WithTx(tx).Update(ctx, order.ID, map[string]any{
			"status":          enums.OrderStatusShipping,
			"shipped_date":    now,
			"tracking_number": input.TrackingNumber,
			"shipped_by":      input.ShippedBy,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		return s.appendTransition(ctx, tx, order, enums.OrderStatusShipping, enums.OrderActionPickedUp, input.ActionInput, map[string]any{
			"tracking_number": input.TrackingNumber,
			"shipped_by":      input.ShippedBy,
		})
	})
}

func (s *service) Deliver(ctx context.Context, input ActionInput) error {
	return s.transition(ctx, input.OrderID, func(tx *gorm.DB, order *models.Order) error {
		if err := guardState(order, enums.OrderActionDelivered); err != nil {
			return err
		}
		if err := s.repo.WithTx(tx).Update(ctx, order.ID, map[string]any{
			"status":         enums.OrderStatusDelivered,
			"delivered_date": s.clock.Now().UTC(),
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		return s.appendTransition(ctx, tx, order, enums.OrderStatusDelivered, enums.OrderActionDelivered, input, nil)
	})
}

func (s *service) CustomerConfirm(ctx context.Context, input ActionInput) error {
	return s.transition(ctx, input.OrderID, func(tx *gorm.DB, order *models.Order) error {
		if input.ActorID != order.UserID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the order's customer can confirm receipt")
		}
		if err := guardState(order, enums.OrderActionCustomerConfirmed); err != nil {
			return err
		}
		if err := s.repo.WithTx(tx).Update(ctx, order.ID, map[string]any{
			"status":                  enums.OrderStatusCustomerConfirmed,
			"customer_confirmed_date": s.clock.Now().UTC(),
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		input.ActorType = enums.ActorTypeCustomer
		if err := s.appendTransition(ctx, tx, order, enums.OrderStatusCustomerConfirmed, enums.OrderActionCustomerConfirmed, input, nil); err != nil {
			return err
		}

		// Receipt confirmation settles cash payments implicitly.
		payment := order.CurrentPayment()
		if payment != nil && !payment.Method.IsPrepaid() && payment.Status == enums.PaymentStatusPending {
			return s.settleCODPayment(ctx, tx, order, payment, enums.OrderStatusCustomerConfirmed, input)
		}
		return nil
	})
}

func (s *service) CompleteCODPayment(ctx context.Context, input ActionInput) error {
	return s.transition(ctx, input.OrderID, func(tx *gorm.DB, order *models.Order) error {
		if err := guardState(order, enums.OrderActionCODCompleted); err != nil {
			return err
		}
		payment := order.CurrentPayment()
		if payment == nil || payment.Method.IsPrepaid() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is not pay-on-delivery")
		}
		if payment.Status != enums.PaymentStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payment already settled").
				WithDetails(map[string]any{"payment_status": payment.Status})
		}
		return s.settleCODPayment(ctx, tx, order, payment, order.Status, input)
	})
}

func (s *service) Return(ctx context.Context, input ReturnInput) error {
	return s.transition(ctx, input.OrderID, func(tx *gorm.DB, order *models.Order) error {
		if err := guardState(order, enums.OrderActionReturned); err != nil {
			return err
		}
		if !withinReturnWindow(order, s.clock.Now(), s.returnWindow) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "return window has closed")
		}

		fromStatus := order.Status
		if err := s.repo.WithTx(tx).Update(ctx, order.ID, map[string]any{
			"status": enums.OrderStatusReturned,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		input.ActorType = deriveCompensationActor(order, input.ActorID)
		if err := s.appendTransition(ctx, tx, order, enums.OrderStatusReturned, enums.OrderActionReturned, input.ActionInput, map[string]any{
			"reason":      input.Reason,
			"from_status": fromStatus,
		}); err != nil {
			return err
		}
		return s.compensate(ctx, tx, order, enums.OrderStatusReturned, input.Reason)
	})
}

func (s *service) Cancel(ctx context.Context, input CancelInput) error {
	return s.transition(ctx, input.OrderID, func(tx *gorm.DB, order *models.Order) error {
		if err := guardState(order, enums.OrderActionCancelled); err != nil {
			return err
		}

		fromStatus := order.Status
		if err := s.repo.WithTx(tx).Update(ctx, order.ID, map[string]any{
			"status": enums.OrderStatusCancelled,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		input.ActorType = deriveCompensationActor(order, input.ActorID)
		if err := s.appendTransition(ctx, tx, order, enums.OrderStatusCancelled, enums.OrderActionCancelled, input.ActionInput, map[string]any{
			"reason":      input.Reason,
			"from_status": fromStatus,
		}); err != nil {
			return err
		}
		return s.compensate(ctx, tx, order, enums.OrderStatusCancelled, input.Reason)
	})
}

func (s *service) GetDetail(ctx context.Context, orderID uuid.UUID) (*Detail, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return &Detail{
		Order:            order,
		AvailableActions: s.availableActions(order, s.clock.Now()),
	}, nil
}

func (s *service) ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Order, string, error) {
	if userID == uuid.Nil {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	results, next, err := s.repo.ListByUser(ctx, userID, params)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return results, next, nil
}

func (s *service) ListEvents(ctx context.Context, orderID uuid.UUID, params pagination.Params) ([]models.OrderLogEvent, string, error) {
	if orderID == uuid.Nil {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	return s.audit.ListByOrder(ctx, s.db, orderID, params)
}

// transition wraps the shared shape of every workflow action: open a
// transaction, lock and load the order, run the guarded mutation.
func (s *service) transition(ctx context.Context, orderID uuid.UUID, fn func(tx *gorm.DB, order *models.Order) error) error {
	if orderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.repo.WithTx(tx).FindByIDForUpdate(ctx, orderID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		return fn(tx, order)
	})
}

func (s *service) appendTransition(ctx context.Context, tx *gorm.DB, order *models.Order, to enums.OrderStatus, action enums.OrderAction, input ActionInput, metadata map[string]any) error {
	from := order.Status
	actorType := input.ActorType
	if !actorType.IsValid() {
		actorType = enums.ActorTypeSystem
	}
	var actorID *uuid.UUID
	if input.ActorID != uuid.Nil {
		actorID = &input.ActorID
	}
	_, err := s.audit.Append(ctx, tx, auditlog.Entry{
		OrderID:    order.ID,
		FromStatus: &from,
		ToStatus:   to,
		Action:     action,
		ActorType:  actorType,
		ActorID:    actorID,
		Note:       input.Note,
		Metadata:   metadata,
	})
	if err != nil {
		return err
	}
	order.Status = to
	return nil
}

// settleCODPayment marks a cash payment completed and records the event.
func (s *service) settleCODPayment(ctx context.Context, tx *gorm.DB, order *models.Order, payment *models.Payment, orderStatus enums.OrderStatus, input ActionInput) error {
	now := s.clock.Now().UTC()
	if err := s.payments.WithTx(tx).Update(ctx, payment.ID, map[string]any{
		"status":  enums.PaymentStatusCompleted,
		"paid_at": now,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete cash payment")
	}
	payment.Status = enums.PaymentStatusCompleted
	payment.PaidAt = &now

	actorType := input.ActorType
	if !actorType.IsValid() {
		actorType = enums.ActorTypeSystem
	}
	var actorID *uuid.UUID
	if input.ActorID != uuid.Nil {
		actorID = &input.ActorID
	}
	_, err := s.audit.Append(ctx, tx, auditlog.Entry{
		OrderID:    order.ID,
		FromStatus: &orderStatus,
		ToStatus:   orderStatus,
		Action:     enums.OrderActionCODCompleted,
		ActorType:  actorType,
		ActorID:    actorID,
		Metadata:   map[string]any{"amount": payment.Amount},
	})
	return err
}

func deriveCompensationActor(order *models.Order, actorID uuid.UUID) enums.ActorType {
	if actorID == order.UserID {
		return enums.ActorTypeCustomer
	}
	return enums.ActorTypeAdmin
}

func gatewayOrderRef(paymentID uuid.UUID) string {
	return "FF-" + paymentID.String()
}

func refundOrderRef(paymentID uuid.UUID) string {
	return "RF-" + paymentID.String()
}
