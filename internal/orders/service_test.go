package orders

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/nmtruong/fulfillment-backend/internal/auditlog"
	"github.com/nmtruong/fulfillment-backend/internal/cart"
	"github.com/nmtruong/fulfillment-backend/internal/inventory"
	"github.com/nmtruong/fulfillment-backend/internal/payments"
	"github.com/nmtruong/fulfillment-backend/pkg/db/models"
	"github.com/nmtruong/fulfillment-backend/pkg/enums"
	pkgerrors "github.com/nmtruong/fulfillment-backend/pkg/errors"
	"github.com/nmtruong/fulfillment-backend/pkg/logger"
	"github.com/nmtruong/fulfillment-backend/pkg/momo"
)

func setupOrdersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	statements := []string{
		`CREATE TABLE IF NOT EXISTS products (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  price INTEGER NOT NULL,
  is_active INTEGER NOT NULL DEFAULT 1,
  stock INTEGER NOT NULL DEFAULT 0,
  sold_count INTEGER NOT NULL DEFAULT 0,
  min_stock_threshold INTEGER NOT NULL DEFAULT 0,
  stock_tier TEXT NOT NULL DEFAULT 'out_of_stock',
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS cart_items (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  qty INTEGER NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  address_id TEXT NOT NULL,
  shipping_method_id TEXT NOT NULL,
  status TEXT NOT NULL,
  subtotal INTEGER NOT NULL,
  discount_amount INTEGER NOT NULL DEFAULT 0,
  shipping_fee INTEGER NOT NULL DEFAULT 0,
  total_amount INTEGER NOT NULL,
  coupon_code TEXT,
  note TEXT,
  tracking_number TEXT,
  shipped_by TEXT,
  ordered_date DATETIME NOT NULL,
  shipped_date DATETIME,
  delivered_date DATETIME,
  customer_confirmed_date DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS order_line_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  product_name TEXT NOT NULL,
  qty INTEGER NOT NULL,
  unit_price INTEGER NOT NULL,
  line_total INTEGER NOT NULL,
  created_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS payments (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  method TEXT NOT NULL,
  status TEXT NOT NULL,
  amount INTEGER NOT NULL,
  gateway_order_ref TEXT UNIQUE,
  external_transaction_id TEXT,
  refund_of_id TEXT,
  paid_at DATETIME,
  gateway_response_raw TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS order_log_events (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  from_status TEXT,
  to_status TEXT NOT NULL,
  action TEXT NOT NULL,
  actor_type TEXT NOT NULL,
  actor_id TEXT,
  note TEXT,
  metadata TEXT,
  created_at DATETIME
);`,
	}
	for _, stmt := range statements {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

type dbTxRunner struct {
	db *gorm.DB
}

func (r dbTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

type stubGateway struct {
	createCalls []momo.CreatePaymentParams
	createErr   error
	refundCalls []momo.RefundParams
	refundErr   error
}

func (s *stubGateway) CreatePayment(_ context.Context, params momo.CreatePaymentParams) (*momo.CreatePaymentResult, error) {
	s.createCalls = append(s.createCalls, params)
	if s.createErr != nil {
		return nil, s.createErr
	}
	return &momo.CreatePaymentResult{
		OrderRef:   params.OrderRef,
		RequestID:  params.RequestID,
		Amount:     params.Amount,
		PayURL:     "https://pay.example/" + params.OrderRef,
		Deeplink:   "momo://" + params.OrderRef,
		QRCodeURL:  "https://qr.example/" + params.OrderRef,
		ResultCode: momo.ResultCodeSuccess,
	}, nil
}

func (s *stubGateway) Refund(_ context.Context, params momo.RefundParams) (*momo.RefundResult, error) {
	s.refundCalls = append(s.refundCalls, params)
	if s.refundErr != nil {
		return nil, s.refundErr
	}
	return &momo.RefundResult{
		OrderRef:   params.OrderRef,
		RequestID:  params.RequestID,
		Amount:     params.Amount,
		TransID:    555_001,
		ResultCode: momo.ResultCodeSuccess,
	}, nil
}

type fixture struct {
	db      *gorm.DB
	svc     Service
	gateway *stubGateway
	clock   *fakeClock
	userID  uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := setupOrdersTestDB(t)
	gateway := &stubGateway{}
	clock := &fakeClock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	svc, err := NewService(ServiceParams{
		DB:           db,
		Repo:         NewRepository(db),
		Payments:     payments.NewRepository(db),
		Tx:           dbTxRunner{db: db},
		Stock:        inventory.NewLedger(),
		Carts:        cart.NewVerifier(),
		Gateway:      gateway,
		Audit:        auditlog.NewRecorder(),
		Clock:        clock,
		Logger:       logg,
		ReturnWindow: 7 * 24 * time.Hour,
	})
	require.NoError(t, err)

	return &fixture{
		db:      db,
		svc:     svc,
		gateway: gateway,
		clock:   clock,
		userID:  uuid.New(),
	}
}

func (f *fixture) seedProduct(t *testing.T, price int64, stock int) *models.Product {
	t.Helper()

	product := &models.Product{
		ID:        uuid.New(),
		Name:      "Product " + uuid.NewString()[:8],
		Price:     price,
		IsActive:  true,
		Stock:     stock,
		StockTier: enums.StockTierFor(stock, 0),
	}
	require.NoError(t, f.db.Create(product).Error)
	return product
}

func (f *fixture) seedCart(t *testing.T, lines []cart.Line) {
	t.Helper()

	for _, line := range lines {
		require.NoError(t, f.db.Create(&models.CartItem{
			ID:        uuid.New(),
			UserID:    f.userID,
			ProductID: line.ProductID,
			Qty:       line.Qty,
		}).Error)
	}
}

func (f *fixture) createOrder(t *testing.T, method enums.PaymentMethod, lines []cart.Line, shippingFee int64) *models.Order {
	t.Helper()

	f.seedCart(t, lines)
	result, err := f.svc.Create(context.Background(), CreateInput{
		UserID:           f.userID,
		AddressID:        uuid.New(),
		ShippingMethodID: uuid.New(),
		Lines:            lines,
		PaymentMethod:    method,
		ShippingFee:      shippingFee,
	})
	require.NoError(t, err)
	return result.Order
}

func (f *fixture) productStock(t *testing.T, id uuid.UUID) int {
	t.Helper()

	var product models.Product
	require.NoError(t, f.db.Where("id = ?", id).First(&product).Error)
	return product.Stock
}

func (f *fixture) reloadOrder(t *testing.T, id uuid.UUID) *models.Order {
	t.Helper()

	var order models.Order
	require.NoError(t, f.db.Preload("Items").Preload("Payments").Where("id = ?", id).First(&order).Error)
	return &order
}

func (f *fixture) currentPayment(t *testing.T, orderID uuid.UUID) *models.Payment {
	t.Helper()

	var payment models.Payment
	require.NoError(t, f.db.Where("order_id = ? AND refund_of_id IS NULL", orderID).First(&payment).Error)
	return &payment
}

func (f *fixture) markPaid(t *testing.T, orderID uuid.UUID, transID string) {
	t.Helper()

	payment := f.currentPayment(t, orderID)
	now := f.clock.now
	require.NoError(t, f.db.Model(&models.Payment{}).Where("id = ?", payment.ID).Updates(map[string]any{
		"status":                  enums.PaymentStatusCompleted,
		"external_transaction_id": transID,
		"paid_at":                 now,
	}).Error)
}

func (f *fixture) events(t *testing.T, orderID uuid.UUID) []models.OrderLogEvent {
	t.Helper()

	var events []models.OrderLogEvent
	require.NoError(t, f.db.Where("order_id = ?", orderID).Order("created_at ASC, id ASC").Find(&events).Error)
	return events
}

func actionsOf(events []models.OrderLogEvent) []enums.OrderAction {
	actions := make([]enums.OrderAction, 0, len(events))
	for _, event := range events {
		actions = append(actions, event.Action)
	}
	return actions
}

func adminInput(orderID uuid.UUID) ActionInput {
	return ActionInput{OrderID: orderID, ActorID: uuid.New(), ActorType: enums.ActorTypeAdmin}
}

func TestCreateComputesTotalsAndDecrementsStock(t *testing.T) {
	f := newFixture(t)
	productA := f.seedProduct(t, 100_000, 5)
	productB := f.seedProduct(t, 50_000, 5)
	lines := []cart.Line{
		{ProductID: productA.ID, Qty: 1},
		{ProductID: productB.ID, Qty: 1},
	}

	order := f.createOrder(t, enums.PaymentMethodCash, lines, 20_000)

	assert.Equal(t, enums.OrderStatusPendingConfirmation, order.Status)
	assert.EqualValues(t, 150_000, order.Subtotal)
	assert.EqualValues(t, 170_000, order.TotalAmount)
	assert.Equal(t, 4, f.productStock(t, productA.ID))
	assert.Equal(t, 4, f.productStock(t, productB.ID))

	payment := f.currentPayment(t, order.ID)
	assert.Equal(t, enums.PaymentStatusPending, payment.Status)
	assert.EqualValues(t, 170_000, payment.Amount)

	events := f.events(t, order.ID)
	require.Len(t, events, 1)
	assert.Equal(t, enums.OrderActionCreated, events[0].Action)
	assert.Nil(t, events[0].FromStatus)

	var remaining int64
	require.NoError(t, f.db.Model(&models.CartItem{}).Where("user_id = ?", f.userID).Count(&remaining).Error)
	assert.EqualValues(t, 0, remaining)
}

func TestCreatePrepaidReturnsGatewaySurfaces(t *testing.T) {
	f := newFixture(t)
	product := f.seedProduct(t, 100_000, 3)
	lines := []cart.Line{{ProductID: product.ID, Qty: 1}}
	f.seedCart(t, lines)

	result, err := f.svc.Create(context.Background(), CreateInput{
		UserID:           f.userID,
		AddressID:        uuid.New(),
		ShippingMethodID: uuid.New(),
		Lines:            lines,
		PaymentMethod:    enums.PaymentMethodMoMo,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, result.PayURL)
	require.Len(t, f.gateway.createCalls, 1)
	assert.EqualValues(t, 100_000, f.gateway.createCalls[0].Amount)

	payment := f.currentPayment(t, result.Order.ID)
	require.NotNil(t, payment.GatewayOrderRef)
	assert.Equal(t, f.gateway.createCalls[0].OrderRef, *payment.GatewayOrderRef)
}

func TestCreateRollsBackStockWhenGatewayFails(t *testing.T) {
	f := newFixture(t)
	f.gateway.createErr = pkgerrors.New(pkgerrors.CodeGateway, "provider down")
	product := f.seedProduct(t, 100_000, 3)
	lines := []cart.Line{{ProductID: product.ID, Qty: 2}}
	f.seedCart(t, lines)

	_, err := f.svc.Create(context.Background(), CreateInput{
		UserID:           f.userID,
		AddressID:        uuid.New(),
		ShippingMethodID: uuid.New(),
		Lines:            lines,
		PaymentMethod:    enums.PaymentMethodMoMo,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeGateway))

	assert.Equal(t, 3, f.productStock(t, product.ID))
	var orderCount int64
	require.NoError(t, f.db.Model(&models.Order{}).Count(&orderCount).Error)
	assert.EqualValues(t, 0, orderCount)
}

func TestCreateRejectsCartMismatch(t *testing.T) {
	f := newFixture(t)
	product := f.seedProduct(t, 100_000, 3)
	f.seedCart(t, []cart.Line{{ProductID: product.ID, Qty: 1}})

	_, err := f.svc.Create(context.Background(), CreateInput{
		UserID:           f.userID,
		AddressID:        uuid.New(),
		ShippingMethodID: uuid.New(),
		Lines:            []cart.Line{{ProductID: product.ID, Qty: 2}},
		PaymentMethod:    enums.PaymentMethodCash,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
	assert.Equal(t, 3, f.productStock(t, product.ID))
}

func TestCreateInsufficientStockAbortsWholeOrder(t *testing.T) {
	f := newFixture(t)
	productA := f.seedProduct(t, 100_000, 5)
	productB := f.seedProduct(t, 50_000, 1)
	lines := []cart.Line{
		{ProductID: productA.ID, Qty: 1},
		{ProductID: productB.ID, Qty: 2},
	}
	f.seedCart(t, lines)

	_, err := f.svc.Create(context.Background(), CreateInput{
		UserID:           f.userID,
		AddressID:        uuid.New(),
		ShippingMethodID: uuid.New(),
		Lines:            lines,
		PaymentMethod:    enums.PaymentMethodCash,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInsufficientStock))
	assert.Equal(t, 5, f.productStock(t, productA.ID))
	assert.Equal(t, 1, f.productStock(t, productB.ID))
}

func TestConfirmPrepaidRequiresCompletedPayment(t *testing.T) {
	f := newFixture(t)
	product := f.seedProduct(t, 100_000, 3)
	order := f.createOrder(t, enums.PaymentMethodMoMo, []cart.Line{{ProductID: product.ID, Qty: 1}}, 0)

	err := f.svc.Confirm(context.Background(), adminInput(order.ID))
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
	assert.Equal(t, enums.OrderStatusPendingConfirmation, f.reloadOrder(t, order.ID).Status)

	f.markPaid(t, order.ID, "123456")
	require.NoError(t, f.svc.Confirm(context.Background(), adminInput(order.ID)))
	assert.Equal(t, enums.OrderStatusPendingPickup, f.reloadOrder(t, order.ID).Status)
}

func TestConfirmCashOrderProceedsWithPendingPayment(t *testing.T) {
	f := newFixture(t)
	product := f.seedProduct(t, 100_000, 3)
	order := f.createOrder(t, enums.PaymentMethodCash, []cart.Line{{ProductID: product.ID, Qty: 1}}, 0)

	require.NoError(t, f.svc.Confirm(context.Background(), adminInput(order.ID)))
	assert.Equal(t, enums.OrderStatusPendingPickup, f.reloadOrder(t, order.ID).Status)
}

func TestPickupFromPendingConfirmationFailsWithoutMutation(t *testing.T) {
	f := newFixture(t)
	product := f.seedProduct(t, 100_000, 3)
	order := f.createOrder(t, enums.PaymentMethodCash, []cart.Line{{ProductID: product.ID, Qty: 1}}, 0)

	err := f.svc.Pickup(context.Background(), PickupInput{
		ActionInput:    adminInput(order.ID),
		TrackingNumber: "TN-1",
		ShippedBy:      "Fast Courier",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))

	reloaded := f.reloadOrder(t, order.ID)
	assert.Equal(t, enums.OrderStatusPendingConfirmation, reloaded.Status)
	assert.Nil(t, reloaded.ShippedDate)
	assert.Equal(t, 2, f.productStock(t, product.ID))
	assert.Equal(t, enums.PaymentStatusPending, f.currentPayment(t, order.ID).Status)
	require.Len(t, f.events(t, order.ID), 1)
}

func TestFullHappyPathToCustomerConfirmed(t *testing.T) {
	f := newFixture(t)
	product := f.seedProduct(t, 100_000, 3)
	order := f.createOrder(t, enums.PaymentMethodCash, []cart.Line{{ProductID: product.ID, Qty: 1}}, 0)
	ctx := context.Background()

	require.NoError(t, f.svc.Confirm(ctx, adminInput(order.ID)))
	require.NoError(t, f.svc.Pickup(ctx, PickupInput{
		ActionInput:    adminInput(order.ID),
		TrackingNumber: "TN-77",
		ShippedBy:      "Fast Courier",
	}))
	require.NoError(t, f.svc.Deliver(ctx, ActionInput{OrderID: order.ID, ActorID: uuid.New(), ActorType: enums.ActorTypeShipper}))
	require.NoError(t, f.svc.CustomerConfirm(ctx, ActionInput{OrderID: order.ID, ActorID: f.userID}))

	reloaded := f.reloadOrder(t, order.ID)
	assert.Equal(t, enums.OrderStatusCustomerConfirmed, reloaded.Status)
	require.NotNil(t, reloaded.TrackingNumber)
	assert.Equal(t, "TN-77", *reloaded.TrackingNumber)
	require.NotNil(t, reloaded.ShippedDate)
	require.NotNil(t, reloaded.DeliveredDate)
	require.NotNil(t, reloaded.CustomerConfirmedDate)

	// Receipt confirmation settles the cash payment.
	payment := f.currentPayment(t, order.ID)
	assert.Equal(t, enums.PaymentStatusCompleted, payment.Status)
	require.NotNil(t, payment.PaidAt)

	assert.Equal(t, []enums.OrderAction{
		enums.OrderActionCreated,
		enums.OrderActionConfirmed,
		enums.OrderActionPickedUp,
		enums.OrderActionDelivered,
		enums.OrderActionCustomerConfirmed,
		enums.OrderActionCODCompleted,
	}, actionsOf(f.events(t, order.ID)))
}

func TestCustomerConfirmRejectsNonOwner(t *testing.T) {
	f := newFixture(t)
	product := f.seedProduct(t, 100_000, 3)
	order := f.createOrder(t, enums.PaymentMethodCash, []cart.Line{{ProductID: product.ID, Qty: 1}}, 0)
	ctx := context.Background()

	require.NoError(t, f.svc.Confirm(ctx, adminInput(order.ID)))
	require.NoError(t, f.svc.Pickup(ctx, PickupInput{ActionInput: adminInput(order.ID), TrackingNumber: "TN-1", ShippedBy: "Courier"}))
	require.NoError(t, f.svc.Deliver(ctx, adminInput(order.ID)))

	err := f.svc.CustomerConfirm(ctx, ActionInput{OrderID: order.ID, ActorID: uuid.New()})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeForbidden))
	assert.Equal(t, enums.OrderStatusDelivered, f.reloadOrder(t, order.ID).Status)
}

func TestCompleteCODPaymentOnDeliveredOrder(t *testing.T) {
	f := newFixture(t)
	product := f.seedProduct(t, 100_000, 3)
	order := f.createOrder(t, enums.PaymentMethodCash, []cart.Line{{ProductID: product.ID, Qty: 1}}, 0)
	ctx := context.Background()

	require.NoError(t, f.svc.Confirm(ctx, adminInput(order.ID)))
	require.NoError(t, f.svc.Pickup(ctx, PickupInput{ActionInput: adminInput(order.ID), TrackingNumber: "TN-1", ShippedBy: "Courier"}))
	require.NoError(t, f.svc.Deliver(ctx, adminInput(order.ID)))

	require.NoError(t, f.svc.CompleteCODPayment(ctx, ActionInput{OrderID: order.ID, ActorID: uuid.New(), ActorType: enums.ActorTypeShipper}))

	payment := f.currentPayment(t, order.ID)
	assert.Equal(t, enums.PaymentStatusCompleted, payment.Status)

	// A second settlement attempt hits the guard.
	err := f.svc.CompleteCODPayment(ctx, ActionInput{OrderID: order.ID, ActorID: uuid.New(), ActorType: enums.ActorTypeShipper})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
}

func TestCancelRestoresStockAndAttributesActor(t *testing.T) {
	for _, tc := range []struct {
		name      string
		byOwner   bool
		wantActor enums.ActorType
	}{
		{name: "by customer", byOwner: true, wantActor: enums.ActorTypeCustomer},
		{name: "by admin", byOwner: false, wantActor: enums.ActorTypeAdmin},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			product := f.seedProduct(t, 100_000, 3)
			order := f.createOrder(t, enums.PaymentMethodCash, []cart.Line{{ProductID: product.ID, Qty: 2}}, 0)
			ctx := context.Background()
			require.NoError(t, f.svc.Confirm(ctx, adminInput(order.ID)))
			require.Equal(t, 1, f.productStock(t, product.ID))

			actorID := uuid.New()
			if tc.byOwner {
				actorID = f.userID
			}
			require.NoError(t, f.svc.Cancel(ctx, CancelInput{
				ActionInput: ActionInput{OrderID: order.ID, ActorID: actorID},
				Reason:      "changed my mind",
			}))

			assert.Equal(t, enums.OrderStatusCancelled, f.reloadOrder(t, order.ID).Status)
			assert.Equal(t, 3, f.productStock(t, product.ID))
			assert.Equal(t, enums.PaymentStatusCancelled, f.currentPayment(t, order.ID).Status)

			var cancelEvents []models.OrderLogEvent
			require.NoError(t, f.db.Where("order_id = ? AND action = ?", order.ID, enums.OrderActionCancelled).Find(&cancelEvents).Error)
			require.Len(t, cancelEvents, 1)
			assert.Equal(t, tc.wantActor, cancelEvents[0].ActorType)
		})
	}
}

func TestCancelShippingOrderFails(t *testing.T) {
	f := newFixture(t)
	product := f.seedProduct(t, 100_000, 3)
	order := f.createOrder(t, enums.PaymentMethodCash, []cart.Line{{ProductID: product.ID, Qty: 1}}, 0)
	ctx := context.Background()
	require.NoError(t, f.svc.Confirm(ctx, adminInput(order.ID)))
	require.NoError(t, f.svc.Pickup(ctx, PickupInput{ActionInput: adminInput(order.ID), TrackingNumber: "TN-1", ShippedBy: "Courier"}))

	err := f.svc.Cancel(ctx, CancelInput{ActionInput: adminInput(order.ID), Reason: "too late"})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
	assert.Equal(t, 2, f.productStock(t, product.ID))
}

func TestReturnPaidGatewayOrderRefundsThroughProvider(t *testing.T) {
	f := newFixture(t)
	product := f.seedProduct(t, 100_000, 3)
	order := f.createOrder(t, enums.PaymentMethodMoMo, []cart.Line{{ProductID: product.ID, Qty: 1}}, 0)
	ctx := context.Background()

	f.markPaid(t, order.ID, "888777")
	require.NoError(t, f.svc.Confirm(ctx, adminInput(order.ID)))
	require.NoError(t, f.svc.Pickup(ctx, PickupInput{ActionInput: adminInput(order.ID), TrackingNumber: "TN-1", ShippedBy: "Courier"}))
	require.NoError(t, f.svc.Deliver(ctx, adminInput(order.ID)))

	require.NoError(t, f.svc.Return(ctx, ReturnInput{
		ActionInput: ActionInput{OrderID: order.ID, ActorID: f.userID},
		Reason:      "damaged in transit",
	}))

	assert.Equal(t, enums.OrderStatusReturned, f.reloadOrder(t, order.ID).Status)
	assert.Equal(t, 3, f.productStock(t, product.ID))

	require.Len(t, f.gateway.refundCalls, 1)
	refund := f.gateway.refundCalls[0]
	assert.EqualValues(t, 100_000, refund.Amount)
	assert.EqualValues(t, 888777, refund.TransID)
	assert.NotEqual(t, *f.currentPayment(t, order.ID).GatewayOrderRef, refund.OrderRef)

	original := f.currentPayment(t, order.ID)
	assert.Equal(t, enums.PaymentStatusRefunded, original.Status)

	var ledger []models.Payment
	require.NoError(t, f.db.Where("order_id = ?", order.ID).Order("created_at ASC").Find(&ledger).Error)
	require.Len(t, ledger, 2)
	settlement := ledger[1]
	assert.EqualValues(t, -100_000, settlement.Amount)
	require.NotNil(t, settlement.RefundOfID)
	assert.Equal(t, original.ID, *settlement.RefundOfID)

	actions := actionsOf(f.events(t, order.ID))
	assert.Contains(t, actions, enums.OrderActionReturned)
	assert.Contains(t, actions, enums.OrderActionRefunded)
}

func TestReturnFailsWhenRefundFails(t *testing.T) {
	f := newFixture(t)
	product := f.seedProduct(t, 100_000, 3)
	order := f.createOrder(t, enums.PaymentMethodMoMo, []cart.Line{{ProductID: product.ID, Qty: 1}}, 0)
	ctx := context.Background()

	f.markPaid(t, order.ID, "888777")
	require.NoError(t, f.svc.Confirm(ctx, adminInput(order.ID)))
	require.NoError(t, f.svc.Pickup(ctx, PickupInput{ActionInput: adminInput(order.ID), TrackingNumber: "TN-1", ShippedBy: "Courier"}))
	require.NoError(t, f.svc.Deliver(ctx, adminInput(order.ID)))

	f.gateway.refundErr = pkgerrors.New(pkgerrors.CodeGateway, "refund endpoint down")
	err := f.svc.Return(ctx, ReturnInput{
		ActionInput: ActionInput{OrderID: order.ID, ActorID: f.userID},
		Reason:      "damaged",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeGateway))

	// Everything rolls back; the return can be retried.
	assert.Equal(t, enums.OrderStatusDelivered, f.reloadOrder(t, order.ID).Status)
	assert.Equal(t, 2, f.productStock(t, product.ID))
	assert.Equal(t, enums.PaymentStatusCompleted, f.currentPayment(t, order.ID).Status)
}

func TestReturnPaidCashOrderFlagsManualSettlement(t *testing.T) {
	f := newFixture(t)
	product := f.seedProduct(t, 100_000, 3)
	order := f.createOrder(t, enums.PaymentMethodCash, []cart.Line{{ProductID: product.ID, Qty: 1}}, 0)
	ctx := context.Background()

	require.NoError(t, f.svc.Confirm(ctx, adminInput(order.ID)))
	require.NoError(t, f.svc.Pickup(ctx, PickupInput{ActionInput: adminInput(order.ID), TrackingNumber: "TN-1", ShippedBy: "Courier"}))
	require.NoError(t, f.svc.Deliver(ctx, adminInput(order.ID)))
	require.NoError(t, f.svc.CompleteCODPayment(ctx, ActionInput{OrderID: order.ID, ActorID: uuid.New(), ActorType: enums.ActorTypeShipper}))

	require.NoError(t, f.svc.Return(ctx, ReturnInput{
		ActionInput: ActionInput{OrderID: order.ID, ActorID: f.userID},
		Reason:      "wrong size",
	}))

	assert.Empty(t, f.gateway.refundCalls)
	assert.Equal(t, enums.PaymentStatusRefunded, f.currentPayment(t, order.ID).Status)

	var ledgerCount int64
	require.NoError(t, f.db.Model(&models.Payment{}).Where("order_id = ?", order.ID).Count(&ledgerCount).Error)
	assert.EqualValues(t, 1, ledgerCount)
}

func TestReturnOutsideWindowFails(t *testing.T) {
	f := newFixture(t)
	product := f.seedProduct(t, 100_000, 3)
	order := f.createOrder(t, enums.PaymentMethodCash, []cart.Line{{ProductID: product.ID, Qty: 1}}, 0)
	ctx := context.Background()

	require.NoError(t, f.svc.Confirm(ctx, adminInput(order.ID)))
	require.NoError(t, f.svc.Pickup(ctx, PickupInput{ActionInput: adminInput(order.ID), TrackingNumber: "TN-1", ShippedBy: "Courier"}))
	require.NoError(t, f.svc.Deliver(ctx, adminInput(order.ID)))

	f.clock.now = f.clock.now.Add(8 * 24 * time.Hour)
	err := f.svc.Return(ctx, ReturnInput{
		ActionInput: ActionInput{OrderID: order.ID, ActorID: f.userID},
		Reason:      "too late",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
	assert.Equal(t, enums.OrderStatusDelivered, f.reloadOrder(t, order.ID).Status)
}

func TestReturnTwiceFailsGuard(t *testing.T) {
	f := newFixture(t)
	product := f.seedProduct(t, 100_000, 3)
	order := f.createOrder(t, enums.PaymentMethodCash, []cart.Line{{ProductID: product.ID, Qty: 1}}, 0)
	ctx := context.Background()

	require.NoError(t, f.svc.Confirm(ctx, adminInput(order.ID)))
	require.NoError(t, f.svc.Pickup(ctx, PickupInput{ActionInput: adminInput(order.ID), TrackingNumber: "TN-1", ShippedBy: "Courier"}))
	require.NoError(t, f.svc.Deliver(ctx, adminInput(order.ID)))
	require.NoError(t, f.svc.Return(ctx, ReturnInput{ActionInput: ActionInput{OrderID: order.ID, ActorID: f.userID}, Reason: "first"}))
	require.Equal(t, 3, f.productStock(t, product.ID))

	err := f.svc.Return(ctx, ReturnInput{ActionInput: ActionInput{OrderID: order.ID, ActorID: f.userID}, Reason: "second"})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
	// Stock restored exactly once.
	assert.Equal(t, 3, f.productStock(t, product.ID))
}

func TestGetDetailReportsAvailableActions(t *testing.T) {
	f := newFixture(t)
	product := f.seedProduct(t, 100_000, 3)
	order := f.createOrder(t, enums.PaymentMethodMoMo, []cart.Line{{ProductID: product.ID, Qty: 1}}, 0)
	ctx := context.Background()

	detail, err := f.svc.GetDetail(ctx, order.ID)
	require.NoError(t, err)
	assert.NotContains(t, detail.AvailableActions, enums.OrderActionConfirmed)
	assert.Contains(t, detail.AvailableActions, enums.OrderActionCancelled)

	f.markPaid(t, order.ID, "42")
	detail, err = f.svc.GetDetail(ctx, order.ID)
	require.NoError(t, err)
	assert.Contains(t, detail.AvailableActions, enums.OrderActionConfirmed)
}

func TestGetDetailUnknownOrder(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GetDetail(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}
