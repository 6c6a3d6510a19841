package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nmtruong/fulfillment-backend/internal/auditlog"
	"github.com/nmtruong/fulfillment-backend/internal/cart"
	"github.com/nmtruong/fulfillment-backend/pkg/db/models"
	"github.com/nmtruong/fulfillment-backend/pkg/momo"
	"github.com/nmtruong/fulfillment-backend/pkg/pagination"
)

// Repository defines persistence operations for the order aggregate.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	CreateLineItems(ctx context.Context, items []models.OrderLineItem) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Order, string, error)
}

// TxRunner opens one transaction per orchestrator operation.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// StockLedger is the inventory surface the orchestrator drives.
type StockLedger interface {
	Decrement(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
	Restore(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
	FindProduct(ctx context.Context, tx *gorm.DB, productID uuid.UUID) (*models.Product, error)
}

// CartVerifier checks and clears the server-side cart during creation.
type CartVerifier interface {
	Verify(ctx context.Context, tx *gorm.DB, userID uuid.UUID, lines []cart.Line) error
	Clear(ctx context.Context, tx *gorm.DB, userID uuid.UUID) error
}

// Gateway is the slice of the payment provider client the orchestrator
// needs: creating an intent at checkout and refunding on compensation.
type Gateway interface {
	CreatePayment(ctx context.Context, params momo.CreatePaymentParams) (*momo.CreatePaymentResult, error)
	Refund(ctx context.Context, params momo.RefundParams) (*momo.RefundResult, error)
}

type auditRecorder interface {
	Append(ctx context.Context, tx *gorm.DB, entry auditlog.Entry) (*models.OrderLogEvent, error)
	ListByOrder(ctx context.Context, db *gorm.DB, orderID uuid.UUID, params pagination.Params) ([]models.OrderLogEvent, string, error)
}

// Clock abstracts time so window guards are testable.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }

// DiscountCalculator resolves a coupon code into a discount amount. The
// computation itself lives outside this package.
type DiscountCalculator interface {
	Discount(ctx context.Context, couponCode string, subtotal int64) (int64, error)
}

type noDiscount struct{}

func (noDiscount) Discount(context.Context, string, int64) (int64, error) { return 0, nil }

// NoDiscount is a DiscountCalculator that never discounts.
func NoDiscount() DiscountCalculator { return noDiscount{} }
