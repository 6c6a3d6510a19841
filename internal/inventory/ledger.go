package inventory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nmtruong/fulfillment-backend/pkg/db/models"
	pkgerrors "github.com/nmtruong/fulfillment-backend/pkg/errors"
)

// Ledger performs atomic stock movements. Both operations run inside the
// caller's transaction so an order and its stock changes commit together.
type Ledger interface {
	Decrement(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
	Restore(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
	FindProduct(ctx context.Context, tx *gorm.DB, productID uuid.UUID) (*models.Product, error)
}

type ledger struct{}

// NewLedger returns the database-backed inventory ledger.
func NewLedger() Ledger {
	return ledger{}
}

// Decrement subtracts qty from stock with a conditional update so two
// concurrent orders cannot both take the last unit. Zero affected rows is
// diagnosed against a re-read: missing product, inactive product, or not
// enough stock.
func (ledger) Decrement(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for stock decrement")
	}

	res := tx.WithContext(ctx).Exec(`
		UPDATE products
		SET stock = stock - ?,
			sold_count = sold_count + ?,
			stock_tier = CASE
				WHEN stock - ? = 0 THEN 'out_of_stock'
				WHEN stock - ? <= min_stock_threshold THEN 'low_stock'
				ELSE 'in_stock'
			END,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND is_active = ? AND stock >= ?
	`, qty, qty, qty, qty, productID, true, qty)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "decrement stock")
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var product models.Product
	err := tx.WithContext(ctx).Where("id = ?", productID).First(&product).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	case err != nil:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	case !product.IsActive:
		return pkgerrors.New(pkgerrors.CodeInsufficientStock, "product is not active").
			WithDetails(map[string]any{"product_id": productID})
	case product.Stock < qty:
		return pkgerrors.New(pkgerrors.CodeInsufficientStock, "not enough stock").
			WithDetails(map[string]any{"product_id": productID, "stock": product.Stock, "requested": qty})
	default:
		// The conditional update saw an older row version than the re-read.
		return pkgerrors.New(pkgerrors.CodeConflict, "stock update lost the race")
	}
}

// Restore returns qty units to stock and recomputes the tier. Sold count
// never goes below zero.
func (ledger) Restore(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for stock restore")
	}

	res := tx.WithContext(ctx).Exec(`
		UPDATE products
		SET stock = stock + ?,
			sold_count = CASE WHEN sold_count >= ? THEN sold_count - ? ELSE 0 END,
			stock_tier = CASE
				WHEN stock + ? <= min_stock_threshold THEN 'low_stock'
				ELSE 'in_stock'
			END,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, qty, qty, qty, qty, productID)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "restore stock")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return nil
}

func (ledger) FindProduct(ctx context.Context, tx *gorm.DB, productID uuid.UUID) (*models.Product, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction required")
	}
	var product models.Product
	err := tx.WithContext(ctx).Where("id = ?", productID).First(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return &product, nil
}
