package cart

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nmtruong/fulfillment-backend/pkg/db/models"
	pkgerrors "github.com/nmtruong/fulfillment-backend/pkg/errors"
)

// Line is one submitted cart line, keyed by product.
type Line struct {
	ProductID uuid.UUID
	Qty       int
}

// Verifier checks a submitted cart snapshot against the server-side cart
// and clears the cart once an order is placed from it.
type Verifier interface {
	Verify(ctx context.Context, tx *gorm.DB, userID uuid.UUID, lines []Line) error
	Clear(ctx context.Context, tx *gorm.DB, userID uuid.UUID) error
}

type verifier struct{}

// NewVerifier returns the database-backed cart verifier.
func NewVerifier() Verifier {
	return verifier{}
}

// Verify compares the snapshot with the stored cart line by line. Any
// missing product, quantity drift, or extra stored line rejects the whole
// snapshot so the client re-reads the cart before retrying.
func (verifier) Verify(ctx context.Context, tx *gorm.DB, userID uuid.UUID, lines []Line) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for cart verification")
	}
	if len(lines) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart snapshot is empty")
	}

	var stored []models.CartItem
	if err := tx.WithContext(ctx).Where("user_id = ?", userID).Find(&stored).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart items")
	}

	storedQty := make(map[uuid.UUID]int, len(stored))
	for _, item := range stored {
		storedQty[item.ProductID] += item.Qty
	}

	seen := make(map[uuid.UUID]bool, len(lines))
	for _, line := range lines {
		if line.Qty <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "cart line quantity must be positive").
				WithDetails(map[string]any{"product_id": line.ProductID})
		}
		if seen[line.ProductID] {
			return pkgerrors.New(pkgerrors.CodeValidation, "cart snapshot repeats a product").
				WithDetails(map[string]any{"product_id": line.ProductID})
		}
		seen[line.ProductID] = true

		qty, ok := storedQty[line.ProductID]
		if !ok || qty != line.Qty {
			return pkgerrors.New(pkgerrors.CodeValidation, "cart has changed since the snapshot was taken").
				WithDetails(map[string]any{"product_id": line.ProductID})
		}
	}
	if len(seen) != len(storedQty) {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart has changed since the snapshot was taken")
	}
	return nil
}

func (verifier) Clear(ctx context.Context, tx *gorm.DB, userID uuid.UUID) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for cart clear")
	}
	if err := tx.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.CartItem{}).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
	}
	return nil
}
