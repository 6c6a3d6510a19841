package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/nmtruong/fulfillment-backend/pkg/db/models"
	"github.com/nmtruong/fulfillment-backend/pkg/enums"
)

// Repository manages persistence for payment ledger rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payment *models.Payment) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	FindByGatewayRefForUpdate(ctx context.Context, ref string) (*models.Payment, error)
	FindCurrentByOrder(ctx context.Context, orderID uuid.UUID) (*models.Payment, error)
	FindStalePending(ctx context.Context, method enums.PaymentMethod, before time.Time, limit int) ([]models.Payment, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payment repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

// FindByGatewayRefForUpdate locks the row so webhook and poll deliveries
// for the same payment serialize.
func (r *repository) FindByGatewayRefForUpdate(ctx context.Context, ref string) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("gateway_order_ref = ?", ref).
		First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

// FindCurrentByOrder returns the original payment row of the order,
// excluding refund ledger entries.
func (r *repository) FindCurrentByOrder(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).
		Where("order_id = ? AND refund_of_id IS NULL", orderID).
		Order("created_at ASC").
		First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) FindStalePending(ctx context.Context, method enums.PaymentMethod, before time.Time, limit int) ([]models.Payment, error) {
	var stale []models.Payment
	if err := r.db.WithContext(ctx).
		Where("method = ? AND status = ? AND gateway_order_ref IS NOT NULL AND created_at < ?",
			method, enums.PaymentStatusPending, before).
		Order("created_at ASC").
		Limit(limit).
		Find(&stale).Error; err != nil {
		return nil, err
	}
	return stale, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ?", id).
		Updates(updates).Error
}
