package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/nmtruong/fulfillment-backend/pkg/enums"
)

// Payment is one row of the append-biased payment ledger. A refund
// settlement is a new row with a negative amount pointing back at the
// original via RefundOfID, never a mutation of the original amount.
type Payment struct {
	ID                    uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID               uuid.UUID           `gorm:"column:order_id;type:uuid;not null"`
	Method                enums.PaymentMethod `gorm:"column:method;type:payment_method;not null;default:'cash'"`
	Status                enums.PaymentStatus `gorm:"column:status;type:payment_status;not null;default:'pending'"`
	Amount                int64               `gorm:"column:amount;not null"`
	GatewayOrderRef       *string             `gorm:"column:gateway_order_ref;uniqueIndex"`
	ExternalTransactionID *string             `gorm:"column:external_transaction_id"`
	RefundOfID            *uuid.UUID          `gorm:"column:refund_of_id;type:uuid"`
	PaidAt                *time.Time          `gorm:"column:paid_at"`
	GatewayResponseRaw    json.RawMessage     `gorm:"column:gateway_response_raw;type:jsonb"`
	CreatedAt             time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
