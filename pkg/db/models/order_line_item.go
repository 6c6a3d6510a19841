package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderLineItem captures the snapshot of one ordered product. Unit price
// and line total are fixed when the order is created.
type OrderLineItem struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID     uuid.UUID `gorm:"column:order_id;type:uuid;not null"`
	ProductID   uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	ProductName string    `gorm:"column:product_name;not null"`
	Qty         int       `gorm:"column:qty;not null"`
	UnitPrice   int64     `gorm:"column:unit_price;not null"`
	LineTotal   int64     `gorm:"column:line_total;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}
