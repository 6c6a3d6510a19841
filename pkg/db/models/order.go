package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/nmtruong/fulfillment-backend/pkg/enums"
)

// Order is the aggregate root of the fulfillment lifecycle. Money columns
// hold VND minor units; line items are snapshotted at creation and never
// repriced.
type Order struct {
	ID                    uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID                uuid.UUID         `gorm:"column:user_id;type:uuid;not null"`
	AddressID             uuid.UUID         `gorm:"column:address_id;type:uuid;not null"`
	ShippingMethodID      uuid.UUID         `gorm:"column:shipping_method_id;type:uuid;not null"`
	Status                enums.OrderStatus `gorm:"column:status;type:order_status;not null;default:'pending_confirmation'"`
	Subtotal              int64             `gorm:"column:subtotal;not null"`
	DiscountAmount        int64             `gorm:"column:discount_amount;not null;default:0"`
	ShippingFee           int64             `gorm:"column:shipping_fee;not null;default:0"`
	TotalAmount           int64             `gorm:"column:total_amount;not null"`
	CouponCode            *string           `gorm:"column:coupon_code"`
	Note                  *string           `gorm:"column:note"`
	TrackingNumber        *string           `gorm:"column:tracking_number"`
	ShippedBy             *string           `gorm:"column:shipped_by"`
	OrderedDate           time.Time         `gorm:"column:ordered_date;not null"`
	ShippedDate           *time.Time        `gorm:"column:shipped_date"`
	DeliveredDate         *time.Time        `gorm:"column:delivered_date"`
	CustomerConfirmedDate *time.Time        `gorm:"column:customer_confirmed_date"`
	Items                 []OrderLineItem   `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Payments              []Payment         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt             time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

// CurrentPayment returns the original (non-refund) payment row, if loaded.
func (o *Order) CurrentPayment() *Payment {
	for i := range o.Payments {
		if o.Payments[i].RefundOfID == nil {
			return &o.Payments[i]
		}
	}
	return nil
}
