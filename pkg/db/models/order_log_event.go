package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/nmtruong/fulfillment-backend/pkg/enums"
)

// OrderLogEvent is one immutable entry of the order audit trail.
// FromStatus is nil only on the creation event. There is no update or
// delete path for these rows.
type OrderLogEvent struct {
	ID         uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID    uuid.UUID          `gorm:"column:order_id;type:uuid;not null;index"`
	FromStatus *enums.OrderStatus `gorm:"column:from_status;type:order_status"`
	ToStatus   enums.OrderStatus  `gorm:"column:to_status;type:order_status;not null"`
	Action     enums.OrderAction  `gorm:"column:action;type:order_action;not null"`
	ActorType  enums.ActorType    `gorm:"column:actor_type;type:actor_type;not null"`
	ActorID    *uuid.UUID         `gorm:"column:actor_id;type:uuid"`
	Note       *string            `gorm:"column:note"`
	Metadata   json.RawMessage    `gorm:"column:metadata;type:jsonb"`
	CreatedAt  time.Time          `gorm:"column:created_at;autoCreateTime"`
}
