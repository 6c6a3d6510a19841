package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/nmtruong/fulfillment-backend/pkg/enums"
)

// Product carries the inventory-facing subset of the catalog. StockTier is
// derived from Stock and MinStockThreshold and recomputed on every stock
// change.
type Product struct {
	ID                uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name              string          `gorm:"column:name;not null"`
	Price             int64           `gorm:"column:price;not null"`
	IsActive          bool            `gorm:"column:is_active;not null;default:true"`
	Stock             int             `gorm:"column:stock;not null;default:0"`
	SoldCount         int             `gorm:"column:sold_count;not null;default:0"`
	MinStockThreshold int             `gorm:"column:min_stock_threshold;not null;default:0"`
	StockTier         enums.StockTier `gorm:"column:stock_tier;type:stock_tier;not null;default:'out_of_stock'"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
