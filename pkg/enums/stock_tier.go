package enums

import "fmt"

// StockTier classifies a product's remaining inventory.
type StockTier string

const (
	StockTierInStock    StockTier = "in_stock"
	StockTierLowStock   StockTier = "low_stock"
	StockTierOutOfStock StockTier = "out_of_stock"
)

var validStockTiers = []StockTier{
	StockTierInStock,
	StockTierLowStock,
	StockTierOutOfStock,
}

// String implements fmt.Stringer.
func (t StockTier) String() string {
	return string(t)
}

// IsValid reports whether the value is a known StockTier.
func (t StockTier) IsValid() bool {
	for _, candidate := range validStockTiers {
		if candidate == t {
			return true
		}
	}
	return false
}

// StockTierFor derives the tier from the current stock level and threshold.
func StockTierFor(stock, minThreshold int) StockTier {
	switch {
	case stock == 0:
		return StockTierOutOfStock
	case stock <= minThreshold:
		return StockTierLowStock
	default:
		return StockTierInStock
	}
}

// ParseStockTier converts raw input into a StockTier.
func ParseStockTier(value string) (StockTier, error) {
	for _, candidate := range validStockTiers {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid stock tier %q", value)
}
