package model

import "github.com/shopspring/decimal"

// DefaultLowStockThreshold is applied when a menu item has no explicit threshold.
const DefaultLowStockThreshold = 5

// MenuItem is the ledger's view of a catalog entry.  The catalog owns the
// name and price; the ledger owns the stock counters.  StockQuantity is the
// on-hand count and is nil for unlimited items.  ReservedQuantity counts
// units held by unpaid orders and never exceeds StockQuantity.
type MenuItem struct {
	ID                uint64          // menu_items.id
	Name              string          // menu_items.name
	Price             decimal.Decimal // menu_items.price
	IsAvailable       bool            // menu_items.is_available
	StockQuantity     *int            // menu_items.stock_quantity (nullable)
	ReservedQuantity  int             // menu_items.reserved_quantity
	LowStockThreshold int             // menu_items.low_stock_threshold
}

// Unlimited reports whether the item bypasses stock accounting.
func (m MenuItem) Unlimited() bool { return m.StockQuantity == nil }

// Available returns stock minus outstanding holds.  Unlimited items report -1.
func (m MenuItem) Available() int {
	if m.StockQuantity == nil {
		return -1
	}
	return *m.StockQuantity - m.ReservedQuantity
}

// CanReserve reports whether qty more units can be held.
func (m MenuItem) CanReserve(qty int) bool {
	if qty <= 0 {
		return false
	}
	return m.Unlimited() || m.Available() >= qty
}

// IsLow compares on-hand stock with the threshold.
func (m MenuItem) IsLow() bool {
	if m.StockQuantity == nil {
		return false
	}
	return *m.StockQuantity <= m.LowStockThreshold
}
