package model

import "time"

// HoldStatus is the lifecycle of a stock hold.
type HoldStatus string

const (
	HoldHeld      HoldStatus = "HELD"
	HoldCommitted HoldStatus = "COMMITTED"
	HoldReleased  HoldStatus = "RELEASED"
	HoldRestocked HoldStatus = "RESTOCKED"
)

// StockHold is a temporary claim on inventory between checkout and payment
// finalisation.  A HELD row is always resolved: committed into a permanent
// deduction, or released back to available stock (explicitly or by the
// expiry sweep once ExpiresAt has passed).
type StockHold struct {
	ID         uint64     // stock_holds.id
	OrderRef   string     // stock_holds.order_ref (orders.order_number)
	MenuItemID uint64     // stock_holds.menu_item_id
	Quantity   int        // stock_holds.quantity
	Unlimited  bool       // stock_holds.unlimited
	Status     HoldStatus // stock_holds.status
	ExpiresAt  time.Time  // stock_holds.expires_at
	CreatedAt  time.Time  // stock_holds.created_at
}
