package checkout

import (
	"fmt"
	"sort"

	"github.com/iliyamo/restaurant-order-engine/internal/inventory"
)

// MaxLineQty caps the quantity of one item in a cart.
const MaxLineQty = 1000

// ErrInvalidQuantity rejects cart lines outside 1..MaxLineQty.
var ErrInvalidQuantity = fmt.Errorf("quantity must be between 1 and %d", MaxLineQty)

// CartItem is one line as submitted by the client.
type CartItem struct {
	ItemID uint64 `json:"menu_item_id"`
	Qty    int    `json:"quantity"`
}

// Cart is the request-scoped basket handed to Checkout.  Duplicate items
// are merged and lines are kept in item order.
type Cart struct {
	lines []inventory.Line
}

func NewCart(items []CartItem) (Cart, error) {
	merged := make(map[uint64]int, len(items))
	for _, it := range items {
		if it.Qty < 1 || it.Qty > MaxLineQty || it.ItemID == 0 {
			return Cart{}, ErrInvalidQuantity
		}
		// Both terms are at most MaxLineQty here, so the sum cannot overflow.
		if merged[it.ItemID]+it.Qty > MaxLineQty {
			return Cart{}, ErrInvalidQuantity
		}
		merged[it.ItemID] += it.Qty
	}
	lines := make([]inventory.Line, 0, len(merged))
	for id, qty := range merged {
		lines = append(lines, inventory.Line{ItemID: id, Qty: qty})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ItemID < lines[j].ItemID })
	return Cart{lines: lines}, nil
}

func (c Cart) Empty() bool { return len(c.lines) == 0 }

// Lines returns a copy of the merged lines.
func (c Cart) Lines() []inventory.Line {
	out := make([]inventory.Line, len(c.lines))
	copy(out, c.lines)
	return out
}

// Qty returns the quantity of itemID in the cart.
func (c Cart) Qty(itemID uint64) int {
	for _, l := range c.lines {
		if l.ItemID == itemID {
			return l.Qty
		}
	}
	return 0
}
