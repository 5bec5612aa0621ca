// Package inventory is the stock ledger.  Every operation runs inside the
// caller's transaction and locks the menu item rows it touches, so the
// reservation, the order insert and the commit either all happen or none do.
package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/restaurant-order-engine/internal/model"
	"github.com/iliyamo/restaurant-order-engine/internal/notify"
	"github.com/iliyamo/restaurant-order-engine/internal/repository"
)

// Alerter is told about items that dropped to their low-stock threshold.
type Alerter interface {
	LowStock(ctx context.Context, item model.MenuItem) notify.Result
}

// Line is one item of a reservation request.
type Line struct {
	ItemID uint64
	Qty    int
}

type Ledger struct {
	menu   *repository.MenuRepo
	holds  *repository.StockHoldRepo
	alerts Alerter
	log    *slog.Logger
}

func NewLedger(menu *repository.MenuRepo, holds *repository.StockHoldRepo, alerts Alerter, log *slog.Logger) *Ledger {
	return &Ledger{menu: menu, holds: holds, alerts: alerts, log: log.With("component", "inventory")}
}

// Reserve holds qty units of an item for the order identified by ref.  The
// hold is HELD until Commit or Release; expiresAt is when the sweep may
// resolve it on its own.  The returned item reflects the new counters.
func (l *Ledger) Reserve(ctx context.Context, tx *sql.Tx, ref string, itemID uint64, qty int, expiresAt time.Time) (model.MenuItem, error) {
	if qty <= 0 {
		return model.MenuItem{}, fmt.Errorf("reserve item %d: quantity must be positive", itemID)
	}
	item, err := l.menu.GetForUpdateTx(ctx, tx, itemID)
	if err != nil {
		return model.MenuItem{}, fmt.Errorf("menu item %d: %w", itemID, err)
	}
	if !item.IsAvailable {
		return item, &model.InsufficientStockError{ItemID: item.ID, Item: item.Name, Requested: qty}
	}
	if !item.CanReserve(qty) {
		return item, &model.InsufficientStockError{ItemID: item.ID, Item: item.Name, Requested: qty, Available: item.Available()}
	}
	if !item.Unlimited() {
		if err := l.menu.AddReservedTx(ctx, tx, item.ID, qty); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return item, &model.InsufficientStockError{ItemID: item.ID, Item: item.Name, Requested: qty, Available: item.Available()}
			}
			return item, fmt.Errorf("reserve item %d: %w", item.ID, err)
		}
		item.ReservedQuantity += qty
	}
	hold := model.StockHold{
		OrderRef:   ref,
		MenuItemID: item.ID,
		Quantity:   qty,
		Unlimited:  item.Unlimited(),
		Status:     model.HoldHeld,
		ExpiresAt:  expiresAt,
	}
	if err := l.holds.CreateTx(ctx, tx, &hold); err != nil {
		return item, fmt.Errorf("insert hold for item %d: %w", item.ID, err)
	}
	return item, nil
}

// ReserveAll reserves every line or fails on the first shortage.  Lines are
// processed in item ID order so concurrent checkouts lock rows in the same
// sequence.  On error the caller rolls the transaction back, which undoes
// the lines already reserved.
func (l *Ledger) ReserveAll(ctx context.Context, tx *sql.Tx, ref string, lines []Line, expiresAt time.Time) ([]model.MenuItem, error) {
	sorted := make([]Line, len(lines))
	copy(sorted, lines)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ItemID < sorted[j].ItemID })

	items := make([]model.MenuItem, 0, len(sorted))
	for _, ln := range sorted {
		item, err := l.Reserve(ctx, tx, ref, ln.ItemID, ln.Qty, expiresAt)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// Commit turns the HELD holds of ref into permanent deductions and returns
// the IDs of the stock-tracked items it touched.  Calling it again is a
// no-op because no HELD rows remain.
func (l *Ledger) Commit(ctx context.Context, tx *sql.Tx, ref string) ([]uint64, error) {
	holds, err := l.holds.ListByRefTx(ctx, tx, ref, model.HoldHeld)
	if err != nil {
		return nil, fmt.Errorf("list holds %s: %w", ref, err)
	}
	var touched []uint64
	for _, h := range holds {
		if h.Unlimited {
			continue
		}
		if err := l.menu.DeductTx(ctx, tx, h.MenuItemID, h.Quantity); err != nil {
			return nil, fmt.Errorf("deduct item %d for %s: %w", h.MenuItemID, ref, err)
		}
		touched = append(touched, h.MenuItemID)
	}
	if len(holds) > 0 {
		if _, err := l.holds.SetStatusTx(ctx, tx, ref, model.HoldHeld, model.HoldCommitted); err != nil {
			return nil, fmt.Errorf("commit holds %s: %w", ref, err)
		}
	}
	return touched, nil
}

// Release returns the HELD holds of ref to available stock and reports how
// many holds it resolved.  Releasing twice is harmless.
func (l *Ledger) Release(ctx context.Context, tx *sql.Tx, ref string) (int, error) {
	holds, err := l.holds.ListByRefTx(ctx, tx, ref, model.HoldHeld)
	if err != nil {
		return 0, fmt.Errorf("list holds %s: %w", ref, err)
	}
	for _, h := range holds {
		if h.Unlimited {
			continue
		}
		if err := l.menu.AddReservedTx(ctx, tx, h.MenuItemID, -h.Quantity); err != nil {
			return 0, fmt.Errorf("release item %d for %s: %w", h.MenuItemID, ref, err)
		}
	}
	if len(holds) > 0 {
		if _, err := l.holds.SetStatusTx(ctx, tx, ref, model.HoldHeld, model.HoldReleased); err != nil {
			return 0, fmt.Errorf("release holds %s: %w", ref, err)
		}
	}
	return len(holds), nil
}

// Restock puts committed units of ref back on hand.  It is used when an
// order is canceled before the kitchen started on it.
func (l *Ledger) Restock(ctx context.Context, tx *sql.Tx, ref string) (int, error) {
	holds, err := l.holds.ListByRefTx(ctx, tx, ref, model.HoldCommitted)
	if err != nil {
		return 0, fmt.Errorf("list committed holds %s: %w", ref, err)
	}
	for _, h := range holds {
		if h.Unlimited {
			continue
		}
		if err := l.menu.RestockTx(ctx, tx, h.MenuItemID, h.Quantity); err != nil {
			return 0, fmt.Errorf("restock item %d for %s: %w", h.MenuItemID, ref, err)
		}
	}
	if len(holds) > 0 {
		if _, err := l.holds.SetStatusTx(ctx, tx, ref, model.HoldCommitted, model.HoldRestocked); err != nil {
			return 0, fmt.Errorf("restock holds %s: %w", ref, err)
		}
	}
	return len(holds), nil
}

// IsLowStock reports whether on-hand stock is at or below the item's
// threshold and alerts staff when it is.  Unlimited items are never low.
func (l *Ledger) IsLowStock(ctx context.Context, itemID uint64) (bool, error) {
	item, err := l.menu.GetByID(ctx, itemID)
	if err != nil {
		return false, err
	}
	if !item.IsLow() {
		return false, nil
	}
	if l.alerts != nil {
		res := l.alerts.LowStock(ctx, item)
		l.log.Info("low stock", "item_id", item.ID, "stock", *item.StockQuantity, "alert", res)
	}
	return true, nil
}

// CheckLowStock runs IsLowStock for each item after a commit.  Errors are
// logged; they never affect the order that triggered the check.
func (l *Ledger) CheckLowStock(ctx context.Context, itemIDs []uint64) {
	seen := make(map[uint64]bool, len(itemIDs))
	for _, id := range itemIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		if _, err := l.IsLowStock(ctx, id); err != nil {
			l.log.Warn("low stock check failed", "item_id", id, "err", err)
		}
	}
}

// ItemAvailability is the public view of one menu item.
type ItemAvailability struct {
	ID        uint64          `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Unlimited bool            `json:"unlimited"`
	Available *int            `json:"available,omitempty"`
	LowStock  bool            `json:"low_stock"`
}

// Availability lists every orderable item with the units still free.
func (l *Ledger) Availability(ctx context.Context) ([]ItemAvailability, error) {
	items, err := l.menu.ListAvailability(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ItemAvailability, 0, len(items))
	for _, it := range items {
		a := ItemAvailability{ID: it.ID, Name: it.Name, Price: it.Price, Unlimited: it.Unlimited(), LowStock: it.IsLow()}
		if !it.Unlimited() {
			n := it.Available()
			a.Available = &n
		}
		out = append(out, a)
	}
	return out, nil
}
