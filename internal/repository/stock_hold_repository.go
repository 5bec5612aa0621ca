package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/restaurant-order-engine/internal/model"
)

// StockHoldRepo provides data access to the stock_holds table.  Holds are
// keyed by the order reference so they can be taken before the order row
// exists.  All timestamps are UTC.
type StockHoldRepo struct {
	db *sql.DB
}

// NewStockHoldRepo returns a new StockHoldRepo bound to the provided database.
func NewStockHoldRepo(db *sql.DB) *StockHoldRepo { return &StockHoldRepo{db: db} }

// CreateTx inserts a hold within the caller's transaction and populates its ID.
func (r *StockHoldRepo) CreateTx(ctx context.Context, tx *sql.Tx, h *model.StockHold) error {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO stock_holds (order_ref, menu_item_id, quantity, unlimited, status, expires_at) VALUES (?, ?, ?, ?, ?, ?)`,
		h.OrderRef, h.MenuItemID, h.Quantity, h.Unlimited, string(h.Status), h.ExpiresAt.UTC(),
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	h.ID = uint64(id)
	return nil
}

// ListByRefTx returns the holds of an order in the given status, locked for
// update and ordered by item so every caller locks items in the same order.
func (r *StockHoldRepo) ListByRefTx(ctx context.Context, tx *sql.Tx, ref string, status model.HoldStatus) ([]model.StockHold, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, order_ref, menu_item_id, quantity, unlimited, status, expires_at, created_at
		 FROM stock_holds WHERE order_ref = ? AND status = ? ORDER BY menu_item_id FOR UPDATE`,
		ref, string(status),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.StockHold
	for rows.Next() {
		var (
			h  model.StockHold
			st string
		)
		if err := rows.Scan(&h.ID, &h.OrderRef, &h.MenuItemID, &h.Quantity, &h.Unlimited, &st, &h.ExpiresAt, &h.CreatedAt); err != nil {
			return nil, err
		}
		h.Status = model.HoldStatus(st)
		out = append(out, h)
	}
	return out, rows.Err()
}

// SetStatusTx moves every hold of ref from one status to another and returns
// how many rows changed.
func (r *StockHoldRepo) SetStatusTx(ctx context.Context, tx *sql.Tx, ref string, from, to model.HoldStatus) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE stock_holds SET status = ? WHERE order_ref = ? AND status = ?`,
		string(to), ref, string(from),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ExpiredRefs lists order references that still have HELD rows whose
// expires_at is at or before now.  The sweep resolves them one by one.
func (r *StockHoldRepo) ExpiredRefs(ctx context.Context, now time.Time, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT order_ref FROM stock_holds
		 WHERE status = 'HELD' AND expires_at <= ? ORDER BY order_ref LIMIT ?`,
		now.UTC(), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var refs []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}
