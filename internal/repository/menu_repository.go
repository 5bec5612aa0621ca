package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/restaurant-order-engine/internal/model"
)

// MenuRepo owns the stock counters of menu_items.  Name, price and
// availability are written by the catalog admin and only read here.
type MenuRepo struct {
	db *sql.DB
}

// NewMenuRepo returns a new MenuRepo bound to the provided database.
func NewMenuRepo(db *sql.DB) *MenuRepo { return &MenuRepo{db: db} }

// DB exposes the underlying handle so callers can open transactions.
func (r *MenuRepo) DB() *sql.DB { return r.db }

const menuColumns = `id, name, price, is_available, stock_quantity, reserved_quantity, low_stock_threshold`

func scanMenuItem(s rowScanner) (model.MenuItem, error) {
	var (
		m     model.MenuItem
		stock sql.NullInt64
	)
	if err := s.Scan(&m.ID, &m.Name, &m.Price, &m.IsAvailable, &stock, &m.ReservedQuantity, &m.LowStockThreshold); err != nil {
		return model.MenuItem{}, err
	}
	if stock.Valid {
		n := int(stock.Int64)
		m.StockQuantity = &n
	}
	return m, nil
}

// GetByID loads an item without locking it.
func (r *MenuRepo) GetByID(ctx context.Context, id uint64) (model.MenuItem, error) {
	m, err := scanMenuItem(r.db.QueryRowContext(ctx, `SELECT `+menuColumns+` FROM menu_items WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.MenuItem{}, ErrNotFound
	}
	return m, err
}

// GetForUpdateTx loads an item and takes a row lock on it for the rest of
// the transaction.  Concurrent reservers of the same item queue up here.
func (r *MenuRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (model.MenuItem, error) {
	m, err := scanMenuItem(tx.QueryRowContext(ctx, `SELECT `+menuColumns+` FROM menu_items WHERE id = ? FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.MenuItem{}, ErrNotFound
	}
	return m, err
}

// AddReservedTx moves delta units into (positive) or out of (negative) the
// reserved counter.  The guard keeps reserved_quantity within [0, stock].
func (r *MenuRepo) AddReservedTx(ctx context.Context, tx *sql.Tx, id uint64, delta int) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE menu_items SET reserved_quantity = reserved_quantity + ?
		 WHERE id = ? AND stock_quantity IS NOT NULL
		   AND reserved_quantity + ? >= 0 AND reserved_quantity + ? <= stock_quantity`,
		delta, id, delta, delta,
	)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

// DeductTx turns qty reserved units into a permanent deduction.
func (r *MenuRepo) DeductTx(ctx context.Context, tx *sql.Tx, id uint64, qty int) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE menu_items SET stock_quantity = stock_quantity - ?, reserved_quantity = reserved_quantity - ?
		 WHERE id = ? AND stock_quantity IS NOT NULL AND reserved_quantity >= ? AND stock_quantity >= ?`,
		qty, qty, id, qty, qty,
	)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

// RestockTx returns qty previously deducted units to on-hand stock.
func (r *MenuRepo) RestockTx(ctx context.Context, tx *sql.Tx, id uint64, qty int) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE menu_items SET stock_quantity = stock_quantity + ? WHERE id = ? AND stock_quantity IS NOT NULL`,
		qty, id,
	)
	return err
}

// ListAvailability returns every orderable item ordered by name.
func (r *MenuRepo) ListAvailability(ctx context.Context) ([]model.MenuItem, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+menuColumns+` FROM menu_items WHERE is_available = 1 ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.MenuItem
	for rows.Next() {
		m, err := scanMenuItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// expectOneRow turns an UPDATE whose guard filtered the row out into
// ErrConflict.  Callers never pass a zero delta, so a matched row always changes.
func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}
