package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/restaurant-order-engine/internal/model"
)

// OrderRepo provides persistence for orders and their line snapshots.
// Lines are written once at checkout and never updated.
type OrderRepo struct {
	db *sql.DB
}

// NewOrderRepo returns a new OrderRepo bound to the given database.
func NewOrderRepo(db *sql.DB) *OrderRepo { return &OrderRepo{db: db} }

// DB exposes the underlying handle so callers can open transactions.
func (r *OrderRepo) DB() *sql.DB { return r.db }

const orderColumns = `id, order_number, user_id, status, payment_status, payment_method, order_type, table_no, total,
	phone, address_district, address_city, address_street, payment_expires_at, created_at, updated_at`

func scanOrder(s rowScanner) (model.Order, error) {
	var (
		o                       model.Order
		status, pstatus, method string
		otype                   string
		tableNo                 sql.NullString
		expires                 sql.NullTime
	)
	err := s.Scan(&o.ID, &o.Number, &o.UserID, &status, &pstatus, &method, &otype, &tableNo, &o.Total,
		&o.Delivery.Phone, &o.Delivery.District, &o.Delivery.City, &o.Delivery.Street, &expires, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return model.Order{}, err
	}
	o.Status = model.OrderStatus(status)
	o.PaymentStatus = model.PaymentStatus(pstatus)
	o.PaymentMethod = model.PaymentMethod(method)
	o.OrderType = model.OrderType(otype)
	if tableNo.Valid {
		t := tableNo.String
		o.TableNo = &t
	}
	if expires.Valid {
		t := expires.Time
		o.PaymentExpiresAt = &t
	}
	return o, nil
}

// CreateTx inserts the order and its lines in the caller's transaction and
// populates the generated ID.
func (r *OrderRepo) CreateTx(ctx context.Context, tx *sql.Tx, o *model.Order) error {
	var expires any
	if o.PaymentExpiresAt != nil {
		expires = o.PaymentExpiresAt.UTC()
	}
	var tableNo any
	if o.TableNo != nil {
		tableNo = *o.TableNo
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO orders (order_number, user_id, status, payment_status, payment_method, order_type, table_no, total,
			phone, address_district, address_city, address_street, payment_expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.Number, o.UserID, string(o.Status), string(o.PaymentStatus), string(o.PaymentMethod), string(o.OrderType), tableNo, o.Total,
		o.Delivery.Phone, o.Delivery.District, o.Delivery.City, o.Delivery.Street, expires,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	o.ID = uint64(id)
	return r.createLinesTx(ctx, tx, o.ID, o.Lines)
}

// createLinesTx inserts all lines of an order in a single statement.
func (r *OrderRepo) createLinesTx(ctx context.Context, tx *sql.Tx, orderID uint64, lines []model.OrderLine) error {
	if len(lines) == 0 {
		return nil
	}
	query := `INSERT INTO order_lines (order_id, menu_item_id, name, unit_price, quantity) VALUES `
	args := make([]any, 0, len(lines)*5)
	for i, l := range lines {
		if i > 0 {
			query += ", "
		}
		query += "(?, ?, ?, ?, ?)"
		args = append(args, orderID, l.MenuItemID, l.Name, l.UnitPrice, l.Quantity)
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// GetByID loads an order with its lines.
func (r *OrderRepo) GetByID(ctx context.Context, id uint64) (model.Order, error) {
	o, err := scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Order{}, ErrNotFound
	}
	if err != nil {
		return model.Order{}, err
	}
	o.Lines, err = r.lines(ctx, o.ID)
	return o, err
}

// GetForUpdateTx locks the order row.  Lines are not loaded.
func (r *OrderRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Order, error) {
	o, err := scanOrder(tx.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ? FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Order{}, ErrNotFound
	}
	return o, err
}

// GetByNumberForUpdateTx locks the order with the given public number.
func (r *OrderRepo) GetByNumberForUpdateTx(ctx context.Context, tx *sql.Tx, number string) (model.Order, error) {
	o, err := scanOrder(tx.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_number = ? FOR UPDATE`, number))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Order{}, ErrNotFound
	}
	return o, err
}

func (r *OrderRepo) lines(ctx context.Context, orderID uint64) ([]model.OrderLine, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT menu_item_id, name, unit_price, quantity FROM order_lines WHERE order_id = ? ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.OrderLine
	for rows.Next() {
		var l model.OrderLine
		if err := rows.Scan(&l.MenuItemID, &l.Name, &l.UnitPrice, &l.Quantity); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// UpdateStatusTx sets the status column.  The caller holds the row lock and
// has already validated the transition.
func (r *OrderRepo) UpdateStatusTx(ctx context.Context, tx *sql.Tx, id uint64, status model.OrderStatus) error {
	_, err := tx.ExecContext(ctx, `UPDATE orders SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id)
	return err
}

// MarkPaidTx records a settled external payment.
func (r *OrderRepo) MarkPaidTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = ?, payment_status = ?, payment_expires_at = NULL, updated_at = ? WHERE id = ?`,
		string(model.OrderPaid), string(model.PaymentStatusPaid), time.Now().UTC(), id)
	return err
}

// ListByStatuses returns orders in any of the given states, oldest first.
func (r *OrderRepo) ListByStatuses(ctx context.Context, statuses []model.OrderStatus) ([]model.Order, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	args := make([]any, len(statuses))
	for i, s := range statuses {
		args[i] = string(s)
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE status IN (`+placeholders(len(statuses))+`) ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, err
	}
	var out []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].Lines, err = r.lines(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// DeleteTx removes an order and its lines.  Only the admin delete path uses it.
func (r *OrderRepo) DeleteTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM order_lines WHERE order_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM orders WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
