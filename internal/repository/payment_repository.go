package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/restaurant-order-engine/internal/model"
)

// PaymentRepo stores external payment attempts.  Each attempt belongs to one
// order; the provider's payment ID is unique.
type PaymentRepo struct {
	db *sql.DB
}

// NewPaymentRepo returns a new PaymentRepo bound to the given database.
func NewPaymentRepo(db *sql.DB) *PaymentRepo { return &PaymentRepo{db: db} }

const paymentColumns = `id, order_id, provider, provider_payment_id, amount, currency, status, expires_at, created_at, updated_at`

func scanPayment(s rowScanner) (model.Payment, error) {
	var (
		p      model.Payment
		status string
	)
	if err := s.Scan(&p.ID, &p.OrderID, &p.Provider, &p.ProviderPaymentID, &p.Amount, &p.Currency,
		&status, &p.ExpiresAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return model.Payment{}, err
	}
	p.Status = model.PaymentState(status)
	return p, nil
}

// Create inserts an INITIATED attempt and populates its ID.
func (r *PaymentRepo) Create(ctx context.Context, p *model.Payment) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO payments (order_id, provider, provider_payment_id, amount, currency, status, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.OrderID, p.Provider, p.ProviderPaymentID, p.Amount, p.Currency, string(p.Status), p.ExpiresAt.UTC(),
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	return nil
}

// GetByProviderID reads an attempt without locking it.  Callers use it to
// find the order to lock first.
func (r *PaymentRepo) GetByProviderID(ctx context.Context, providerPaymentID string) (model.Payment, error) {
	p, err := scanPayment(r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE provider_payment_id = ?`, providerPaymentID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Payment{}, ErrNotFound
	}
	return p, err
}

// GetByProviderIDForUpdateTx locks the attempt the provider is calling back about.
func (r *PaymentRepo) GetByProviderIDForUpdateTx(ctx context.Context, tx *sql.Tx, providerPaymentID string) (model.Payment, error) {
	p, err := scanPayment(tx.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE provider_payment_id = ? FOR UPDATE`, providerPaymentID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Payment{}, ErrNotFound
	}
	return p, err
}

// OpenForOrderTx locks the INITIATED attempts of an order, if any.
func (r *PaymentRepo) OpenForOrderTx(ctx context.Context, tx *sql.Tx, orderID uint64) ([]model.Payment, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE order_id = ? AND status = ? ORDER BY id FOR UPDATE`,
		orderID, string(model.PaymentInitiated))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdateStatusTx records the outcome of an attempt.
func (r *PaymentRepo) UpdateStatusTx(ctx context.Context, tx *sql.Tx, id uint64, status model.PaymentState) error {
	_, err := tx.ExecContext(ctx, `UPDATE payments SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id)
	return err
}
