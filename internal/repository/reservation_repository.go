package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/restaurant-order-engine/internal/model"
)

// ReservationRepo provides persistence for table bookings.  booking_date is
// a DATE column; it is read back as "YYYY-MM-DD" so the scheduler can
// combine it with start_time in the restaurant's time zone.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

// DB exposes the underlying handle so callers can open transactions.
func (r *ReservationRepo) DB() *sql.DB { return r.db }

const reservationColumns = `id, reservation_number, user_id, DATE_FORMAT(booking_date, '%Y-%m-%d'), start_time,
	duration_hours, guests, table_no, status, created_at`

func scanReservation(s rowScanner) (model.Reservation, error) {
	var (
		res    model.Reservation
		status string
	)
	if err := s.Scan(&res.ID, &res.Number, &res.UserID, &res.Date, &res.StartTime,
		&res.DurationHours, &res.Guests, &res.TableNo, &status, &res.CreatedAt); err != nil {
		return model.Reservation{}, err
	}
	res.Status = model.ReservationStatus(status)
	return res, nil
}

func collectReservations(rows *sql.Rows) ([]model.Reservation, error) {
	defer rows.Close()
	var out []model.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// LockSlotTx serialises bookings for one table on one date.  The upsert
// takes an exclusive lock on the (table_no, booking_date) row that is held
// until the transaction ends, including when no booking exists yet.
func (r *ReservationRepo) LockSlotTx(ctx context.Context, tx *sql.Tx, tableNo, date string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO reservation_locks (table_no, booking_date) VALUES (?, ?)
		 ON DUPLICATE KEY UPDATE table_no = VALUES(table_no)`,
		tableNo, date,
	)
	return err
}

// ActiveForTableTx returns non-canceled bookings of a table on a date.
func (r *ReservationRepo) ActiveForTableTx(ctx context.Context, tx *sql.Tx, tableNo, date string) ([]model.Reservation, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+reservationColumns+` FROM table_reservations
		 WHERE table_no = ? AND booking_date = ? AND status <> ? ORDER BY start_time`,
		tableNo, date, string(model.ReservationCanceled),
	)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

// ActiveForTable is the read-only variant used by the public availability check.
func (r *ReservationRepo) ActiveForTable(ctx context.Context, tableNo, date string) ([]model.Reservation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+reservationColumns+` FROM table_reservations
		 WHERE table_no = ? AND booking_date = ? AND status <> ? ORDER BY start_time`,
		tableNo, date, string(model.ReservationCanceled),
	)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

// CreateTx inserts a booking and populates its ID.
func (r *ReservationRepo) CreateTx(ctx context.Context, tx *sql.Tx, res *model.Reservation) error {
	result, err := tx.ExecContext(ctx,
		`INSERT INTO table_reservations (reservation_number, user_id, booking_date, start_time, duration_hours, guests, table_no, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		res.Number, res.UserID, res.Date, res.StartTime, res.DurationHours, res.Guests, res.TableNo, string(res.Status),
	)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	res.ID = uint64(id)
	return nil
}

// GetByID loads a single booking.
func (r *ReservationRepo) GetByID(ctx context.Context, id uint64) (model.Reservation, error) {
	res, err := scanReservation(r.db.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM table_reservations WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Reservation{}, ErrNotFound
	}
	return res, err
}

// GetForUpdateTx loads and locks a booking.
func (r *ReservationRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Reservation, error) {
	res, err := scanReservation(tx.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM table_reservations WHERE id = ? FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Reservation{}, ErrNotFound
	}
	return res, err
}

// UpdateStatusTx sets the status of a booking.
func (r *ReservationRepo) UpdateStatusTx(ctx context.Context, tx *sql.Tx, id uint64, status model.ReservationStatus) error {
	_, err := tx.ExecContext(ctx, `UPDATE table_reservations SET status = ? WHERE id = ?`, string(status), id)
	return err
}

// ListByUser returns a user's bookings, newest first.
func (r *ReservationRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Reservation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+reservationColumns+` FROM table_reservations WHERE user_id = ? ORDER BY booking_date DESC, start_time DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}
