package inventory

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/restaurant-order-engine/internal/model"
	"github.com/iliyamo/restaurant-order-engine/internal/notify"
	"github.com/iliyamo/restaurant-order-engine/internal/repository"
)

type fakeAlerter struct{ items []model.MenuItem }

func (f *fakeAlerter) LowStock(_ context.Context, item model.MenuItem) notify.Result {
	f.items = append(f.items, item)
	return notify.Pending
}

var menuCols = []string{"id", "name", "price", "is_available", "stock_quantity", "reserved_quantity", "low_stock_threshold"}
var holdCols = []string{"id", "order_ref", "menu_item_id", "quantity", "unlimited", "status", "expires_at", "created_at"}

func newLedger(t *testing.T) (*Ledger, sqlmock.Sqlmock, *sql.DB, *fakeAlerter) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	alerts := &fakeAlerter{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewLedger(repository.NewMenuRepo(db), repository.NewStockHoldRepo(db), alerts, log), mock, db, alerts
}

func TestReserveHoldsStock(t *testing.T) {
	l, mock, db, _ := newLedger(t)
	exp := time.Now().Add(15 * time.Minute)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM menu_items WHERE id = \? FOR UPDATE`).WithArgs(uint64(1)).
		WillReturnRows(sqlmock.NewRows(menuCols).AddRow(1, "Kacchi", "350.00", true, 10, 2, 5))
	mock.ExpectExec(`UPDATE menu_items SET reserved_quantity = reserved_quantity \+ \?`).
		WithArgs(3, uint64(1), 3, 3).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO stock_holds`).
		WithArgs("ABC123DEF456", uint64(1), 3, false, "HELD", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(9, 1))
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)
	item, err := l.Reserve(context.Background(), tx, "ABC123DEF456", 1, 3, exp)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.Equal(t, 5, item.ReservedQuantity)
	assert.Equal(t, 5, item.Available())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveInsufficientStock(t *testing.T) {
	l, mock, db, _ := newLedger(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM menu_items WHERE id = \? FOR UPDATE`).WithArgs(uint64(4)).
		WillReturnRows(sqlmock.NewRows(menuCols).AddRow(4, "Borhani", "80.00", true, 3, 2, 5))
	mock.ExpectRollback()

	tx, err := db.Begin()
	require.NoError(t, err)
	_, err = l.Reserve(context.Background(), tx, "REF", 4, 2, time.Now())
	require.Error(t, err)
	require.NoError(t, tx.Rollback())

	assert.True(t, errors.Is(err, model.ErrInsufficientStock))
	var se *model.InsufficientStockError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "Borhani", se.Item)
	assert.Equal(t, 1, se.Available)
	assert.Equal(t, "not enough stock for Borhani", err.Error())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveUnavailableItem(t *testing.T) {
	l, mock, db, _ := newLedger(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs(uint64(2)).
		WillReturnRows(sqlmock.NewRows(menuCols).AddRow(2, "Fuchka", "60.00", false, nil, 0, 5))
	mock.ExpectRollback()

	tx, err := db.Begin()
	require.NoError(t, err)
	_, err = l.Reserve(context.Background(), tx, "REF", 2, 1, time.Now())
	require.NoError(t, tx.Rollback())
	assert.ErrorIs(t, err, model.ErrInsufficientStock)
}

func TestReserveUnlimitedSkipsCounters(t *testing.T) {
	l, mock, db, _ := newLedger(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs(uint64(7)).
		WillReturnRows(sqlmock.NewRows(menuCols).AddRow(7, "Tea", "20.00", true, nil, 0, 5))
	mock.ExpectExec(`INSERT INTO stock_holds`).
		WithArgs("REF", uint64(7), 50, true, "HELD", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)
	item, err := l.Reserve(context.Background(), tx, "REF", 7, 50, time.Now())
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.True(t, item.Unlimited())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveLostRaceIsInsufficientStock(t *testing.T) {
	l, mock, db, _ := newLedger(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs(uint64(1)).
		WillReturnRows(sqlmock.NewRows(menuCols).AddRow(1, "Kacchi", "350.00", true, 1, 0, 5))
	mock.ExpectExec(`UPDATE menu_items SET reserved_quantity`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	tx, err := db.Begin()
	require.NoError(t, err)
	_, err = l.Reserve(context.Background(), tx, "REF", 1, 1, time.Now())
	require.NoError(t, tx.Rollback())
	assert.ErrorIs(t, err, model.ErrInsufficientStock)
}

func TestReserveAllLocksInItemOrder(t *testing.T) {
	l, mock, db, _ := newLedger(t)

	mock.ExpectBegin()
	for _, id := range []int{2, 5} {
		mock.ExpectQuery(`FOR UPDATE`).WithArgs(uint64(id)).
			WillReturnRows(sqlmock.NewRows(menuCols).AddRow(id, "item", "10.00", true, 10, 0, 5))
		mock.ExpectExec(`UPDATE menu_items SET reserved_quantity`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO stock_holds`).WillReturnResult(sqlmock.NewResult(int64(id), 1))
	}
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)
	items, err := l.ReserveAll(context.Background(), tx, "REF", []Line{{ItemID: 5, Qty: 1}, {ItemID: 2, Qty: 2}}, time.Now())
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	require.Len(t, items, 2)
	assert.Equal(t, uint64(2), items[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitDeductsHeldStock(t *testing.T) {
	l, mock, db, _ := newLedger(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM stock_holds WHERE order_ref = \? AND status = \?`).WithArgs("REF", "HELD").
		WillReturnRows(sqlmock.NewRows(holdCols).
			AddRow(1, "REF", 3, 2, false, "HELD", now, now).
			AddRow(2, "REF", 8, 1, true, "HELD", now, now))
	mock.ExpectExec(`UPDATE menu_items SET stock_quantity = stock_quantity - \?`).
		WithArgs(2, 2, uint64(3), 2, 2).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE stock_holds SET status = \?`).WithArgs("COMMITTED", "REF", "HELD").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)
	touched, err := l.Commit(context.Background(), tx, "REF")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.Equal(t, []uint64{3}, touched)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseIsIdempotent(t *testing.T) {
	l, mock, db, _ := newLedger(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM stock_holds`).WithArgs("REF", "HELD").
		WillReturnRows(sqlmock.NewRows(holdCols).AddRow(1, "REF", 3, 2, false, "HELD", now, now))
	mock.ExpectExec(`UPDATE menu_items SET reserved_quantity`).WithArgs(-2, uint64(3), -2, -2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE stock_holds SET status`).WithArgs("RELEASED", "REF", "HELD").
		WillReturnResult(sqlmock.NewResult(0, 1))
	// second call finds nothing left to release
	mock.ExpectQuery(`FROM stock_holds`).WithArgs("REF", "HELD").WillReturnRows(sqlmock.NewRows(holdCols))
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)
	n, err := l.Release(context.Background(), tx, "REF")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = l.Release(context.Background(), tx, "REF")
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRestockReturnsCommittedUnits(t *testing.T) {
	l, mock, db, _ := newLedger(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM stock_holds`).WithArgs("REF", "COMMITTED").
		WillReturnRows(sqlmock.NewRows(holdCols).AddRow(1, "REF", 3, 4, false, "COMMITTED", now, now))
	mock.ExpectExec(`UPDATE menu_items SET stock_quantity = stock_quantity \+ \?`).WithArgs(4, uint64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE stock_holds SET status`).WithArgs("RESTOCKED", "REF", "COMMITTED").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)
	n, err := l.Restock(context.Background(), tx, "REF")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsLowStock(t *testing.T) {
	tests := []struct {
		name    string
		stock   any
		want    bool
		alerted int
	}{
		{"at threshold", 5, true, 1},
		{"above threshold", 6, false, 0},
		{"unlimited", nil, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, mock, _, alerts := newLedger(t)
			mock.ExpectQuery(`FROM menu_items WHERE id = \?`).WithArgs(uint64(1)).
				WillReturnRows(sqlmock.NewRows(menuCols).AddRow(1, "Kacchi", "350.00", true, tt.stock, 0, 5))

			low, err := l.IsLowStock(context.Background(), 1)
			require.NoError(t, err)
			assert.Equal(t, tt.want, low)
			assert.Len(t, alerts.items, tt.alerted)
		})
	}
}

func TestAvailability(t *testing.T) {
	l, mock, _, _ := newLedger(t)
	mock.ExpectQuery(`FROM menu_items WHERE is_available = 1`).
		WillReturnRows(sqlmock.NewRows(menuCols).
			AddRow(1, "Kacchi", "350.00", true, 10, 4, 5).
			AddRow(2, "Tea", "20.00", true, nil, 0, 5))

	got, err := l.Availability(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.NotNil(t, got[0].Available)
	assert.Equal(t, 6, *got[0].Available)
	assert.True(t, got[1].Unlimited)
	assert.Nil(t, got[1].Available)
}
