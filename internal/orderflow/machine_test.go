package orderflow

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/restaurant-order-engine/internal/inventory"
	"github.com/iliyamo/restaurant-order-engine/internal/model"
	"github.com/iliyamo/restaurant-order-engine/internal/notify"
	"github.com/iliyamo/restaurant-order-engine/internal/repository"
)

var (
	orderCols = []string{"id", "order_number", "user_id", "status", "payment_status", "payment_method", "order_type", "table_no",
		"total", "phone", "address_district", "address_city", "address_street", "payment_expires_at", "created_at", "updated_at"}
	lineCols = []string{"menu_item_id", "name", "unit_price", "quantity"}
	holdCols = []string{"id", "order_ref", "menu_item_id", "quantity", "unlimited", "status", "expires_at", "created_at"}
	userCols = []string{"id", "email", "full_name", "role", "phone", "address_district", "address_city", "address_street", "loyalty_points"}
)

type recordingNotifier struct{ msgs []notify.Message }

func (r *recordingNotifier) Notify(_ context.Context, m notify.Message) notify.Result {
	r.msgs = append(r.msgs, m)
	return notify.Pending
}

type recordingPublisher struct {
	mu    sync.Mutex
	types []string
}

func (p *recordingPublisher) Publish(eventType, _ string, _ any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.types = append(p.types, eventType)
}

func newMachine(t *testing.T) (*Machine, sqlmock.Sqlmock, *recordingNotifier, *recordingPublisher) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	ledger := inventory.NewLedger(repository.NewMenuRepo(db), repository.NewStockHoldRepo(db), nil, log)
	n, p := &recordingNotifier{}, &recordingPublisher{}
	return NewMachine(repository.NewOrderRepo(db), repository.NewUserRepo(db), ledger, n, p, log), mock, n, p
}

func orderRow(id int, status, method string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(orderCols).AddRow(id, "0A1B2C3D4E5F", 3, status, "pending", method, "takeaway", nil,
		"700.00", "01700000000", "Dhaka", "Dhaka", "Road 1", nil, now, now)
}

func TestCancelTwiceIsNoop(t *testing.T) {
	m, mock, n, p := newMachine(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM orders WHERE id = \? FOR UPDATE`).WithArgs(uint64(1)).
		WillReturnRows(orderRow(1, "Canceled", "cash"))
	mock.ExpectCommit()

	out, err := m.Transition(context.Background(), model.Actor{UserID: 3, Role: model.RoleCustomer}, 1, model.OrderCanceled)
	require.NoError(t, err)
	assert.False(t, out.Changed)
	assert.Equal(t, model.OrderCanceled, out.Order.Status)
	assert.Empty(t, n.msgs)
	assert.Empty(t, p.types)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvalidTransitionIsRejected(t *testing.T) {
	m, mock, _, _ := newMachine(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs(uint64(1)).WillReturnRows(orderRow(1, "Delivered", "cash"))
	mock.ExpectRollback()

	_, err := m.Transition(context.Background(), model.Actor{Role: model.RoleAdmin}, 1, model.OrderPreparing)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCustomerCannotTouchOthersOrder(t *testing.T) {
	m, mock, _, _ := newMachine(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs(uint64(1)).WillReturnRows(orderRow(1, "Pending", "cash"))
	mock.ExpectRollback()

	_, err := m.Transition(context.Background(), model.Actor{UserID: 99, Role: model.RoleCustomer}, 1, model.OrderCanceled)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestCancelPendingCashOrderRestocks(t *testing.T) {
	m, mock, n, p := newMachine(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs(uint64(1)).WillReturnRows(orderRow(1, "Pending", "cash"))
	mock.ExpectQuery(`FROM stock_holds`).WithArgs("0A1B2C3D4E5F", "HELD").WillReturnRows(sqlmock.NewRows(holdCols))
	mock.ExpectQuery(`FROM stock_holds`).WithArgs("0A1B2C3D4E5F", "COMMITTED").
		WillReturnRows(sqlmock.NewRows(holdCols).AddRow(1, "0A1B2C3D4E5F", 5, 2, false, "COMMITTED", now, now))
	mock.ExpectExec(`UPDATE menu_items SET stock_quantity = stock_quantity \+ \?`).WithArgs(2, uint64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE stock_holds SET status`).WithArgs("RESTOCKED", "0A1B2C3D4E5F", "COMMITTED").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE orders SET status = \?`).WithArgs("Canceled", sqlmock.AnyArg(), uint64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	// after commit
	mock.ExpectQuery(`FROM orders WHERE id = \?`).WithArgs(uint64(1)).WillReturnRows(orderRow(1, "Canceled", "cash"))
	mock.ExpectQuery(`FROM order_lines`).WithArgs(uint64(1)).
		WillReturnRows(sqlmock.NewRows(lineCols).AddRow(5, "Kacchi", "350.00", 2))
	mock.ExpectQuery(`FROM users`).WithArgs(uint64(3)).
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(3, "guest@example.com", "Rahim", "customer", "", "", "", "", 0))

	out, err := m.Transition(context.Background(), model.Actor{UserID: 3, Role: model.RoleCustomer}, 1, model.OrderCanceled)
	require.NoError(t, err)
	assert.True(t, out.Changed)
	assert.Equal(t, model.OrderPending, out.Previous)
	assert.Equal(t, notify.Pending, out.Notification)
	require.Len(t, n.msgs, 1)
	assert.Equal(t, "Order #0A1B2C3D4E5F Canceled", n.msgs[0].Subject)
	assert.Contains(t, n.msgs[0].Body, "Kacchi x 2 : 700.00")
	assert.Equal(t, []string{"order.status_changed"}, p.types)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChefStartsPaidOrderWithoutStockWork(t *testing.T) {
	m, mock, n, _ := newMachine(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs(uint64(1)).WillReturnRows(orderRow(1, "Paid", "external"))
	mock.ExpectExec(`UPDATE orders SET status = \?`).WithArgs("Preparing", sqlmock.AnyArg(), uint64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery(`FROM orders WHERE id = \?`).WillReturnRows(orderRow(1, "Preparing", "external"))
	mock.ExpectQuery(`FROM order_lines`).WillReturnRows(sqlmock.NewRows(lineCols))
	mock.ExpectQuery(`FROM users`).
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(3, "guest@example.com", "Rahim", "customer", "", "", "", "", 0))

	out, err := m.Transition(context.Background(), model.Actor{UserID: 10, Role: model.RoleChef}, 1, model.OrderPreparing)
	require.NoError(t, err)
	assert.True(t, out.Changed)
	// Preparing is not announced to the customer.
	assert.Empty(t, out.Notification)
	assert.Empty(t, n.msgs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionTxCommitsHeldStockLeavingPending(t *testing.T) {
	m, mock, _, _ := newMachine(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM stock_holds`).WithArgs("REF000000001", "HELD").
		WillReturnRows(sqlmock.NewRows(holdCols).AddRow(1, "REF000000001", 5, 1, false, "HELD", now, now))
	mock.ExpectExec(`UPDATE menu_items SET stock_quantity = stock_quantity - \?`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE stock_holds SET status`).WithArgs("COMMITTED", "REF000000001", "HELD").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE orders SET status = \?, payment_status = \?`).
		WithArgs("Paid", "paid", sqlmock.AnyArg(), uint64(4)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	o := model.Order{ID: 4, Number: "REF000000001", Status: model.OrderPending, PaymentMethod: model.PaymentExternal}
	err := repository.WithTx(context.Background(), m.orders.DB(), func(tx *sql.Tx) error {
		changed, err := m.TransitionTx(context.Background(), tx, model.SystemActor, &o, model.OrderPaid)
		assert.True(t, changed)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, model.OrderPaid, o.Status)
	assert.Equal(t, model.PaymentStatusPaid, o.PaymentStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteRequiresAdmin(t *testing.T) {
	m, _, _, _ := newMachine(t)
	_, err := m.Delete(context.Background(), model.Actor{Role: model.RoleManager}, 1)
	assert.ErrorIs(t, err, repository.ErrForbidden)
}

func TestDeleteNotifiesRefund(t *testing.T) {
	m, mock, n, p := newMachine(t)

	mock.ExpectQuery(`FROM orders WHERE id = \?`).WithArgs(uint64(1)).WillReturnRows(orderRow(1, "Confirmed", "cash"))
	mock.ExpectQuery(`FROM order_lines`).WillReturnRows(sqlmock.NewRows(lineCols).AddRow(5, "Kacchi", "350.00", 2))
	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs(uint64(1)).WillReturnRows(orderRow(1, "Confirmed", "cash"))
	mock.ExpectQuery(`FROM stock_holds`).WithArgs("0A1B2C3D4E5F", "HELD").WillReturnRows(sqlmock.NewRows(holdCols))
	mock.ExpectQuery(`FROM stock_holds`).WithArgs("0A1B2C3D4E5F", "COMMITTED").WillReturnRows(sqlmock.NewRows(holdCols))
	mock.ExpectExec(`DELETE FROM order_lines`).WithArgs(uint64(1)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM orders`).WithArgs(uint64(1)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery(`FROM users`).
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(3, "guest@example.com", "Rahim", "customer", "", "", "", "", 0))

	res, err := m.Delete(context.Background(), model.Actor{Role: model.RoleAdmin}, 1)
	require.NoError(t, err)
	assert.Equal(t, notify.Pending, res)
	require.Len(t, n.msgs, 1)
	assert.Contains(t, n.msgs[0].Body, "refund")
	assert.Equal(t, []string{"order.deleted"}, p.types)
	assert.NoError(t, mock.ExpectationsWereMet())
}
