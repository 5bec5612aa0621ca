package orderflow

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/iliyamo/restaurant-order-engine/internal/events"
	"github.com/iliyamo/restaurant-order-engine/internal/inventory"
	"github.com/iliyamo/restaurant-order-engine/internal/model"
	"github.com/iliyamo/restaurant-order-engine/internal/notify"
	"github.com/iliyamo/restaurant-order-engine/internal/repository"
)

// Outcome describes a finished transition.
type Outcome struct {
	Order        model.Order       `json:"order"`
	Previous     model.OrderStatus `json:"previous_status"`
	Changed      bool              `json:"changed"`
	Notification notify.Result     `json:"notification,omitempty"`
}

type Machine struct {
	orders   *repository.OrderRepo
	users    *repository.UserRepo
	ledger   *inventory.Ledger
	notifier notify.Notifier
	events   events.Publisher
	log      *slog.Logger
}

func NewMachine(orders *repository.OrderRepo, users *repository.UserRepo, ledger *inventory.Ledger,
	n notify.Notifier, pub events.Publisher, log *slog.Logger) *Machine {
	if n == nil {
		n = notify.Discard{}
	}
	if pub == nil {
		pub = events.Nop{}
	}
	return &Machine{orders: orders, users: users, ledger: ledger, notifier: n, events: pub, log: log.With("component", "orderflow")}
}

// TransitionTx validates and applies a status change to o, which the
// caller has locked in tx.  It reports false when nothing changed: the
// order was already canceled, or the move was Preparing to Preparing.
//
// Leaving Pending commits the order's held stock.  Canceling releases any
// held stock and, when the kitchen had not started yet, restocks what was
// committed.
func (m *Machine) TransitionTx(ctx context.Context, tx *sql.Tx, actor model.Actor, o *model.Order, to model.OrderStatus) (bool, error) {
	if o.Status == model.OrderCanceled && to == model.OrderCanceled {
		return false, nil
	}
	if err := Authorize(actor, *o, to); err != nil {
		return false, err
	}
	if o.Status == to {
		return false, nil
	}

	if to == model.OrderCanceled {
		if _, err := m.ledger.Release(ctx, tx, o.Number); err != nil {
			return false, err
		}
		if restockable(o.Status) {
			if _, err := m.ledger.Restock(ctx, tx, o.Number); err != nil {
				return false, err
			}
		}
	} else if o.Status == model.OrderPending {
		if _, err := m.ledger.Commit(ctx, tx, o.Number); err != nil {
			return false, err
		}
	}

	var err error
	if to == model.OrderPaid {
		err = m.orders.MarkPaidTx(ctx, tx, o.ID)
		o.PaymentStatus = model.PaymentStatusPaid
		o.PaymentExpiresAt = nil
	} else {
		err = m.orders.UpdateStatusTx(ctx, tx, o.ID, to)
	}
	if err != nil {
		return false, fmt.Errorf("update order %d: %w", o.ID, err)
	}
	o.Status = to
	return true, nil
}

// Transition locks the order, applies the change and, once committed,
// notifies the customer and publishes order.status_changed.
func (m *Machine) Transition(ctx context.Context, actor model.Actor, orderID uint64, to model.OrderStatus) (Outcome, error) {
	var out Outcome
	err := repository.WithTx(ctx, m.orders.DB(), func(tx *sql.Tx) error {
		o, err := m.orders.GetForUpdateTx(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if actor.Role == model.RoleCustomer && o.UserID != actor.UserID {
			return repository.ErrNotFound
		}
		out.Previous = o.Status
		out.Changed, err = m.TransitionTx(ctx, tx, actor, &o, to)
		out.Order = o
		return err
	})
	if err != nil {
		return Outcome{}, err
	}
	if !out.Changed {
		return out, nil
	}
	m.log.Info("order status changed", "order_id", orderID, "from", out.Previous, "to", to, "role", actor.Role)
	out.Notification = m.AfterTransition(ctx, &out.Order, out.Previous, actor)
	return out, nil
}

// AfterTransition runs the side effects of a committed change.  Failures
// are logged and reported through the returned Result only.
func (m *Machine) AfterTransition(ctx context.Context, o *model.Order, prev model.OrderStatus, actor model.Actor) notify.Result {
	ctx = context.WithoutCancel(ctx)
	if full, err := m.orders.GetByID(ctx, o.ID); err == nil {
		o.Lines = full.Lines
		o.UpdatedAt = full.UpdatedAt
	} else {
		m.log.Warn("reload order lines failed", "order_id", o.ID, "err", err)
	}
	m.events.Publish(events.EventOrderStatusChanged, o.Number, events.OrderEvent(*o, prev, actor.Role))

	msgBuilder := func(u model.User) (notify.Message, bool) { return notify.OrderStatusChanged(u, *o) }
	return m.notifyOwner(ctx, o.UserID, msgBuilder)
}

func (m *Machine) notifyOwner(ctx context.Context, userID uint64, build func(model.User) (notify.Message, bool)) notify.Result {
	u, err := m.users.GetByID(ctx, userID)
	if err != nil {
		m.log.Warn("load order owner failed", "user_id", userID, "err", err)
		return notify.Failed
	}
	msg, ok := build(u)
	if !ok {
		return ""
	}
	return m.notifier.Notify(ctx, msg)
}

// Get returns an order with its lines; customers only see their own.
func (m *Machine) Get(ctx context.Context, actor model.Actor, id uint64) (model.Order, error) {
	o, err := m.orders.GetByID(ctx, id)
	if err != nil {
		return model.Order{}, err
	}
	if actor.Role == model.RoleCustomer && o.UserID != actor.UserID {
		return model.Order{}, repository.ErrNotFound
	}
	return o, nil
}

// KitchenQueue lists orders the kitchen still has to act on, oldest first.
func (m *Machine) KitchenQueue(ctx context.Context) ([]model.Order, error) {
	return m.orders.ListByStatuses(ctx, model.KitchenStatuses)
}

// Delete removes an order outright.  It bypasses the state machine, so only
// admins may use it; stock is released or restocked as for a cancel and
// the customer is told any payment will be refunded.
func (m *Machine) Delete(ctx context.Context, actor model.Actor, orderID uint64) (notify.Result, error) {
	if actor.Role != model.RoleAdmin {
		return "", repository.ErrForbidden
	}
	snapshot, err := m.orders.GetByID(ctx, orderID)
	if err != nil {
		return "", err
	}
	err = repository.WithTx(ctx, m.orders.DB(), func(tx *sql.Tx) error {
		o, err := m.orders.GetForUpdateTx(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if _, err := m.ledger.Release(ctx, tx, o.Number); err != nil {
			return err
		}
		if restockable(o.Status) {
			if _, err := m.ledger.Restock(ctx, tx, o.Number); err != nil {
				return err
			}
		}
		return m.orders.DeleteTx(ctx, tx, o.ID)
	})
	if err != nil {
		return "", err
	}
	m.log.Warn("order deleted", "order_id", orderID, "order_number", snapshot.Number, "status", snapshot.Status)

	ctx = context.WithoutCancel(ctx)
	m.events.Publish(events.EventOrderDeleted, snapshot.Number, events.OrderEvent(snapshot, snapshot.Status, actor.Role))
	return m.notifyOwner(ctx, snapshot.UserID, func(u model.User) (notify.Message, bool) {
		return notify.OrderDeleted(u, snapshot), true
	}), nil
}
