package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/restaurant-order-engine/internal/events"
	"github.com/iliyamo/restaurant-order-engine/internal/inventory"
	"github.com/iliyamo/restaurant-order-engine/internal/model"
	"github.com/iliyamo/restaurant-order-engine/internal/notify"
	"github.com/iliyamo/restaurant-order-engine/internal/orderflow"
	"github.com/iliyamo/restaurant-order-engine/internal/redisx"
	"github.com/iliyamo/restaurant-order-engine/internal/repository"
)

// ErrInvalidCallback rejects callbacks with an unknown status.
var ErrInvalidCallback = errors.New("invalid payment callback")

// Callback statuses sent by the provider.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusCancel  = "cancel"
)

// Claimer deduplicates provider callbacks.
type Claimer interface {
	Claim(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Forget(ctx context.Context, key string) error
}

// StaffNotifier is told when a paid order reaches the kitchen.
type StaffNotifier interface {
	NewOrder(ctx context.Context, o model.Order) notify.Result
}

// Outcome is the result of handling a callback.
type Outcome struct {
	Order        model.Order   `json:"order"`
	Payment      model.Payment `json:"payment"`
	Duplicate    bool          `json:"duplicate,omitempty"`
	Unconfirmed  bool          `json:"unconfirmed,omitempty"` // provider still reports the payment open
	Notification notify.Result `json:"notification,omitempty"`
}

// Config holds the reconciliation settings.
type Config struct {
	Currency    string
	TTL         time.Duration // payment window after checkout
	LoyaltyUnit int           // currency units per loyalty point, 0 disables loyalty
}

type Reconciler struct {
	cfg      Config
	provider Provider
	orders   *repository.OrderRepo
	payments *repository.PaymentRepo
	users    *repository.UserRepo
	ledger   *inventory.Ledger
	machine  *orderflow.Machine
	notifier notify.Notifier
	staff    StaffNotifier
	events   events.Publisher
	dedup    Claimer
	log      *slog.Logger

	now func() time.Time
}

// Deps groups the collaborators of a Reconciler.
type Deps struct {
	Orders   *repository.OrderRepo
	Payments *repository.PaymentRepo
	Users    *repository.UserRepo
	Ledger   *inventory.Ledger
	Machine  *orderflow.Machine
	Notifier notify.Notifier
	Staff    StaffNotifier
	Events   events.Publisher
	Dedup    Claimer
}

func NewReconciler(cfg Config, provider Provider, d Deps, log *slog.Logger) *Reconciler {
	if cfg.Currency == "" {
		cfg.Currency = "BDT"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 15 * time.Minute
	}
	if d.Notifier == nil {
		d.Notifier = notify.Discard{}
	}
	if d.Events == nil {
		d.Events = events.Nop{}
	}
	return &Reconciler{
		cfg:      cfg,
		provider: provider,
		orders:   d.Orders,
		payments: d.Payments,
		users:    d.Users,
		ledger:   d.Ledger,
		machine:  d.Machine,
		notifier: d.Notifier,
		staff:    d.Staff,
		events:   d.Events,
		dedup:    d.Dedup,
		log:      log.With("component", "payment"),
		now:      time.Now,
	}
}

// Initiate opens a payment for o with the provider and records the attempt.
// It returns the URL the guest must be redirected to.
func (r *Reconciler) Initiate(ctx context.Context, o model.Order) (string, error) {
	token, err := r.provider.GrantToken(ctx)
	if err != nil {
		return "", providerErr("grant_token", err)
	}
	created, err := r.provider.CreatePayment(ctx, token, o.Total, r.cfg.Currency, "INV"+o.Number)
	if err != nil {
		return "", providerErr("create_payment", err)
	}
	expires := r.now().Add(r.cfg.TTL)
	if o.PaymentExpiresAt != nil {
		expires = *o.PaymentExpiresAt
	}
	p := model.Payment{
		OrderID:           o.ID,
		Provider:          r.provider.Name(),
		ProviderPaymentID: created.PaymentID,
		Amount:            o.Total,
		Currency:          r.cfg.Currency,
		Status:            model.PaymentInitiated,
		ExpiresAt:         expires,
	}
	if err := r.payments.Create(ctx, &p); err != nil {
		return "", fmt.Errorf("record payment for order %d: %w", o.ID, err)
	}
	r.log.Info("payment initiated", "order_id", o.ID, "payment_id", p.ProviderPaymentID, "amount", o.Total.StringFixed(2))
	return created.RedirectURL, nil
}

// Abort cancels an order whose payment could not be opened, releasing its
// held stock.
func (r *Reconciler) Abort(ctx context.Context, o model.Order, cause error) error {
	ctx = context.WithoutCancel(ctx)
	var changed bool
	var prev model.OrderStatus
	err := repository.WithTx(ctx, r.orders.DB(), func(tx *sql.Tx) error {
		locked, err := r.orders.GetForUpdateTx(ctx, tx, o.ID)
		if err != nil {
			return err
		}
		prev = locked.Status
		changed, err = r.machine.TransitionTx(ctx, tx, model.SystemActor, &locked, model.OrderCanceled)
		o = locked
		return err
	})
	if err != nil {
		return err
	}
	if changed {
		r.log.Warn("order aborted", "order_id", o.ID, "cause", cause)
		r.events.Publish(events.EventOrderStatusChanged, o.Number, events.OrderEvent(o, prev, model.RoleSystem))
	}
	return nil
}

// HandleCallback processes the provider's redirect or webhook.  Each
// (payment, status) pair is handled once; a failed attempt clears the
// dedup mark so the provider can retry.
func (r *Reconciler) HandleCallback(ctx context.Context, paymentID, status string) (Outcome, error) {
	paymentID = strings.TrimSpace(paymentID)
	status = strings.ToLower(strings.TrimSpace(status))
	if paymentID == "" {
		return Outcome{}, fmt.Errorf("%w: missing payment id", ErrInvalidCallback)
	}
	switch status {
	case StatusSuccess, StatusFailure, StatusCancel:
	default:
		return Outcome{}, fmt.Errorf("%w: unknown status %q", ErrInvalidCallback, status)
	}

	key := fmt.Sprintf(redisx.KeyDedupPayment, paymentID, status)
	if r.dedup != nil {
		first, err := r.dedup.Claim(ctx, key, "1", redisx.TTLDedup)
		if err != nil {
			r.log.Warn("callback dedup unavailable", "payment_id", paymentID, "err", err)
		} else if !first {
			out, err := r.current(ctx, paymentID)
			out.Duplicate = true
			return out, err
		}
	}

	out, err := r.dispatch(ctx, paymentID, status)
	if (err != nil || out.Unconfirmed) && r.dedup != nil && !errors.Is(err, model.ErrLatePayment) {
		_ = r.dedup.Forget(context.WithoutCancel(ctx), key)
	}
	return out, err
}

// dispatch acts on a callback.  The callback itself is unauthenticated, so
// every outcome is taken from the provider: success is executed, failure
// and cancel are confirmed with a status query first.
func (r *Reconciler) dispatch(ctx context.Context, paymentID, status string) (Outcome, error) {
	if _, err := r.payments.GetByProviderID(ctx, paymentID); err != nil {
		return Outcome{}, err
	}
	token, err := r.provider.GrantToken(ctx)
	if err != nil {
		return Outcome{}, providerErr("grant_token", err)
	}
	if status != StatusSuccess {
		return r.confirmClosed(ctx, token, paymentID)
	}
	txStatus, err := r.provider.ExecutePayment(ctx, token, paymentID)
	if err != nil {
		// The payment stays open; a later callback or the sweep resolves it.
		return Outcome{}, providerErr("execute_payment", err)
	}
	if txStatus != TransactionCompleted {
		return r.Fail(ctx, paymentID, model.PaymentFailed, "execution status "+txStatus)
	}
	return r.Settle(ctx, paymentID)
}

// confirmClosed applies the provider's own view of a payment the guest
// reported as failed or canceled.  A payment the provider still holds open
// is left alone; the guest may retry it or the sweep expires it.
func (r *Reconciler) confirmClosed(ctx context.Context, token, paymentID string) (Outcome, error) {
	txStatus, err := r.provider.QueryPayment(ctx, token, paymentID)
	if err != nil {
		return Outcome{}, providerErr("query_payment", err)
	}
	switch txStatus {
	case TransactionCompleted:
		return r.Settle(ctx, paymentID)
	case TransactionCanceled:
		return r.Fail(ctx, paymentID, model.PaymentCanceled, "payment canceled")
	case TransactionFailed:
		return r.Fail(ctx, paymentID, model.PaymentFailed, "payment failed")
	case TransactionExpired:
		return r.Fail(ctx, paymentID, model.PaymentExpired, "payment window expired")
	}
	r.log.Warn("callback not confirmed by provider, payment left open", "payment_id", paymentID, "provider_status", txStatus)
	out, err := r.current(ctx, paymentID)
	out.Unconfirmed = true
	return out, err
}

// current reports the stored state for a duplicate callback.
func (r *Reconciler) current(ctx context.Context, paymentID string) (Outcome, error) {
	p, err := r.payments.GetByProviderID(ctx, paymentID)
	if err != nil {
		return Outcome{}, err
	}
	o, err := r.orders.GetByID(ctx, p.OrderID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return Outcome{}, err
	}
	return Outcome{Order: o, Payment: p}, nil
}

// lockPair locks the order and then the payment.  Every path that touches
// both takes the locks in this order.
func (r *Reconciler) lockPair(ctx context.Context, tx *sql.Tx, paymentID string) (model.Order, model.Payment, error) {
	peek, err := r.payments.GetByProviderID(ctx, paymentID)
	if err != nil {
		return model.Order{}, model.Payment{}, err
	}
	o, err := r.orders.GetForUpdateTx(ctx, tx, peek.OrderID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return model.Order{}, model.Payment{}, err
	}
	p, err := r.payments.GetByProviderIDForUpdateTx(ctx, tx, paymentID)
	if err != nil {
		return model.Order{}, model.Payment{}, err
	}
	return o, p, nil
}

// Settle records a captured payment.  A Pending order becomes Paid, its
// held stock is committed and the guest earns loyalty points.  Money that
// arrives after the order was canceled is marked LATE and reported with
// ErrLatePayment so staff can refund it.
func (r *Reconciler) Settle(ctx context.Context, paymentID string) (Outcome, error) {
	var (
		out     Outcome
		changed bool
		late    bool
	)
	err := repository.WithTx(ctx, r.orders.DB(), func(tx *sql.Tx) error {
		o, p, err := r.lockPair(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		out.Order, out.Payment = o, p
		switch {
		case p.Status == model.PaymentCompleted:
			return nil
		case p.Status == model.PaymentLate:
			late = true
			return nil
		case o.ID == 0 || o.Status == model.OrderCanceled || p.Status != model.PaymentInitiated:
			late = true
			out.Payment.Status = model.PaymentLate
			return r.payments.UpdateStatusTx(ctx, tx, p.ID, model.PaymentLate)
		case o.Status != model.OrderPending:
			// An admin moved the order on before the money arrived.
			out.Payment.Status = model.PaymentCompleted
			return r.payments.UpdateStatusTx(ctx, tx, p.ID, model.PaymentCompleted)
		}

		if changed, err = r.machine.TransitionTx(ctx, tx, model.SystemActor, &o, model.OrderPaid); err != nil {
			return err
		}
		if err := r.payments.UpdateStatusTx(ctx, tx, p.ID, model.PaymentCompleted); err != nil {
			return err
		}
		if pts := r.loyaltyPoints(o.Total); pts > 0 {
			if err := r.users.AddLoyaltyPointsTx(ctx, tx, o.UserID, pts); err != nil {
				return fmt.Errorf("credit loyalty: %w", err)
			}
		}
		out.Order = o
		out.Payment.Status = model.PaymentCompleted
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}
	if late {
		r.log.Error("payment captured after order was closed, refund required",
			"payment_id", paymentID, "order_id", out.Order.ID, "amount", out.Payment.Amount.StringFixed(2))
		return out, fmt.Errorf("payment %s: %w", paymentID, model.ErrLatePayment)
	}
	if !changed {
		return out, nil
	}

	r.log.Info("payment settled", "payment_id", paymentID, "order_id", out.Order.ID)
	bg := context.WithoutCancel(ctx)
	r.reload(bg, &out.Order)
	r.events.Publish(events.EventOrderPaid, out.Order.Number, events.OrderEvent(out.Order, model.OrderPending, model.RoleSystem))
	out.Notification = r.notifyOwner(bg, out.Order, func(u model.User) notify.Message { return notify.PaymentReceived(u, out.Order) })
	if r.staff != nil {
		r.staff.NewOrder(bg, out.Order)
	}
	ids := make([]uint64, 0, len(out.Order.Lines))
	for _, l := range out.Order.Lines {
		ids = append(ids, l.MenuItemID)
	}
	r.ledger.CheckLowStock(bg, ids)
	return out, nil
}

func (r *Reconciler) loyaltyPoints(total decimal.Decimal) int64 {
	if r.cfg.LoyaltyUnit <= 0 {
		return 0
	}
	return total.Div(decimal.NewFromInt(int64(r.cfg.LoyaltyUnit))).Floor().IntPart()
}

// Fail closes an open payment with state and cancels its Pending order,
// returning the held stock.  Repeated failures are no-ops.
func (r *Reconciler) Fail(ctx context.Context, paymentID string, state model.PaymentState, reason string) (Outcome, error) {
	var (
		out     Outcome
		changed bool
	)
	err := repository.WithTx(ctx, r.orders.DB(), func(tx *sql.Tx) error {
		o, p, err := r.lockPair(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		out.Order, out.Payment = o, p
		if p.Status != model.PaymentInitiated {
			return nil
		}
		if err := r.payments.UpdateStatusTx(ctx, tx, p.ID, state); err != nil {
			return err
		}
		out.Payment.Status = state
		if o.ID == 0 || o.Status != model.OrderPending {
			return nil
		}
		if changed, err = r.machine.TransitionTx(ctx, tx, model.SystemActor, &o, model.OrderCanceled); err != nil {
			return err
		}
		out.Order = o
		return nil
	})
	if err != nil || !changed {
		return out, err
	}
	r.log.Warn("payment failed, order canceled", "payment_id", paymentID, "order_id", out.Order.ID, "reason", reason)
	r.afterCancel(ctx, &out, reason)
	return out, nil
}

// Expire resolves the HELD stock of an order whose payment window closed.
// An unpaid external order is canceled and its open payments expire; any
// other order with leftover holds is rolled forward by committing them.
func (r *Reconciler) Expire(ctx context.Context, ref string) (bool, error) {
	var (
		out      Outcome
		canceled bool
	)
	err := repository.WithTx(ctx, r.orders.DB(), func(tx *sql.Tx) error {
		o, err := r.orders.GetByNumberForUpdateTx(ctx, tx, ref)
		if errors.Is(err, repository.ErrNotFound) {
			_, err = r.ledger.Release(ctx, tx, ref)
			return err
		}
		if err != nil {
			return err
		}
		switch {
		case o.Status == model.OrderCanceled:
			_, err = r.ledger.Release(ctx, tx, ref)
			return err
		case o.Status == model.OrderPending && o.PaymentMethod == model.PaymentExternal && o.PaymentStatus == model.PaymentStatusPending:
			open, err := r.payments.OpenForOrderTx(ctx, tx, o.ID)
			if err != nil {
				return err
			}
			for _, p := range open {
				if err := r.payments.UpdateStatusTx(ctx, tx, p.ID, model.PaymentExpired); err != nil {
					return err
				}
				out.Payment = p
				out.Payment.Status = model.PaymentExpired
			}
			if canceled, err = r.machine.TransitionTx(ctx, tx, model.SystemActor, &o, model.OrderCanceled); err != nil {
				return err
			}
			out.Order = o
			return nil
		default:
			_, err = r.ledger.Commit(ctx, tx, ref)
			return err
		}
	})
	if err != nil || !canceled {
		return canceled, err
	}
	r.log.Warn("payment window expired, order canceled", "order_id", out.Order.ID, "order_number", ref)
	r.afterCancel(ctx, &out, "payment window expired")
	return true, nil
}

func (r *Reconciler) afterCancel(ctx context.Context, out *Outcome, reason string) {
	bg := context.WithoutCancel(ctx)
	r.reload(bg, &out.Order)
	r.events.Publish(events.EventOrderStatusChanged, out.Order.Number, events.OrderEvent(out.Order, model.OrderPending, model.RoleSystem))
	out.Notification = r.notifyOwner(bg, out.Order, func(u model.User) notify.Message { return notify.PaymentFailed(u, out.Order, reason) })
}

func (r *Reconciler) reload(ctx context.Context, o *model.Order) {
	full, err := r.orders.GetByID(ctx, o.ID)
	if err != nil {
		r.log.Warn("reload order failed", "order_id", o.ID, "err", err)
		return
	}
	*o = full
}

func (r *Reconciler) notifyOwner(ctx context.Context, o model.Order, build func(model.User) notify.Message) notify.Result {
	u, err := r.users.GetByID(ctx, o.UserID)
	if err != nil {
		r.log.Warn("load order owner failed", "order_id", o.ID, "err", err)
		return notify.Failed
	}
	return r.notifier.Notify(ctx, build(u))
}
