// Package checkout turns a cart into an order.  Stock is reserved and the
// order is written in one transaction; a cash order also commits its stock
// there, while an external order keeps its holds until the payment settles.
package checkout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/iliyamo/restaurant-order-engine/internal/events"
	"github.com/iliyamo/restaurant-order-engine/internal/inventory"
	"github.com/iliyamo/restaurant-order-engine/internal/model"
	"github.com/iliyamo/restaurant-order-engine/internal/notify"
	"github.com/iliyamo/restaurant-order-engine/internal/redisx"
	"github.com/iliyamo/restaurant-order-engine/internal/repository"
)

// ErrInProgress is returned while another request with the same
// idempotency key is still being processed.
var ErrInProgress = errors.New("checkout with this idempotency key is in progress")

// ErrInvalidPaymentMethod rejects methods other than cash and external.
var ErrInvalidPaymentMethod = errors.New("unsupported payment method")

const inFlight = "in-flight"

// PaymentStarter opens an external payment for a freshly created order.
type PaymentStarter interface {
	Initiate(ctx context.Context, o model.Order) (redirectURL string, err error)
	Abort(ctx context.Context, o model.Order, cause error) error
}

// IdempotencyStore remembers which order a checkout key produced.
type IdempotencyStore interface {
	Lookup(ctx context.Context, key string) (string, bool, error)
	Claim(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Remember(ctx context.Context, key, value string, ttl time.Duration) error
	Forget(ctx context.Context, key string) error
}

// StaffNotifier is told about every new order.
type StaffNotifier interface {
	NewOrder(ctx context.Context, o model.Order) notify.Result
}

type Request struct {
	UserID         uint64
	Cart           Cart
	Delivery       model.DeliveryDetails
	PaymentMethod  model.PaymentMethod
	OrderType      model.OrderType
	TableNo        string
	IdempotencyKey string
}

type Result struct {
	Order        model.Order   `json:"order"`
	RedirectURL  string        `json:"redirect_url,omitempty"`
	Notification notify.Result `json:"notification,omitempty"`
	Replayed     bool          `json:"replayed,omitempty"`
}

type Orchestrator struct {
	orders   *repository.OrderRepo
	users    *repository.UserRepo
	ledger   *inventory.Ledger
	payments PaymentStarter
	notifier notify.Notifier
	staff    StaffNotifier
	events   events.Publisher
	idem     IdempotencyStore
	holdTTL  time.Duration
	log      *slog.Logger

	now func() time.Time
}

// Options collects the optional collaborators of an Orchestrator.
type Options struct {
	Notifier notify.Notifier
	Staff    StaffNotifier
	Events   events.Publisher
	Idem     IdempotencyStore
	HoldTTL  time.Duration // lifetime of stock holds awaiting payment
}

func New(orders *repository.OrderRepo, users *repository.UserRepo, ledger *inventory.Ledger,
	payments PaymentStarter, opts Options, log *slog.Logger) *Orchestrator {
	if opts.Notifier == nil {
		opts.Notifier = notify.Discard{}
	}
	if opts.Events == nil {
		opts.Events = events.Nop{}
	}
	if opts.HoldTTL <= 0 {
		opts.HoldTTL = 15 * time.Minute
	}
	return &Orchestrator{
		orders:   orders,
		users:    users,
		ledger:   ledger,
		payments: payments,
		notifier: opts.Notifier,
		staff:    opts.Staff,
		events:   opts.Events,
		idem:     opts.Idem,
		holdTTL:  opts.HoldTTL,
		log:      log.With("component", "checkout"),
		now:      time.Now,
	}
}

// Checkout validates the request, reserves stock and creates the order.
// On any failure before the commit nothing is written.
func (c *Orchestrator) Checkout(ctx context.Context, req Request) (Result, error) {
	if req.Cart.Empty() {
		return Result{}, model.ErrEmptyCart
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = model.PaymentCash
	}
	if req.PaymentMethod != model.PaymentCash && req.PaymentMethod != model.PaymentExternal {
		return Result{}, fmt.Errorf("%w %q", ErrInvalidPaymentMethod, req.PaymentMethod)
	}
	if req.OrderType == "" {
		req.OrderType = model.OrderTakeaway
	}
	if req.PaymentMethod == model.PaymentExternal && c.payments == nil {
		return Result{}, &model.ProviderError{Op: "create_payment", Err: errors.New("no payment provider configured")}
	}

	user, err := c.users.GetByID(ctx, req.UserID)
	if err != nil {
		return Result{}, fmt.Errorf("load user %d: %w", req.UserID, err)
	}
	delivery := req.Delivery.Merge(user.Address)
	if strings.TrimSpace(user.FullName) == "" || !delivery.Complete() {
		return Result{}, model.ErrIncompleteProfile
	}

	idemKey := ""
	if req.IdempotencyKey != "" && c.idem != nil {
		idemKey = fmt.Sprintf(redisx.KeyIdemCheckout, req.UserID, req.IdempotencyKey)
		if res, ok, err := c.replay(ctx, idemKey); ok || err != nil {
			return res, err
		}
	}

	res, err := c.place(ctx, req, user, delivery)
	if idemKey != "" {
		if err != nil {
			_ = c.idem.Forget(ctx, idemKey)
		} else if rerr := c.idem.Remember(ctx, idemKey, strconv.FormatUint(res.Order.ID, 10)+" "+res.RedirectURL, redisx.TTLIdempotency); rerr != nil {
			c.log.Warn("remember idempotency key failed", "order_id", res.Order.ID, "err", rerr)
		}
	}
	return res, err
}

// replay returns the stored outcome of an earlier request with the same
// key.  When the key is new it is claimed and ok is false.
func (c *Orchestrator) replay(ctx context.Context, key string) (Result, bool, error) {
	stored, found, err := c.idem.Lookup(ctx, key)
	if err != nil {
		c.log.Warn("idempotency lookup failed", "err", err)
		return Result{}, false, nil
	}
	if !found {
		claimed, err := c.idem.Claim(ctx, key, inFlight, redisx.TTLInFlight)
		if err != nil {
			c.log.Warn("idempotency claim failed", "err", err)
			return Result{}, false, nil
		}
		if !claimed {
			return Result{}, true, ErrInProgress
		}
		return Result{}, false, nil
	}
	if stored == inFlight {
		return Result{}, true, ErrInProgress
	}
	idStr, url, _ := strings.Cut(stored, " ")
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		return Result{}, true, fmt.Errorf("corrupt idempotency record %q", stored)
	}
	o, err := c.orders.GetByID(ctx, id)
	if err != nil {
		return Result{}, true, err
	}
	return Result{Order: o, RedirectURL: url, Replayed: true}, true, nil
}

func (c *Orchestrator) place(ctx context.Context, req Request, user model.User, delivery model.DeliveryDetails) (Result, error) {
	now := c.now()
	expiresAt := now.Add(c.holdTTL)
	order := model.Order{
		Number:        model.NewReference(),
		UserID:        user.ID,
		Status:        model.OrderPending,
		PaymentStatus: model.PaymentStatusPending,
		PaymentMethod: req.PaymentMethod,
		OrderType:     req.OrderType,
		Delivery:      delivery,
	}
	if t := strings.TrimSpace(req.TableNo); t != "" {
		order.TableNo = &t
	}
	if req.PaymentMethod == model.PaymentExternal {
		order.PaymentExpiresAt = &expiresAt
	}

	var touched []uint64
	err := repository.WithTx(ctx, c.orders.DB(), func(tx *sql.Tx) error {
		items, err := c.ledger.ReserveAll(ctx, tx, order.Number, req.Cart.Lines(), expiresAt)
		if err != nil {
			return err
		}
		order.Lines = make([]model.OrderLine, 0, len(items))
		for _, it := range items {
			order.Lines = append(order.Lines, model.OrderLine{
				MenuItemID: it.ID,
				Name:       it.Name,
				UnitPrice:  it.Price,
				Quantity:   req.Cart.Qty(it.ID),
			})
		}
		order.Total = model.LinesTotal(order.Lines)
		if err := c.orders.CreateTx(ctx, tx, &order); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		if req.PaymentMethod == model.PaymentCash {
			if touched, err = c.ledger.Commit(ctx, tx, order.Number); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	order.CreatedAt, order.UpdatedAt = now.UTC(), now.UTC()
	c.log.Info("order created", "order_id", order.ID, "order_number", order.Number,
		"method", order.PaymentMethod, "total", order.Total.StringFixed(2), "lines", len(order.Lines))

	if req.PaymentMethod == model.PaymentExternal {
		url, err := c.payments.Initiate(ctx, order)
		if err != nil {
			c.log.Warn("payment initiation failed", "order_id", order.ID, "err", err)
			if aerr := c.payments.Abort(ctx, order, err); aerr != nil {
				c.log.Error("abort order after provider failure", "order_id", order.ID, "err", aerr)
			}
			if !errors.Is(err, model.ErrPaymentProvider) {
				err = &model.ProviderError{Op: "create_payment", Err: err}
			}
			return Result{}, err
		}
		c.events.Publish(events.EventOrderCreated, order.Number, events.OrderEvent(order, "", model.RoleCustomer))
		return Result{Order: order, RedirectURL: url}, nil
	}

	// Cash orders are final at this point; everything below is best effort.
	bg := context.WithoutCancel(ctx)
	c.events.Publish(events.EventOrderCreated, order.Number, events.OrderEvent(order, "", model.RoleCustomer))
	result := c.notifier.Notify(bg, notify.OrderReceived(user, order))
	if c.staff != nil {
		c.staff.NewOrder(bg, order)
	}
	c.ledger.CheckLowStock(bg, touched)
	return Result{Order: order, Notification: result}, nil
}
