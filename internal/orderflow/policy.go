// Package orderflow drives orders through their lifecycle.  Every status
// change goes through Authorize, which checks both the edge and the actor's
// capability, before anything is written.
package orderflow

import (
	"github.com/iliyamo/restaurant-order-engine/internal/model"
)

var validNext = map[model.OrderStatus][]model.OrderStatus{
	model.OrderPending:   {model.OrderConfirmed, model.OrderPaid, model.OrderCanceled},
	model.OrderPlaced:    {model.OrderConfirmed, model.OrderPreparing, model.OrderCanceled},
	model.OrderConfirmed: {model.OrderPreparing, model.OrderCanceled},
	model.OrderPaid:      {model.OrderPreparing, model.OrderCanceled},
	model.OrderPreparing: {model.OrderPreparing, model.OrderReady, model.OrderCanceled},
	model.OrderReady:     {model.OrderDelivered, model.OrderCanceled},
}

// CanMove reports whether to is a permitted next state of from.
func CanMove(from, to model.OrderStatus) bool {
	for _, s := range validNext[from] {
		if s == to {
			return true
		}
	}
	return false
}

// rank orders the kitchen stages; Pending and Placed share the lowest rank.
func rank(s model.OrderStatus) int {
	switch s {
	case model.OrderConfirmed, model.OrderPaid:
		return 1
	case model.OrderPreparing:
		return 2
	case model.OrderReady:
		return 3
	case model.OrderDelivered:
		return 4
	}
	return 0
}

// restockable reports whether committed stock of an order in state s has
// not been cooked yet.
func restockable(s model.OrderStatus) bool {
	return s != model.OrderCanceled && rank(s) < rank(model.OrderPreparing)
}

type capability func(o model.Order, to model.OrderStatus) bool

func toCanceled(_ model.Order, to model.OrderStatus) bool { return to == model.OrderCanceled }

var capabilities = map[string][]capability{
	model.RoleAdmin: {
		func(model.Order, model.OrderStatus) bool { return true },
	},
	model.RoleChef: {
		func(_ model.Order, to model.OrderStatus) bool { return to == model.OrderPreparing },
		func(o model.Order, to model.OrderStatus) bool {
			return o.Status == model.OrderPreparing && to == model.OrderReady
		},
	},
	model.RoleWaiter: {
		toCanceled,
		func(o model.Order, to model.OrderStatus) bool {
			return o.Status == model.OrderReady && to == model.OrderDelivered
		},
	},
	model.RoleCashier: {toCanceled, confirmCash},
	model.RoleManager: {toCanceled, confirmCash},
	model.RoleCustomer: {
		func(o model.Order, to model.OrderStatus) bool {
			return o.Status == model.OrderPending && to == model.OrderCanceled && o.PaymentMethod == model.PaymentCash
		},
	},
	model.RoleSystem: {
		func(o model.Order, to model.OrderStatus) bool {
			return o.Status == model.OrderPending && (to == model.OrderPaid || to == model.OrderCanceled)
		},
	},
}

// confirmCash lets front of house confirm orders that do not wait on an
// external payment.
func confirmCash(o model.Order, to model.OrderStatus) bool {
	if to != model.OrderConfirmed {
		return false
	}
	if o.Status == model.OrderPlaced {
		return true
	}
	return o.Status == model.OrderPending && o.PaymentMethod == model.PaymentCash
}

// Authorize checks that actor may move o to the target state.  Ownership
// of customer orders is checked by the caller.
func Authorize(actor model.Actor, o model.Order, to model.OrderStatus) error {
	if !to.Valid() || !CanMove(o.Status, to) {
		return &model.TransitionError{From: o.Status, To: to}
	}
	for _, allowed := range capabilities[actor.Role] {
		if allowed(o, to) {
			return nil
		}
	}
	return &model.TransitionError{From: o.Status, To: to, Role: actor.Role}
}
