package orderflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/restaurant-order-engine/internal/model"
)

func TestAuthorize(t *testing.T) {
	cash := func(s model.OrderStatus) model.Order {
		return model.Order{Status: s, PaymentMethod: model.PaymentCash}
	}
	external := func(s model.OrderStatus) model.Order {
		return model.Order{Status: s, PaymentMethod: model.PaymentExternal}
	}

	tests := []struct {
		name  string
		role  string
		order model.Order
		to    model.OrderStatus
		ok    bool
	}{
		{"chef starts confirmed order", model.RoleChef, cash(model.OrderConfirmed), model.OrderPreparing, true},
		{"chef starts paid order", model.RoleChef, external(model.OrderPaid), model.OrderPreparing, true},
		{"chef starts placed order", model.RoleChef, cash(model.OrderPlaced), model.OrderPreparing, true},
		{"chef re-marks preparing", model.RoleChef, cash(model.OrderPreparing), model.OrderPreparing, true},
		{"chef finishes", model.RoleChef, cash(model.OrderPreparing), model.OrderReady, true},
		{"chef cannot skip confirmation", model.RoleChef, cash(model.OrderPending), model.OrderPreparing, false},
		{"chef cannot deliver", model.RoleChef, cash(model.OrderReady), model.OrderDelivered, false},
		{"chef cannot cancel", model.RoleChef, cash(model.OrderConfirmed), model.OrderCanceled, false},
		{"waiter delivers", model.RoleWaiter, cash(model.OrderReady), model.OrderDelivered, true},
		{"waiter cancels", model.RoleWaiter, cash(model.OrderPreparing), model.OrderCanceled, true},
		{"waiter cannot confirm", model.RoleWaiter, cash(model.OrderPending), model.OrderConfirmed, false},
		{"cashier confirms cash order", model.RoleCashier, cash(model.OrderPending), model.OrderConfirmed, true},
		{"cashier cannot confirm unpaid external order", model.RoleCashier, external(model.OrderPending), model.OrderConfirmed, false},
		{"manager confirms placed order", model.RoleManager, external(model.OrderPlaced), model.OrderConfirmed, true},
		{"cashier cannot mark paid", model.RoleCashier, cash(model.OrderPending), model.OrderPaid, false},
		{"customer cancels pending cash order", model.RoleCustomer, cash(model.OrderPending), model.OrderCanceled, true},
		{"customer cannot cancel external order", model.RoleCustomer, external(model.OrderPending), model.OrderCanceled, false},
		{"customer cannot cancel confirmed order", model.RoleCustomer, cash(model.OrderConfirmed), model.OrderCanceled, false},
		{"system settles", model.RoleSystem, external(model.OrderPending), model.OrderPaid, true},
		{"system expires", model.RoleSystem, external(model.OrderPending), model.OrderCanceled, true},
		{"system cannot cook", model.RoleSystem, external(model.OrderPaid), model.OrderPreparing, false},
		{"admin forces paid", model.RoleAdmin, cash(model.OrderPending), model.OrderPaid, true},
		{"admin cancels ready order", model.RoleAdmin, cash(model.OrderReady), model.OrderCanceled, true},
		{"admin cannot leave delivered", model.RoleAdmin, cash(model.OrderDelivered), model.OrderPreparing, false},
		{"admin cannot revive canceled", model.RoleAdmin, cash(model.OrderCanceled), model.OrderPending, false},
		{"admin cannot skip ahead", model.RoleAdmin, cash(model.OrderPending), model.OrderDelivered, false},
		{"unknown target", model.RoleAdmin, cash(model.OrderPending), model.OrderStatus("Eaten"), false},
		{"unknown role", "guest", cash(model.OrderPending), model.OrderCanceled, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Authorize(model.Actor{Role: tt.role}, tt.order, tt.to)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, model.ErrInvalidTransition), "got %v", err)
		})
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	all := []model.OrderStatus{model.OrderPending, model.OrderPlaced, model.OrderConfirmed, model.OrderPaid,
		model.OrderPreparing, model.OrderReady, model.OrderDelivered, model.OrderCanceled}
	for _, from := range []model.OrderStatus{model.OrderDelivered, model.OrderCanceled} {
		for _, to := range all {
			assert.False(t, CanMove(from, to), "%s -> %s", from, to)
		}
	}
	assert.False(t, CanMove(model.OrderDelivered, model.OrderPreparing))
}

func TestTransitionErrorNamesRole(t *testing.T) {
	err := Authorize(model.Actor{Role: model.RoleChef}, model.Order{Status: model.OrderReady}, model.OrderDelivered)
	var te *model.TransitionError
	assert.True(t, errors.As(err, &te))
	assert.Equal(t, model.RoleChef, te.Role)
	assert.Equal(t, "role chef may not move order from Ready to Delivered", err.Error())
}
