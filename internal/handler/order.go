package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/restaurant-order-engine/internal/checkout"
	"github.com/iliyamo/restaurant-order-engine/internal/model"
	"github.com/iliyamo/restaurant-order-engine/internal/notify"
	"github.com/iliyamo/restaurant-order-engine/internal/orderflow"
)

// Checkouter places orders.
type Checkouter interface {
	Checkout(ctx context.Context, req checkout.Request) (checkout.Result, error)
}

// Orders is the order state machine as used by the HTTP layer.
type Orders interface {
	Transition(ctx context.Context, actor model.Actor, orderID uint64, to model.OrderStatus) (orderflow.Outcome, error)
	Get(ctx context.Context, actor model.Actor, id uint64) (model.Order, error)
	KitchenQueue(ctx context.Context) ([]model.Order, error)
	Delete(ctx context.Context, actor model.Actor, orderID uint64) (notify.Result, error)
}

// OrderHandler serves checkout, order lookups and every status change.
type OrderHandler struct {
	Checkout Checkouter
	Orders   Orders
	Log      *slog.Logger
}

func NewOrderHandler(co Checkouter, orders Orders, log *slog.Logger) *OrderHandler {
	if co == nil || orders == nil {
		panic("nil service passed to NewOrderHandler")
	}
	return &OrderHandler{Checkout: co, Orders: orders, Log: log}
}

type checkoutRequest struct {
	Items         []checkout.CartItem   `json:"items"`
	PaymentMethod model.PaymentMethod   `json:"payment_method"`
	OrderType     model.OrderType       `json:"order_type"`
	TableNo       string                `json:"table_no"`
	Delivery      model.DeliveryDetails `json:"delivery"`
}

// PlaceOrder handles POST /api/v1/checkout.  A repeated Idempotency-Key
// returns the order created by the first request with status 200.
func (h *OrderHandler) PlaceOrder(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body checkoutRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	cart, err := checkout.NewCart(body.Items)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	res, err := h.Checkout.Checkout(c.Request().Context(), checkout.Request{
		UserID:         userID,
		Cart:           cart,
		Delivery:       body.Delivery,
		PaymentMethod:  model.PaymentMethod(strings.ToLower(strings.TrimSpace(string(body.PaymentMethod)))),
		OrderType:      model.OrderType(strings.ToLower(strings.TrimSpace(string(body.OrderType)))),
		TableNo:        body.TableNo,
		IdempotencyKey: strings.TrimSpace(c.Request().Header.Get("Idempotency-Key")),
	})
	if err != nil {
		return writeError(c, h.Log, err)
	}
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	return c.JSON(status, res)
}

// Get handles GET /api/v1/orders/:id.
func (h *OrderHandler) Get(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := pathID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order id"})
	}
	o, err := h.Orders.Get(c.Request().Context(), a, id)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, o)
}

// Cancel handles POST /api/v1/orders/:id/cancel.
func (h *OrderHandler) Cancel(c echo.Context) error {
	return h.move(c, model.OrderCanceled)
}

// SetStatus handles POST /api/v1/staff/orders/:id/status with a body of
// {"status": "Preparing"}.
func (h *OrderHandler) SetStatus(c echo.Context) error {
	var body struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	to, ok := model.ParseOrderStatus(body.Status)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown order status"})
	}
	return h.move(c, to)
}

func (h *OrderHandler) move(c echo.Context, to model.OrderStatus) error {
	a, err := actor(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := pathID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order id"})
	}
	out, err := h.Orders.Transition(c.Request().Context(), a, id, to)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, out)
}

// Kitchen handles GET /api/v1/staff/kitchen.
func (h *OrderHandler) Kitchen(c echo.Context) error {
	orders, err := h.Orders.KitchenQueue(c.Request().Context())
	if err != nil {
		return writeError(c, h.Log, err)
	}
	if orders == nil {
		orders = []model.Order{}
	}
	return c.JSON(http.StatusOK, echo.Map{"orders": orders})
}

// Delete handles DELETE /api/v1/admin/orders/:id.
func (h *OrderHandler) Delete(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := pathID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order id"})
	}
	note, err := h.Orders.Delete(c.Request().Context(), a, id)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"deleted": true, "notification": note})
}
