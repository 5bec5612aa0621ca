// Package router wires handlers and middleware onto the echo instance.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/restaurant-order-engine/internal/handler"
	"github.com/iliyamo/restaurant-order-engine/internal/middleware"
	"github.com/iliyamo/restaurant-order-engine/internal/model"
)

// Handlers groups everything RegisterRoutes mounts.
type Handlers struct {
	Health       echo.HandlerFunc
	Menu         *handler.MenuHandler
	Reservations *handler.ReservationHandler
	Orders       *handler.OrderHandler
	Payments     *handler.PaymentHandler
}

// Middleware holds the optional Redis backed middleware.  Nil entries are
// skipped.
type Middleware struct {
	Cache     echo.MiddlewareFunc
	RateLimit echo.MiddlewareFunc
}

// RegisterRoutes mounts the API under /api/v1:
//
//	public    menu availability, reservation availability, payment callback
//	customer  checkout, own orders, own reservations
//	staff     kitchen queue, order status, reservation confirm/cancel, low stock
//	admin     order delete
func RegisterRoutes(e *echo.Echo, h Handlers, mw Middleware, jwtSecret string) {
	e.GET("/healthz", h.Health)

	api := e.Group("/api/v1")
	api.GET("/menu/availability", h.Menu.Availability, optional(mw.Cache)...)
	api.GET("/reservations/availability", h.Reservations.Availability)
	api.GET("/payments/callback", h.Payments.Callback)
	api.POST("/payments/callback", h.Payments.Callback)

	auth := middleware.JWTAuth(jwtSecret)
	limited := optional(mw.RateLimit)

	customer := []echo.MiddlewareFunc{auth, middleware.RequireRole(model.RoleCustomer)}
	limitedCustomer := append(append([]echo.MiddlewareFunc{}, customer...), limited...)
	api.POST("/checkout", h.Orders.PlaceOrder, limitedCustomer...)
	api.GET("/orders/:id", h.Orders.Get, customer...)
	api.POST("/orders/:id/cancel", h.Orders.Cancel, customer...)
	api.POST("/reservations", h.Reservations.Book, limitedCustomer...)
	api.GET("/reservations", h.Reservations.List, customer...)
	api.GET("/reservations/:id", h.Reservations.Get, customer...)
	api.POST("/reservations/:id/cancel", h.Reservations.Cancel, customer...)

	staff := api.Group("/staff", auth, middleware.RequireRole(model.StaffRoles...))
	staff.GET("/kitchen", h.Orders.Kitchen)
	staff.GET("/orders/:id", h.Orders.Get)
	staff.POST("/orders/:id/status", h.Orders.SetStatus)
	staff.POST("/reservations/:id/confirm", h.Reservations.Confirm)
	staff.POST("/reservations/:id/cancel", h.Reservations.Cancel)
	staff.GET("/menu/:id/low-stock", h.Menu.LowStock)

	admin := api.Group("/admin", auth, middleware.RequireRole(model.RoleAdmin))
	admin.DELETE("/orders/:id", h.Orders.Delete)
}

func optional(m echo.MiddlewareFunc) []echo.MiddlewareFunc {
	if m == nil {
		return nil
	}
	return []echo.MiddlewareFunc{m}
}
