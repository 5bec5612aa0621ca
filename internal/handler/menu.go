package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/restaurant-order-engine/internal/inventory"
)

// StockView is the part of the inventory ledger exposed over HTTP.
type StockView interface {
	Availability(ctx context.Context) ([]inventory.ItemAvailability, error)
	IsLowStock(ctx context.Context, itemID uint64) (bool, error)
}

type MenuHandler struct {
	Stock StockView
	Log   *slog.Logger
}

func NewMenuHandler(stock StockView, log *slog.Logger) *MenuHandler {
	if stock == nil {
		panic("nil stock view passed to NewMenuHandler")
	}
	return &MenuHandler{Stock: stock, Log: log}
}

// Availability handles GET /api/v1/menu/availability.  The route is served
// through the response cache, so counts may lag by the cache TTL.
func (h *MenuHandler) Availability(c echo.Context) error {
	items, err := h.Stock.Availability(c.Request().Context())
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// LowStock handles GET /api/v1/staff/menu/:id/low-stock.  A low result
// also raises the staff alert, at most once per alert window.
func (h *MenuHandler) LowStock(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid menu item id"})
	}
	low, err := h.Stock.IsLowStock(c.Request().Context(), id)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"item_id": id, "low_stock": low})
}
