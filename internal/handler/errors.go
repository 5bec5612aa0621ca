package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/restaurant-order-engine/internal/checkout"
	"github.com/iliyamo/restaurant-order-engine/internal/model"
	"github.com/iliyamo/restaurant-order-engine/internal/payment"
	"github.com/iliyamo/restaurant-order-engine/internal/repository"
)

// writeError maps service errors onto HTTP responses.  Domain errors carry
// guest-facing text and are returned as is; anything unexpected is logged
// and reported as a bare 500.
func writeError(c echo.Context, log *slog.Logger, err error) error {
	status, msg := classify(err)
	if status == http.StatusInternalServerError {
		log.Error("request failed", "method", c.Request().Method, "path", c.Path(), "err", err)
	}
	body := echo.Map{"error": msg}
	var stock *model.InsufficientStockError
	if errors.As(err, &stock) {
		body["item_id"] = stock.ItemID
		body["available"] = stock.Available
	}
	return c.JSON(status, body)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrInvalidTimeSlot),
		errors.Is(err, model.ErrEmptyCart),
		errors.Is(err, checkout.ErrInvalidQuantity),
		errors.Is(err, checkout.ErrInvalidPaymentMethod),
		errors.Is(err, payment.ErrInvalidCallback):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, model.ErrIncompleteProfile):
		return http.StatusBadRequest, "Please complete your profile (name, phone and address) first."
	case errors.Is(err, repository.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, model.ErrInsufficientStock),
		errors.Is(err, model.ErrReservationConflict),
		errors.Is(err, model.ErrInvalidTransition),
		errors.Is(err, checkout.ErrInProgress):
		return http.StatusConflict, err.Error()
	case errors.Is(err, model.ErrLatePayment):
		return http.StatusConflict, "payment arrived after the order was closed; it will be refunded"
	case errors.Is(err, repository.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, model.ErrPaymentProvider):
		return http.StatusBadGateway, "payment provider unavailable, please try again"
	}
	return http.StatusInternalServerError, "internal error"
}
