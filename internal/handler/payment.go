package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/restaurant-order-engine/internal/payment"
)

// CallbackProcessor settles provider callbacks.
type CallbackProcessor interface {
	HandleCallback(ctx context.Context, paymentID, status string) (payment.Outcome, error)
}

type PaymentHandler struct {
	Payments CallbackProcessor
	Log      *slog.Logger
}

func NewPaymentHandler(p CallbackProcessor, log *slog.Logger) *PaymentHandler {
	if p == nil {
		panic("nil callback processor passed to NewPaymentHandler")
	}
	return &PaymentHandler{Payments: p, Log: log}
}

// Callback handles the provider redirect (GET, query parameters) and the
// server-to-server notification (POST, JSON body).  Both carry paymentID
// and status.
func (h *PaymentHandler) Callback(c echo.Context) error {
	var body struct {
		PaymentID string `json:"paymentID" query:"paymentID"`
		Status    string `json:"status" query:"status"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid callback"})
	}
	out, err := h.Payments.HandleCallback(c.Request().Context(), body.PaymentID, body.Status)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, out)
}
