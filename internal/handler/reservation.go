package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/restaurant-order-engine/internal/model"
	"github.com/iliyamo/restaurant-order-engine/internal/notify"
	"github.com/iliyamo/restaurant-order-engine/internal/scheduler"
)

// Bookings is the reservation scheduler as used by the HTTP layer.
type Bookings interface {
	Rules() scheduler.Rules
	Check(ctx context.Context, req scheduler.Request) error
	Book(ctx context.Context, userID uint64, req scheduler.Request) (model.Reservation, notify.Result, error)
	Confirm(ctx context.Context, id uint64) (model.Reservation, notify.Result, error)
	Cancel(ctx context.Context, actor model.Actor, id uint64) (model.Reservation, notify.Result, error)
	Get(ctx context.Context, actor model.Actor, id uint64) (model.Reservation, error)
	ListForUser(ctx context.Context, userID uint64) ([]model.Reservation, error)
}

// ReservationHandler serves table bookings for guests and staff.
type ReservationHandler struct {
	Bookings Bookings
	Log      *slog.Logger
}

func NewReservationHandler(b Bookings, log *slog.Logger) *ReservationHandler {
	if b == nil {
		panic("nil scheduler passed to NewReservationHandler")
	}
	return &ReservationHandler{Bookings: b, Log: log}
}

type bookingRequest struct {
	Date     string `json:"date"`
	Time     string `json:"time"`
	Duration int    `json:"duration"`
	Guests   int    `json:"guests"`
	TableNo  string `json:"table_no"`
}

// Availability handles GET /api/v1/reservations/availability.  A refused
// slot is a normal answer, not an error: the response carries the reason.
func (h *ReservationHandler) Availability(c echo.Context) error {
	duration, _ := strconv.Atoi(c.QueryParam("duration"))
	guests := 1
	if g := c.QueryParam("guests"); g != "" {
		if n, err := strconv.Atoi(g); err == nil {
			guests = n
		} else {
			guests = 0
		}
	}
	req, err := h.Bookings.Rules().Parse(c.QueryParam("date"), c.QueryParam("time"), duration, guests, c.QueryParam("table_no"))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	err = h.Bookings.Check(c.Request().Context(), req)
	if errors.Is(err, model.ErrInvalidTimeSlot) || errors.Is(err, model.ErrReservationConflict) {
		return c.JSON(http.StatusOK, echo.Map{"available": false, "reason": err.Error()})
	}
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"available": true,
		"table_no":  req.TableNo,
		"start":     req.Start,
		"end":       req.End,
	})
}

// Book handles POST /api/v1/reservations.
func (h *ReservationHandler) Book(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body bookingRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	req, err := h.Bookings.Rules().Parse(body.Date, body.Time, body.Duration, body.Guests, body.TableNo)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	res, note, err := h.Bookings.Book(c.Request().Context(), userID, req)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"reservation": res, "notification": note})
}

// List handles GET /api/v1/reservations.
func (h *ReservationHandler) List(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	items, err := h.Bookings.ListForUser(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	if items == nil {
		items = []model.Reservation{}
	}
	return c.JSON(http.StatusOK, echo.Map{"reservations": items})
}

// Get handles GET /api/v1/reservations/:id.
func (h *ReservationHandler) Get(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := pathID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	res, err := h.Bookings.Get(c.Request().Context(), a, id)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Cancel handles POST /api/v1/reservations/:id/cancel for guests and
// POST /api/v1/staff/reservations/:id/cancel for staff.
func (h *ReservationHandler) Cancel(c echo.Context) error {
	a, err := actor(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := pathID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	res, note, err := h.Bookings.Cancel(c.Request().Context(), a, id)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"reservation": res, "notification": note})
}

// Confirm handles POST /api/v1/staff/reservations/:id/confirm.
func (h *ReservationHandler) Confirm(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	res, note, err := h.Bookings.Confirm(c.Request().Context(), id)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"reservation": res, "notification": note})
}
