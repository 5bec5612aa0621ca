package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is a state of the order state machine.
type OrderStatus string

const (
	OrderPending   OrderStatus = "Pending"
	OrderPlaced    OrderStatus = "Placed"
	OrderConfirmed OrderStatus = "Confirmed"
	OrderPaid      OrderStatus = "Paid"
	OrderPreparing OrderStatus = "Preparing"
	OrderReady     OrderStatus = "Ready"
	OrderDelivered OrderStatus = "Delivered"
	OrderCanceled  OrderStatus = "Canceled"
)

// Terminal reports whether no further transition may leave s.
func (s OrderStatus) Terminal() bool { return s == OrderDelivered || s == OrderCanceled }

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderPlaced, OrderConfirmed, OrderPaid,
		OrderPreparing, OrderReady, OrderDelivered, OrderCanceled:
		return true
	}
	return false
}

// ParseOrderStatus accepts any casing of a known status name.
func ParseOrderStatus(raw string) (OrderStatus, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}
	st := OrderStatus(strings.ToUpper(s[:1]) + strings.ToLower(s[1:]))
	if st == "Cancelled" {
		st = OrderCanceled
	}
	return st, st.Valid()
}

// KitchenStatuses are the states shown on the kitchen queue.
var KitchenStatuses = []OrderStatus{OrderPlaced, OrderConfirmed, OrderPaid, OrderPreparing}

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
)

type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "cash"
	PaymentExternal PaymentMethod = "external"
)

type OrderType string

const (
	OrderDineIn   OrderType = "dine_in"
	OrderTakeaway OrderType = "takeaway"
	OrderDelivery OrderType = "delivery"
)

// DeliveryDetails are the contact and address fields copied onto an order.
type DeliveryDetails struct {
	Phone    string `json:"phone"`
	District string `json:"district"`
	City     string `json:"city"`
	Street   string `json:"street"`
}

// Complete reports whether every field carries a non-blank value.
func (d DeliveryDetails) Complete() bool {
	for _, v := range []string{d.Phone, d.District, d.City, d.Street} {
		if strings.TrimSpace(v) == "" {
			return false
		}
	}
	return true
}

// Merge fills blank fields of d from fallback.
func (d DeliveryDetails) Merge(fallback DeliveryDetails) DeliveryDetails {
	pick := func(a, b string) string {
		if strings.TrimSpace(a) != "" {
			return strings.TrimSpace(a)
		}
		return strings.TrimSpace(b)
	}
	return DeliveryDetails{
		Phone:    pick(d.Phone, fallback.Phone),
		District: pick(d.District, fallback.District),
		City:     pick(d.City, fallback.City),
		Street:   pick(d.Street, fallback.Street),
	}
}

// Order is a placed order together with its immutable line snapshot.
type Order struct {
	ID               uint64          `json:"id"`                // orders.id
	Number           string          `json:"order_number"`      // orders.order_number
	UserID           uint64          `json:"user_id"`           // orders.user_id
	Status           OrderStatus     `json:"status"`            // orders.status
	PaymentStatus    PaymentStatus   `json:"payment_status"`    // orders.payment_status
	PaymentMethod    PaymentMethod   `json:"payment_method"`    // orders.payment_method
	OrderType        OrderType       `json:"order_type"`        // orders.order_type
	TableNo          *string         `json:"table_no"`          // orders.table_no (nullable)
	Total            decimal.Decimal `json:"total"`             // orders.total
	Delivery         DeliveryDetails `json:"delivery"`          // orders.phone, address_*
	PaymentExpiresAt *time.Time      `json:"payment_expires_at"` // orders.payment_expires_at (nullable)
	CreatedAt        time.Time       `json:"created_at"`        // orders.created_at
	UpdatedAt        time.Time       `json:"updated_at"`        // orders.updated_at
	Lines            []OrderLine     `json:"lines"`
}

// OrderLine is one item as it was priced at checkout time.
type OrderLine struct {
	MenuItemID uint64          `json:"menu_item_id"` // order_lines.menu_item_id
	Name       string          `json:"name"`         // order_lines.name
	UnitPrice  decimal.Decimal `json:"unit_price"`   // order_lines.unit_price
	Quantity   int             `json:"quantity"`     // order_lines.quantity
}

// Subtotal is UnitPrice * Quantity.
func (l OrderLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// LinesTotal sums the line subtotals.
func LinesTotal(lines []OrderLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return total
}
