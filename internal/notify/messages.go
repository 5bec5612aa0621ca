package notify

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/iliyamo/restaurant-order-engine/internal/model"
)

const signature = "\n\nRegards,\nRestaurant Team"

func email(to, subject, body string) Message {
	return Message{Channel: ChannelEmail, Recipient: to, Subject: subject, Body: body}
}

// OrderBody renders the line snapshot of an order for customer emails.
func OrderBody(o model.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Order #%s Details:\n", o.Number)
	fmt.Fprintf(&b, "Placed on: %s\n", o.CreatedAt.Format("2006-01-02 15:04"))
	for _, l := range o.Lines {
		fmt.Fprintf(&b, "- %s x %d : %s\n", l.Name, l.Quantity, l.Subtotal().StringFixed(2))
	}
	fmt.Fprintf(&b, "\nTotal: %s\n", o.Total.StringFixed(2))
	if o.OrderType == model.OrderDelivery || o.Delivery.Street != "" {
		fmt.Fprintf(&b, "Address: %s, %s\n", o.Delivery.Street, o.Delivery.City)
	}
	fmt.Fprintf(&b, "Phone: %s\n", o.Delivery.Phone)
	return b.String()
}

func OrderReceived(u model.User, o model.Order) Message {
	return email(u.Email, fmt.Sprintf("Order #%s Received", o.Number),
		fmt.Sprintf("Hello %s,\n\nThank you for your order!\n\n%s\nWe will start preparing it shortly.%s",
			u.FullName, OrderBody(o), signature))
}

func PaymentReceived(u model.User, o model.Order) Message {
	return email(u.Email, fmt.Sprintf("Payment Received - Order #%s", o.Number),
		fmt.Sprintf("Hello %s,\n\nPayment successful! Your order has been placed.\n\n%s%s",
			u.FullName, OrderBody(o), signature))
}

func PaymentFailed(u model.User, o model.Order, reason string) Message {
	return email(u.Email, fmt.Sprintf("Payment Failed - Order #%s", o.Number),
		fmt.Sprintf("Hello %s,\n\nWe could not complete the payment for order #%s (%s). The order has been canceled and no money was taken.%s",
			u.FullName, o.Number, reason, signature))
}

// OrderStatusChanged covers the staff driven moves a customer hears about.
// It reports false for states that are not announced.
func OrderStatusChanged(u model.User, o model.Order) (Message, bool) {
	var line string
	switch o.Status {
	case model.OrderConfirmed:
		line = "has been confirmed. We are starting to prepare it!"
	case model.OrderReady:
		line = "is ready."
	case model.OrderDelivered:
		line = "has been delivered. Enjoy your meal!"
	case model.OrderCanceled:
		line = "has been CANCELED."
	default:
		return Message{}, false
	}
	return email(u.Email, fmt.Sprintf("Order #%s %s", o.Number, o.Status),
		fmt.Sprintf("Hello %s,\n\nYour order #%s %s\n\n%s%s", u.FullName, o.Number, line, OrderBody(o), signature)), true
}

func OrderDeleted(u model.User, o model.Order) Message {
	return email(u.Email, fmt.Sprintf("Order #%s Canceled", o.Number),
		fmt.Sprintf("Hello %s,\n\nYour order #%s has been CANCELED/DELETED by the admin.\n\n%s\nIf you have already paid, a refund will be processed shortly.%s",
			u.FullName, o.Number, OrderBody(o), signature))
}

func ReservationReceived(u model.User, r model.Reservation) Message {
	return email(u.Email, "Reservation Received",
		fmt.Sprintf("Hello %s,\n\nWe received your request for Table %s on %s at %s for %d guest(s). Reference: %s.\nWe will confirm it shortly.%s",
			u.FullName, r.TableNo, r.Date, r.StartTime, r.Guests, r.Number, signature))
}

func ReservationConfirmed(u model.User, r model.Reservation) Message {
	return email(u.Email, "Reservation Confirmed",
		fmt.Sprintf("Hello %s,\n\nYour reservation for Table %s on %s at %s has been CONFIRMED.\n\nWe look forward to hosting you!%s",
			u.FullName, r.TableNo, r.Date, r.StartTime, signature))
}

func ReservationCanceled(u model.User, r model.Reservation) Message {
	return email(u.Email, "Reservation Canceled",
		fmt.Sprintf("Hello %s,\n\nYour reservation for Table %s on %s at %s has been CANCELED.%s",
			u.FullName, r.TableNo, r.Date, r.StartTime, signature))
}

func lowStockText(item model.MenuItem) string {
	stock := 0
	if item.StockQuantity != nil {
		stock = *item.StockQuantity
	}
	return fmt.Sprintf("%s is running low: %d left (threshold %d).", item.Name, stock, item.LowStockThreshold)
}

func newOrderText(o model.Order) string {
	where := string(o.OrderType)
	if o.TableNo != nil {
		where += " table " + *o.TableNo
	}
	return fmt.Sprintf("Order #%s (%s, %s) total %s, %d line(s).",
		o.Number, where, o.PaymentMethod, o.Total.StringFixed(2), len(o.Lines))
}

func chat(chatID int64, subject, body string) Message {
	return Message{Channel: ChannelTelegram, Recipient: strconv.FormatInt(chatID, 10), Subject: subject, Body: body}
}
