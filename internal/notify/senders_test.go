package notify

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/restaurant-order-engine/internal/model"
)

func TestSMTPSender(t *testing.T) {
	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
		gotAuth smtp.Auth
	)
	s := NewSMTPSender("smtp.example.com", 587, "bot", "secret", "orders@example.com")
	s.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth, gotTo, gotMsg = addr, a, to, string(msg)
		assert.Equal(t, "orders@example.com", from)
		return nil
	}

	err := s.Send(context.Background(), Message{
		Recipient: "guest@example.com",
		Subject:   "Order #ABC Received",
		Body:      "line one\nline two",
		CreatedAt: time.Date(2024, 12, 31, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.NotNil(t, gotAuth)
	assert.Equal(t, []string{"guest@example.com"}, gotTo)
	assert.True(t, strings.HasPrefix(gotMsg, "From: orders@example.com\r\nTo: guest@example.com\r\nSubject: Order #ABC Received\r\n"))
	assert.Contains(t, gotMsg, "Date: Tue, 31 Dec 2024 10:00:00 +0000\r\n")
	assert.True(t, strings.HasSuffix(gotMsg, "\r\n\r\nline one\r\nline two"))
}

func TestSMTPSenderUnconfigured(t *testing.T) {
	err := NewSMTPSender("", 25, "", "", "x@example.com").Send(context.Background(), Message{Recipient: "a@b.c"})
	assert.ErrorIs(t, err, ErrPermanent)
}

type fakeBot struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if mc, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, mc)
	}
	return tgbotapi.Message{}, f.err
}

func TestTelegramSender(t *testing.T) {
	bot := &fakeBot{}
	s := &TelegramSender{bot: bot}

	require.NoError(t, s.Send(context.Background(), Message{Recipient: "-1001", Subject: "Low stock", Body: "Firni is running low"}))
	require.Len(t, bot.sent, 1)
	assert.Equal(t, int64(-1001), bot.sent[0].ChatID)
	assert.Equal(t, "Low stock\n\nFirni is running low", bot.sent[0].Text)
	assert.True(t, bot.sent[0].DisableWebPagePreview)

	assert.ErrorIs(t, s.Send(context.Background(), Message{Recipient: "kitchen"}), ErrPermanent)

	bot.err = errors.New("Too Many Requests")
	assert.Error(t, s.Send(context.Background(), Message{Recipient: "1", Body: "x"}))
}

func TestOrderMessages(t *testing.T) {
	u := model.User{Email: "guest@example.com", FullName: "Rahim"}
	o := model.Order{
		Number:    "0A1B2C3D4E5F",
		Status:    model.OrderReady,
		OrderType: model.OrderDelivery,
		Total:     decimal.RequireFromString("780"),
		Delivery:  model.DeliveryDetails{Phone: "017", City: "Dhaka", Street: "Road 1"},
		Lines: []model.OrderLine{
			{Name: "Kacchi", UnitPrice: decimal.RequireFromString("350"), Quantity: 2},
			{Name: "Borhani", UnitPrice: decimal.RequireFromString("80"), Quantity: 1},
		},
	}

	body := OrderBody(o)
	assert.Contains(t, body, "- Kacchi x 2 : 700.00\n")
	assert.Contains(t, body, "Total: 780.00\n")
	assert.Contains(t, body, "Address: Road 1, Dhaka\n")

	m, ok := OrderStatusChanged(u, o)
	require.True(t, ok)
	assert.Equal(t, "Order #0A1B2C3D4E5F Ready", m.Subject)
	assert.Equal(t, "guest@example.com", m.Recipient)

	o.Status = model.OrderPreparing
	_, ok = OrderStatusChanged(u, o)
	assert.False(t, ok)

	assert.Contains(t, OrderDeleted(u, o).Body, "refund")
	assert.Contains(t, PaymentFailed(u, o, "payment canceled").Body, "(payment canceled)")
}

func TestReservationMessages(t *testing.T) {
	u := model.User{Email: "guest@example.com", FullName: "Rahim"}
	r := model.Reservation{Number: "R1", TableNo: "T1", Date: "2024-12-31", StartTime: "18:00", Guests: 4}

	assert.Equal(t, "Reservation Received", ReservationReceived(u, r).Subject)
	assert.Contains(t, ReservationReceived(u, r).Body, "Table T1 on 2024-12-31 at 18:00 for 4 guest(s)")
	assert.Contains(t, ReservationConfirmed(u, r).Body, "CONFIRMED")
	assert.Contains(t, ReservationCanceled(u, r).Body, "CANCELED")
}
