package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/iliyamo/restaurant-order-engine/internal/model"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fixedNotifier Result

func (f fixedNotifier) Notify(context.Context, Message) Result { return Result(f) }

type recorder struct {
	mu   sync.Mutex
	msgs []Message
	res  Result
}

func (r *recorder) Notify(_ context.Context, m Message) Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
	if r.res == "" {
		return Pending
	}
	return r.res
}

type funcSender func(ctx context.Context, msg Message) error

func (f funcSender) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }

func TestMessageValidate(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		ok   bool
	}{
		{"email", Message{Channel: ChannelEmail, Recipient: "a@b.c"}, true},
		{"email without at", Message{Channel: ChannelEmail, Recipient: "nobody"}, false},
		{"telegram", Message{Channel: ChannelTelegram, Recipient: "-100123"}, true},
		{"telegram bad chat", Message{Channel: ChannelTelegram, Recipient: "staff"}, false},
		{"unknown channel", Message{Channel: "sms", Recipient: "+880"}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.msg.Validate()
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrPermanent)
		})
	}
}

func TestFallback(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, Pending, Fallback{Primary: fixedNotifier(Pending), Secondary: fixedNotifier(Sent)}.Notify(ctx, Message{}))
	assert.Equal(t, Sent, Fallback{Primary: fixedNotifier(Failed), Secondary: fixedNotifier(Sent)}.Notify(ctx, Message{}))
	assert.Equal(t, Failed, Fallback{Primary: fixedNotifier(Failed)}.Notify(ctx, Message{}))
	assert.Equal(t, Failed, Discard{}.Notify(ctx, Message{}))
}

func TestDirect(t *testing.T) {
	defer goleak.VerifyNone(t)

	release := make(chan struct{})
	senders := map[string]Sender{
		ChannelEmail: funcSender(func(context.Context, Message) error { return nil }),
		ChannelTelegram: funcSender(func(context.Context, Message) error {
			<-release
			return nil
		}),
	}
	d := NewDirect(senders, 20*time.Millisecond, quiet())
	ctx := context.Background()

	assert.Equal(t, Sent, d.Notify(ctx, Message{Channel: ChannelEmail, Recipient: "a@b.c"}))
	assert.Equal(t, Failed, d.Notify(ctx, Message{Channel: ChannelEmail, Recipient: "bad"}))
	assert.Equal(t, Pending, d.Notify(ctx, Message{Channel: ChannelTelegram, Recipient: "42"}))
	close(release)

	failing := NewDirect(map[string]Sender{
		ChannelEmail: funcSender(func(context.Context, Message) error { return errors.New("relay down") }),
	}, time.Second, quiet())
	assert.Equal(t, Failed, failing.Notify(ctx, Message{Channel: ChannelEmail, Recipient: "a@b.c"}))
	assert.Equal(t, Failed, failing.Notify(ctx, Message{Channel: ChannelTelegram, Recipient: "42"}))
}

func TestStaffAlertsLowStockOncePerWindow(t *testing.T) {
	rec := &recorder{}
	claims := &memClaims{m: map[string]bool{}}
	s := NewStaffAlerts(rec, -100, "kitchen@example.com", claims, quiet())
	stock := 2
	item := model.MenuItem{ID: 9, Name: "Firni", StockQuantity: &stock, LowStockThreshold: 5}

	assert.Equal(t, Pending, s.LowStock(context.Background(), item))
	require.Len(t, rec.msgs, 2)
	assert.Equal(t, ChannelTelegram, rec.msgs[0].Channel)
	assert.Equal(t, "-100", rec.msgs[0].Recipient)
	assert.Equal(t, ChannelEmail, rec.msgs[1].Channel)
	assert.Equal(t, "Firni is running low: 2 left (threshold 5).", rec.msgs[0].Body)

	assert.Equal(t, Sent, s.LowStock(context.Background(), item))
	assert.Len(t, rec.msgs, 2)
}

func TestStaffAlertsWithoutChannels(t *testing.T) {
	rec := &recorder{}
	s := NewStaffAlerts(rec, 0, "", nil, quiet())
	table := "T4"
	res := s.NewOrder(context.Background(), model.Order{
		Number: "ABC", OrderType: model.OrderDineIn, TableNo: &table, PaymentMethod: model.PaymentCash,
		Total: decimal.RequireFromString("120"),
	})
	assert.Equal(t, Failed, res)
	assert.Empty(t, rec.msgs)
}

type memClaims struct{ m map[string]bool }

func (c *memClaims) Claim(_ context.Context, key, _ string, _ time.Duration) (bool, error) {
	if c.m[key] {
		return false, nil
	}
	c.m[key] = true
	return true, nil
}
