package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/iliyamo/restaurant-order-engine/internal/model"
	"github.com/iliyamo/restaurant-order-engine/internal/redisx"
)

// Claimer is the set-if-absent primitive used to rate limit alerts.
type Claimer interface {
	Claim(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
}

// StaffAlerts fans operational alerts out to the staff Telegram chat and,
// when configured, the staff mailbox.
type StaffAlerts struct {
	notifier Notifier
	chatID   int64
	email    string
	claims   Claimer
	log      *slog.Logger
}

func NewStaffAlerts(n Notifier, chatID int64, staffEmail string, claims Claimer, log *slog.Logger) *StaffAlerts {
	return &StaffAlerts{notifier: n, chatID: chatID, email: staffEmail, claims: claims, log: log.With("component", "notify.staff")}
}

// LowStock alerts once per item per alert window.
func (s *StaffAlerts) LowStock(ctx context.Context, item model.MenuItem) Result {
	if s.claims != nil {
		ok, err := s.claims.Claim(ctx, fmt.Sprintf(redisx.KeyLowStockAlert, item.ID), "1", redisx.TTLAlert)
		if err != nil {
			s.log.Warn("low stock dedup unavailable", "item_id", item.ID, "err", err)
		} else if !ok {
			return Sent
		}
	}
	return s.broadcast(ctx, "Low stock", lowStockText(item))
}

func (s *StaffAlerts) NewOrder(ctx context.Context, o model.Order) Result {
	return s.broadcast(ctx, "New order", newOrderText(o))
}

func (s *StaffAlerts) broadcast(ctx context.Context, subject, body string) Result {
	res := Failed
	if s.chatID != 0 {
		res = s.notifier.Notify(ctx, chat(s.chatID, subject, body))
	}
	if s.email != "" {
		if r := s.notifier.Notify(ctx, email(s.email, subject, body)); res == Failed {
			res = r
		}
	}
	if res == Failed {
		s.log.Warn("staff alert not delivered", "subject", subject, "chat_id", strconv.FormatInt(s.chatID, 10))
	}
	return res
}
