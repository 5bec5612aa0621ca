// Package events publishes order lifecycle events for kitchen displays and
// other read-side consumers.  Delivery is best effort: the database is the
// source of truth and a lost event never affects an order.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/restaurant-order-engine/internal/model"
)

const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"
	EventOrderPaid          = "order.paid"
	EventOrderDeleted       = "order.deleted"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order number
	Payload       json.RawMessage `json:"payload"`
}

// OrderPayload is shared by every order.* event.
type OrderPayload struct {
	OrderID        uint64 `json:"order_id"`
	OrderNumber    string `json:"order_number"`
	UserID         uint64 `json:"user_id"`
	Status         string `json:"status"`
	PreviousStatus string `json:"previous_status,omitempty"`
	PaymentStatus  string `json:"payment_status"`
	PaymentMethod  string `json:"payment_method"`
	Total          string `json:"total"`
	Actor          string `json:"actor,omitempty"`
}

// OrderEvent builds the payload for o.  prev is empty for order.created.
func OrderEvent(o model.Order, prev model.OrderStatus, actor string) OrderPayload {
	return OrderPayload{
		OrderID:        o.ID,
		OrderNumber:    o.Number,
		UserID:         o.UserID,
		Status:         string(o.Status),
		PreviousStatus: string(prev),
		PaymentStatus:  string(o.PaymentStatus),
		PaymentMethod:  string(o.PaymentMethod),
		Total:          o.Total.StringFixed(2),
		Actor:          actor,
	}
}

// NewEnvelope wraps payload with a fresh event id.
func NewEnvelope(producer, eventType, correlationID string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: correlationID,
		Payload:       raw,
	}, nil
}

// Publisher is what services depend on.
type Publisher interface {
	Publish(eventType, key string, payload any)
}

// Nop drops every event.  Used when no brokers are configured.
type Nop struct{}

func (Nop) Publish(string, string, any) {}
