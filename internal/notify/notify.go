// Package notify delivers customer emails and staff alerts.  Delivery is
// always attempted after the order or reservation change has committed,
// and its outcome never feeds back into that change.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Result is the tri-state outcome of a notification attempt.
type Result string

const (
	Sent    Result = "sent"    // delivered synchronously
	Pending Result = "pending" // accepted for asynchronous delivery
	Failed  Result = "failed"  // not delivered and not queued
)

// Channels a message can travel on.
const (
	ChannelEmail    = "email"
	ChannelTelegram = "telegram"
)

// ErrPermanent marks a delivery error that retrying cannot fix.
var ErrPermanent = errors.New("permanent delivery failure")

// Message is the unit handed to the queue and to senders.
type Message struct {
	ID        string    `json:"id"`
	Channel   string    `json:"channel"`
	Recipient string    `json:"recipient"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Attempt   int       `json:"attempt"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate rejects messages that can never be delivered, such as an email
// recipient without "@".
func (m Message) Validate() error {
	switch m.Channel {
	case ChannelEmail:
		if !strings.Contains(m.Recipient, "@") {
			return fmt.Errorf("%w: invalid email recipient %q", ErrPermanent, m.Recipient)
		}
	case ChannelTelegram:
		if _, err := strconv.ParseInt(m.Recipient, 10, 64); err != nil {
			return fmt.Errorf("%w: invalid chat id %q", ErrPermanent, m.Recipient)
		}
	default:
		return fmt.Errorf("%w: unknown channel %q", ErrPermanent, m.Channel)
	}
	return nil
}

func (m Message) withDefaults() Message {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	return m
}

// Notifier is the fire-and-forget entry point used by the services.
type Notifier interface {
	Notify(ctx context.Context, msg Message) Result
}

// Sender performs one delivery attempt on one channel.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Fallback tries Primary and, when it fails outright, Secondary.
type Fallback struct {
	Primary   Notifier
	Secondary Notifier
}

func (f Fallback) Notify(ctx context.Context, msg Message) Result {
	if r := f.Primary.Notify(ctx, msg); r != Failed {
		return r
	}
	if f.Secondary == nil {
		return Failed
	}
	return f.Secondary.Notify(ctx, msg)
}

// Discard drops every message and reports Failed.
type Discard struct{}

func (Discard) Notify(context.Context, Message) Result { return Failed }
