package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// Producer hands events to a background writer through a buffered inbox so
// request handlers never wait on the brokers.  When the inbox is full the
// event is dropped and logged.
type Producer struct {
	w        *kafka.Writer
	inbox    chan kafka.Message
	closeCh  chan struct{}
	producer string
	log      *slog.Logger
}

func NewProducer(brokers []string, topic string, buf int, log *slog.Logger) *Producer {
	if buf <= 0 {
		buf = 1024
	}
	p := &Producer{
		inbox:    make(chan kafka.Message, buf),
		closeCh:  make(chan struct{}),
		producer: "restaurant-order-engine",
		log:      log.With("component", "events"),
	}
	p.w = &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
		Async:        true,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				p.log.Warn("write events failed", "count", len(msgs), "err", err)
			}
		},
	}
	return p
}

// Start runs the writer loop until ctx is cancelled, then flushes what is
// left in the inbox and closes the writer.
func (p *Producer) Start(ctx context.Context) {
	go func() {
		defer close(p.closeCh)
		for {
			select {
			case <-ctx.Done():
				for {
					select {
					case m := <-p.inbox:
						_ = p.w.WriteMessages(context.Background(), m)
					default:
						_ = p.w.Close()
						return
					}
				}
			case m := <-p.inbox:
				if err := p.w.WriteMessages(ctx, m); err != nil {
					p.log.Warn("enqueue event failed", "key", string(m.Key), "err", err)
				}
			}
		}
	}()
}

// Publish wraps payload in an Envelope keyed by key (the order number, so
// all events of one order land on one partition).
func (p *Producer) Publish(eventType, key string, payload any) {
	env, err := NewEnvelope(p.producer, eventType, key, payload)
	if err != nil {
		p.log.Warn("encode event failed", "type", eventType, "err", err)
		return
	}
	value, err := json.Marshal(env)
	if err != nil {
		p.log.Warn("encode envelope failed", "type", eventType, "err", err)
		return
	}
	msg := kafka.Message{
		Key:     []byte(key),
		Value:   value,
		Time:    env.OccurredAt,
		Headers: []kafka.Header{{Key: "event_type", Value: []byte(eventType)}},
	}
	select {
	case p.inbox <- msg:
	default:
		p.log.Warn("event inbox full, dropping", "type", eventType, "key", key)
	}
}

// WaitClosed blocks until the writer loop has flushed and exited.
func (p *Producer) WaitClosed() { <-p.closeCh }
