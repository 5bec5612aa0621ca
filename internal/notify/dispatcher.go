package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// errRequeue asks the consume loop to put the delivery back on the queue.
var errRequeue = errors.New("requeue")

// RetryFunc schedules msg for another attempt after delay.
type RetryFunc func(ctx context.Context, msg Message, delay time.Duration) error

// Dispatcher consumes the notification queue and hands each message to the
// sender for its channel.  Failed sends are retried with exponential backoff
// through the retry queue until MaxAttempts is reached.
type Dispatcher struct {
	URL         string
	Queue       string
	Prefetch    int
	MaxAttempts int
	RetryBase   time.Duration
	MaxDelay    time.Duration
	DialTimeout time.Duration // TCP connect plus AMQP handshake

	senders map[string]Sender
	retry   RetryFunc
	log     *slog.Logger
}

func NewDispatcher(url, queue string, prefetch, maxAttempts int, retryBase time.Duration,
	senders map[string]Sender, retry RetryFunc, log *slog.Logger) *Dispatcher {
	if prefetch <= 0 {
		prefetch = 50
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if retryBase <= 0 {
		retryBase = 2 * time.Second
	}
	return &Dispatcher{
		URL:         url,
		Queue:       queue,
		Prefetch:    prefetch,
		MaxAttempts: maxAttempts,
		RetryBase:   retryBase,
		MaxDelay:    10 * time.Minute,
		DialTimeout: 5 * time.Second,
		senders:     senders,
		retry:       retry,
		log:         log.With("component", "notify.dispatcher"),
	}
}

// Run connects to the broker and consumes until ctx is cancelled.  Lost
// connections are re-dialed with a backoff that doubles up to 30 seconds.
func (d *Dispatcher) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return nil
		}
		conn, err := dial(d.URL, d.DialTimeout)
		if err != nil {
			d.log.Warn("dial broker failed", "err", err, "retry_in", backoff)
			if !sleep(ctx, backoff) {
				return nil
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = d.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		d.log.Warn("consume loop ended, reconnecting", "err", err)
		if !sleep(ctx, 2*time.Second) {
			return nil
		}
	}
}

func (d *Dispatcher) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(d.Prefetch, 0, false); err != nil {
		d.log.Warn("set qos failed", "err", err)
	}
	if err := declareTopology(ch, d.Queue); err != nil {
		return err
	}
	msgs, err := ch.Consume(d.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case dl, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			switch err := d.handle(ctx, dl.Body); {
			case err == nil:
				_ = dl.Ack(false)
			case errors.Is(err, errRequeue):
				_ = dl.Nack(false, true)
			default:
				d.log.Error("drop undecodable notification", "err", err)
				_ = dl.Nack(false, false)
			}
		}
	}
}

// handle processes one delivery.  A nil return acks it: the message was
// either sent, scheduled for retry, or dropped on purpose.
func (d *Dispatcher) handle(ctx context.Context, body []byte) error {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	sender, ok := d.senders[msg.Channel]
	if !ok {
		d.log.Warn("no sender for channel, dropping", "id", msg.ID, "channel", msg.Channel)
		return nil
	}
	err := msg.Validate()
	if err == nil {
		err = sender.Send(ctx, msg)
	}
	if err == nil {
		d.log.Info("notification sent", "id", msg.ID, "channel", msg.Channel, "attempt", msg.Attempt+1)
		return nil
	}
	if errors.Is(err, ErrPermanent) || msg.Attempt+1 >= d.MaxAttempts {
		d.log.Error("notification dropped", "id", msg.ID, "channel", msg.Channel, "attempt", msg.Attempt+1, "err", err)
		return nil
	}

	delay := d.Backoff(msg.Attempt)
	msg.Attempt++
	if rerr := d.retry(ctx, msg, delay); rerr != nil {
		d.log.Warn("schedule retry failed", "id", msg.ID, "err", rerr)
		return errRequeue
	}
	d.log.Warn("notification failed, retry scheduled", "id", msg.ID, "attempt", msg.Attempt, "delay", delay, "err", err)
	return nil
}

// Backoff returns RetryBase * 2^attempt capped at MaxDelay.
func (d *Dispatcher) Backoff(attempt int) time.Duration {
	delay := d.RetryBase
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= d.MaxDelay {
			return d.MaxDelay
		}
	}
	return delay
}

// sleep waits for dur or until ctx is done; it reports false on cancellation.
func sleep(ctx context.Context, dur time.Duration) bool {
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
