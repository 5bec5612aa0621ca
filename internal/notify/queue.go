package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Queue publishes notifications to a durable RabbitMQ queue.  It keeps one
// connection and channel open and redials lazily after a failure.
//
// Topology: <queue> is consumed by the Dispatcher.  <queue>.retry has no
// consumer; messages published there with a per-message TTL dead-letter
// back into <queue> once the TTL expires, which is how retries are delayed.
type Queue struct {
	url     string
	queue   string
	timeout time.Duration
	log     *slog.Logger

	// sem guards conn and ch.  It is a channel rather than a mutex so a
	// publisher stuck behind a slow dial gives up when its context ends.
	sem  chan struct{}
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewQueue(url, queue string, timeout time.Duration, log *slog.Logger) *Queue {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Queue{url: url, queue: queue, timeout: timeout, sem: make(chan struct{}, 1), log: log.With("component", "notify.queue")}
}

// dial bounds both the TCP connect and the AMQP handshake by timeout.
func dial(url string, timeout time.Duration) (*amqp.Connection, error) {
	return amqp.DialConfig(url, amqp.Config{
		Dial:      amqp.DefaultDial(timeout),
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
	})
}

func (q *Queue) lock(ctx context.Context) error {
	select {
	case q.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for broker connection: %w", ctx.Err())
	}
}

func (q *Queue) unlock() { <-q.sem }

func retryQueueName(queue string) string { return queue + ".retry" }

// declareTopology is idempotent; both queues are durable so messages
// survive broker restarts.
func declareTopology(ch *amqp.Channel, queue string) error {
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	args := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": queue,
	}
	if _, err := ch.QueueDeclare(retryQueueName(queue), true, false, false, false, args); err != nil {
		return fmt.Errorf("retry queue declare: %w", err)
	}
	return nil
}

// channel returns the shared channel, dialing when needed.  Callers hold
// the lock.  The dial gets whatever is left of ctx, capped at q.timeout.
func (q *Queue) channel(ctx context.Context) (*amqp.Channel, error) {
	if q.ch != nil && !q.ch.IsClosed() {
		return q.ch, nil
	}
	q.resetLocked()
	timeout := q.timeout
	if dl, ok := ctx.Deadline(); ok && time.Until(dl) < timeout {
		timeout = time.Until(dl)
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("dial: %w", context.DeadlineExceeded)
	}
	conn, err := dial(q.url, timeout)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("channel open: %w", err)
	}
	if err := declareTopology(ch, q.queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	q.conn, q.ch = conn, ch
	return ch, nil
}

func (q *Queue) resetLocked() {
	if q.ch != nil {
		_ = q.ch.Close()
	}
	if q.conn != nil {
		_ = q.conn.Close()
	}
	q.conn, q.ch = nil, nil
}

// publish sends msg to the main queue, or to the retry queue when delay > 0.
func (q *Queue) publish(ctx context.Context, msg Message, delay time.Duration) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	routingKey := q.queue
	if delay > 0 {
		routingKey = retryQueueName(q.queue)
		pub.Expiration = strconv.FormatInt(delay.Milliseconds(), 10)
	}

	if err := q.lock(ctx); err != nil {
		return err
	}
	defer q.unlock()
	ch, err := q.channel(ctx)
	if err != nil {
		return err
	}
	if err := ch.PublishWithContext(ctx, "", routingKey, false, false, pub); err != nil {
		q.resetLocked()
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Notify enqueues msg and reports Pending, or Failed when the message is
// invalid or the broker cannot be reached within the publish timeout.
func (q *Queue) Notify(ctx context.Context, msg Message) Result {
	msg = msg.withDefaults()
	if err := msg.Validate(); err != nil {
		q.log.Warn("skip notification", "id", msg.ID, "err", err)
		return Failed
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), q.timeout)
	defer cancel()
	if err := q.publish(ctx, msg, 0); err != nil {
		q.log.Warn("enqueue notification failed", "id", msg.ID, "channel", msg.Channel, "err", err)
		return Failed
	}
	return Pending
}

// Retry re-enqueues msg after delay.
func (q *Queue) Retry(ctx context.Context, msg Message, delay time.Duration) error {
	if delay <= 0 {
		delay = time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()
	return q.publish(ctx, msg, delay)
}

func (q *Queue) Close() error {
	q.sem <- struct{}{}
	defer q.unlock()
	q.resetLocked()
	return nil
}
