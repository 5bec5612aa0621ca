package notify

import (
	"context"
	"log/slog"
	"time"
)

// Direct sends on the caller's goroutine budget: it waits up to Wait for
// the sender and reports Pending if delivery is still running after that.
type Direct struct {
	senders map[string]Sender
	wait    time.Duration
	log     *slog.Logger
}

func NewDirect(senders map[string]Sender, wait time.Duration, log *slog.Logger) *Direct {
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &Direct{senders: senders, wait: wait, log: log.With("component", "notify.direct")}
}

func (d *Direct) Notify(ctx context.Context, msg Message) Result {
	msg = msg.withDefaults()
	if err := msg.Validate(); err != nil {
		d.log.Warn("skip notification", "id", msg.ID, "err", err)
		return Failed
	}
	sender, ok := d.senders[msg.Channel]
	if !ok {
		d.log.Warn("no sender for channel", "channel", msg.Channel)
		return Failed
	}
	done := make(chan error, 1)
	go func() { done <- sender.Send(context.WithoutCancel(ctx), msg) }()

	timer := time.NewTimer(d.wait)
	defer timer.Stop()
	select {
	case err := <-done:
		if err != nil {
			d.log.Warn("send notification failed", "id", msg.ID, "channel", msg.Channel, "err", err)
			return Failed
		}
		return Sent
	case <-timer.C:
		return Pending
	}
}
