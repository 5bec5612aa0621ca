package payment

import (
	"context"
	"log/slog"
	"time"

	"github.com/iliyamo/restaurant-order-engine/internal/redisx"
)

// Locker elects the instance that runs a sweep.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error)
}

// ExpiredLister finds orders whose stock holds have outlived their window.
type ExpiredLister interface {
	ExpiredRefs(ctx context.Context, now time.Time, limit int) ([]string, error)
}

// Expirer resolves the holds of one order.
type Expirer interface {
	Expire(ctx context.Context, ref string) (bool, error)
}

// Sweeper periodically resolves expired stock holds so none of them
// outlives its payment window.
type Sweeper struct {
	holds    ExpiredLister
	expirer  Expirer
	lock     Locker
	interval time.Duration
	batch    int
	log      *slog.Logger

	now func() time.Time
}

func NewSweeper(holds ExpiredLister, expirer Expirer, lock Locker, interval time.Duration, log *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Sweeper{
		holds:    holds,
		expirer:  expirer,
		lock:     lock,
		interval: interval,
		batch:    100,
		log:      log.With("component", "payment.sweeper"),
		now:      time.Now,
	}
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	s.log.Info("sweeper started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopped")
			return
		case <-t.C:
			if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				s.log.Warn("sweep failed", "err", err)
			}
		}
	}
}

// SweepOnce resolves one batch of expired orders and reports how many
// orders were canceled.  It does nothing when another instance holds the
// sweep lock.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	if s.lock != nil {
		release, ok, err := s.lock.TryLock(ctx, redisx.KeySweepLock, s.interval)
		if err != nil {
			return 0, err
		}
		if !ok {
			return 0, nil
		}
		defer release()
	}
	refs, err := s.holds.ExpiredRefs(ctx, s.now(), s.batch)
	if err != nil {
		return 0, err
	}
	canceled := 0
	for _, ref := range refs {
		if ctx.Err() != nil {
			return canceled, ctx.Err()
		}
		ok, err := s.expirer.Expire(ctx, ref)
		if err != nil {
			s.log.Warn("expire holds failed", "order_number", ref, "err", err)
			continue
		}
		if ok {
			canceled++
		}
	}
	if len(refs) > 0 {
		s.log.Info("sweep finished", "expired", len(refs), "canceled", canceled)
	}
	return canceled, nil
}
