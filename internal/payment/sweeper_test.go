package payment

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeLister struct{ refs []string }

func (f fakeLister) ExpiredRefs(context.Context, time.Time, int) ([]string, error) { return f.refs, nil }

type fakeExpirer struct {
	mu   sync.Mutex
	seen []string
}

func (f *fakeExpirer) Expire(_ context.Context, ref string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, ref)
	if ref == "BAD" {
		return false, errors.New("boom")
	}
	return ref != "PAID", nil
}

type fakeLock struct {
	held     bool
	released int
}

func (l *fakeLock) TryLock(context.Context, string, time.Duration) (func(), bool, error) {
	if l.held {
		return nil, false, nil
	}
	return func() { l.released++ }, true, nil
}

func quietLog() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestSweepOnce(t *testing.T) {
	exp := &fakeExpirer{}
	lock := &fakeLock{}
	s := NewSweeper(fakeLister{refs: []string{"A", "BAD", "PAID", "B"}}, exp, lock, time.Minute, quietLog())

	n, err := s.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"A", "BAD", "PAID", "B"}, exp.seen)
	assert.Equal(t, 1, lock.released)
}

func TestSweepSkipsWhenLockHeldElsewhere(t *testing.T) {
	exp := &fakeExpirer{}
	s := NewSweeper(fakeLister{refs: []string{"A"}}, exp, &fakeLock{held: true}, time.Minute, quietLog())

	n, err := s.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, exp.seen)
}

func TestSweeperRunStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	exp := &fakeExpirer{}
	s := NewSweeper(fakeLister{refs: []string{"A"}}, exp, nil, 5*time.Millisecond, quietLog())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		exp.mu.Lock()
		defer exp.mu.Unlock()
		return len(exp.seen) > 0
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}
