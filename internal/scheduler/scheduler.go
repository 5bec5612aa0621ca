package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/iliyamo/restaurant-order-engine/internal/model"
	"github.com/iliyamo/restaurant-order-engine/internal/notify"
	"github.com/iliyamo/restaurant-order-engine/internal/repository"
)

// Scheduler persists bookings that pass CheckAvailability.  Booking a
// concrete table first takes the (table, date) slot lock so two overlapping
// requests cannot both pass the check.
type Scheduler struct {
	rules    Rules
	repo     *repository.ReservationRepo
	users    *repository.UserRepo
	notifier notify.Notifier
	log      *slog.Logger

	now func() time.Time
}

func New(rules Rules, repo *repository.ReservationRepo, users *repository.UserRepo, n notify.Notifier, log *slog.Logger) *Scheduler {
	if n == nil {
		n = notify.Discard{}
	}
	return &Scheduler{rules: rules, repo: repo, users: users, notifier: n, log: log.With("component", "scheduler"), now: time.Now}
}

func (s *Scheduler) Rules() Rules { return s.rules }

// Check runs the availability rules without booking anything.
func (s *Scheduler) Check(ctx context.Context, req Request) error {
	var existing []model.Reservation
	if req.TableNo != model.TableAny {
		var err error
		if existing, err = s.repo.ActiveForTable(ctx, req.TableNo, req.Date); err != nil {
			return err
		}
	}
	return s.rules.CheckAvailability(s.now(), req, existing)
}

// Book stores a Pending booking for userID.  The guest's profile must be
// complete, as it is for checkout.
func (s *Scheduler) Book(ctx context.Context, userID uint64, req Request) (model.Reservation, notify.Result, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return model.Reservation{}, "", fmt.Errorf("load user %d: %w", userID, err)
	}
	if !user.ProfileComplete() {
		return model.Reservation{}, "", model.ErrIncompleteProfile
	}

	res := model.Reservation{
		Number:        model.NewReference(),
		UserID:        userID,
		Date:          req.Date,
		StartTime:     req.StartTime,
		DurationHours: req.Duration,
		Guests:        req.Guests,
		TableNo:       req.TableNo,
		Status:        model.ReservationPending,
	}
	err = repository.WithTx(ctx, s.repo.DB(), func(tx *sql.Tx) error {
		var existing []model.Reservation
		if req.TableNo != model.TableAny {
			if err := s.repo.LockSlotTx(ctx, tx, req.TableNo, req.Date); err != nil {
				return fmt.Errorf("lock slot: %w", err)
			}
			var err error
			if existing, err = s.repo.ActiveForTableTx(ctx, tx, req.TableNo, req.Date); err != nil {
				return err
			}
		}
		if err := s.rules.CheckAvailability(s.now(), req, existing); err != nil {
			return err
		}
		return s.repo.CreateTx(ctx, tx, &res)
	})
	if err != nil {
		return model.Reservation{}, "", err
	}
	res.CreatedAt = s.now().UTC()
	s.log.Info("reservation booked", "reservation_id", res.ID, "table", res.TableNo, "date", res.Date, "time", res.StartTime)

	result := s.notifier.Notify(ctx, notify.ReservationReceived(user, res))
	return res, result, nil
}

// Confirm marks a Pending booking Confirmed.  Confirming twice is a no-op;
// a canceled booking cannot be confirmed.
func (s *Scheduler) Confirm(ctx context.Context, id uint64) (model.Reservation, notify.Result, error) {
	var changed bool
	var res model.Reservation
	err := repository.WithTx(ctx, s.repo.DB(), func(tx *sql.Tx) error {
		var err error
		if res, err = s.repo.GetForUpdateTx(ctx, tx, id); err != nil {
			return err
		}
		switch res.Status {
		case model.ReservationConfirmed:
			return nil
		case model.ReservationCanceled:
			return fmt.Errorf("reservation %d is canceled: %w", id, repository.ErrConflict)
		}
		res.Status = model.ReservationConfirmed
		changed = true
		return s.repo.UpdateStatusTx(ctx, tx, id, res.Status)
	})
	if err != nil || !changed {
		return res, "", err
	}
	return res, s.announce(ctx, res, notify.ReservationConfirmed), nil
}

// Cancel cancels a booking.  Customers may only cancel their own; staff
// may cancel any.  Canceling an already canceled booking succeeds without
// sending anything.
func (s *Scheduler) Cancel(ctx context.Context, actor model.Actor, id uint64) (model.Reservation, notify.Result, error) {
	var changed bool
	var res model.Reservation
	err := repository.WithTx(ctx, s.repo.DB(), func(tx *sql.Tx) error {
		var err error
		if res, err = s.repo.GetForUpdateTx(ctx, tx, id); err != nil {
			return err
		}
		if actor.Role == model.RoleCustomer && res.UserID != actor.UserID {
			return repository.ErrNotFound
		}
		if res.Status == model.ReservationCanceled {
			return nil
		}
		res.Status = model.ReservationCanceled
		changed = true
		return s.repo.UpdateStatusTx(ctx, tx, id, res.Status)
	})
	if err != nil || !changed {
		return res, "", err
	}
	s.log.Info("reservation canceled", "reservation_id", id, "by", actor.Role)
	return res, s.announce(ctx, res, notify.ReservationCanceled), nil
}

func (s *Scheduler) announce(ctx context.Context, res model.Reservation, build func(model.User, model.Reservation) notify.Message) notify.Result {
	user, err := s.users.GetByID(ctx, res.UserID)
	if err != nil {
		s.log.Warn("load reservation owner failed", "reservation_id", res.ID, "err", err)
		return notify.Failed
	}
	return s.notifier.Notify(ctx, build(user, res))
}

// Get returns one booking; customers only see their own.
func (s *Scheduler) Get(ctx context.Context, actor model.Actor, id uint64) (model.Reservation, error) {
	res, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return model.Reservation{}, err
	}
	if actor.Role == model.RoleCustomer && res.UserID != actor.UserID {
		return model.Reservation{}, repository.ErrNotFound
	}
	return res, nil
}

func (s *Scheduler) ListForUser(ctx context.Context, userID uint64) ([]model.Reservation, error) {
	return s.repo.ListByUser(ctx, userID)
}
