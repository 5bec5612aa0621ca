// Package scheduler books restaurant tables.  A booking is a wall-clock
// slot on a date; two bookings of the same table conflict when their
// half-open intervals [start, start+duration) intersect.
package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/restaurant-order-engine/internal/model"
)

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04"
)

// Rules are the venue's booking rules.
type Rules struct {
	Location        *time.Location
	OpeningHour     int // first bookable start hour
	LastSeatingHour int // starts must be strictly before this hour
	DefaultDuration int // hours, used when a request has none
	MaxDuration     int // hours
}

// DefaultRules opens at 11:00, takes the last seating before 22:00 and
// books two hours unless told otherwise.
func DefaultRules(loc *time.Location) Rules {
	if loc == nil {
		loc = time.UTC
	}
	return Rules{Location: loc, OpeningHour: 11, LastSeatingHour: 22, DefaultDuration: 2, MaxDuration: 6}
}

// Request is a parsed booking request.
type Request struct {
	Date      string // YYYY-MM-DD
	StartTime string // HH:MM
	Duration  int    // hours
	Guests    int
	TableNo   string // concrete table or model.TableAny
	Start     time.Time
	End       time.Time
}

func slotError(reason string) error { return &model.TimeSlotError{Reason: reason} }

const msgBadFormat = "Invalid date/time format. Use YYYY-MM-DD and HH:MM."

// Parse validates the raw fields of a booking and resolves the slot in the
// restaurant's time zone.  A zero duration selects the default.
func (r Rules) Parse(date, clock string, duration, guests int, table string) (Request, error) {
	date, clock = strings.TrimSpace(date), strings.TrimSpace(clock)
	start, err := time.ParseInLocation(dateLayout+" "+clockLayout, date+" "+clock, r.Location)
	if err != nil {
		return Request{}, slotError(msgBadFormat)
	}
	if duration == 0 {
		duration = r.DefaultDuration
	}
	if duration < 1 || duration > r.MaxDuration {
		return Request{}, slotError(fmt.Sprintf("Duration must be between 1 and %d hours.", r.MaxDuration))
	}
	if guests < 1 {
		return Request{}, slotError("Please book for at least one guest.")
	}
	return Request{
		Date:      start.Format(dateLayout),
		StartTime: start.Format(clockLayout),
		Duration:  duration,
		Guests:    guests,
		TableNo:   normalizeTable(table),
		Start:     start,
		End:       start.Add(time.Duration(duration) * time.Hour),
	}, nil
}

// normalizeTable upper-cases concrete table ids.  The table_no columns
// use a case-insensitive collation, so "t1" and "T1" are the same table.
func normalizeTable(t string) string {
	t = strings.TrimSpace(t)
	if t == "" || strings.EqualFold(t, model.TableAny) {
		return model.TableAny
	}
	return strings.ToUpper(t)
}

// interval returns the slot an existing booking occupies.
func (r Rules) interval(res model.Reservation) (time.Time, time.Time, bool) {
	start, err := time.ParseInLocation(dateLayout+" "+clockLayout, res.Date+" "+res.StartTime, r.Location)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	return start, start.Add(time.Duration(res.DurationHours) * time.Hour), true
}

// CheckAvailability decides whether req may be booked at now given the
// bookings already held for the same table and date.  It has no side
// effects; persisting the booking is the caller's job.
func (r Rules) CheckAvailability(now time.Time, req Request, existing []model.Reservation) error {
	if req.Start.Before(now) {
		return slotError("You cannot book a table in the past.")
	}
	hour := req.Start.Hour()
	if hour < r.OpeningHour {
		return slotError(fmt.Sprintf("We are closed. Opening hours are %s - %s.",
			clock12(r.OpeningHour), clock12(r.LastSeatingHour+1)))
	}
	if hour >= r.LastSeatingHour {
		return slotError(fmt.Sprintf("Our last seating is at %s.", clock12(r.LastSeatingHour)))
	}
	if req.TableNo == model.TableAny {
		return nil
	}
	for _, res := range existing {
		if res.Status == model.ReservationCanceled || !strings.EqualFold(res.TableNo, req.TableNo) {
			continue
		}
		s2, e2, ok := r.interval(res)
		if !ok {
			continue
		}
		if req.Start.Before(e2) && s2.Before(req.End) {
			return &model.ConflictError{TableNo: req.TableNo}
		}
	}
	return nil
}

// clock12 renders an hour as "11:00 AM".
func clock12(hour int) string {
	return time.Date(2000, 1, 1, hour%24, 0, 0, 0, time.UTC).Format("3:04 PM")
}
