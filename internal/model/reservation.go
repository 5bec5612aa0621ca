package model

import "time"

// ReservationStatus is the staff-managed state of a table booking.
type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "Pending"
	ReservationConfirmed ReservationStatus = "Confirmed"
	ReservationCanceled  ReservationStatus = "Canceled"
)

// TableAny books no concrete table; it is never checked for overlap.
const TableAny = "Any"

// Reservation records a user's table booking.  The slot is stored the way
// guests enter it: a calendar date, a wall-clock start time and a duration
// in whole hours, all in the restaurant's time zone.
//
// Fields:
//  Number    – 12 character public reference shown to the guest.
//  StartTime – "HH:MM".
//  TableNo   – concrete table label or TableAny.
type Reservation struct {
	ID            uint64            `json:"id"`                 // table_reservations.id
	Number        string            `json:"reservation_number"` // table_reservations.reservation_number
	UserID        uint64            `json:"user_id"`            // table_reservations.user_id
	Date          string            `json:"date"`               // table_reservations.booking_date
	StartTime     string            `json:"time"`               // table_reservations.start_time
	DurationHours int               `json:"duration"`           // table_reservations.duration_hours
	Guests        int               `json:"guests"`             // table_reservations.guests
	TableNo       string            `json:"table_no"`           // table_reservations.table_no
	Status        ReservationStatus `json:"status"`             // table_reservations.status
	CreatedAt     time.Time         `json:"created_at"`         // table_reservations.created_at
}
