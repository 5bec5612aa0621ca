package model

import (
	"errors"
	"fmt"
)

// Domain errors.  Every one of them is recoverable at the request boundary
// and is reported to the caller with an actionable message.
var (
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrInvalidTimeSlot     = errors.New("invalid time slot")
	ErrReservationConflict = errors.New("reservation conflict")
	ErrIncompleteProfile   = errors.New("incomplete profile")
	ErrEmptyCart           = errors.New("empty cart")
	ErrPaymentProvider     = errors.New("payment provider error")
	ErrInvalidTransition   = errors.New("invalid state transition")
	ErrLatePayment         = errors.New("payment settled after order was canceled")
)

// InsufficientStockError names the item that could not be held.
type InsufficientStockError struct {
	ItemID    uint64
	Item      string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("not enough stock for %s", e.Item)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// TimeSlotError carries the guest-facing reason a slot was refused.
type TimeSlotError struct{ Reason string }

func (e *TimeSlotError) Error() string { return e.Reason }

func (e *TimeSlotError) Unwrap() error { return ErrInvalidTimeSlot }

// ConflictError names the table that is already taken.
type ConflictError struct{ TableNo string }

func (e *ConflictError) Error() string {
	return fmt.Sprintf("Table %s is already booked at that time.", e.TableNo)
}

func (e *ConflictError) Unwrap() error { return ErrReservationConflict }

// TransitionError describes a refused status change.
type TransitionError struct {
	From OrderStatus
	To   OrderStatus
	Role string
}

func (e *TransitionError) Error() string {
	if e.Role != "" {
		return fmt.Sprintf("role %s may not move order from %s to %s", e.Role, e.From, e.To)
	}
	return fmt.Sprintf("order cannot move from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// ProviderError wraps a failure talking to the payment provider.
type ProviderError struct {
	Op  string // grant_token, create_payment, execute_payment, timeout
	Err error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return "payment provider: " + e.Op
	}
	return fmt.Sprintf("payment provider: %s: %v", e.Op, e.Err)
}

// Is lets errors.Is match both the sentinel and the wrapped cause.
func (e *ProviderError) Is(target error) bool { return target == ErrPaymentProvider }

func (e *ProviderError) Unwrap() error { return e.Err }
