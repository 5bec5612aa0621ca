package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentState tracks an external payment attempt.
type PaymentState string

const (
	PaymentInitiated PaymentState = "INITIATED"
	PaymentCompleted PaymentState = "COMPLETED"
	PaymentFailed    PaymentState = "FAILED"
	PaymentCanceled  PaymentState = "CANCELED"
	PaymentExpired   PaymentState = "EXPIRED"
	// PaymentLate marks money captured after the order was already canceled.
	PaymentLate PaymentState = "LATE"
)

// Final reports whether the attempt can no longer change.
func (s PaymentState) Final() bool { return s != PaymentInitiated }

type Payment struct {
	ID                uint64          `json:"id"`                  // payments.id
	OrderID           uint64          `json:"order_id"`            // payments.order_id
	Provider          string          `json:"provider"`            // payments.provider
	ProviderPaymentID string          `json:"provider_payment_id"` // payments.provider_payment_id
	Amount            decimal.Decimal `json:"amount"`              // payments.amount
	Currency          string          `json:"currency"`            // payments.currency
	Status            PaymentState    `json:"status"`              // payments.status
	ExpiresAt         time.Time       `json:"expires_at"`          // payments.expires_at
	CreatedAt         time.Time       `json:"created_at"`          // payments.created_at
	UpdatedAt         time.Time       `json:"updated_at"`          // payments.updated_at
}
