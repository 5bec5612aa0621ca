// Package payment reconciles an external payment provider with local
// order state.  The provider is asynchronous: checkout opens a payment and
// redirects the guest, and the outcome arrives later as a callback or not
// at all, in which case the sweep expires the order.
package payment

import (
	"context"
	"errors"
	"net"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/restaurant-order-engine/internal/model"
)

// Transaction statuses reported by execute and query calls.
const (
	TransactionInitiated = "Initiated"
	TransactionCompleted = "Completed"
	TransactionCanceled  = "Cancelled"
	TransactionFailed    = "Failed"
	TransactionExpired   = "Expired"
)

// Created is the provider's answer to a create-payment call.
type Created struct {
	PaymentID   string
	RedirectURL string
}

// Provider is the outbound contract with the payment gateway.  Every call
// is preceded by a token exchange.
type Provider interface {
	Name() string
	GrantToken(ctx context.Context) (string, error)
	CreatePayment(ctx context.Context, token string, amount decimal.Decimal, currency, reference string) (Created, error)
	ExecutePayment(ctx context.Context, token, paymentID string) (string, error)
	// QueryPayment reports the provider's current transaction status
	// without changing it.
	QueryPayment(ctx context.Context, token, paymentID string) (string, error)
}

// providerErr wraps err as a *model.ProviderError for op unless it already is one.
func providerErr(op string, err error) error {
	var pe *model.ProviderError
	if errors.As(err, &pe) {
		return err
	}
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		op = "timeout"
	}
	return &model.ProviderError{Op: op, Err: err}
}
